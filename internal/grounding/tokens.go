package grounding

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used by GPT-4 class models.
const DefaultEncoding = "cl100k_base"

// TokenEstimator estimates token count for text.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// SimpleTokenEstimator assumes roughly four bytes per token.
type SimpleTokenEstimator struct{}

// EstimateTokens implements TokenEstimator.
func (SimpleTokenEstimator) EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// TiktokenEstimator counts tokens with a real BPE encoding.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenEstimator loads the named encoding. Loading may need network
// access the first time; callers usually fall back to SimpleTokenEstimator.
func NewTiktokenEstimator(encoding string) (*TiktokenEstimator, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	tkm, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TiktokenEstimator{encoding: tkm}, nil
}

// EstimateTokens implements TokenEstimator.
func (e *TiktokenEstimator) EstimateTokens(text string) int {
	return len(e.encoding.Encode(text, nil, nil))
}

// NewEstimator returns a tiktoken estimator for encoding, or the simple
// estimator together with the load error when the encoding is unavailable.
func NewEstimator(encoding string) (TokenEstimator, error) {
	est, err := NewTiktokenEstimator(encoding)
	if err != nil {
		return SimpleTokenEstimator{}, err
	}
	return est, nil
}
