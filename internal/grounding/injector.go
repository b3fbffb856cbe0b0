// Package grounding builds the messages that tie a conversation to the
// caller's uploaded financial data.
//
// The dataset is re-injected on every chat turn as a system reminder placed
// right after the user's question, so it never scrolls out of the model's
// context as history grows. Output depends only on the dataset: no clocks,
// no randomness, no map iteration order.
package grounding

import (
	"fmt"
	"strings"

	"github.com/aixgo-dev/fincontext/pkg/dataset"
	"github.com/aixgo-dev/fincontext/pkg/session"
)

const (
	// DefaultMaxDatasetTokens bounds the inline dataset before summarising.
	DefaultMaxDatasetTokens = 6000
	// DefaultPreviewRows is how many rows a summary carries verbatim.
	DefaultPreviewRows = 20
)

const (
	groundingText = "You are a professional financial advisor and analyst. " +
		"Answer questions about the user's financial data accurately and professionally. " +
		"When financial data is provided in this conversation, treat it as the authoritative source " +
		"and say so when a question cannot be answered from it."

	announcementPrefix = "I have uploaded financial data (%s). " +
		"Use this data as the authoritative source when answering my questions. The data is: "

	reminderPrefix = "Remember to use the financial data provided earlier when answering this question. " +
		"The data is: "
)

// Config tunes the injector.
type Config struct {
	// MaxDatasetTokens is the largest inline serialisation allowed. Larger
	// datasets are replaced by a summary. Zero uses the default.
	MaxDatasetTokens int
	// PreviewRows is the row count kept in a summary. Zero uses the default.
	PreviewRows int
	// Estimator counts tokens. Nil uses SimpleTokenEstimator.
	Estimator TokenEstimator
}

// Injector produces grounding, announcement and reminder messages.
// Injector is stateless and safe for concurrent use.
type Injector struct {
	maxTokens   int
	previewRows int
	estimator   TokenEstimator
}

// NewInjector creates an injector.
func NewInjector(cfg Config) *Injector {
	inj := &Injector{
		maxTokens:   cfg.MaxDatasetTokens,
		previewRows: cfg.PreviewRows,
		estimator:   cfg.Estimator,
	}
	if inj.maxTokens <= 0 {
		inj.maxTokens = DefaultMaxDatasetTokens
	}
	if inj.previewRows <= 0 {
		inj.previewRows = DefaultPreviewRows
	}
	if inj.estimator == nil {
		inj.estimator = SimpleTokenEstimator{}
	}
	return inj
}

// GroundingMessage returns the leading system message of every conversation.
func (i *Injector) GroundingMessage() session.Message {
	return session.NewMessage(session.RoleSystem, session.KindGrounding, groundingText)
}

// Announcement returns the user message recording that ds was uploaded.
func (i *Injector) Announcement(ds *dataset.Dataset) (session.Message, error) {
	body, err := i.Render(ds)
	if err != nil {
		return session.Message{}, err
	}
	content := fmt.Sprintf(announcementPrefix, describe(ds)) + body
	return session.NewMessage(session.RoleUser, session.KindAnnouncement, content), nil
}

// Reminder returns the per-turn context messages for ds: none when ds is
// absent, otherwise one system message embedding the data.
func (i *Injector) Reminder(ds *dataset.Dataset) ([]session.Message, error) {
	if ds == nil {
		return nil, nil
	}
	body, err := i.Render(ds)
	if err != nil {
		return nil, err
	}
	return []session.Message{
		session.NewMessage(session.RoleSystem, session.KindReminder, reminderPrefix+body),
	}, nil
}

// Render serialises ds for embedding: the full record array when it fits
// the token budget, otherwise a bounded summary.
func (i *Injector) Render(ds *dataset.Dataset) (string, error) {
	if ds == nil {
		return "", fmt.Errorf("render dataset: nil dataset")
	}
	raw, err := ds.OrderedJSON()
	if err != nil {
		return "", fmt.Errorf("render dataset: %w", err)
	}
	if i.estimator.EstimateTokens(string(raw)) <= i.maxTokens {
		return string(raw), nil
	}
	return i.summarize(ds)
}

// Oversized reports whether ds would be summarised rather than inlined.
func (i *Injector) Oversized(ds *dataset.Dataset) (bool, error) {
	raw, err := ds.OrderedJSON()
	if err != nil {
		return false, err
	}
	return i.estimator.EstimateTokens(string(raw)) > i.maxTokens, nil
}

func describe(ds *dataset.Dataset) string {
	var parts []string
	if ds.Source != "" {
		parts = append(parts, ds.Source)
	}
	parts = append(parts, fmt.Sprintf("%d rows", ds.Len()))
	if len(ds.Columns) > 0 {
		parts = append(parts, "columns: "+strings.Join(ds.Columns, ", "))
	}
	return strings.Join(parts, "; ")
}
