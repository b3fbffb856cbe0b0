package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned by Converse when the identity has no
	// conversation yet. Nothing is mutated.
	ErrNoSession = errors.New("no session for identity")
	// ErrInvalidIdentity is returned for a blank identity.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrEmptyMessage is returned for a blank user utterance.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNilDataset is returned when Ingest is given no dataset.
	ErrNilDataset = errors.New("dataset is nil")
	// ErrUnknownIdentity is returned by read-side lookups that find nothing.
	ErrUnknownIdentity = errors.New("unknown identity")
)

// CompletionFailedError reports a turn whose completion call failed. The
// user message and any reminder stay in the conversation; no assistant
// message was recorded.
type CompletionFailedError struct {
	Identity string
	Err      error
}

func (e *CompletionFailedError) Error() string {
	return fmt.Sprintf("completion failed for %q: %v", e.Identity, e.Err)
}

func (e *CompletionFailedError) Unwrap() error {
	return e.Err
}

// IngestionPartialFailureError reports an ingestion that stored the dataset
// but could not record the announcement. RolledBack tells whether the
// dataset store and conversation were restored to their prior state.
type IngestionPartialFailureError struct {
	Identity   string
	RolledBack bool
	Err        error
}

func (e *IngestionPartialFailureError) Error() string {
	state := "rolled back"
	if !e.RolledBack {
		state = "rollback incomplete"
	}
	return fmt.Sprintf("ingestion for %q failed (%s): %v", e.Identity, state, e.Err)
}

func (e *IngestionPartialFailureError) Unwrap() error {
	return e.Err
}
