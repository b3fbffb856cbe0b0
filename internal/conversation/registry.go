// Package conversation runs chat turns and dataset ingestion against the
// per-identity conversation and dataset stores.
package conversation

import (
	"context"
	"sync"

	"github.com/aixgo-dev/fincontext/pkg/dataset"
	"github.com/aixgo-dev/fincontext/pkg/session"
)

// Registry owns the per-identity state: the conversation store, the
// dataset store and one mutex per identity. Operations on the same
// identity run one at a time while different identities never contend.
type Registry struct {
	conversations *session.Store
	datasets      *dataset.Store

	mu    sync.Mutex
	locks map[string]*identityLock
}

// identityLock is dropped from the registry once no caller holds or
// waits for it.
type identityLock struct {
	sync.Mutex
	refs int
}

// NewRegistry creates a registry whose conversations live in backend.
func NewRegistry(backend session.StorageBackend) *Registry {
	return &Registry{
		conversations: session.NewStore(backend),
		datasets:      dataset.NewStore(),
		locks:         make(map[string]*identityLock),
	}
}

// Lock enters the exclusive section for identity and returns the func that
// leaves it.
func (r *Registry) Lock(identity string) func() {
	r.mu.Lock()
	l, ok := r.locks[identity]
	if !ok {
		l = &identityLock{}
		r.locks[identity] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.Unlock()

			r.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(r.locks, identity)
			}
			r.mu.Unlock()
		})
	}
}

// lockCount returns the number of identities with a live lock entry.
func (r *Registry) lockCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// Conversations returns the conversation store.
func (r *Registry) Conversations() *session.Store {
	return r.conversations
}

// Datasets returns the dataset store.
func (r *Registry) Datasets() *dataset.Store {
	return r.datasets
}

// Ping fails once the conversation backend is closed.
func (r *Registry) Ping(ctx context.Context) error {
	_, err := r.conversations.Count(ctx)
	return err
}

// Close releases the conversation backend.
func (r *Registry) Close() error {
	return r.conversations.Close()
}
