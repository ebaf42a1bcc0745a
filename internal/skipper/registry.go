package skipper

import (
	"sync"

	"plexautoskip/internal/models"
)

// Registry owns the sessionKey -> Session map and a separate set of keys
// pending eviction. Removal is deferred: the scan loop marks keys during
// the tick and flushes them afterwards, so the map is never mutated while
// being iterated.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	pending  map[int64]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[int64]*Session),
		pending:  make(map[int64]struct{}),
	}
}

func (r *Registry) Get(key int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	r.sessions[s.Key] = s
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Scan returns the current sessions as a slice, detached from the map, so
// the caller can process them while the map keeps accepting updates.
func (r *Registry) Scan() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// MarkForEviction queues a key for removal at the next flush.
func (r *Registry) MarkForEviction(key int64) {
	r.mu.Lock()
	r.pending[key] = struct{}{}
	r.mu.Unlock()
}

// FlushEvictions removes every marked session and clears the pending set.
// It returns the number of sessions removed.
func (r *Registry) FlushEvictions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key := range r.pending {
		if _, ok := r.sessions[key]; ok {
			delete(r.sessions, key)
			removed++
		}
	}
	r.pending = make(map[int64]struct{})
	return removed
}

// Snapshots returns a copy of every tracked media snapshot, for the status
// API.
func (r *Registry) Snapshots() []models.MediaSession {
	sessions := r.Scan()
	out := make([]models.MediaSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.SnapshotCopy())
	}
	return out
}
