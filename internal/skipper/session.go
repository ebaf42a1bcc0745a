package skipper

import (
	"sync"
	"time"

	"plexautoskip/internal/models"
)

// Session is the per-session tracking record: the last accepted media
// snapshot, the advisory seeking lock, and the time of the last refresh.
// The alert path and the tick loop touch it from different goroutines, so
// field access goes through the mutex; the seeking flag additionally blocks
// snapshot refreshes while a seek is in flight, regardless of which
// goroutine observes the fresher data first.
type Session struct {
	Key int64

	mu         sync.Mutex
	snapshot   *models.MediaSession
	seeking    bool
	lastUpdate time.Time
}

func newSession(ms *models.MediaSession) *Session {
	return &Session{
		Key:        ms.SessionKey,
		snapshot:   ms,
		lastUpdate: time.Now(),
	}
}

// Snapshot returns the last accepted media snapshot.
func (s *Session) Snapshot() *models.MediaSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// SnapshotCopy returns a struct copy taken under the lock, for readers
// running concurrently with offset updates.
func (s *Session) SnapshotCopy() models.MediaSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.snapshot
}

// Refresh replaces the snapshot unless a seek is in flight. It reports
// whether the update was accepted; a dropped update leaves lastUpdate
// untouched as well, so staleness is measured from real accepted data.
func (s *Session) Refresh(ms *models.MediaSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeking {
		return false
	}
	s.snapshot = ms
	s.lastUpdate = time.Now()
	return true
}

// BeginSeek sets the advisory seeking lock.
func (s *Session) BeginSeek() {
	s.mu.Lock()
	s.seeking = true
	s.mu.Unlock()
}

// EndSeek clears the seeking lock. Callers defer it around the whole seek
// so the lock can never outlive the attempt.
func (s *Session) EndSeek() {
	s.mu.Lock()
	s.seeking = false
	s.mu.Unlock()
}

func (s *Session) Seeking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeking
}

// UpdateOffset records the seek target as the current view offset so the
// next tick sees the cursor past the region.
func (s *Session) UpdateOffset(offsetMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.ViewOffset = offsetMs
}

// SinceLastUpdate is the age of the last accepted snapshot.
func (s *Session) SinceLastUpdate() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastUpdate)
}
