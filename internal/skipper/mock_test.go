package skipper

import (
	"context"
	"sync"

	"plexautoskip/internal/models"
)

type mockPlayer struct {
	mu       sync.Mutex
	title    string
	timeline *models.Timeline
	tlErr    error
	seekErr  error
	seeks    []int64
}

func (m *mockPlayer) Title() string { return m.title }

func (m *mockPlayer) Timeline(ctx context.Context) (*models.Timeline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tlErr != nil {
		return nil, m.tlErr
	}
	return m.timeline, nil
}

func (m *mockPlayer) SeekTo(ctx context.Context, offsetMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seeks = append(m.seeks, offsetMs)
	return m.seekErr
}

func (m *mockPlayer) seekCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seeks)
}

// dialerFor returns a Dial func resolving player infos by title.
func dialerFor(players ...*mockPlayer) func(models.PlayerInfo) Player {
	return func(info models.PlayerInfo) Player {
		for _, p := range players {
			if p.title == info.Title {
				return p
			}
		}
		return &mockPlayer{title: info.Title, timeline: &models.Timeline{State: "stopped"}}
	}
}

type mockSource struct {
	mu       sync.Mutex
	sessions map[int64]*models.MediaSession
	err      error
	lookups  int
}

func (m *mockSource) LookupSession(ctx context.Context, sessionKey int64) (*models.MediaSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	ms, ok := m.sessions[sessionKey]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *ms
	return &cp, nil
}

func (m *mockSource) set(ms *models.MediaSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = make(map[int64]*models.MediaSession)
	}
	m.sessions[ms.SessionKey] = ms
}

type mockAlerts struct {
	ch chan models.PlayingAlert
}

func newMockAlerts() *mockAlerts {
	return &mockAlerts{ch: make(chan models.PlayingAlert, 16)}
}

func (m *mockAlerts) Alerts(ctx context.Context) (<-chan models.PlayingAlert, error) {
	return m.ch, nil
}

type failingAlerts struct {
	err error
}

func (f failingAlerts) Alerts(ctx context.Context) (<-chan models.PlayingAlert, error) {
	return nil, f.err
}

type mockRecorder struct {
	mu     sync.Mutex
	events []models.SkipEvent
}

func (m *mockRecorder) RecordSkip(e *models.SkipEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
