package skipper

import (
	"context"
	"errors"
	"testing"
	"time"

	"plexautoskip/internal/models"
)

func newTestSkipper(t *testing.T, src *mockSource, players []*mockPlayer, cfg Config, opts ...Option) *Skipper {
	t.Helper()
	cfg.TickInterval = time.Hour // long interval; ticks are triggered manually
	sk := New(src, newMockAlerts(), dialerFor(players...), cfg, opts...)
	sk.tickTrigger = make(chan struct{}, 1)
	sk.tickNotify = make(chan struct{}, 1)
	return sk
}

func triggerAndWaitTick(t *testing.T, sk *Skipper) {
	t.Helper()
	sk.tickTrigger <- struct{}{}
	select {
	case <-sk.tickNotify:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tick")
	}
}

func startSkipper(t *testing.T, sk *Skipper) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := sk.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(sk.Stop)
}

func TestTickSeeksSessionInsideRegion(t *testing.T) {
	active := &mockPlayer{
		title:    "TV",
		timeline: &models.Timeline{State: "playing", RatingKey: "1234"},
	}
	sk := newTestSkipper(t, &mockSource{}, []*mockPlayer{active}, Config{LeftOffsetMs: 5, RightOffsetMs: 0})

	sk.registry.Put(newSession(&models.MediaSession{
		SessionKey: 42,
		RatingKey:  "1234",
		Location:   "lan",
		ViewOffset: 103,
		Chapters:   []models.SkipRegion{adChapter(100, 130)},
		Players:    []models.PlayerInfo{{Title: "TV", MachineID: "TV"}},
	}))

	startSkipper(t, sk)
	triggerAndWaitTick(t, sk)

	if got := active.seekCount(); got != 1 {
		t.Fatalf("seek count = %d, want 1", got)
	}
	if got := active.seeks[0]; got != 130 {
		t.Errorf("seek target = %d, want 130", got)
	}

	// Same state, next tick: offset already past the region, no second seek.
	triggerAndWaitTick(t, sk)
	if got := active.seekCount(); got != 1 {
		t.Errorf("seek count after second tick = %d, want 1", got)
	}
}

func TestTickEvictsStaleWithoutCheck(t *testing.T) {
	sk := newTestSkipper(t, &mockSource{}, nil, Config{
		Timeout:             time.Minute,
		TimeoutWithoutCheck: true,
	})

	sess := newSession(&models.MediaSession{SessionKey: 7, Location: "lan"})
	sess.lastUpdate = time.Now().Add(-2 * time.Minute)
	sk.registry.Put(sess)

	startSkipper(t, sk)
	triggerAndWaitTick(t, sk)

	if _, ok := sk.registry.Get(7); ok {
		t.Fatal("stale session should have been evicted regardless of liveness")
	}
}

func TestTickKeepsStaleSessionStillPlaying(t *testing.T) {
	active := &mockPlayer{
		title:    "TV",
		timeline: &models.Timeline{State: "playing", RatingKey: "1234"},
	}
	sk := newTestSkipper(t, &mockSource{}, []*mockPlayer{active}, Config{
		Timeout:             time.Minute,
		TimeoutWithoutCheck: false,
	})

	sess := newSession(&models.MediaSession{
		SessionKey: 7,
		RatingKey:  "1234",
		Location:   "lan",
		Players:    []models.PlayerInfo{{Title: "TV", MachineID: "TV"}},
	})
	sess.lastUpdate = time.Now().Add(-2 * time.Minute)
	sk.registry.Put(sess)

	startSkipper(t, sk)
	triggerAndWaitTick(t, sk)

	if _, ok := sk.registry.Get(7); !ok {
		t.Fatal("session with a live player should not be evicted")
	}
}

func TestTickEvictsStaleSessionNotPlaying(t *testing.T) {
	stopped := &mockPlayer{
		title:    "TV",
		timeline: &models.Timeline{State: "stopped"},
	}
	sk := newTestSkipper(t, &mockSource{}, []*mockPlayer{stopped}, Config{
		Timeout:             time.Minute,
		TimeoutWithoutCheck: false,
	})

	sess := newSession(&models.MediaSession{
		SessionKey: 7,
		RatingKey:  "1234",
		Location:   "lan",
		Players:    []models.PlayerInfo{{Title: "TV", MachineID: "TV"}},
	})
	sess.lastUpdate = time.Now().Add(-2 * time.Minute)
	sk.registry.Put(sess)

	startSkipper(t, sk)
	triggerAndWaitTick(t, sk)

	if _, ok := sk.registry.Get(7); ok {
		t.Fatal("stale session with no live player should be evicted")
	}
}

func TestTickFreshSessionSurvives(t *testing.T) {
	sk := newTestSkipper(t, &mockSource{}, nil, Config{
		Timeout:             time.Minute,
		TimeoutWithoutCheck: true,
	})
	sk.registry.Put(newSession(&models.MediaSession{SessionKey: 1, Location: "lan"}))

	startSkipper(t, sk)
	triggerAndWaitTick(t, sk)

	if _, ok := sk.registry.Get(1); !ok {
		t.Fatal("fresh session should survive the tick")
	}
}

func TestOnAlertCreatesLANSession(t *testing.T) {
	src := &mockSource{}
	src.set(&models.MediaSession{SessionKey: 42, Location: "lan", ViewOffset: 1000})
	sk := newTestSkipper(t, src, nil, DefaultConfig())

	sk.OnAlert(context.Background(), models.PlayingAlert{SessionKey: 42})

	if _, ok := sk.registry.Get(42); !ok {
		t.Fatal("LAN session should have been registered")
	}
}

func TestOnAlertIgnoresRemoteSession(t *testing.T) {
	src := &mockSource{}
	src.set(&models.MediaSession{SessionKey: 42, Location: "wan"})
	sk := newTestSkipper(t, src, nil, DefaultConfig())

	sk.OnAlert(context.Background(), models.PlayingAlert{SessionKey: 42})

	if sk.registry.Len() != 0 {
		t.Fatal("remote session must not be registered")
	}
}

func TestOnAlertIgnoresMissingDescriptor(t *testing.T) {
	src := &mockSource{}
	src.set(&models.MediaSession{SessionKey: 42}) // no Session element, Location empty
	sk := newTestSkipper(t, src, nil, DefaultConfig())

	sk.OnAlert(context.Background(), models.PlayingAlert{SessionKey: 42})

	if sk.registry.Len() != 0 {
		t.Fatal("session without a location descriptor must not be registered")
	}
}

func TestOnAlertLookupMiss(t *testing.T) {
	sk := newTestSkipper(t, &mockSource{}, nil, DefaultConfig())

	sk.OnAlert(context.Background(), models.PlayingAlert{SessionKey: 42})

	if sk.registry.Len() != 0 {
		t.Fatal("failed lookup must not create a session")
	}
}

func TestOnAlertRefreshesExisting(t *testing.T) {
	src := &mockSource{}
	src.set(&models.MediaSession{SessionKey: 42, Location: "lan", ViewOffset: 1000})
	sk := newTestSkipper(t, src, nil, DefaultConfig())

	sk.OnAlert(context.Background(), models.PlayingAlert{SessionKey: 42})
	src.set(&models.MediaSession{SessionKey: 42, Location: "lan", ViewOffset: 2000})
	sk.OnAlert(context.Background(), models.PlayingAlert{SessionKey: 42})

	if sk.registry.Len() != 1 {
		t.Fatalf("registry has %d sessions, want 1 (no duplicates)", sk.registry.Len())
	}
	sess, _ := sk.registry.Get(42)
	if got := sess.Snapshot().ViewOffset; got != 2000 {
		t.Errorf("offset = %d, want 2000", got)
	}
}

func TestOnAlertDroppedWhileSeeking(t *testing.T) {
	src := &mockSource{}
	src.set(&models.MediaSession{SessionKey: 42, Location: "lan", ViewOffset: 1000})
	sk := newTestSkipper(t, src, nil, DefaultConfig())

	sk.OnAlert(context.Background(), models.PlayingAlert{SessionKey: 42})
	sess, _ := sk.registry.Get(42)
	sess.BeginSeek()

	src.set(&models.MediaSession{SessionKey: 42, Location: "lan", ViewOffset: 500})
	sk.OnAlert(context.Background(), models.PlayingAlert{SessionKey: 42})

	if got := sess.Snapshot().ViewOffset; got != 1000 {
		t.Errorf("offset = %d, want 1000 (stale update applied during seek)", got)
	}

	sess.EndSeek()
	sk.OnAlert(context.Background(), models.PlayingAlert{SessionKey: 42})
	if got := sess.Snapshot().ViewOffset; got != 500 {
		t.Errorf("offset = %d, want 500 (update accepted after seek)", got)
	}
}

func TestStartFailsWhenAlertSubscribeFails(t *testing.T) {
	sk := New(&mockSource{}, failingAlerts{err: errors.New("connection refused")}, dialerFor(), DefaultConfig())

	err := sk.Start(context.Background())
	if err == nil {
		t.Fatal("Start must report a failed alert subscription")
	}

	// Nothing was launched, so Stop must return immediately.
	sk.Stop()
}

func TestAlertChannelFeedsRegistry(t *testing.T) {
	src := &mockSource{}
	src.set(&models.MediaSession{SessionKey: 42, Location: "lan"})
	alerts := newMockAlerts()

	cfg := DefaultConfig()
	cfg.TickInterval = time.Hour
	sk := New(src, alerts, dialerFor(), cfg)
	sk.tickTrigger = make(chan struct{}, 1)
	sk.tickNotify = make(chan struct{}, 1)

	startSkipper(t, sk)
	alerts.ch <- models.PlayingAlert{SessionKey: 42, State: "playing"}

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := sk.registry.Get(42); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for alert to register the session")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSessionsSnapshotForAPI(t *testing.T) {
	sk := newTestSkipper(t, &mockSource{}, nil, DefaultConfig())
	sk.registry.Put(newSession(&models.MediaSession{SessionKey: 1, Title: "Movie", Location: "lan"}))

	sessions := sk.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("Sessions returned %d, want 1", len(sessions))
	}
	if sessions[0].Title != "Movie" {
		t.Errorf("title = %q, want Movie", sessions[0].Title)
	}
}
