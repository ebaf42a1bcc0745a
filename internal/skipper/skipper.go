package skipper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"plexautoskip/internal/models"
)

// SessionSource answers authoritative session lookups by key.
type SessionSource interface {
	LookupSession(ctx context.Context, sessionKey int64) (*models.MediaSession, error)
}

// AlertSource delivers play-state push notifications. The channel closes
// when the context is cancelled.
type AlertSource interface {
	Alerts(ctx context.Context) (<-chan models.PlayingAlert, error)
}

type Config struct {
	// LeftOffsetMs widens the skip-region trigger window before the
	// nominal region start; RightOffsetMs is added to every seek target.
	LeftOffsetMs  int64
	RightOffsetMs int64

	// Timeout is how long a session may go without an accepted update
	// before it is considered stale.
	Timeout time.Duration

	// TimeoutWithoutCheck evicts stale sessions unconditionally instead
	// of probing their players first.
	TimeoutWithoutCheck bool

	TickInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:             2 * time.Minute,
		TimeoutWithoutCheck: true,
		TickInterval:        time.Second,
	}
}

// Skipper ties the registry, detector and coordinator together: an alert
// path that feeds the registry and a once-per-second scan that skips
// regions and evicts stale sessions.
type Skipper struct {
	cfg         Config
	source      SessionSource
	alerts      AlertSource
	registry    *Registry
	detector    Detector
	coordinator *Coordinator

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}

	tickTrigger chan struct{}
	tickNotify  chan struct{}
}

type Option func(*Skipper)

// WithRecorder persists every executed skip to the given history store.
func WithRecorder(r Recorder) Option {
	return func(sk *Skipper) {
		sk.coordinator.recorder = r
	}
}

func New(source SessionSource, alerts AlertSource, dial func(models.PlayerInfo) Player, cfg Config, opts ...Option) *Skipper {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	sk := &Skipper{
		cfg:      cfg,
		source:   source,
		alerts:   alerts,
		registry: NewRegistry(),
		detector: Detector{LeftOffsetMs: cfg.LeftOffsetMs},
		coordinator: &Coordinator{
			Dial:          dial,
			RightOffsetMs: cfg.RightOffsetMs,
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sk)
	}
	return sk
}

// Start subscribes to the alert feed and launches the alert consumer and
// the tick loop. A failed subscription leaves nothing running.
func (sk *Skipper) Start(ctx context.Context) error {
	var err error
	sk.startOnce.Do(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)

		var ch <-chan models.PlayingAlert
		ch, err = sk.alerts.Alerts(ctx)
		if err != nil {
			cancel()
			err = fmt.Errorf("subscribing to alerts: %w", err)
			return
		}
		sk.cancel = cancel
		go sk.consumeAlerts(ctx, ch)
		go sk.run(ctx)
	})
	return err
}

func (sk *Skipper) Stop() {
	if sk.cancel != nil {
		sk.cancel()
		<-sk.done
	}
}

// Sessions returns a snapshot of every tracked session, for the status API.
func (sk *Skipper) Sessions() []models.MediaSession {
	return sk.registry.Snapshots()
}

func (sk *Skipper) consumeAlerts(ctx context.Context, ch <-chan models.PlayingAlert) {
	for a := range ch {
		sk.OnAlert(ctx, a)
	}
}

func (sk *Skipper) run(ctx context.Context) {
	defer close(sk.done)
	ticker := time.NewTicker(sk.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sk.tick(ctx)
		case <-sk.tickTrigger:
			sk.tick(ctx)
		}
	}
}

// tick scans every tracked session, then flushes deferred evictions once
// the scan is complete.
func (sk *Skipper) tick(ctx context.Context) {
	for _, sess := range sk.registry.Scan() {
		sk.checkSession(ctx, sess)
	}
	if removed := sk.registry.FlushEvictions(); removed > 0 {
		log.Printf("skipper: evicted %d stale session(s), %d tracked", removed, sk.registry.Len())
	}
	if sk.tickNotify != nil {
		select {
		case sk.tickNotify <- struct{}{}:
		default:
		}
	}
}

func (sk *Skipper) checkSession(ctx context.Context, sess *Session) {
	snap := sess.Snapshot()

	if dec, ok := sk.detector.Detect(snap); ok {
		log.Printf("skipper: found %s region %d-%d on session %d (offset %d)",
			dec.Region.Kind, dec.Region.StartMs, dec.Region.EndMs, snap.SessionKey, snap.ViewOffset)
		sk.coordinator.Seek(ctx, sess, dec)
		return
	}

	if sess.SinceLastUpdate() > sk.cfg.Timeout {
		if sk.cfg.TimeoutWithoutCheck || !sk.coordinator.StillPlaying(ctx, sess) {
			log.Printf("skipper: session %d stale for over %v, marking for removal", sess.Key, sk.cfg.Timeout)
			sk.registry.MarkForEviction(sess.Key)
		}
	}
}
