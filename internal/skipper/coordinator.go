package skipper

import (
	"context"
	"errors"
	"log"
	"time"

	"plexautoskip/internal/models"
)

// Player is a proxied command handle for one playback device.
type Player interface {
	Title() string
	Timeline(ctx context.Context) (*models.Timeline, error)
	SeekTo(ctx context.Context, offsetMs int64) error
}

// Recorder persists executed skips. Implemented by the history store.
type Recorder interface {
	RecordSkip(e *models.SkipEvent) error
}

// Coordinator executes a seek decision against every player attached to a
// session. A failure against one player never aborts the attempt on the
// others; the seeking lock is cleared once all players have been tried.
type Coordinator struct {
	// Dial turns a session's player reference into a command handle
	// proxied through the server.
	Dial func(info models.PlayerInfo) Player

	// RightOffsetMs corrects for devices that systematically land short
	// of or past the requested target.
	RightOffsetMs int64

	recorder Recorder
}

// Seek runs the decided skip for the session. Players not currently
// rendering this session's media item are skipped without error; for the
// active player the seeking lock is set, the command issued, and the stored
// view offset advanced to the target.
func (c *Coordinator) Seek(ctx context.Context, sess *Session, dec Decision) {
	snap := sess.Snapshot()
	target := dec.TargetMs + c.RightOffsetMs
	if snap.ViewOffset == target {
		// Already sitting on the target from a previous pass; a second
		// seek would be a no-op.
		return
	}
	defer sess.EndSeek()

	for _, info := range snap.Players {
		p := c.Dial(info)

		tl, err := p.Timeline(ctx)
		if err != nil {
			log.Printf("skipper: probing player %s: %v", p.Title(), err)
			continue
		}
		if !tl.Playing(false) || tl.RatingKey != snap.RatingKey {
			continue
		}

		sess.BeginSeek()
		log.Printf("skipper: seeking player %s on session %d from %d to %d",
			p.Title(), snap.SessionKey, dec.FromMs, target)
		if err := p.SeekTo(ctx, target); err != nil {
			if !errors.Is(err, models.ErrAckParse) {
				log.Printf("skipper: seeking player %s: %v", p.Title(), err)
				continue
			}
			// Some devices perform the seek and then answer with
			// garbage; counted as success.
			log.Printf("skipper: %v, continuing", err)
		}
		sess.UpdateOffset(target)
		c.record(snap, p.Title(), dec, target)
	}
}

// StillPlaying probes the session's players and reports whether any of them
// is actively rendering this session's media item. A probe failure is
// logged and treated as "not this player".
func (c *Coordinator) StillPlaying(ctx context.Context, sess *Session) bool {
	snap := sess.Snapshot()
	for _, info := range snap.Players {
		p := c.Dial(info)
		tl, err := p.Timeline(ctx)
		if err != nil {
			log.Printf("skipper: liveness probe for player %s: %v", p.Title(), err)
			continue
		}
		if tl.Playing(false) && tl.RatingKey == snap.RatingKey {
			return true
		}
	}
	return false
}

func (c *Coordinator) record(snap *models.MediaSession, playerTitle string, dec Decision, target int64) {
	if c.recorder == nil {
		return
	}
	e := &models.SkipEvent{
		SessionKey: snap.SessionKey,
		RatingKey:  snap.RatingKey,
		Title:      snap.Title,
		UserName:   snap.UserName,
		Player:     playerTitle,
		RegionKind: dec.Region.Kind,
		FromMs:     dec.FromMs,
		ToMs:       target,
		CreatedAt:  time.Now().UTC(),
	}
	if err := c.recorder.RecordSkip(e); err != nil {
		log.Printf("skipper: recording skip for session %d: %v", snap.SessionKey, err)
	}
}
