package skipper

import (
	"context"
	"errors"
	"log"

	"plexautoskip/internal/models"
)

// OnAlert turns one play-state notification into a registry create or
// update. The alert carries only the session key, so the canonical snapshot
// is always re-fetched from the server. Sessions that are not on the local
// network are ignored: auto-seeking a remote or guest session is outside
// this daemon's trust boundary.
func (sk *Skipper) OnAlert(ctx context.Context, a models.PlayingAlert) {
	ms, err := sk.source.LookupSession(ctx, a.SessionKey)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Printf("skipper: looking up session %d: %v", a.SessionKey, err)
		}
		return
	}
	if !ms.Local() {
		return
	}

	if existing, ok := sk.registry.Get(ms.SessionKey); ok {
		if !existing.Refresh(ms) {
			log.Printf("skipper: session %d is actively seeking, dropping update", ms.SessionKey)
		}
		return
	}

	log.Printf("skipper: new LAN session %d (%s, user %s) at offset %d",
		ms.SessionKey, ms.Title, ms.UserName, ms.ViewOffset)
	sk.registry.Put(newSession(ms))
}
