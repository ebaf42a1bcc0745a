package skipper

import (
	"plexautoskip/internal/models"
)

// Detector decides whether a session's play cursor sits inside a skip
// region. Advertisement chapters are evaluated before intro markers and the
// first match wins, so at most one seek decision is produced per tick.
type Detector struct {
	// LeftOffsetMs widens the trigger window before the nominal region
	// start, compensating for update latency.
	LeftOffsetMs int64
}

// Decision is a resolved skip: seek to TargetMs, leaving From behind.
type Decision struct {
	Region   models.SkipRegion
	FromMs   int64
	TargetMs int64
}

// Detect scans the snapshot's regions in priority order. Chapters and
// markers are independent optional facets; a session missing either is
// simply not evaluated for that category.
func (d Detector) Detect(ms *models.MediaSession) (Decision, bool) {
	for _, chapter := range ms.Chapters {
		if !chapter.Is(models.RegionAdvertisement) {
			continue
		}
		if d.inWindow(chapter, ms.ViewOffset) {
			return Decision{Region: chapter, FromMs: ms.ViewOffset, TargetMs: chapter.EndMs}, true
		}
	}
	for _, marker := range ms.Markers {
		if !marker.Is(models.RegionIntro) {
			continue
		}
		if d.inWindow(marker, ms.ViewOffset) {
			return Decision{Region: marker, FromMs: ms.ViewOffset, TargetMs: marker.EndMs}, true
		}
	}
	return Decision{}, false
}

func (d Detector) inWindow(r models.SkipRegion, offsetMs int64) bool {
	return r.StartMs-d.LeftOffsetMs <= offsetMs && offsetMs <= r.EndMs
}
