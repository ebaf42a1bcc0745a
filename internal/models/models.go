package models

import (
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// ErrAckParse marks a player command whose acknowledgement could not be
// parsed. Certain devices return garbage after performing the command
// correctly, so callers may treat it as success.
var ErrAckParse = errors.New("unparseable command acknowledgement")

// RegionKind labels a skip region as reported by the server. Chapters carry
// free-form titles, markers carry a type field; both are matched
// case-insensitively.
type RegionKind string

const (
	RegionAdvertisement RegionKind = "advertisement"
	RegionIntro         RegionKind = "intro"
)

// SkipRegion is a time interval within a media item that should be
// auto-skipped. Offsets are milliseconds from the start of the item.
type SkipRegion struct {
	Kind    RegionKind `json:"kind"`
	StartMs int64      `json:"start_ms"`
	EndMs   int64      `json:"end_ms"`
}

func (r SkipRegion) Is(kind RegionKind) bool {
	return strings.EqualFold(string(r.Kind), string(kind))
}

// PlayerInfo identifies a playback device attached to a session. Commands
// reach it through the server using the machine identifier.
type PlayerInfo struct {
	Title     string `json:"title"`
	Product   string `json:"product"`
	Address   string `json:"address"`
	MachineID string `json:"machine_id"`
}

// MediaSession is the authoritative server-side snapshot of one playback
// session. Chapters and Markers are independent optional facets: either may
// be nil when the item carries no such metadata.
type MediaSession struct {
	SessionKey int64        `json:"session_key"`
	RatingKey  string       `json:"rating_key"`
	Title      string       `json:"title"`
	Type       string       `json:"type"`
	UserName   string       `json:"user_name"`
	Location   string       `json:"location"`
	ViewOffset int64        `json:"view_offset_ms"`
	DurationMs int64        `json:"duration_ms"`
	Chapters   []SkipRegion `json:"chapters,omitempty"`
	Markers    []SkipRegion `json:"markers,omitempty"`
	Players    []PlayerInfo `json:"players,omitempty"`
}

// Local reports whether the session originates on the local network. Only
// LAN sessions are auto-skipped.
func (m *MediaSession) Local() bool {
	return m.Location == "lan"
}

// Timeline is a playback device's reported state for its video timeline.
type Timeline struct {
	State     string
	RatingKey string
	TimeMs    int64
}

// Playing reports whether the timeline is actively rendering. When strict
// is false, paused and buffering count as playing, so a momentarily paused
// session is still considered live.
func (t *Timeline) Playing(strict bool) bool {
	if t == nil {
		return false
	}
	if strict {
		return t.State == "playing"
	}
	switch t.State {
	case "playing", "paused", "buffering":
		return true
	}
	return false
}

// PlayingAlert is a play-state push notification. It carries only the
// session key; the full snapshot is always re-fetched from the server.
type PlayingAlert struct {
	SessionKey int64
	State      string
	ViewOffset int64
}

// SkipEvent records one executed seek for the history store.
type SkipEvent struct {
	ID         int64      `json:"id"`
	SessionKey int64      `json:"session_key"`
	RatingKey  string     `json:"rating_key"`
	Title      string     `json:"title"`
	UserName   string     `json:"user_name"`
	Player     string     `json:"player"`
	RegionKind RegionKind `json:"region_kind"`
	FromMs     int64      `json:"from_ms"`
	ToMs       int64      `json:"to_ms"`
	CreatedAt  time.Time  `json:"created_at"`
}
