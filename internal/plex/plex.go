package plex

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"plexautoskip/internal/httputil"
	"plexautoskip/internal/models"
)

// Server is a client for one Plex media server. It answers session lookups
// for the skip engine and routes player commands through the server.
type Server struct {
	url         string
	token       string
	client      *http.Client
	regionCache sync.Map // ratingKey -> *regionSet
	limiter     *rate.Limiter
}

func New(serverURL, token string) *Server {
	return &Server{
		url:     strings.TrimRight(serverURL, "/"),
		token:   token,
		client:  httputil.NewClient(),
		limiter: rate.NewLimiter(5, 5),
	}
}

func (s *Server) URL() string { return s.url }

func (s *Server) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/identity", nil)
	if err != nil {
		return err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer httputil.DrainBody(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("plex returned status %d", resp.StatusCode)
	}
	return nil
}

// LookupSession fetches the current session list and returns the session
// with the given key, with its skip regions attached. Returns
// models.ErrNotFound when no such session is active.
func (s *Server) LookupSession(ctx context.Context, sessionKey int64) (*models.MediaSession, error) {
	sessions, err := s.GetSessions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].SessionKey == sessionKey {
			ms := sessions[i]
			s.attachRegions(ctx, &ms)
			return &ms, nil
		}
	}
	return nil, models.ErrNotFound
}

// GetSessions fetches all active playback sessions. Skip regions are not
// attached here; LookupSession does that for the single session it returns.
func (s *Server) GetSessions(ctx context.Context) ([]models.MediaSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url+"/status/sessions", nil)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httputil.DrainBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plex returned status %d", resp.StatusCode)
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	sessions, err := parseSessions(body)
	if err != nil {
		return nil, err
	}

	// Drop cached regions for items no longer playing.
	active := make(map[string]struct{}, len(sessions))
	for i := range sessions {
		active[sessions[i].RatingKey] = struct{}{}
	}
	s.regionCache.Range(func(key, _ any) bool {
		if k, ok := key.(string); ok {
			if _, ok := active[k]; !ok {
				s.regionCache.Delete(k)
			}
		}
		return true
	})

	return sessions, nil
}

type regionSet struct {
	chapters []models.SkipRegion
	markers  []models.SkipRegion
}

// attachRegions fills in chapter and marker regions for the session's media
// item. Region metadata is immutable for a given item, so results are
// cached for the lifetime of the playback.
func (s *Server) attachRegions(ctx context.Context, ms *models.MediaSession) {
	if ms.RatingKey == "" {
		return
	}
	if cached, ok := s.regionCache.Load(ms.RatingKey); ok {
		if rs, ok := cached.(*regionSet); ok {
			ms.Chapters = rs.chapters
			ms.Markers = rs.markers
			return
		}
	}
	rs, err := s.fetchRegions(ctx, ms.RatingKey)
	if err != nil {
		log.Printf("plex: fetching regions for %s: %v", ms.RatingKey, err)
		return
	}
	s.regionCache.Store(ms.RatingKey, rs)
	ms.Chapters = rs.chapters
	ms.Markers = rs.markers
}

func (s *Server) fetchRegions(ctx context.Context, ratingKey string) (*regionSet, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	url := s.url + "/library/metadata/" + ratingKey + "?includeChapters=1&includeMarkers=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httputil.DrainBody(resp)
	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("plex returned status %d", resp.StatusCode)
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, err
	}
	return parseRegions(body)
}

func (s *Server) setHeaders(req *http.Request) {
	req.Header.Set("X-Plex-Token", s.token)
	req.Header.Set("Accept", "application/xml")
}

type mediaContainer struct {
	XMLName xml.Name   `xml:"MediaContainer"`
	Videos  []plexItem `xml:"Video"`
	Tracks  []plexItem `xml:"Track"`
}

type plexItem struct {
	SessionKey string        `xml:"sessionKey,attr"`
	RatingKey  string        `xml:"ratingKey,attr"`
	Type       string        `xml:"type,attr"`
	Title      string        `xml:"title,attr"`
	Duration   string        `xml:"duration,attr"`
	ViewOffset string        `xml:"viewOffset,attr"`
	Players    []player      `xml:"Player"`
	Sessions   []sessionElem `xml:"Session"`
	User       user          `xml:"User"`
}

type player struct {
	Title     string `xml:"title,attr"`
	Product   string `xml:"product,attr"`
	Address   string `xml:"address,attr"`
	MachineID string `xml:"machineIdentifier,attr"`
}

type sessionElem struct {
	ID       string `xml:"id,attr"`
	Location string `xml:"location,attr"`
}

type user struct {
	Title string `xml:"title,attr"`
}

type metadataContainer struct {
	XMLName xml.Name       `xml:"MediaContainer"`
	Videos  []metadataItem `xml:"Video"`
}

type metadataItem struct {
	RatingKey string        `xml:"ratingKey,attr"`
	Chapters  []chapterElem `xml:"Chapter"`
	Markers   []markerElem  `xml:"Marker"`
}

type chapterElem struct {
	Tag     string `xml:"tag,attr"`
	StartMs string `xml:"startTimeOffset,attr"`
	EndMs   string `xml:"endTimeOffset,attr"`
}

type markerElem struct {
	Type    string `xml:"type,attr"`
	StartMs string `xml:"startTimeOffset,attr"`
	EndMs   string `xml:"endTimeOffset,attr"`
}

func parseSessions(data []byte) ([]models.MediaSession, error) {
	var mc mediaContainer
	if err := xml.Unmarshal(data, &mc); err != nil {
		return nil, fmt.Errorf("parsing plex XML: %w", err)
	}

	items := make([]plexItem, 0, len(mc.Videos)+len(mc.Tracks))
	items = append(items, mc.Videos...)
	items = append(items, mc.Tracks...)

	sessions := make([]models.MediaSession, 0, len(items))
	for _, item := range items {
		ms := models.MediaSession{
			SessionKey: atoi64(item.SessionKey),
			RatingKey:  item.RatingKey,
			Title:      item.Title,
			Type:       item.Type,
			UserName:   item.User.Title,
			ViewOffset: atoi64(item.ViewOffset),
			DurationMs: atoi64(item.Duration),
		}
		if len(item.Sessions) > 0 {
			ms.Location = item.Sessions[0].Location
		}
		for _, p := range item.Players {
			ms.Players = append(ms.Players, models.PlayerInfo{
				Title:     p.Title,
				Product:   p.Product,
				Address:   p.Address,
				MachineID: p.MachineID,
			})
		}
		sessions = append(sessions, ms)
	}
	return sessions, nil
}

func parseRegions(data []byte) (*regionSet, error) {
	var mc metadataContainer
	if err := xml.Unmarshal(data, &mc); err != nil {
		return nil, fmt.Errorf("parsing plex metadata XML: %w", err)
	}
	if len(mc.Videos) == 0 {
		return nil, models.ErrNotFound
	}

	item := mc.Videos[0]
	rs := &regionSet{}
	for _, c := range item.Chapters {
		rs.chapters = append(rs.chapters, models.SkipRegion{
			Kind:    models.RegionKind(c.Tag),
			StartMs: atoi64(c.StartMs),
			EndMs:   atoi64(c.EndMs),
		})
	}
	for _, m := range item.Markers {
		rs.markers = append(rs.markers, models.SkipRegion{
			Kind:    models.RegionKind(m.Type),
			StartMs: atoi64(m.StartMs),
			EndMs:   atoi64(m.EndMs),
		})
	}
	return rs, nil
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
