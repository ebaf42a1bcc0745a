package server

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"plexautoskip/internal/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.skipper.Sessions()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleListSkips(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "page must be a positive number")
			return
		}
		page = parsed
	}
	pageSize := 50
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		parsed, err := strconv.Atoi(ps)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "page_size must be a positive number")
			return
		}
		pageSize = parsed
	}
	kind := r.URL.Query().Get("kind")

	result, err := s.store.ListSkips(page, pageSize, kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing skips failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type statsResponse struct {
	TotalSkips     int   `json:"total_skips"`
	AdSkips        int   `json:"ad_skips"`
	IntroSkips     int   `json:"intro_skips"`
	SkipsLast24h   int   `json:"skips_last_24h"`
	TotalSkippedMs int64 `json:"total_skipped_ms"`
	ActiveSessions int   `json:"active_sessions"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	var resp statsResponse
	g, ctx := errgroup.WithContext(r.Context())

	g.Go(func() error {
		var err error
		resp.TotalSkips, err = s.store.CountSkips(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		resp.AdSkips, err = s.store.CountSkipsByKind(ctx, models.RegionAdvertisement)
		return err
	})
	g.Go(func() error {
		var err error
		resp.IntroSkips, err = s.store.CountSkipsByKind(ctx, models.RegionIntro)
		return err
	})
	g.Go(func() error {
		var err error
		resp.SkipsLast24h, err = s.store.CountSkipsSince(ctx, time.Now().UTC().Add(-24*time.Hour))
		return err
	})
	g.Go(func() error {
		var err error
		resp.TotalSkippedMs, err = s.store.TotalSkippedMs(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		writeError(w, http.StatusInternalServerError, "collecting stats failed")
		return
	}
	resp.ActiveSessions = len(s.skipper.Sessions())

	writeJSON(w, http.StatusOK, resp)
}
