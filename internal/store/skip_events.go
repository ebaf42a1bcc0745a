package store

import (
	"context"
	"fmt"
	"time"

	"plexautoskip/internal/models"
)

const skipEventColumns = `id, session_key, rating_key, title, user_name, player, region_kind, from_ms, to_ms, created_at`

const skipEventInsertSQL = `INSERT INTO skip_events (session_key, rating_key, title, user_name, player, region_kind, from_ms, to_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SkipHistoryResult is one page of skip events plus the total count.
type SkipHistoryResult struct {
	Items    []models.SkipEvent `json:"items"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

func (s *Store) RecordSkip(e *models.SkipEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.Exec(skipEventInsertSQL,
		e.SessionKey, e.RatingKey, e.Title, e.UserName, e.Player,
		string(e.RegionKind), e.FromMs, e.ToMs, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting skip event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// ListSkips returns one page of skip events, newest first, optionally
// filtered by region kind.
func (s *Store) ListSkips(page, pageSize int, kind string) (*SkipHistoryResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 50
	}

	where := ""
	args := []any{}
	if kind != "" {
		where = " WHERE region_kind = ?"
		args = append(args, kind)
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM skip_events"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting skip events: %w", err)
	}

	query := "SELECT " + skipEventColumns + " FROM skip_events" + where +
		" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing skip events: %w", err)
	}
	defer rows.Close()

	items := make([]models.SkipEvent, 0, pageSize)
	for rows.Next() {
		var e models.SkipEvent
		var kind string
		if err := rows.Scan(&e.ID, &e.SessionKey, &e.RatingKey, &e.Title, &e.UserName,
			&e.Player, &kind, &e.FromMs, &e.ToMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RegionKind = models.RegionKind(kind)
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &SkipHistoryResult{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

func (s *Store) CountSkips(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM skip_events").Scan(&n)
	return n, err
}

func (s *Store) CountSkipsByKind(ctx context.Context, kind models.RegionKind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM skip_events WHERE LOWER(region_kind) = LOWER(?)", string(kind)).Scan(&n)
	return n, err
}

func (s *Store) CountSkipsSince(ctx context.Context, t time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM skip_events WHERE created_at >= ?", t).Scan(&n)
	return n, err
}

// TotalSkippedMs is the cumulative playback time skipped across all events.
func (s *Store) TotalSkippedMs(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(to_ms - from_ms), 0) FROM skip_events").Scan(&n)
	return n, err
}
