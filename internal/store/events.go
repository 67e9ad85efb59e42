package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *SQLStore) InsertEvent(ctx context.Context, e *Event) error {
	meta, err := encodeJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}

	// The unique dedup_key index makes retries within a bucket a no-op.
	var id int64
	err = s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO events (event_id, session_id, page, event_name, variant, is_test,
		                     occurred_at, bucket_ts, dedup_key, metadata, user_agent, device_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (dedup_key) DO NOTHING
		 RETURNING id`),
		e.EventID, e.SessionID, e.Page, e.EventName, nullableString(e.Variant), e.IsTest,
		e.OccurredAt.UnixMilli(), e.BucketTime.UnixMilli(), e.DedupKey, meta, e.UserAgent, e.DeviceType,
		e.CreatedAt.Unix(),
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) || isConstraintError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	e.ID = id
	return nil
}

func (s *SQLStore) ListEvents(ctx context.Context, page string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, event_id, session_id, page, event_name, variant, is_test, occurred_at, bucket_ts,
		        dedup_key, metadata, user_agent, device_type, created_at
		 FROM events WHERE page = ? ORDER BY occurred_at DESC, id DESC`),
		page,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var variant, meta sql.NullString
		var occurredAt, bucketTS, createdAt int64
		if err := rows.Scan(&e.ID, &e.EventID, &e.SessionID, &e.Page, &e.EventName, &variant, &e.IsTest,
			&occurredAt, &bucketTS, &e.DedupKey, &meta, &e.UserAgent, &e.DeviceType, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if variant.Valid {
			v := variant.String
			e.Variant = &v
		}
		e.OccurredAt = time.UnixMilli(occurredAt)
		e.BucketTime = time.UnixMilli(bucketTS)
		e.CreatedAt = time.Unix(createdAt, 0)
		e.Metadata = decodeJSON(meta)
		events = append(events, &e)
	}

	return events, rows.Err()
}

// VariantMetrics counts distinct entering and clicking sessions per variant.
// Rows come back in the order of variants; variants without events are omitted.
func (s *SQLStore) VariantMetrics(ctx context.Context, page string, variants []string, testOnly bool) ([]VariantMetric, error) {
	if len(variants) == 0 {
		return nil, nil
	}

	query := `SELECT variant,
			COUNT(DISTINCT CASE WHEN event_name = ? THEN session_id END) AS enters,
			COUNT(DISTINCT CASE WHEN event_name = ? THEN session_id END) AS clicks
		FROM events
		WHERE page = ? AND variant IN (` + placeholders(len(variants)) + `)`

	args := make([]any, 0, len(variants)+4)
	args = append(args, EventEnterPage, EventCTAClick, page)
	for _, v := range variants {
		args = append(args, v)
	}
	if testOnly {
		query += ` AND is_test = ?`
		args = append(args, true)
	}
	query += ` GROUP BY variant`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant metrics: %w", err)
	}
	defer rows.Close()

	byVariant := make(map[string]VariantMetric, len(variants))
	for rows.Next() {
		m := VariantMetric{Page: page}
		if err := rows.Scan(&m.Variant, &m.Enters, &m.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		if m.Enters > 0 {
			m.Rate = float64(m.Clicks) / float64(m.Enters)
		}
		byVariant[m.Variant] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	out := make([]VariantMetric, 0, len(byVariant))
	for _, v := range variants {
		if m, ok := byVariant[v]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *SQLStore) FunnelCounts(ctx context.Context, pages []string, completeEvent string) (*FunnelCounts, error) {
	counts := &FunnelCounts{Sessions: make(map[string]int, len(pages))}
	for _, p := range pages {
		counts.Sessions[p] = 0
	}

	if len(pages) > 0 {
		args := make([]any, 0, len(pages)+1)
		args = append(args, EventEnterPage)
		for _, p := range pages {
			args = append(args, p)
		}

		rows, err := s.db.QueryContext(ctx, s.rebind(
			`SELECT page, COUNT(DISTINCT session_id)
			 FROM events
			 WHERE event_name = ? AND page IN (`+placeholders(len(pages))+`)
			 GROUP BY page`), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to get funnel sessions: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var page string
			var n int
			if err := rows.Scan(&page, &n); err != nil {
				return nil, fmt.Errorf("failed to scan funnel sessions: %w", err)
			}
			counts.Sessions[page] = n
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read funnel sessions: %w", err)
		}
	}

	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(DISTINCT session_id) FROM events WHERE event_name = ?`), completeEvent,
	).Scan(&counts.Complete)
	if err != nil {
		return nil, fmt.Errorf("failed to get completions: %w", err)
	}

	return counts, nil
}
