package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const experimentColumns = `id, page, test_id, variants, min_enters_per_variant, min_abs_lift,
	lock_enabled, lock_ttl_hours, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row rowScanner) (*Experiment, error) {
	var exp Experiment
	var minEnters, ttl sql.NullInt64
	var minLift sql.NullFloat64
	var createdAt, updatedAt int64

	if err := row.Scan(&exp.ID, &exp.Page, &exp.TestID, &exp.Variants, &minEnters, &minLift,
		&exp.LockEnabled, &ttl, &exp.Active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if minEnters.Valid {
		v := int(minEnters.Int64)
		exp.MinEntersPerVariant = &v
	}
	if minLift.Valid {
		v := minLift.Float64
		exp.MinAbsLift = &v
	}
	if ttl.Valid {
		v := int(ttl.Int64)
		exp.LockTTLHours = &v
	}
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)

	return &exp, nil
}

// ActiveExperiment returns the active policy row for page, or ErrNotFound.
func (s *SQLStore) ActiveExperiment(ctx context.Context, page string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+experimentColumns+`
		 FROM experiments WHERE page = ? AND active = ?
		 ORDER BY updated_at DESC LIMIT 1`), page, true)

	exp, err := scanExperiment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (s *SQLStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+experimentColumns+` FROM experiments ORDER BY page`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var exps []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		exps = append(exps, exp)
	}
	return exps, rows.Err()
}

// UpsertExperiment creates or replaces the policy row for exp.Page.
func (s *SQLStore) UpsertExperiment(ctx context.Context, exp *Experiment) (*Experiment, error) {
	if exp.Variants == "" {
		exp.Variants = "[]"
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO experiments (page, test_id, variants, min_enters_per_variant, min_abs_lift,
		                          lock_enabled, lock_ttl_hours, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (page) DO UPDATE SET
		     test_id = excluded.test_id,
		     variants = excluded.variants,
		     min_enters_per_variant = excluded.min_enters_per_variant,
		     min_abs_lift = excluded.min_abs_lift,
		     lock_enabled = excluded.lock_enabled,
		     lock_ttl_hours = excluded.lock_ttl_hours,
		     active = excluded.active,
		     updated_at = excluded.updated_at`),
		exp.Page, exp.TestID, exp.Variants, nullableInt(exp.MinEntersPerVariant), nullableFloat(exp.MinAbsLift),
		exp.LockEnabled, nullableInt(exp.LockTTLHours), exp.Active, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert experiment: %w", err)
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+experimentColumns+` FROM experiments WHERE page = ?`), exp.Page)
	saved, err := scanExperiment(row)
	if err != nil {
		return nil, fmt.Errorf("failed to reload experiment: %w", err)
	}
	return saved, nil
}

func (s *SQLStore) SetExperimentActive(ctx context.Context, page string, active bool) error {
	result, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE experiments SET active = ?, updated_at = ? WHERE page = ?`),
		active, time.Now().Unix(), page,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
