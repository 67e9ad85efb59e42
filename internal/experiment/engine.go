package experiment

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/headline-goat/funnel-goat/internal/store"
)

// State is the terminal state of a decision.
type State string

const (
	StateNoExperiment   State = "NO_EXPERIMENT"
	StateLocked         State = "LOCKED"
	StateWinnerSelected State = "WINNER_SELECTED"
	StateNoWinner       State = "NO_WINNER"
)

// MetricsReader aggregates per-variant session counts.
type MetricsReader interface {
	VariantMetrics(ctx context.Context, page string, variants []string, testOnly bool) ([]store.VariantMetric, error)
}

// LockStore persists winner locks.
type LockStore interface {
	LatestLock(ctx context.Context, page string) (*store.WinnerLock, error)
	InsertLock(ctx context.Context, lock *store.WinnerLock) (*store.WinnerLock, error)
	WriteProfile() store.WriteProfile
}

// LockWrite reports the outcome of an autolock attempt. It never changes the
// decision it is attached to.
type LockWrite struct {
	OK       bool               `json:"ok"`
	Profile  store.WriteProfile `json:"profile"`
	Conflict bool               `json:"conflict,omitempty"`
	Error    string             `json:"error,omitempty"`
	Lock     *store.WinnerLock  `json:"lock,omitempty"`
}

type Decision struct {
	Page      string
	State     State
	Reason    string
	TestID    string
	Winner    string
	Policy    *Policy
	Lock      *store.WinnerLock
	Metrics   []store.VariantMetric
	Debug     *PickDebug
	LockWrite *LockWrite
}

// HasExperiment reports whether an active policy was found.
func (d *Decision) HasExperiment() bool {
	return d.State != StateNoExperiment
}

type Engine struct {
	policies *PolicyReader
	metrics  MetricsReader
	locks    LockStore

	Clock   func() time.Time
	Timeout time.Duration
}

func NewEngine(policies PolicySource, metrics MetricsReader, locks LockStore) *Engine {
	return &Engine{
		policies: NewPolicyReader(policies),
		metrics:  metrics,
		locks:    locks,
		Clock:    time.Now,
	}
}

// Decide resolves the winning variant for page. A valid lock always wins;
// otherwise the winner is computed from test-traffic metrics and, when the
// policy allows it, locked in.
func (e *Engine) Decide(ctx context.Context, page string) (*Decision, error) {
	page = NormalizePage(page)
	if page == "" {
		return nil, &ValidationError{Field: "page"}
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	d, err := e.decide(ctx, page)
	if err != nil {
		decisionsTotal.WithLabelValues(otherLabel, "ERROR", "").Inc()
		return nil, err
	}
	// Only pages with an operator-defined experiment get their own series.
	label := otherLabel
	if d.HasExperiment() {
		label = page
	}
	decisionsTotal.WithLabelValues(label, string(d.State), d.Reason).Inc()
	return d, nil
}

func (e *Engine) decide(ctx context.Context, page string) (*Decision, error) {
	policy, err := e.policies.Active(ctx, page)
	if errors.Is(err, ErrNoExperiment) {
		return &Decision{Page: page, State: StateNoExperiment, Reason: ReasonNoActiveExperiment}, nil
	}
	if err != nil {
		return nil, &StorageError{Op: "read policy", Err: err}
	}

	now := e.Clock()

	lock, err := e.locks.LatestLock(ctx, page)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, &StorageError{Op: "read lock", Err: err}
	}
	if lock != nil && lock.Valid(now) {
		return &Decision{
			Page:   page,
			State:  StateLocked,
			Reason: lock.Reason,
			TestID: lock.TestID,
			Winner: lock.Winner,
			Policy: policy,
			Lock:   lock,
		}, nil
	}

	rows, err := e.metrics.VariantMetrics(ctx, page, policy.Variants, true)
	if err != nil {
		return nil, &StorageError{Op: "read metrics", Err: err}
	}
	if rows == nil {
		rows = []store.VariantMetric{}
	}

	pick := PickWinner(rows, policy.MinEntersPerVariant, policy.MinAbsLift)
	d := &Decision{
		Page:    page,
		Reason:  pick.Reason,
		TestID:  policy.TestID,
		Policy:  policy,
		Metrics: rows,
		Debug:   &pick.Debug,
	}

	if !pick.OK {
		d.State = StateNoWinner
		return d, nil
	}

	d.State = StateWinnerSelected
	d.Winner = pick.Winner
	if policy.LockEnabled {
		d.LockWrite = e.writeLock(ctx, policy, pick, rows, now)
	}
	return d, nil
}

func (e *Engine) writeLock(ctx context.Context, policy *Policy, pick Pick, rows []store.VariantMetric, now time.Time) *LockWrite {
	profile := e.locks.WriteProfile()
	lw := &LockWrite{Profile: profile}

	lock := &store.WinnerLock{
		Page:     policy.Page,
		TestID:   policy.TestID,
		Winner:   pick.Winner,
		Reason:   ReasonAutolockWinner,
		LockedAt: now,
		Metadata: map[string]any{
			"policy": map[string]any{
				"min_enters_per_variant": policy.MinEntersPerVariant,
				"min_abs_lift":           policy.MinAbsLift,
			},
			"decision_debug": pick.Debug,
			"metrics":        rows,
		},
	}
	if ttl, ok := policy.LockTTL(); ok {
		expires := now.Add(ttl)
		lock.ExpiresAt = &expires
	}

	saved, err := e.locks.InsertLock(ctx, lock)
	switch {
	case err == nil:
		lw.OK = true
		lw.Lock = saved
		lockWrites.WithLabelValues(policy.Page, "ok").Inc()
	case errors.Is(err, store.ErrConflict):
		lw.Conflict = true
		lw.Error = (&ConflictError{Op: "insert lock", Err: err}).Error()
		if existing, lerr := e.locks.LatestLock(ctx, policy.Page); lerr == nil {
			lw.Lock = existing
		}
		lockWrites.WithLabelValues(policy.Page, "conflict").Inc()
		log.Info().Str("page", policy.Page).Msg("winner lock already held")
	default:
		lw.Error = err.Error()
		lockWrites.WithLabelValues(policy.Page, "error").Inc()
		log.Warn().Err(err).Str("page", policy.Page).Msg("failed to write winner lock")
	}

	return lw
}
