package store

import "context"

// EventLog is the append-only analytics event table.
type EventLog interface {
	// InsertEvent returns ErrConflict when an event with the same dedup key exists.
	InsertEvent(ctx context.Context, e *Event) error
	ListEvents(ctx context.Context, page string) ([]*Event, error)
	FunnelCounts(ctx context.Context, pages []string, completeEvent string) (*FunnelCounts, error)
}

// ExperimentStore owns the per-page experiment policy rows.
type ExperimentStore interface {
	ActiveExperiment(ctx context.Context, page string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	UpsertExperiment(ctx context.Context, exp *Experiment) (*Experiment, error)
	SetExperimentActive(ctx context.Context, page string, active bool) error
}

// MetricsReader aggregates the event log into per-variant counts.
type MetricsReader interface {
	VariantMetrics(ctx context.Context, page string, variants []string, testOnly bool) ([]VariantMetric, error)
}

// LockStore holds frozen winner decisions.
type LockStore interface {
	LatestLock(ctx context.Context, page string) (*WinnerLock, error)
	// InsertLock returns ErrConflict when a lock that is valid at lock.LockedAt already exists.
	InsertLock(ctx context.Context, lock *WinnerLock) (*WinnerLock, error)
	ListLocks(ctx context.Context, page string) ([]*WinnerLock, error)
	DeleteLocks(ctx context.Context, page string) (int64, error)
	WriteProfile() WriteProfile
}

// Store defines every storage operation the service uses
type Store interface {
	EventLog
	ExperimentStore
	MetricsReader
	LockStore

	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*SQLStore)(nil)
