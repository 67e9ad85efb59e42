package store

import "time"

// Event names the tracker and the metrics queries agree on.
const (
	EventEnterPage = "enter_page"
	EventCTAClick  = "cta_click"
	EventComplete  = "complete"
)

// WriteProfile describes which winner_locks columns the connected schema supports.
type WriteProfile string

const (
	WriteProfileFull    WriteProfile = "full"
	WriteProfileMinimal WriteProfile = "minimal"
)

type Event struct {
	ID         int64
	EventID    string
	SessionID  string
	Page       string
	EventName  string
	Variant    *string
	IsTest     bool
	OccurredAt time.Time
	BucketTime time.Time
	DedupKey   string
	Metadata   map[string]any // Encoded as JSON
	UserAgent  string
	DeviceType string
	CreatedAt  time.Time
}

// Experiment is the raw policy row for a page. Variants is kept in its
// stored (serialized) form; the experiment package normalizes it.
type Experiment struct {
	ID                  int64
	Page                string
	TestID              string
	Variants            string
	MinEntersPerVariant *int
	MinAbsLift          *float64
	LockEnabled         bool
	LockTTLHours        *int
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type VariantMetric struct {
	Page    string  `json:"page"`
	Variant string  `json:"variant"`
	Enters  int     `json:"enters"`
	Clicks  int     `json:"clicks"`
	Rate    float64 `json:"rate"`
}

type WinnerLock struct {
	ID        int64          `json:"id"`
	Page      string         `json:"page"`
	TestID    string         `json:"test_id"`
	Winner    string         `json:"winner"`
	Reason    string         `json:"reason,omitempty"`
	LockedAt  time.Time      `json:"locked_at"`
	ExpiresAt *time.Time     `json:"expires_at"` // nil means indefinite
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Valid reports whether the lock is still authoritative at now.
func (l *WinnerLock) Valid(now time.Time) bool {
	if l == nil {
		return false
	}
	return l.ExpiresAt == nil || l.ExpiresAt.After(now)
}

// FunnelCounts holds distinct session counts per funnel page plus completions.
type FunnelCounts struct {
	Sessions map[string]int
	Complete int
}
