package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/headline-goat/funnel-goat/internal/store"
)

const (
	DefaultMinEntersPerVariant = 50
	DefaultMinAbsLift          = 0.02
)

// Policy is the normalized experiment configuration for one page.
type Policy struct {
	Page                string   `json:"page"`
	TestID              string   `json:"test_id"`
	Variants            []string `json:"variants"`
	MinEntersPerVariant int      `json:"min_enters_per_variant"`
	MinAbsLift          float64  `json:"min_abs_lift"`
	LockEnabled         bool     `json:"lock_enabled"`
	LockTTLHours        *int     `json:"lock_ttl_hours"` // nil: locks never expire
}

// LockTTL returns the lock lifetime, or false when locks are indefinite.
func (p *Policy) LockTTL() (time.Duration, bool) {
	if p.LockTTLHours == nil || *p.LockTTLHours <= 0 {
		return 0, false
	}
	return time.Duration(*p.LockTTLHours) * time.Hour, true
}

// PolicySource is the external configuration store.
type PolicySource interface {
	ActiveExperiment(ctx context.Context, page string) (*store.Experiment, error)
}

type PolicyReader struct {
	source PolicySource
}

func NewPolicyReader(source PolicySource) *PolicyReader {
	return &PolicyReader{source: source}
}

// Active returns the normalized active policy for page, or ErrNoExperiment.
func (r *PolicyReader) Active(ctx context.Context, page string) (*Policy, error) {
	exp, err := r.source.ActiveExperiment(ctx, page)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoExperiment
	}
	if err != nil {
		return nil, err
	}
	return NormalizePolicy(exp), nil
}

// NormalizePolicy applies defaults and clamps thresholds into range.
func NormalizePolicy(exp *store.Experiment) *Policy {
	p := &Policy{
		Page:                exp.Page,
		TestID:              exp.TestID,
		Variants:            NormalizeVariants(exp.Variants),
		MinEntersPerVariant: DefaultMinEntersPerVariant,
		MinAbsLift:          DefaultMinAbsLift,
		LockEnabled:         exp.LockEnabled,
	}

	if exp.MinEntersPerVariant != nil {
		p.MinEntersPerVariant = max(*exp.MinEntersPerVariant, 0)
	}
	if exp.MinAbsLift != nil && !math.IsNaN(*exp.MinAbsLift) && !math.IsInf(*exp.MinAbsLift, 0) {
		p.MinAbsLift = math.Min(math.Max(*exp.MinAbsLift, 0), 1)
	}
	if exp.LockTTLHours != nil && *exp.LockTTLHours > 0 {
		ttl := *exp.LockTTLHours
		p.LockTTLHours = &ttl
	}

	return p
}

// NormalizeVariants turns a stored variant list into an ordered set of
// strings. It accepts a JSON array string, []string or []any; anything else,
// or a JSON parse failure, yields an empty list.
func NormalizeVariants(raw any) []string {
	var items []any

	switch v := raw.(type) {
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case []any:
		items = v
	case string:
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			return []string{}
		}
	case []byte:
		if err := json.Unmarshal(v, &items); err != nil {
			return []string{}
		}
	default:
		return []string{}
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(it))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
