// Package funnel summarizes how sessions move through the ordered landing
// pages and where most of them are lost.
package funnel

import (
	"context"
	"errors"
	"fmt"

	"github.com/headline-goat/funnel-goat/internal/store"
)

const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"

	// CompleteStep names the final transition target in reports.
	CompleteStep = "complete"
)

// Source counts distinct entering sessions per page and completed sessions.
type Source interface {
	FunnelCounts(ctx context.Context, pages []string, completeEvent string) (*store.FunnelCounts, error)
}

type Step struct {
	Page     string `json:"page"`
	Sessions int    `json:"sessions"`
}

// Transition is the move from one step to the next. The last step
// transitions to CompleteStep.
type Transition struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
	Lost int     `json:"lost"`
}

type Report struct {
	Steps          []Step       `json:"steps"`
	Complete       int          `json:"complete"`
	CompleteRate   float64      `json:"complete_rate"`
	Transitions    []Transition `json:"transitions"`
	TopDropoff     *Transition  `json:"top_dropoff,omitempty"`
	Priority       string       `json:"priority"`
	Recommendation string       `json:"recommendation"`
}

// Build computes the report for steps, in order.
func Build(ctx context.Context, src Source, steps []string, completeEvent string) (*Report, error) {
	if len(steps) == 0 {
		return nil, errors.New("funnel: no steps configured")
	}

	counts, err := src.FunnelCounts(ctx, steps, completeEvent)
	if err != nil {
		return nil, fmt.Errorf("funnel: %w", err)
	}

	r := &Report{Complete: counts.Complete}
	for _, p := range steps {
		r.Steps = append(r.Steps, Step{Page: p, Sessions: counts.Sessions[p]})
	}

	for i, s := range r.Steps {
		to, next := CompleteStep, counts.Complete
		if i+1 < len(r.Steps) {
			to, next = r.Steps[i+1].Page, r.Steps[i+1].Sessions
		}
		r.Transitions = append(r.Transitions, Transition{
			From: s.Page,
			To:   to,
			Rate: ratio(next, s.Sessions),
			Lost: max(s.Sessions-next, 0),
		})
	}
	r.CompleteRate = ratio(counts.Complete, r.Steps[0].Sessions)

	for i := range r.Transitions {
		t := &r.Transitions[i]
		if t.Lost > 0 && (r.TopDropoff == nil || t.Lost > r.TopDropoff.Lost) {
			r.TopDropoff = t
		}
	}

	r.Priority, r.Recommendation = recommend(r.TopDropoff)
	return r, nil
}

// Priority grades a step conversion rate.
func Priority(rate float64) string {
	switch {
	case rate < 0.3:
		return PriorityHigh
	case rate < 0.6:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func recommend(t *Transition) (string, string) {
	if t == nil {
		return PriorityLow, "No drop-off recorded yet."
	}

	p := Priority(t.Rate)
	pct := t.Rate * 100
	switch p {
	case PriorityHigh:
		return p, fmt.Sprintf("Fix the %s page first: only %.1f%% of sessions continue to %s (%d lost).", t.From, pct, t.To, t.Lost)
	case PriorityMedium:
		return p, fmt.Sprintf("Review the %s page: %.1f%% of sessions continue to %s (%d lost).", t.From, pct, t.To, t.Lost)
	default:
		return p, fmt.Sprintf("Funnel is healthy; keep testing CTAs on %s.", t.From)
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
