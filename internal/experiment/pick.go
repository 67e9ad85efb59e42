package experiment

import (
	"sort"

	"github.com/headline-goat/funnel-goat/internal/store"
)

// Decision reason codes.
const (
	ReasonNoActiveExperiment = "NO_ACTIVE_EXPERIMENT"
	ReasonMinEntersNotMet    = "MIN_ENTERS_PER_VARIANT_NOT_MET"
	ReasonMinAbsLiftNotMet   = "MIN_ABS_LIFT_NOT_MET"
	ReasonWinnerSelected     = "WINNER_SELECTED"
	ReasonAutolockWinner     = "AUTOLOCK_WINNER"
)

type Pick struct {
	OK     bool
	Reason string
	Winner string
	Debug  PickDebug
}

type PickDebug struct {
	EligibleCount int                  `json:"eligible_count"`
	Best          *store.VariantMetric `json:"best,omitempty"`
	Runner        *store.VariantMetric `json:"runner,omitempty"`
	AbsLift       float64              `json:"abs_lift"`
	MinAbsLift    float64              `json:"min_abs_lift"`
}

// PickWinner selects the best converting variant among those with at least
// minEnters entries. With two or more eligible variants the best must beat
// the runner-up by minAbsLift; a single eligible variant always wins.
// Equal rates keep input order.
func PickWinner(rows []store.VariantMetric, minEnters int, minAbsLift float64) Pick {
	eligible := make([]store.VariantMetric, 0, len(rows))
	for _, r := range rows {
		if r.Enters >= minEnters {
			eligible = append(eligible, r)
		}
	}

	if len(eligible) == 0 {
		return Pick{Reason: ReasonMinEntersNotMet, Debug: PickDebug{MinAbsLift: minAbsLift}}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Rate > eligible[j].Rate
	})

	best := eligible[0]
	debug := PickDebug{
		EligibleCount: len(eligible),
		Best:          &best,
		AbsLift:       best.Rate,
		MinAbsLift:    minAbsLift,
	}

	if len(eligible) >= 2 {
		runner := eligible[1]
		debug.Runner = &runner
		debug.AbsLift = best.Rate - runner.Rate
		if debug.AbsLift < minAbsLift {
			return Pick{Reason: ReasonMinAbsLiftNotMet, Debug: debug}
		}
	}

	return Pick{OK: true, Reason: ReasonWinnerSelected, Winner: best.Variant, Debug: debug}
}
