package experiment

import "github.com/prometheus/client_golang/prometheus"

// otherLabel stands in for any page or event name outside the tracked set.
// Page and event come from clients, so they never reach a label unfiltered.
const otherLabel = "other"

var (
	eventsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "funnel", Name: "events_recorded_total", Help: "Events handled by the recorder, by outcome."},
		[]string{"page", "event", "outcome"},
	)
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "funnel", Name: "decisions_total", Help: "Winner decisions, by final state and reason."},
		[]string{"page", "state", "reason"},
	)
	lockWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "funnel", Name: "lock_writes_total", Help: "Autolock attempts, by outcome."},
		[]string{"page", "outcome"},
	)
)

func init() {
	_ = prometheus.Register(eventsRecorded)
	_ = prometheus.Register(decisionsTotal)
	_ = prometheus.Register(lockWrites)
}

type labelSet map[string]struct{}

func newLabelSet(values ...string) labelSet {
	s := make(labelSet, len(values))
	s.add(values...)
	return s
}

func (s labelSet) add(values ...string) {
	for _, v := range values {
		if v != "" {
			s[v] = struct{}{}
		}
	}
}

func (s labelSet) value(v string) string {
	if _, ok := s[v]; ok {
		return v
	}
	return otherLabel
}
