package stats_test

import (
	"testing"

	"github.com/headline-goat/funnel-goat/internal/stats"
	"github.com/headline-goat/funnel-goat/internal/store"
)

func TestSummarize(t *testing.T) {
	metrics := []store.VariantMetric{
		{Variant: "B", Enters: 100, Clicks: 30, Rate: 0.30},
		{Variant: "A", Enters: 100, Clicks: 20, Rate: 0.20},
		{Variant: "X", Enters: 10, Clicks: 10, Rate: 1.0}, // not configured
	}

	rows := stats.Summarize([]string{"A", "B", "C"}, metrics)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	if rows[0].Variant != "A" || rows[1].Variant != "B" || rows[2].Variant != "C" {
		t.Errorf("rows not in configured order: %+v", rows)
	}
	if !rows[1].Leading || rows[0].Leading || rows[2].Leading {
		t.Errorf("expected only B to lead: %+v", rows)
	}
	if rows[2].Enters != 0 || rows[2].CIUpper != 0 {
		t.Errorf("expected zero row for C, got %+v", rows[2])
	}
	if rows[1].CILower >= 0.30 || rows[1].CIUpper <= 0.30 {
		t.Errorf("interval [%f, %f] should contain the rate", rows[1].CILower, rows[1].CIUpper)
	}
}

func TestSummarize_NoData(t *testing.T) {
	rows := stats.Summarize([]string{"A", "B"}, nil)
	for _, r := range rows {
		if r.Leading {
			t.Errorf("no variant should lead without data: %+v", r)
		}
	}
}
