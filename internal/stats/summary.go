package stats

import "github.com/headline-goat/funnel-goat/internal/store"

// VariantSummary is a display row: counts, rate and a 95% Wilson interval.
// The interval is informational only; winner selection never looks at it.
type VariantSummary struct {
	Variant string  `json:"variant"`
	Enters  int     `json:"enters"`
	Clicks  int     `json:"clicks"`
	Rate    float64 `json:"rate"`
	CILower float64 `json:"ci_lower"`
	CIUpper float64 `json:"ci_upper"`
	Leading bool    `json:"leading"`
}

// Summarize returns one row per configured variant, in order. Variants with
// no metrics row get zero counts.
func Summarize(variants []string, metrics []store.VariantMetric) []VariantSummary {
	byVariant := make(map[string]store.VariantMetric, len(metrics))
	for _, m := range metrics {
		byVariant[m.Variant] = m
	}

	out := make([]VariantSummary, len(variants))
	leading, bestRate := -1, 0.0
	for i, v := range variants {
		m := byVariant[v]
		lower, upper := WilsonInterval(m.Clicks, m.Enters, 0.95)
		out[i] = VariantSummary{
			Variant: v,
			Enters:  m.Enters,
			Clicks:  m.Clicks,
			Rate:    m.Rate,
			CILower: lower,
			CIUpper: upper,
		}
		if m.Enters > 0 && (leading < 0 || m.Rate > bestRate) {
			leading, bestRate = i, m.Rate
		}
	}
	if leading >= 0 {
		out[leading].Leading = true
	}
	return out
}
