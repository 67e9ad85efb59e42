package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/headline-goat/funnel-goat/internal/experiment"
	"github.com/headline-goat/funnel-goat/internal/funnel"
	"github.com/headline-goat/funnel-goat/internal/stats"
	"github.com/headline-goat/funnel-goat/internal/store"
)

type dashboardData struct {
	Funnel      *funnel.Report
	Experiments []experimentRow
}

type experimentRow struct {
	Page     string
	TestID   string
	Active   bool
	Policy   *experiment.Policy
	Variants []stats.VariantSummary
	Lock     *store.WinnerLock
	Locked   bool
}

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"pct": func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>funnel-goat</title>
<style>
body{font-family:-apple-system,BlinkMacSystemFont,sans-serif;margin:40px;color:#111}
.card{border:1px solid #ddd;border-radius:12px;padding:20px;margin-top:20px}
table{border-collapse:collapse;width:100%}
td,th{border-bottom:1px solid #eee;padding:6px 8px;text-align:left}
.HIGH{color:crimson;font-weight:bold}.MEDIUM{color:#b45309;font-weight:bold}.LOW{color:#15803d}
.muted{color:#6b7280;font-size:12px}
</style>
</head>
<body>
<h1>Funnel Dashboard <a class="muted" href="/dashboard?logout=1">log out</a></h1>

{{with .Funnel}}
<div class="card">
<h2>Funnel</h2>
<p><b>Sessions:</b>{{range .Steps}} {{.Page}} {{.Sessions}} &rarr;{{end}} complete {{.Complete}}</p>
<table>
<tr><th>Step</th><th>Conversion</th><th>Lost</th></tr>
{{range .Transitions}}<tr><td>{{.From}} &rarr; {{.To}}</td><td>{{pct .Rate}}</td><td>{{.Lost}}</td></tr>
{{end}}</table>
<p><b>Complete rate (from first step):</b> {{pct .CompleteRate}}</p>
{{with .TopDropoff}}<p><b>Top drop-off page:</b> {{.From}} ({{.Lost}})</p>{{end}}
<p><b>Priority:</b> <span class="{{.Priority}}">{{.Priority}}</span></p>
<p class="{{.Priority}}">{{.Recommendation}}</p>
</div>
{{end}}

{{range .Experiments}}
<div class="card">
<h2>{{.Page}} <span class="muted">{{.TestID}}{{if not .Active}} (disabled){{end}}</span></h2>
{{if .Locked}}<p><b>Locked winner:</b> {{.Lock.Winner}} since {{.Lock.LockedAt.Format "Jan 2, 2006 15:04"}}{{with .Lock.ExpiresAt}} until {{.Format "Jan 2, 2006 15:04"}}{{end}}</p>{{end}}
{{with .Policy}}<p class="muted">min enters {{.MinEntersPerVariant}}, min lift {{pct .MinAbsLift}}, lock {{if .LockEnabled}}on{{else}}off{{end}}</p>{{end}}
<table>
<tr><th>Variant</th><th>Enters</th><th>Clicks</th><th>Rate</th><th>95% CI</th></tr>
{{range .Variants}}<tr><td>{{.Variant}}{{if .Leading}} &#9733;{{end}}</td><td>{{.Enters}}</td><td>{{.Clicks}}</td><td>{{pct .Rate}}</td><td>{{pct .CILower}} &ndash; {{pct .CIUpper}}</td></tr>
{{else}}<tr><td colspan="5" class="muted">No variants configured</td></tr>
{{end}}</table>
</div>
{{else}}
<div class="card muted">No experiments configured. Use <code>funnel-goat policy set</code>.</div>
{{end}}
</body>
</html>`))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	// Handle logout
	if r.URL.Query().Get("logout") == "1" {
		http.SetCookie(w, &http.Cookie{
			Name:   tokenCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	report, err := s.funnelReport(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to build funnel report")
		http.Error(w, "Failed to load funnel", http.StatusInternalServerError)
		return
	}

	rows, err := s.experimentRows(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load experiments")
		http.Error(w, "Failed to load experiments", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, dashboardData{Funnel: report, Experiments: rows}); err != nil {
		log.Error().Err(err).Msg("failed to render dashboard")
	}
}

func (s *Server) handleFunnelAPI(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	report, err := s.funnelReport(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to build funnel report")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "Failed to load funnel", "detail": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "funnel": report})
}

func (s *Server) funnelReport(ctx context.Context) (*funnel.Report, error) {
	return funnel.Build(ctx, s.store, s.opts.FunnelSteps, s.opts.CompleteEvent)
}

func (s *Server) experimentRows(ctx context.Context) ([]experimentRow, error) {
	exps, err := s.store.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}

	now := s.engine.Clock()
	rows := make([]experimentRow, 0, len(exps))
	for _, exp := range exps {
		p := experiment.NormalizePolicy(exp)

		metrics, err := s.store.VariantMetrics(ctx, exp.Page, p.Variants, true)
		if err != nil {
			return nil, err
		}

		lock, err := s.store.LatestLock(ctx, exp.Page)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}

		rows = append(rows, experimentRow{
			Page:     exp.Page,
			TestID:   exp.TestID,
			Active:   exp.Active,
			Policy:   p,
			Variants: stats.Summarize(p.Variants, metrics),
			Lock:     lock,
			Locked:   lock.Valid(now),
		})
	}
	return rows, nil
}
