package web

import (
	"embed"
	"fmt"
	"html/template"
	"time"

	"party_notification_bot/internal/app"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05 MST") },
	"ms":    func(v float64) string { return fmt.Sprintf("%.0f ms", v) },
}).ParseFS(templateFS, "templates/*.html"))

type latencyBar struct {
	ValueMs   float64
	HeightPct int
}

type dashboardView struct {
	Status      app.StatusSnapshot
	Bars        []latencyBar
	AuthEnabled bool
}

type loginView struct {
	Error string
}

func newDashboardView(snap app.StatusSnapshot, authEnabled bool) dashboardView {
	view := dashboardView{Status: snap, AuthEnabled: authEnabled}

	peak := 0.0
	for _, s := range snap.LatencyHistory {
		if s.ValueMs > peak {
			peak = s.ValueMs
		}
	}
	for _, s := range snap.LatencyHistory {
		pct := 100
		if peak > 0 {
			pct = int(s.ValueMs / peak * 100)
		}
		if pct < 2 {
			pct = 2
		}
		view.Bars = append(view.Bars, latencyBar{ValueMs: s.ValueMs, HeightPct: pct})
	}
	return view
}
