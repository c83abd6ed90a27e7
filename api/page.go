package api

import (
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/internal/config"
	"github.com/seenimoa/chartscout/internal/screener"
	"github.com/seenimoa/chartscout/pkg/models"
	"github.com/seenimoa/chartscout/pkg/utils"
	"github.com/seenimoa/chartscout/web"
)

var pageFuncs = template.FuncMap{
	"krw": utils.FormatKRW,
	"pct": utils.FormatPct,
	"vol": utils.FormatVolume,
	"kst": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return utils.FormatDateTimeKST(t)
	},
}

func parsePage() (*template.Template, error) {
	return template.New("index.html").Funcs(pageFuncs).ParseFS(web.Templates(), "index.html")
}

// pageData is the view model of the index page.
type pageData struct {
	Version      string
	MarketStatus string
	HasKey       bool
	Presets      []string
	Preset       string
	Market       string
	Markets      []string
	Last         *models.RunResult
	Rows         []pageRow
}

// pageRow pairs a candidate with its analysis, when there is one.
type pageRow struct {
	Candidate models.Candidate
	Analysis  *models.Analysis
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Version:      Version,
		MarketStatus: utils.MarketStatus(),
		HasKey:       config.HasAnalysisKey(s.cfg),
		Presets:      screener.PresetNames(),
		Preset:       s.cfg.Screener.Preset,
		Market:       s.cfg.Screener.Market,
		Markets:      []string{string(models.MarketAll), string(models.MarketKOSPI), string(models.MarketKOSDAQ)},
		Last:         s.LastRun(),
	}
	if data.Last != nil {
		for i, c := range data.Last.Candidates {
			row := pageRow{Candidate: c}
			if i < len(data.Last.Analyses) {
				row.Analysis = &data.Last.Analyses[i]
			}
			data.Rows = append(data.Rows, row)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := s.page.Execute(w, data); err != nil {
		s.log.Warn("render page", zap.Error(err))
	}
}
