package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/internal/agent/prompts"
	"github.com/seenimoa/chartscout/internal/analysis/sentiment"
	"github.com/seenimoa/chartscout/internal/datasource"
	"github.com/seenimoa/chartscout/pkg/models"
)

// ThemeWriter builds the market theme from recent headlines.
type ThemeWriter struct {
	news         datasource.HeadlineSource
	analyst      *Analyst
	maxHeadlines int
	now          func() time.Time
	log          *zap.Logger
}

// NewThemeWriter creates a ThemeWriter. maxHeadlines <= 0 means 15.
func NewThemeWriter(news datasource.HeadlineSource, analyst *Analyst, maxHeadlines int, log *zap.Logger) *ThemeWriter {
	if maxHeadlines <= 0 {
		maxHeadlines = 15
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ThemeWriter{
		news:         news,
		analyst:      analyst,
		maxHeadlines: maxHeadlines,
		now:          time.Now,
		log:          log.Named("theme"),
	}
}

// Build fetches headlines, scores their mood and asks the model for a theme.
//
// A headline failure returns ErrSourceUnavailable and no theme. A model
// failure returns the theme with headlines and mood but empty Text, together
// with an error wrapping ErrAnalysisUnavailable; an empty theme is simply not
// added to chart prompts.
func (w *ThemeWriter) Build(ctx context.Context) (*models.MarketTheme, error) {
	headlines, err := w.news.FetchHeadlines(ctx, w.maxHeadlines)
	if err != nil {
		return nil, fmt.Errorf("theme headlines: %w", err)
	}

	now := w.now()
	theme := &models.MarketTheme{
		Headlines: headlines,
		Mood:      sentiment.Aggregate(headlines, now),
		BuiltAt:   now,
	}
	if len(headlines) == 0 {
		return theme, nil
	}

	resp, err := w.analyst.Ask(ctx, prompts.ThemeRequest(headlines), nil)
	if err != nil {
		return theme, err
	}
	theme.Text = strings.TrimSpace(resp.Content)

	w.log.Info("market theme built",
		zap.Int("headlines", len(headlines)),
		zap.String("mood", theme.Mood.Label),
		zap.Duration("latency", resp.Latency))
	return theme, nil
}
