package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/internal/infra"
	"github.com/seenimoa/chartscout/pkg/models"
	"github.com/seenimoa/chartscout/pkg/utils"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

// YFinance implements HistorySource using the Yahoo Finance chart API.
// Plain six-digit codes are tried as KOSPI (.KS) first, then KOSDAQ (.KQ);
// the suffix that resolved is remembered for later calls.
type YFinance struct {
	client
	suffixes *infra.Cache[string]
}

// NewYFinance creates a new Yahoo Finance history source.
func NewYFinance(opts ...Option) *YFinance {
	return &YFinance{
		client:   newClient(yahooBaseURL, opts),
		suffixes: infra.NewCache[string](24 * time.Hour),
	}
}

// Name returns the data source name.
func (y *YFinance) Name() string { return "Yahoo Finance" }

// --- Yahoo Finance v8 API types ---

type yfChartResponse struct {
	Chart struct {
		Result []yfChartResult `json:"result"`
		Error  *yfError        `json:"error"`
	} `json:"chart"`
}

type yfChartResult struct {
	Meta       yfChartMeta  `json:"meta"`
	Timestamp  []int64      `json:"timestamp"`
	Indicators yfIndicators `json:"indicators"`
}

type yfChartMeta struct {
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
}

type yfIndicators struct {
	Quote []yfOHLCV `json:"quote"`
}

type yfOHLCV struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type yfError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// FetchHistory returns daily bars between from and to, oldest first.
func (y *YFinance) FetchHistory(ctx context.Context, code string, from, to time.Time) (models.HistorySeries, error) {
	upper := strings.ToUpper(strings.TrimSpace(code))
	if strings.HasSuffix(upper, ".KS") || strings.HasSuffix(upper, ".KQ") {
		return y.fetch(ctx, utils.FromYFinanceTicker(upper), upper, from, to)
	}

	code = utils.NormalizeCode(code)
	if sfx, ok := y.suffixes.Get(code); ok {
		return y.fetch(ctx, code, code+sfx, from, to)
	}

	var lastErr error
	for _, m := range []models.Market{models.MarketKOSPI, models.MarketKOSDAQ} {
		ticker := utils.ToYFinanceTicker(code, m)
		series, err := y.fetch(ctx, code, ticker, from, to)
		if err == nil {
			y.suffixes.Set(code, strings.TrimPrefix(ticker, code))
			return series, nil
		}
		if !errors.Is(err, ErrTickerNotFound) {
			return models.HistorySeries{}, err
		}
		lastErr = err
	}
	return models.HistorySeries{}, lastErr
}

func (y *YFinance) fetch(ctx context.Context, code, ticker string, from, to time.Time) (models.HistorySeries, error) {
	u := fmt.Sprintf(
		"%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		y.baseURL, url.PathEscape(ticker), from.Unix(), to.Unix(),
	)

	body, _, err := y.get(ctx, u, map[string]string{"Accept": "application/json"})
	if err != nil {
		var he *ErrHTTP
		if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
			return models.HistorySeries{}, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
		}
		return models.HistorySeries{}, fmt.Errorf("yfinance chart %s: %w: %w", ticker, ErrSourceUnavailable, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return models.HistorySeries{}, fmt.Errorf("yfinance chart %s: %w: read: %w", ticker, ErrSourceUnavailable, err)
	}

	var resp yfChartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return models.HistorySeries{}, fmt.Errorf("yfinance chart %s: %w: parse: %w", ticker, ErrSourceUnavailable, err)
	}
	if resp.Chart.Error != nil {
		if strings.EqualFold(resp.Chart.Error.Code, "Not Found") {
			return models.HistorySeries{}, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
		}
		return models.HistorySeries{}, fmt.Errorf("yfinance chart %s: %w: %s", ticker, ErrSourceUnavailable, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return models.HistorySeries{}, fmt.Errorf("%w: %s", ErrTickerNotFound, ticker)
	}

	bars := parseYFCandles(resp.Chart.Result[0])
	y.log.Debug("history fetched", zap.String("ticker", ticker), zap.Int("bars", len(bars)))
	return models.HistorySeries{Code: code, Bars: bars}, nil
}

// --- Helpers ---

// parseYFCandles converts the columnar chart payload into bars. Sessions
// without a close (halts, the still-open session on some feeds) are dropped.
func parseYFCandles(result yfChartResult) []models.OHLCV {
	if len(result.Indicators.Quote) == 0 {
		return nil
	}

	q := result.Indicators.Quote[0]
	candles := make([]models.OHLCV, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil || *q.Close[i] == 0 {
			continue
		}
		c := models.OHLCV{
			Timestamp: time.Unix(ts, 0).In(utils.KST),
			Close:     *q.Close[i],
		}
		c.Open = valueOr(q.Open, i, c.Close)
		c.High = valueOr(q.High, i, c.Close)
		c.Low = valueOr(q.Low, i, c.Close)
		if i < len(q.Volume) && q.Volume[i] != nil {
			c.Volume = *q.Volume[i]
		}
		candles = append(candles, c)
	}
	return candles
}

func valueOr(vals []*float64, i int, fallback float64) float64 {
	if i < len(vals) && vals[i] != nil && *vals[i] != 0 {
		return *vals[i]
	}
	return fallback
}
