package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/korean"

	"github.com/seenimoa/chartscout/pkg/models"
)

const naverBaseURL = "https://finance.naver.com"

// Column headers on the market-sum table.
const (
	colName      = "종목명"
	colClose     = "현재가"
	colChangePct = "등락률"
	colVolume    = "거래량"
)

// naverSosok maps a segment to the market-sum "sosok" parameter.
var naverSosok = map[models.Market]int{
	models.MarketKOSPI:  0,
	models.MarketKOSDAQ: 1,
}

// NaverListing scrapes the market-capitalisation listing on finance.naver.com.
type NaverListing struct {
	client
	concurrency int
	maxPages    int
}

// NewNaverListing creates a listing source. concurrency bounds parallel page
// fetches; maxPages caps pages per segment (0 = all).
func NewNaverListing(concurrency, maxPages int, opts ...Option) *NaverListing {
	if concurrency < 1 {
		concurrency = 1
	}
	return &NaverListing{
		client:      newClient(naverBaseURL, opts),
		concurrency: concurrency,
		maxPages:    maxPages,
	}
}

// Name returns the data source name.
func (n *NaverListing) Name() string { return "Naver Finance" }

// FetchListing returns every row of the requested segment. MarketAll lists
// KOSPI then KOSDAQ. Any page failure fails the whole listing.
func (n *NaverListing) FetchListing(ctx context.Context, market models.Market) ([]models.ListingRow, error) {
	var segments []models.Market
	switch market {
	case models.MarketAll:
		segments = []models.Market{models.MarketKOSPI, models.MarketKOSDAQ}
	case models.MarketKOSPI, models.MarketKOSDAQ:
		segments = []models.Market{market}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMarket, market)
	}

	var rows []models.ListingRow
	for _, seg := range segments {
		segRows, err := n.fetchSegment(ctx, seg)
		if err != nil {
			return nil, fmt.Errorf("naver listing %s: %w: %w", seg, ErrSourceUnavailable, err)
		}
		rows = append(rows, segRows...)
	}
	n.log.Info("listing fetched", zap.String("market", string(market)), zap.Int("rows", len(rows)))
	return rows, nil
}

// fetchSegment reads page 1 to learn the page count, then fetches the rest
// in parallel and concatenates them in page order.
func (n *NaverListing) fetchSegment(ctx context.Context, market models.Market) ([]models.ListingRow, error) {
	first, last, err := n.fetchPage(ctx, market, 1)
	if err != nil {
		return nil, err
	}
	if n.maxPages > 0 && last > n.maxPages {
		last = n.maxPages
	}
	if last <= 1 {
		return first, nil
	}

	pages := make([][]models.ListingRow, last+1)
	pages[1] = first

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.concurrency)
	for p := 2; p <= last; p++ {
		g.Go(func() error {
			rows, _, err := n.fetchPage(gctx, market, p)
			if err != nil {
				return fmt.Errorf("page %d: %w", p, err)
			}
			pages[p] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []models.ListingRow
	for _, rows := range pages {
		out = append(out, rows...)
	}
	return out, nil
}

func (n *NaverListing) fetchPage(ctx context.Context, market models.Market, page int) ([]models.ListingRow, int, error) {
	u := fmt.Sprintf("%s/sise/sise_market_sum.naver?sosok=%d&page=%d", n.baseURL, naverSosok[market], page)
	body, hdr, err := n.get(ctx, u, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, 0, err
	}
	defer body.Close()

	return parseListingPage(decodeBody(body, hdr), market)
}

// decodeBody converts an EUC-KR page to UTF-8 unless the server says otherwise.
func decodeBody(r io.Reader, hdr http.Header) io.Reader {
	ct := strings.ToLower(hdr.Get("Content-Type"))
	if strings.Contains(ct, "utf-8") {
		return r
	}
	return korean.EUCKR.NewDecoder().Reader(r)
}

// parseListingPage extracts rows and the last page number from one
// market-sum page. Columns are located by header text so that the user's
// column preferences on the site do not shift fields.
func parseListingPage(r io.Reader, market models.Market) ([]models.ListingRow, int, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, 0, fmt.Errorf("parse html: %w", err)
	}

	table := doc.Find("table.type_2").First()
	if table.Length() == 0 {
		return nil, 0, fmt.Errorf("listing table not found")
	}

	cols := map[string]int{}
	table.Find("th").Each(func(i int, th *goquery.Selection) {
		cols[strings.TrimSpace(th.Text())] = i
	})
	for _, h := range []string{colName, colClose, colChangePct, colVolume} {
		if _, ok := cols[h]; !ok {
			return nil, 0, fmt.Errorf("listing column %q not found", h)
		}
	}

	var rows []models.ListingRow
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		link := tr.Find(`a[href*="code="]`).First()
		if link.Length() == 0 {
			return
		}
		tds := tr.Find("td")
		cell := func(name string) string {
			return strings.Join(strings.Fields(tds.Eq(cols[name]).Text()), "")
		}
		rows = append(rows, models.ListingRow{
			Code:      codeFromHref(link.AttrOr("href", "")),
			Name:      strings.TrimSpace(link.Text()),
			Market:    market,
			Close:     cell(colClose),
			Volume:    cell(colVolume),
			ChangePct: cell(colChangePct),
		})
	})

	return rows, lastPage(doc), nil
}

// lastPage reads the "맨뒤" link; a page without one is the only page.
func lastPage(doc *goquery.Document) int {
	href, ok := doc.Find("td.pgRR a").First().Attr("href")
	if !ok {
		return 1
	}
	u, err := url.Parse(href)
	if err != nil {
		return 1
	}
	p, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || p < 1 {
		return 1
	}
	return p
}

func codeFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("code")
}
