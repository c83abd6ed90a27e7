package datasource

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/chartscout/internal/infra"
	"github.com/seenimoa/chartscout/pkg/models"
)

// News fetches market headlines from a set of RSS feeds.
type News struct {
	client
	feeds  []string
	cache  *infra.Cache[[]models.NewsArticle]
	parser *gofeed.Parser
}

// NewNews creates a headline source over the given feed URLs. Results are
// cached for cacheTTL (0 disables caching).
func NewNews(feeds []string, cacheTTL time.Duration, opts ...Option) *News {
	n := &News{
		client: newClient("", opts),
		feeds:  feeds,
		cache:  infra.NewCache[[]models.NewsArticle](cacheTTL),
		parser: gofeed.NewParser(),
	}
	n.parser.Client = n.http
	n.parser.UserAgent = n.userAgent
	return n
}

// Name returns the data source name.
func (n *News) Name() string { return "RSS News" }

// FetchHeadlines returns up to limit headlines across all feeds, newest
// first, with duplicate titles removed. Failing feeds are skipped; the call
// fails only when every feed fails.
func (n *News) FetchHeadlines(ctx context.Context, limit int) ([]models.NewsArticle, error) {
	cacheKey := fmt.Sprintf("headlines:%d", limit)
	if cached, ok := n.cache.Get(cacheKey); ok {
		return cached, nil
	}
	if len(n.feeds) == 0 {
		return nil, fmt.Errorf("%w: no news feeds configured", ErrSourceUnavailable)
	}

	perFeed := make([][]models.NewsArticle, len(n.feeds))
	errs := make([]error, len(n.feeds))

	var g errgroup.Group
	g.SetLimit(4)
	for i, feedURL := range n.feeds {
		g.Go(func() error {
			perFeed[i], errs[i] = n.fetchRSS(ctx, feedURL)
			if errs[i] != nil {
				n.log.Warn("rss feed failed", zap.String("feed", feedURL), zap.Error(errs[i]))
			}
			// Non-critical: a failed feed never cancels the others.
			return nil
		})
	}
	_ = g.Wait()

	var all []models.NewsArticle
	failed := 0
	for i := range n.feeds {
		if errs[i] != nil {
			failed++
			continue
		}
		all = append(all, perFeed[i]...)
	}
	if failed == len(n.feeds) {
		return nil, fmt.Errorf("%w: all %d news feeds failed: %w", ErrSourceUnavailable, failed, errs[0])
	}

	all = dedupeByTitle(all)
	slices.SortStableFunc(all, func(a, b models.NewsArticle) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	n.cache.Set(cacheKey, all)
	return all, nil
}

// fetchRSS parses an RSS feed and returns articles.
func (n *News) fetchRSS(ctx context.Context, feedURL string) ([]models.NewsArticle, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feed, err := n.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse RSS %s: %w", feedURL, err)
	}

	source := strings.TrimSpace(feed.Title)
	if source == "" {
		source = hostOf(feedURL)
	}

	articles := make([]models.NewsArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		a := models.NewsArticle{
			Title:   title,
			URL:     item.Link,
			Source:  source,
			Summary: cleanHTML(item.Description),
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = *item.PublishedParsed
		}
		articles = append(articles, a)
	}
	return articles, nil
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func dedupeByTitle(in []models.NewsArticle) []models.NewsArticle {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, a := range in {
		key := strings.ToLower(a.Title)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return strings.TrimPrefix(u.Host, "www.")
}
