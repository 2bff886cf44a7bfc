package datasource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/mmcdole/gofeed"

	"github.com/seenimoa/stockpilot/internal/infra"
	"github.com/seenimoa/stockpilot/pkg/models"
)

const newsSource = "news"

// DefaultFeedURL is the Google News search RSS endpoint.
const DefaultFeedURL = "https://news.google.com/rss/search"

// News implements NewsSource over a search RSS feed.
type News struct {
	feedURL  string
	lookback time.Duration
	client   *resty.Client
	parser   *gofeed.Parser
	cache    *infra.Cache[[]models.NewsItem]
	limiter  *infra.RateLimiter
	now      func() time.Time
}

// NewsOption configures a News source.
type NewsOption func(*News)

// WithFeedURL overrides the search endpoint.
func WithFeedURL(u string) NewsOption {
	return func(n *News) {
		if u != "" {
			n.feedURL = u
		}
	}
}

// WithLookback drops articles older than d. Zero keeps everything.
func WithLookback(d time.Duration) NewsOption {
	return func(n *News) { n.lookback = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) NewsOption {
	return func(n *News) {
		if ua != "" {
			n.client.SetHeader("User-Agent", ua)
		}
	}
}

// WithNewsTimeout bounds each feed request.
func WithNewsTimeout(d time.Duration) NewsOption {
	return func(n *News) { n.client.SetTimeout(d) }
}

// WithNewsRetries sets how often a 5xx response is retried.
func WithNewsRetries(n int) NewsOption {
	return func(nw *News) { nw.client.SetRetryCount(n) }
}

// WithNewsCacheTTL sets how long a query result is reused.
func WithNewsCacheTTL(ttl time.Duration) NewsOption {
	return func(n *News) { n.cache = infra.NewCache[[]models.NewsItem](ttl) }
}

// WithNewsClock replaces time.Now, for tests.
func WithNewsClock(now func() time.Time) NewsOption {
	return func(n *News) { n.now = now }
}

// NewNews creates a news source with a 7-day lookback.
func NewNews(opts ...NewsOption) *News {
	client := resty.New().
		SetTimeout(30*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("User-Agent", DefaultUserAgent).
		SetHeader("Accept", "application/rss+xml, application/xml, text/xml, */*")
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err == nil && r.StatusCode() >= 500
	})

	n := &News{
		feedURL:  DefaultFeedURL,
		lookback: 7 * 24 * time.Hour,
		client:   client,
		parser:   gofeed.NewParser(),
		cache:    infra.NewCache[[]models.NewsItem](10 * time.Minute),
		limiter:  infra.NewRateLimiter(2, time.Second),
		now:      time.Now,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Name returns the source name.
func (n *News) Name() string { return newsSource }

// Latest searches the feed for "<query> stock" and returns at most limit
// distinct headlines inside the lookback window, newest first.
func (n *News) Latest(ctx context.Context, symbol, query string, limit int) ([]models.NewsItem, error) {
	symbol = NormalizeSymbol(symbol)
	if strings.TrimSpace(query) == "" {
		query = symbol
	}
	cacheKey := fmt.Sprintf("%s:%s:%d", symbol, query, limit)
	if cached, ok := n.cache.Get(cacheKey); ok {
		return cached, nil
	}

	items, err := n.fetch(ctx, symbol, query)
	if err != nil {
		return nil, err
	}

	items = n.filter(items)
	sortNewsByDate(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	n.cache.Set(cacheKey, items)
	return items, nil
}

func (n *News) fetch(ctx context.Context, symbol, query string) ([]models.NewsItem, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return nil, unavailable(newsSource, symbol, err)
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":    query + " stock",
			"hl":   "en-US",
			"gl":   "US",
			"ceid": "US:en",
		}).
		Get(n.feedURL)
	if err != nil {
		return nil, unavailable(newsSource, symbol, err)
	}
	if resp.StatusCode() >= 400 {
		return nil, unavailable(newsSource, symbol, fmt.Errorf("HTTP %d", resp.StatusCode()))
	}

	feed, err := n.parser.ParseString(string(resp.Body()))
	if err != nil {
		return nil, unavailable(newsSource, symbol, fmt.Errorf("parse feed: %w", err))
	}

	items := make([]models.NewsItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		headline, source := splitHeadline(it.Title)
		if it.Author != nil && it.Author.Name != "" {
			source = it.Author.Name
		}
		item := models.NewsItem{
			Headline: headline,
			Source:   source,
			URL:      it.Link,
			Summary:  cleanHTML(it.Description),
		}
		if it.PublishedParsed != nil {
			item.PublishedAt = it.PublishedParsed.UTC()
		} else if it.UpdatedParsed != nil {
			item.PublishedAt = it.UpdatedParsed.UTC()
		}
		items = append(items, item)
	}
	return items, nil
}

// filter drops empty and repeated headlines and anything older than the
// lookback window. Undated items are kept.
func (n *News) filter(items []models.NewsItem) []models.NewsItem {
	var cutoff time.Time
	if n.lookback > 0 {
		cutoff = n.now().Add(-n.lookback)
	}
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		key := strings.ToLower(strings.TrimSpace(it.Headline))
		if key == "" || seen[key] {
			continue
		}
		if !cutoff.IsZero() && !it.PublishedAt.IsZero() && it.PublishedAt.Before(cutoff) {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

// splitHeadline separates the "Title - Publisher" suffix search feeds append.
func splitHeadline(title string) (headline, source string) {
	title = strings.TrimSpace(title)
	if i := strings.LastIndex(title, " - "); i > 0 {
		return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+3:])
	}
	return title, "Unknown"
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

// sortNewsByDate sorts items by published date (newest first).
// Insertion sort keeps feed order for equal timestamps.
func sortNewsByDate(items []models.NewsItem) {
	for i := 1; i < len(items); i++ {
		key := items[i]
		j := i - 1
		for j >= 0 && items[j].PublishedAt.Before(key.PublishedAt) {
			items[j+1] = items[j]
			j--
		}
		items[j+1] = key
	}
}
