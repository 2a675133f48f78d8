package sources

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/mindwell/buddy/config"
	"github.com/mindwell/buddy/internal/cache"
	"github.com/mindwell/buddy/internal/textmatch"
)

const (
	medlinePlusRateMax    = 80
	medlinePlusRateWindow = time.Minute
)

// Summary is one consumer health topic summary.
type Summary struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// MedlinePlusClient queries the consumer health topic search service. It is
// the single fallback when the manifest resolver comes up empty.
type MedlinePlusClient struct {
	cfg    config.MedlinePlusConfig
	http   *HTTPClient
	store  cache.Store
	logger *log.Logger
}

func NewMedlinePlusClient(cfg config.MedlinePlusConfig, store cache.Store, logger *log.Logger) *MedlinePlusClient {
	return &MedlinePlusClient{
		cfg:    cfg,
		http:   NewHTTPClient(cfg.Timeout, 0, 0),
		store:  store,
		logger: logger,
	}
}

type medlinePlusResponse struct {
	Documents []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Summary string `json:"summary"`
	} `json:"documents"`
}

// Lookup returns the first topic summary for topic, or false on a miss,
// failure or exhausted rate budget. Cached summaries do not consume budget.
func (c *MedlinePlusClient) Lookup(ctx context.Context, topic, callerKey string) (Summary, bool) {
	normalized := textmatch.Normalize(topic)
	if normalized == "" {
		return Summary{}, false
	}

	cacheKey := "medlineplus:topic:" + normalized
	var cached Summary
	if cache.GetJSON(ctx, c.store, cacheKey, &cached) {
		return cached, true
	}

	if d := c.store.RateLimit(ctx, "rl:medlineplus:"+callerKey, medlinePlusRateMax, medlinePlusRateWindow); !d.OK {
		c.logger.Printf("medlineplus rate limit hit for %s", callerKey)
		return Summary{}, false
	}

	reqURL := fmt.Sprintf("%s?db=healthTopics&rettype=brief&term=%s", c.cfg.BaseURL, url.QueryEscape(normalized))
	var resp medlinePlusResponse
	if err := c.http.DoJSON(ctx, "GET", reqURL, nil, nil, &resp); err != nil {
		c.logger.Printf("medlineplus lookup %q: %v", normalized, err)
		return Summary{}, false
	}
	if len(resp.Documents) == 0 {
		return Summary{}, false
	}

	doc := resp.Documents[0]
	summary := Summary{
		Title:   strings.TrimSpace(doc.Title),
		URL:     strings.TrimSpace(doc.URL),
		Snippet: strings.TrimSpace(doc.Summary),
	}
	if summary.Title == "" || summary.URL == "" {
		return Summary{}, false
	}

	cache.SetJSON(ctx, c.store, cacheKey, summary, c.cfg.CacheTTL)
	return summary, true
}
