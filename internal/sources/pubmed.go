package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mindwell/buddy/config"
	"github.com/mindwell/buddy/internal/cache"
	"github.com/mindwell/buddy/internal/textmatch"
)

const (
	pubmedRateMax    = 3
	pubmedRateWindow = time.Second
	pubmedMaxResults = 3

	pubmedArticleBase = "https://pubmed.ncbi.nlm.nih.gov/"
)

// Citation is one biomedical literature reference.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Year  int    `json:"year,omitempty"`
}

// PubMedClient runs the two-step literature protocol: search by relevance
// for identifiers, then batch-summarize them.
type PubMedClient struct {
	cfg    config.PubMedConfig
	http   *HTTPClient
	store  cache.Store
	logger *log.Logger
}

func NewPubMedClient(cfg config.PubMedConfig, store cache.Store, logger *log.Logger) *PubMedClient {
	return &PubMedClient{
		cfg:    cfg,
		http:   NewHTTPClient(cfg.Timeout, 0, 0),
		store:  store,
		logger: logger,
	}
}

type esearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

// esummaryResponse carries one record per identifier, keyed by the
// identifier itself, plus a "uids" list giving the order.
type esummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

type esummaryRecord struct {
	Title   string `json:"title"`
	PubDate string `json:"pubdate"`
}

// Citations returns up to limit literature references for topic. Failures
// and exhausted rate budgets return nil; the research section is optional.
func (c *PubMedClient) Citations(ctx context.Context, topic, callerKey string, limit int) []Citation {
	normalized := textmatch.Normalize(topic)
	if normalized == "" {
		return nil
	}
	if limit <= 0 || limit > pubmedMaxResults {
		limit = pubmedMaxResults
	}

	cacheKey := fmt.Sprintf("pubmed:topic:%s:%d", normalized, limit)
	var cached []Citation
	if cache.GetJSON(ctx, c.store, cacheKey, &cached) {
		return cached
	}

	ids := c.search(ctx, normalized, callerKey, limit)
	if len(ids) == 0 {
		return nil
	}
	citations := c.summarize(ctx, ids, callerKey)
	if len(citations) == 0 {
		return nil
	}

	cache.SetJSON(ctx, c.store, cacheKey, citations, c.cfg.CacheTTL)
	return citations
}

func (c *PubMedClient) allow(ctx context.Context, callerKey string) bool {
	d := c.store.RateLimit(ctx, "rl:pubmed:"+callerKey, pubmedRateMax, pubmedRateWindow)
	if !d.OK {
		c.logger.Printf("pubmed rate limit hit for %s", callerKey)
	}
	return d.OK
}

func (c *PubMedClient) search(ctx context.Context, term, callerKey string, limit int) []string {
	if !c.allow(ctx, callerKey) {
		return nil
	}
	reqURL := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&retmode=json&sort=relevance&retmax=%d&term=%s",
		c.cfg.BaseURL, limit, url.QueryEscape(term))
	var resp esearchResponse
	if err := c.http.DoJSON(ctx, "GET", reqURL, nil, nil, &resp); err != nil {
		c.logger.Printf("pubmed esearch %q: %v", term, err)
		return nil
	}
	ids := resp.Result.IDList
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func (c *PubMedClient) summarize(ctx context.Context, ids []string, callerKey string) []Citation {
	if !c.allow(ctx, callerKey) {
		return nil
	}
	reqURL := fmt.Sprintf("%s/esummary.fcgi?db=pubmed&retmode=json&id=%s",
		c.cfg.BaseURL, url.QueryEscape(strings.Join(ids, ",")))
	var resp esummaryResponse
	if err := c.http.DoJSON(ctx, "GET", reqURL, nil, nil, &resp); err != nil {
		c.logger.Printf("pubmed esummary: %v", err)
		return nil
	}

	var citations []Citation
	for _, id := range ids {
		raw, ok := resp.Result[id]
		if !ok {
			continue
		}
		var rec esummaryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		title := strings.TrimSpace(rec.Title)
		if title == "" {
			continue
		}
		citations = append(citations, Citation{
			Title: title,
			URL:   pubmedArticleBase + id + "/",
			Year:  yearOf(rec.PubDate),
		})
	}
	return citations
}

// yearOf extracts the leading year from pubdate values like "2021 Jan 5".
func yearOf(pubdate string) int {
	fields := strings.Fields(pubdate)
	if len(fields) == 0 {
		return 0
	}
	year, err := strconv.Atoi(fields[0])
	if err != nil || year < 1800 || year > 2200 {
		return 0
	}
	return year
}
