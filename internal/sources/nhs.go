package sources

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mindwell/buddy/config"
	"github.com/mindwell/buddy/internal/cache"
	"github.com/mindwell/buddy/internal/textmatch"
)

const (
	manifestMaxPages = 20

	// minManifestScore is the empirically chosen acceptance cutoff for a
	// manifest match; below it the resolver reports no match.
	minManifestScore = 60

	boostConditions = 20
	boostMedicines  = 10
	boostLiveWell   = 10
)

// ManifestEntry is one item of the national health content catalog.
type ManifestEntry struct {
	Title       string `json:"title"`
	APIURL      string `json:"apiUrl"`
	WebURL      string `json:"webUrl,omitempty"`
	Description string `json:"description,omitempty"`
}

// ResolvedPage is the flattened detail document behind a manifest entry.
type ResolvedPage struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	WebURL       string `json:"webUrl,omitempty"`
	LastReviewed string `json:"lastReviewed,omitempty"`
}

// NHSResolver resolves a topic against a paginated content manifest and
// fetches the matched page. The manifest itself is the expensive part, so
// it is cached for a day; per-caller rate limiting is unnecessary on top
// of that.
type NHSResolver struct {
	cfg    config.NHSConfig
	http   *HTTPClient
	store  cache.Store
	logger *log.Logger

	stripOnce sync.Once
	strip     *bluemonday.Policy
}

func NewNHSResolver(cfg config.NHSConfig, store cache.Store, logger *log.Logger) *NHSResolver {
	return &NHSResolver{
		cfg:    cfg,
		http:   NewHTTPClient(cfg.Timeout, 0, 0),
		store:  store,
		logger: logger,
	}
}

// manifestResponse is the shape of one manifest page.
type manifestResponse struct {
	Links []struct {
		Name        string `json:"name"`
		URL         string `json:"url"`
		WebURL      string `json:"webUrl"`
		Description string `json:"description"`
	} `json:"significantLink"`
}

// Manifest returns the deduplicated catalog, paginating the manifest
// endpoint up to a bounded page count. Failures surface as an empty slice.
func (r *NHSResolver) Manifest(ctx context.Context) []ManifestEntry {
	const cacheKey = "nhs:manifest"

	var cached []ManifestEntry
	if cache.GetJSON(ctx, r.store, cacheKey, &cached) {
		return cached
	}

	seen := make(map[string]bool)
	var entries []ManifestEntry
	headers := map[string]string{}
	if r.cfg.APIKey != "" {
		headers["subscription-key"] = r.cfg.APIKey
	}

	for page := 1; page <= manifestMaxPages; page++ {
		var resp manifestResponse
		url := fmt.Sprintf("%s?page=%d", r.cfg.BaseURL, page)
		if err := r.http.DoJSON(ctx, "GET", url, headers, nil, &resp); err != nil {
			r.logger.Printf("nhs manifest page %d: %v", page, err)
			break
		}
		if len(resp.Links) == 0 {
			break
		}
		for _, link := range resp.Links {
			if link.URL == "" || seen[link.URL] {
				continue
			}
			seen[link.URL] = true
			entries = append(entries, ManifestEntry{
				Title:       strings.TrimSpace(link.Name),
				APIURL:      link.URL,
				WebURL:      link.WebURL,
				Description: r.plainText(link.Description),
			})
		}
	}

	if len(entries) > 0 {
		cache.SetJSON(ctx, r.store, cacheKey, entries, r.cfg.ManifestTTL)
	}
	return entries
}

// ResolveTopic scores every manifest entry against the question's topic
// candidates and returns the best match, or false when nothing clears the
// acceptance cutoff.
func (r *NHSResolver) ResolveTopic(ctx context.Context, question, callerKey string) (ManifestEntry, bool) {
	candidates := textmatch.TopicCandidates(question)
	if len(candidates) == 0 {
		return ManifestEntry{}, false
	}

	entries := r.Manifest(ctx)
	if len(entries) == 0 {
		return ManifestEntry{}, false
	}

	var best ManifestEntry
	bestScore := 0
	for _, entry := range entries {
		score := textmatch.Score(entry.Title+" "+entry.Description+" "+entry.APIURL, candidates)
		if score == 0 {
			continue
		}
		// Content categories with higher-value pages rank above generic
		// matches of the same text score.
		if strings.Contains(entry.APIURL, "/conditions/") {
			score += boostConditions
		}
		if strings.Contains(entry.APIURL, "/medicines/") {
			score += boostMedicines
		}
		if strings.Contains(entry.APIURL, "/live-well/") {
			score += boostLiveWell
		}
		if score > bestScore {
			bestScore = score
			best = entry
		}
	}

	if bestScore < minManifestScore {
		return ManifestEntry{}, false
	}
	return best, true
}

// pageResponse is the detail document with the expanded modules view.
type pageResponse struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	LastReviewed string `json:"lastReviewed"`
	HasPart      []struct {
		Headline string `json:"headline"`
		Text     string `json:"text"`
	} `json:"hasPart"`
}

// FetchResolvedPage fetches the entry's detail document and flattens it to
// title plus body text. Successes are cached for a day.
func (r *NHSResolver) FetchResolvedPage(ctx context.Context, entry ManifestEntry) (ResolvedPage, bool) {
	if entry.APIURL == "" {
		return ResolvedPage{}, false
	}

	cacheKey := "nhs:page:" + entry.APIURL
	var cached ResolvedPage
	if cache.GetJSON(ctx, r.store, cacheKey, &cached) {
		return cached, true
	}

	headers := map[string]string{}
	if r.cfg.APIKey != "" {
		headers["subscription-key"] = r.cfg.APIKey
	}

	var resp pageResponse
	url := entry.APIURL + "?modules=expanded"
	if err := r.http.DoJSON(ctx, "GET", url, headers, nil, &resp); err != nil {
		r.logger.Printf("nhs page %s: %v", entry.APIURL, err)
		return ResolvedPage{}, false
	}

	var body strings.Builder
	if desc := r.plainText(resp.Description); desc != "" {
		body.WriteString(desc)
	}
	for _, part := range resp.HasPart {
		text := r.plainText(part.Text)
		if text == "" {
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n\n")
		}
		if headline := strings.TrimSpace(part.Headline); headline != "" {
			body.WriteString(headline + ": ")
		}
		body.WriteString(text)
	}
	if body.Len() == 0 {
		return ResolvedPage{}, false
	}

	title := strings.TrimSpace(resp.Name)
	if title == "" {
		title = entry.Title
	}
	webURL := resp.URL
	if webURL == "" {
		webURL = entry.WebURL
	}

	page := ResolvedPage{
		Title:        title,
		Body:         body.String(),
		WebURL:       webURL,
		LastReviewed: resp.LastReviewed,
	}
	cache.SetJSON(ctx, r.store, cacheKey, page, r.cfg.PageTTL)
	return page, true
}

// plainText strips the HTML the syndication API embeds in text fields.
func (r *NHSResolver) plainText(s string) string {
	r.stripOnce.Do(func() {
		r.strip = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(r.strip.Sanitize(s))
}
