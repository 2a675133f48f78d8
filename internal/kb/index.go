// Package kb builds and searches the internal knowledge index: one entry
// per citable page of the site, merged from the generated registries and
// filtered to routes the site actually serves.
package kb

import (
	"context"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mindwell/buddy/internal/registry"
	"github.com/mindwell/buddy/internal/textmatch"
)

// DefaultTTL is how long a built index stays fresh.
const DefaultTTL = 6 * time.Hour

// Page is one citable internal page.
type Page struct {
	Route        string
	Title        string
	Summary      string
	Tags         []string
	KeySections  []string
	EvidenceRefs []string
}

// Hit pairs a page with its match distance; 0 is exact, lower is better.
type Hit struct {
	Page  Page
	Score float64
}

// Coverage classifies how well the index answers a query.
type Coverage string

const (
	CoverageHigh    Coverage = "high"
	CoveragePartial Coverage = "partial"
	CoverageNone    Coverage = "none"
)

// Result is the outcome of one search.
type Result struct {
	Hits     []Hit
	Coverage Coverage
}

// SearchParams carries the tunable weights and thresholds. The defaults are
// the empirically chosen production values.
type SearchParams struct {
	TitleWeight       float64
	SummaryWeight     float64
	TagsWeight        float64
	KeySectionsWeight float64
	HighThreshold     float64
	PartialThreshold  float64
}

// DefaultSearchParams returns the production weights and thresholds.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		TitleWeight:       0.45,
		SummaryWeight:     0.25,
		TagsWeight:        0.2,
		KeySectionsWeight: 0.1,
		HighThreshold:     HighCoverageThreshold,
		PartialThreshold:  PartialCoverageThreshold,
	}
}

// Index is the process-wide knowledge index. Reads vastly outnumber
// rebuilds, so the built pages sit behind an RWMutex and rebuilds are
// deduplicated with singleflight.
type Index struct {
	source registry.Source
	routes registry.AllowedRoutes
	params SearchParams
	ttl    time.Duration
	now    func() time.Time
	logger *log.Logger

	sf singleflight.Group

	mu      sync.RWMutex
	pages   []Page
	builtAt time.Time
}

// Option configures an Index.
type Option func(*Index)

// WithTTL overrides the rebuild interval.
func WithTTL(ttl time.Duration) Option {
	return func(x *Index) {
		if ttl > 0 {
			x.ttl = ttl
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(x *Index) { x.now = now }
}

// WithSearchParams overrides the default weights and thresholds.
func WithSearchParams(p SearchParams) Option {
	return func(x *Index) { x.params = p }
}

// New returns an index over the given registries. The first search builds it.
func New(source registry.Source, routes registry.AllowedRoutes, logger *log.Logger, opts ...Option) *Index {
	x := &Index{
		source: source,
		routes: routes,
		params: DefaultSearchParams(),
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Pages returns the current index contents, rebuilding when stale.
func (x *Index) Pages(ctx context.Context) ([]Page, error) {
	x.mu.RLock()
	fresh := x.pages != nil && x.now().Sub(x.builtAt) < x.ttl
	pages := x.pages
	x.mu.RUnlock()
	if fresh {
		return pages, nil
	}

	built, err, _ := x.sf.Do("build", func() (any, error) {
		pages := x.build()
		x.mu.Lock()
		x.pages = pages
		x.builtAt = x.now()
		x.mu.Unlock()
		x.logger.Printf("index built: %d pages", len(pages))
		return pages, nil
	})
	if err != nil {
		return nil, err
	}
	return built.([]Page), nil
}

// Refresh forces a rebuild regardless of TTL.
func (x *Index) Refresh(ctx context.Context) {
	x.mu.Lock()
	x.builtAt = time.Time{}
	x.mu.Unlock()
	if _, err := x.Pages(ctx); err != nil {
		x.logger.Printf("index refresh: %v", err)
	}
}

// build merges the three registries into one page per route. Page assistant
// descriptors are authoritative; the route inventory backfills pages they
// miss; curated topic metadata overrides titles and summaries and merges
// tags and key sections. Routes outside the allowed set are dropped so the
// index can never cite an unroutable page.
func (x *Index) build() []Page {
	byRoute := make(map[string]*Page)

	for _, pd := range x.source.PageDescriptors() {
		if !x.routes.Allowed(pd.Route) {
			continue
		}
		if _, dup := byRoute[pd.Route]; dup {
			continue
		}
		byRoute[pd.Route] = &Page{
			Route:        pd.Route,
			Title:        pd.Title,
			Summary:      pd.Summary,
			Tags:         append([]string(nil), pd.Tags...),
			KeySections:  append([]string(nil), pd.KeySections...),
			EvidenceRefs: append([]string(nil), pd.EvidenceRefs...),
		}
	}

	for _, ri := range x.source.RouteInventory() {
		if !x.routes.Allowed(ri.Route) {
			continue
		}
		if _, exists := byRoute[ri.Route]; exists {
			continue
		}
		byRoute[ri.Route] = &Page{
			Route:   ri.Route,
			Title:   ri.Title,
			Summary: ri.Purpose,
		}
	}

	for _, tm := range x.source.TopicMetadata() {
		page, exists := byRoute[tm.Route]
		if !exists {
			continue
		}
		if tm.Title != "" {
			page.Title = tm.Title
		}
		if tm.Summary != "" {
			page.Summary = tm.Summary
		}
		page.Tags = mergeUnique(page.Tags, tm.Tags)
		page.KeySections = mergeUnique(page.KeySections, tm.KeySections)
	}

	pages := make([]Page, 0, len(byRoute))
	for _, page := range byRoute {
		pages = append(pages, *page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Route < pages[j].Route })
	return pages
}

// Search expands the question into topic candidates and runs the weighted
// fuzzy match once per candidate, keeping the best score per route.
func (x *Index) Search(ctx context.Context, question string, limit int) (Result, error) {
	pages, err := x.Pages(ctx)
	if err != nil {
		return Result{Coverage: CoverageNone}, err
	}
	if limit <= 0 {
		limit = 5
	}

	candidates := textmatch.TopicCandidates(question)
	if len(candidates) == 0 {
		return Result{Coverage: CoverageNone}, nil
	}

	bestByRoute := make(map[string]float64)
	pageByRoute := make(map[string]Page, len(pages))
	for _, candidate := range candidates {
		pattern := textmatch.Normalize(candidate)
		for _, page := range pages {
			score, matched := x.scorePage(pattern, page)
			if !matched {
				continue
			}
			if prev, seen := bestByRoute[page.Route]; !seen || score < prev {
				bestByRoute[page.Route] = score
				pageByRoute[page.Route] = page
			}
		}
	}

	hits := make([]Hit, 0, len(bestByRoute))
	for route, score := range bestByRoute {
		hits = append(hits, Hit{Page: pageByRoute[route], Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score < hits[j].Score
		}
		return hits[i].Page.Route < hits[j].Page.Route
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return Result{Hits: hits, Coverage: x.classify(hits)}, nil
}

// scorePage combines the per-field distances into one page score. The
// second return is false when no field matched at all.
func (x *Index) scorePage(pattern string, page Page) (float64, bool) {
	title := fieldDistance(pattern, textmatch.Normalize(page.Title))
	summary := fieldDistance(pattern, textmatch.Normalize(page.Summary))
	tags := bestDistance(pattern, normalizeAll(page.Tags, textmatch.Normalize))
	sections := bestDistance(pattern, normalizeAll(page.KeySections, textmatch.Normalize))

	if title >= 1 && summary >= 1 && tags >= 1 && sections >= 1 {
		return 1, false
	}

	score := math.Pow(floor(title), x.params.TitleWeight) *
		math.Pow(floor(summary), x.params.SummaryWeight) *
		math.Pow(floor(tags), x.params.TagsWeight) *
		math.Pow(floor(sections), x.params.KeySectionsWeight)
	return score, true
}

func (x *Index) classify(hits []Hit) Coverage {
	if len(hits) == 0 {
		return CoverageNone
	}
	best := hits[0].Score
	switch {
	case best <= x.params.HighThreshold:
		return CoverageHigh
	case best <= x.params.PartialThreshold:
		return CoveragePartial
	default:
		return CoverageNone
	}
}

func floor(d float64) float64 {
	if d < exactEpsilon {
		return exactEpsilon
	}
	return d
}

func mergeUnique(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	for _, v := range base {
		seen[v] = true
	}
	for _, v := range extra {
		if !seen[v] {
			base = append(base, v)
			seen[v] = true
		}
	}
	return base
}
