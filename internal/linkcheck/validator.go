// Package linkcheck verifies that an external URL is reachable and serves
// content worth citing. Nothing is ever cited on trust: every external link
// passes through here first.
package linkcheck

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mindwell/buddy/internal/cache"
)

const (
	// DefaultTTL is how long a verdict is reused for the same URL.
	DefaultTTL = 6 * time.Hour

	// snippetLimit bounds the fallback retrieval; not-found markers show
	// up well within the first 20KB of a page.
	snippetLimit = 20 * 1024
)

// acceptableContentTypes are the media types a citation may point at.
var acceptableContentTypes = []string{
	"text/html",
	"application/xhtml+xml",
	"application/json",
	"text/plain",
}

// notFoundMarkers betray a soft 404: a page served with status 200 whose
// body says the content is gone.
var notFoundMarkers = []string{
	"404",
	"page not found",
	"does not exist",
	"not available",
	"410",
	"gone",
}

// Result is a validation verdict.
type Result struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Validator probes URLs in two tiers: a cheap HEAD first, then a bounded
// ranged GET. Many hosts reject HEAD but serve normal content on GET, so a
// failed probe alone never condemns a URL.
type Validator struct {
	client    *http.Client
	store     cache.Store
	ttl       time.Duration
	userAgent string
	logger    *log.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithTTL overrides the verdict cache duration.
func WithTTL(ttl time.Duration) Option {
	return func(v *Validator) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithHTTPClient injects the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) { v.client = c }
}

// New returns a Validator with the given verdict cache.
func New(store cache.Store, timeout time.Duration, userAgent string, logger *log.Logger, opts ...Option) *Validator {
	if timeout == 0 {
		timeout = 8 * time.Second
	}
	if userAgent == "" {
		userAgent = "buddy-link-check/1.0"
	}
	v := &Validator{
		client:    &http.Client{Timeout: timeout},
		store:     store,
		ttl:       DefaultTTL,
		userAgent: userAgent,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks rawURL and caches the verdict.
func (v *Validator) Validate(ctx context.Context, rawURL string) Result {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Result{OK: false, Reason: "not an http(s) url"}
	}

	cacheKey := "link:" + rawURL
	var cached Result
	if cache.GetJSON(ctx, v.store, cacheKey, &cached) {
		return cached
	}

	result := v.probe(ctx, rawURL)
	cache.SetJSON(ctx, v.store, cacheKey, result, v.ttl)
	return result
}

func (v *Validator) probe(ctx context.Context, rawURL string) Result {
	if res, conclusive := v.headProbe(ctx, rawURL); conclusive {
		return res
	}
	return v.fetchProbe(ctx, rawURL)
}

// headProbe is the cheap first tier. It can only accept: any kind of
// failure falls through to the retrieval tier, because hosts routinely
// block HEAD while serving GET normally.
func (v *Validator) headProbe(ctx context.Context, rawURL string) (Result, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return Result{}, false
	}
	req.Header.Set("User-Agent", v.userAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return Result{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, false
	}
	if !acceptableContentType(resp.Header.Get("Content-Type")) {
		return Result{}, false
	}
	return Result{OK: true, Status: resp.StatusCode}, true
}

// fetchProbe retrieves the first part of the document and inspects it.
func (v *Validator) fetchProbe(ctx context.Context, rawURL string) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{OK: false, Reason: "invalid request"}
	}
	req.Header.Set("User-Agent", v.userAgent)
	req.Header.Set("Range", "bytes=0-20479")

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Printf("link fetch %s: %v", rawURL, err)
		return Result{OK: false, Reason: "unreachable"}
	}
	defer resp.Body.Close()

	// 206 is the ranged success; plain 200 means the host ignored Range.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{OK: false, Status: resp.StatusCode, Reason: "non-success status"}
	}

	contentType := resp.Header.Get("Content-Type")
	if !acceptableContentType(contentType) {
		return Result{OK: false, Status: resp.StatusCode, Reason: "unacceptable content type"}
	}

	if strings.Contains(contentType, "text/html") {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
		if marker := findNotFoundMarker(string(snippet)); marker != "" {
			return Result{OK: false, Status: resp.StatusCode, Reason: "page reports not found (" + marker + ")"}
		}
	}

	return Result{OK: true, Status: resp.StatusCode}
}

func acceptableContentType(contentType string) bool {
	contentType = strings.ToLower(contentType)
	for _, acceptable := range acceptableContentTypes {
		if strings.Contains(contentType, acceptable) {
			return true
		}
	}
	return false
}

func findNotFoundMarker(snippet string) string {
	lowered := strings.ToLower(snippet)
	for _, marker := range notFoundMarkers {
		if strings.Contains(lowered, marker) {
			return marker
		}
	}
	return ""
}
