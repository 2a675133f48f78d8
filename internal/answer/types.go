// Package answer is the request pipeline: safety check, intent routing,
// internal search, conditional external fallback, optional research
// augmentation and final assembly. It never returns an error for upstream
// failures; every outcome is a structurally complete Response.
package answer

import (
	"context"

	"github.com/mindwell/buddy/internal/kb"
	"github.com/mindwell/buddy/internal/linkcheck"
	"github.com/mindwell/buddy/internal/sources"
)

// Request is one inbound question with its caller context.
type Request struct {
	Question     string `json:"question"`
	Pathname     string `json:"pathname,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	CallerKey    string `json:"-"`
	RequestID    string `json:"-"`
}

// Section is one heading/text block of the assembled answer.
type Section struct {
	Heading string `json:"heading"`
	Text    string `json:"text"`
}

// SafetyNote carries the classifier verdict into the response.
type SafetyNote struct {
	Level   string `json:"level"`
	Message string `json:"message,omitempty"`
}

// Answer is the assembled answer body.
type Answer struct {
	Title    string     `json:"title"`
	Summary  string     `json:"summary"`
	Sections []Section  `json:"sections"`
	Safety   SafetyNote `json:"safety"`
}

// Citation is one cited source. Provider is "internal", "nhs",
// "medlineplus" or "pubmed".
type Citation struct {
	Provider     string `json:"provider"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	LastReviewed string `json:"lastReviewed,omitempty"`
}

// VerifiedLinks summarizes external link validation for this request.
type VerifiedLinks struct {
	Total   int      `json:"totalLinks"`
	Valid   int      `json:"validLinks"`
	Removed int      `json:"removedLinks"`
	URLs    []string `json:"removed,omitempty"`
}

// Meta is the per-request diagnostic block. It is not persisted anywhere.
type Meta struct {
	UsedInternal     bool             `json:"usedInternal"`
	UsedExternal     bool             `json:"usedExternal"`
	InternalCoverage string           `json:"internalCoverage"`
	UsedProviders    []string         `json:"usedProviders"`
	VerifiedLinks    VerifiedLinks    `json:"verifiedLinks"`
	TimingsMs        map[string]int64 `json:"timingsMs"`
	Cache            map[string]bool  `json:"cache"`
	Warnings         []string         `json:"warnings,omitempty"`
	Intent           string           `json:"intent,omitempty"`
	RequestID        string           `json:"requestId,omitempty"`
}

// Response is the complete result of one Ask call.
type Response struct {
	Answer    Answer     `json:"answer"`
	Citations []Citation `json:"citations"`
	Meta      Meta       `json:"meta"`
}

const (
	ProviderInternal    = "internal"
	ProviderNHS         = "nhs"
	ProviderMedlinePlus = "medlineplus"
	ProviderPubMed      = "pubmed"
)

// KnowledgeSearcher is the slice of the internal index the pipeline needs.
type KnowledgeSearcher interface {
	Search(ctx context.Context, question string, limit int) (kb.Result, error)
}

// ManifestResolver resolves a topic against a national content manifest and
// fetches the matched detail page.
type ManifestResolver interface {
	ResolveTopic(ctx context.Context, question, callerKey string) (sources.ManifestEntry, bool)
	FetchResolvedPage(ctx context.Context, entry sources.ManifestEntry) (sources.ResolvedPage, bool)
}

// SummaryClient is the single-shot consumer health topic fallback.
type SummaryClient interface {
	Lookup(ctx context.Context, topic, callerKey string) (sources.Summary, bool)
}

// LiteratureClient fetches research citations for a topic.
type LiteratureClient interface {
	Citations(ctx context.Context, topic, callerKey string, limit int) []sources.Citation
}

// LinkChecker verifies an external URL before it may be cited.
type LinkChecker interface {
	Validate(ctx context.Context, rawURL string) linkcheck.Result
}
