package answer

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mindwell/buddy/internal/cache"
	"github.com/mindwell/buddy/internal/intent"
	"github.com/mindwell/buddy/internal/kb"
	"github.com/mindwell/buddy/internal/registry"
	"github.com/mindwell/buddy/internal/safety"
	"github.com/mindwell/buddy/internal/textmatch"
)

const (
	searchLimit          = 5
	maxInternalCitations = 3
	maxResearchCitations = 3
	overviewSnippetRunes = 480
)

var researchPattern = regexp.MustCompile(`(?i)\b(study|studies|evidence|research|trial|paper|meta-analysis)\b`)

var answerTracer trace.Tracer = otel.Tracer("buddy/internal/answer")

// Deps are the collaborators the pipeline sequences. All of them are
// consumed through narrow interfaces so tests can substitute fakes.
type Deps struct {
	Safety     safety.Classifier
	Intent     intent.Router
	Index      KnowledgeSearcher
	Routes     registry.AllowedRoutes
	Manifest   ManifestResolver
	Summaries  SummaryClient
	Literature LiteratureClient
	Links      LinkChecker

	DefaultJurisdiction string
	Logger              *log.Logger

	// Clock overrides time.Now for timing telemetry in tests.
	Clock func() time.Time
}

// Orchestrator runs the ask pipeline. It is stateless across requests;
// all shared state lives behind its collaborators.
type Orchestrator struct {
	deps   Deps
	logger *log.Logger
}

func New(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[ORCH] ", log.LstdFlags)
	}
	return &Orchestrator{deps: deps, logger: logger}
}

// Ask answers one question. It never returns an error for upstream
// failures; degraded outcomes are expressed in the response body and its
// warnings.
func (o *Orchestrator) Ask(ctx context.Context, req Request) Response {
	ctx, stats := cache.WithStats(ctx)
	rec := newRecorder(o.deps.Clock)

	question := textmatch.Sanitize(req.Question)
	jurisdiction := req.Jurisdiction
	if jurisdiction == "" {
		jurisdiction = o.deps.DefaultJurisdiction
	}

	stop := rec.stage("safety")
	assessment := o.deps.Safety.Check(question, jurisdiction)
	stop()
	if assessment.Action == safety.ActionEscalateOnly {
		o.logger.Printf("request %s: safety escalation (%s)", req.RequestID, assessment.Level)
		return o.emergencyResponse(req, assessment, rec, stats)
	}

	stop = rec.stage("intent")
	decision := o.deps.Intent.Route(question, intent.Context{
		PagePath:     req.Pathname,
		Jurisdiction: jurisdiction,
	})
	stop()
	if decision.Type != intent.TypeGeneral {
		return o.siteResponse(req, decision.Type, assessment, rec, stats)
	}

	searchCtx, searchSpan := answerTracer.Start(ctx, "answer.internal_search")
	stop = rec.stage("internal_search")
	result, err := o.deps.Index.Search(searchCtx, question, searchLimit)
	stop()
	if err != nil {
		o.logger.Printf("request %s: internal search failed: %v", req.RequestID, err)
		rec.warn("we could not search this site's own pages for your question")
		result = kb.Result{Coverage: kb.CoverageNone}
	}
	searchSpan.SetAttributes(
		attribute.String("coverage", string(result.Coverage)),
		attribute.Int("hits", len(result.Hits)),
	)
	searchSpan.End()

	blueprint := blueprintFor(question)
	body := Answer{
		Title:    blueprint.Title,
		Summary:  blueprint.Summary,
		Sections: append([]Section(nil), blueprint.Sections...),
		Safety:   SafetyNote{Level: string(assessment.Level), Message: assessment.Signposting},
	}

	citations := o.internalCitations(result.Hits, rec)
	usedInternal := len(citations) > 0
	if usedInternal {
		rec.provider(ProviderInternal)
	}

	usedExternal := false
	if result.Coverage != kb.CoverageHigh {
		extCtx, extSpan := answerTracer.Start(ctx, "answer.external_fallback")
		stop = rec.stage("external")
		var extra []Citation
		usedExternal, extra = o.externalOverview(extCtx, question, req.CallerKey, &body, rec)
		citations = append(citations, extra...)
		stop()
		extSpan.SetAttributes(attribute.Bool("used", usedExternal))
		extSpan.End()
	}

	if researchPattern.MatchString(question) {
		resCtx, resSpan := answerTracer.Start(ctx, "answer.research")
		stop = rec.stage("research")
		research := o.researchCitations(resCtx, question, req.CallerKey, &body, rec)
		citations = append(citations, research...)
		stop()
		resSpan.SetAttributes(attribute.Int("citations", len(research)))
		resSpan.End()
	}

	if result.Coverage == kb.CoverageNone && !usedExternal {
		o.prependUnavailable(&body, blueprint.Topic, assessment)
	}

	return Response{
		Answer:    body,
		Citations: filterCitations(citations),
		Meta:      o.meta(req, string(decision.Type), result.Coverage, usedInternal, usedExternal, rec, stats),
	}
}

func (o *Orchestrator) emergencyResponse(req Request, a safety.Assessment, rec *recorder, stats *cache.Stats) Response {
	return Response{
		Answer: Answer{
			Title:   "Get help now",
			Summary: a.Signposting,
			Safety:  SafetyNote{Level: string(a.Level), Message: a.Signposting},
		},
		Citations: []Citation{},
		Meta:      o.meta(req, "", kb.CoverageNone, false, false, rec, stats),
	}
}

// siteResponse answers navigation and tool-help questions from site
// structure alone. No search and no network call happens on this path.
func (o *Orchestrator) siteResponse(req Request, kind intent.Type, a safety.Assessment, rec *recorder, stats *cache.Stats) Response {
	title := "Finding your way around"
	text := "Use the main menu to browse conditions, self-help tools and support options."
	if kind == intent.TypeToolHelp {
		title = "Using this tool"
		text = "Each tool has step-by-step instructions at the top of its page. Work through the steps at your own pace; your progress stays on this device."
	}

	citations := []Citation{}
	if req.Pathname != "" && o.deps.Routes.Allowed(req.Pathname) {
		text += fmt.Sprintf(" You are currently on %s.", req.Pathname)
		citations = append(citations, Citation{
			Provider: ProviderInternal,
			Title:    "This page",
			URL:      req.Pathname,
		})
		rec.provider(ProviderInternal)
	}

	return Response{
		Answer: Answer{
			Title:    title,
			Summary:  text,
			Sections: []Section{},
			Safety:   SafetyNote{Level: string(a.Level), Message: a.Signposting},
		},
		Citations: citations,
		Meta:      o.meta(req, string(kind), kb.CoverageNone, len(citations) > 0, false, rec, stats),
	}
}

// internalCitations keeps the top hits whose routes are still part of the
// allowed-route manifest.
func (o *Orchestrator) internalCitations(hits []kb.Hit, rec *recorder) []Citation {
	citations := make([]Citation, 0, maxInternalCitations)
	for _, hit := range hits {
		if len(citations) == maxInternalCitations {
			break
		}
		if !o.deps.Routes.Allowed(hit.Page.Route) {
			rec.warn("an internal page was excluded because it is no longer published")
			continue
		}
		citations = append(citations, Citation{
			Provider: ProviderInternal,
			Title:    hit.Page.Title,
			URL:      hit.Page.Route,
		})
	}
	return citations
}

// externalOverview tries the manifest resolver first and the summary client
// as a single fallback. A source is used only when its URL validates.
func (o *Orchestrator) externalOverview(ctx context.Context, question, callerKey string, body *Answer, rec *recorder) (bool, []Citation) {
	if entry, ok := o.deps.Manifest.ResolveTopic(ctx, question, callerKey); ok {
		if page, ok := o.deps.Manifest.FetchResolvedPage(ctx, entry); ok {
			url := page.WebURL
			if url == "" {
				url = entry.WebURL
			}
			if o.linkOK(ctx, url, rec) {
				body.Sections = prepend(body.Sections, Section{
					Heading: "Verified external overview",
					Text:    snippet(page.Body),
				})
				rec.provider(ProviderNHS)
				return true, []Citation{{
					Provider:     ProviderNHS,
					Title:        page.Title,
					URL:          url,
					LastReviewed: page.LastReviewed,
				}}
			}
		}
	}

	topic := topicOf(question)
	if summary, ok := o.deps.Summaries.Lookup(ctx, topic, callerKey); ok {
		if o.linkOK(ctx, summary.URL, rec) {
			text := summary.Snippet
			if text == "" {
				text = "An overview of this topic is available from " + summary.Title + "."
			}
			body.Sections = prepend(body.Sections, Section{
				Heading: "Verified external overview",
				Text:    snippet(text),
			})
			rec.provider(ProviderMedlinePlus)
			return true, []Citation{{
				Provider: ProviderMedlinePlus,
				Title:    summary.Title,
				URL:      summary.URL,
			}}
		}
	}
	return false, nil
}

// researchCitations fetches literature citations and keeps only those whose
// links validate. The research section appears only if at least one
// citation survives.
func (o *Orchestrator) researchCitations(ctx context.Context, question, callerKey string, body *Answer, rec *recorder) []Citation {
	raw := o.deps.Literature.Citations(ctx, topicOf(question), callerKey, maxResearchCitations)
	if len(raw) == 0 {
		return nil
	}

	kept := make([]Citation, 0, len(raw))
	var lines []string
	for _, c := range raw {
		if !o.linkOK(ctx, c.URL, rec) {
			continue
		}
		kept = append(kept, Citation{
			Provider: ProviderPubMed,
			Title:    c.Title,
			URL:      c.URL,
		})
		line := c.Title
		if c.Year > 0 {
			line = fmt.Sprintf("%s (%d)", c.Title, c.Year)
		}
		lines = append(lines, line)
	}
	if len(kept) == 0 {
		return nil
	}

	body.Sections = append(body.Sections, Section{
		Heading: "Research evidence (optional)",
		Text:    "Peer-reviewed work on this topic: " + strings.Join(lines, "; ") + ".",
	})
	rec.provider(ProviderPubMed)
	return kept
}

func (o *Orchestrator) prependUnavailable(body *Answer, topic string, a safety.Assessment) {
	if topic == "" {
		topic = "this topic"
	}
	next := fmt.Sprintf("Try searching for %q, %q or %q on a trusted health site. Talking to your GP is always a reasonable first step.",
		topic+" symptoms", topic+" support", topic+" NHS")
	if a.Signposting != "" {
		next = a.Signposting + " " + next
	}

	body.Sections = prepend(body.Sections,
		Section{
			Heading: "Verified data unavailable",
			Text:    "We could not verify specific information for this question right now, so we are not showing unconfirmed content or links.",
		},
		Section{
			Heading: "What you can do next",
			Text:    next,
		},
	)
}

func (o *Orchestrator) linkOK(ctx context.Context, rawURL string, rec *recorder) bool {
	if rawURL == "" {
		return false
	}
	verdict := o.deps.Links.Validate(ctx, rawURL)
	rec.linkResult(rawURL, verdict.OK)
	if !verdict.OK {
		rec.warn("some sources were removed because their links could not be verified")
	}
	return verdict.OK
}

func (o *Orchestrator) meta(req Request, intentClass string, coverage kb.Coverage, usedInternal, usedExternal bool, rec *recorder, stats *cache.Stats) Meta {
	warnings := rec.finalize()
	providers := rec.providers
	if providers == nil {
		providers = []string{}
	}
	return Meta{
		UsedInternal:     usedInternal,
		UsedExternal:     usedExternal,
		InternalCoverage: string(coverage),
		UsedProviders:    providers,
		VerifiedLinks:    rec.links,
		TimingsMs:        rec.timings,
		Cache:            stats.Snapshot(),
		Warnings:         warnings,
		Intent:           intentClass,
		RequestID:        req.RequestID,
	}
}

func topicOf(question string) string {
	if candidates := textmatch.TopicCandidates(question); len(candidates) > 0 {
		return candidates[0]
	}
	return textmatch.Normalize(question)
}

func prepend(sections []Section, extra ...Section) []Section {
	return append(append([]Section(nil), extra...), sections...)
}

// filterCitations drops entries missing a URL or title.
func filterCitations(citations []Citation) []Citation {
	out := make([]Citation, 0, len(citations))
	for _, c := range citations {
		if c.URL == "" || c.Title == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// snippet bounds a text block for inline display, cutting at a word
// boundary.
func snippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= overviewSnippetRunes {
		return string(runes)
	}
	cut := string(runes[:overviewSnippetRunes])
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
