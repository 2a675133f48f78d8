package answer

import (
	"context"
	"strings"
	"testing"

	"github.com/mindwell/buddy/internal/intent"
	"github.com/mindwell/buddy/internal/kb"
	"github.com/mindwell/buddy/internal/linkcheck"
	"github.com/mindwell/buddy/internal/registry"
	"github.com/mindwell/buddy/internal/safety"
	"github.com/mindwell/buddy/internal/sources"
)

type fakeIndex struct {
	result kb.Result
	err    error
	calls  int
}

func (f *fakeIndex) Search(ctx context.Context, question string, limit int) (kb.Result, error) {
	f.calls++
	return f.result, f.err
}

type fakeManifest struct {
	entry        sources.ManifestEntry
	page         sources.ResolvedPage
	resolves     bool
	fetches      bool
	resolveCalls int
	fetchCalls   int
}

func (f *fakeManifest) ResolveTopic(ctx context.Context, question, callerKey string) (sources.ManifestEntry, bool) {
	f.resolveCalls++
	return f.entry, f.resolves
}

func (f *fakeManifest) FetchResolvedPage(ctx context.Context, entry sources.ManifestEntry) (sources.ResolvedPage, bool) {
	f.fetchCalls++
	return f.page, f.fetches
}

type fakeSummaries struct {
	summary sources.Summary
	ok      bool
	calls   int
}

func (f *fakeSummaries) Lookup(ctx context.Context, topic, callerKey string) (sources.Summary, bool) {
	f.calls++
	return f.summary, f.ok
}

type fakeLiterature struct {
	citations []sources.Citation
	calls     int
}

func (f *fakeLiterature) Citations(ctx context.Context, topic, callerKey string, limit int) []sources.Citation {
	f.calls++
	return f.citations
}

type fakeLinks struct {
	valid map[string]bool
	calls int
}

func (f *fakeLinks) Validate(ctx context.Context, rawURL string) linkcheck.Result {
	f.calls++
	if f.valid[rawURL] {
		return linkcheck.Result{OK: true, Status: 200}
	}
	return linkcheck.Result{OK: false, Status: 404, Reason: "status 404"}
}

type pipeline struct {
	orch       *Orchestrator
	index      *fakeIndex
	manifest   *fakeManifest
	summaries  *fakeSummaries
	literature *fakeLiterature
	links      *fakeLinks
}

func newPipeline(t *testing.T, index *fakeIndex) *pipeline {
	t.Helper()
	p := &pipeline{
		index:      index,
		manifest:   &fakeManifest{},
		summaries:  &fakeSummaries{},
		literature: &fakeLiterature{},
		links:      &fakeLinks{valid: map[string]bool{}},
	}
	p.orch = New(Deps{
		Safety: safety.NewRules(),
		Intent: intent.NewRules(),
		Index:  index,
		Routes: registry.NewRouteSet([]string{
			"/conditions/adhd",
			"/conditions/anxiety",
			"/tools/breathing",
		}),
		Manifest:            p.manifest,
		Summaries:           p.summaries,
		Literature:          p.literature,
		Links:               p.links,
		DefaultJurisdiction: "uk",
	})
	return p
}

func (p *pipeline) externalCalls() int {
	return p.manifest.resolveCalls + p.manifest.fetchCalls + p.summaries.calls + p.literature.calls + p.links.calls
}

func TestAskEmergencyShortCircuits(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{})

	resp := p.orch.Ask(context.Background(), Request{
		Question:  "I want to kill myself",
		RequestID: "r1",
	})

	if resp.Answer.Title != "Get help now" {
		t.Fatalf("title = %q", resp.Answer.Title)
	}
	if len(resp.Answer.Sections) != 0 {
		t.Fatalf("sections = %d, want none", len(resp.Answer.Sections))
	}
	if len(resp.Citations) != 0 {
		t.Fatalf("citations = %d, want none", len(resp.Citations))
	}
	if resp.Answer.Safety.Level != string(safety.LevelEmergency) {
		t.Fatalf("safety level = %q", resp.Answer.Safety.Level)
	}
	if !strings.Contains(resp.Answer.Summary, "999") {
		t.Fatalf("expected UK signposting, got %q", resp.Answer.Summary)
	}
	if p.index.calls != 0 {
		t.Fatalf("internal search ran %d times", p.index.calls)
	}
	if n := p.externalCalls(); n != 0 {
		t.Fatalf("external calls = %d, want 0", n)
	}
}

func TestAskNavigationAnswersFromSiteStructure(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{})

	resp := p.orch.Ask(context.Background(), Request{
		Question: "Where do I find the anxiety page?",
		Pathname: "/tools/breathing",
	})

	if resp.Meta.Intent != string(intent.TypeNavigation) {
		t.Fatalf("intent = %q", resp.Meta.Intent)
	}
	if p.index.calls != 0 {
		t.Fatal("navigation answer must not search the index")
	}
	if n := p.externalCalls(); n != 0 {
		t.Fatalf("external calls = %d, want 0", n)
	}
	if len(resp.Citations) != 1 || resp.Citations[0].URL != "/tools/breathing" {
		t.Fatalf("citations = %+v, want the current page", resp.Citations)
	}
	if !strings.Contains(resp.Answer.Summary, "/tools/breathing") {
		t.Fatalf("summary does not reference the page: %q", resp.Answer.Summary)
	}
}

func TestAskNavigationIgnoresUnknownPath(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{})

	resp := p.orch.Ask(context.Background(), Request{
		Question: "Where do I find the anxiety page?",
		Pathname: "/drafts/secret",
	})

	if len(resp.Citations) != 0 {
		t.Fatalf("citations = %+v, want none for an unpublished path", resp.Citations)
	}
}

func TestAskHighCoverageIsInternalOnly(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{result: kb.Result{
		Coverage: kb.CoverageHigh,
		Hits: []kb.Hit{
			{Page: kb.Page{Route: "/conditions/adhd", Title: "ADHD"}, Score: 0.01},
		},
	}})

	resp := p.orch.Ask(context.Background(), Request{Question: "what is ADHD"})

	if n := p.externalCalls(); n != 0 {
		t.Fatalf("external calls = %d, want 0 on high coverage", n)
	}
	if resp.Meta.UsedExternal {
		t.Fatal("usedExternal = true, want false")
	}
	if !resp.Meta.UsedInternal {
		t.Fatal("usedInternal = false, want true")
	}
	if len(resp.Citations) < 1 || resp.Citations[0].Provider != ProviderInternal {
		t.Fatalf("citations = %+v, want at least one internal", resp.Citations)
	}
	if resp.Answer.Title != "Understanding ADHD" {
		t.Fatalf("title = %q, want the ADHD blueprint", resp.Answer.Title)
	}
	if resp.Meta.InternalCoverage != string(kb.CoverageHigh) {
		t.Fatalf("coverage = %q", resp.Meta.InternalCoverage)
	}
}

func TestAskDropsUnpublishedInternalRoutes(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{result: kb.Result{
		Coverage: kb.CoverageHigh,
		Hits: []kb.Hit{
			{Page: kb.Page{Route: "/drafts/new", Title: "Draft"}, Score: 0.01},
			{Page: kb.Page{Route: "/conditions/anxiety", Title: "Anxiety"}, Score: 0.02},
		},
	}})

	resp := p.orch.Ask(context.Background(), Request{Question: "anxiety"})

	if len(resp.Citations) != 1 || resp.Citations[0].URL != "/conditions/anxiety" {
		t.Fatalf("citations = %+v, want only the published route", resp.Citations)
	}
	if len(resp.Meta.Warnings) == 0 {
		t.Fatal("expected a warning about the excluded page")
	}
}

func TestAskManifestFallbackPrependsVerifiedOverview(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{result: kb.Result{Coverage: kb.CoveragePartial}})
	p.manifest.resolves = true
	p.manifest.fetches = true
	p.manifest.entry = sources.ManifestEntry{Title: "Anxiety", WebURL: "https://health.example/conditions/anxiety/"}
	p.manifest.page = sources.ResolvedPage{
		Title:        "Anxiety",
		Body:         "Anxiety is a feeling of unease, such as worry or fear.",
		WebURL:       "https://health.example/conditions/anxiety/",
		LastReviewed: "2025-03-01",
	}
	p.links.valid["https://health.example/conditions/anxiety/"] = true

	resp := p.orch.Ask(context.Background(), Request{Question: "how do I deal with anxiety"})

	if !resp.Meta.UsedExternal {
		t.Fatal("usedExternal = false, want true")
	}
	if resp.Answer.Sections[0].Heading != "Verified external overview" {
		t.Fatalf("first section = %q", resp.Answer.Sections[0].Heading)
	}
	var external *Citation
	for i := range resp.Citations {
		if resp.Citations[i].Provider == ProviderNHS {
			external = &resp.Citations[i]
		}
	}
	if external == nil {
		t.Fatalf("citations = %+v, want one from the manifest source", resp.Citations)
	}
	if external.LastReviewed != "2025-03-01" {
		t.Fatalf("lastReviewed = %q", external.LastReviewed)
	}
	if p.summaries.calls != 0 {
		t.Fatal("summary fallback must not run when the manifest succeeds")
	}
}

func TestAskSummaryFallbackWhenManifestUnresolvable(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{result: kb.Result{Coverage: kb.CoverageNone}})
	p.summaries.ok = true
	p.summaries.summary = sources.Summary{
		Title:   "Anxiety",
		URL:     "https://summaries.example/anxiety.html",
		Snippet: "Anxiety is a normal reaction to stress.",
	}
	p.links.valid["https://summaries.example/anxiety.html"] = true

	resp := p.orch.Ask(context.Background(), Request{Question: "anxiety"})

	if !resp.Meta.UsedExternal {
		t.Fatal("usedExternal = false, want true")
	}
	if len(resp.Citations) != 1 || resp.Citations[0].Provider != ProviderMedlinePlus {
		t.Fatalf("citations = %+v, want exactly one summary-client citation", resp.Citations)
	}
	for _, s := range resp.Answer.Sections {
		if s.Heading == "Verified data unavailable" {
			t.Fatal("unavailable section present despite external success")
		}
	}
	if p.manifest.resolveCalls != 1 {
		t.Fatalf("manifest resolve calls = %d, want 1", p.manifest.resolveCalls)
	}
}

func TestAskUnvalidatedExternalLinkIsNeverCited(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{result: kb.Result{Coverage: kb.CoverageNone}})
	p.summaries.ok = true
	p.summaries.summary = sources.Summary{Title: "Anxiety", URL: "https://summaries.example/gone.html"}
	// link deliberately not marked valid

	resp := p.orch.Ask(context.Background(), Request{Question: "anxiety"})

	if resp.Meta.UsedExternal {
		t.Fatal("usedExternal = true for an unverified link")
	}
	if len(resp.Citations) != 0 {
		t.Fatalf("citations = %+v, want none", resp.Citations)
	}
	if resp.Meta.VerifiedLinks.Removed != 1 {
		t.Fatalf("removedLinks = %d, want 1", resp.Meta.VerifiedLinks.Removed)
	}
	if resp.Answer.Sections[0].Heading != "Verified data unavailable" {
		t.Fatalf("first section = %q, want the unavailable notice", resp.Answer.Sections[0].Heading)
	}
	if resp.Answer.Sections[1].Heading != "What you can do next" {
		t.Fatalf("second section = %q", resp.Answer.Sections[1].Heading)
	}
}

func TestAskResearchSectionKeepsOnlyValidatedCitations(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{result: kb.Result{
		Coverage: kb.CoverageHigh,
		Hits: []kb.Hit{
			{Page: kb.Page{Route: "/conditions/anxiety", Title: "Anxiety"}, Score: 0.01},
		},
	}})
	p.literature.citations = []sources.Citation{
		{Title: "CBT outcomes in GAD", URL: "https://pubmed.example/1/", Year: 2021},
		{Title: "Withdrawn trial", URL: "https://pubmed.example/2/"},
		{Title: "Retracted paper", URL: "https://pubmed.example/3/"},
	}
	p.links.valid["https://pubmed.example/1/"] = true

	resp := p.orch.Ask(context.Background(), Request{
		Question: "is there research evidence that CBT helps anxiety",
	})

	var research []Citation
	for _, c := range resp.Citations {
		if c.Provider == ProviderPubMed {
			research = append(research, c)
		}
	}
	if len(research) != 1 {
		t.Fatalf("research citations = %+v, want exactly 1", research)
	}
	last := resp.Answer.Sections[len(resp.Answer.Sections)-1]
	if last.Heading != "Research evidence (optional)" {
		t.Fatalf("last section = %q", last.Heading)
	}
	if !strings.Contains(last.Text, "CBT outcomes in GAD (2021)") {
		t.Fatalf("section text = %q", last.Text)
	}
	if resp.Meta.VerifiedLinks.Total != 3 || resp.Meta.VerifiedLinks.Valid != 1 {
		t.Fatalf("verifiedLinks = %+v", resp.Meta.VerifiedLinks)
	}
	// the two removal warnings collapse into one
	count := 0
	for _, w := range resp.Meta.Warnings {
		if strings.Contains(w, "could not be verified") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("removal warnings = %d, want 1 after dedup", count)
	}
}

func TestAskResearchSectionOmittedWhenNothingSurvives(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{result: kb.Result{
		Coverage: kb.CoverageHigh,
		Hits: []kb.Hit{
			{Page: kb.Page{Route: "/conditions/anxiety", Title: "Anxiety"}, Score: 0.01},
		},
	}})
	p.literature.citations = []sources.Citation{
		{Title: "Dead link study", URL: "https://pubmed.example/9/"},
	}

	resp := p.orch.Ask(context.Background(), Request{
		Question: "studies about anxiety treatment",
	})

	for _, s := range resp.Answer.Sections {
		if s.Heading == "Research evidence (optional)" {
			t.Fatal("research section present with zero validated citations")
		}
	}
	for _, c := range resp.Citations {
		if c.Provider == ProviderPubMed {
			t.Fatalf("unexpected literature citation %+v", c)
		}
	}
}

func TestAskSearchFailureDegradesGracefully(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, &fakeIndex{err: context.DeadlineExceeded})

	resp := p.orch.Ask(context.Background(), Request{Question: "anxiety"})

	if resp.Meta.InternalCoverage != string(kb.CoverageNone) {
		t.Fatalf("coverage = %q", resp.Meta.InternalCoverage)
	}
	if len(resp.Meta.Warnings) == 0 {
		t.Fatal("expected a search warning")
	}
	if resp.Answer.Title == "" {
		t.Fatal("response must stay structurally complete")
	}
}
