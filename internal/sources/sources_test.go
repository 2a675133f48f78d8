package sources

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mindwell/buddy/config"
	"github.com/mindwell/buddy/internal/cache"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func nhsTestServer(t *testing.T, manifestCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/manifest", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(manifestCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"significantLink":[
				{"name":"Anxiety","url":"https://api.example/conditions/anxiety","webUrl":"https://www.example/conditions/anxiety","description":"<p>Anxiety overview</p>"},
				{"name":"Paracetamol","url":"https://api.example/medicines/paracetamol","description":"Pain relief"}
			]}`)
		case "2":
			fmt.Fprint(w, `{"significantLink":[
				{"name":"Anxiety","url":"https://api.example/conditions/anxiety","description":"duplicate"},
				{"name":"Exercise","url":"https://api.example/live-well/exercise","description":"Staying active"}
			]}`)
		default:
			fmt.Fprint(w, `{"significantLink":[]}`)
		}
	})
	mux.HandleFunc("/detail", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("modules") != "expanded" {
			http.Error(w, "missing modules param", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"name":"Anxiety",
			"description":"<p>Overview of anxiety</p>",
			"url":"https://www.example/conditions/anxiety",
			"lastReviewed":"2024-11-02",
			"hasPart":[
				{"headline":"Symptoms","text":"<p>Feeling restless</p>"},
				{"headline":"","text":"Plain trailing text"}
			]
		}`)
	})
	return httptest.NewServer(mux)
}

func TestNHSManifestPaginatesAndDedupes(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := nhsTestServer(t, &calls)
	defer srv.Close()

	r := NewNHSResolver(config.NHSConfig{
		BaseURL:     srv.URL + "/manifest",
		Timeout:     2 * time.Second,
		ManifestTTL: time.Hour,
		PageTTL:     time.Hour,
	}, cache.NewMemory(), testLogger())

	entries := r.Manifest(context.Background())
	if len(entries) != 3 {
		t.Fatalf("manifest entries = %d, want 3 after dedupe: %+v", len(entries), entries)
	}
	if entries[0].Description != "Anxiety overview" {
		t.Fatalf("description not sanitized: %q", entries[0].Description)
	}

	// Second read comes from cache; no further upstream calls.
	before := atomic.LoadInt32(&calls)
	r.Manifest(context.Background())
	if atomic.LoadInt32(&calls) != before {
		t.Fatalf("manifest was re-fetched despite cache")
	}
}

func TestNHSResolveTopic(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := nhsTestServer(t, &calls)
	defer srv.Close()

	r := NewNHSResolver(config.NHSConfig{
		BaseURL:     srv.URL + "/manifest",
		Timeout:     2 * time.Second,
		ManifestTTL: time.Hour,
		PageTTL:     time.Hour,
	}, cache.NewMemory(), testLogger())

	entry, ok := r.ResolveTopic(context.Background(), "what is anxiety", "caller")
	if !ok {
		t.Fatalf("expected a manifest match for anxiety")
	}
	if entry.Title != "Anxiety" {
		t.Fatalf("resolved %q, want Anxiety", entry.Title)
	}

	if _, ok := r.ResolveTopic(context.Background(), "completely unrelated topic", "caller"); ok {
		t.Fatalf("resolver accepted a topic below the score cutoff")
	}
}

func TestNHSFetchResolvedPage(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := nhsTestServer(t, &calls)
	defer srv.Close()

	r := NewNHSResolver(config.NHSConfig{
		BaseURL:     srv.URL + "/manifest",
		Timeout:     2 * time.Second,
		ManifestTTL: time.Hour,
		PageTTL:     time.Hour,
	}, cache.NewMemory(), testLogger())

	page, ok := r.FetchResolvedPage(context.Background(), ManifestEntry{
		Title:  "Anxiety",
		APIURL: srv.URL + "/detail",
	})
	if !ok {
		t.Fatalf("fetch failed")
	}
	if page.Title != "Anxiety" || page.WebURL != "https://www.example/conditions/anxiety" {
		t.Fatalf("page = %+v", page)
	}
	if page.LastReviewed != "2024-11-02" {
		t.Fatalf("lastReviewed = %q", page.LastReviewed)
	}
	want := "Overview of anxiety\n\nSymptoms: Feeling restless\n\nPlain trailing text"
	if page.Body != want {
		t.Fatalf("body = %q, want %q", page.Body, want)
	}
}

func TestNHSFetchFailureIsFalse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewNHSResolver(config.NHSConfig{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, cache.NewMemory(), testLogger())

	if _, ok := r.FetchResolvedPage(context.Background(), ManifestEntry{APIURL: srv.URL + "/x"}); ok {
		t.Fatalf("fetch of failing upstream reported success")
	}
}

func TestMedlinePlusLookup(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"documents":[
			{"title":"Anxiety","url":"https://medlineplus.example/anxiety.html","summary":"About anxiety"},
			{"title":"Second","url":"https://medlineplus.example/second.html","summary":"ignored"}
		]}`)
	}))
	defer srv.Close()

	c := NewMedlinePlusClient(config.MedlinePlusConfig{
		BaseURL:  srv.URL,
		Timeout:  2 * time.Second,
		CacheTTL: time.Hour,
	}, cache.NewMemory(), testLogger())

	got, ok := c.Lookup(context.Background(), "anxiety", "caller")
	if !ok {
		t.Fatalf("Lookup failed")
	}
	if got.Title != "Anxiety" || got.URL != "https://medlineplus.example/anxiety.html" {
		t.Fatalf("Lookup = %+v, want first document", got)
	}

	// Cached result; upstream called once.
	c.Lookup(context.Background(), "anxiety", "caller")
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("upstream called %d times, want 1", calls)
	}
}

func TestMedlinePlusRateLimit(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"documents":[]}`)
	}))
	defer srv.Close()

	store := cache.NewMemory()
	c := NewMedlinePlusClient(config.MedlinePlusConfig{
		BaseURL:  srv.URL,
		Timeout:  2 * time.Second,
		CacheTTL: time.Hour,
	}, store, testLogger())

	// Exhaust the caller's window, then confirm the client skips the call.
	for i := 0; i < medlinePlusRateMax; i++ {
		store.RateLimit(context.Background(), "rl:medlineplus:caller", medlinePlusRateMax, medlinePlusRateWindow)
	}
	before := atomic.LoadInt32(&calls)
	if _, ok := c.Lookup(context.Background(), "anything", "caller"); ok {
		t.Fatalf("rate-limited lookup reported success")
	}
	if atomic.LoadInt32(&calls) != before {
		t.Fatalf("rate-limited lookup still hit upstream")
	}
}

func TestPubMedCitations(t *testing.T) {
	t.Parallel()

	var searches, summaries int32
	mux := http.NewServeMux()
	mux.HandleFunc("/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&searches, 1)
		if r.URL.Query().Get("sort") != "relevance" {
			http.Error(w, "want relevance sort", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"esearchresult":{"idlist":["111","222","333"]}}`)
	})
	mux.HandleFunc("/esummary.fcgi", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&summaries, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"result":{
			"uids":["111","222","333"],
			"111":{"title":"Trial one","pubdate":"2021 Jan 5"},
			"222":{"title":"Trial two","pubdate":"2019"},
			"333":{"title":"","pubdate":"2020"}
		}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewPubMedClient(config.PubMedConfig{
		BaseURL:  srv.URL,
		Timeout:  2 * time.Second,
		CacheTTL: time.Hour,
	}, cache.NewMemory(), testLogger())

	got := c.Citations(context.Background(), "adhd research", "caller", 3)
	if len(got) != 2 {
		t.Fatalf("citations = %+v, want 2 (empty title dropped)", got)
	}
	if got[0].Title != "Trial one" || got[0].Year != 2021 {
		t.Fatalf("first citation = %+v", got[0])
	}
	if got[0].URL != "https://pubmed.ncbi.nlm.nih.gov/111/" {
		t.Fatalf("citation url = %q", got[0].URL)
	}

	// Second call is served from cache.
	c.Citations(context.Background(), "adhd research", "caller", 3)
	if atomic.LoadInt32(&searches) != 1 || atomic.LoadInt32(&summaries) != 1 {
		t.Fatalf("upstream calls = %d/%d, want 1/1", searches, summaries)
	}
}

func TestPubMedRateLimit(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"esearchresult":{"idlist":[]}}`)
	}))
	defer srv.Close()

	store := cache.NewMemory()
	c := NewPubMedClient(config.PubMedConfig{
		BaseURL:  srv.URL,
		Timeout:  2 * time.Second,
		CacheTTL: time.Hour,
	}, store, testLogger())

	for i := 0; i < pubmedRateMax; i++ {
		store.RateLimit(context.Background(), "rl:pubmed:caller", pubmedRateMax, pubmedRateWindow)
	}
	if got := c.Citations(context.Background(), "anything", "caller", 3); got != nil {
		t.Fatalf("rate-limited citations = %+v, want nil", got)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("rate-limited client still hit upstream")
	}
}

func TestYearOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want int
	}{
		{in: "2021 Jan 5", want: 2021},
		{in: "2019", want: 2019},
		{in: "Winter 2019", want: 0},
		{in: "", want: 0},
	}
	for _, tt := range tests {
		if got := yearOf(tt.in); got != tt.want {
			t.Fatalf("yearOf(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
