package cache

import (
	"context"
	"testing"
	"time"
)

func TestRecordingAttributesLookups(t *testing.T) {
	t.Parallel()

	store := NewRecording(NewMemory())
	ctx, stats := WithStats(context.Background())

	store.Set(ctx, "nhs:manifest", []byte("x"), time.Minute)

	if _, ok := store.Get(ctx, "nhs:manifest"); !ok {
		t.Fatal("expected hit")
	}
	if _, ok := store.Get(ctx, "medlineplus:topic:anxiety"); ok {
		t.Fatal("expected miss")
	}
	// a later hit under the same prefix upgrades the flag
	store.Set(ctx, "medlineplus:topic:anxiety", []byte("y"), time.Minute)
	store.Get(ctx, "medlineplus:topic:anxiety")

	snap := stats.Snapshot()
	if !snap["nhs"] {
		t.Fatalf("nhs = %v, want hit", snap["nhs"])
	}
	if !snap["medlineplus"] {
		t.Fatalf("medlineplus = %v, want hit after second lookup", snap["medlineplus"])
	}
	if _, ok := snap["pubmed"]; ok {
		t.Fatal("pubmed was never looked up")
	}
}

func TestRecordingWithoutStatsIsTransparent(t *testing.T) {
	t.Parallel()

	store := NewRecording(NewMemory())
	ctx := context.Background()

	store.Set(ctx, "link:https://example.org", []byte("ok"), time.Minute)
	if v, ok := store.Get(ctx, "link:https://example.org"); !ok || string(v) != "ok" {
		t.Fatalf("Get = %q, %v", v, ok)
	}
}
