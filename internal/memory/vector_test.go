package memory

import (
	"context"
	"strings"
	"testing"
)

// hashEmbedder produces deterministic vectors from word overlap, close
// enough for recall tests without a live embedding model.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 64)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var h uint32 = 2166136261
		for _, r := range word {
			h = (h ^ uint32(r)) * 16777619
		}
		vec[h%64]++
	}
	// Avoid the zero vector for empty input.
	vec[0]++
	return vec, nil
}

func newTestVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	v, err := NewVectorStore("", hashEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestCollectionName(t *testing.T) {
	tests := []struct {
		userID, kind, want string
	}{
		{"alice", "corrections", "alice_corrections"},
		{"a.b.c", "corrections", "a_b_c_corrections"},
	}
	for _, tt := range tests {
		if got := collectionName(tt.userID, tt.kind); got != tt.want {
			t.Errorf("collectionName(%q, %q) = %q, want %q", tt.userID, tt.kind, got, tt.want)
		}
	}

	long := strings.Repeat("x", 80)
	if got := collectionName(long, "conversations"); len(got) != maxCollectionName {
		t.Errorf("long name should truncate to %d, got %d", maxCollectionName, len(got))
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	v := newTestVectorStore(t)
	hits, err := v.SearchCorrections(context.Background(), "alice", "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("empty collection should return no hits, got %d", len(hits))
	}
}

func TestCorrectionRoundTrip(t *testing.T) {
	v := newTestVectorStore(t)
	ctx := context.Background()

	c := &LearnedCorrection{
		CorrectionID: "c-1",
		UserID:       "alice",
		Pattern:      "mentions tsmc headquarters",
		Correction:   "tsmc is headquartered in hsinchu taiwan",
		Context:      "semiconductor topics",
		Confidence:   0.8,
	}
	if err := v.AddCorrection(ctx, c); err != nil {
		t.Fatal(err)
	}

	hits, err := v.SearchCorrections(ctx, "alice", "mentions tsmc headquarters", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	hit := hits[0]
	if hit.Metadata["correction_id"] != "c-1" || hit.Metadata["pattern"] != c.Pattern {
		t.Errorf("metadata = %v", hit.Metadata)
	}
	if !strings.Contains(hit.Content, " | ") {
		t.Errorf("content should join pattern, correction and context: %q", hit.Content)
	}
	if hit.Metadata["confidence"] != "0.80" {
		t.Errorf("confidence metadata = %q", hit.Metadata["confidence"])
	}
}

func TestSearchLimitCapsToCount(t *testing.T) {
	v := newTestVectorStore(t)
	ctx := context.Background()
	if err := v.AddCorrection(ctx, &LearnedCorrection{
		CorrectionID: "c-1", UserID: "alice", Pattern: "p", Correction: "c",
	}); err != nil {
		t.Fatal(err)
	}

	// Asking for more results than documents must not error.
	hits, err := v.SearchCorrections(ctx, "alice", "p", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("hits = %d, want 1", len(hits))
	}
}

func TestConversationsAreDedupedByContent(t *testing.T) {
	v := newTestVectorStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := v.AddConversation(ctx, "alice", "sess-1", "we talked about ai layoffs", nil); err != nil {
			t.Fatal(err)
		}
	}
	hits, err := v.SearchConversations(ctx, "alice", "ai layoffs", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("identical content in one session should store once, got %d", len(hits))
	}
}

func TestUsersAreIsolated(t *testing.T) {
	v := newTestVectorStore(t)
	ctx := context.Background()

	if err := v.AddCorrection(ctx, &LearnedCorrection{
		CorrectionID: "c-1", UserID: "alice", Pattern: "alice pattern", Correction: "c",
	}); err != nil {
		t.Fatal(err)
	}

	hits, err := v.SearchCorrections(ctx, "bob", "alice pattern", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("bob should not see alice's corrections, got %d hits", len(hits))
	}
}

func TestDeleteUserIsIdempotent(t *testing.T) {
	v := newTestVectorStore(t)
	ctx := context.Background()

	if err := v.AddCorrection(ctx, &LearnedCorrection{
		CorrectionID: "c-1", UserID: "alice", Pattern: "p", Correction: "c",
	}); err != nil {
		t.Fatal(err)
	}
	if err := v.DeleteUser("alice"); err != nil {
		t.Fatal(err)
	}
	// Deleting a user with no collections must not error.
	if err := v.DeleteUser("alice"); err != nil {
		t.Fatal(err)
	}

	hits, err := v.SearchCorrections(ctx, "alice", "p", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("deleted user's corrections should be gone, got %d", len(hits))
	}
}
