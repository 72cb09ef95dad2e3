package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	vector, err := NewVectorStore("", hashEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(store, vector)
}

func TestGetOrCreateProfileCaches(t *testing.T) {
	m := newTestManager(t)

	p1, err := m.GetOrCreateProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if p1.PreferredStyle != "casual" {
		t.Errorf("default style = %q", p1.PreferredStyle)
	}

	p2, err := m.GetOrCreateProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Error("second load should hit the cache and return the same pointer")
	}
}

func TestTopicContext(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.UpdateTopicPreference("alice", "AI 失業", 0.8, "關注台灣就業市場"); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveKnowledgeNode(&KnowledgeNode{
		NodeID: "n-1", UserID: "alice", Type: NodeTopic, Name: "AI 失業潮與轉職",
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveKnowledgeNode(&KnowledgeNode{
		NodeID: "n-2", UserID: "alice", Type: NodeTopic, Name: "電動車補助",
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.StoreConversation(ctx, "alice", "sess-1", "上次聊到 AI 失業的影片表現", nil); err != nil {
		t.Fatal(err)
	}

	tc, err := m.GetTopicContext(ctx, "alice", "AI 失業")
	if err != nil {
		t.Fatal(err)
	}
	if tc.TopicPreference == nil || tc.TopicPreference.InterestLevel != 0.8 {
		t.Errorf("topic preference = %+v", tc.TopicPreference)
	}
	if len(tc.RelatedKnowledge) != 1 || tc.RelatedKnowledge[0].NodeID != "n-1" {
		t.Errorf("related knowledge = %+v", tc.RelatedKnowledge)
	}
	if len(tc.RelatedConversations) != 1 {
		t.Errorf("related conversations = %+v", tc.RelatedConversations)
	}
	if tc.UserStyle != "casual" || tc.AnalysisDepth != "standard" {
		t.Errorf("style/depth = %q/%q", tc.UserStyle, tc.AnalysisDepth)
	}
}

func TestUpdateTopicPreferenceClamps(t *testing.T) {
	m := newTestManager(t)
	if err := m.UpdateTopicPreference("alice", "AI", 1.7, ""); err != nil {
		t.Fatal(err)
	}
	profile, err := m.GetOrCreateProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if profile.TopicPreferences["AI"].InterestLevel != 1 {
		t.Errorf("interest = %v, want clamped 1", profile.TopicPreferences["AI"].InterestLevel)
	}
}

func TestExportAndDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.StoreCorrection(ctx, &LearnedCorrection{
		CorrectionID: "c-1", UserID: "alice", Pattern: "p", Correction: "c", Confidence: 0.6,
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveKnowledgeNode(&KnowledgeNode{NodeID: "n-1", UserID: "alice", Type: NodeTopic, Name: "AI"}); err != nil {
		t.Fatal(err)
	}

	export, err := m.ExportUser("alice")
	if err != nil {
		t.Fatal(err)
	}
	if export.Profile.UserID != "alice" || len(export.Corrections) != 1 || len(export.KnowledgeNodes) != 1 {
		t.Errorf("export = %+v", export)
	}
	if _, err := json.Marshal(export); err != nil {
		t.Errorf("export should be JSON-encodable: %v", err)
	}

	if err := m.DeleteUser("alice"); err != nil {
		t.Fatal(err)
	}
	fresh, err := m.GetOrCreateProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.TopicPreferences == nil || len(fresh.TopicPreferences) != 0 {
		t.Error("profile after delete should be a fresh default")
	}
	hits, err := m.RecallCorrections(context.Background(), "alice", "p", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("corrections should be gone after delete, got %d", len(hits))
	}
}

// scriptedDistiller returns one canned distillation, then fails.
type scriptedDistiller struct {
	response string
	failFrom int
	calls    int
}

func (s *scriptedDistiller) GenerateJSON(_ context.Context, _ string, _ *genai.Schema, out any) error {
	s.calls++
	if s.failFrom > 0 && s.calls >= s.failFrom {
		return fmt.Errorf("model overloaded")
	}
	return json.Unmarshal([]byte(s.response), out)
}

const distillResponse = `{
	"pattern": "提到台積電總部時",
	"correction": "標注位於台灣新竹",
	"context": "半導體相關主題",
	"confidence": 0.8
}`

func submitTestFeedback(t *testing.T, svc *Service, userID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := svc.SubmitFeedback(userID, Feedback{
			Type:             FeedbackCorrection,
			OriginalAnalysis: "台積電是美國公司",
			UserCorrection:   "台積電總部在台灣新竹",
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFeedbackProcessing(t *testing.T) {
	m := newTestManager(t)
	gen := &scriptedDistiller{response: distillResponse}
	svc := NewService(m, NewFeedbackProcessor(m, gen))

	submitTestFeedback(t, svc, "alice", 1)

	learned, err := svc.ProcessFeedback(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if learned != 1 {
		t.Fatalf("learned = %d, want 1", learned)
	}

	corrections, err := m.store.GetCorrections("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(corrections) != 1 || corrections[0].Pattern != "提到台積電總部時" {
		t.Errorf("corrections = %+v", corrections)
	}

	pending, err := m.store.GetUnprocessedFeedback("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("feedback should be marked processed, %d pending", len(pending))
	}

	// Prompt safety: user data must be wrapped, and the long original
	// analysis capped, both covered by Process internals; a second run
	// with nothing pending learns nothing.
	learned, err = svc.ProcessFeedback(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if learned != 0 {
		t.Errorf("second run learned = %d, want 0", learned)
	}
}

func TestFeedbackBatchContinuesOnFailure(t *testing.T) {
	m := newTestManager(t)
	gen := &scriptedDistiller{response: distillResponse, failFrom: 2}
	svc := NewService(m, NewFeedbackProcessor(m, gen))

	submitTestFeedback(t, svc, "alice", 3)

	learned, err := svc.ProcessFeedback(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if learned != 1 {
		t.Errorf("learned = %d, want 1 despite later failures", learned)
	}
	pending, err := m.store.GetUnprocessedFeedback("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Errorf("failed items should stay pending, got %d", len(pending))
	}
}

func TestServiceValidatesUserID(t *testing.T) {
	m := newTestManager(t)
	svc := NewService(m, nil)

	bad := []string{"", "has space", "way-too-long-" + strings.Repeat("x", 50), "semi;colon", "路人"}
	for _, id := range bad {
		if _, err := svc.GetProfile(id); !errors.Is(err, ErrInvalidUserID) {
			t.Errorf("GetProfile(%q) err = %v, want ErrInvalidUserID", id, err)
		}
	}
	if _, err := svc.GetProfile("valid_user-01"); err != nil {
		t.Errorf("valid id rejected: %v", err)
	}
}

func TestUpdatePreferencesWhitelist(t *testing.T) {
	m := newTestManager(t)
	svc := NewService(m, nil)

	profile, err := svc.UpdatePreferences("alice", map[string]any{
		"display_name":    "Alice",
		"preferred_style": "technical",
		"blocked_sources": []any{"content-farm.example"},
		"user_id":         "mallory",
		"feedback_weight": 0.1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if profile.DisplayName != "Alice" || profile.PreferredStyle != "technical" {
		t.Errorf("profile = %+v", profile)
	}
	if len(profile.BlockedSources) != 1 || profile.BlockedSources[0] != "content-farm.example" {
		t.Errorf("blocked sources = %v", profile.BlockedSources)
	}
	// Non-whitelisted fields are ignored.
	if profile.UserID != "alice" {
		t.Errorf("user_id should be immutable, got %q", profile.UserID)
	}
	if profile.FeedbackWeight != 0.7 {
		t.Errorf("feedback_weight should be ignored, got %v", profile.FeedbackWeight)
	}
}

func TestPersonalizeSections(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	p := NewPersonalizer(m)

	base := "分析以下素材"

	// Fresh user: base prompt plus the preference line only.
	prompt, err := p.Personalize(ctx, base, "alice", "AI", "AI 失業")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(prompt, base) {
		t.Errorf("prompt should start with the base: %q", prompt)
	}
	if !strings.Contains(prompt, "casual") {
		t.Error("preference section missing")
	}
	if strings.Contains(prompt, "過去學到的修正") {
		t.Error("correction section should be omitted when empty")
	}
	if strings.Contains(prompt, "避免引用") {
		t.Error("blocklist section should be omitted when empty")
	}

	// Learned state fills in the remaining sections.
	if err := m.StoreCorrection(ctx, &LearnedCorrection{
		CorrectionID: "c-1", UserID: "alice",
		Pattern: "AI 失業 相關統計", Correction: "引用主計總處數據", Context: "台灣就業",
		Confidence: 0.8,
	}); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateTopicPreference("alice", "AI", 0.9, "偏好務實角度"); err != nil {
		t.Fatal(err)
	}
	profile, err := m.GetOrCreateProfile("alice")
	if err != nil {
		t.Fatal(err)
	}
	profile.BlockedSources = []string{"content-farm.example"}
	if err := m.UpdateProfile(profile); err != nil {
		t.Fatal(err)
	}

	prompt, err = p.Personalize(ctx, base, "alice", "AI", "AI 失業 相關統計")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"引用主計總處數據", "0.9", "偏好務實角度", "content-farm.example"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestServicePersonalizedPrompt(t *testing.T) {
	m := newTestManager(t)
	svc := NewService(m, nil)

	ctx := context.Background()
	if _, err := svc.GetPersonalizedPrompt(ctx, "bad id", "base", "AI", "AI"); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("err = %v, want ErrInvalidUserID", err)
	}

	prompt, err := svc.GetPersonalizedPrompt(ctx, "alice", "base", "AI", "AI")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(prompt, "base") {
		t.Errorf("prompt = %q", prompt)
	}
}

// failingEmbedder simulates an embedding backend outage.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embedding backend unavailable")
}

func TestStoreCorrectionKeepsRowOnVectorFailure(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	vector, err := NewVectorStore("", failingEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(store, vector)

	c := &LearnedCorrection{CorrectionID: "c-1", UserID: "alice", Pattern: "p", Correction: "c"}
	if err := m.StoreCorrection(context.Background(), c); err == nil {
		t.Fatal("embedding failure should surface to the caller")
	}

	// The structured row survives the vector outage and a retry with a
	// working embedder upserts rather than duplicating.
	rows, err := store.GetCorrections("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}

	recovered, err := NewVectorStore("", hashEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	m = NewManager(store, recovered)
	if err := m.StoreCorrection(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	rows, err = store.GetCorrections("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("retry should upsert, got %d rows", len(rows))
	}
}
