package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"clipbrief/internal/logger"
)

// Manager coordinates the structured store and the vector store behind
// one surface, with an in-process profile cache in front of SQLite.
type Manager struct {
	store  *Store
	vector *VectorStore

	mu       sync.RWMutex
	profiles map[string]*UserProfile
}

// NewManager wires the two stores together.
func NewManager(store *Store, vector *VectorStore) *Manager {
	return &Manager{
		store:    store,
		vector:   vector,
		profiles: make(map[string]*UserProfile),
	}
}

// GetOrCreateProfile returns the cached profile, loading it from the
// store or creating a default one on first sight.
func (m *Manager) GetOrCreateProfile(userID string) (*UserProfile, error) {
	m.mu.RLock()
	profile, ok := m.profiles[userID]
	m.mu.RUnlock()
	if ok {
		return profile, nil
	}

	profile, err := m.store.GetProfile(userID)
	if errors.Is(err, ErrNotFound) {
		profile = NewUserProfile(userID)
		if err := m.store.SaveProfile(profile); err != nil {
			return nil, err
		}
		logger.Info("created user profile", "user_id", userID)
	} else if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.profiles[userID] = profile
	m.mu.Unlock()
	return profile, nil
}

// UpdateProfile persists the profile and writes through the cache.
func (m *Manager) UpdateProfile(profile *UserProfile) error {
	if err := m.store.SaveProfile(profile); err != nil {
		return err
	}
	m.mu.Lock()
	m.profiles[profile.UserID] = profile
	m.mu.Unlock()
	return nil
}

// StoreCorrection persists a learned correction in both stores, SQLite
// first so the durable record exists even if embedding fails.
func (m *Manager) StoreCorrection(ctx context.Context, c *LearnedCorrection) error {
	if err := m.store.SaveCorrection(c); err != nil {
		return err
	}
	if err := m.vector.AddCorrection(ctx, c); err != nil {
		// The structured row stays. A retry re-upserts the same
		// correction_id in both stores, so no duplicates result.
		logger.Error("correction saved but not embedded", err, "correction_id", c.CorrectionID)
		return err
	}
	return nil
}

// RecallCorrections finds corrections semantically relevant to input.
func (m *Manager) RecallCorrections(ctx context.Context, userID, input string, limit int) ([]SearchHit, error) {
	return m.vector.SearchCorrections(ctx, userID, input, limit)
}

// StoreConversation records a conversation snippet for later recall.
func (m *Manager) StoreConversation(ctx context.Context, userID, sessionID, content string, metadata map[string]string) error {
	return m.vector.AddConversation(ctx, userID, sessionID, content, metadata)
}

// TopicContext bundles everything the pipeline wants to know about a
// user before researching a topic.
type TopicContext struct {
	TopicPreference      *TopicPreference `json:"topic_preference,omitempty"`
	RelatedKnowledge     []KnowledgeNode  `json:"related_knowledge,omitempty"`
	RelatedConversations []SearchHit      `json:"related_conversations,omitempty"`
	UserStyle            string           `json:"user_style"`
	AnalysisDepth        string           `json:"analysis_depth"`
}

// GetTopicContext assembles the per-topic view of a user: their stored
// preference, topic nodes whose name mentions the topic, and the three
// most relevant past conversations.
func (m *Manager) GetTopicContext(ctx context.Context, userID, topic string) (*TopicContext, error) {
	profile, err := m.GetOrCreateProfile(userID)
	if err != nil {
		return nil, err
	}

	tc := &TopicContext{
		UserStyle:     profile.PreferredStyle,
		AnalysisDepth: profile.AnalysisDepth,
	}
	if pref, ok := profile.TopicPreferences[topic]; ok {
		tc.TopicPreference = &pref
	}

	nodes, err := m.store.GetNodes(userID, NodeTopic)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(topic)
	for _, n := range nodes {
		if strings.Contains(strings.ToLower(n.Name), needle) {
			tc.RelatedKnowledge = append(tc.RelatedKnowledge, n)
		}
	}

	convs, err := m.vector.SearchConversations(ctx, userID, topic, 3)
	if err != nil {
		logger.Warn("conversation recall failed", "user_id", userID, "error", err.Error())
	} else {
		tc.RelatedConversations = convs
	}
	return tc, nil
}

// UpdateTopicPreference sets a user's interest level and notes for one
// topic.
func (m *Manager) UpdateTopicPreference(userID, topic string, interestLevel float64, notes string) error {
	profile, err := m.GetOrCreateProfile(userID)
	if err != nil {
		return err
	}
	if profile.TopicPreferences == nil {
		profile.TopicPreferences = make(map[string]TopicPreference)
	}
	profile.TopicPreferences[topic] = TopicPreference{
		Topic:            topic,
		InterestLevel:    clamp01(interestLevel),
		PerspectiveNotes: notes,
		LastUpdated:      time.Now().UTC(),
	}
	return m.UpdateProfile(profile)
}

// SaveKnowledgeNode upserts a node in the user's knowledge graph.
func (m *Manager) SaveKnowledgeNode(n *KnowledgeNode) error {
	return m.store.SaveNode(n)
}

// SaveKnowledgeEdge upserts an edge in the user's knowledge graph.
func (m *Manager) SaveKnowledgeEdge(e *KnowledgeEdge) error {
	return m.store.SaveEdge(e)
}

// Export bundles everything stored about a user.
type Export struct {
	Profile        *UserProfile        `json:"profile"`
	Corrections    []LearnedCorrection `json:"corrections"`
	KnowledgeNodes []KnowledgeNode     `json:"knowledge_nodes"`
	KnowledgeEdges []KnowledgeEdge     `json:"knowledge_edges"`
}

// ExportUser returns a full dump of a user's memory.
func (m *Manager) ExportUser(userID string) (*Export, error) {
	profile, err := m.GetOrCreateProfile(userID)
	if err != nil {
		return nil, err
	}
	corrections, err := m.store.GetCorrections(userID, 1000)
	if err != nil {
		return nil, err
	}
	nodes, err := m.store.GetNodes(userID, "")
	if err != nil {
		return nil, err
	}
	edges, err := m.store.GetEdges(userID)
	if err != nil {
		return nil, err
	}
	return &Export{Profile: profile, Corrections: corrections, KnowledgeNodes: nodes, KnowledgeEdges: edges}, nil
}

// DeleteUser removes a user from both stores and the cache.
func (m *Manager) DeleteUser(userID string) error {
	if err := m.store.DeleteUser(userID); err != nil {
		return err
	}
	if err := m.vector.DeleteUser(userID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.profiles, userID)
	m.mu.Unlock()
	logger.Info("deleted user memory", "user_id", userID)
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
