// Package memory implements the personalization engine: durable user
// profiles and feedback in SQLite, semantic recall through the vector
// store, and prompt personalization built on both.
package memory

import (
	"fmt"
	"regexp"
	"time"
)

// FeedbackType classifies what kind of signal the user gave.
type FeedbackType string

const (
	FeedbackCorrection   FeedbackType = "correction"
	FeedbackDisagreement FeedbackType = "disagreement"
	FeedbackPreference   FeedbackType = "preference"
	FeedbackRelevance    FeedbackType = "relevance"
	FeedbackQuality      FeedbackType = "quality"
)

// Severity grades how strongly the feedback should weigh.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// NodeType classifies knowledge graph nodes.
type NodeType string

const (
	NodeTopic        NodeType = "topic"
	NodeEntity       NodeType = "entity"
	NodeSource       NodeType = "source"
	NodeConcept      NodeType = "concept"
	NodePerson       NodeType = "person"
	NodeOrganization NodeType = "organization"
)

var userIDRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// ValidateUserID enforces the user ID charset and length.
func ValidateUserID(userID string) error {
	if !userIDRe.MatchString(userID) {
		return fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return nil
}

// TopicPreference records how a user relates to one topic.
type TopicPreference struct {
	Topic            string    `json:"topic"`
	InterestLevel    float64   `json:"interest_level"` // 0..1
	PerspectiveNotes string    `json:"perspective_notes,omitempty"`
	LastUpdated      time.Time `json:"last_updated"`
}

// SourceTrust records how much a user trusts one source.
type SourceTrust struct {
	SourceName string  `json:"source_name"`
	SourceURL  string  `json:"source_url,omitempty"`
	TrustLevel float64 `json:"trust_level"` // 0..1
	Notes      string  `json:"notes,omitempty"`
}

// UserProfile is the durable per-user preference record. The JSON form
// is what gets persisted in the users table.
type UserProfile struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DisplayName string `json:"display_name,omitempty"`
	Language    string `json:"language"`
	Timezone    string `json:"timezone"`

	PreferredStyle string `json:"preferred_style"` // formal/casual/technical/simplified
	AnalysisDepth  string `json:"analysis_depth"`  // brief/standard/detailed/comprehensive

	TopicPreferences map[string]TopicPreference `json:"topic_preferences,omitempty"`
	TrustedSources   []SourceTrust              `json:"trusted_sources,omitempty"`
	BlockedSources   []string                   `json:"blocked_sources,omitempty"`

	ProfessionalBackground string   `json:"professional_background,omitempty"`
	AreasOfExpertise       []string `json:"areas_of_expertise,omitempty"`

	AutoLearnFromFeedback bool    `json:"auto_learn_from_feedback"`
	FeedbackWeight        float64 `json:"feedback_weight"` // 0.1..1.0
}

// NewUserProfile builds a profile with defaults.
func NewUserProfile(userID string) *UserProfile {
	now := time.Now().UTC()
	return &UserProfile{
		UserID:                userID,
		CreatedAt:             now,
		UpdatedAt:             now,
		Language:              "zh-TW",
		Timezone:              "Asia/Taipei",
		PreferredStyle:        "casual",
		AnalysisDepth:         "standard",
		TopicPreferences:      make(map[string]TopicPreference),
		AutoLearnFromFeedback: true,
		FeedbackWeight:        0.7,
	}
}

// Feedback is one piece of user feedback awaiting distillation.
type Feedback struct {
	FeedbackID string       `json:"feedback_id"`
	UserID     string       `json:"user_id"`
	SessionID  string       `json:"session_id,omitempty"`
	Type       FeedbackType `json:"feedback_type"`
	Severity   Severity     `json:"severity"`

	OriginalContent  string `json:"original_content,omitempty"`
	OriginalAnalysis string `json:"original_analysis,omitempty"`
	AgentType        string `json:"agent_type,omitempty"`

	UserCorrection  string `json:"user_correction,omitempty"`
	UserExplanation string `json:"user_explanation,omitempty"`

	Topics  []string `json:"topics,omitempty"`
	Sources []string `json:"sources,omitempty"`

	Processed bool       `json:"processed"`
	CreatedAt time.Time  `json:"created_at"`
	LearnedAt *time.Time `json:"learned_at,omitempty"`
}

// LearnedCorrection is a distilled, reusable correction pattern.
type LearnedCorrection struct {
	CorrectionID string `json:"correction_id"`
	UserID       string `json:"user_id"`

	Pattern    string `json:"pattern"`
	Correction string `json:"correction"`
	Context    string `json:"context,omitempty"`

	Confidence     float64 `json:"confidence"` // 0..1
	TimesApplied   int     `json:"times_applied"`
	TimesConfirmed int     `json:"times_confirmed"`
	TimesRejected  int     `json:"times_rejected"`

	EmbeddingKey string    `json:"embedding_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// KnowledgeNode is one entry in a user's knowledge graph.
type KnowledgeNode struct {
	NodeID string   `json:"node_id"`
	UserID string   `json:"user_id"`
	Type   NodeType `json:"node_type"`

	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	UserSentiment    float64 `json:"user_sentiment"` // -1..1
	UserNotes        string  `json:"user_notes,omitempty"`
	InteractionCount int     `json:"interaction_count"`

	EmbeddingKey string    `json:"embedding_key,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// KnowledgeEdge links two knowledge nodes.
type KnowledgeEdge struct {
	EdgeID string `json:"edge_id"`
	UserID string `json:"user_id"`

	SourceNodeID string `json:"source_node_id"`
	TargetNodeID string `json:"target_node_id"`
	RelationType string `json:"relation_type"`

	Weight        float64   `json:"weight"` // 0..1
	UserConfirmed bool      `json:"user_confirmed"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
