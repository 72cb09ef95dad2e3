package memory

import (
	"context"

	"github.com/google/uuid"

	"clipbrief/internal/logger"
)

// Service is the validated facade the rest of the application talks to.
// Every entry point checks the user ID before touching a store.
type Service struct {
	manager   *Manager
	processor *FeedbackProcessor
}

// NewService builds the facade. processor may be nil when no LLM is
// configured; feedback then queues but is not distilled.
func NewService(manager *Manager, processor *FeedbackProcessor) *Service {
	return &Service{manager: manager, processor: processor}
}

// GetProfile returns the user's profile, creating it on first access.
func (s *Service) GetProfile(userID string) (*UserProfile, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.manager.GetOrCreateProfile(userID)
}

// updatableFields whitelists the profile fields callers may set through
// UpdatePreferences. Anything else is silently ignored.
var updatableFields = map[string]bool{
	"display_name":    true,
	"language":        true,
	"preferred_style": true,
	"analysis_depth":  true,
	"blocked_sources": true,
}

// UpdatePreferences applies the whitelisted subset of updates to the
// user's profile.
func (s *Service) UpdatePreferences(userID string, updates map[string]any) (*UserProfile, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	profile, err := s.manager.GetOrCreateProfile(userID)
	if err != nil {
		return nil, err
	}

	for key, value := range updates {
		if !updatableFields[key] {
			logger.Debug("ignoring non-updatable preference", "field", key)
			continue
		}
		switch key {
		case "display_name":
			if v, ok := value.(string); ok {
				profile.DisplayName = v
			}
		case "language":
			if v, ok := value.(string); ok {
				profile.Language = v
			}
		case "preferred_style":
			if v, ok := value.(string); ok {
				profile.PreferredStyle = v
			}
		case "analysis_depth":
			if v, ok := value.(string); ok {
				profile.AnalysisDepth = v
			}
		case "blocked_sources":
			profile.BlockedSources = toStringSlice(value)
		}
	}

	if err := s.manager.UpdateProfile(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// SubmitFeedback stores one feedback record and returns its generated
// ID.
func (s *Service) SubmitFeedback(userID string, fb Feedback) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	if _, err := s.manager.GetOrCreateProfile(userID); err != nil {
		return "", err
	}
	fb.FeedbackID = uuid.NewString()
	fb.UserID = userID
	fb.Processed = false
	if err := s.manager.store.SaveFeedback(&fb); err != nil {
		return "", err
	}
	logger.Info("feedback submitted", "user_id", userID, "feedback_id", fb.FeedbackID, "type", fb.Type)
	return fb.FeedbackID, nil
}

// ProcessFeedback distills all pending feedback for the user and
// returns how many corrections were learned.
func (s *Service) ProcessFeedback(ctx context.Context, userID string) (int, error) {
	if err := ValidateUserID(userID); err != nil {
		return 0, err
	}
	if s.processor == nil {
		return 0, nil
	}
	return s.processor.ProcessAllPending(ctx, userID)
}

// GetPersonalizedPrompt appends the user's learned context to a base
// prompt. See Personalizer for the section order.
func (s *Service) GetPersonalizedPrompt(ctx context.Context, userID, basePrompt, topic, currentInput string) (string, error) {
	if err := ValidateUserID(userID); err != nil {
		return "", err
	}
	return NewPersonalizer(s.manager).Personalize(ctx, basePrompt, userID, topic, currentInput)
}

// GetTopicContext returns the user's per-topic context.
func (s *Service) GetTopicContext(ctx context.Context, userID, topic string) (*TopicContext, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.manager.GetTopicContext(ctx, userID, topic)
}

// UpdateTopicPreference records interest level and notes for a topic.
func (s *Service) UpdateTopicPreference(userID, topic string, interestLevel float64, notes string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	return s.manager.UpdateTopicPreference(userID, topic, interestLevel, notes)
}

// ExportUser returns everything stored about a user.
func (s *Service) ExportUser(userID string) (*Export, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	return s.manager.ExportUser(userID)
}

// DeleteUser erases a user from every store. Returns true once the
// user is gone.
func (s *Service) DeleteUser(userID string) (bool, error) {
	if err := ValidateUserID(userID); err != nil {
		return false, err
	}
	if err := s.manager.DeleteUser(userID); err != nil {
		return false, err
	}
	return true, nil
}

func toStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
