package memory

import (
	"context"
	"fmt"
	"strings"

	"clipbrief/internal/logger"
)

// Personalizer augments agent prompts with what the system has learned
// about a user. Empty sections are omitted so an unknown user gets the
// base prompt unchanged.
type Personalizer struct {
	manager *Manager
}

// NewPersonalizer builds the engine.
func NewPersonalizer(manager *Manager) *Personalizer {
	return &Personalizer{manager: manager}
}

// Personalize appends user preference, correction, topic and blocklist
// sections to basePrompt. currentInput drives the correction recall.
func (p *Personalizer) Personalize(ctx context.Context, basePrompt, userID, topic, currentInput string) (string, error) {
	profile, err := p.manager.GetOrCreateProfile(userID)
	if err != nil {
		return "", err
	}

	sections := []string{basePrompt}

	if s := preferenceSection(profile); s != "" {
		sections = append(sections, s)
	}

	hits, err := p.manager.RecallCorrections(ctx, userID, currentInput, 5)
	if err != nil {
		logger.Warn("correction recall failed", "user_id", userID, "error", err.Error())
	} else if s := correctionSection(hits); s != "" {
		sections = append(sections, s)
	}

	if pref, ok := profile.TopicPreferences[topic]; ok {
		sections = append(sections, topicSection(pref))
	}

	if len(profile.BlockedSources) > 0 {
		sections = append(sections, "避免引用以下來源："+strings.Join(profile.BlockedSources, "、"))
	}

	return strings.Join(sections, "\n\n"), nil
}

func preferenceSection(profile *UserProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "使用者偏好：風格 %s，分析深度 %s，語言 %s。",
		profile.PreferredStyle, profile.AnalysisDepth, profile.Language)
	if profile.ProfessionalBackground != "" {
		fmt.Fprintf(&b, "\n專業背景：%s。", profile.ProfessionalBackground)
	}
	if len(profile.AreasOfExpertise) > 0 {
		fmt.Fprintf(&b, "\n專長領域：%s。", strings.Join(profile.AreasOfExpertise, "、"))
	}
	return b.String()
}

func correctionSection(hits []SearchHit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("過去學到的修正，適用時請遵守：")
	for _, h := range hits {
		pattern := h.Metadata["pattern"]
		correction := h.Metadata["correction"]
		if pattern == "" || correction == "" {
			continue
		}
		fmt.Fprintf(&b, "\n- 情境「%s」：%s", pattern, correction)
		if c := h.Metadata["context"]; c != "" {
			fmt.Fprintf(&b, "（%s）", c)
		}
	}
	return b.String()
}

func topicSection(pref TopicPreference) string {
	s := fmt.Sprintf("使用者對此主題的興趣程度：%.1f。", pref.InterestLevel)
	if pref.PerspectiveNotes != "" {
		s += "觀點備註：" + pref.PerspectiveNotes
	}
	return s
}
