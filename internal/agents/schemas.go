package agents

import "google.golang.org/genai"

func stringArray() *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
}

// subQuerySchema constrains the decomposer's output.
var subQuerySchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sub_queries":         stringArray(),
		"search_strategy":     {Type: genai.TypeString},
		"recommended_sources": stringArray(),
	},
	Required: []string{"sub_queries", "search_strategy"},
}

// analysisSchema constrains the analyzer's output.
var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"topic":             {Type: genai.TypeString},
		"key_insights":      stringArray(),
		"controversies":     stringArray(),
		"trending_angles":   stringArray(),
		"sentiment_summary": {Type: genai.TypeString},
		"recommended_hooks": stringArray(),
		"source_count":      {Type: genai.TypeInteger},
		"confidence_score":  {Type: genai.TypeNumber},
	},
	Required: []string{"topic", "key_insights", "sentiment_summary", "confidence_score"},
}

// briefSchema constrains the synthesizer's creative output.
var briefSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"topic":               {Type: genai.TypeString},
		"title_suggestion":    {Type: genai.TypeString},
		"hook_line":           {Type: genai.TypeString},
		"key_talking_points":  stringArray(),
		"visual_suggestions":  stringArray(),
		"viral_score":         {Type: genai.TypeNumber},
		"target_emotion":      {Type: genai.TypeString},
		"controversy_level":   {Type: genai.TypeString},
		"call_to_action":      {Type: genai.TypeString},
		"hashtag_suggestions": stringArray(),
		"platform_tips": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"tiktok":          stringArray(),
				"youtube_shorts":  stringArray(),
				"instagram_reels": stringArray(),
			},
		},
	},
	Required: []string{"title_suggestion", "hook_line", "key_talking_points", "viral_score"},
}
