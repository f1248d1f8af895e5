package cache

import (
	"strings"

	"github.com/cascade-ai/cascade/internal/model/transport"
)

// tagPattern maps a prompt keyword to a template tag. Entries stored with
// a tag can answer any later prompt carrying the same tag, even when the
// prompts share too few tokens for a similarity match.
type tagPattern struct {
	keyword string
	tag     string
}

var tagPatterns = []tagPattern{
	{"what is", "definition"},
	{"define", "definition"},
	{"how to", "instruction"},
	{"explain", "explanation"},
	{"calculate", "calculation"},
	{"compute", "calculation"},
	{"translate", "translation"},
}

// templateTag classifies a prompt into a template tag, empty when the
// prompt matches no known pattern.
func templateTag(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, p := range tagPatterns {
		if strings.Contains(lower, p.keyword) {
			return p.tag
		}
	}
	return ""
}

// template pairs prompt keywords with a canned degraded-service answer.
// Canned answers are the last resort of the template strategy, behind
// tag-matched stored entries; they never replace a real answer, only
// acknowledge the request while service is degraded.
type template struct {
	keywords []string
	content  string
}

var templates = []template{
	{
		keywords: []string{"hello", "hi ", "greeting"},
		content:  "Hello! I'm currently experiencing technical difficulties. Please try again later or contact support.",
	},
	{
		keywords: []string{"help", "support"},
		content:  "For immediate assistance, please contact our support team. We apologize for the inconvenience.",
	},
	{
		keywords: []string{"what is", "define"},
		content:  "I'm unable to process your request at the moment. Please try rephrasing your question or contact support.",
	},
	{
		keywords: []string{"how to"},
		content:  "Step-by-step guidance is temporarily unavailable. Please try again later or contact support.",
	},
	{
		keywords: []string{"explain"},
		content:  "Detailed explanations are temporarily unavailable. Please try again later.",
	},
	{
		keywords: []string{"calculate", "compute"},
		content:  "Our calculation services are temporarily unavailable. Please try again later.",
	},
	{
		keywords: []string{"translate"},
		content:  "Translation services are temporarily unavailable. Please try again later.",
	},
}

// templateResponse matches the prompt against known template patterns.
// Returns false when no pattern applies; templates never produce a
// catch-all answer, so unmatched prompts fall through to a cache miss.
func templateResponse(prompt string) (*transport.Response, bool) {
	lower := strings.ToLower(prompt)
	for _, t := range templates {
		for _, keyword := range t.keywords {
			if strings.Contains(lower, keyword) {
				return &transport.Response{
					Content:    t.content,
					Source:     transport.SourceCacheTemplate,
					Confidence: templateConfidence,
				}, true
			}
		}
	}
	return nil, false
}
