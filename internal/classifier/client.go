package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a classification conversation.
type Message struct {
	Role    Role
	Content string
}

// Response is a model answer. Category and Subcategory are empty when the
// reply could not be parsed; Raw always carries the reply text.
type Response struct {
	Category    string
	Subcategory string
	Raw         string
}

// Client sends one classification request to an external model.
type Client interface {
	Send(ctx context.Context, systemPrompt string, history []Message) (Response, error)
}

// ErrEmptyResponse is returned by clients when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

type answer struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// ParseResponse extracts {"category","subcategory"} from a model reply.
// Unparseable replies yield a Response with only Raw set.
func ParseResponse(raw string) Response {
	resp := Response{Raw: raw}
	var a answer
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &a); err != nil {
		return resp
	}
	resp.Category = strings.TrimSpace(a.Category)
	resp.Subcategory = strings.TrimSpace(a.Subcategory)
	return resp
}

// cleanModelJSON strips Markdown fences and surrounding prose from a reply.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
