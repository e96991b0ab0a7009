package generation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var listPrefix = regexp.MustCompile(`^[-*\d.\s]+`)

type replyEnvelope struct {
	Replies []interface{} `json:"replies"`
}

// ExtractReplies turns raw model text into at most expected replies. It tries
// strict JSON, then repaired JSON, then one reply per line.
func ExtractReplies(raw string, expected int) []string {
	text := strings.TrimSpace(raw)
	if text == "" || expected <= 0 {
		return nil
	}

	if replies, ok := parseEnvelope(text); ok {
		return limit(replies, expected)
	}
	if unfenced := stripCodeFence(text); unfenced != text {
		if replies, ok := parseEnvelope(unfenced); ok {
			return limit(replies, expected)
		}
	}
	if repaired, err := jsonrepair.JSONRepair(stripCodeFence(text)); err == nil {
		if replies, ok := parseEnvelope(repaired); ok {
			return limit(replies, expected)
		}
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listPrefix.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return limit(out, expected)
}

func parseEnvelope(text string) ([]string, bool) {
	var env replyEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil || env.Replies == nil {
		return nil, false
	}
	replies := make([]string, 0, len(env.Replies))
	for _, r := range env.Replies {
		s, ok := r.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			replies = append(replies, s)
		}
	}
	return replies, true
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}

func limit(replies []string, n int) []string {
	if len(replies) > n {
		return replies[:n]
	}
	return replies
}
