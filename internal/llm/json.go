package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Recovery records how a JSON response was extracted from the raw text.
type Recovery string

const (
	// RecoveryNone means the raw text parsed as is.
	RecoveryNone Recovery = "none"
	// RecoveryFence means markdown code fences were stripped before parsing.
	RecoveryFence Recovery = "fence"
	// RecoveryBraceScan means the object between the first '{' and the last '}' was parsed.
	RecoveryBraceScan Recovery = "brace_scan"
)

// parseJSON decodes a model response. It first strips code fences and parses
// the remainder; when that fails it falls back to the substring between the
// first '{' and the last '}'.
func parseJSON(raw string) (any, Recovery, error) {
	trimmed := strings.TrimSpace(raw)
	cleaned := stripFences(trimmed)

	recovery := RecoveryNone
	if cleaned != trimmed {
		recovery = RecoveryFence
	}

	var value any
	err := json.Unmarshal([]byte(cleaned), &value)
	if err == nil {
		return value, recovery, nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, "", fmt.Errorf("parse json response: %w", err)
	}

	var embedded any
	if scanErr := json.Unmarshal([]byte(raw[start:end+1]), &embedded); scanErr != nil {
		return nil, "", fmt.Errorf("parse json response: %w", scanErr)
	}

	return embedded, RecoveryBraceScan, nil
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```")
		if nl := strings.IndexByte(raw, '\n'); nl >= 0 && isLanguageTag(raw[:nl]) {
			raw = raw[nl+1:]
		} else if len(raw) >= 4 && strings.EqualFold(raw[:4], "json") {
			raw = raw[4:]
		}
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func isLanguageTag(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// missingKeys returns the required keys absent from value. Dotted keys walk
// nested objects ("requirements.must_have_skills"). A key holding null counts
// as missing.
func missingKeys(value any, required []string) []string {
	var missing []string
	for _, key := range required {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if !hasPath(value, strings.Split(key, ".")) {
			missing = append(missing, key)
		}
	}
	return missing
}

func hasPath(value any, path []string) bool {
	current := value
	for _, segment := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return false
		}
		next, ok := obj[segment]
		if !ok || next == nil {
			return false
		}
		current = next
	}
	return true
}
