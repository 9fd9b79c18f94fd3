// Package redact strips credentials (Matrix access tokens, NLU and directory
// API keys) from values before they are logged or printed.
package redact

import "strings"

// Placeholder replaces every redacted value.
const Placeholder = "[REDACTED]"

// String replaces each occurrence of the given secrets in s. Secrets shorter
// than 4 characters are ignored.
func String(s string, secrets ...string) string {
	for _, v := range secrets {
		if len(v) < 4 {
			continue
		}
		s = strings.ReplaceAll(s, v, Placeholder)
	}
	return s
}

// Secret masks a single credential for display: empty stays empty so that
// "not configured" remains visible.
func Secret(v string) string {
	if v == "" {
		return ""
	}
	return Placeholder
}

// Map returns a copy of m where every non-empty string under a key that looks
// like a credential is replaced. Nested maps are walked.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = Map(val)
		case string:
			if val != "" && sensitiveKey(k) {
				out[k] = Placeholder
			} else {
				out[k] = val
			}
		default:
			out[k] = v
		}
	}
	return out
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range []string{"token", "secret", "password", "apikey", "api_key", "credential"} {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}
