package observability

import (
	"strings"
	"unicode"
)

// Request data flows into log fields verbatim, so values are stripped of
// control characters and clamped before they reach an encoder.

func logSafe(value string, max int) string {
	if max <= 0 {
		max = 256
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	runes := []rune(cleaned)
	if len(runes) > max {
		runes = runes[:max]
	}
	return string(runes)
}

func logSafeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return logSafe(route, 180)
}

func logSafeMethod(method string) string {
	return logSafe(method, 10)
}

func logSafeUID(uid string) string {
	return logSafe(uid, 64)
}
