package cache

import "strings"

// Type represents the type of cache.
type Type string

const (
	// TypeRedis represents a Redis cache.
	TypeRedis Type = "redis"
)

// EscapeGlob escapes glob metacharacters so s matches literally in a
// SCAN MATCH pattern.
func EscapeGlob(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
