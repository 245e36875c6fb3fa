package kv

import (
	"context"
	"strings"
)

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// EscapeGlob quotes the glob metacharacters of s so it matches literally in a SCAN pattern.
func EscapeGlob(s string) string {
	return globEscaper.Replace(s)
}

// Count walks the whole cursor space and returns how many keys match pattern.
// Keys written or expired during the walk may or may not be counted.
func Count(ctx context.Context, s Store, pattern string, step int64) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.Scan(ctx, cursor, pattern, step)
		if err != nil {
			return 0, err
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
