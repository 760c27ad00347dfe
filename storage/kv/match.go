package kv

import (
	"github.com/tidwall/match"
)

// Match reports whether key matches the glob pattern using the
// syntax that Scan accepts. Drivers whose storage cannot filter
// keys server-side use it to filter scan pages.
func Match(key string, pattern string) bool {
	return match.Match(key, pattern)
}
