package query

import "strings"

// Key identifies a cached query. Keys are hierarchical: invalidating a key
// marks every key it prefixes.
type Key []string

// K builds a key from its segments.
func K(segments ...string) Key {
	return Key(segments)
}

// HasPrefix reports whether p is a leading run of k's segments.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if k[i] != p[i] {
			return false
		}
	}
	return true
}

func (k Key) Equal(o Key) bool {
	return len(k) == len(o) && k.HasPrefix(o)
}

func (k Key) String() string {
	return "[" + strings.Join(k, " ") + "]"
}

// id is the map key for k. Segments are joined with a separator that cannot
// appear in identifiers.
func (k Key) id() string {
	return strings.Join(k, "\x1f")
}
