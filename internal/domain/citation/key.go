package citation

import (
	"fmt"
	"regexp"
	"strconv"
)

// Key is a positional citation token of the form doc{N}, N starting at 1.
type Key string

var keyPattern = regexp.MustCompile(`^doc([1-9][0-9]*)$`)

// KeyAt returns the key assigned to the passage at zero-based position i.
func KeyAt(i int) Key {
	return Key(fmt.Sprintf("doc%d", i+1))
}

// ParseKey returns the one-based position encoded in s.
func ParseKey(s string) (int, error) {
	m := keyPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid citation key %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("invalid citation key %q: %w", s, err)
	}
	return n, nil
}

// Marker returns the inline form "[docN]".
func (k Key) Marker() string { return "[" + string(k) + "]" }
