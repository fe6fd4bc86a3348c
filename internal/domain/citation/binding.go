package citation

import "github.com/kailas-cloud/contramate/internal/domain/passage"

// Map is the citation mapping from key to source descriptor.
type Map map[string]string

// Binding assigns citation keys to passages by position: doc1 is the first passage,
// doc2 the second, and so on. It is built once per answer cycle and reused unchanged
// by every retry of that cycle.
type Binding struct {
	passages []passage.Passage
}

// NewBinding freezes the passage order.
func NewBinding(passages []passage.Passage) Binding {
	return Binding{passages: append([]passage.Passage(nil), passages...)}
}

// Len returns the number of bound passages (k).
func (b Binding) Len() int { return len(b.passages) }

// Key returns the key bound to zero-based position i.
func (b Binding) Key(i int) Key { return KeyAt(i) }

// At returns the passage at zero-based position i.
func (b Binding) At(i int) passage.Passage { return b.passages[i] }

// Lookup resolves a key to its passage.
func (b Binding) Lookup(key string) (passage.Passage, bool) {
	n, err := ParseKey(key)
	if err != nil || n > len(b.passages) {
		return passage.Passage{}, false
	}
	return b.passages[n-1], true
}

// Passages returns the bound passages in key order.
func (b Binding) Passages() []passage.Passage {
	return append([]passage.Passage(nil), b.passages...)
}

// Expected returns the descriptor each key must map to.
func (b Binding) Expected() Map {
	m := make(Map, len(b.passages))
	for i, p := range b.passages {
		m[string(KeyAt(i))] = p.Descriptor()
	}
	return m
}
