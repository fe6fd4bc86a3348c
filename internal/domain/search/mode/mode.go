package mode

// Mode is the retrieval strategy.
type Mode string

// Search mode constants.
const (
	// Hybrid combines lexical and vector matching in one query.
	Hybrid   Mode = "hybrid"
	Semantic Mode = "semantic"
	Keyword  Mode = "keyword"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Semantic || m == Keyword
}

// NeedsVector reports whether the mode requires a query embedding.
func (m Mode) NeedsVector() bool { return m != Keyword }

// NeedsText reports whether the mode runs a lexical match.
func (m Mode) NeedsText() bool { return m != Semantic }
