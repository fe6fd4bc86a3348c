package passage

import (
	"fmt"
	"strings"
)

// ID is the composite identity of a passage inside the index.
type ID struct {
	ProjectID      string
	ReferenceDocID string
	ChunkIndex     int
}

// RecordID returns the "{project_id}-{reference_doc_id}-{chunk_index}" record key.
func (id ID) RecordID() string {
	return fmt.Sprintf("%s-%s-%d", id.ProjectID, id.ReferenceDocID, id.ChunkIndex)
}

// DocumentKey returns the composite project+document identity.
func (id ID) DocumentKey() string {
	return DocumentKey(id.ProjectID, id.ReferenceDocID)
}

// DocumentKey joins a project id and reference document id into the indexed composite field.
func DocumentKey(projectID, referenceDocID string) string {
	return projectID + "-" + referenceDocID
}

// Passage is one retrievable unit of contract text.
type Passage struct {
	id               ID
	documentTitle    string
	displayName      string
	content          string
	contractType     string
	source           string
	sectionHierarchy []string
	score            float64
}

// Fields holds the optional metadata of a passage.
type Fields struct {
	DocumentTitle    string
	DisplayName      string
	Content          string
	ContractType     string
	Source           string
	SectionHierarchy []string
}

// New creates a passage.
func New(id ID, f Fields, score float64) Passage {
	return Passage{
		id:               id,
		documentTitle:    f.DocumentTitle,
		displayName:      f.DisplayName,
		content:          f.Content,
		contractType:     f.ContractType,
		source:           f.Source,
		sectionHierarchy: append([]string(nil), f.SectionHierarchy...),
		score:            score,
	}
}

// ID returns the composite identity.
func (p Passage) ID() ID { return p.id }

// DocumentTitle returns the source document title.
func (p Passage) DocumentTitle() string { return p.documentTitle }

// DisplayName returns the human-readable name, falling back to the descriptor.
func (p Passage) DisplayName() string {
	if p.displayName == "" {
		return p.Descriptor()
	}
	return p.displayName
}

// Content returns the passage text.
func (p Passage) Content() string { return p.content }

// ContractType returns the contract type, empty if unknown.
func (p Passage) ContractType() string { return p.contractType }

// Source returns the content-source tag.
func (p Passage) Source() string { return p.source }

// SectionHierarchy returns the section path of the passage.
func (p Passage) SectionHierarchy() []string { return append([]string(nil), p.sectionHierarchy...) }

// Section returns the section path joined with " > ".
func (p Passage) Section() string { return strings.Join(p.sectionHierarchy, " > ") }

// Score returns the relevance score. Used for ranking only.
func (p Passage) Score() float64 { return p.score }

// WithScore returns a copy with a different score.
func (p Passage) WithScore(score float64) Passage {
	p.score = score
	return p
}

// Descriptor returns the citation descriptor "{document_title}-{chunk_index}".
func (p Passage) Descriptor() string {
	return fmt.Sprintf("%s-%d", p.documentTitle, p.id.ChunkIndex)
}
