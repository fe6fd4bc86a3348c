package db

import "github.com/kailas-cloud/contramate/internal/domain/search/filter"

// Stored passage field names shared by every backend.
const (
	FieldRecordID         = "record_id"
	FieldProjectID        = "project_id"
	FieldReferenceDocID   = "reference_doc_id"
	FieldDocumentKey      = "project_reference_doc_id"
	FieldChunkIndex       = "chunk_index"
	FieldDocumentTitle    = "document_title"
	FieldDisplayName      = "display_name"
	FieldContent          = "content"
	FieldContractType     = "contract_type"
	FieldContentSource    = "content_source"
	FieldSectionHierarchy = "section_hierarchy"
	FieldVector           = "vector"
)

// SectionSeparator joins section hierarchy levels in flat string fields.
const SectionSeparator = " > "

// PassageFields lists the fields returned for every hit.
var PassageFields = []string{
	FieldRecordID, FieldProjectID, FieldReferenceDocID, FieldChunkIndex,
	FieldDocumentTitle, FieldDisplayName, FieldContent, FieldContractType,
	FieldContentSource, FieldSectionHierarchy,
}

// HybridQuery is the input for a combined lexical and vector search.
// An empty Text disables the lexical clause; a nil Vector disables the kNN clause.
type HybridQuery struct {
	IndexName string
	Text      string
	Vector    []float32
	Filter    filter.Compiled
	// K is the number of candidates requested.
	K int
}

// ListQuery is the input for an unranked, filtered listing.
type ListQuery struct {
	IndexName string
	Filter    filter.Compiled
	Offset    int
	Limit     int
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single passage hit. Multi-valued fields are flattened with SectionSeparator.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
