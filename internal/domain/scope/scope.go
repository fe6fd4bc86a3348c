package scope

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/contramate/internal/domain"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
)

// MaxDocuments is the maximum number of exact documents a single scope may name.
const MaxDocuments = 64

// Source is the content-source tag of indexed passages.
type Source string

// Content sources.
const (
	// SourceSystem is the curated corpus. Unscoped queries default to it.
	SourceSystem Source = "system"
	SourceUpload Source = "upload"
)

// IsValid checks if the source is one of the supported values.
func (s Source) IsValid() bool {
	return s == SourceSystem || s == SourceUpload
}

// DocumentRef identifies one exact document.
type DocumentRef struct {
	ProjectID      string
	ReferenceDocID string
}

// Key returns the composite "{project_id}-{reference_doc_id}" identity.
func (d DocumentRef) Key() string {
	return passage.DocumentKey(d.ProjectID, d.ReferenceDocID)
}

// Filter restricts which documents and categories a query may draw from.
type Filter struct {
	documents     []DocumentRef
	source        Source
	contractTypes []string
	projectIDs    []string
}

// New validates and creates a Filter. Empty arguments are allowed; an empty Filter
// compiles to the default system scope.
func New(documents []DocumentRef, source Source, contractTypes, projectIDs []string) (Filter, error) {
	if len(documents) > MaxDocuments {
		return Filter{}, fmt.Errorf("%w: too many documents (max %d)", domain.ErrInvalidScope, MaxDocuments)
	}
	for i, d := range documents {
		if strings.TrimSpace(d.ProjectID) == "" {
			return Filter{}, fmt.Errorf("%w: documents[%d].project_id is required", domain.ErrInvalidScope, i)
		}
		if strings.TrimSpace(d.ReferenceDocID) == "" {
			return Filter{}, fmt.Errorf("%w: documents[%d].reference_doc_id is required", domain.ErrInvalidScope, i)
		}
	}
	if source != "" && !source.IsValid() {
		return Filter{}, fmt.Errorf("%w: unknown source %q", domain.ErrInvalidScope, source)
	}
	if err := checkValues("contract_type", contractTypes); err != nil {
		return Filter{}, err
	}
	if err := checkValues("project_id", projectIDs); err != nil {
		return Filter{}, err
	}

	return Filter{
		documents:     dedupDocuments(documents),
		source:        source,
		contractTypes: dedupStrings(contractTypes),
		projectIDs:    dedupStrings(projectIDs),
	}, nil
}

func checkValues(name string, values []string) error {
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s[%d] is empty", domain.ErrInvalidScope, name, i)
		}
	}
	return nil
}

// dedupDocuments keeps first occurrence order.
func dedupDocuments(in []DocumentRef) []DocumentRef {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[DocumentRef]struct{}, len(in))
	out := make([]DocumentRef, 0, len(in))
	for _, d := range in {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Documents returns the exact documents.
func (f Filter) Documents() []DocumentRef { return append([]DocumentRef(nil), f.documents...) }

// Source returns the content-source tag, empty if unset.
func (f Filter) Source() Source { return f.source }

// ContractTypes returns the contract-type restriction.
func (f Filter) ContractTypes() []string { return append([]string(nil), f.contractTypes...) }

// ProjectIDs returns the project restriction.
func (f Filter) ProjectIDs() []string { return append([]string(nil), f.projectIDs...) }

// IsEmpty reports whether no restriction is set.
func (f Filter) IsEmpty() bool {
	return len(f.documents) == 0 && f.source == "" && len(f.contractTypes) == 0 && len(f.projectIDs) == 0
}

// HasDocuments reports whether the filter names exact documents.
func (f Filter) HasDocuments() bool { return len(f.documents) > 0 }

// WithDocuments returns a copy narrowed to the given documents, keeping the categorical restrictions.
func (f Filter) WithDocuments(docs ...DocumentRef) Filter {
	f.documents = dedupDocuments(docs)
	f.contractTypes = append([]string(nil), f.contractTypes...)
	f.projectIDs = append([]string(nil), f.projectIDs...)
	return f
}

// Admits reports whether a passage belongs to the filter's exact documents.
// Filters without exact documents admit everything; categorical restrictions are left to the backend.
func (f Filter) Admits(id passage.ID) bool {
	if len(f.documents) == 0 {
		return true
	}
	for _, d := range f.documents {
		if d.ProjectID == id.ProjectID && d.ReferenceDocID == id.ReferenceDocID {
			return true
		}
	}
	return false
}
