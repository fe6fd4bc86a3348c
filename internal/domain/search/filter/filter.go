package filter

import (
	"github.com/kailas-cloud/contramate/internal/domain/scope"
)

// Indexed field names the compiled clauses restrict.
const (
	FieldDocument     = "project_reference_doc_id"
	FieldSource       = "content_source"
	FieldContractType = "contract_type"
	FieldProjectID    = "project_id"
)

// Kind distinguishes an equality clause from a membership clause.
type Kind int

// Clause kinds.
const (
	// Term matches one exact value.
	Term Kind = iota + 1
	// Terms matches any of several values.
	Terms
)

func (k Kind) String() string {
	switch k {
	case Term:
		return "term"
	case Terms:
		return "terms"
	default:
		return "unknown"
	}
}

// Clause is a single backend filter clause over a named field.
type Clause struct {
	field  string
	values []string
}

// Field returns the indexed field name.
func (c Clause) Field() string { return c.field }

// Values returns the allowed values.
func (c Clause) Values() []string { return append([]string(nil), c.values...) }

// Value returns the single value of a Term clause.
func (c Clause) Value() string {
	if len(c.values) == 0 {
		return ""
	}
	return c.values[0]
}

// Kind reports Term for one value and Terms for several.
func (c Clause) Kind() Kind {
	if len(c.values) == 1 {
		return Term
	}
	return Terms
}

// Compiled is an ordered list of filter clauses, ANDed together by the backend.
type Compiled struct {
	clauses []Clause
}

// Clauses returns the clauses in compile order.
func (c Compiled) Clauses() []Clause { return append([]Clause(nil), c.clauses...) }

// Len returns the number of clauses.
func (c Compiled) Len() int { return len(c.clauses) }

// Compile translates a scope into backend filter clauses.
// Order is fixed: documents, source, contract types, project ids. When the scope
// sets nothing, the result is a single content_source=system clause.
func Compile(s scope.Filter) Compiled {
	var clauses []Clause

	if docs := s.Documents(); len(docs) > 0 {
		keys := make([]string, len(docs))
		for i, d := range docs {
			keys[i] = d.Key()
		}
		clauses = append(clauses, Clause{field: FieldDocument, values: keys})
	}
	if src := s.Source(); src != "" {
		clauses = append(clauses, Clause{field: FieldSource, values: []string{string(src)}})
	}
	if ct := s.ContractTypes(); len(ct) > 0 {
		clauses = append(clauses, Clause{field: FieldContractType, values: ct})
	}
	if pids := s.ProjectIDs(); len(pids) > 0 {
		clauses = append(clauses, Clause{field: FieldProjectID, values: pids})
	}

	if len(clauses) == 0 {
		clauses = append(clauses, Clause{field: FieldSource, values: []string{string(scope.SourceSystem)}})
	}
	return Compiled{clauses: clauses}
}
