package citation

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultMinDescriptorLen is the shortest descriptor accepted as non-trivial.
const DefaultMinDescriptorLen = 4

// Reason names the first validation rule a candidate violated.
type Reason string

// Rejection reasons, in rule order.
const (
	ReasonMalformedOutput    Reason = "malformed_output"
	ReasonMissingAnswer      Reason = "missing_answer"
	ReasonMissingCitations   Reason = "missing_citations"
	ReasonMissingKey         Reason = "missing_key"
	ReasonUnknownKey         Reason = "unknown_key"
	ReasonDegenerateValue    Reason = "degenerate_value"
	ReasonDescriptorMismatch Reason = "descriptor_mismatch"
)

var markerPattern = regexp.MustCompile(`\[doc\d+\]`)

// placeholders are values models emit instead of a real descriptor.
var placeholders = map[string]struct{}{
	"source":   {},
	"document": {},
	"n/a":      {},
	"na":       {},
	"none":     {},
	"unknown":  {},
	"tbd":      {},
}

// Outcome is the verdict on one candidate.
type Outcome struct {
	accepted bool
	reason   Reason
	detail   string
}

// Accept returns a passing outcome.
func Accept() Outcome { return Outcome{accepted: true} }

// Reject returns a failing outcome naming the violated rule.
func Reject(reason Reason, detail string) Outcome {
	return Outcome{reason: reason, detail: detail}
}

// Accepted reports whether the candidate passed every rule.
func (o Outcome) Accepted() bool { return o.accepted }

// Reason returns the violated rule, empty when accepted.
func (o Outcome) Reason() Reason { return o.reason }

// Detail describes the violation for logs and the corrective note.
func (o Outcome) Detail() string { return o.detail }

func (o Outcome) String() string {
	if o.accepted {
		return "accept"
	}
	return fmt.Sprintf("reject(%s): %s", o.reason, o.detail)
}

// Validator checks a candidate against the passages bound for its attempt cycle.
// It is pure and safe for concurrent use.
type Validator struct {
	minDescriptorLen int
}

// NewValidator creates a validator. minDescriptorLen <= 0 selects the default.
func NewValidator(minDescriptorLen int) *Validator {
	if minDescriptorLen <= 0 {
		minDescriptorLen = DefaultMinDescriptorLen
	}
	return &Validator{minDescriptorLen: minDescriptorLen}
}

// Markers returns the distinct inline citation keys of an answer, in order of first use.
func Markers(answer string) []string {
	found := markerPattern.FindAllString(answer, -1)
	out := make([]string, 0, len(found))
	for _, m := range found {
		key := strings.TrimSuffix(strings.TrimPrefix(m, "["), "]")
		if !slices.Contains(out, key) {
			out = append(out, key)
		}
	}
	return out
}

// Validate applies the rules in order; the first violation wins.
func (v *Validator) Validate(c Candidate, b Binding) Outcome {
	if c.Malformed {
		return Reject(ReasonMalformedOutput, c.ParseError)
	}
	if !c.HasAnswer {
		return Reject(ReasonMissingAnswer, "answer is empty or missing")
	}
	if !c.HasCitations {
		return Reject(ReasonMissingCitations, "citations object is missing")
	}

	for _, key := range Markers(c.Answer) {
		if _, ok := c.Citations[key]; !ok {
			return Reject(ReasonMissingKey, fmt.Sprintf("[%s] is used in the answer but absent from citations", key))
		}
	}

	keys := sortedKeys(c.Citations)
	for _, key := range keys {
		if _, ok := b.Lookup(key); !ok {
			return Reject(ReasonUnknownKey, fmt.Sprintf("%q does not match any supplied passage (doc1..doc%d)", key, b.Len()))
		}
	}

	for _, key := range keys {
		if why := v.degenerate(key, c.Citations[key]); why != "" {
			return Reject(ReasonDegenerateValue, fmt.Sprintf("%s: %q %s", key, c.Citations[key], why))
		}
	}

	for _, key := range keys {
		p, _ := b.Lookup(key)
		value := strings.TrimSpace(c.Citations[key])
		if !strings.EqualFold(value, p.Descriptor()) && !strings.EqualFold(value, strings.TrimSpace(p.DisplayName())) {
			return Reject(ReasonDescriptorMismatch, fmt.Sprintf("%s: got %q, want %q", key, value, p.Descriptor()))
		}
	}

	return Accept()
}

func (v *Validator) degenerate(key, value string) string {
	value = strings.TrimSpace(value)
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return "is a bare number"
	}
	if utf8.RuneCountInString(value) < v.minDescriptorLen {
		return fmt.Sprintf("is shorter than %d characters", v.minDescriptorLen)
	}
	lower := strings.ToLower(value)
	if lower == key {
		return "restates the key"
	}
	if _, err := ParseKey(lower); err == nil {
		return "is a citation key"
	}
	if _, ok := placeholders[lower]; ok {
		return "is a placeholder"
	}
	return ""
}

// sortedKeys orders keys by position so the first reported violation is stable.
func sortedKeys(m Map) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		na, errA := ParseKey(a)
		nb, errB := ParseKey(b)
		switch {
		case errA == nil && errB == nil:
			return na - nb
		case errA == nil:
			return -1
		case errB == nil:
			return 1
		default:
			return strings.Compare(a, b)
		}
	})
	return keys
}
