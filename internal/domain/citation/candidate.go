package citation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Candidate is a generated answer normalized for validation, whichever shape the
// generation backend returned.
type Candidate struct {
	Answer       string
	Citations    Map
	HasAnswer    bool
	HasCitations bool
	Malformed    bool
	ParseError   string
	// Raw is the unparsed model output, kept for diagnostics.
	Raw string
}

// FromStructured builds a candidate from an already-decoded answer object.
// A nil citations map means the field was absent.
func FromStructured(answer string, citations map[string]string) Candidate {
	c := Candidate{
		Answer:       answer,
		HasAnswer:    strings.TrimSpace(answer) != "",
		HasCitations: citations != nil,
	}
	if citations != nil {
		c.Citations = make(Map, len(citations))
		for k, v := range citations {
			c.Citations[k] = v
		}
	}
	return c
}

// FromRaw parses model text into a candidate. The text must be one JSON object,
// optionally wrapped in a markdown code fence.
func FromRaw(raw string) Candidate {
	body := stripFence(raw)

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return malformed(raw, fmt.Sprintf("output is not a JSON object: %v", err))
	}

	c := Candidate{Raw: raw}
	if rawAnswer, ok := obj["answer"]; ok && !isNull(rawAnswer) {
		if err := json.Unmarshal(rawAnswer, &c.Answer); err != nil {
			return malformed(raw, "answer must be a string")
		}
		c.HasAnswer = strings.TrimSpace(c.Answer) != ""
	}
	if rawCitations, ok := obj["citations"]; ok && !isNull(rawCitations) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(rawCitations, &fields); err != nil {
			return malformed(raw, "citations must be an object")
		}
		c.Citations = make(Map, len(fields))
		for k, v := range fields {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return malformed(raw, fmt.Sprintf("citation %q must be a string, got %s", k, string(v)))
			}
			c.Citations[k] = s
		}
		c.HasCitations = true
	}
	return c
}

// Normalize funnels both backend output shapes into one candidate.
// The structured form wins when present.
func Normalize(structured *Candidate, raw string) Candidate {
	if structured != nil {
		c := *structured
		if c.Raw == "" {
			c.Raw = raw
		}
		return c
	}
	return FromRaw(raw)
}

func malformed(raw, reason string) Candidate {
	return Candidate{Raw: raw, Malformed: true, ParseError: reason}
}

func isNull(m json.RawMessage) bool {
	return strings.TrimSpace(string(m)) == "null"
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the info string, e.g. ```json
		s = s[nl+1:]
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
