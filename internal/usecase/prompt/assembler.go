package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/contramate/internal/domain/chat"
	"github.com/kailas-cloud/contramate/internal/domain/citation"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
	"github.com/kailas-cloud/contramate/internal/tokenizer"
)

// Assembler builds the message sequence for one generation attempt.
type Assembler struct {
	counter   tokenizer.Counter
	maxTokens int
}

// New creates an assembler. maxContextTokens <= 0 disables the context budget.
func New(counter tokenizer.Counter, maxContextTokens int) *Assembler {
	if counter == nil {
		counter = tokenizer.Approx{}
	}
	return &Assembler{counter: counter, maxTokens: maxContextTokens}
}

// Input is everything one attempt's prompt depends on.
type Input struct {
	Question string
	Binding  citation.Binding
	History  chat.History
	// Attempt is 1-based. Correction is used only when Attempt > 1.
	Attempt    int
	Correction citation.Outcome
}

// Bind assigns citation keys to the passages the model will see. Trailing passages
// that do not fit the context token budget are dropped; at least one passage is kept.
func (a *Assembler) Bind(passages []passage.Passage) citation.Binding {
	if a.maxTokens <= 0 || len(passages) == 0 {
		return citation.NewBinding(passages)
	}

	used := 0
	n := 0
	for i, p := range passages {
		cost := a.counter.Count(formatPassage(citation.KeyAt(i), p))
		if n > 0 && used+cost > a.maxTokens {
			break
		}
		used += cost
		n++
	}
	return citation.NewBinding(passages[:n])
}

// Assemble returns the messages in order: instructions, context block, prior turns,
// the question and, on retries, a corrective note.
func (a *Assembler) Assemble(in Input) []chat.Message {
	msgs := make([]chat.Message, 0, len(in.History)+4)
	msgs = append(msgs,
		chat.System(systemInstructions),
		chat.System(contextBlock(in.Binding)),
	)
	msgs = append(msgs, in.History...)
	msgs = append(msgs, chat.User(in.Question))

	if in.Attempt > 1 && !in.Correction.Accepted() && in.Correction.Reason() != "" {
		msgs = append(msgs, chat.System(correction(in.Correction, in.Binding)))
	}
	return msgs
}

func contextBlock(b citation.Binding) string {
	var sb strings.Builder
	sb.WriteString(contextHeader)
	for i := range b.Len() {
		sb.WriteString("\n\n")
		sb.WriteString(formatPassage(b.Key(i), b.At(i)))
	}
	return sb.String()
}

func formatPassage(key citation.Key, p passage.Passage) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", key.Marker())
	sb.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Document | %s |\n", cell(p.Descriptor()))
	fmt.Fprintf(&sb, "| Contract Type | %s |\n", cell(p.ContractType()))
	fmt.Fprintf(&sb, "| Section | %s |\n\n", cell(p.Section()))
	sb.WriteString(strings.TrimSpace(p.Content()))
	return sb.String()
}

func cell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "|", "/"))
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "\n", " ")
}

var problems = map[citation.Reason]string{
	citation.ReasonMalformedOutput:    "Your previous response was not a valid JSON object with an \"answer\" string and a \"citations\" object.",
	citation.ReasonMissingAnswer:      "Your previous response had an empty or missing \"answer\".",
	citation.ReasonMissingCitations:   "Your previous response had no \"citations\" object.",
	citation.ReasonMissingKey:         "Your previous answer used a citation key that is missing from \"citations\".",
	citation.ReasonUnknownKey:         "Your previous response cited a key that does not exist in the context.",
	citation.ReasonDegenerateValue:    "Your previous response used a placeholder instead of a document name as a citation value.",
	citation.ReasonDescriptorMismatch: "Your previous response mapped a citation key to the wrong document.",
}

func correction(o citation.Outcome, b citation.Binding) string {
	var sb strings.Builder
	problem, ok := problems[o.Reason()]
	if !ok {
		problem = "Your previous response was rejected."
	}
	sb.WriteString(problem)
	if d := o.Detail(); d != "" {
		fmt.Fprintf(&sb, " Problem: %s.", d)
	}
	sb.WriteString("\nAnswer again following the rules. The valid citation keys and their required values are:")

	expected := b.Expected()
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, _ := citation.ParseKey(keys[i])
		nj, _ := citation.ParseKey(keys[j])
		return ni < nj
	})
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n- %s: %s", k, expected[k])
	}
	return sb.String()
}
