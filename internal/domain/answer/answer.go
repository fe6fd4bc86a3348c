package answer

import (
	"fmt"

	"github.com/kailas-cloud/contramate/internal/domain/chat"
	"github.com/kailas-cloud/contramate/internal/domain/citation"
	"github.com/kailas-cloud/contramate/internal/domain/passage"
)

// DefaultMaxAttempts is the generation attempt cap of one answer cycle.
const DefaultMaxAttempts = 3

// NoPassagesAnswer is returned when retrieval found nothing to answer from.
const NoPassagesAnswer = "I could not find any relevant information in the selected contracts to answer this question."

// Phase is the orchestrator state tag.
type Phase string

// Orchestrator phases.
const (
	PhaseSearching  Phase = "searching"
	PhaseGenerating Phase = "generating"
	PhaseValidating Phase = "validating"
	PhaseAccepted   Phase = "accepted"
	PhaseRetrying   Phase = "retrying"
	PhaseFailed     Phase = "failed"
)

// State is one orchestrator state. Reason is set for Retrying and Failed;
// Attempt carries the current attempt number once generation started.
type State struct {
	Phase   Phase
	Attempt int
	Reason  citation.Reason
}

// Searching is the initial state.
func Searching() State { return State{Phase: PhaseSearching} }

// Generating is the state of attempt n.
func Generating(n int) State { return State{Phase: PhaseGenerating, Attempt: n} }

// Validating is the state after attempt n returned.
func Validating(n int) State { return State{Phase: PhaseValidating, Attempt: n} }

// Accepted is the terminal success state.
func Accepted(n int) State { return State{Phase: PhaseAccepted, Attempt: n} }

// Retrying follows a rejected attempt n while attempts remain.
func Retrying(n int, reason citation.Reason) State {
	return State{Phase: PhaseRetrying, Attempt: n, Reason: reason}
}

// Failed is the terminal state after the attempt cap was reached.
func Failed(attempts int, reason citation.Reason) State {
	return State{Phase: PhaseFailed, Attempt: attempts, Reason: reason}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s.Phase == PhaseAccepted || s.Phase == PhaseFailed }

func (s State) String() string {
	switch s.Phase {
	case PhaseRetrying, PhaseFailed:
		return fmt.Sprintf("%s(attempt=%d, reason=%s)", s.Phase, s.Attempt, s.Reason)
	case PhaseSearching:
		return string(s.Phase)
	default:
		return fmt.Sprintf("%s(attempt=%d)", s.Phase, s.Attempt)
	}
}

// Attempt records one generation/validation iteration. Never persisted.
type Attempt struct {
	Number   int
	Messages []chat.Message
	Raw      string
	Outcome  citation.Outcome
}

// Result is the terminal artifact of an answer cycle.
type Result struct {
	RequestID string
	Success   bool
	Answer    string
	Citations citation.Map
	Attempts  int
	Passages  []passage.Passage
	Error     error
}
