package chat

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/contramate/internal/domain"
)

// MaxHistoryTurns caps the number of prior turns a caller may replay.
const MaxHistoryTurns = 50

// Role tags a message for the generation backend.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid checks if the role is one of the supported values.
func (r Role) IsValid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// Message is one role-tagged entry of a generation request.
type Message struct {
	Role    Role
	Content string
}

// System builds a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// History is the caller-supplied sequence of prior turns, oldest first.
type History []Message

// NewHistory validates prior turns. Only user and assistant turns may be replayed;
// system messages belong to the assembler.
func NewHistory(turns []Message) (History, error) {
	if len(turns) > MaxHistoryTurns {
		return nil, fmt.Errorf("%w: message_history too long (max %d)", domain.ErrInvalidRequest, MaxHistoryTurns)
	}
	out := make(History, 0, len(turns))
	for i, m := range turns {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return nil, fmt.Errorf("%w: message_history[%d]: unsupported role %q", domain.ErrInvalidRequest, i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return nil, fmt.Errorf("%w: message_history[%d]: content is required", domain.ErrInvalidRequest, i)
		}
		out = append(out, m)
	}
	return out, nil
}
