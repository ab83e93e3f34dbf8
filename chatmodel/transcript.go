package chatmodel

import (
	"github.com/cockroachdb/errors"
)

// Transcript is the append-only message history of one conversation.
// It enforces the structural invariants of the history: messages are
// validated on append, at most one system message exists and it is
// always at index 0. It is not safe for concurrent mutation; the
// orchestrator runs at most one turn per conversation at a time.
type Transcript struct {
	msgs []Message
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{}
}

// RestoreTranscript rebuilds a transcript from persisted messages.
// Each message is validated; the invariants are re-checked so a
// corrupted blob cannot produce an invalid history.
func RestoreTranscript(msgs []Message) (*Transcript, error) {
	t := NewTranscript()
	for _, m := range msgs {
		if err := t.Append(m); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Append validates the message and adds it to the end of the history.
// A tool message must answer exactly one still-unanswered tool call
// from an earlier assistant message.
func (t *Transcript) Append(m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.Role == RoleSystem && len(t.msgs) > 0 {
		return errors.New("system message allowed only at the head of a transcript")
	}
	if m.Role == RoleTool && !t.isPendingToolCall(m.ToolCallID) {
		return errors.Newf("tool message does not answer a pending tool call: %s", m.ToolCallID)
	}
	t.msgs = append(t.msgs, m)
	return nil
}

func (t *Transcript) isPendingToolCall(id string) bool {
	for _, pending := range t.UnansweredToolCalls() {
		if pending == id {
			return true
		}
	}
	return false
}

// EnsureSystem inserts the system message at index 0 if and only if the
// transcript is still empty. Subsequent turns find a non-empty transcript
// and leave it alone, so the prompt is never duplicated.
func (t *Transcript) EnsureSystem(prompt string) bool {
	if len(t.msgs) > 0 || prompt == "" {
		return false
	}
	t.msgs = append(t.msgs, SystemMessage(prompt))
	return true
}

// Messages returns a copy of the history.
func (t *Transcript) Messages() []Message {
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.msgs)
}

// Last returns the last message, or false on an empty transcript.
func (t *Transcript) Last() (Message, bool) {
	if len(t.msgs) == 0 {
		return Message{}, false
	}
	return t.msgs[len(t.msgs)-1], true
}

// UnansweredToolCalls returns the IDs of tool calls that do not yet have
// a matching tool message. A transcript with unanswered calls is not a
// valid input for the next completion request.
func (t *Transcript) UnansweredToolCalls() []string {
	answered := make(map[string]bool)
	for _, m := range t.msgs {
		if m.Role == RoleTool {
			answered[m.ToolCallID] = true
		}
	}
	var pending []string
	for _, m := range t.msgs {
		if m.Role != RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if !answered[tc.ID] {
				pending = append(pending, tc.ID)
			}
		}
	}
	return pending
}
