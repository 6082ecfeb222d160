package mail

import (
	"fmt"
	"strings"
)

// ValidateMessage checks the fields a new message must carry.
func ValidateMessage(msg Message) error {
	if msg.ProjectID <= 0 || msg.SenderID <= 0 {
		return ErrInvalidMessage
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return ErrInvalidMessage
	}
	if _, ok := ParseImportance(string(msg.Importance)); !ok {
		return fmt.Errorf("%w: importance %q", ErrInvalidMessage, msg.Importance)
	}
	return nil
}

// ValidateRecipients rejects unknown kinds and duplicate agents.
func ValidateRecipients(recipients []Recipient) error {
	seen := make(map[int64]struct{}, len(recipients))
	for _, r := range recipients {
		if r.AgentID <= 0 || !r.Kind.Valid() {
			return ErrInvalidRecipient
		}
		if _, dup := seen[r.AgentID]; dup {
			return fmt.Errorf("%w: agent %d listed twice", ErrInvalidRecipient, r.AgentID)
		}
		seen[r.AgentID] = struct{}{}
	}
	return nil
}

// ValidateName checks a project slug or agent name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	return nil
}
