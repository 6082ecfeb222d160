package mail

import "errors"

var (
	// ErrInvalidMessage indicates a message is missing required fields.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrInvalidRecipient indicates a malformed recipient entry.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrInvalidName indicates an empty project or agent name.
	ErrInvalidName = errors.New("invalid name")
)
