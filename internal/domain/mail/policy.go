package mail

import "strings"

// ContactPolicy controls who may see messages an agent sends.
type ContactPolicy string

const (
	PolicyOpen         ContactPolicy = "open"
	PolicyAuto         ContactPolicy = "auto"
	PolicyContactsOnly ContactPolicy = "contacts_only"
	PolicyBlockAll     ContactPolicy = "block_all"
)

// ParseContactPolicy parses a free-text policy case-insensitively.
// Unrecognized text maps to PolicyAuto.
func ParseContactPolicy(s string) ContactPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return PolicyOpen
	case "contacts_only":
		return PolicyContactsOnly
	case "block_all":
		return PolicyBlockAll
	default:
		return PolicyAuto
	}
}

// Restricts reports whether the policy hides messages from non-contacts.
func (p ContactPolicy) Restricts() bool {
	return p == PolicyContactsOnly || p == PolicyBlockAll
}
