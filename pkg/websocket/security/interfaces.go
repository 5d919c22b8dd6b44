package security

// MessageValidator checks decoded inbound frames before they are routed.
type MessageValidator interface {
	// ValidateMessage returns the frame as an object together with its type.
	ValidateMessage(message any) (map[string]any, string, error)
	TypeField() string
}
