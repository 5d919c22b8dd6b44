package base

import "context"

// MessageHandler defines the interface for processing routed messages
type MessageHandler interface {
	// Handle processes one validated inbound object
	Handle(ctx context.Context, message map[string]any) error

	// GetMessageTypes returns the message types this handler can process
	GetMessageTypes() []MessageType
}
