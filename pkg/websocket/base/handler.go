package base

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/smartlamp/lamplink/pkg/websocket/security"
)

// HandlerRegistry routes decoded frames to handlers by message type.
type HandlerRegistry struct {
	mu           sync.RWMutex
	typeHandlers map[MessageType]MessageHandler
	validator    security.MessageValidator
	logger       *zap.Logger
}

// NewHandlerRegistry builds a registry that accepts the known lamp message
// types. Pass a validator to change the allow-list or required fields.
func NewHandlerRegistry(logger *zap.Logger, validator security.MessageValidator) *HandlerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validator == nil {
		validator = security.NewMessageValidator(DefaultValidationConfig())
	}
	return &HandlerRegistry{
		typeHandlers: make(map[MessageType]MessageHandler),
		validator:    validator,
		logger:       logger.Named("router"),
	}
}

// DefaultValidationConfig allows the known lamp message types and requires
// the fields their handlers cannot do without.
func DefaultValidationConfig() security.ValidationConfig {
	allowed := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		allowed[string(t)] = true
	}
	return security.ValidationConfig{
		AllowedTypes: allowed,
		RequiredFields: map[string][]string{
			string(TypeStatus):       {"isOn", "brightness"},
			string(TypeNotification): {"title", "message"},
			string(TypeAck):          {"id"},
		},
	}
}

// RegisterHandler registers a handler for each of its message types
func (hr *HandlerRegistry) RegisterHandler(handler MessageHandler) error {
	hr.mu.Lock()
	defer hr.mu.Unlock()

	for _, msgType := range handler.GetMessageTypes() {
		if existing, exists := hr.typeHandlers[msgType]; exists {
			return fmt.Errorf("handler already registered for message type '%s': %T", msgType, existing)
		}
	}
	for _, msgType := range handler.GetMessageTypes() {
		hr.typeHandlers[msgType] = handler
		hr.logger.Debug("Registered handler", zap.String("type", string(msgType)))
	}

	return nil
}

// RouteMessage validates a decoded frame and hands it to the handler for
// its type. Types outside the allow-list or without a handler are ignored.
func (hr *HandlerRegistry) RouteMessage(ctx context.Context, data any) error {
	obj, msgType, err := hr.validator.ValidateMessage(data)
	if err != nil {
		if errors.Is(err, security.ErrTypeNotAllowed) {
			hr.logger.Debug("Ignoring message of unknown type", zap.String("type", msgType))
			return nil
		}
		return fmt.Errorf("invalid message: %w", err)
	}

	hr.mu.RLock()
	handler, exists := hr.typeHandlers[MessageType(msgType)]
	hr.mu.RUnlock()

	if !exists {
		hr.logger.Debug("No handler found for message", zap.String("type", msgType))
		return nil
	}

	if err := handler.Handle(ctx, obj); err != nil {
		return fmt.Errorf("handle %s message: %w", msgType, err)
	}
	return nil
}

// GetRegisteredTypes returns all registered message types
func (hr *HandlerRegistry) GetRegisteredTypes() []MessageType {
	hr.mu.RLock()
	defer hr.mu.RUnlock()

	types := make([]MessageType, 0, len(hr.typeHandlers))
	for msgType := range hr.typeHandlers {
		types = append(types, msgType)
	}
	return types
}

// typedHandler decodes the message object into T before calling fn.
type typedHandler[T any] struct {
	messageTypes []MessageType
	fn           func(ctx context.Context, msg T) error
}

// NewTypedHandler adapts a function over a concrete envelope type such as
// StatusUpdate into a MessageHandler for the given types.
func NewTypedHandler[T any](fn func(ctx context.Context, msg T) error, messageTypes ...MessageType) MessageHandler {
	return &typedHandler[T]{messageTypes: messageTypes, fn: fn}
}

func (th *typedHandler[T]) Handle(ctx context.Context, message map[string]any) error {
	var msg T
	if err := Decode(message, &msg); err != nil {
		return err
	}
	return th.fn(ctx, msg)
}

func (th *typedHandler[T]) GetMessageTypes() []MessageType {
	return th.messageTypes
}

// Decode copies a generic JSON object into out using the json tag names.
// RFC 3339 strings decode into time.Time fields.
func Decode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     out,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
