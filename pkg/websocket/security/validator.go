package security

import (
	"errors"
	"fmt"
)

var (
	// ErrNotObject is returned for frames that decoded to something other
	// than a JSON object.
	ErrNotObject = errors.New("message is not a JSON object")

	// ErrTypeNotAllowed marks a well-formed message whose type is outside
	// the allow-list. Callers usually ignore these rather than fail.
	ErrTypeNotAllowed = errors.New("message type not allowed")
)

type ValidationConfig struct {
	AllowedTypes   map[string]bool
	RequiredFields map[string][]string
	TypeField      string // Field name for message type (default: "type")
}

type messageValidator struct {
	config ValidationConfig
}

func NewMessageValidator(config ValidationConfig) MessageValidator {
	if config.TypeField == "" {
		config.TypeField = "type"
	}
	return &messageValidator{config: config}
}

func (mv *messageValidator) ValidateMessage(message any) (map[string]any, string, error) {
	obj, ok := message.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("%w: got %T", ErrNotObject, message)
	}

	msgType, ok := obj[mv.config.TypeField].(string)
	if !ok || msgType == "" {
		return nil, "", fmt.Errorf("missing or invalid message %s field", mv.config.TypeField)
	}

	if mv.config.AllowedTypes != nil && !mv.config.AllowedTypes[msgType] {
		return obj, msgType, fmt.Errorf("%w: %s", ErrTypeNotAllowed, msgType)
	}

	if requiredFields, exists := mv.config.RequiredFields[msgType]; exists {
		for _, field := range requiredFields {
			if _, exists := obj[field]; !exists {
				return nil, msgType, fmt.Errorf("missing required field '%s' for type '%s'", field, msgType)
			}
		}
	}

	return obj, msgType, nil
}

func (mv *messageValidator) TypeField() string {
	return mv.config.TypeField
}
