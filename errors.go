package shipment

import (
	stderrors "errors"
	"fmt"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	ErrCodeAlreadyStarted         = "SHIPMENT_ALREADY_STARTED"
	ErrCodeInvalidStateTransition = "SHIPMENT_INVALID_STATE_TRANSITION"
	ErrCodeInvalidChoice          = "SHIPMENT_INVALID_CHOICE"
	ErrCodeNotFound               = "SHIPMENT_NOT_FOUND"
	ErrCodeVersionConflict        = "SHIPMENT_VERSION_CONFLICT"
	ErrCodeValidation             = "VALIDATION_FAILED"
	ErrCodeGatewayFailure         = "SHIPMENT_GATEWAY_FAILURE"
)

// Sentinels carry the text codes above. ErrValidation marks malformed command
// and query messages.
var (
	ErrAlreadyStarted         = apperrors.New("shipment already started", apperrors.CategoryConflict).WithTextCode(ErrCodeAlreadyStarted)
	ErrInvalidStateTransition = apperrors.New("invalid state transition", apperrors.CategoryBadInput).WithTextCode(ErrCodeInvalidStateTransition)
	ErrInvalidChoice          = apperrors.New("invalid choice", apperrors.CategoryBadInput).WithTextCode(ErrCodeInvalidChoice)
	ErrNotFound               = apperrors.New("shipment not found", apperrors.CategoryNotFound).WithTextCode(ErrCodeNotFound)
	ErrVersionConflict        = apperrors.New("shipment version conflict", apperrors.CategoryConflict).WithTextCode(ErrCodeVersionConflict)
	ErrValidation             = apperrors.New("validation error", apperrors.CategoryValidation).WithTextCode(ErrCodeValidation)
	ErrGatewayFailure         = apperrors.New("external operation failed", apperrors.CategoryExternal).WithTextCode(ErrCodeGatewayFailure)
)

func cloneError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// AlreadyStarted reports a second start for id.
func AlreadyStarted(id string) error {
	return cloneError(ErrAlreadyStarted,
		fmt.Sprintf("shipment %s already started", id), nil,
		map[string]any{"shipment_id": id, "command": string(CommandStart)},
	)
}

// InvalidTransition reports cmd rejected in state.
func InvalidTransition(cmd Command, state State) error {
	return cloneError(ErrInvalidStateTransition,
		fmt.Sprintf("command %s not allowed in state %s", cmd, state), nil,
		map[string]any{"command": string(cmd), "state": string(state)},
	)
}

// InvalidChoice reports a decision that does not match the active suspension.
// active is empty when no suspension is open.
func InvalidChoice(category Category, choice Choice, active Category) error {
	msg := fmt.Sprintf("choice %s not valid for category %s", choice, category)
	if active == "" {
		msg = fmt.Sprintf("no %s issue pending resolution (choice %s)", category, choice)
	} else if active != category {
		msg = fmt.Sprintf("%s issue pending, %s resolution rejected (choice %s)", active, category, choice)
	}
	return cloneError(ErrInvalidChoice, msg, nil, map[string]any{
		"category":        string(category),
		"choice":          string(choice),
		"active_category": string(active),
	})
}

// NotFound reports an unknown shipment id.
func NotFound(id string) error {
	return cloneError(ErrNotFound, fmt.Sprintf("shipment %s not found", id), nil,
		map[string]any{"shipment_id": id})
}

// VersionConflict reports a failed compare-and-set on the stored record.
func VersionConflict(id string, expected, actual int) error {
	return cloneError(ErrVersionConflict,
		fmt.Sprintf("shipment %s version conflict: expected %d, found %d", id, expected, actual), nil,
		map[string]any{"shipment_id": id, "expected_version": expected, "actual_version": actual},
	)
}

// ValidationFailed wraps a message validation error.
func ValidationFailed(msgType string, source error) error {
	return cloneError(ErrValidation, fmt.Sprintf("%s validation failed", msgType), source,
		map[string]any{"message_type": msgType})
}

// GatewayFailure wraps a fatal external operation error.
func GatewayFailure(check string, source error) error {
	return cloneError(ErrGatewayFailure, fmt.Sprintf("external operation %s failed", check), source,
		map[string]any{"check": check})
}

// ErrorCode returns the text code carried by err, or "".
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err carries code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// ErrorMetadata returns the metadata attached to err, if any.
func ErrorMetadata(err error) map[string]any {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.Metadata
	}
	return nil
}
