package rpc

import (
	"fmt"

	apperrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-shipment"
)

const (
	ErrCodeMethodNotFound = "RPC_METHOD_NOT_FOUND"
	ErrCodeMethodRequired = "RPC_METHOD_REQUIRED"
	ErrCodeHandlerPanic   = "RPC_HANDLER_PANIC"
)

var (
	ErrMethodNotFound = apperrors.New("rpc method not found", apperrors.CategoryNotFound).WithTextCode(ErrCodeMethodNotFound)
	ErrMethodRequired = apperrors.New("rpc method required", apperrors.CategoryBadInput).WithTextCode(ErrCodeMethodRequired)
	ErrHandlerPanic   = apperrors.New("rpc handler panicked", apperrors.CategoryInternal).WithTextCode(ErrCodeHandlerPanic)
	errNoServer       = fmt.Errorf("rpc server not configured")
)

// NotFound reports an unregistered method.
func NotFound(method string) error {
	err := ErrMethodNotFound.Clone()
	err.Message = fmt.Sprintf("rpc method %q not found", method)
	return err.WithMetadata(map[string]any{"method": method})
}

func handlerPanic(method string, p any) error {
	err := ErrHandlerPanic.Clone()
	err.Message = fmt.Sprintf("rpc method %q panicked: %v", method, p)
	return err.WithMetadata(map[string]any{"method": method})
}

// HasCode reports whether err carries code.
func HasCode(err error, code string) bool {
	return shipment.HasCode(err, code)
}
