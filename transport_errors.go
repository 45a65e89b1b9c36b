package shipment

import "net/http"

const (
	GRPCCodeAborted            = "Aborted"
	GRPCCodeAlreadyExists      = "AlreadyExists"
	GRPCCodeFailedPrecondition = "FailedPrecondition"
	GRPCCodeInternal           = "Internal"
	GRPCCodeInvalidArgument    = "InvalidArgument"
	GRPCCodeNotFound           = "NotFound"
	GRPCCodeUnavailable        = "Unavailable"
)

const rpcCodeInternal = "SHIPMENT_INTERNAL"

// TransportErrorMapping defines protocol-level mappings for lifecycle errors.
type TransportErrorMapping struct {
	RuntimeCode string
	HTTPStatus  int
	GRPCCode    string
	RPCCode     string
}

// RPCErrorEnvelope is the RPC transport error shape.
type RPCErrorEnvelope struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

var transportMappings = map[string]struct {
	status int
	grpc   string
}{
	ErrCodeInvalidStateTransition: {http.StatusConflict, GRPCCodeFailedPrecondition},
	ErrCodeInvalidChoice:          {http.StatusUnprocessableEntity, GRPCCodeInvalidArgument},
	ErrCodeAlreadyStarted:         {http.StatusConflict, GRPCCodeAlreadyExists},
	ErrCodeNotFound:               {http.StatusNotFound, GRPCCodeNotFound},
	ErrCodeVersionConflict:        {http.StatusConflict, GRPCCodeAborted},
	ErrCodeValidation:             {http.StatusBadRequest, GRPCCodeInvalidArgument},
	ErrCodeGatewayFailure:         {http.StatusBadGateway, GRPCCodeUnavailable},
}

// MapRuntimeError maps lifecycle error codes to transport protocol categories.
func MapRuntimeError(err error) TransportErrorMapping {
	code := ErrorCode(err)
	if m, ok := transportMappings[code]; ok {
		return TransportErrorMapping{
			RuntimeCode: code,
			HTTPStatus:  m.status,
			GRPCCode:    m.grpc,
			RPCCode:     code,
		}
	}
	return TransportErrorMapping{
		RuntimeCode: code,
		HTTPStatus:  http.StatusInternalServerError,
		GRPCCode:    GRPCCodeInternal,
		RPCCode:     rpcCodeInternal,
	}
}

// HTTPStatusForError returns the mapped HTTP status code for err.
func HTTPStatusForError(err error) int {
	return MapRuntimeError(err).HTTPStatus
}

// GRPCCodeForError returns the mapped gRPC status code string for err.
func GRPCCodeForError(err error) string {
	return MapRuntimeError(err).GRPCCode
}

// RPCErrorForError returns the RPC envelope for err.
func RPCErrorForError(err error) *RPCErrorEnvelope {
	if err == nil {
		return nil
	}
	mapping := MapRuntimeError(err)
	return &RPCErrorEnvelope{
		Code:     mapping.RPCCode,
		Message:  err.Error(),
		Metadata: ErrorMetadata(err),
	}
}
