package shipment

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRuntimeErrorCategories(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		httpStatus int
		grpcCode   string
		rpcCode    string
	}{
		{
			name:       "invalid transition",
			err:        InvalidTransition(CommandStartTransport, StateOrderReceived),
			httpStatus: 409,
			grpcCode:   GRPCCodeFailedPrecondition,
			rpcCode:    ErrCodeInvalidStateTransition,
		},
		{
			name:       "invalid choice",
			err:        InvalidChoice(CategoryWarehouse, ChoiceRetryPayment, CategoryWarehouse),
			httpStatus: 422,
			grpcCode:   GRPCCodeInvalidArgument,
			rpcCode:    ErrCodeInvalidChoice,
		},
		{
			name:       "already started",
			err:        AlreadyStarted("S1"),
			httpStatus: 409,
			grpcCode:   GRPCCodeAlreadyExists,
			rpcCode:    ErrCodeAlreadyStarted,
		},
		{
			name:       "not found",
			err:        NotFound("S1"),
			httpStatus: 404,
			grpcCode:   GRPCCodeNotFound,
			rpcCode:    ErrCodeNotFound,
		},
		{
			name:       "version conflict",
			err:        VersionConflict("S1", 1, 2),
			httpStatus: 409,
			grpcCode:   GRPCCodeAborted,
			rpcCode:    ErrCodeVersionConflict,
		},
		{
			name:       "validation",
			err:        ValidationFailed("shipment.resolve", errors.New("bad")),
			httpStatus: 400,
			grpcCode:   GRPCCodeInvalidArgument,
			rpcCode:    ErrCodeValidation,
		},
		{
			name:       "gateway",
			err:        GatewayFailure("verify_payment", errors.New("down")),
			httpStatus: 502,
			grpcCode:   GRPCCodeUnavailable,
			rpcCode:    ErrCodeGatewayFailure,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapRuntimeError(tt.err)
			assert.Equal(t, tt.httpStatus, mapped.HTTPStatus)
			assert.Equal(t, tt.grpcCode, mapped.GRPCCode)
			assert.Equal(t, tt.rpcCode, mapped.RPCCode)

			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.Equal(t, tt.httpStatus, HTTPStatusForError(wrapped))
			assert.Equal(t, tt.grpcCode, GRPCCodeForError(wrapped))
		})
	}
}

func TestMapRuntimeErrorDefaultsToInternal(t *testing.T) {
	mapped := MapRuntimeError(errors.New("plain"))
	assert.Equal(t, 500, mapped.HTTPStatus)
	assert.Equal(t, GRPCCodeInternal, mapped.GRPCCode)
	assert.Equal(t, rpcCodeInternal, mapped.RPCCode)
}

func TestRPCErrorForError(t *testing.T) {
	assert.Nil(t, RPCErrorForError(nil))

	env := RPCErrorForError(InvalidChoice(CategoryPayment, ChoiceWaitForStock, CategoryWarehouse))
	require.NotNil(t, env)
	assert.Equal(t, ErrCodeInvalidChoice, env.Code)
	assert.Contains(t, env.Message, "warehouse issue pending")
	assert.Equal(t, "warehouse", env.Metadata["active_category"])
}
