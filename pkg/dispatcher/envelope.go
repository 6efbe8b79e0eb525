// Package dispatcher routes incoming COMMS messages to registration methods.
package dispatcher

import (
	"encoding/json"

	"github.com/morezero/cadastro-incidental/pkg/matching"
)

// CadastroRequest is the JSON envelope for incoming COMMS requests.
type CadastroRequest struct {
	ID     string             `json:"id"`
	Type   string             `json:"type"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// CadastroResponse is the JSON envelope for COMMS responses.
type CadastroResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	UserID        string `json:"userId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// Error codes.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodePhaseFailed     = "PHASE_FAILED"
	CodeTransportFailed = "TRANSPORT_FAILED"
	CodeConflict        = "CONFLICT"
	CodeInternal        = "INTERNAL_ERROR"
	CodeMethodNotFound  = "METHOD_NOT_FOUND"
	CodeInvalidRequest  = "INVALID_REQUEST"
)

// VerifyPartiesParams are the params of the verifyParties method.
type VerifyPartiesParams struct {
	ProcessNumber int64            `json:"processNumber"`
	Parties       matching.Buckets `json:"partes"`
}

// HistoryParams are the params of the history method.
type HistoryParams struct {
	NPJ   string `json:"npj"`
	Limit int    `json:"limit,omitempty"`
}
