package errors

import (
	"github.com/mezonai/peerchain/jsonx"
)

// APIErrorCode represents standardized error codes returned by the status API
type APIErrorCode string

const (
	// General errors
	ErrCodeInternal APIErrorCode = "internal_error"

	// Request errors
	ErrCodeMethodNotAllowed APIErrorCode = "method_not_allowed"
	ErrCodeInvalidRequest   APIErrorCode = "invalid_request"
	ErrCodeRateLimited      APIErrorCode = "rate_limited"

	// Chain errors
	ErrCodeBlockNotFound APIErrorCode = "block_not_found"
	ErrCodeInvalidChain  APIErrorCode = "invalid_chain"
)

// APIError represents a standardized API error
type APIError struct {
	Code    APIErrorCode `json:"code"`
	Message string       `json:"message"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	err, _ := jsonx.Marshal(APIError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(err)
}

// Error message constants - user-friendly and concise
const (
	ErrMsgInternal         = "Server error, please try again"
	ErrMsgMethodNotAllowed = "Method not allowed"
	ErrMsgInvalidIndex     = "Block index is invalid"
	ErrMsgBlockNotFound    = "Block could not be found"
	ErrMsgRateLimited      = "Too many requests, please slow down"
)

// NewError creates a new APIError and returns it as error interface
func NewError(code APIErrorCode, message string) error {
	return &APIError{
		Code:    code,
		Message: message,
	}
}
