package errors

import (
	stderrors "errors"

	"github.com/mezonai/votechain/jsonx"
)

// ErrorCode represents standardized error codes for ledger operations
type ErrorCode string

const (
	// General errors
	ErrCodeInternal ErrorCode = "internal_error"

	// Validation errors
	ErrCodeInvalidArgument ErrorCode = "invalid_argument"
	ErrCodeNotFound        ErrorCode = "not_found"

	// Mining errors
	ErrCodePowExhausted ErrorCode = "pow_exhausted"
	ErrCodeCanceled     ErrorCode = "canceled"

	// System errors
	ErrCodeMempoolFull ErrorCode = "mempool_full"
	ErrCodeRateLimited ErrorCode = "rate_limited"
	ErrCodeUnavailable ErrorCode = "unavailable"
)

// Error message constants
const (
	ErrMsgMissingSender      = "Sender address is required"
	ErrMsgMissingRecipient   = "Recipient address is required"
	ErrMsgMissingMiner       = "Miner address is required"
	ErrMsgInvalidAddress     = "%s address must be valid UTF-8"
	ErrMsgInvalidAmount      = "Amount must be an integer"
	ErrMsgInvalidDifficulty  = "Difficulty must be between 0 and %d"
	ErrMsgMempoolFull        = "Pending transaction buffer is full (%d)"
	ErrMsgNonceExhausted     = "No nonce satisfies difficulty %d for block %d"
	ErrMsgMiningCanceled     = "Mining of block %d was canceled"
	ErrMsgBlockNotFound      = "Block could not be found"
	ErrMsgTxNotFound         = "Transaction could not be found"
	ErrMsgPersistBlockFailed = "Failed to persist block %d"
	ErrMsgRateLimited        = "Too many requests, please slow down"
)

// LedgerError carries a stable code alongside a human readable message.
type LedgerError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *LedgerError) Error() string {
	out, _ := jsonx.Marshal(LedgerError{
		Code:    e.Code,
		Message: e.Message,
	})
	return string(out)
}

func (e *LedgerError) Unwrap() error {
	return e.cause
}

// NewError creates a new LedgerError and returns it as error interface
func NewError(code ErrorCode, message string) error {
	return &LedgerError{
		Code:    code,
		Message: message,
	}
}

// Wrap attaches a code to cause. The cause stays reachable through Is and As.
func Wrap(code ErrorCode, message string, cause error) error {
	if cause != nil {
		message = message + ": " + cause.Error()
	}
	return &LedgerError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// CodeOf returns the code carried by err. Errors without a code are internal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var le *LedgerError
	if stderrors.As(err, &le) {
		return le.Code
	}
	return ErrCodeInternal
}

func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
