package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
	ErrTimeout       = fmt.Errorf("operation timed out")
)

// Session state machine errors. Starting or stopping from the wrong state is
// a caller error; the machine rejects it and leaves its state unchanged.
var (
	ErrSessionActive          = fmt.Errorf("a recording session is already active")
	ErrSessionIdle            = fmt.Errorf("no recording session is active")
	ErrSessionBusy            = fmt.Errorf("recording session is already stopping")
	ErrSessionCancelled       = fmt.Errorf("recording session was cancelled")
	ErrTranscriptionDiscarded = fmt.Errorf("transcription discarded")
	ErrModelNotReady          = fmt.Errorf("speech model not ready")
)

// Sentinel errors for the domain layer.
var (
	ErrAPIKeyMissing = fmt.Errorf("api key not set")
	ErrConfigLoad    = fmt.Errorf("failed to load configuration")
	ErrDecryption    = fmt.Errorf("decryption failed")
	ErrEncryption    = fmt.Errorf("encryption operation failed")
	ErrHistoryWrite  = fmt.Errorf("history write failed")
	ErrNoSelection   = fmt.Errorf("no text selected")
	ErrTypingFailed  = fmt.Errorf("typing into focused application failed")
	ErrClipboard     = fmt.Errorf("clipboard operation failed")

	// Gateway / RPC errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrRPCRateLimited    = fmt.Errorf("rpc: %w", ErrRateLimit)

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrCircuitOpen     = fmt.Errorf("provider circuit open")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Machine.Stop")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category carried in gateway error
// frames and log records.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeProviderError       ErrorCode = "PROVIDER_ERROR"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeSessionActive       ErrorCode = "SESSION_ACTIVE"
	CodeSessionIdle         ErrorCode = "SESSION_IDLE"
	CodeSessionBusy         ErrorCode = "SESSION_BUSY"
	CodeSessionCancelled    ErrorCode = "SESSION_CANCELLED"
	CodeTranscriptDiscarded ErrorCode = "TRANSCRIPTION_DISCARDED"
	CodeModelNotReady       ErrorCode = "MODEL_NOT_READY"
	CodeAPIKeyMissing       ErrorCode = "API_KEY_MISSING"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeDecryption          ErrorCode = "DECRYPTION"
	CodeEncryption          ErrorCode = "ENCRYPTION"
	CodeHistoryWrite        ErrorCode = "HISTORY_WRITE"
	CodeNoSelection         ErrorCode = "NO_SELECTION"
	CodeTypingFailed        ErrorCode = "TYPING_FAILED"
	CodeClipboard           ErrorCode = "CLIPBOARD"
	CodeGatewayAuth         ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound   ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload   ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeRPCRateLimited      ErrorCode = "RPC_RATE_LIMITED"
	CodeContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen         ErrorCode = "CIRCUIT_OPEN"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:               CodeNotFound,
	ErrInvalidInput:           CodeInvalidInput,
	ErrProviderError:          CodeProviderError,
	ErrTimeout:                CodeTimeout,
	ErrSessionActive:          CodeSessionActive,
	ErrSessionIdle:            CodeSessionIdle,
	ErrSessionBusy:            CodeSessionBusy,
	ErrSessionCancelled:       CodeSessionCancelled,
	ErrTranscriptionDiscarded: CodeTranscriptDiscarded,
	ErrModelNotReady:          CodeModelNotReady,
	ErrAPIKeyMissing:          CodeAPIKeyMissing,
	ErrConfigLoad:             CodeConfigLoad,
	ErrDecryption:             CodeDecryption,
	ErrEncryption:             CodeEncryption,
	ErrHistoryWrite:           CodeHistoryWrite,
	ErrNoSelection:            CodeNoSelection,
	ErrTypingFailed:           CodeTypingFailed,
	ErrClipboard:              CodeClipboard,
	ErrGatewayAuthFailed:      CodeGatewayAuth,
	ErrRPCMethodNotFound:      CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:      CodeRPCInvalidPayload,
	ErrRPCRateLimited:         CodeRPCRateLimited,
	ErrContextOverflow:        CodeContextOverflow,
	ErrRateLimit:              CodeRateLimit,
	ErrAuthInvalid:            CodeAuthInvalid,
	ErrCircuitOpen:            CodeCircuitOpen,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Wrapping sentinels (ErrGatewayAuthFailed wraps ErrAuthInvalid) resolve to
// their own, more specific code. Returns CodeUnknown if nothing matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Most specific wrappers first.
	for _, s := range []error{ErrGatewayAuthFailed, ErrRPCRateLimited} {
		if errors.Is(err, s) {
			return errorCodeMap[s]
		}
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}

// HTTPStatusError is a non-2xx response from an upstream HTTP API. Its text
// form "HTTP <code>: <body>" is what users see.
type HTTPStatusError struct {
	Status int
	Body   string
	Err    error // mapped sentinel, e.g. ErrRateLimit
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
}

func (e *HTTPStatusError) Unwrap() error { return e.Err }
