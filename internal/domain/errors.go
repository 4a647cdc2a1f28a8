package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrConfigLoad   = fmt.Errorf("failed to load configuration")
	ErrDecryption   = fmt.Errorf("decryption failed")

	// Tool errors.
	ErrToolNotFound = fmt.Errorf("tool not found")
	ErrToolFailure  = fmt.Errorf("tool execution failed")

	// Store errors.
	ErrVectorStore  = fmt.Errorf("vector store operation failed")
	ErrVectorSearch = fmt.Errorf("vector search failed")
	ErrCatalog      = fmt.Errorf("catalog operation failed")

	// Provider errors.
	ErrEmbeddingFailed  = fmt.Errorf("embedding generation failed")
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrProviderDown     = fmt.Errorf("provider unavailable")
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid      = fmt.Errorf("authentication failed")
	ErrContextOverflow  = fmt.Errorf("context window exceeded")

	// Assistant errors.
	ErrMaxToolRounds = fmt.Errorf("assistant reached max tool rounds")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Get")
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

// IsRetryableError reports whether err is a transient provider error that
// may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeDecryption       ErrorCode = "DECRYPTION"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure      ErrorCode = "TOOL_FAILURE"
	CodeVectorStore      ErrorCode = "VECTOR_STORE"
	CodeVectorSearch     ErrorCode = "VECTOR_SEARCH"
	CodeCatalog          ErrorCode = "CATALOG"
	CodeEmbeddingFailed  ErrorCode = "EMBEDDING_FAILED"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeProviderDown     ErrorCode = "PROVIDER_DOWN"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeMaxToolRounds    ErrorCode = "MAX_TOOL_ROUNDS"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrInvalidInput:     CodeInvalidInput,
	ErrConfigLoad:       CodeConfigLoad,
	ErrDecryption:       CodeDecryption,
	ErrToolNotFound:     CodeToolNotFound,
	ErrToolFailure:      CodeToolFailure,
	ErrVectorStore:      CodeVectorStore,
	ErrVectorSearch:     CodeVectorSearch,
	ErrCatalog:          CodeCatalog,
	ErrEmbeddingFailed:  CodeEmbeddingFailed,
	ErrProviderNotFound: CodeProviderNotFound,
	ErrProviderDown:     CodeProviderDown,
	ErrRateLimit:        CodeRateLimit,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrContextOverflow:  CodeContextOverflow,
	ErrMaxToolRounds:    CodeMaxToolRounds,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and walks the chain with errors.Is.
// Returns CodeUnknown if no matching sentinel is found.
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

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
