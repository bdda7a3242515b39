package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks user-correctable input problems (bad strategy or
	// request shape). Returned synchronously, never persisted as a document
	// failure.
	ErrValidation = errors.New("validation error")

	// ErrParse marks an unparseable document. Terminal: the document goes to
	// failed.
	ErrParse = errors.New("parse error")

	// ErrProviderTransient marks timeouts, rate limits and 5xx-equivalent
	// provider failures. Retryable within the backoff budget.
	ErrProviderTransient = errors.New("provider transient error")

	// ErrProviderFatal marks dimensionality mismatches and auth failures.
	// Terminal for the batch, never retried.
	ErrProviderFatal = errors.New("provider fatal error")

	// ErrStrategyResolution means every language-model provider was exhausted
	// while resolving a natural-language strategy. The document stays pending.
	ErrStrategyResolution = errors.New("strategy resolution error")

	// ErrConflict marks two concurrent reprocess requests for one document;
	// the later one fails fast.
	ErrConflict = errors.New("concurrency conflict")

	ErrDocumentNotFound = errors.New("document not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorCode returns the machine-readable code exposed alongside a failed
// document's human-readable reason.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrValidation):
		return "validation_error"
	case IsKind(err, ErrParse):
		return "parse_error"
	case IsKind(err, ErrProviderFatal):
		return "provider_fatal"
	case IsKind(err, ErrProviderTransient):
		return "provider_transient"
	case IsKind(err, ErrStrategyResolution):
		return "strategy_resolution_error"
	case IsKind(err, ErrConflict):
		return "concurrency_conflict"
	case IsKind(err, ErrDocumentNotFound):
		return "document_not_found"
	default:
		return "internal_error"
	}
}
