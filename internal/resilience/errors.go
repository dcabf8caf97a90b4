package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind classifies pipeline failures so each layer can apply the right
// recovery policy.
type Kind string

const (
	// KindExtraction: document unreadable or a collaborator threw.
	// Retried locally within the stage's budget.
	KindExtraction Kind = "extraction"
	// KindParse: collaborator response not in the expected structured form.
	// Degrades to a fallback parse within the same attempt.
	KindParse Kind = "parse"
	// KindValidation: result structurally valid but below the confidence or
	// completeness threshold. Triggers a retry, not a hard error.
	KindValidation Kind = "validation"
	// KindOrchestration: a prerequisite stage produced no data; the
	// dependent stage is skipped, not attempted.
	KindOrchestration Kind = "orchestration"
	// KindCritical: uncaught failure in the orchestrator. Recorded at the
	// top level; the job is marked failed.
	KindCritical Kind = "critical"
)

// kindError attaches a Kind to an error chain.
type kindError struct {
	err  error
	kind Kind
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// WithKind tags err with a failure kind. Returns nil when err is nil.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &kindError{err: err, kind: kind}
}

// KindOf returns the failure kind in err's chain, or KindCritical when the
// error carries no classification (unclassified failures are treated as the
// most severe).
func KindOf(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	return KindCritical
}

// IsFatalKind reports whether the kind counts toward FAILED_PARTIAL status
// derivation (as opposed to warnings that never block completion).
func IsFatalKind(kind Kind) bool {
	switch kind {
	case KindExtraction, KindOrchestration, KindCritical:
		return true
	default:
		return false
	}
}

// TransientError wraps an error that is safe to retry (e.g., 429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
