// Package errs defines the closed error taxonomy shared by all credit
// operations, plus classification of store-level errors into it.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type Kind uint8

const (
	KindUnexpected Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindValidation
	KindInsufficientCredits
	KindTransientStore
	KindConstraint
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "VALIDATION_FAILED"
	case KindInsufficientCredits:
		return "INSUFFICIENT_CREDITS"
	case KindTransientStore:
		return "TRANSIENT_STORE_ERROR"
	case KindConstraint:
		return "CONSTRAINT_VIOLATION"
	default:
		return "UNEXPECTED"
	}
}

// Error is the single error type crossing package boundaries. Operations
// branch on Kind, never on message text.
type Error struct {
	Kind          Kind
	Msg           string
	CorrelationID string

	// Set only for KindInsufficientCredits.
	RequiredCredits  int64
	AvailableCredits int64

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}

func Unauthenticated(msg string) *Error { return New(KindUnauthenticated, msg) }
func Forbidden(msg string) *Error       { return New(KindForbidden, msg) }
func NotFound(msg string) *Error        { return New(KindNotFound, msg) }
func Validation(msg string) *Error      { return New(KindValidation, msg) }

// InsufficientCredits carries the machine-checkable payload callers need to
// prompt for a top-up instead of showing a generic failure.
func InsufficientCredits(required, available int64, correlationID string) *Error {
	return &Error{
		Kind:             KindInsufficientCredits,
		Msg:              fmt.Sprintf("insufficient credits: %d required, %d available", required, available),
		CorrelationID:    correlationID,
		RequiredCredits:  required,
		AvailableCredits: available,
	}
}

// As unwraps err down to the taxonomy Error, if there is one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnexpected
}

// IsRetryable reports whether retrying err could change the outcome.
// Validation, authorization, not-found, insufficient-credits and constraint
// violations propagate on first occurrence; transient store failures and
// unclassified errors are worth another attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransientStore, KindUnexpected:
		return true
	default:
		return false
	}
}

// HTTPStatus maps the taxonomy onto the status codes the dispatch layer
// exposes: 401/403/404/400/402, 503 for transient store failures, 500 for
// everything else.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindInsufficientCredits:
		return http.StatusPaymentRequired
	case KindTransientStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ClassifyStore translates a pgx/pgconn error into the taxonomy. Callers map
// pgx.ErrNoRows to NotFound themselves; everything arriving here is a real
// failure.
func ClassifyStore(op string, err error) *Error {
	if e, ok := As(err); ok {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(KindTransientStore, op+" timed out", err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"): // integrity constraint violation
			return Wrap(KindConstraint, op+" violated a constraint", err)
		case pgErr.Code == "40001" || pgErr.Code == "40P01": // serialization failure, deadlock
			return Wrap(KindTransientStore, op+" lost a concurrency conflict", err)
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return Wrap(KindTransientStore, op+" connection failure", err)
		}
	}
	return Wrap(KindUnexpected, op+" failed", err)
}
