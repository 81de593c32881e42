package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthenticated", Unauthenticated("no caller"), http.StatusUnauthorized},
		{"forbidden", Forbidden("not yours"), http.StatusForbidden},
		{"not found", NotFound("no such user"), http.StatusNotFound},
		{"validation", Validation("bad amount"), http.StatusBadRequest},
		{"insufficient credits", InsufficientCredits(5, 2, "cid"), http.StatusPaymentRequired},
		{"transient store", New(KindTransientStore, "conn reset"), http.StatusServiceUnavailable},
		{"constraint", New(KindConstraint, "check failed"), http.StatusInternalServerError},
		{"unexpected", New(KindUnexpected, "boom"), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(New(KindTransientStore, "timeout")))
	assert.True(t, IsRetryable(errors.New("unclassified")))

	for _, err := range []*Error{
		Unauthenticated("x"),
		Forbidden("x"),
		NotFound("x"),
		Validation("x"),
		InsufficientCredits(1, 0, "cid"),
		New(KindConstraint, "x"),
	} {
		assert.False(t, IsRetryable(err), "kind %s must not be retryable", err.Kind)
	}
}

func TestInsufficientCreditsPayload(t *testing.T) {
	err := InsufficientCredits(10, 3, "corr-1")

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindInsufficientCredits, e.Kind)
	assert.Equal(t, int64(10), e.RequiredCredits)
	assert.Equal(t, int64(3), e.AvailableCredits)
	assert.Equal(t, "corr-1", e.CorrelationID)
}

func TestAsThroughWrapping(t *testing.T) {
	inner := NotFound("user gone")
	wrapped := fmt.Errorf("loading balance: %w", inner)

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, e.Kind)
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestClassifyStore(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unique violation", &pgconn.PgError{Code: "23505"}, KindConstraint},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, KindConstraint},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, KindTransientStore},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, KindTransientStore},
		{"connection failure", &pgconn.PgError{Code: "08006"}, KindTransientStore},
		{"deadline exceeded", context.DeadlineExceeded, KindTransientStore},
		{"generic", errors.New("boom"), KindUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyStore("test op", tt.err)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyStoreKeepsTaxonomyErrors(t *testing.T) {
	orig := InsufficientCredits(1, 0, "cid")
	got := ClassifyStore("op", orig)
	assert.Same(t, orig, got)
}
