package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manu030/geoconsole-credits/internal/errs"
)

func parseLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &out))
	return out
}

func TestProductionOutputIsJSON(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, false)

	lg.Info("credits retrieved", Fields{
		"user_id":        "u-1",
		"credits":        int64(42),
		"correlation_id": "corr-1",
	})

	out := parseLine(t, &buf)
	assert.Equal(t, "credits retrieved", out["msg"])
	assert.Equal(t, "info", out["level"])
	assert.Equal(t, "u-1", out["user_id"])
	assert.Equal(t, "corr-1", out["correlation_id"])
	assert.NotEmpty(t, out["time"])
}

func TestDefaultCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, false)

	lg.Info("hello", nil)

	out := parseLine(t, &buf)
	assert.Equal(t, "no-correlation-id", out["correlation_id"])
}

func TestDebugSuppressedInProduction(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, false)

	lg.Debug("noisy detail", nil)
	assert.Empty(t, buf.String())

	var devBuf bytes.Buffer
	dev := New(&devBuf, true)
	dev.Debug("noisy detail", nil)
	assert.Contains(t, devBuf.String(), "noisy detail")
}

func TestChildFieldPrecedence(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, false).Child(Fields{
		"service":   "credit",
		"operation": "base-op",
	})

	lg.Info("x", Fields{"operation": "explicit-op"})

	out := parseLine(t, &buf)
	assert.Equal(t, "credit", out["service"])
	assert.Equal(t, "explicit-op", out["operation"])
}

func TestChildDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(&buf, false)
	_ = parent.Child(Fields{"service": "credit"})

	parent.Info("x", nil)

	out := parseLine(t, &buf)
	_, ok := out["service"]
	assert.False(t, ok)
}

func TestErrorsAreSanitizedBeforeEmission(t *testing.T) {
	var buf bytes.Buffer
	sensitiveSeen := 0
	lg := New(&buf, false, WithSensitiveHook(func() { sensitiveSeen++ }))

	lg.Error("operation failed", Fields{
		"error": errors.New("connect failed: password=abc123"),
	})

	raw := buf.String()
	assert.NotContains(t, raw, "abc123")
	assert.Contains(t, raw, errs.RedactionMarker)
	assert.Equal(t, 1, sensitiveSeen)

	out := parseLine(t, &buf)
	assert.Equal(t, "UNEXPECTED", out["error_kind"])
}

func TestErrorKindTagEmitted(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, false)

	lg.Error("lookup failed", Fields{
		"error": errs.NotFound("user u-9 not found"),
	})

	out := parseLine(t, &buf)
	assert.Equal(t, "NOT_FOUND", out["error_kind"])
	assert.Equal(t, "NOT_FOUND: user u-9 not found", out["error"])
}
