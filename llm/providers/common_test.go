package providers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/seedforge/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError_ClassificationTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		msg       string
		wantKind  llm.ErrorKind
		wantRetry bool
	}{
		{"401 is auth", 401, "invalid credentials", llm.KindAuth, false},
		{"403 is auth", 403, "forbidden", llm.KindAuth, false},
		{"api key message is auth regardless of status", 500, "invalid api key provided", llm.KindAuth, false},
		{"429 is rate limit", 429, "too many requests", llm.KindRateLimit, true},
		{"rate message is rate limit", 400, "rate exceeded", llm.KindRateLimit, true},
		{"limit message on 400 is rate limit", 400, "quota limit reached", llm.KindRateLimit, true},
		{"400 is invalid request", 400, "bad payload", llm.KindInvalidRequest, false},
		{"404 with model is model not found", 404, "model gpt-x does not exist", llm.KindModelNotFound, false},
		{"500 is server", 500, "internal error", llm.KindServer, true},
		{"503 is server", 503, "overloaded", llm.KindServer, true},
		{"404 without model is unknown", 404, "not found", llm.KindUnknown, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := MapHTTPError(tc.status, tc.msg, 0, "p")
			assert.Equal(t, tc.wantKind, got.Kind)
			assert.Equal(t, tc.wantRetry, got.Retryable)
			assert.Equal(t, tc.status, got.HTTPStatus)
			assert.Equal(t, "p", got.Provider)
		})
	}
}

func TestMapHTTPError_CarriesRetryAfterHint(t *testing.T) {
	t.Parallel()

	got := MapHTTPError(429, "slow down", 7*time.Second, "p")
	require.Equal(t, llm.KindRateLimit, got.Kind)
	assert.Equal(t, 7*time.Second, got.RetryAfter)
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	h := http.Header{}
	assert.Zero(t, ParseRetryAfter(h))

	h.Set("Retry-After", "15")
	assert.Equal(t, 15*time.Second, ParseRetryAfter(h))

	h.Set("Retry-After", time.Now().Add(30*time.Second).UTC().Format(http.TimeFormat))
	got := ParseRetryAfter(h)
	assert.Greater(t, got, 20*time.Second)
	assert.LessOrEqual(t, got, 30*time.Second)

	h.Set("Retry-After", "garbage")
	assert.Zero(t, ParseRetryAfter(h))
}

func TestReadErrorMessage(t *testing.T) {
	t.Parallel()

	msg := ReadErrorMessage(strings.NewReader(`{"error":{"message":"boom","type":"server_error"}}`))
	assert.Equal(t, "boom (type: server_error)", msg)

	msg = ReadErrorMessage(strings.NewReader(`{"message":"flat style"}`))
	assert.Equal(t, "flat style", msg)

	msg = ReadErrorMessage(strings.NewReader("plain text failure"))
	assert.Equal(t, "plain text failure", msg)
}

func TestChooseModel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "req", ChooseModel("req", "cfg", "def"))
	assert.Equal(t, "cfg", ChooseModel("", "cfg", "def"))
	assert.Equal(t, "def", ChooseModel("", "", "def"))
}
