package util

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mentionmod/mentionmod/util/ssrf"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type LeveledSlog struct {
	inner *slog.Logger
}

// re-writes HTTP client ERROR to WARN level (because of retries)
func (l LeveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

// re-writes HTTP client DEBUG to INFO level (this is where retry is logged)
func (l LeveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

// Generates an HTTP client with decent general-purpose defaults around
// timeouts and retries. The returned client has the stdlib http.Client
// interface, but has Hashicorp retryablehttp logic internally.
//
// This client will retry on connection errors, 5xx status (except 501), and
// 429 Backoff requests (respecting 'Retry-After' header). It will log
// intermediate failures with WARN level. This does not start from
// http.DefaultClient.
//
// Used for image downloads and the OCR and LLM HTTP backends. Misskey
// moderation calls use SingleAttemptHTTPClient instead.
func RobustHTTPClient() *http.Client {
	return RobustHTTPClientTimeout(20 * time.Second)
}

// Same as RobustHTTPClient, with a caller-supplied overall request timeout. LLM backends can take far longer than a typical API call.
func RobustHTTPClientTimeout(timeout time.Duration) *http.Client {
	client := newRetryClient().StandardClient()
	client.Timeout = timeout
	return client
}

// Same instrumentation and logging as RobustHTTPClient, but every request is
// sent exactly once. A 5xx or 429 response is handed back to the caller
// unchanged rather than being retried or turned into a "giving up" error.
//
// Used for Misskey API calls: a delete or suspend that failed is logged and
// flagged for review, never re-sent.
func SingleAttemptHTTPClient(timeout time.Duration) *http.Client {
	retryClient := newRetryClient()
	retryClient.RetryMax = 0
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}

// Retrying client which only dials public IP addresses on ports 80 and 443. Attachment URLs come from remote instances and are untrusted.
func PublicOnlyHTTPClient(timeout time.Duration) *http.Client {
	retryClient := newRetryClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(ssrf.PublicOnlyTransport())
	// a blocked destination stays blocked
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if errors.Is(err, ssrf.ErrBlocked) {
			return false, err
		}
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}

func newRetryClient() *retryablehttp.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{slog.Default().With("system", "http")})
	// instrumented transport for OTEL tracing of outbound requests
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(retryClient.HTTPClient.Transport)
	return retryClient
}
