package misskey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mentionmod/mentionmod/util"

	"github.com/carlmjohnson/versioninfo"
)

type Client struct {
	// Client is an HTTP client to use. If not set, defaults to util.SingleAttemptHTTPClient with a 20 second timeout. Moderation calls must not be retried.
	Client *http.Client
	// Instance base URL, including scheme, eg "https://misskey.example.com"
	Host string
	// API access token for the bot account. Sent as a bearer credential.
	Token     string
	UserAgent *string
}

func (c *Client) getClient() *http.Client {
	if c.Client == nil {
		return util.SingleAttemptHTTPClient(20 * time.Second)
	}
	return c.Client
}

func (c *Client) userAgent() string {
	if c.UserAgent != nil {
		return *c.UserAgent
	}
	return "mentionmod/" + versioninfo.Short()
}

// Error body returned by the Misskey API, eg:
//
//	{"error": {"message": "...", "code": "PERMISSION_DENIED", "id": "..."}}
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	ID      string `json:"id"`
	Kind    string `json:"kind,omitempty"`
}

func (ae *APIError) Error() string {
	return fmt.Sprintf("%s: %s", ae.Code, ae.Message)
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

type Error struct {
	StatusCode int
	Wrapped    error
	Ratelimit  *RatelimitInfo
}

func (e *Error) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("misskey API error %d", e.StatusCode)
	}
	if e.StatusCode == http.StatusTooManyRequests && e.Ratelimit != nil {
		return fmt.Sprintf("misskey API error %d: %s (throttled until %s)", e.StatusCode, e.Wrapped, e.Ratelimit.Reset.Local())
	}
	return fmt.Sprintf("misskey API error %d: %s", e.StatusCode, e.Wrapped)
}

func (e *Error) Unwrap() error {
	if e.Wrapped == nil {
		return nil
	}
	return e.Wrapped
}

func (e *Error) IsThrottled() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type RatelimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func errorFromHTTPResponse(resp *http.Response, err error) error {
	r := &Error{
		StatusCode: resp.StatusCode,
		Wrapped:    err,
	}
	if resp.Header.Get("x-ratelimit-limit") != "" {
		r.Ratelimit = &RatelimitInfo{}
		if n, err := strconv.ParseInt(resp.Header.Get("x-ratelimit-reset"), 10, 64); err == nil {
			r.Ratelimit.Reset = time.Now().Add(time.Duration(n) * time.Second)
		}
		if n, err := strconv.ParseInt(resp.Header.Get("x-ratelimit-limit"), 10, 64); err == nil {
			r.Ratelimit.Limit = int(n)
		}
		if n, err := strconv.ParseInt(resp.Header.Get("x-ratelimit-remaining"), 10, 64); err == nil {
			r.Ratelimit.Remaining = int(n)
		}
	}
	return r
}

// Reports whether the error indicates the bot credential lacks permission for the endpoint (HTTP 403, or an explicit permission error code).
func IsPermissionDenied(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		switch ae.Code {
		case "PERMISSION_DENIED", "ROLE_PERMISSION_DENIED", "ACCESS_DENIED", "YOU_ARE_NOT_ADMIN":
			return true
		}
	}
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// Calls a Misskey API endpoint. Every endpoint is a JSON POST to "/api/<endpoint>"; a nil body is sent as an empty object.
//
// If out is nil, the response body is discarded (many moderation endpoints respond "204 No Content").
func (c *Client) Do(ctx context.Context, endpoint string, bodyobj any, out any) error {
	if bodyobj == nil {
		bodyobj = map[string]any{}
	}
	b, err := json.Marshal(bodyobj)
	if err != nil {
		return err
	}

	uri := strings.TrimSuffix(c.Host, "/") + "/api/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent())
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	start := time.Now()
	resp, err := c.getClient().Do(req)
	apiDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		apiCount.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	apiCount.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		var env errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error == nil {
			return errorFromHTTPResponse(resp, fmt.Errorf("failed to decode misskey error message: %v", err))
		}
		return errorFromHTTPResponse(resp, env.Error)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding misskey response: %w", err)
	}
	return nil
}
