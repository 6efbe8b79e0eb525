package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const logPrefix = "portal:client"

// DefaultBaseURL is the portal REST root every relative path resolves against.
const DefaultBaseURL = "https://juridico.intranet.bb.com.br/paj/resources/app/"

// RetryPolicy controls how many times a call is tried and how long to wait between tries.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Timer drives the wait between attempts. Nil uses a real timer.
	Timer backoff.Timer
}

// DefaultRetryPolicy is three attempts one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second}
}

// TransportError is returned once every attempt of a call has failed.
type TransportError struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrHTTPStatus marks an attempt whose response was not 2xx.
var ErrHTTPStatus = errors.New("http status not ok")

// ErrReplyError marks an attempt whose JSON body carried an error field.
var ErrReplyError = errors.New("reply carries error field")

// Observer is told about every attempt. outcome is "ok", "retry" or "exhausted".
type Observer interface {
	ObserveAttempt(method, outcome string)
}

// Transport is the call surface the registration workflow depends on.
type Transport interface {
	Get(ctx context.Context, path string) (*Reply, error)
	Post(ctx context.Context, path string, payload any) (*Reply, error)
	Put(ctx context.Context, path string, payload any) (*Reply, error)
}

// Client issues portal calls through an Executor with retries.
type Client struct {
	exec     Executor
	base     *url.URL
	policy   RetryPolicy
	observer Observer
}

// ClientOptions configures NewClient. Zero values use defaults.
type ClientOptions struct {
	BaseURL  string
	Retry    RetryPolicy
	Observer Observer
}

// NewClient creates a Client.
func NewClient(exec Executor, opts ClientOptions) (*Client, error) {
	raw := opts.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid base URL %q: %w", logPrefix, raw, err)
	}
	policy := opts.Retry
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.Delay < 0 {
		policy.Delay = 0
	}
	return &Client{exec: exec, base: base, policy: policy, observer: opts.Observer}, nil
}

// Resolve turns a path relative to the base URL into an absolute URL.
// Absolute URLs pass through.
func (c *Client) Resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String() + strings.TrimPrefix(path, "/")
	}
	if ref.IsAbs() {
		return ref.String()
	}
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	return c.base.ResolveReference(ref).String()
}

// Get fetches a JSON envelope. Undecodable bodies and bodies with an error
// field count as failed attempts.
func (c *Client) Get(ctx context.Context, path string) (*Reply, error) {
	return c.do(ctx, http.MethodGet, path, nil, decodeStrict)
}

// Post sends payload as JSON. A body that is not JSON is handed to
// ParseServiceResponse instead of failing the attempt.
func (c *Client) Post(ctx context.Context, path string, payload any) (*Reply, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode payload for %s: %w", logPrefix, path, err)
	}
	return c.do(ctx, http.MethodPost, path, body, decodeLenient)
}

// Put sends payload as JSON with the same failure rules as Get.
func (c *Client) Put(ctx context.Context, path string, payload any) (*Reply, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode payload for %s: %w", logPrefix, path, err)
	}
	return c.do(ctx, http.MethodPut, path, body, decodeStrict)
}

type decodeFunc func(body string) (*Reply, error)

func decodeStrict(body string) (*Reply, error) {
	reply, hasError, err := decodeEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("undecodable body: %w", err)
	}
	if hasError {
		return nil, fmt.Errorf("%w: %s", ErrReplyError, truncate(body, 200))
	}
	return reply, nil
}

func decodeLenient(body string) (*Reply, error) {
	reply, _, err := decodeEnvelope(body)
	if err != nil {
		return ParseServiceResponse(body), nil
	}
	return reply, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, decode decodeFunc) (*Reply, error) {
	target := c.Resolve(path)
	attempt := 0
	var reply *Reply

	op := func() error {
		attempt++
		slog.Debug(fmt.Sprintf("%s - %s %s attempt %d/%d", logPrefix, method, target, attempt, c.policy.MaxAttempts))

		res, err := c.exec.Execute(ctx, Request{Method: method, URL: target, Body: body})
		if err != nil {
			return c.attemptFailed(ctx, method, target, attempt, err)
		}
		if res == nil {
			return c.attemptFailed(ctx, method, target, attempt, errors.New("executor returned no result"))
		}
		if !res.OK {
			return c.attemptFailed(ctx, method, target, attempt,
				fmt.Errorf("%w: %d %s", ErrHTTPStatus, res.Status, res.StatusText))
		}
		r, err := decode(res.Body)
		if err != nil {
			return c.attemptFailed(ctx, method, target, attempt, err)
		}
		reply = r
		c.observe(method, "ok")
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.policy.Delay), uint64(c.policy.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.RetryNotifyWithTimer(op, b, nil, c.policy.Timer); err != nil {
		c.observe(method, "exhausted")
		slog.Warn(fmt.Sprintf("%s - %s %s gave up after %d attempts: %v", logPrefix, method, target, attempt, err))
		return nil, &TransportError{Method: method, URL: target, Attempts: attempt, Err: err}
	}
	return reply, nil
}

func (c *Client) attemptFailed(ctx context.Context, method, target string, attempt int, err error) error {
	if attempt < c.policy.MaxAttempts && ctx.Err() == nil {
		c.observe(method, "retry")
		slog.Warn(fmt.Sprintf("%s - %s %s attempt %d failed, retrying in %s: %v",
			logPrefix, method, target, attempt, c.policy.Delay, err))
	}
	return err
}

func (c *Client) observe(method, outcome string) {
	if c.observer != nil {
		c.observer.ObserveAttempt(method, outcome)
	}
}
