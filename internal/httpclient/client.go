// Package httpclient issues authenticated requests with exponential backoff.
// It never turns a non-200 response into an error; callers inspect the
// status and use DescribeStatus for the user facing message.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openkcm/oidc-login/internal/serviceerr"
	"github.com/openkcm/oidc-login/internal/tokens"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderCacheControl  = "Cache-Control"

	// CacheControlPrivate lets intermediaries reuse an authenticated GET for a
	// few seconds.
	CacheControlPrivate = "private, max-age=3"

	DefaultTimeout = 30 * time.Second
)

type Request struct {
	Method string
	URL    string
	// Body is encoded as JSON when set.
	Body  any
	Token tokens.Secret
}

type Client struct {
	http    *http.Client
	policy  RetryPolicy
	sleep   SleepFunc
	timeout time.Duration
}

type Option func(*Client)

func WithPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithTimeout bounds every attempt of a call. Backoff waits are not
// counted, so the final attempt always gets the full timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBaseTransport sets the transport attempts are sent through.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

func New(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		policy:  DefaultPolicy(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	c.http.Transport = &Transport{
		Base:           c.http.Transport,
		Policy:         c.policy,
		Sleep:          c.sleep,
		AttemptTimeout: c.timeout,
	}

	return c
}

// HTTPClient returns the underlying client. Its transport applies the retry
// policy, so it can be handed to other HTTP stacks.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Do sends the request with the bearer token when one is set. A transport
// failure on the final attempt is returned as a TransportError.
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	var body io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if !r.Token.IsEmpty() {
		req.Header.Set(HeaderAuthorization, "Bearer "+r.Token.Value())
		req.Header.Set(HeaderCacheControl, CacheControlPrivate)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		return nil, fmt.Errorf("%w: %w", serviceerr.ErrTransport, err)
	}

	return resp, nil
}

func (c *Client) Get(ctx context.Context, url string, token tokens.Secret) (*http.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: url, Token: token})
}

func (c *Client) PostJSON(ctx context.Context, url string, body any, token tokens.Secret) (*http.Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, URL: url, Body: body, Token: token})
}

const (
	MessageReauthenticate = "session likely invalid, re-authenticate"
	MessageTransient      = "transient failure, retry shortly"
)

// DescribeStatus returns the message shown to the user when an authenticated
// call still fails after retries.
func DescribeStatus(status int) string {
	if status == http.StatusUnauthorized {
		return MessageReauthenticate
	}

	return MessageTransient
}

// StatusError carries a non-200 response a caller gave up on.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, DescribeStatus(e.StatusCode))
}

// CheckStatus closes the body of a non-200 response and returns it as a
// StatusError.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	return &StatusError{StatusCode: resp.StatusCode, Body: string(data)}
}
