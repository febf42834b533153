package httpclient

import (
	"context"
	"io"
	"net/http"
	"time"

	slogctx "github.com/veqryn/slog-context"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Transport is an http.RoundTripper applying a RetryPolicy, so that any HTTP
// stack sharing the client goes through the same retry loop. Requests with a
// body are only retried when GetBody is set.
type Transport struct {
	Base   http.RoundTripper
	Policy RetryPolicy
	Sleep  SleepFunc
	// AttemptTimeout bounds each attempt until its body is closed. Backoff
	// waits are not counted. Zero means no limit.
	AttemptTimeout time.Duration
}

func (t *Transport) base() http.RoundTripper {
	if t.Base == nil {
		return http.DefaultTransport
	}

	return t.Base
}

func (t *Transport) sleep(ctx context.Context, d time.Duration) error {
	if t.Sleep == nil {
		return sleepContext(ctx, d)
	}

	return t.Sleep(ctx, d)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return t.base().RoundTrip(req)
	}

	b := t.Policy.backoff()
	for attempt := 1; ; attempt++ {
		delay, stop := b.Next()
		if stop {
			break
		}

		r, err := rewind(req, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := t.attempt(r)
		if !t.Policy.retryable(resp, err) {
			return resp, err
		}

		logArgs := []any{"method", req.Method, "url", redactURL(req), "attempt", attempt, "delay", delay}
		if err != nil {
			logArgs = append(logArgs, "error", err)
		} else {
			logArgs = append(logArgs, "status", resp.StatusCode)
		}
		slogctx.Debug(ctx, "Retrying request", logArgs...)

		discard(resp)

		if err := t.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	r, err := rewind(req, t.Policy.attempts())
	if err != nil {
		return nil, err
	}

	return t.attempt(r)
}

func (t *Transport) attempt(req *http.Request) (*http.Response, error) {
	if t.AttemptTimeout <= 0 {
		return t.base().RoundTrip(req)
	}

	ctx, cancel := context.WithTimeout(req.Context(), t.AttemptTimeout)
	resp, err := t.base().RoundTrip(req.WithContext(ctx))
	if err != nil || resp == nil || resp.Body == nil {
		cancel()
		return resp, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

	return resp, nil
}

// cancelOnClose releases the attempt context once the body is done with.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()

	return err
}

// rewind returns the request for the given attempt with a fresh body.
func rewind(req *http.Request, attempt int) (*http.Request, error) {
	if attempt == 1 || req.GetBody == nil {
		return req, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}

	r := req.Clone(req.Context())
	r.Body = body

	return r, nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

func redactURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	u.User = nil

	return u.String()
}
