package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Predicate reports whether an attempt was unsuccessful and should be retried.
type Predicate func(resp *http.Response, err error) bool

// RetryOnNonOK treats everything but a 200 as a failure, 4xx included.
func RetryOnNonOK(resp *http.Response, err error) bool {
	return err != nil || resp == nil || resp.StatusCode != http.StatusOK
}

// RetryOnTransient retries transport errors, 5xx and 429 only.
func RetryOnTransient(resp *http.Response, err error) bool {
	if err != nil || resp == nil {
		return true
	}

	return resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
}

const (
	ModeStrict    = "strict"
	ModeTransient = "transient"
)

// PredicateFor maps a configured retry mode to its predicate.
func PredicateFor(mode string) (Predicate, error) {
	switch mode {
	case "", ModeStrict:
		return RetryOnNonOK, nil
	case ModeTransient:
		return RetryOnTransient, nil
	default:
		return nil, fmt.Errorf("unknown retry mode %q", mode)
	}
}

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 3 * time.Second
)

// RetryPolicy waits InitialDelay, then twice as long after every further
// unsuccessful attempt, for MaxAttempts-1 waits. One final attempt follows
// the waits and its outcome is returned as is.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Retryable    Predicate
}

func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Retryable:    RetryOnNonOK,
	}
}

func (p RetryPolicy) attempts() int {
	return max(p.MaxAttempts, 1)
}

func (p RetryPolicy) retryable(resp *http.Response, err error) bool {
	if p.Retryable == nil {
		return RetryOnNonOK(resp, err)
	}

	return p.Retryable(resp, err)
}

func (p RetryPolicy) backoff() retry.Backoff {
	var b retry.Backoff
	if p.InitialDelay > 0 {
		b = retry.NewExponential(p.InitialDelay)
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) {
			return 0, false
		})
	}

	return retry.WithMaxRetries(uint64(p.attempts()-1), b)
}

// Delays returns the waits the policy performs when every attempt fails.
func (p RetryPolicy) Delays() []time.Duration {
	b := p.backoff()

	var delays []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			return delays
		}
		delays = append(delays, d)
	}
}
