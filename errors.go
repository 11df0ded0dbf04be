package txlog

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ConfigError is fatal: the run aborts before any network call.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "configuration: " + e.Reason }

// AuthError reports an authentication rejection by an exchange. It is
// not retried beyond the adapter's alternate-scheme attempt.
type AuthError struct {
	Exchange Exchange
	Status   int
	Name     string // exchange-reported error name, when available
}

func (e *AuthError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: authentication rejected (HTTP %d, %s)", e.Exchange, e.Status, e.Name)
	}
	return fmt.Sprintf("%s: authentication rejected (HTTP %d)", e.Exchange, e.Status)
}

// TransientError wraps a failure worth retrying: timeouts, connection
// resets, 429 and 5xx responses.
type TransientError struct {
	Status int // 0 when the failure happened below HTTP
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient: HTTP %d", e.Status)
	}
	return "transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

const (
	retryBase = 800 * time.Millisecond
	retryCap  = 12 * time.Second
)

// Retry runs fn up to attempts times, backing off exponentially with
// jitter between attempts. Only transient failures are retried.
func Retry(ctx context.Context, attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		delay := retryBase << i
		if delay > retryCap {
			delay = retryCap
		}
		delay += time.Duration(rand.Int63n(int64(250 * time.Millisecond)))
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
	}
	return err
}
