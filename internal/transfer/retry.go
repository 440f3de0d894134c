package transfer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// retryPolicy is the attempt loop shared by the download and upload sides:
// fixed backoff, transient failures only.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

func defaultPolicy() retryPolicy {
	return retryPolicy{attempts: 3, backoff: time.Second}
}

// sleep waits one backoff period or until the context ends.
func (p retryPolicy) sleep(ctx context.Context) error {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryable reports whether err is worth another attempt. Context
// cancellation and deadline expiry are final; transport-level failures and
// server-side transient statuses are not.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se statusError
	if errors.As(err, &se) {
		return se.code == 429 || se.code >= 500
	}
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, errTransport)
}

var errTransport = errors.New("transport failure")

// statusError is a non-2xx response from either remote side.
type statusError struct {
	code int
	url  string
}

func (e statusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.code, e.url)
}
