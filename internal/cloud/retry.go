package cloud

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

// errorClass is the §4.4/§4.5 retry classification: limit, transient, or
// permanent.
type errorClass int

const (
	classTransient errorClass = iota
	classLimit
	classPermanent
)

// httpError carries the classification decided at the HTTP layer so the
// sync service (or a direct caller) never has to re-inspect status codes.
type httpError struct {
	transient bool
	limit     bool
	status    int
	err       error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

// SyncErrorClass lets internal/syncsvc classify cloud errors without
// string-sniffing (see syncsvc.classifiable).
func (e *httpError) SyncErrorClass() string {
	switch {
	case e.limit:
		return "limit"
	case e.transient:
		return "transient"
	default:
		return "permanent"
	}
}

func classifyHTTPStatus(status int, err error) error {
	switch {
	case status == http.StatusRequestEntityTooLarge || status == http.StatusTooManyRequests:
		return &httpError{limit: true, status: status, err: err}
	case status >= 500:
		return &httpError{transient: true, status: status, err: err}
	default:
		return &httpError{status: status, err: err}
	}
}

// classify inspects an error returned from a cloud sub-client call and
// reports which of the three §4.5 buckets it belongs to.
func classify(err error) errorClass {
	if err == nil {
		return classPermanent
	}
	var he *httpError
	if errors.As(err, &he) {
		switch {
		case he.limit:
			return classLimit
		case he.transient:
			return classTransient
		default:
			return classPermanent
		}
	}
	return classTransient
}

// retryDelay implements the §4.5 backoff formula: min(2^retries, 60) seconds.
func retryDelay(retries int) time.Duration {
	seconds := math.Min(math.Pow(2, float64(retries)), 60)
	return time.Duration(seconds * float64(time.Second))
}

// withRetry runs fn, retrying transient failures with exponential backoff
// up to maxRetries times. Limit and permanent errors are returned
// immediately without retrying (spec §4.4 "Retry policy").
func withRetry(maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if classify(err) != classTransient {
			return err
		}
		if attempt < maxRetries {
			time.Sleep(retryDelay(attempt))
		}
	}
	return fmt.Errorf("exhausted %d retries: %w", maxRetries, lastErr)
}
