package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// ErrorClassifier determines if an error is retryable
type ErrorClassifier func(error) bool

// RetryOptions defines the configuration for retries
type RetryOptions struct {
	// MaxAttempts <= 0 retries until the context is done
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Classifier      ErrorClassifier

	// OnRetry is called before each wait, mostly for logging
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultOptions returns the options used for startup connects
func DefaultOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:     5,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Classifier: func(err error) bool {
			return true
		},
	}
}

// ForeverOptions returns options for long-lived loops such as pub/sub resubscription
func ForeverOptions() RetryOptions {
	opts := DefaultOptions()
	opts.MaxAttempts = 0
	opts.InitialInterval = 500 * time.Millisecond
	opts.MaxInterval = 15 * time.Second
	return opts
}

// StopOn builds a classifier that refuses to retry the given errors (matched with errors.Is)
func StopOn(permanent ...error) ErrorClassifier {
	return func(err error) bool {
		for _, p := range permanent {
			if errors.Is(err, p) {
				return false
			}
		}
		return true
	}
}

// Do executes fn with exponential backoff until it succeeds, the classifier
// rejects the error, attempts run out or ctx is done.
func Do(ctx context.Context, fn RetryableFunc, opts RetryOptions) error {
	var lastErr error

	for attempt := 1; opts.MaxAttempts <= 0 || attempt <= opts.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if opts.Classifier != nil && !opts.Classifier(err) {
			return err
		}
		if attempt == opts.MaxAttempts {
			break
		}

		wait := CalculateBackoff(attempt, opts)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// CalculateBackoff returns the interval for a specific attempt number
func CalculateBackoff(attempt int, opts RetryOptions) time.Duration {
	if attempt <= 1 {
		return opts.InitialInterval
	}

	interval := float64(opts.InitialInterval) * math.Pow(opts.Multiplier, float64(attempt-1))
	if interval > float64(opts.MaxInterval) {
		return opts.MaxInterval
	}
	return time.Duration(interval)
}
