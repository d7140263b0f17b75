package netutil

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryDownloader decorates a Downloader with a bounded number of retries
// for transient failures. Status errors other than 5xx/429 and request
// setup errors fail immediately.
type RetryDownloader struct {
	Next Downloader
	// Attempts is the total number of tries, including the first.
	// Values below 1 mean a single try.
	Attempts int
	// Backoff is the delay before the second try; it doubles per retry.
	Backoff time.Duration
}

// Download tries Next until it succeeds, the error is permanent, the
// attempts run out or ctx is done.
func (r *RetryDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	attempts := max(r.Attempts, 1)
	delay := r.Backoff

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			logrus.Debugf("[netutil] retry %d/%d for %s after: %v", i, attempts-1, url, lastErr)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, lastErr
				case <-timer.C:
				}
				delay *= 2
			}
		}
		body, err := r.Next.Download(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !shouldRetry(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrBodyTooLarge) {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	var nonRetryable *NonRetryableError
	return !errors.As(err, &nonRetryable)
}
