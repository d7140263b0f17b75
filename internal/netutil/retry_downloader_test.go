package netutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

type downloaderFunc func(ctx context.Context, url string) ([]byte, error)

func (f downloaderFunc) Download(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

func TestRetryDownloader_NoRetryOnClientStatusError(t *testing.T) {
	var calls int
	r := &RetryDownloader{
		Next: downloaderFunc(func(_ context.Context, url string) ([]byte, error) {
			calls++
			return nil, &HTTPStatusError{StatusCode: 404, URL: url}
		}),
		Attempts: 3,
	}

	if _, err := r.Download(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected status error")
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryDownloader_RetriesServerStatusError(t *testing.T) {
	var calls int
	r := &RetryDownloader{
		Next: downloaderFunc(func(_ context.Context, url string) ([]byte, error) {
			calls++
			if calls < 3 {
				return nil, &HTTPStatusError{StatusCode: 503, URL: url}
			}
			return []byte("ok"), nil
		}),
		Attempts: 3,
	}

	body, err := r.Download(context.Background(), "https://example.com")
	if err != nil || string(body) != "ok" {
		t.Fatalf("body=%q err=%v", body, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryDownloader_NoRetryOnNonRetryableError(t *testing.T) {
	var calls int
	inner := errors.New("bad url")
	r := &RetryDownloader{
		Next: downloaderFunc(func(_ context.Context, _ string) ([]byte, error) {
			calls++
			return nil, &NonRetryableError{Err: inner}
		}),
		Attempts: 3,
	}

	_, err := r.Download(context.Background(), "::::")
	if !errors.Is(err, inner) {
		t.Fatalf("expected wrapped inner error, got: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestRetryDownloader_RetryOnNetworkErrorThenGiveUp(t *testing.T) {
	var calls int
	r := &RetryDownloader{
		Next: downloaderFunc(func(_ context.Context, _ string) ([]byte, error) {
			calls++
			return nil, context.DeadlineExceeded
		}),
		Attempts: 3,
		Backoff:  time.Millisecond,
	}

	_, err := r.Download(context.Background(), "https://example.com")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryDownloader_ZeroAttemptsMeansOne(t *testing.T) {
	var calls int
	r := &RetryDownloader{
		Next: downloaderFunc(func(_ context.Context, _ string) ([]byte, error) {
			calls++
			return nil, errors.New("connection reset")
		}),
	}
	if _, err := r.Download(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestRetryDownloader_StopsWhenContextCanceledDuringBackoff(t *testing.T) {
	var calls int
	ctx, cancel := context.WithCancel(context.Background())
	r := &RetryDownloader{
		Next: downloaderFunc(func(_ context.Context, _ string) ([]byte, error) {
			calls++
			cancel()
			return nil, errors.New("connection reset")
		}),
		Attempts: 5,
		Backoff:  time.Hour,
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Download(ctx, "https://example.com")
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(time.Second):
		t.Fatal("Download did not return after cancellation")
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"too large", ErrBodyTooLarge, false},
		{"404", &HTTPStatusError{StatusCode: 404}, false},
		{"429", &HTTPStatusError{StatusCode: 429}, true},
		{"502", &HTTPStatusError{StatusCode: 502}, true},
		{"setup", &NonRetryableError{Err: errors.New("x")}, false},
		{"network", errors.New("dial tcp: connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.err); got != tt.want {
				t.Fatalf("shouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
