package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, 0, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryPermanent(t *testing.T) {
	base := errors.New("bad request")
	attempts := 0

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(base)
	})

	if attempts != 1 {
		t.Errorf("Retry called fn %d times, want 1", attempts)
	}
	if err != base {
		t.Errorf("Retry returned %v, want the unwrapped error", err)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Hour, func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry returned %v, want context.Canceled", err)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(60, 3)
	if rl == nil {
		t.Fatal("NewRateLimiter returned nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if err := rl.Wait(short); err == nil {
		t.Error("fourth Wait should block past a 20ms deadline")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, 1)
	if rl != nil {
		t.Fatal("expected nil limiter for a zero rate")
	}
	if err := rl.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter Wait: %v", err)
	}
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown", "month", "2025-01")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message logged at warn level")
	}
	if !strings.Contains(out, "month=2025-01") {
		t.Errorf("text output missing attribute: %q", out)
	}

	if ParseLevel("DEBUG") != slog.LevelDebug {
		t.Error("ParseLevel is not case-insensitive")
	}
}
