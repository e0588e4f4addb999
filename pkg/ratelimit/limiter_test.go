package ratelimit

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestNew_ClampsInitialDelay(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		expected time.Duration
	}{
		{
			name:     "defaults",
			cfg:      DefaultConfig(),
			expected: 3 * time.Second,
		},
		{
			name: "initial below floor",
			cfg: Config{
				InitialDelay: 500 * time.Millisecond,
				MinDelay:     1 * time.Second,
				MaxDelay:     60 * time.Second,
			},
			expected: 1 * time.Second,
		},
		{
			name: "initial above ceiling",
			cfg: Config{
				InitialDelay: 5 * time.Minute,
				MinDelay:     1 * time.Second,
				MaxDelay:     60 * time.Second,
			},
			expected: 60 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(tt.cfg, testLogger())
			if got := limiter.Delay(); got != tt.expected {
				t.Errorf("Delay() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRecordSuccess_ShrinksAfterStreak(t *testing.T) {
	limiter := New(Config{
		InitialDelay: 10 * time.Second,
		MinDelay:     1 * time.Second,
		MaxDelay:     60 * time.Second,
	}, testLogger())

	// Below the streak threshold the delay must not move.
	for i := 0; i < SuccessStreakThreshold; i++ {
		limiter.RecordSuccess()
	}
	if got := limiter.Delay(); got != 10*time.Second {
		t.Errorf("Delay() after %d successes = %v, want unchanged 10s", SuccessStreakThreshold, got)
	}

	// The next success crosses the threshold and shrinks by 0.8.
	limiter.RecordSuccess()
	if got := limiter.Delay(); got != 8*time.Second {
		t.Errorf("Delay() after streak = %v, want 8s", got)
	}
}

func TestRecordSuccess_NeverBelowFloor(t *testing.T) {
	limiter := New(Config{
		InitialDelay: 1200 * time.Millisecond,
		MinDelay:     1 * time.Second,
		MaxDelay:     60 * time.Second,
	}, testLogger())

	for i := 0; i < 50; i++ {
		limiter.RecordSuccess()
	}

	if got := limiter.Delay(); got < 1*time.Second {
		t.Errorf("Delay() = %v, want >= floor 1s", got)
	}
}

func TestRecordFailure_GrowthFactors(t *testing.T) {
	tests := []struct {
		name        string
		isRateLimit bool
		expected    time.Duration
	}{
		{name: "generic failure grows 1.5x", isRateLimit: false, expected: 4500 * time.Millisecond},
		{name: "rate limit grows 2x", isRateLimit: true, expected: 6 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := New(DefaultConfig(), testLogger())

			limiter.RecordFailure(tt.isRateLimit)

			if got := limiter.Delay(); got != tt.expected {
				t.Errorf("Delay() after failure = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRecordFailure_NeverAboveCeiling(t *testing.T) {
	limiter := New(DefaultConfig(), testLogger())

	for i := 0; i < 20; i++ {
		limiter.RecordFailure(true)
	}

	if got := limiter.Delay(); got > DefaultMaxDelay {
		t.Errorf("Delay() = %v, want <= ceiling %v", got, DefaultMaxDelay)
	}
}

func TestRecordFailure_ResetsSuccessStreak(t *testing.T) {
	limiter := New(Config{
		InitialDelay: 10 * time.Second,
		MinDelay:     1 * time.Second,
		MaxDelay:     60 * time.Second,
	}, testLogger())

	for i := 0; i <= SuccessStreakThreshold; i++ {
		limiter.RecordSuccess()
	}
	limiter.RecordFailure(false)

	state := limiter.Snapshot()
	if state.SuccessStreak != 0 {
		t.Errorf("SuccessStreak after failure = %d, want 0", state.SuccessStreak)
	}
	if state.FailureStreak != 1 {
		t.Errorf("FailureStreak = %d, want 1", state.FailureStreak)
	}
}

func TestDegradationNotice_OncePerStreak(t *testing.T) {
	var mu sync.Mutex
	notices := 0

	cfg := DefaultConfig()
	cfg.OnDegraded = func(streak int, delay time.Duration) {
		mu.Lock()
		notices++
		mu.Unlock()

		if streak != FailureStreakThreshold {
			t.Errorf("OnDegraded streak = %d, want %d", streak, FailureStreakThreshold)
		}
	}

	limiter := New(cfg, testLogger())

	// Six consecutive failures: the notice fires at the third only.
	for i := 0; i < 6; i++ {
		limiter.RecordFailure(false)
	}

	mu.Lock()
	got := notices
	mu.Unlock()
	if got != 1 {
		t.Errorf("degradation notices = %d, want exactly 1 per streak", got)
	}

	// A success ends the streak; three more failures start a new one.
	limiter.RecordSuccess()
	for i := 0; i < 3; i++ {
		limiter.RecordFailure(false)
	}

	mu.Lock()
	got = notices
	mu.Unlock()
	if got != 2 {
		t.Errorf("degradation notices after second streak = %d, want 2", got)
	}
}

func TestWait_RespectsDelay(t *testing.T) {
	limiter := New(Config{
		InitialDelay: 50 * time.Millisecond,
		MinDelay:     10 * time.Millisecond,
		MaxDelay:     time.Second,
	}, testLogger())

	start := time.Now()
	if err := limiter.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 45*time.Millisecond {
		t.Errorf("Wait() returned after %v, want >= 50ms", elapsed)
	}
}

func TestWait_CancelledContext(t *testing.T) {
	limiter := New(Config{
		InitialDelay: 10 * time.Second,
		MinDelay:     1 * time.Second,
		MaxDelay:     60 * time.Second,
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := limiter.Wait(ctx)
	if err == nil {
		t.Fatal("Wait() with cancelled context returned nil error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Wait() took %v after cancellation, want immediate return", elapsed)
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	limiter := New(DefaultConfig(), testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if (n+j)%2 == 0 {
					limiter.RecordSuccess()
				} else {
					limiter.RecordFailure(j%3 == 0)
				}
				_ = limiter.Delay()
			}
		}(i)
	}
	wg.Wait()

	state := limiter.Snapshot()
	if state.Delay < state.MinDelay || state.Delay > state.MaxDelay {
		t.Errorf("Delay %v escaped bounds [%v, %v]", state.Delay, state.MinDelay, state.MaxDelay)
	}
}
