package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock. sleep advances it.
type fakeClock struct {
	t      time.Time
	slept  time.Duration
	sleeps int
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.t = c.t.Add(d)
	c.slept += d
	c.sleeps++
}

func newTestTimely(rps int, clock *fakeClock) *Timely {
	l := NewTimely(rps)
	l.now = clock.now
	l.sleep = clock.sleep
	l.windowEnd = clock.t.Add(time.Second)
	return l
}

func TestTimely_AdmitsQuotaWithoutDelay(t *testing.T) {
	tests := []struct {
		name  string
		quota int
		calls int
	}{
		{name: "single call", quota: 20, calls: 1},
		{name: "below quota", quota: 20, calls: 19},
		{name: "exactly quota", quota: 20, calls: 20},
		{name: "quota of one", quota: 1, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
			l := newTestTimely(tt.quota, clock)

			for i := 0; i < tt.calls; i++ {
				if err := l.Wait(context.Background()); err != nil {
					t.Fatalf("Wait() call %d error = %v", i+1, err)
				}
			}

			if clock.sleeps != 0 {
				t.Errorf("slept %d times (%v), want no delay", clock.sleeps, clock.slept)
			}
		})
	}
}

func TestTimely_DelaysCallBeyondQuota(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := newTestTimely(5, clock)
	windowEnd := clock.t.Add(time.Second)

	for i := 0; i < 5; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if clock.sleeps != 0 {
		t.Fatalf("first 5 calls slept %d times", clock.sleeps)
	}

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if clock.t.Before(windowEnd) {
		t.Errorf("6th call admitted at %v, before window end %v", clock.t, windowEnd)
	}

	// The 6th call opened a new window; 4 more fit without delay.
	sleeps := clock.sleeps
	for i := 0; i < 4; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if clock.sleeps != sleeps {
		t.Errorf("calls in new window slept %d extra times", clock.sleeps-sleeps)
	}
}

func TestTimely_ElapsedWindowResets(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := newTestTimely(2, clock)

	_ = l.Wait(context.Background())
	_ = l.Wait(context.Background())

	// Idle past the window end; the next call must not wait.
	clock.t = clock.t.Add(1500 * time.Millisecond)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if clock.sleeps != 0 {
		t.Errorf("slept %d times after idle window, want 0", clock.sleeps)
	}
}

func TestTimely_ContextCancelled(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := newTestTimely(1, clock)
	_ = l.Wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestSleepy_Interval(t *testing.T) {
	tests := []struct {
		rps  int
		want time.Duration
	}{
		{rps: 20, want: 50 * time.Millisecond},
		{rps: 10, want: 100 * time.Millisecond},
		{rps: 0, want: 50 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := NewSleepy(tt.rps).Interval(); got != tt.want {
			t.Errorf("NewSleepy(%d).Interval() = %v, want %v", tt.rps, got, tt.want)
		}
	}
}

func TestSleepy_SleepsBeforeEveryCall(t *testing.T) {
	l := NewSleepy(100)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("3 calls took %v, want >= 30ms", elapsed)
	}
}

func TestSleepy_ContextCancelled(t *testing.T) {
	l := NewSleepy(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestForgetful_NeverDelays(t *testing.T) {
	var l Limiter = Forgetful{}

	start := time.Now()
	for i := 0; i < 1000; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("1000 calls took %v", elapsed)
	}
}

func TestBucket_BurstThenThrottle(t *testing.T) {
	l := NewBucket(10)

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("burst of 10 took %v, want immediate", elapsed)
	}

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("11th call admitted after %v, want ~100ms", elapsed)
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "", want: StrategyTimely},
		{in: "timely", want: StrategyTimely},
		{in: "SLEEPY", want: StrategySleepy},
		{in: " forgetful ", want: StrategyForgetful},
		{in: "bucket", want: StrategyBucket},
		{in: "shared", want: StrategyShared},
		{in: "leaky", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStrategy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStrategy(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "default", cfg: DefaultConfig(), want: "*ratelimit.Timely"},
		{name: "sleepy", cfg: Config{Strategy: StrategySleepy}, want: "*ratelimit.Sleepy"},
		{name: "forgetful", cfg: Config{Strategy: StrategyForgetful}, want: "ratelimit.Forgetful"},
		{name: "bucket", cfg: Config{Strategy: StrategyBucket, RequestsPerSecond: 5}, want: "*ratelimit.Bucket"},
		{name: "shared without redis", cfg: Config{Strategy: StrategyShared}, wantErr: true},
		{name: "negative quota", cfg: Config{RequestsPerSecond: -1}, wantErr: true},
		{name: "unknown", cfg: Config{Strategy: "leaky"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := typeName(l); got != tt.want {
				t.Errorf("New() type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(l Limiter) string {
	switch l.(type) {
	case *Timely:
		return "*ratelimit.Timely"
	case *Sleepy:
		return "*ratelimit.Sleepy"
	case Forgetful:
		return "ratelimit.Forgetful"
	case *Bucket:
		return "*ratelimit.Bucket"
	case *Shared:
		return "*ratelimit.Shared"
	default:
		return "unknown"
	}
}
