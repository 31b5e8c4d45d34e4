package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCanMakeRequest_ThirdCallDenied(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))
	cfg := Config{MaxRequests: 2, Window: time.Minute}

	first := l.CanMakeRequest("user1", cfg)
	second := l.CanMakeRequest("user1", cfg)
	third := l.CanMakeRequest("user1", cfg)

	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)
	assert.True(t, second.Allowed)
	assert.Equal(t, 0, second.Remaining)
	assert.False(t, third.Allowed)
	assert.Equal(t, 0, third.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), third.ResetTime)
}

func TestCanMakeRequest_SlidingWindowNeverExceedsLimit(t *testing.T) {
	configs := []Config{
		{MaxRequests: 1, Window: time.Second},
		{MaxRequests: 3, Window: 10 * time.Second},
		{MaxRequests: 5, Window: time.Minute},
		{MaxRequests: 10, Window: 90 * time.Second},
	}

	for _, cfg := range configs {
		t.Run(fmt.Sprintf("%d_per_%s", cfg.MaxRequests, cfg.Window), func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(cfg.MaxRequests)))
			clock := newFakeClock()
			l := New(WithClock(clock.Now))

			var allowed []time.Time
			for i := 0; i < 2000; i++ {
				clock.Advance(time.Duration(rng.Int63n(int64(cfg.Window) / 4)))
				now := clock.Now()
				if l.CanMakeRequest("k", cfg).Allowed {
					allowed = append(allowed, now)
				}

				inWindow := 0
				for _, at := range allowed {
					if now.Sub(at) < cfg.Window {
						inWindow++
					}
				}
				require.LessOrEqual(t, inWindow, cfg.MaxRequests, "step %d", i)
			}
			assert.NotEmpty(t, allowed)
		})
	}
}

func TestCanMakeRequest_FixedResetAfterWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))
	cfg := Config{MaxRequests: 1, Window: time.Minute}

	require.True(t, l.CanMakeRequest("u", cfg).Allowed)
	require.False(t, l.CanMakeRequest("u", cfg).Allowed)

	clock.Advance(time.Minute)
	d := l.CanMakeRequest("u", cfg)
	assert.True(t, d.Allowed)
	assert.Equal(t, clock.Now().Add(time.Minute), d.ResetTime)
}

func TestCanMakeRequest_KeyGeneratorNamespaces(t *testing.T) {
	l := New()
	a := Config{MaxRequests: 1, Window: time.Minute, KeyGenerator: func(id string) string { return "a:" + id }}
	b := Config{MaxRequests: 1, Window: time.Minute, KeyGenerator: func(id string) string { return "b:" + id }}

	assert.True(t, l.CanMakeRequest("x", a).Allowed)
	assert.True(t, l.CanMakeRequest("x", b).Allowed)
	assert.False(t, l.CanMakeRequest("x", a).Allowed)
}

func TestCanMakeRequest_DefaultsApplied(t *testing.T) {
	l := New()
	var last Decision
	for i := 0; i < 11; i++ {
		last = l.CanMakeRequest("d", Config{})
	}
	assert.False(t, last.Allowed)
}

func TestRecordRequest_SkipFlags(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))
	cfg := Config{MaxRequests: 5, Window: time.Minute, SkipSuccessfulRequests: true}

	l.RecordRequest("u", true, cfg)
	assert.Equal(t, 0, l.Status("u", cfg).Count)

	l.RecordRequest("u", false, cfg)
	assert.Equal(t, 1, l.Status("u", cfg).Count)

	cfg.SkipFailedRequests = true
	l.RecordRequest("u", false, cfg)
	assert.Equal(t, 1, l.Status("u", cfg).Count)
}

func TestStatusAndClear(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))
	cfg := Config{MaxRequests: 3, Window: time.Minute}

	st := l.Status("u", cfg)
	assert.Equal(t, 0, st.Count)
	assert.Equal(t, 3, st.Remaining)

	l.CanMakeRequest("u", cfg)
	l.CanMakeRequest("u", cfg)
	st = l.Status("u", cfg)
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 1, st.Remaining)

	clock.Advance(61 * time.Second)
	assert.Equal(t, 0, l.Status("u", cfg).Count)

	l.CanMakeRequest("u", cfg)
	l.Clear("u", cfg)
	assert.Equal(t, 0, l.Stats().TotalIdentifiers)
}

func TestCleanup(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))
	cfg := Config{MaxRequests: 3, Window: time.Minute}

	l.CanMakeRequest("old", cfg)
	clock.Advance(2 * time.Minute)
	l.CanMakeRequest("fresh", cfg)

	assert.Equal(t, 0, l.Cleanup(), "old requests are still inside retention")

	clock.Advance(DefaultRetention)
	assert.Equal(t, 2, l.Cleanup())
	assert.Equal(t, Stats{}, l.Stats())
}

func TestCleanup_KeepsRequestsInsideLongWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))
	cfg := Config{MaxRequests: 3, Window: time.Hour}
	require.Greater(t, cfg.Window, DefaultRetention)

	for i := 0; i < 3; i++ {
		require.True(t, l.CanMakeRequest("global", cfg).Allowed)
	}
	require.False(t, l.CanMakeRequest("global", cfg).Allowed)

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 0, l.Cleanup())

	admitted := 0
	for i := 0; i < 3; i++ {
		if l.CanMakeRequest("global", cfg).Allowed {
			admitted++
		}
	}
	assert.Zero(t, admitted, "cleanup must not reopen a window that is still full")
	assert.Equal(t, 3, l.Status("global", cfg).Count)

	clock.Advance(time.Hour)
	assert.Equal(t, 1, l.Cleanup())
}

func TestStats(t *testing.T) {
	l := New()
	cfg := Config{MaxRequests: 5, Window: time.Minute}
	l.CanMakeRequest("a", cfg)
	l.CanMakeRequest("a", cfg)
	l.CanMakeRequest("b", cfg)

	s := l.Stats()
	assert.Equal(t, 2, s.TotalIdentifiers)
	assert.Equal(t, 3, s.TotalRequests)
	assert.InDelta(t, 1.5, s.AverageRequestsPerIdentifier, 1e-9)
}

func TestCanMakeRequest_ConcurrentCallersRespectLimit(t *testing.T) {
	l := New()
	cfg := Config{MaxRequests: 50, Window: time.Hour}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.CanMakeRequest("shared", cfg).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestStartJanitor(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now), WithRetention(time.Millisecond))
	l.CanMakeRequest("u", Config{MaxRequests: 1, Window: time.Millisecond})
	clock.Advance(time.Second)

	cleaned := make(chan int, 1)
	stop := l.StartJanitor(context.Background(), 5*time.Millisecond, func(n int) {
		select {
		case cleaned <- n:
		default:
		}
	})
	defer stop()

	select {
	case n := <-cleaned:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("janitor did not run")
	}
}

func TestCanMakeRequest_ResetKeepsRecentRequests(t *testing.T) {
	clock := newFakeClock()
	l := New(WithClock(clock.Now))
	cfg := Config{MaxRequests: 2, Window: time.Minute}

	require.True(t, l.CanMakeRequest("u", cfg).Allowed)
	clock.Advance(59 * time.Second)
	require.True(t, l.CanMakeRequest("u", cfg).Allowed)

	clock.Advance(time.Second)
	d := l.CanMakeRequest("u", cfg)
	assert.True(t, d.Allowed, "the first request left the window")
	assert.Equal(t, 0, d.Remaining)

	assert.False(t, l.CanMakeRequest("u", cfg).Allowed)
}
