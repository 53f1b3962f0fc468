package budget

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/briefing/errors"
)

// mockClock allows controlling time in tests
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(now time.Time) *mockClock {
	return &mockClock{now: now}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func TestLimiter_UnderLimit(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(10, clock.Now)

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Allow(), "call %d", i+1)
		clock.Advance(time.Second)
	}
}

func TestLimiter_AtLimit(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(10, clock.Now)

	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Allow(), "call %d", i+1)
		clock.Advance(100 * time.Millisecond)
	}

	err := limiter.Allow()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.NotEmpty(t, errors.GetAllDetails(err))
}

func TestLimiter_WindowSlides(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(2, clock.Now)

	require.NoError(t, limiter.Allow())
	clock.Advance(30 * time.Second)
	require.NoError(t, limiter.Allow())
	assert.Error(t, limiter.Allow())

	// first call leaves the window
	clock.Advance(31 * time.Second)
	assert.NoError(t, limiter.Allow())
	assert.Error(t, limiter.Allow())
}

func TestLimiter_ZeroDisables(t *testing.T) {
	limiter := NewLimiter(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, limiter.Allow())
	}
	calls, remaining := limiter.Stats()
	assert.Equal(t, 0, calls)
	assert.Equal(t, -1, remaining)
}

func TestLimiter_SetLimit(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(1, clock.Now)

	require.NoError(t, limiter.Allow())
	assert.Error(t, limiter.Allow())

	limiter.SetLimit(3)
	assert.Equal(t, 3, limiter.Limit())
	assert.NoError(t, limiter.Allow())

	calls, remaining := limiter.Stats()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, remaining)
}

func TestLimiter_Reset(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(1, clock.Now)

	require.NoError(t, limiter.Allow())
	limiter.Reset()
	assert.NoError(t, limiter.Allow())
}

func TestLimiter_WaitHonoursContext(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(1, clock.Now)
	limiter.pollInterval = time.Millisecond
	require.NoError(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_WaitReturnsOnceWindowFrees(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(1, clock.Now)
	limiter.pollInterval = time.Millisecond
	require.NoError(t, limiter.Allow())

	done := make(chan error, 1)
	go func() { done <- limiter.Wait(context.Background()) }()

	clock.Advance(61 * time.Second)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the window freed")
	}
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiter(50)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Allow() == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
