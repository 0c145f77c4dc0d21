package cooldown

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFake() (*Store, *fakeClock) {
	clk := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewWithClock(clk.Now), clk
}

func TestStartAndExpire(t *testing.T) {
	s, clk := newFake()
	s.Start("bot:1", 10*time.Second)

	if !s.Active("bot:1") {
		t.Fatal("Active right after Start = false, want true")
	}
	clk.Advance(9 * time.Second)
	if !s.Active("bot:1") {
		t.Error("Active at 9s = false, want true")
	}
	if got := s.Remaining("bot:1"); got != time.Second {
		t.Errorf("Remaining at 9s = %v, want 1s", got)
	}
	clk.Advance(time.Second)
	if s.Active("bot:1") {
		t.Error("Active at 10s = true, want false")
	}
	if s.Len() != 0 {
		t.Errorf("Len after lazy expiry = %d, want 0", s.Len())
	}
}

func TestRelease(t *testing.T) {
	s, _ := newFake()
	s.Start("action:1", time.Minute)
	s.Release("action:1")
	if s.Active("action:1") {
		t.Error("Active after Release = true, want false")
	}
}

func TestZeroDuration(t *testing.T) {
	s, _ := newFake()
	s.Start("k", 0)
	if s.Active("k") {
		t.Error("Active after Start(0) = true")
	}
	if !s.TryAcquire("k", 0) || !s.TryAcquire("k", 0) {
		t.Error("TryAcquire(0) should always succeed")
	}
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestTryAcquire(t *testing.T) {
	s, clk := newFake()
	if !s.TryAcquire("k", 5*time.Second) {
		t.Fatal("first TryAcquire = false")
	}
	if s.TryAcquire("k", 5*time.Second) {
		t.Error("second TryAcquire while active = true")
	}
	clk.Advance(5 * time.Second)
	if !s.TryAcquire("k", 5*time.Second) {
		t.Error("TryAcquire after expiry = false")
	}
}

func TestTryAcquireConcurrent(t *testing.T) {
	s, _ := newFake()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.TryAcquire("race", time.Minute) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Errorf("winners = %d, want 1", wins.Load())
	}
}

func TestSweep(t *testing.T) {
	s, clk := newFake()
	s.Start("a", time.Second)
	s.Start("b", time.Hour)
	clk.Advance(time.Minute)

	if n := s.Sweep(); n != 1 {
		t.Errorf("Sweep removed %d, want 1", n)
	}
	if s.Len() != 1 || !s.Active("b") {
		t.Errorf("after Sweep: Len = %d, b active = %v", s.Len(), s.Active("b"))
	}
}
