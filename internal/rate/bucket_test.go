package rate

import (
	"sync"
	"testing"
)

func TestConsumeSequence(t *testing.T) {
	q := Quota{Limit: 2, Window: 10}

	var (
		state State
		found bool
	)
	step := func(now int64) Outcome {
		out := Consume(state, found, now, q)
		if out.Allowed {
			state = out.Next
			found = true
		}
		return out
	}

	if out := step(0); !out.Allowed || out.Remaining != 1 {
		t.Fatalf("call 1: expected allowed with 1 left, got %+v", out)
	}
	if out := step(0); !out.Allowed || out.Remaining != 0 {
		t.Fatalf("call 2: expected allowed with 0 left, got %+v", out)
	}
	if out := step(0); out.Allowed || out.RetryAfter != 5 {
		t.Fatalf("call 3: expected throttled with retry 5, got %+v", out)
	}
	if out := step(4); out.Allowed || out.RetryAfter != 1 {
		t.Fatalf("call 4: expected throttled with retry 1, got %+v", out)
	}
	if out := step(10); !out.Allowed || out.Remaining != 1 {
		t.Fatalf("call 5: expected full refill then consume, got %+v", out)
	}
	if state.UpdatedAt != 10 {
		t.Fatalf("expected state timestamp 10, got %d", state.UpdatedAt)
	}
}

func TestConsumeThrottleDoesNotMoveClock(t *testing.T) {
	q := Quota{Limit: 2, Window: 10}
	prev := State{Remaining: 0, UpdatedAt: 100}

	out := Consume(prev, true, 103, q)
	if out.Allowed {
		t.Fatalf("expected throttle, got %+v", out)
	}
	if out.Next != (State{}) {
		t.Fatalf("throttled outcome must not carry a new state, got %+v", out.Next)
	}
}

func TestReplenishClampsBackwardsClock(t *testing.T) {
	q := Quota{Limit: 5, Window: 10}

	allowance, elapsed := Replenish(State{Remaining: 1, UpdatedAt: 500}, 400, q)
	if elapsed != 0 || allowance != 1 {
		t.Fatalf("expected (1, 0), got (%d, %d)", allowance, elapsed)
	}

	out := Consume(State{Remaining: 0, UpdatedAt: 500}, true, 400, q)
	if out.Allowed || out.RetryAfter != 2 {
		t.Fatalf("expected throttle with retry 2 under skew, got %+v", out)
	}
}

func TestReplenishCapsAtLimit(t *testing.T) {
	q := Quota{Limit: 3, Window: 9}

	cases := []struct {
		prev State
		now  int64
		want int
	}{
		{prev: State{Remaining: 0, UpdatedAt: 0}, now: 2, want: 0},
		{prev: State{Remaining: 0, UpdatedAt: 0}, now: 3, want: 1},
		{prev: State{Remaining: 1, UpdatedAt: 0}, now: 7, want: 3},
		{prev: State{Remaining: 3, UpdatedAt: 0}, now: 1 << 40, want: 3},
		{prev: State{Remaining: 10, UpdatedAt: 0}, now: 0, want: 3},
		{prev: State{Remaining: -4, UpdatedAt: 0}, now: 3, want: 1},
	}
	for _, tc := range cases {
		got, _ := Replenish(tc.prev, tc.now, q)
		if got != tc.want {
			t.Fatalf("Replenish(%+v, %d) = %d, want %d", tc.prev, tc.now, got, tc.want)
		}
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	if got := RetryAfter(Quota{Limit: 3, Window: 10}, 0); got != 4 {
		t.Fatalf("expected ceil(10/3)=4, got %d", got)
	}
	if got := RetryAfter(Quota{Limit: 3, Window: 10}, 9); got != 0 {
		t.Fatalf("expected clamp to 0, got %d", got)
	}
}

func TestFirstConsumeSeedsFullBucket(t *testing.T) {
	out := Consume(State{}, false, 1_700_000_000, Quota{Limit: 4, Window: 60})
	if !out.Allowed || out.Remaining != 3 || out.Next.UpdatedAt != 1_700_000_000 {
		t.Fatalf("unexpected seed outcome: %+v", out)
	}
}

func TestQuotaValidate(t *testing.T) {
	if err := (Quota{Limit: 0, Window: 10}).Validate(); err != ErrInvalidQuota {
		t.Fatalf("expected ErrInvalidQuota, got %v", err)
	}
	if err := (Quota{Limit: 1, Window: 0}).Validate(); err != ErrInvalidQuota {
		t.Fatalf("expected ErrInvalidQuota, got %v", err)
	}
	if err := (Quota{Limit: 1, Window: 1}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	m := NewKeyedMutex(4)

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("identity-1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	if counter != 64 {
		t.Fatalf("expected 64 serialized increments, got %d", counter)
	}
}
