package rate

// Quota is a bucket capacity and the number of seconds it takes to refill
// from empty.
type Quota struct {
	Limit  int
	Window int64
}

// Validate reports ErrInvalidQuota when either field is not positive.
func (q Quota) Validate() error {
	if q.Limit <= 0 || q.Window <= 0 {
		return ErrInvalidQuota
	}
	return nil
}

// State is the persisted bucket: remaining tokens and the time they were
// last recalculated.
type State struct {
	Remaining int
	UpdatedAt int64
}

// Outcome is the result of one Consume call.
type Outcome struct {
	Allowed    bool
	Remaining  int
	RetryAfter int64
	// Next is the state to persist. It is meaningful only when Allowed.
	Next State
}

// Replenish credits whole tokens for the time elapsed since prev.UpdatedAt
// and caps the result at the quota limit. A clock that moved backwards
// counts as zero elapsed seconds.
func Replenish(prev State, now int64, q Quota) (allowance int, elapsed int64) {
	elapsed = now - prev.UpdatedAt
	if elapsed < 0 {
		elapsed = 0
	}

	remaining := prev.Remaining
	if remaining < 0 {
		remaining = 0
	}

	if elapsed >= q.Window {
		return q.Limit, elapsed
	}

	// elapsed < Window keeps the product below Window*Limit.
	allowance = remaining + int(elapsed*int64(q.Limit)/q.Window)
	if allowance > q.Limit {
		allowance = q.Limit
	}
	return allowance, elapsed
}

// RetryAfter returns the seconds until one token is due, never negative.
func RetryAfter(q Quota, elapsed int64) int64 {
	perToken := (q.Window + int64(q.Limit) - 1) / int64(q.Limit)
	wait := perToken - elapsed
	if wait < 0 {
		return 0
	}
	return wait
}

// Consume applies one request to the bucket. found=false seeds a full
// bucket at now. A throttled outcome leaves the stored state untouched so
// the replenishment clock keeps running from the last successful request.
func Consume(prev State, found bool, now int64, q Quota) Outcome {
	if !found {
		prev = State{Remaining: q.Limit, UpdatedAt: now}
	}

	allowance, elapsed := Replenish(prev, now, q)
	if allowance >= 1 {
		return Outcome{
			Allowed:   true,
			Remaining: allowance - 1,
			Next:      State{Remaining: allowance - 1, UpdatedAt: now},
		}
	}

	return Outcome{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: RetryAfter(q, elapsed),
	}
}
