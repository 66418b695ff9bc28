package partysync

import "time"

// Ticker gates work to a fixed cadence. Each Update fires at most once, so a
// burst of calls never replays missed ticks and a caller slower than the
// period fires on every call.
type Ticker struct {
	period  time.Duration
	next    time.Time
	started bool
	count   uint64
}

func NewTicker(period time.Duration) *Ticker {
	return &Ticker{period: period}
}

// Update reports whether a tick fires at now. The first call only anchors
// the schedule.
func (t *Ticker) Update(now time.Time) bool {
	if !t.started {
		t.started = true
		t.next = now.Add(t.period)
		return false
	}
	if now.Before(t.next) {
		return false
	}
	t.count++
	t.next = t.next.Add(t.period)
	if !t.next.After(now) {
		t.next = now.Add(t.period)
	}
	return true
}

// Count is the number of ticks fired so far.
func (t *Ticker) Count() uint64 {
	return t.count
}

func (t *Ticker) Period() time.Duration {
	return t.period
}
