package partysync

import (
	"time"

	"github.com/gosuda/partysync/partysync/core/common"
)

// Clock supplies wall-clock time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads time.Now.
var SystemClock Clock = ClockFunc(time.Now)

// sessionClock converts wall-clock readings into session-relative
// timestamps that never go backwards.
type sessionClock struct {
	clock Clock
	epoch time.Time
	last  common.Timestamp
}

func newSessionClock(c Clock) *sessionClock {
	if c == nil {
		c = SystemClock
	}
	return &sessionClock{clock: c, epoch: c.Now()}
}

func (c *sessionClock) Now() common.Timestamp {
	ts := common.TimestampOf(c.clock.Now().Sub(c.epoch))
	if ts < c.last {
		return c.last
	}
	c.last = ts
	return ts
}

func (c *sessionClock) Wall() time.Time {
	return c.clock.Now()
}
