package common

import "time"

// Identity is the public handle a connection holds for the session.
type Identity uint8

// Timestamp is a session-relative time with microsecond resolution.
type Timestamp int64

// TimestampOf truncates d to the timestamp resolution.
func TimestampOf(d time.Duration) Timestamp {
	return Timestamp(d / time.Microsecond)
}

func (t Timestamp) Duration() time.Duration {
	return time.Duration(t) * time.Microsecond
}

func (t Timestamp) Sub(u Timestamp) time.Duration {
	return (t - u).Duration()
}

func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + TimestampOf(d)
}

func (t Timestamp) String() string {
	return t.Duration().String()
}

// TickPeriod converts a tick rate in ticks per second to its period.
func TickPeriod(rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Second / time.Duration(rate)
}
