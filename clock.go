package ctcp

import "time"

// NewSystemClock returns a [Clock] backed by the real monotonic clock,
// zeroed at the moment of the call.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: nowMillis()}
}

func (c *SystemClock) NowMillis() int64 { return nowMillis() - c.start }

var processStart = time.Now()

func nowMillis() int64 { return time.Since(processStart).Milliseconds() }
