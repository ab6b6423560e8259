package testfixtures

import (
	"sync"
	"time"

	"github.com/example/conference-scheduler/internal/scheduler"
)

// Clock is a manually driven time source for expiry and attendability
// checks. It starts at midnight of the first conference day.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts the clock at start, or at ReferenceTime when start is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NowFunc exposes Now for injection into coordinators and catalogs.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// SetAt moves the clock to hour:minute on the given conference day.
func (c *Clock) SetAt(day, hour, minute int) time.Time {
	at := referenceTime.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
	c.mu.Lock()
	c.now = at
	c.mu.Unlock()
	return at
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// During moves the clock to the midpoint of iv, so events booked on iv are
// in progress.
func (c *Clock) During(iv scheduler.Interval) time.Time {
	mid := iv.Start.Add(iv.End.Sub(iv.Start) / 2)
	c.mu.Lock()
	c.now = mid
	c.mu.Unlock()
	return mid
}
