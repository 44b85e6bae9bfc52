package admission

import (
	"strconv"
	"sync"
	"time"
)

// TempIDPrefix prefixes identifiers generated for messages that carry none.
const TempIDPrefix = "TEMP_"

// Clock hands out strictly increasing instants at millisecond resolution,
// even when the wall clock stalls or steps back.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock returns a Clock reading from now. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns an instant later than every instant returned before.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}

// IDGenerator produces TEMP_<unix millis> identifiers, unique for the
// lifetime of the process.
type IDGenerator struct {
	clock *Clock
}

// NewIDGenerator returns a generator seeded by now.
func NewIDGenerator(now func() time.Time) *IDGenerator {
	return &IDGenerator{clock: NewClock(now)}
}

// Next returns a fresh identifier.
func (g *IDGenerator) Next() string {
	return TempIDPrefix + strconv.FormatInt(g.clock.Next().UnixMilli(), 10)
}
