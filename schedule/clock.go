package schedule

import (
	"sync"
	"time"
)

// Clock tracks wall time from the topside host. The control loop works with
// its own monotonic time and asks the Clock to translate.
type Clock struct {
	mu     sync.Mutex
	offset time.Duration
	synced bool
	zone   *time.Location
}

// NewClock creates a Clock displaying times utcOffset from UTC
func NewClock(utcOffset time.Duration, zoneName string) *Clock {
	return &Clock{zone: time.FixedZone(zoneName, int(utcOffset.Seconds()))}
}

// Sync sets wall time to epoch at loop time now
func (c *Clock) Sync(epoch time.Time, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = epoch.Sub(now)
	c.synced = true
}

// Wall converts loop time to wall time
func (c *Clock) Wall(now time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Add(c.offset).In(c.zone)
}

// Loop converts wall time back to loop time
func (c *Clock) Loop(wall time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return wall.Add(-c.offset)
}

// Synced is true once the host has provided the time
func (c *Clock) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}
