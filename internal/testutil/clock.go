package testutil

import (
	"fmt"
	"sync"
	"time"

	"almaseo-go/internal/seo"
)

// FixedTime is where every FixedClock starts: redirect timestamps, last hits
// and snapshot CreatedAt values in fixtures are all relative to it.
var FixedTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

var (
	_ seo.Clock       = (*StubClock)(nil)
	_ seo.IDGenerator = (*ExportIDs)(nil)
)

// StubClock only moves when a test calls Advance, which is how cache TTL
// expiry and snapshot ordering are driven. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to FixedTime.
func FixedClock() *StubClock {
	return NewStubClock(FixedTime)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *StubClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// ExportIDs hands out export document IDs "export-1", "export-2", ...
type ExportIDs struct {
	mu   sync.Mutex
	next int
}

func NewExportIDs() *ExportIDs {
	return &ExportIDs{}
}

func (g *ExportIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("export-%d", g.next)
}
