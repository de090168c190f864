package feed

import (
	"context"
	"fmt"
	"time"

	"vitalsops/internal/telemetry"
)

// SimTransport generates vitals for a simulated squad, one soldier per
// interval in round-robin order.
type SimTransport struct {
	Soldiers []string
	Interval time.Duration
	Seed     int64
}

// DefaultSquad returns n soldier ids in the FC-### format.
func DefaultSquad(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("FC-%03d", i+1)
	}
	return ids
}

// Connect starts a fresh simulation.
func (t *SimTransport) Connect(context.Context) (Conn, error) {
	if len(t.Soldiers) == 0 {
		return nil, fmt.Errorf("simulator: no soldiers configured")
	}
	interval := t.Interval
	if interval <= 0 {
		interval = time.Second
	}
	squad := make([]*telemetry.Vitals, len(t.Soldiers))
	for i, id := range t.Soldiers {
		squad[i] = telemetry.NewVitals(id)
	}
	return &simConn{
		gen:    telemetry.NewGenerator(t.Seed),
		squad:  squad,
		ticker: time.NewTicker(interval),
	}, nil
}

type simConn struct {
	gen    *telemetry.Generator
	squad  []*telemetry.Vitals
	next   int
	ticker *time.Ticker
}

func (c *simConn) Next(ctx context.Context) (telemetry.SoldierReading, error) {
	select {
	case <-ctx.Done():
		return telemetry.SoldierReading{}, ctx.Err()
	case <-c.ticker.C:
	}
	v := c.squad[c.next]
	c.next = (c.next + 1) % len(c.squad)
	return c.gen.Next(v), nil
}

func (c *simConn) Close() error {
	c.ticker.Stop()
	return nil
}
