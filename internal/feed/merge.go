package feed

import "vitalsops/internal/telemetry"

// DefaultHistoryCap bounds a soldier's history view.
const DefaultHistoryCap = 30

// LatestTable holds the latest reading per soldier in display order.
type LatestTable struct {
	rows  []telemetry.SoldierReading
	index map[string]int
}

// NewLatestTable builds a table in snapshot order. A soldier repeated in the
// snapshot keeps its first position and its last reading.
func NewLatestTable(snapshot []telemetry.SoldierReading) *LatestTable {
	t := &LatestTable{index: make(map[string]int, len(snapshot))}
	for _, r := range snapshot {
		if i, ok := t.index[r.SoldierID]; ok {
			t.rows[i] = r
			continue
		}
		t.index[r.SoldierID] = len(t.rows)
		t.rows = append(t.rows, r)
	}
	return t
}

// Apply merges a pushed reading: a known soldier is replaced in place, an
// unseen soldier is prepended. It reports whether the table grew.
func (t *LatestTable) Apply(r telemetry.SoldierReading) bool {
	if i, ok := t.index[r.SoldierID]; ok {
		t.rows[i] = r
		return false
	}
	t.rows = append(t.rows, telemetry.SoldierReading{})
	copy(t.rows[1:], t.rows)
	t.rows[0] = r
	for id := range t.index {
		t.index[id]++
	}
	t.index[r.SoldierID] = 0
	return true
}

// Rows returns a copy of the table.
func (t *LatestTable) Rows() []telemetry.SoldierReading {
	return append([]telemetry.SoldierReading(nil), t.rows...)
}

// Len returns the number of soldiers.
func (t *LatestTable) Len() int { return len(t.rows) }

// Get returns the latest reading for soldierID.
func (t *LatestTable) Get(soldierID string) (telemetry.SoldierReading, bool) {
	i, ok := t.index[soldierID]
	if !ok {
		return telemetry.SoldierReading{}, false
	}
	return t.rows[i], true
}

// History is one soldier's recent readings in arrival order, capped with
// oldest-first eviction and deduplicated on (soldierId, timestamp). Keys of
// the last cap evicted readings are remembered too, so a redelivery after a
// reconnect cannot bring an evicted reading back as the newest one.
type History struct {
	soldierID string
	cap       int
	rows      []telemetry.SoldierReading
	seen      map[telemetry.ReadingKey]struct{}
	evicted   []telemetry.ReadingKey
}

// NewHistory returns a history seeded with a chronological snapshot. A cap
// of zero or less uses DefaultHistoryCap.
func NewHistory(soldierID string, limit int, snapshot []telemetry.SoldierReading) *History {
	if limit <= 0 {
		limit = DefaultHistoryCap
	}
	h := &History{
		soldierID: soldierID,
		cap:       limit,
		seen:      make(map[telemetry.ReadingKey]struct{}, 2*limit),
	}
	for _, r := range snapshot {
		h.Append(r)
	}
	return h
}

// Append adds r when it belongs to this soldier and is not a duplicate. It
// reports whether r was added.
func (h *History) Append(r telemetry.SoldierReading) bool {
	if r.SoldierID != h.soldierID {
		return false
	}
	key := r.Key()
	if _, dup := h.seen[key]; dup {
		return false
	}
	h.rows = append(h.rows, r)
	h.seen[key] = struct{}{}
	for len(h.rows) > h.cap {
		h.evict(h.rows[0].Key())
		h.rows = h.rows[1:]
	}
	return true
}

func (h *History) evict(key telemetry.ReadingKey) {
	h.evicted = append(h.evicted, key)
	if len(h.evicted) > h.cap {
		delete(h.seen, h.evicted[0])
		h.evicted = h.evicted[1:]
	}
}

// Rows returns a copy of the history, oldest first.
func (h *History) Rows() []telemetry.SoldierReading {
	return append([]telemetry.SoldierReading(nil), h.rows...)
}

// Len returns the number of readings held.
func (h *History) Len() int { return len(h.rows) }

// SoldierID returns the soldier this history tracks.
func (h *History) SoldierID() string { return h.soldierID }

// Latest returns the newest reading.
func (h *History) Latest() (telemetry.SoldierReading, bool) {
	if len(h.rows) == 0 {
		return telemetry.SoldierReading{}, false
	}
	return h.rows[len(h.rows)-1], true
}
