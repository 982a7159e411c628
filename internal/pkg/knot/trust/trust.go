// Package trust holds the per-connection authenticated session state
// ("trust") the KNOT dispatcher needs between a node's register/auth and
// its eventual unregister or disconnect.
package trust

import (
	"fmt"
	"sync"
)

// SchemaEntry is one sensor declaration accepted by, or staged toward,
// the cloud.
type SchemaEntry struct {
	SensorID  uint8
	TypeID    uint16
	ValueType uint8
	Unit      uint8
	Name      string
}

// ConfigEntry is one rule pushed by the cloud controlling when a node
// emits data for a given sensor.
type ConfigEntry struct {
	SensorID    uint8
	EventFlags  uint8
	TimeSec     uint16
	LowerLimit  Limit
	UpperLimit  Limit
}

// Limit is a floating-point-like value split into integer and decimal
// parts, matching the wire representation used by config entries.
type Limit struct {
	IntegerPart int32
	DecimalPart uint32
}

// Less reports whether l sorts strictly before other under the
// protocol's lexicographic (integer, decimal) order.
func (l Limit) Less(other Limit) bool {
	if l.IntegerPart != other.IntegerPart {
		return l.IntegerPart < other.IntegerPart
	}
	return l.DecimalPart < other.DecimalPart
}

// Trust is one authenticated connection's session record.
type Trust struct {
	PeerPID  int
	DeviceID uint64
	UUID     string
	Token    string
	Rollback bool

	Schema        []SchemaEntry
	SchemaStaging []SchemaEntry
	Config        []ConfigEntry

	refs int
}

// StageSchema appends entry to SchemaStaging unless a staged entry with
// the same SensorID already exists (first-write-wins, duplicates
// ignored).
func (t *Trust) StageSchema(entry SchemaEntry) {
	for _, existing := range t.SchemaStaging {
		if existing.SensorID == entry.SensorID {
			return
		}
	}
	t.SchemaStaging = append(t.SchemaStaging, entry)
}

// FindSchema performs the linear lookup required by the schema
// validator: committed schema order is never assumed significant.
func (t *Trust) FindSchema(sensorID uint8) (SchemaEntry, bool) {
	for _, e := range t.Schema {
		if e.SensorID == sensorID {
			return e, true
		}
	}
	return SchemaEntry{}, false
}

// RemoveConfig drops any config entry for sensorID, acknowledging that
// the node has applied it.
func (t *Trust) RemoveConfig(sensorID uint8) {
	out := t.Config[:0]
	for _, c := range t.Config {
		if c.SensorID != sensorID {
			out = append(out, c)
		}
	}
	t.Config = out
}

var ErrAlreadyExists = fmt.Errorf("trust: handle already present")

// Store maps opaque connection handles to refcounted trust entries. It
// is the only structure the dispatcher's handlers share across the
// suspension points a cloud call introduces (see package dispatcher).
type Store struct {
	mu      sync.Mutex
	entries map[uint64]*Trust
}

// NewStore returns an empty trust store.
func NewStore() *Store {
	return &Store{entries: make(map[uint64]*Trust)}
}

// Insert adds t under handle, initializing its refcount to 1. It fails
// if handle is already present.
func (s *Store) Insert(handle uint64, t *Trust) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[handle]; exists {
		return ErrAlreadyExists
	}
	t.refs = 1
	s.entries[handle] = t
	return nil
}

// Lookup returns the trust bound to handle, incrementing its refcount,
// or false if none exists. Callers must call Release when done.
func (s *Store) Lookup(handle uint64) (*Trust, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.entries[handle]
	if !ok {
		return nil, false
	}
	t.refs++
	return t, true
}

// Release decrements t's refcount. It does not free memory itself —
// Go's garbage collector reclaims a trust once nothing, including the
// store, references it; Release exists to mirror the protocol's
// documented borrow discipline. A Release past zero leaves the count at
// zero and is not reported.
func (s *Store) Release(t *Trust) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.refs > 0 {
		t.refs--
	}
}

// Remove unbinds handle and returns its trust, if any, for the caller to
// Release once any in-flight borrows are done.
func (s *Store) Remove(handle uint64) (*Trust, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.entries[handle]
	if !ok {
		return nil, false
	}
	delete(s.entries, handle)
	return t, true
}

// DestroyAll tears the store down, calling f once per entry (which must
// release its borrow) and clearing the map. Used on transport shutdown.
func (s *Store) DestroyAll(f func(handle uint64, t *Trust)) {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[uint64]*Trust)
	s.mu.Unlock()

	for handle, t := range entries {
		f(handle, t)
	}
}

// Handles returns every connection handle currently holding a trust, for
// ambient introspection (the rollback sweeper; the admin API's trust list
// uses Summaries). It never exposes uuid/token.
func (s *Store) Handles() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]uint64, 0, len(s.entries))
	for h := range s.entries {
		out = append(out, h)
	}
	return out
}

// Summary is a read-only, per-handle view of a trust safe to hand to an
// external caller: it never carries uuid/token.
type Summary struct {
	Handle      uint64
	DeviceID    uint64
	Rollback    bool
	SchemaCount int
	ConfigCount int
}

// Summaries returns a Summary for every connection handle currently
// holding a trust, for bulk ambient introspection (the admin API's
// trust list). Like Handles, it never exposes uuid/token.
func (s *Store) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Summary, 0, len(s.entries))
	for h, t := range s.entries {
		out = append(out, Summary{
			Handle:      h,
			DeviceID:    t.DeviceID,
			Rollback:    t.Rollback,
			SchemaCount: len(t.Schema),
			ConfigCount: len(t.Config),
		})
	}
	return out
}
