package printer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// Reading is one heat zone's temperature in degrees Celsius.
type Reading struct {
	Current float64 `json:"current"`
	Target  float64 `json:"target"`
}

// UnmarshalJSON accepts either {"current": n, "target": n} or a bare number,
// which older daemons send for the current temperature alone.
func (r *Reading) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("reading is null")
	}
	if data[0] != '{' {
		var current float64
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("reading is not a number: %w", err)
		}
		*r = Reading{Current: current}
		return nil
	}
	var obj struct {
		Current *float64 `json:"current"`
		Target  *float64 `json:"target"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("reading object: %w", err)
	}
	if obj.Current == nil {
		return fmt.Errorf("reading has no current temperature")
	}
	*r = Reading{Current: *obj.Current}
	if obj.Target != nil {
		r.Target = *obj.Target
	}
	return nil
}

// Zones maps a heat zone name (e.g. "0" for the first toolhead) to its reading.
type Zones map[string]Reading

// Clone returns an independent copy. A nil Zones clones to an empty map.
func (z Zones) Clone() Zones {
	out := make(Zones, len(z))
	for name, r := range z {
		out[name] = r
	}
	return out
}

// MergeZones writes every zone in update into existing and returns the result.
// Zones missing from update keep their previous reading. existing may be nil.
func MergeZones(existing, update Zones) Zones {
	if len(update) == 0 {
		return existing
	}
	if existing == nil {
		existing = make(Zones, len(update))
	}
	for name, r := range update {
		existing[name] = r
	}
	return existing
}

// Temperature is a point-in-time copy of a printer's telemetry.
type Temperature struct {
	Tools           Zones `json:"tools"`
	HeatedPlatforms Zones `json:"heated_platforms"`
}

// TemperatureUpdate is the optional temperature sub-document of a state
// document. A nil map means the key was absent.
type TemperatureUpdate struct {
	Tools           Zones
	HeatedPlatforms Zones
}

// Telemetry holds the live zone readings of one printer. It is guarded by its
// own lock so merges never contend with required-field updates.
type Telemetry struct {
	mu              sync.RWMutex
	tools           Zones
	heatedPlatforms Zones
}

// NewTelemetry returns telemetry with no observed zones.
func NewTelemetry() *Telemetry {
	return &Telemetry{
		tools:           make(Zones),
		heatedPlatforms: make(Zones),
	}
}

// Merge applies u sparsely to both zone groups.
func (t *Telemetry) Merge(u TemperatureUpdate) {
	if len(u.Tools) == 0 && len(u.HeatedPlatforms) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tools = MergeZones(t.tools, u.Tools)
	t.heatedPlatforms = MergeZones(t.heatedPlatforms, u.HeatedPlatforms)
}

// Snapshot returns a copy safe to retain without locking.
func (t *Telemetry) Snapshot() Temperature {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Temperature{
		Tools:           t.tools.Clone(),
		HeatedPlatforms: t.heatedPlatforms.Clone(),
	}
}

// Tool returns the reading for a toolhead zone.
func (t *Telemetry) Tool(name string) (Reading, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.tools[name]
	return r, ok
}

// HeatedPlatform returns the reading for a platform zone.
func (t *Telemetry) HeatedPlatform(name string) (Reading, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.heatedPlatforms[name]
	return r, ok
}
