package printer

import (
	"encoding/json"
	"reflect"
	"sync"
	"testing"
)

func TestMergeZonesKeepsAbsentZones(t *testing.T) {
	existing := Zones{"0": {Current: 100, Target: 200}, "1": {Current: 50}}
	got := MergeZones(existing, Zones{"1": {Current: 60, Target: 220}, "2": {Current: 20}})

	want := Zones{
		"0": {Current: 100, Target: 200},
		"1": {Current: 60, Target: 220},
		"2": {Current: 20},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merge: got %v want %v", got, want)
	}
}

func TestMergeZonesEmptyUpdate(t *testing.T) {
	existing := Zones{"0": {Current: 1}}
	if got := MergeZones(existing, nil); !reflect.DeepEqual(got, existing) {
		t.Fatalf("nil update changed zones: %v", got)
	}
	if got := MergeZones(existing, Zones{}); !reflect.DeepEqual(got, existing) {
		t.Fatalf("empty update changed zones: %v", got)
	}
	if got := MergeZones(nil, Zones{"a": {Current: 3}}); got["a"].Current != 3 {
		t.Fatalf("merge into nil: %v", got)
	}
}

func TestReadingUnmarshal(t *testing.T) {
	var r Reading
	if err := json.Unmarshal([]byte(`{"current": 210.5, "target": 220}`), &r); err != nil {
		t.Fatalf("object: %v", err)
	}
	if r != (Reading{Current: 210.5, Target: 220}) {
		t.Fatalf("object: got %+v", r)
	}
	if err := json.Unmarshal([]byte(`37`), &r); err != nil {
		t.Fatalf("bare number: %v", err)
	}
	if r != (Reading{Current: 37}) {
		t.Fatalf("bare number: got %+v", r)
	}
	for _, bad := range []string{`"hot"`, `null`, `{"target": 10}`, `true`} {
		if err := json.Unmarshal([]byte(bad), &r); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}

func TestTelemetrySnapshotIsCopy(t *testing.T) {
	tel := NewTelemetry()
	tel.Merge(TemperatureUpdate{Tools: Zones{"0": {Current: 10}}})

	snap := tel.Snapshot()
	snap.Tools["0"] = Reading{Current: 999}
	snap.Tools["9"] = Reading{Current: 1}

	if r, _ := tel.Tool("0"); r.Current != 10 {
		t.Fatalf("snapshot mutation leaked into telemetry: %+v", r)
	}
	if _, ok := tel.Tool("9"); ok {
		t.Fatalf("snapshot insert leaked into telemetry")
	}
}

func TestTelemetryGroupsAreIndependent(t *testing.T) {
	tel := NewTelemetry()
	tel.Merge(TemperatureUpdate{Tools: Zones{"0": {Current: 10}}})
	tel.Merge(TemperatureUpdate{HeatedPlatforms: Zones{"0": {Current: 60}}})

	if r, ok := tel.Tool("0"); !ok || r.Current != 10 {
		t.Fatalf("tool zone lost: %+v %v", r, ok)
	}
	if r, ok := tel.HeatedPlatform("0"); !ok || r.Current != 60 {
		t.Fatalf("platform zone missing: %+v %v", r, ok)
	}
}

func TestTelemetryConcurrentMerge(t *testing.T) {
	tel := NewTelemetry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			zone := string(rune('a' + i))
			for n := 0; n < 100; n++ {
				tel.Merge(TemperatureUpdate{Tools: Zones{zone: {Current: float64(n)}}})
				_ = tel.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	snap := tel.Snapshot()
	if len(snap.Tools) != 8 {
		t.Fatalf("expected 8 zones, got %d", len(snap.Tools))
	}
	for zone, r := range snap.Tools {
		if r.Current != 99 {
			t.Fatalf("zone %s: expected last value 99, got %v", zone, r.Current)
		}
	}
}
