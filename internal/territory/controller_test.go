package territory

import (
	"io"
	"log"
	"testing"
	"time"

	"ps2map.live/internal/protocol"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	return NewController(13, 2, testLogger())
}

func TestUpdateOwnership_Bootstrap(t *testing.T) {
	c := newTestController(t)

	changed := c.UpdateOwnership(map[int]int{1: 1, 2: 2})
	if changed != 2 {
		t.Fatalf("changed = %d, want 2", changed)
	}

	status := c.MapStatus()
	if status.ServerID != 13 || status.ZoneID != 2 {
		t.Fatalf("status key = %d/%d", status.ServerID, status.ZoneID)
	}
	if len(status.Facilities) != 2 {
		t.Fatalf("facilities = %d, want 2", len(status.Facilities))
	}
	for id, fs := range status.Facilities {
		if fs.LastSecured.IsZero() {
			t.Fatalf("facility %d has zero timestamp", id)
		}
	}
	if status.Facilities[1].FactionID != 1 || status.Facilities[2].FactionID != 2 {
		t.Fatalf("factions = %+v", status.Facilities)
	}
}

func TestUpdateOwnership_Idempotent(t *testing.T) {
	c := newTestController(t)
	mapping := map[int]int{1: 1, 2: 2, 3: 3}

	if changed := c.UpdateOwnership(mapping); changed != 3 {
		t.Fatalf("bootstrap changed = %d, want 3", changed)
	}
	if changed := c.UpdateOwnership(mapping); changed != 0 {
		t.Fatalf("second call changed = %d, want 0", changed)
	}
}

func TestUpdateOwnership_PartialChange(t *testing.T) {
	c := newTestController(t)
	c.UpdateOwnership(map[int]int{1: 1, 2: 2, 3: 3})

	before := c.MapStatus()

	changed := c.UpdateOwnership(map[int]int{1: 1, 2: 1, 3: 3})
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}

	after := c.MapStatus()
	if after.Facilities[2].FactionID != 1 {
		t.Fatalf("facility 2 faction = %d, want 1", after.Facilities[2].FactionID)
	}
	// Unchanged facilities keep their original stamp.
	if !after.Facilities[1].LastSecured.Equal(before.Facilities[1].LastSecured) {
		t.Fatal("unchanged facility was re-stamped")
	}
}

func TestUpdateOwnership_ClearsOutfit(t *testing.T) {
	c := newTestController(t)
	c.UpdateOwnership(map[int]int{5: 3})

	captured := c.ApplySingleUpdate(5, protocol.FacilityStatus{
		FactionID:   2,
		LastSecured: time.Now().UTC(),
		OutfitID:    37509488620604883,
	})
	if !captured {
		t.Fatal("capture not applied")
	}
	if got := c.MapStatus().Facilities[5].OutfitID; got != 37509488620604883 {
		t.Fatalf("outfit = %d", got)
	}

	// A snapshot flip carries no outfit attribution and must clear it.
	if changed := c.UpdateOwnership(map[int]int{5: 1}); changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}
	if got := c.MapStatus().Facilities[5].OutfitID; got != 0 {
		t.Fatalf("outfit after faction change = %d, want 0", got)
	}
}

func TestApplySingleUpdate_UnknownFacility(t *testing.T) {
	c := newTestController(t)
	c.UpdateOwnership(map[int]int{1: 1})

	changed := c.ApplySingleUpdate(999, protocol.FacilityStatus{
		FactionID:   2,
		LastSecured: time.Now().UTC(),
	})
	if changed {
		t.Fatal("unknown facility reported as changed")
	}
	if len(c.MapStatus().Facilities) != 1 {
		t.Fatal("unknown facility was added to the map")
	}
}

func TestApplySingleUpdate_UnknownFacility_EmptyController(t *testing.T) {
	c := newTestController(t)

	// A single update can never bootstrap a zone.
	changed := c.ApplySingleUpdate(1, protocol.FacilityStatus{
		FactionID:   2,
		LastSecured: time.Now().UTC(),
	})
	if changed {
		t.Fatal("single update bootstrapped an empty controller")
	}
	if len(c.MapStatus().Facilities) != 0 {
		t.Fatal("map not empty after discarded update")
	}
}

func TestApplySingleUpdate_ResecureSuppressed(t *testing.T) {
	c := newTestController(t)
	c.UpdateOwnership(map[int]int{5: 3}) // TR holds facility 5

	before := c.MapStatus().Facilities[5]

	changed := c.ApplySingleUpdate(5, protocol.FacilityStatus{
		FactionID:   3,
		LastSecured: before.LastSecured.Add(time.Hour),
		OutfitID:    123,
	})
	if changed {
		t.Fatal("resecure reported as change")
	}
	after := c.MapStatus().Facilities[5]
	if !after.LastSecured.Equal(before.LastSecured) {
		t.Fatal("resecure altered the stored timestamp")
	}
	if after.OutfitID != 0 {
		t.Fatal("resecure recorded an outfit")
	}
}

func TestApplySingleUpdate_Capture(t *testing.T) {
	c := newTestController(t)
	c.UpdateOwnership(map[int]int{5: 3})

	when := time.Now().UTC().Add(time.Minute).Truncate(time.Second)
	changed := c.ApplySingleUpdate(5, protocol.FacilityStatus{
		FactionID:   2,
		LastSecured: when,
		OutfitID:    42,
	})
	if !changed {
		t.Fatal("capture not reported as change")
	}
	got := c.MapStatus().Facilities[5]
	if got.FactionID != 2 || got.OutfitID != 42 || !got.LastSecured.Equal(when) {
		t.Fatalf("facility 5 = %+v", got)
	}
}

func TestMapStatus_IsSnapshot(t *testing.T) {
	c := newTestController(t)
	c.UpdateOwnership(map[int]int{1: 1})

	status := c.MapStatus()
	status.Facilities[1] = protocol.FacilityStatus{FactionID: 99}

	if got := c.MapStatus().Facilities[1].FactionID; got != 1 {
		t.Fatalf("mutating a snapshot leaked into the controller: faction = %d", got)
	}
}
