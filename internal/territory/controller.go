// Package territory owns the canonical ownership state. One Controller
// reconciles both ingestion paths for a single (server, zone) pair; the
// Registry routes bus traffic to the right controller and republishes
// net changes for the persistence sink.
package territory

import (
	"log"
	"sync"
	"time"

	"ps2map.live/internal/protocol"
)

type ownership struct {
	faction int
	since   time.Time
}

// Controller is the single authority for one zone's ownership on one
// server. Every exported call takes the mutex for its full duration, so
// individual reconciliation decisions stay consistent even when poll
// and stream deliveries interleave.
type Controller struct {
	serverID int
	zoneID   int
	log      *log.Logger

	now func() time.Time

	mu sync.Mutex
	// ownership is empty until the first snapshot; after that a
	// facility is never removed, only re-owned.
	ownership map[int]ownership
	// outfits is sparse and always a subset of ownership's keys.
	outfits map[int]int64
}

func NewController(serverID, zoneID int, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{
		serverID:  serverID,
		zoneID:    zoneID,
		log:       logger,
		now:       func() time.Time { return time.Now().UTC() },
		ownership: make(map[int]ownership),
		outfits:   make(map[int]int64),
	}
}

func (c *Controller) ServerID() int { return c.serverID }
func (c *Controller) ZoneID() int   { return c.zoneID }

// UpdateOwnership reconciles a full facility->faction snapshot against
// the current state and returns how many facilities actually changed.
//
// The first call on an empty controller adopts the snapshot wholesale,
// stamping every facility with the current time; the bootstrap counts
// as a change for every entry. Later calls only touch facilities whose
// faction differs: those get the new faction, a fresh timestamp, and
// any recorded outfit cleared (the poll path carries no outfit
// attribution). Identical entries are neither counted nor re-stamped.
func (c *Controller) UpdateOwnership(facilities map[int]int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if len(c.ownership) == 0 {
		c.log.Printf("initialising map for zone %d on server %d (%d facilities)",
			c.zoneID, c.serverID, len(facilities))
		for facility, faction := range facilities {
			c.ownership[facility] = ownership{faction: faction, since: now}
		}
		return len(c.ownership)
	}

	changed := 0
	for facility, faction := range facilities {
		cur, ok := c.ownership[facility]
		if ok && cur.faction == faction {
			continue
		}
		c.ownership[facility] = ownership{faction: faction, since: now}
		delete(c.outfits, facility)
		changed++
	}
	if changed > 0 {
		c.log.Printf("updated ownership of %d facilities in zone %d on server %d",
			changed, c.zoneID, c.serverID)
	}
	return changed
}

// ApplySingleUpdate applies one facility-control notification and
// reports whether anything changed.
//
// A facility the controller has never seen is discarded: a single
// update cannot bootstrap a zone, only a snapshot can. A notification
// naming the current owner is a resecure, not a capture, and leaves
// the stored timestamp alone.
func (c *Controller) ApplySingleUpdate(facilityID int, status protocol.FacilityStatus) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.ownership[facilityID]
	if !ok {
		c.log.Printf("ignoring update for unknown facility %d in zone %d on server %d",
			facilityID, c.zoneID, c.serverID)
		return false
	}
	if cur.faction == status.FactionID {
		c.log.Printf("facility %d resecured by faction %d in zone %d on server %d",
			facilityID, status.FactionID, c.zoneID, c.serverID)
		return false
	}

	c.ownership[facilityID] = ownership{faction: status.FactionID, since: status.LastSecured}
	if status.OutfitID != 0 {
		c.outfits[facilityID] = status.OutfitID
	} else {
		delete(c.outfits, facilityID)
	}
	return true
}

// MapStatus materialises the current state into a read-only snapshot.
func (c *Controller) MapStatus() protocol.MapStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	facilities := make(map[int]protocol.FacilityStatus, len(c.ownership))
	for facility, own := range c.ownership {
		facilities[facility] = protocol.FacilityStatus{
			FactionID:   own.faction,
			LastSecured: own.since,
			OutfitID:    c.outfits[facility],
		}
	}
	return protocol.MapStatus{
		ServerID:   c.serverID,
		ZoneID:     c.zoneID,
		Facilities: facilities,
	}
}
