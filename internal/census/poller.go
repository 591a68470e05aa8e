package census

import (
	"context"
	"log"
	"sync"
	"time"

	"ps2map.live/internal/bus"
	"ps2map.live/internal/protocol"
)

// Poller periodically fetches full ownership snapshots for every
// tracked zone of one world and publishes them on the map_poll topic.
//
// It exists to catch changes the event stream dropped, and doubles as
// the only detection path for continent locks and unlocks: the stream
// has not reliably delivered ContinentUnlock events for years.
type Poller struct {
	client *Client
	bus    *bus.Bus
	log    *log.Logger

	server   protocol.ServerInfo
	interval time.Duration
	timeout  time.Duration

	mu    sync.Mutex
	zones zoneSet
}

func NewPoller(client *Client, b *bus.Bus, server protocol.ServerInfo,
	interval, timeout time.Duration, zoneIDs []int, logger *log.Logger) *Poller {
	if logger == nil {
		logger = log.Default()
	}
	return &Poller{
		client:   client,
		bus:      b,
		log:      logger,
		server:   server,
		interval: interval,
		timeout:  timeout,
		zones:    newZoneSet(zoneIDs),
	}
}

// AddZone starts tracking a zone. Adding a zone already tracked is a
// no-op.
func (p *Poller) AddZone(zoneID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.zones.add(zoneID) {
		p.log.Printf("zone %d added", zoneID)
	}
}

// RemoveZone stops tracking a zone. Removing an untracked zone is a
// no-op.
func (p *Poller) RemoveZone(zoneID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.zones.remove(zoneID) {
		p.log.Printf("zone %d removed", zoneID)
	}
}

// Zones returns a snapshot of the tracked zone set.
func (p *Poller) Zones() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zones.snapshot()
}

// Run polls until ctx is cancelled. Every tick spawns an independent
// fetch bounded by the per-tick timeout; a fetch that fails or runs
// long is logged and abandoned, and the next tick fires on schedule
// regardless. Overlapping fetches are allowed: the tracker prefers
// redundant work over a stalled pipeline, and reconciliation tolerates
// duplicates.
func (p *Poller) Run(ctx context.Context) {
	p.log.Printf("polling every %s", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		go p.fetchTick(ctx)
		select {
		case <-ctx.Done():
			p.log.Printf("polling stopped: %v", ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) fetchTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Printf("poll tick panic: %v", r)
		}
	}()

	// Snapshot the zone set up front so runtime AddZone/RemoveZone
	// calls cannot race the fetch.
	zoneIDs := p.Zones()
	if len(zoneIDs) == 0 {
		return
	}

	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	entries, err := p.client.MapState(tctx, p.server.Namespace, p.server.ID, zoneIDs)
	if err != nil {
		p.log.Printf("failed to fetch map state: %v", err)
		return
	}

	for _, entry := range entries {
		zoneID, ownership, err := entry.Ownership()
		if err != nil {
			p.log.Printf("skipping malformed zone payload: %v", err)
			continue
		}
		p.bus.Emit(protocol.TopicMapPoll, protocol.MapPollEvent{
			ServerID:  p.server.ID,
			ZoneID:    zoneID,
			Ownership: ownership,
		})
	}
}
