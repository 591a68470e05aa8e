package territory

import (
	"fmt"
	"log"
	"sync"

	"ps2map.live/internal/bus"
	"ps2map.live/internal/protocol"
)

type key struct {
	serverID int
	zoneID   int
}

// Registry owns the controller collection and bridges ingester output
// to it. Controllers are created lazily on the first message for their
// (server, zone) key and are never evicted; cardinality is bounded by
// configured servers x zones.
type Registry struct {
	bus *bus.Bus
	log *log.Logger

	mu          sync.Mutex
	controllers map[key]*Controller
}

func NewRegistry(b *bus.Bus, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		bus:         b,
		log:         logger,
		controllers: make(map[key]*Controller),
	}
}

// Attach subscribes the registry's handlers to the ingestion topics.
func (r *Registry) Attach() {
	r.bus.Subscribe(protocol.TopicMapPoll, r.HandleMapPoll)
	r.bus.Subscribe(protocol.TopicMapUpdate, r.HandleMapUpdate)
}

// HandleMapPoll reconciles a zone snapshot and, if anything changed,
// republishes the zone's full status for the persistence sink.
func (r *Registry) HandleMapPoll(payload any) {
	ev, ok := payload.(protocol.MapPollEvent)
	if !ok {
		r.log.Printf("unexpected %s payload %T", protocol.TopicMapPoll, payload)
		return
	}
	ctrl := r.controller(ev.ServerID, ev.ZoneID)
	if changed := ctrl.UpdateOwnership(ev.Ownership); changed > 0 {
		r.log.Printf("updated %d facilities for zone %d on server %d",
			changed, ev.ZoneID, ev.ServerID)
		r.bus.Emit(protocol.TopicMapStatus, ctrl.MapStatus())
	}
}

// HandleMapUpdate applies a single facility update and, if it was a
// genuine capture, republishes the zone's full status.
func (r *Registry) HandleMapUpdate(payload any) {
	ev, ok := payload.(protocol.MapUpdateEvent)
	if !ok {
		r.log.Printf("unexpected %s payload %T", protocol.TopicMapUpdate, payload)
		return
	}
	ctrl := r.controller(ev.ServerID, ev.ZoneID)
	if ctrl.ApplySingleUpdate(ev.FacilityID, ev.Status) {
		r.bus.Emit(protocol.TopicMapStatus, ctrl.MapStatus())
	}
}

func (r *Registry) controller(serverID, zoneID int) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{serverID: serverID, zoneID: zoneID}
	ctrl, ok := r.controllers[k]
	if !ok {
		prefix := fmt.Sprintf("[territory w%d/z%d] ", serverID, zoneID)
		ctrl = NewController(serverID, zoneID,
			log.New(r.log.Writer(), prefix, r.log.Flags()))
		r.controllers[k] = ctrl
	}
	return ctrl
}
