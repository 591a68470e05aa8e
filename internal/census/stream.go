package census

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ps2map.live/internal/bus"
	"ps2map.live/internal/protocol"
)

// PrimaryNamespace is the only namespace with a working event stream;
// console namespaces may still attempt to connect in degraded mode.
const PrimaryNamespace = "ps2"

// Streamer keeps a live subscription to facility-control notifications
// for one world and publishes them individually on the map_update
// topic. It cycles disconnected -> connecting -> connected forever,
// waiting a fixed delay after every disconnect; only cancellation ends
// the loop.
type Streamer struct {
	bus *bus.Bus
	log *log.Logger

	server         protocol.ServerInfo
	pushURL        string
	serviceID      string
	reconnectDelay time.Duration
	dialer         *websocket.Dialer

	mu    sync.Mutex
	zones zoneSet
}

func NewStreamer(b *bus.Bus, server protocol.ServerInfo, pushURL, serviceID string,
	reconnectDelay time.Duration, zoneIDs []int, logger *log.Logger) *Streamer {
	if logger == nil {
		logger = log.Default()
	}
	if serviceID == "" {
		serviceID = DefaultServiceID
	}
	return &Streamer{
		bus:            b,
		log:            logger,
		server:         server,
		pushURL:        pushURL,
		serviceID:      serviceID,
		reconnectDelay: reconnectDelay,
		dialer:         websocket.DefaultDialer,
		zones:          newZoneSet(zoneIDs),
	}
}

// AddZone starts tracking a zone. Adding a zone already tracked is a
// no-op.
func (s *Streamer) AddZone(zoneID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zones.add(zoneID) {
		s.log.Printf("zone %d added", zoneID)
	}
}

// RemoveZone stops tracking a zone. Removing an untracked zone is a
// no-op.
func (s *Streamer) RemoveZone(zoneID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zones.remove(zoneID) {
		s.log.Printf("zone %d removed", zoneID)
	}
}

func (s *Streamer) tracked(zoneID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zones.has(zoneID)
}

// Run maintains the subscription until ctx is cancelled.
func (s *Streamer) Run(ctx context.Context) {
	if s.server.Namespace != PrimaryNamespace {
		s.log.Printf("namespace %q has no reliable event stream; connecting best-effort",
			s.server.Namespace)
	}

	for {
		if ctx.Err() != nil {
			s.log.Printf("stream stopped: %v", ctx.Err())
			return
		}
		s.log.Printf("connecting to event stream")
		err := s.connect(ctx)
		if ctx.Err() != nil {
			s.log.Printf("stream stopped: %v", ctx.Err())
			return
		}
		s.log.Printf("disconnected (%v), reconnecting in %s", err, s.reconnectDelay)
		retryDelay(ctx, s.reconnectDelay)
	}
}

// connect dials, subscribes, and reads until the connection drops.
func (s *Streamer) connect(ctx context.Context) error {
	url := fmt.Sprintf("%s?environment=%s&service-id=%s",
		s.pushURL, s.server.Namespace, s.serviceID)
	conn, resp, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	if err := conn.WriteJSON(protocol.NewFacilityControlSubscription(s.server.ID)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Printf("subscribed to %s events", protocol.EventFacilityControl)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(msg)
	}
}

// handleMessage routes one websocket frame. Heartbeats, subscription
// echoes and help text are dropped without comment; only event service
// messages carry payloads we act on.
func (s *Streamer) handleMessage(msg []byte) {
	env, err := protocol.DecodeEnvelope(msg)
	if err != nil {
		s.log.Printf("skipping malformed frame: %v", err)
		return
	}
	if env.Service != protocol.ServiceEvent || env.Type != protocol.TypeServiceMessage {
		return
	}

	var payload protocol.EventPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		s.log.Printf("skipping malformed event payload: %v", err)
		return
	}
	if payload.EventName != protocol.EventFacilityControl {
		s.log.Printf("ignoring unhandled event type %s", payload.EventName)
		return
	}

	fc, err := payload.Decode()
	if err != nil {
		s.log.Printf("skipping malformed %s event: %v", payload.EventName, err)
		return
	}
	if fc.WorldID != s.server.ID {
		s.log.Printf("received untracked event for world %d", fc.WorldID)
		return
	}
	if !s.tracked(fc.ZoneID) {
		// Untracked zones are expected, not anomalous.
		s.log.Printf("ignoring %s event in untracked zone %d", payload.EventName, fc.ZoneID)
		return
	}

	s.bus.Emit(protocol.TopicMapUpdate, protocol.MapUpdateEvent{
		ServerID:   fc.WorldID,
		ZoneID:     fc.ZoneID,
		FacilityID: fc.FacilityID,
		Status:     fc.Status(),
	})
}
