// Package census talks to the game's Census API: a REST client for
// full map snapshots, a Poller that fetches them on an interval, and a
// Streamer that subscribes to the push websocket for live facility
// updates.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ps2map.live/internal/protocol"
)

// DefaultServiceID is the anonymous rate-limited credential; register
// one at census.daybreakgames.com for production use.
const DefaultServiceID = "s:example"

// Client fetches map state from the Census REST API.
type Client struct {
	http      *http.Client
	base      string
	serviceID string
}

func NewClient(baseURL, serviceID string) *Client {
	if serviceID == "" {
		serviceID = DefaultServiceID
	}
	return &Client{
		http:      &http.Client{},
		base:      strings.TrimRight(baseURL, "/"),
		serviceID: serviceID,
	}
}

// MapState fetches the ownership snapshot for every given zone of one
// world. The ps2/map collection only supports a single world per
// request, and its response does not echo the world ID back.
func (c *Client) MapState(ctx context.Context, namespace string, worldID int, zoneIDs []int) ([]protocol.MapListEntry, error) {
	zones := make([]string, len(zoneIDs))
	for i, z := range zoneIDs {
		zones[i] = strconv.Itoa(z)
	}
	url := fmt.Sprintf("%s/%s/get/%s/map?world_id=%d&zone_ids=%s",
		c.base, c.serviceID, namespace, worldID, strings.Join(zones, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("map state for world %d: %w", worldID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("map state for world %d: status %d", worldID, resp.StatusCode)
	}

	var decoded protocol.MapResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("map state for world %d: %w", worldID, err)
	}
	return decoded.MapList, nil
}

// zoneSet is the mutable tracked-zone collection shared by both
// ingester types. Mutation and snapshot never race with iteration.
type zoneSet struct {
	zones map[int]struct{}
}

func newZoneSet(zoneIDs []int) zoneSet {
	s := zoneSet{zones: make(map[int]struct{}, len(zoneIDs))}
	for _, z := range zoneIDs {
		s.zones[z] = struct{}{}
	}
	return s
}

func (s zoneSet) add(zoneID int) bool {
	if _, ok := s.zones[zoneID]; ok {
		return false
	}
	s.zones[zoneID] = struct{}{}
	return true
}

func (s zoneSet) remove(zoneID int) bool {
	if _, ok := s.zones[zoneID]; !ok {
		return false
	}
	delete(s.zones, zoneID)
	return true
}

func (s zoneSet) has(zoneID int) bool {
	_, ok := s.zones[zoneID]
	return ok
}

func (s zoneSet) snapshot() []int {
	out := make([]int, 0, len(s.zones))
	for z := range s.zones {
		out = append(out, z)
	}
	return out
}

// retryDelay sleeps for d unless ctx is cancelled first.
func retryDelay(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
