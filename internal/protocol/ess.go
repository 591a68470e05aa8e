package protocol

import (
	"fmt"
	"time"
)

// Envelope service/type values seen on the event stream socket.
const (
	ServiceEvent = "event"
	ServicePush  = "push"

	TypeServiceMessage = "serviceMessage"
	TypeHeartbeat      = "heartbeat"
)

// SubscribeFrame is the client -> server subscription request.
type SubscribeFrame struct {
	Service    string   `json:"service"`
	Action     string   `json:"action"`
	Worlds     []string `json:"worlds"`
	EventNames []string `json:"eventNames"`
}

func NewFacilityControlSubscription(worldID int) SubscribeFrame {
	return SubscribeFrame{
		Service:    ServiceEvent,
		Action:     "subscribe",
		Worlds:     []string{fmt.Sprintf("%d", worldID)},
		EventNames: []string{EventFacilityControl},
	}
}

// EventPayload is the inner payload of a serviceMessage frame. Only the
// fields shared by the facility events we care about are declared.
type EventPayload struct {
	EventName    string `json:"event_name"`
	Timestamp    string `json:"timestamp"`
	WorldID      string `json:"world_id"`
	ZoneID       string `json:"zone_id"`
	FacilityID   string `json:"facility_id"`
	NewFactionID string `json:"new_faction_id"`
	OldFactionID string `json:"old_faction_id"`
	OutfitID     string `json:"outfit_id"`
	DurationHeld string `json:"duration_held"`
}

// FacilityControl is the decoded form of a FacilityControl payload.
type FacilityControl struct {
	WorldID    int
	ZoneID     int
	FacilityID int
	NewFaction int
	OldFaction int
	OutfitID   int64
	Timestamp  time.Time
}

// Decode converts the string-typed wire payload into a FacilityControl.
// OutfitID is optional on the wire; absent or "0" both mean none.
func (p EventPayload) Decode() (FacilityControl, error) {
	var (
		fc  FacilityControl
		err error
	)
	if fc.WorldID, err = Atoi(p.WorldID); err != nil {
		return fc, fmt.Errorf("world_id: %w", err)
	}
	if fc.ZoneID, err = Atoi(p.ZoneID); err != nil {
		return fc, fmt.Errorf("zone_id: %w", err)
	}
	if fc.FacilityID, err = Atoi(p.FacilityID); err != nil {
		return fc, fmt.Errorf("facility_id: %w", err)
	}
	if fc.NewFaction, err = Atoi(p.NewFactionID); err != nil {
		return fc, fmt.Errorf("new_faction_id: %w", err)
	}
	if p.OldFactionID != "" {
		if fc.OldFaction, err = Atoi(p.OldFactionID); err != nil {
			return fc, fmt.Errorf("old_faction_id: %w", err)
		}
	}
	if p.OutfitID != "" {
		if fc.OutfitID, err = Atoi64(p.OutfitID); err != nil {
			return fc, fmt.Errorf("outfit_id: %w", err)
		}
	}
	secs, err := Atoi64(p.Timestamp)
	if err != nil {
		return fc, fmt.Errorf("timestamp: %w", err)
	}
	fc.Timestamp = time.Unix(secs, 0).UTC()
	return fc, nil
}

// Status converts the event into the facility's new status.
func (fc FacilityControl) Status() FacilityStatus {
	return FacilityStatus{
		FactionID:   fc.NewFaction,
		LastSecured: fc.Timestamp,
		OutfitID:    fc.OutfitID,
	}
}
