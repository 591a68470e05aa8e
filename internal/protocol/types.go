package protocol

import "time"

// ServerInfo identifies one trackable game server ("world") and the
// Census API namespace its data lives under. PC worlds use "ps2", the
// console worlds have their own namespaces.
type ServerInfo struct {
	ID        int
	Namespace string
}

// FacilityStatus is the current controller of one facility. OutfitID is
// 0 when no outfit is credited with the capture (Census uses 0 the same
// way).
type FacilityStatus struct {
	FactionID   int
	LastSecured time.Time
	OutfitID    int64
}

// MapStatus is a point-in-time view of one zone's ownership on one
// server. It is derived on demand and never stored.
type MapStatus struct {
	ServerID   int
	ZoneID     int
	Facilities map[int]FacilityStatus
}

// MapPollEvent carries one zone's full facility->faction mapping as
// returned by a REST map poll.
type MapPollEvent struct {
	ServerID  int
	ZoneID    int
	Ownership map[int]int
}

// MapUpdateEvent carries a single facility-control notification from
// the event stream.
type MapUpdateEvent struct {
	ServerID   int
	ZoneID     int
	FacilityID int
	Status     FacilityStatus
}
