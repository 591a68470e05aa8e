package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Bus topics.
const (
	TopicMapPoll   = "map_poll"   // MapPollEvent, one per (server, zone) per tick
	TopicMapUpdate = "map_update" // MapUpdateEvent, one per stream notification
	TopicMapStatus = "map_status" // MapStatus, republished net changes for the sink
)

// Event names the stream ingester recognises.
const (
	EventFacilityControl = "FacilityControl"
)

// Envelope lets us route event-stream frames by service/type before
// committing to a payload shape.
type Envelope struct {
	Service string          `json:"service,omitempty"`
	Type    string          `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(b, &e)
	return e, err
}

// Atoi parses the string-encoded integers the Census API uses for every
// numeric field.
func Atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("census int %q: %w", s, err)
	}
	return n, nil
}

func Atoi64(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("census int64 %q: %w", s, err)
	}
	return n, nil
}
