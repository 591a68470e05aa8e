package protocol

import "fmt"

// Wire structs for the Census REST "map" collection. Every numeric
// value arrives as a JSON string; the casing below is the API's, not
// ours.
type MapResponse struct {
	MapList  []MapListEntry `json:"map_list"`
	Returned int            `json:"returned"`
}

type MapListEntry struct {
	ZoneID  string     `json:"ZoneId"`
	Regions MapRegions `json:"Regions"`
}

type MapRegions struct {
	IsList string   `json:"IsList"`
	Row    []MapRow `json:"Row"`
}

type MapRow struct {
	RowData MapRowData `json:"RowData"`
}

type MapRowData struct {
	RegionID  string `json:"RegionId"`
	FactionID string `json:"FactionId"`
}

// Ownership flattens one map_list entry into facility -> faction.
func (e MapListEntry) Ownership() (zoneID int, ownership map[int]int, err error) {
	zoneID, err = Atoi(e.ZoneID)
	if err != nil {
		return 0, nil, fmt.Errorf("zone id: %w", err)
	}
	ownership = make(map[int]int, len(e.Regions.Row))
	for _, row := range e.Regions.Row {
		region, err := Atoi(row.RowData.RegionID)
		if err != nil {
			return 0, nil, fmt.Errorf("zone %d region id: %w", zoneID, err)
		}
		faction, err := Atoi(row.RowData.FactionID)
		if err != nil {
			return 0, nil, fmt.Errorf("zone %d faction id: %w", zoneID, err)
		}
		ownership[region] = faction
	}
	return zoneID, ownership, nil
}
