// Seed populates a fresh tracker database with the static game data:
// known worlds and their Census namespaces, the public continents, and
// optionally a facility->zone region table from a YAML file.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"ps2map.live/internal/persistence/mapdb"
)

type worldSeed struct {
	ID        int
	Name      string
	Namespace string
	Tracked   bool
}

type zoneSeed struct {
	ID     int
	Name   string
	Hidden bool
}

var worlds = []worldSeed{
	{1, "Connery", "ps2", true},
	{10, "Miller", "ps2", true},
	{13, "Cobalt", "ps2", true},
	{17, "Emerald", "ps2", true},
	{19, "Jaeger", "ps2", false},
	{40, "SolTech", "ps2", true},
	{1000, "Genudine", "ps2ps4us", false},
	{2000, "Ceres", "ps2ps4eu", false},
}

var zones = []zoneSeed{
	{2, "Indar", false},
	{4, "Hossin", false},
	{6, "Amerish", false},
	{8, "Esamir", false},
	{96, "VR Training (NC)", true},
	{97, "VR Training (TR)", true},
	{98, "VR Training (VS)", true},
}

type regionFile struct {
	Regions []struct {
		FacilityID int    `yaml:"facility_id"`
		ZoneID     int    `yaml:"zone_id"`
		Name       string `yaml:"name"`
	} `yaml:"regions"`
}

func main() {
	var (
		dbPath      = flag.String("db", "./data/tracker.db", "database path")
		regionsPath = flag.String("regions", "", "optional regions.yaml with facility->zone rows")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[seed] ", log.LstdFlags)

	store, err := mapdb.Open(*dbPath, logger)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, w := range worlds {
		if err := store.UpsertWorld(ctx, w.ID, w.Name, w.Namespace, w.Tracked); err != nil {
			logger.Fatalf("seed world %d: %v", w.ID, err)
		}
	}
	for _, z := range zones {
		if err := store.UpsertZone(ctx, z.ID, z.Name, z.Hidden); err != nil {
			logger.Fatalf("seed zone %d: %v", z.ID, err)
		}
	}
	logger.Printf("seeded %d worlds and %d zones", len(worlds), len(zones))

	if *regionsPath != "" {
		b, err := os.ReadFile(*regionsPath)
		if err != nil {
			logger.Fatalf("read regions: %v", err)
		}
		var rf regionFile
		if err := yaml.Unmarshal(b, &rf); err != nil {
			logger.Fatalf("parse regions: %v", err)
		}
		for _, r := range rf.Regions {
			if err := store.UpsertRegion(ctx, r.FacilityID, r.ZoneID, r.Name); err != nil {
				logger.Fatalf("seed region %d: %v", r.FacilityID, err)
			}
		}
		logger.Printf("seeded %d map regions", len(rf.Regions))
	}
}
