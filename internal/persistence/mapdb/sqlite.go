// Package mapdb is the SQLite persistence layer: the ownership sink
// plus the static lookup tables (tracked worlds, zones, facility ->
// region mapping). No SQL lives outside this package.
package mapdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"ps2map.live/internal/bus"
	"ps2map.live/internal/protocol"
)

// Store owns the database handle and a single writer goroutine.
// Ownership writes are enqueued on a buffered channel and applied
// asynchronously; static lookups read directly (read-mostly, cached
// where it matters).
type Store struct {
	db  *sql.DB
	log *log.Logger

	ch   chan protocol.MapStatus
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64

	regionMu    sync.Mutex
	regionZones map[int]int
}

func Open(path string, logger *log.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if logger == nil {
		logger = log.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:  db,
		log: logger,
		// A full continent snapshot is under a hundred rows; the
		// buffer covers bursts from every tracked (world, zone) pair
		// changing at once.
		ch:          make(chan protocol.MapStatus, 4096),
		regionZones: make(map[int]int),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the upsert-heavy workload; NORMAL is a fair
	// durability/perf tradeoff for state that the next poll rebuilds
	// anyway.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS worlds (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			namespace TEXT NOT NULL,
			tracking_enabled INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS zones (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			hidden INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS map_regions (
			facility_id INTEGER PRIMARY KEY,
			zone_id INTEGER NOT NULL,
			name TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS base_ownership (
			base_id INTEGER NOT NULL,
			server_id INTEGER NOT NULL,
			owning_faction_id INTEGER NOT NULL CHECK (owning_faction_id BETWEEN 0 AND 4),
			owned_since TEXT NOT NULL,
			owning_outfit_id INTEGER,
			PRIMARY KEY (base_id, server_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_base_ownership_server ON base_ownership(server_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes and closes the database.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// AttachSink subscribes the store to status republications.
func (s *Store) AttachSink(b *bus.Bus) {
	b.Subscribe(protocol.TopicMapStatus, func(payload any) {
		status, ok := payload.(protocol.MapStatus)
		if !ok {
			s.log.Printf("unexpected %s payload %T", protocol.TopicMapStatus, payload)
			return
		}
		s.Apply(status)
	})
}

// Apply enqueues one zone status for persistence. Never blocks: if the
// writer falls behind the status is dropped and counted; the next poll
// or capture republishes the same state.
func (s *Store) Apply(status protocol.MapStatus) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- status:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns how many statuses were discarded due to a full queue.
func (s *Store) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Store) loop() {
	upsert, err := s.db.Prepare(`INSERT INTO base_ownership
		(base_id, server_id, owning_faction_id, owned_since, owning_outfit_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (base_id, server_id) DO UPDATE SET
		owning_faction_id = excluded.owning_faction_id,
		owned_since = excluded.owned_since,
		owning_outfit_id = excluded.owning_outfit_id`)
	if err != nil {
		s.log.Printf("prepare ownership upsert: %v", err)
		for range s.ch {
		}
		return
	}
	defer upsert.Close()

	for status := range s.ch {
		s.writeStatus(upsert, status)
	}
}

// writeStatus upserts every facility row of one zone status, one
// transaction per row: a constraint violation rolls back that row
// only, is logged, and the remaining rows still land.
func (s *Store) writeStatus(upsert *sql.Stmt, status protocol.MapStatus) {
	for facilityID, fs := range status.Facilities {
		var outfit any
		if fs.OutfitID != 0 {
			outfit = fs.OutfitID
		}
		tx, err := s.db.Begin()
		if err != nil {
			s.log.Printf("begin ownership tx: %v", err)
			return
		}
		_, err = tx.Stmt(upsert).Exec(facilityID, status.ServerID, fs.FactionID,
			fs.LastSecured.UTC().Format(time.RFC3339Nano), outfit)
		if err != nil {
			_ = tx.Rollback()
			s.log.Printf("failed to set facility %d on zone %d: %v",
				facilityID, status.ZoneID, err)
			continue
		}
		if err := tx.Commit(); err != nil {
			s.log.Printf("commit facility %d on zone %d: %v",
				facilityID, status.ZoneID, err)
		}
	}
}

// TrackedServers returns every world with tracking enabled and its
// Census namespace.
func (s *Store) TrackedServers(ctx context.Context) ([]protocol.ServerInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, namespace FROM worlds WHERE tracking_enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []protocol.ServerInfo
	for rows.Next() {
		var info protocol.ServerInfo
		if err := rows.Scan(&info.ID, &info.Namespace); err != nil {
			return nil, err
		}
		servers = append(servers, info)
	}
	return servers, rows.Err()
}

// TrackedZones returns every zone not marked hidden.
func (s *Store) TrackedZones(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM zones WHERE hidden = 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		zones = append(zones, id)
	}
	return zones, rows.Err()
}

// RegionZone resolves a facility to its zone. Results are cached; the
// mapping is static game data.
func (s *Store) RegionZone(ctx context.Context, facilityID int) (int, bool, error) {
	s.regionMu.Lock()
	if zone, ok := s.regionZones[facilityID]; ok {
		s.regionMu.Unlock()
		return zone, true, nil
	}
	s.regionMu.Unlock()

	var zone int
	err := s.db.QueryRowContext(ctx,
		`SELECT zone_id FROM map_regions WHERE facility_id = ?`, facilityID).Scan(&zone)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	s.regionMu.Lock()
	s.regionZones[facilityID] = zone
	s.regionMu.Unlock()
	return zone, true, nil
}
