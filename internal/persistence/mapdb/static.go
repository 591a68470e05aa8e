package mapdb

import "context"

// Static-table writers, used by cmd/seed and tests. These bypass the
// writer goroutine: seeding happens before any ingestion starts.

func (s *Store) UpsertWorld(ctx context.Context, id int, name, namespace string, tracked bool) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO worlds (id, name, namespace, tracking_enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		namespace = excluded.namespace,
		tracking_enabled = excluded.tracking_enabled`,
		id, name, namespace, boolInt(tracked))
	return err
}

func (s *Store) UpsertZone(ctx context.Context, id int, name string, hidden bool) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO zones (id, name, hidden)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
		name = excluded.name,
		hidden = excluded.hidden`,
		id, name, boolInt(hidden))
	return err
}

func (s *Store) UpsertRegion(ctx context.Context, facilityID, zoneID int, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO map_regions (facility_id, zone_id, name)
		VALUES (?, ?, ?)
		ON CONFLICT (facility_id) DO UPDATE SET
		zone_id = excluded.zone_id,
		name = excluded.name`,
		facilityID, zoneID, name)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
