package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aretw0/dispatch/pkg/adapters/memory"
	"github.com/aretw0/dispatch/pkg/domain"
)

// Seed loads the demo fleet used by memory.SeedFleet, with the same IDs.
// It is a no-op when trips already exist.
func (d *DB) Seed(ctx context.Context) error {
	var trips int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips`).Scan(&trips); err != nil {
		return fmt.Errorf("failed to count trips: %w", err)
	}
	if trips > 0 {
		return nil
	}

	type trip struct {
		id                int64
		label, date, time string
		status            string
		vehicle, driver   any
		bookings          int
	}
	seedTrips := []trip{
		{memory.SeedHarborLoop, "Harbor Loop", "2026-03-02", "09:15", domain.EntityScheduled, nil, nil, 8},
		{memory.SeedAirportAM, "Airport Express", "2026-03-02", "08:00", domain.EntityScheduled, nil, nil, 3},
		{memory.SeedAirportPM, "Airport Express", "2026-03-02", "17:30", domain.EntityScheduled, nil, nil, 0},
		{memory.SeedCityShuttle, "City Shuttle", "2026-03-02", "10:45", domain.EntityScheduled, memory.SeedVehicleBus12, memory.SeedDriverRivera, 12},
		{memory.SeedNightOwl, "Night Owl", "2026-03-02", "23:30", domain.EntityCancelled, nil, nil, 0},
	}

	return d.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []struct {
			query string
			args  []any
		}{
			{`INSERT INTO vehicles (id, label) VALUES (?, ?), (?, ?), (?, ?)`, []any{
				memory.SeedVehicleBus12, "Bus 12", memory.SeedVehicleBus7, "Bus 7", memory.SeedVehicleVan3, "Van 3"}},
			{`INSERT INTO drivers (id, label) VALUES (?, ?), (?, ?), (?, ?)`, []any{
				memory.SeedDriverRivera, "Ana Rivera", memory.SeedDriverOkafor, "Sam Okafor", memory.SeedDriverLindqvist, "Eli Lindqvist"}},
			{`INSERT INTO stops (id, name) VALUES (?, ?), (?, ?)`, []any{
				memory.SeedStopCentral, "Central Station", memory.SeedStopHarbor, "Harbor Gate"}},
			{`INSERT INTO paths (id, name) VALUES (?, ?)`, []any{memory.SeedPathCoastal, "Coastal"}},
			{`INSERT INTO path_stops (path_id, position, stop_id) VALUES (?, 0, ?), (?, 1, ?)`, []any{
				memory.SeedPathCoastal, memory.SeedStopCentral, memory.SeedPathCoastal, memory.SeedStopHarbor}},
			{`INSERT INTO routes (id, name, path_id, shift_time, direction) VALUES (?, ?, ?, ?, ?)`, []any{
				memory.SeedRouteCoastal, "Coastal Line", memory.SeedPathCoastal, "06:00", "UP"}},
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
				return fmt.Errorf("failed to seed fleet: %w", err)
			}
		}

		for _, t := range seedTrips {
			_, err := tx.ExecContext(ctx, `INSERT INTO trips (id, label, route_id, trip_date, departure_time, status, vehicle_id, driver_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, t.id, t.label, memory.SeedRouteCoastal, t.date, t.time, t.status, t.vehicle, t.driver)
			if err != nil {
				return fmt.Errorf("failed to seed trip %d: %w", t.id, err)
			}
			for i := 0; i < t.bookings; i++ {
				if _, err := tx.ExecContext(ctx, `INSERT INTO bookings (trip_id, status) VALUES (?, 'confirmed')`, t.id); err != nil {
					return fmt.Errorf("failed to seed bookings: %w", err)
				}
			}
		}
		return nil
	})
}
