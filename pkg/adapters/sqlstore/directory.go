package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/sahilm/fuzzy"
)

// entityQuery selects one kind with its table aliased as e.
type entityQuery struct {
	sql   string
	label string
	scan  func(row scanner, kind domain.EntityKind) (domain.Entity, error)
}

func resourceQuery(table, column string) entityQuery {
	return entityQuery{
		sql: fmt.Sprintf(`SELECT e.id, e.label,
	(SELECT t.label FROM trips t WHERE t.%[2]s = e.id AND t.status = 'scheduled' ORDER BY t.id LIMIT 1),
	(SELECT t.departure_time FROM trips t WHERE t.%[2]s = e.id AND t.status = 'scheduled' ORDER BY t.id LIMIT 1)
FROM %[1]s e`, table, column),
		label: "e.label",
		scan: func(row scanner, kind domain.EntityKind) (domain.Entity, error) {
			e := domain.Entity{Kind: kind, Status: domain.EntityAvailable}
			var trip, at sql.NullString
			if err := row.Scan(&e.ID, &e.Label, &trip, &at); err != nil {
				return e, err
			}
			if trip.Valid {
				e.Status = domain.EntityAssigned
				e.Detail = fmt.Sprintf("on %s at %s", trip.String, at.String)
			}
			return e, nil
		},
	}
}

var queries = map[domain.EntityKind]entityQuery{
	domain.KindTrip: {
		sql:   `SELECT e.id, e.label, e.status, e.departure_time, e.trip_date FROM trips e`,
		label: "e.label",
		scan: func(row scanner, kind domain.EntityKind) (domain.Entity, error) {
			e := domain.Entity{Kind: kind}
			if err := row.Scan(&e.ID, &e.Label, &e.Status, &e.Time, &e.Date); err != nil {
				return e, err
			}
			e.Detail = fmt.Sprintf("departs %s on %s", e.Time, e.Date)
			return e, nil
		},
	},
	domain.KindVehicle: resourceQuery("vehicles", "vehicle_id"),
	domain.KindDriver:  resourceQuery("drivers", "driver_id"),
	domain.KindStop: {
		sql:   `SELECT e.id, e.name FROM stops e`,
		label: "e.name",
		scan: func(row scanner, kind domain.EntityKind) (domain.Entity, error) {
			e := domain.Entity{Kind: kind}
			return e, row.Scan(&e.ID, &e.Label)
		},
	},
	domain.KindPath: {
		sql:   `SELECT e.id, e.name, (SELECT COUNT(*) FROM path_stops ps WHERE ps.path_id = e.id) FROM paths e`,
		label: "e.name",
		scan: func(row scanner, kind domain.EntityKind) (domain.Entity, error) {
			e := domain.Entity{Kind: kind}
			var stops int
			if err := row.Scan(&e.ID, &e.Label, &stops); err != nil {
				return e, err
			}
			e.Detail = fmt.Sprintf("%d stops", stops)
			return e, nil
		},
	},
	domain.KindRoute: {
		sql:   `SELECT e.id, e.name, e.direction, e.shift_time FROM routes e`,
		label: "e.name",
		scan: func(row scanner, kind domain.EntityKind) (domain.Entity, error) {
			e := domain.Entity{Kind: kind}
			var direction, shift string
			if err := row.Scan(&e.ID, &e.Label, &direction, &shift); err != nil {
				return e, err
			}
			e.Detail = fmt.Sprintf("%s at %s", direction, shift)
			return e, nil
		},
	},
}

// Directory implements ports.Directory over the fleet tables.
type Directory struct {
	db *DB
}

// Directory returns the read side of the fleet.
func (d *DB) Directory() *Directory {
	return &Directory{db: d}
}

func (r *Directory) query(ctx context.Context, q querier, kind domain.EntityKind, where string, args ...any) ([]domain.Entity, error) {
	eq, ok := queries[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	stmt := eq.sql
	if where != "" {
		stmt += " WHERE " + strings.ReplaceAll(where, "{label}", eq.label)
	}
	stmt += " ORDER BY e.id"

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %ss: %w", kind, err)
	}
	defer rows.Close()

	var out []domain.Entity
	for rows.Next() {
		e, err := eq.scan(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Directory) get(ctx context.Context, q querier, kind domain.EntityKind, id int64) (*domain.Entity, error) {
	found, err := r.query(ctx, q, kind, "e.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s %d", domain.ErrEntityNotFound, kind, id)
	}
	return &found[0], nil
}

// Get returns one entity.
func (r *Directory) Get(ctx context.Context, kind domain.EntityKind, id int64) (*domain.Entity, error) {
	return r.get(ctx, r.db.db, kind, id)
}

// FindByTime returns trips departing at hhmm.
func (r *Directory) FindByTime(ctx context.Context, hhmm string) ([]domain.Entity, error) {
	return r.query(ctx, r.db.db, domain.KindTrip, "e.departure_time = ?", hhmm)
}

// FindByLabel returns entities whose label equals label, ignoring case.
func (r *Directory) FindByLabel(ctx context.Context, kind domain.EntityKind, label string) ([]domain.Entity, error) {
	return r.query(ctx, r.db.db, kind, "LOWER({label}) = LOWER(?)", strings.TrimSpace(label))
}

// Search ranks every label of kind with a fuzzy matcher, best first.
func (r *Directory) Search(ctx context.Context, kind domain.EntityKind, query string, limit int) ([]domain.Entity, error) {
	entities, err := r.query(ctx, r.db.db, kind, "")
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(entities))
	for i, e := range entities {
		labels[i] = strings.ToLower(e.Label)
	}
	matches := fuzzy.Find(strings.ToLower(strings.TrimSpace(query)), labels)
	out := make([]domain.Entity, 0, len(matches))
	for _, m := range matches {
		out = append(out, entities[m.Index])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Snapshot returns the entity with its confirmed bookings and assigned resources.
func (r *Directory) Snapshot(ctx context.Context, kind domain.EntityKind, id int64) (*domain.Snapshot, error) {
	return r.snapshot(ctx, r.db.db, kind, id)
}

func (r *Directory) snapshot(ctx context.Context, q querier, kind domain.EntityKind, id int64) (*domain.Snapshot, error) {
	e, err := r.get(ctx, q, kind, id)
	if err != nil {
		return nil, err
	}
	snap := &domain.Snapshot{Entity: *e}
	if kind != domain.KindTrip {
		return snap, nil
	}

	var vehicleID, driverID sql.NullInt64
	err = q.QueryRowContext(ctx, `SELECT t.vehicle_id, t.driver_id,
	(SELECT COUNT(*) FROM bookings b WHERE b.trip_id = t.id AND b.status = 'confirmed')
FROM trips t WHERE t.id = ?`, id).Scan(&vehicleID, &driverID, &snap.Dependents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: trip %d", domain.ErrEntityNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trip %d: %w", id, err)
	}
	if vehicleID.Valid {
		if snap.Vehicle, err = r.get(ctx, q, domain.KindVehicle, vehicleID.Int64); err != nil {
			return nil, err
		}
	}
	if driverID.Valid {
		if snap.Driver, err = r.get(ctx, q, domain.KindDriver, driverID.Int64); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// Available lists vehicles or drivers not assigned to a scheduled trip.
func (r *Directory) Available(ctx context.Context, kind domain.EntityKind) ([]domain.Entity, error) {
	var column string
	switch kind {
	case domain.KindVehicle:
		column = "vehicle_id"
	case domain.KindDriver:
		column = "driver_id"
	default:
		return nil, nil
	}
	return r.query(ctx, r.db.db, kind,
		fmt.Sprintf("NOT EXISTS (SELECT 1 FROM trips t WHERE t.%s = e.id AND t.status = 'scheduled')", column))
}
