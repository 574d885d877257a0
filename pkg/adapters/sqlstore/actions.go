package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aretw0/dispatch/pkg/actions"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
)

// rejection aborts a handler transaction with an ok=false result.
type rejection struct {
	message string
}

func (r *rejection) Error() string {
	return r.message
}

func reject(format string, args ...any) error {
	return &rejection{message: fmt.Sprintf(format, args...)}
}

// handler turns rejections into ok=false results and keeps every other error.
func handler(fn func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error)) ports.ActionHandler {
	return ports.ActionHandlerFunc(func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
		res, err := fn(ctx, req)
		var r *rejection
		if errors.As(err, &r) {
			return domain.ActionResult{OK: false, Message: r.message}, nil
		}
		return res, err
	})
}

// Handlers returns the reference handler for every catalog action. Mutations
// run in a single transaction each.
func (d *DB) Handlers() map[string]ports.ActionHandler {
	dir := d.Directory()
	return map[string]ports.ActionHandler{
		domain.ActionGetTripStatus:    handler(d.tripStatus(dir)),
		domain.ActionListTrips:        handler(d.listTrips(dir)),
		domain.ActionGetVehicleStatus: handler(d.resourceStatus(dir, domain.KindVehicle)),
		domain.ActionGetDriverStatus:  handler(d.resourceStatus(dir, domain.KindDriver)),
		domain.ActionCreateStop:       handler(d.createStop),
		domain.ActionCreatePath:       handler(d.createPath),
		domain.ActionCreateRoute:      handler(d.createRoute),
		domain.ActionCreateTrip:       handler(d.createTrip),
		domain.ActionAssignVehicle:    handler(d.assign(dir, domain.KindVehicle)),
		domain.ActionAssignDriver:     handler(d.assign(dir, domain.KindDriver)),
		domain.ActionRemoveVehicle:    handler(d.remove(domain.KindVehicle)),
		domain.ActionRemoveDriver:     handler(d.remove(domain.KindDriver)),
		domain.ActionCancelTrip:       handler(d.cancelTrip),
	}
}

type actionFunc func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error)

func (d *DB) tripStatus(dir *Directory) actionFunc {
	return func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
		snap, err := dir.Snapshot(ctx, domain.KindTrip, req.TargetID)
		if errors.Is(err, domain.ErrEntityNotFound) {
			return domain.ActionResult{}, reject("Trip %d does not exist.", req.TargetID)
		}
		if err != nil {
			return domain.ActionResult{}, err
		}
		data := map[string]any{
			"trip_id":  snap.Entity.ID,
			"status":   snap.Entity.Status,
			"bookings": snap.Dependents,
		}
		if snap.Vehicle != nil {
			data["vehicle"] = snap.Vehicle.Label
		}
		if snap.Driver != nil {
			data["driver"] = snap.Driver.Label
		}
		return domain.ActionResult{
			OK:      true,
			Message: fmt.Sprintf("%s (%s) is %s with %d bookings.", snap.Entity.Label, snap.Entity.Detail, snap.Entity.Status, snap.Dependents),
			Data:    data,
		}, nil
	}
}

func (d *DB) listTrips(dir *Directory) actionFunc {
	return func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
		trips, err := dir.query(ctx, d.db, domain.KindTrip, "")
		if err != nil {
			return domain.ActionResult{}, err
		}
		return domain.ActionResult{
			OK:      true,
			Message: fmt.Sprintf("%d trips scheduled.", len(trips)),
			Data:    map[string]any{"trips": trips},
		}, nil
	}
}

func (d *DB) resourceStatus(dir *Directory, kind domain.EntityKind) actionFunc {
	return func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
		e, err := dir.Get(ctx, kind, req.TargetID)
		if errors.Is(err, domain.ErrEntityNotFound) {
			return domain.ActionResult{}, reject("%s %d does not exist.", kind, req.TargetID)
		}
		if err != nil {
			return domain.ActionResult{}, err
		}
		msg := fmt.Sprintf("%s is %s.", e.Label, e.Status)
		if e.Detail != "" {
			msg = fmt.Sprintf("%s is %s %s.", e.Label, e.Status, e.Detail)
		}
		return domain.ActionResult{OK: true, Message: msg, Data: map[string]any{"id": e.ID, "status": e.Status}}, nil
	}
}

func (d *DB) createStop(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	var p actions.CreateStop
	if err := actions.Decode(req.Params, &p); err != nil {
		return domain.ActionResult{}, reject("%v", err)
	}
	res, err := d.db.ExecContext(ctx, `INSERT INTO stops (name, latitude, longitude) VALUES (?, ?, ?)`,
		p.Name, nullFloat(p.Latitude), nullFloat(p.Longitude))
	if err != nil {
		return domain.ActionResult{}, fmt.Errorf("failed to insert stop: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{OK: true, Message: fmt.Sprintf("Stop %q created.", p.Name), Data: map[string]any{"stop_id": id}}, nil
}

func (d *DB) createPath(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	var p actions.CreatePath
	if err := actions.Decode(req.Params, &p); err != nil {
		return domain.ActionResult{}, reject("%v", err)
	}
	var id int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		for _, stop := range p.StopIDs {
			if err := exists(ctx, tx, "stops", stop); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return reject("Stop %d does not exist.", stop)
				}
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO paths (name) VALUES (?)`, p.Name)
		if err != nil {
			return fmt.Errorf("failed to insert path: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		for i, stop := range p.StopIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO path_stops (path_id, position, stop_id) VALUES (?, ?, ?)`, id, i, stop); err != nil {
				return fmt.Errorf("failed to insert path stop: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{OK: true, Message: fmt.Sprintf("Path %q created with %d stops.", p.Name, len(p.StopIDs)), Data: map[string]any{"path_id": id}}, nil
}

func (d *DB) createRoute(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	var p actions.CreateRoute
	if err := actions.Decode(req.Params, &p); err != nil {
		return domain.ActionResult{}, reject("%v", err)
	}
	var id int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if err := exists(ctx, tx, "paths", p.PathID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return reject("Path %d does not exist.", p.PathID)
			}
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO routes (name, path_id, shift_time, direction) VALUES (?, ?, ?, ?)`,
			p.Name, p.PathID, p.ShiftTime, p.Direction)
		if err != nil {
			return fmt.Errorf("failed to insert route: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{OK: true, Message: fmt.Sprintf("Route %q created.", p.Name), Data: map[string]any{"route_id": id}}, nil
}

func (d *DB) createTrip(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	var p actions.CreateTrip
	if err := actions.Decode(req.Params, &p); err != nil {
		return domain.ActionResult{}, reject("%v", err)
	}
	var id int64
	var route string
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT name FROM routes WHERE id = ?`, p.RouteID).Scan(&route)
		if errors.Is(err, sql.ErrNoRows) {
			return reject("Route %d does not exist.", p.RouteID)
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `INSERT INTO trips (label, route_id, trip_date, departure_time, status) VALUES (?, ?, ?, ?, ?)`,
			route, p.RouteID, p.TripDate, p.DepartureTime, domain.EntityScheduled)
		if err != nil {
			return fmt.Errorf("failed to insert trip: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{
		OK:      true,
		Message: fmt.Sprintf("Trip on %s scheduled for %s at %s.", route, p.TripDate, p.DepartureTime),
		Data:    map[string]any{"trip_id": id},
	}, nil
}

func (d *DB) assign(dir *Directory, kind domain.EntityKind) actionFunc {
	column, param := "vehicle_id", actions.ParamVehicleID
	if kind == domain.KindDriver {
		column, param = "driver_id", actions.ParamDriverID
	}
	return func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
		var p actions.Assignment
		if err := actions.Decode(req.Params, &p); err != nil {
			return domain.ActionResult{}, reject("%v", err)
		}
		resourceID := p.VehicleID
		if kind == domain.KindDriver {
			resourceID = p.DriverID
		}

		var msg string
		err := d.withTx(ctx, func(tx *sql.Tx) error {
			trip, err := dir.get(ctx, tx, domain.KindTrip, req.TargetID)
			if errors.Is(err, domain.ErrEntityNotFound) {
				return reject("Trip %d does not exist.", req.TargetID)
			}
			if err != nil {
				return err
			}
			resource, err := dir.get(ctx, tx, kind, resourceID)
			if errors.Is(err, domain.ErrEntityNotFound) {
				return reject("%s %d does not exist.", capitalize(string(kind)), resourceID)
			}
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE trips SET %[1]s = ? WHERE id = ? AND %[1]s IS NULL`, column), resourceID, req.TargetID)
			if err != nil {
				return fmt.Errorf("failed to assign %s: %w", kind, err)
			}
			if n, err := res.RowsAffected(); err != nil {
				return err
			} else if n == 0 {
				return reject("Trip %s already has a %s.", trip.Label, kind)
			}
			msg = fmt.Sprintf("%s assigned to %s at %s.", resource.Label, trip.Label, trip.Time)
			return nil
		})
		if err != nil {
			return domain.ActionResult{}, err
		}
		return domain.ActionResult{OK: true, Message: msg, Data: map[string]any{param: resourceID}}, nil
	}
}

func (d *DB) remove(kind domain.EntityKind) actionFunc {
	column := "vehicle_id"
	if kind == domain.KindDriver {
		column = "driver_id"
	}
	return func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
		var label, at string
		var removed sql.NullInt64
		err := d.withTx(ctx, func(tx *sql.Tx) error {
			err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT label, departure_time, %s FROM trips WHERE id = ?`, column), req.TargetID).
				Scan(&label, &at, &removed)
			if errors.Is(err, sql.ErrNoRows) {
				return reject("Trip %d does not exist.", req.TargetID)
			}
			if err != nil {
				return err
			}
			if !removed.Valid {
				return reject("Trip %s has no %s assigned.", label, kind)
			}
			_, err = tx.ExecContext(ctx, fmt.Sprintf(`UPDATE trips SET %s = NULL WHERE id = ?`, column), req.TargetID)
			return err
		})
		if err != nil {
			return domain.ActionResult{}, err
		}
		return domain.ActionResult{
			OK:      true,
			Message: fmt.Sprintf("The %s was removed from %s at %s.", kind, label, at),
			Data:    map[string]any{column: removed.Int64},
		}, nil
	}
}

func (d *DB) cancelTrip(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	var label, at, status string
	var cancelled int64
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT label, departure_time, status FROM trips WHERE id = ?`, req.TargetID).
			Scan(&label, &at, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return reject("Trip %d does not exist.", req.TargetID)
		}
		if err != nil {
			return err
		}
		if status == domain.EntityCancelled {
			return reject("Trip %s is already cancelled.", label)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE trips SET status = ? WHERE id = ?`, domain.EntityCancelled, req.TargetID); err != nil {
			return fmt.Errorf("failed to cancel trip: %w", err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE bookings SET status = 'cancelled' WHERE trip_id = ? AND status = 'confirmed'`, req.TargetID)
		if err != nil {
			return fmt.Errorf("failed to cancel bookings: %w", err)
		}
		cancelled, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return domain.ActionResult{}, err
	}
	return domain.ActionResult{
		OK:      true,
		Message: fmt.Sprintf("%s at %s cancelled; %d bookings cancelled.", label, at, cancelled),
		Data:    map[string]any{"trip_id": req.TargetID, "bookings_cancelled": cancelled},
	}, nil
}

// exists returns sql.ErrNoRows when table has no row with id.
func exists(ctx context.Context, q querier, table string, id int64) error {
	var one int
	return q.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, table), id).Scan(&one)
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
