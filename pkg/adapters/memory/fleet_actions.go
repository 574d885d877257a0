package memory

import (
	"context"
	"fmt"

	"github.com/aretw0/dispatch/pkg/actions"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/ports"
)

// Handlers returns the reference handler for every catalog action.
func (f *Fleet) Handlers() map[string]ports.ActionHandler {
	return map[string]ports.ActionHandler{
		domain.ActionGetTripStatus:    ports.ActionHandlerFunc(f.tripStatus),
		domain.ActionListTrips:        ports.ActionHandlerFunc(f.listTrips),
		domain.ActionGetVehicleStatus: ports.ActionHandlerFunc(f.resourceStatus(domain.KindVehicle)),
		domain.ActionGetDriverStatus:  ports.ActionHandlerFunc(f.resourceStatus(domain.KindDriver)),
		domain.ActionCreateStop:       ports.ActionHandlerFunc(f.createStop),
		domain.ActionCreatePath:       ports.ActionHandlerFunc(f.createPath),
		domain.ActionCreateRoute:      ports.ActionHandlerFunc(f.createRoute),
		domain.ActionCreateTrip:       ports.ActionHandlerFunc(f.createTrip),
		domain.ActionAssignVehicle:    ports.ActionHandlerFunc(f.assign(domain.KindVehicle)),
		domain.ActionAssignDriver:     ports.ActionHandlerFunc(f.assign(domain.KindDriver)),
		domain.ActionRemoveVehicle:    ports.ActionHandlerFunc(f.remove(domain.KindVehicle)),
		domain.ActionRemoveDriver:     ports.ActionHandlerFunc(f.remove(domain.KindDriver)),
		domain.ActionCancelTrip:       ports.ActionHandlerFunc(f.cancelTrip),
	}
}

func failed(format string, args ...any) domain.ActionResult {
	return domain.ActionResult{OK: false, Message: fmt.Sprintf(format, args...)}
}

func (f *Fleet) tripStatus(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	snap, err := f.Snapshot(ctx, domain.KindTrip, req.TargetID)
	if err != nil {
		return failed("Trip %d does not exist.", req.TargetID), nil
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

func (f *Fleet) listTrips(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	f.mu.RLock()
	trips := f.entities(domain.KindTrip)
	f.mu.RUnlock()
	return domain.ActionResult{
		OK:      true,
		Message: fmt.Sprintf("%d trips scheduled.", len(trips)),
		Data:    map[string]any{"trips": trips},
	}, nil
}

func (f *Fleet) resourceStatus(kind domain.EntityKind) ports.ActionHandlerFunc {
	return func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
		e, err := f.Get(ctx, kind, req.TargetID)
		if err != nil {
			return failed("%s %d does not exist.", kind, req.TargetID), nil
		}
		msg := fmt.Sprintf("%s is %s.", e.Label, e.Status)
		if e.Detail != "" {
			msg = fmt.Sprintf("%s is %s %s.", e.Label, e.Status, e.Detail)
		}
		return domain.ActionResult{OK: true, Message: msg, Data: map[string]any{"id": e.ID, "status": e.Status}}, nil
	}
}

func (f *Fleet) createStop(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	var p actions.CreateStop
	if err := actions.Decode(req.Params, &p); err != nil {
		return failed("%v", err), nil
	}
	id := f.AddStop(Stop{Name: p.Name, Latitude: p.Latitude, Longitude: p.Longitude})
	return domain.ActionResult{OK: true, Message: fmt.Sprintf("Stop %q created.", p.Name), Data: map[string]any{"stop_id": id}}, nil
}

func (f *Fleet) createPath(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	var p actions.CreatePath
	if err := actions.Decode(req.Params, &p); err != nil {
		return failed("%v", err), nil
	}
	f.mu.RLock()
	for _, id := range p.StopIDs {
		if _, ok := f.stops[id]; !ok {
			f.mu.RUnlock()
			return failed("Stop %d does not exist.", id), nil
		}
	}
	f.mu.RUnlock()
	id := f.AddPath(Path{Name: p.Name, StopIDs: p.StopIDs})
	return domain.ActionResult{OK: true, Message: fmt.Sprintf("Path %q created with %d stops.", p.Name, len(p.StopIDs)), Data: map[string]any{"path_id": id}}, nil
}

func (f *Fleet) createRoute(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	var p actions.CreateRoute
	if err := actions.Decode(req.Params, &p); err != nil {
		return failed("%v", err), nil
	}
	f.mu.RLock()
	_, ok := f.paths[p.PathID]
	f.mu.RUnlock()
	if !ok {
		return failed("Path %d does not exist.", p.PathID), nil
	}
	id := f.AddRoute(Route{Name: p.Name, PathID: p.PathID, ShiftTime: p.ShiftTime, Direction: p.Direction})
	return domain.ActionResult{OK: true, Message: fmt.Sprintf("Route %q created.", p.Name), Data: map[string]any{"route_id": id}}, nil
}

func (f *Fleet) createTrip(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	var p actions.CreateTrip
	if err := actions.Decode(req.Params, &p); err != nil {
		return failed("%v", err), nil
	}
	f.mu.RLock()
	route, ok := f.routes[p.RouteID]
	f.mu.RUnlock()
	if !ok {
		return failed("Route %d does not exist.", p.RouteID), nil
	}
	id := f.AddTrip(Trip{Label: route.Name, RouteID: route.ID, Date: p.TripDate, Time: p.DepartureTime})
	return domain.ActionResult{
		OK:      true,
		Message: fmt.Sprintf("Trip on %s scheduled for %s at %s.", route.Name, p.TripDate, p.DepartureTime),
		Data:    map[string]any{"trip_id": id},
	}, nil
}

func (f *Fleet) assign(kind domain.EntityKind) ports.ActionHandlerFunc {
	return func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
		var p actions.Assignment
		if err := actions.Decode(req.Params, &p); err != nil {
			return failed("%v", err), nil
		}
		f.mu.Lock()
		defer f.mu.Unlock()

		t, ok := f.trips[req.TargetID]
		if !ok {
			return failed("Trip %d does not exist.", req.TargetID), nil
		}
		switch kind {
		case domain.KindVehicle:
			v, ok := f.vehicles[p.VehicleID]
			if !ok {
				return failed("Vehicle %d does not exist.", p.VehicleID), nil
			}
			if t.VehicleID != 0 {
				return failed("Trip %s already has a vehicle.", t.Label), nil
			}
			t.VehicleID = v.ID
			return domain.ActionResult{OK: true, Message: fmt.Sprintf("%s assigned to %s at %s.", v.Label, t.Label, t.Time), Data: map[string]any{"vehicle_id": v.ID}}, nil
		default:
			d, ok := f.drivers[p.DriverID]
			if !ok {
				return failed("Driver %d does not exist.", p.DriverID), nil
			}
			if t.DriverID != 0 {
				return failed("Trip %s already has a driver.", t.Label), nil
			}
			t.DriverID = d.ID
			return domain.ActionResult{OK: true, Message: fmt.Sprintf("%s assigned to %s at %s.", d.Label, t.Label, t.Time), Data: map[string]any{"driver_id": d.ID}}, nil
		}
	}
}

func (f *Fleet) remove(kind domain.EntityKind) ports.ActionHandlerFunc {
	return func(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
		f.mu.Lock()
		defer f.mu.Unlock()

		t, ok := f.trips[req.TargetID]
		if !ok {
			return failed("Trip %d does not exist.", req.TargetID), nil
		}
		field := &t.VehicleID
		if kind == domain.KindDriver {
			field = &t.DriverID
		}
		if *field == 0 {
			return failed("Trip %s has no %s assigned.", t.Label, kind), nil
		}
		removed := *field
		*field = 0
		return domain.ActionResult{
			OK:      true,
			Message: fmt.Sprintf("The %s was removed from %s at %s.", kind, t.Label, t.Time),
			Data:    map[string]any{string(kind) + "_id": removed},
		}, nil
	}
}

func (f *Fleet) cancelTrip(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.trips[req.TargetID]
	if !ok {
		return failed("Trip %d does not exist.", req.TargetID), nil
	}
	if t.Status == domain.EntityCancelled {
		return failed("Trip %s is already cancelled.", t.Label), nil
	}
	cancelled := t.Bookings
	t.Status = domain.EntityCancelled
	t.Bookings = 0
	return domain.ActionResult{
		OK:      true,
		Message: fmt.Sprintf("%s at %s cancelled; %d bookings cancelled.", t.Label, t.Time, cancelled),
		Data:    map[string]any{"trip_id": t.ID, "bookings_cancelled": cancelled},
	}, nil
}
