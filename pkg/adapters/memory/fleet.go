package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/sahilm/fuzzy"
)

// Trip is a scheduled departure on a route.
type Trip struct {
	ID        int64
	Label     string
	RouteID   int64
	Date      string
	Time      string
	Status    string
	VehicleID int64
	DriverID  int64
	Bookings  int
}

// Resource is a vehicle or a driver.
type Resource struct {
	ID    int64
	Label string
}

// Stop is a named location.
type Stop struct {
	ID        int64
	Name      string
	Latitude  *float64
	Longitude *float64
}

// Path is an ordered list of stops.
type Path struct {
	ID      int64
	Name    string
	StopIDs []int64
}

// Route runs along a path in one direction.
type Route struct {
	ID        int64
	Name      string
	PathID    int64
	ShiftTime string
	Direction string
}

// Fleet is an in-memory fleet. It implements ports.Directory and provides the
// reference action handlers. Safe for concurrent use.
type Fleet struct {
	mu       sync.RWMutex
	trips    map[int64]*Trip
	vehicles map[int64]*Resource
	drivers  map[int64]*Resource
	stops    map[int64]*Stop
	paths    map[int64]*Path
	routes   map[int64]*Route
	nextID   int64
}

// NewFleet creates an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{
		trips:    make(map[int64]*Trip),
		vehicles: make(map[int64]*Resource),
		drivers:  make(map[int64]*Resource),
		stops:    make(map[int64]*Stop),
		paths:    make(map[int64]*Path),
		routes:   make(map[int64]*Route),
		nextID:   1000,
	}
}

// AddTrip stores a trip. A zero ID is assigned.
func (f *Fleet) AddTrip(t Trip) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == 0 {
		t.ID = f.allocID()
	}
	if t.Status == "" {
		t.Status = domain.EntityScheduled
	}
	f.trips[t.ID] = &t
	return t.ID
}

// AddVehicle stores a vehicle.
func (f *Fleet) AddVehicle(id int64, label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vehicles[id] = &Resource{ID: id, Label: label}
}

// AddDriver stores a driver.
func (f *Fleet) AddDriver(id int64, label string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drivers[id] = &Resource{ID: id, Label: label}
}

// AddStop stores a stop.
func (f *Fleet) AddStop(s Stop) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == 0 {
		s.ID = f.allocID()
	}
	f.stops[s.ID] = &s
	return s.ID
}

// AddPath stores a path.
func (f *Fleet) AddPath(p Path) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		p.ID = f.allocID()
	}
	f.paths[p.ID] = &p
	return p.ID
}

// AddRoute stores a route.
func (f *Fleet) AddRoute(r Route) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == 0 {
		r.ID = f.allocID()
	}
	f.routes[r.ID] = &r
	return r.ID
}

// Trip returns a copy of a trip.
func (f *Fleet) Trip(id int64) (Trip, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.trips[id]
	if !ok {
		return Trip{}, false
	}
	return *t, true
}

// allocID must be called with mu held.
func (f *Fleet) allocID() int64 {
	f.nextID++
	return f.nextID
}

// Get returns one entity.
func (f *Fleet) Get(ctx context.Context, kind domain.EntityKind, id int64) (*domain.Entity, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, e := range f.entities(kind) {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %d", domain.ErrEntityNotFound, kind, id)
}

// FindByTime returns trips departing at hhmm.
func (f *Fleet) FindByTime(ctx context.Context, hhmm string) ([]domain.Entity, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []domain.Entity
	for _, e := range f.entities(domain.KindTrip) {
		if e.Time == hhmm {
			out = append(out, e)
		}
	}
	return out, nil
}

// FindByLabel returns entities whose label equals label, ignoring case.
func (f *Fleet) FindByLabel(ctx context.Context, kind domain.EntityKind, label string) ([]domain.Entity, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []domain.Entity
	for _, e := range f.entities(kind) {
		if strings.EqualFold(e.Label, strings.TrimSpace(label)) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Search returns fuzzy label matches, best first.
func (f *Fleet) Search(ctx context.Context, kind domain.EntityKind, query string, limit int) ([]domain.Entity, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entities := f.entities(kind)
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

// Snapshot returns the entity with dependents and assigned resources.
func (f *Fleet) Snapshot(ctx context.Context, kind domain.EntityKind, id int64) (*domain.Snapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if kind != domain.KindTrip {
		for _, e := range f.entities(kind) {
			if e.ID == id {
				return &domain.Snapshot{Entity: e}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s %d", domain.ErrEntityNotFound, kind, id)
	}

	t, ok := f.trips[id]
	if !ok {
		return nil, fmt.Errorf("%w: trip %d", domain.ErrEntityNotFound, id)
	}
	snap := &domain.Snapshot{Entity: f.tripEntity(t), Dependents: t.Bookings}
	if v, ok := f.vehicles[t.VehicleID]; ok {
		snap.Vehicle = f.resourceEntity(domain.KindVehicle, v)
	}
	if d, ok := f.drivers[t.DriverID]; ok {
		snap.Driver = f.resourceEntity(domain.KindDriver, d)
	}
	return snap, nil
}

// Available lists vehicles or drivers not assigned to a scheduled trip.
func (f *Fleet) Available(ctx context.Context, kind domain.EntityKind) ([]domain.Entity, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []domain.Entity
	for _, e := range f.entities(kind) {
		if e.Status == domain.EntityAvailable {
			out = append(out, e)
		}
	}
	return out, nil
}

// entities lists one kind sorted by ID; mu must be held.
func (f *Fleet) entities(kind domain.EntityKind) []domain.Entity {
	var out []domain.Entity
	switch kind {
	case domain.KindTrip:
		for _, t := range f.trips {
			out = append(out, f.tripEntity(t))
		}
	case domain.KindVehicle:
		for _, v := range f.vehicles {
			out = append(out, *f.resourceEntity(kind, v))
		}
	case domain.KindDriver:
		for _, d := range f.drivers {
			out = append(out, *f.resourceEntity(kind, d))
		}
	case domain.KindStop:
		for _, s := range f.stops {
			out = append(out, domain.Entity{Kind: kind, ID: s.ID, Label: s.Name})
		}
	case domain.KindPath:
		for _, p := range f.paths {
			out = append(out, domain.Entity{Kind: kind, ID: p.ID, Label: p.Name, Detail: fmt.Sprintf("%d stops", len(p.StopIDs))})
		}
	case domain.KindRoute:
		for _, r := range f.routes {
			out = append(out, domain.Entity{Kind: kind, ID: r.ID, Label: r.Name, Detail: fmt.Sprintf("%s at %s", r.Direction, r.ShiftTime)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *Fleet) tripEntity(t *Trip) domain.Entity {
	return domain.Entity{
		Kind:   domain.KindTrip,
		ID:     t.ID,
		Label:  t.Label,
		Status: t.Status,
		Time:   t.Time,
		Date:   t.Date,
		Detail: fmt.Sprintf("departs %s on %s", t.Time, t.Date),
	}
}

func (f *Fleet) resourceEntity(kind domain.EntityKind, r *Resource) *domain.Entity {
	status := domain.EntityAvailable
	detail := ""
	for _, t := range f.trips {
		if t.Status != domain.EntityScheduled {
			continue
		}
		if (kind == domain.KindVehicle && t.VehicleID == r.ID) || (kind == domain.KindDriver && t.DriverID == r.ID) {
			status = domain.EntityAssigned
			detail = fmt.Sprintf("on %s at %s", t.Label, t.Time)
			break
		}
	}
	return &domain.Entity{Kind: kind, ID: r.ID, Label: r.Label, Status: status, Detail: detail}
}
