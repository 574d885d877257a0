package domain

import (
	"sort"
	"time"
)

// ActionCategory drives routing and risk policy.
type ActionCategory string

const (
	CategoryRead   ActionCategory = "read"
	CategoryCreate ActionCategory = "create"
	CategoryAssign ActionCategory = "assign" // additive
	CategoryRemove ActionCategory = "remove" // destructive, removes a sub-resource
	CategoryCancel ActionCategory = "cancel" // destructive, voids the target
)

// Destructive reports whether the category removes something.
func (c ActionCategory) Destructive() bool {
	return c == CategoryRemove || c == CategoryCancel
}

// ActionSpec describes one named business action.
type ActionSpec struct {
	Name     string
	Category ActionCategory
	// Target is the entity the action applies to; empty for creations and listings.
	Target EntityKind
	// Requires names the sub-resource an assign/remove action works on.
	Requires EntityKind
	// Wizard is true when parameters are collected step by step.
	Wizard      bool
	Description string
	// Keywords are used by the keyword classifier; order them strongest first.
	Keywords []string
}

// Action names.
const (
	ActionGetTripStatus    = "get_trip_status"
	ActionListTrips        = "list_trips"
	ActionGetVehicleStatus = "get_vehicle_status"
	ActionGetDriverStatus  = "get_driver_status"
	ActionCreateStop       = "create_stop"
	ActionCreatePath       = "create_path"
	ActionCreateRoute      = "create_route"
	ActionCreateTrip       = "create_trip"
	ActionAssignVehicle    = "assign_vehicle"
	ActionAssignDriver     = "assign_driver"
	ActionRemoveVehicle    = "remove_vehicle"
	ActionRemoveDriver     = "remove_driver"
	ActionCancelTrip       = "cancel_trip"
)

var catalog = map[string]ActionSpec{
	ActionGetTripStatus: {
		Name: ActionGetTripStatus, Category: CategoryRead, Target: KindTrip,
		Description: "Show the status of a trip",
		Keywords:    []string{"status of", "trip status", "how is", "status"},
	},
	ActionListTrips: {
		Name: ActionListTrips, Category: CategoryRead,
		Description: "List today's trips",
		Keywords:    []string{"list trips", "show trips", "all trips"},
	},
	ActionGetVehicleStatus: {
		Name: ActionGetVehicleStatus, Category: CategoryRead, Target: KindVehicle,
		Description: "Show the status of a vehicle",
		Keywords:    []string{"vehicle status", "where is vehicle"},
	},
	ActionGetDriverStatus: {
		Name: ActionGetDriverStatus, Category: CategoryRead, Target: KindDriver,
		Description: "Show the status of a driver",
		Keywords:    []string{"driver status", "where is driver"},
	},
	ActionCreateStop: {
		Name: ActionCreateStop, Category: CategoryCreate, Wizard: true,
		Description: "Create a new stop",
		Keywords:    []string{"create stop", "new stop", "add stop"},
	},
	ActionCreatePath: {
		Name: ActionCreatePath, Category: CategoryCreate, Wizard: true,
		Description: "Create a path from existing stops",
		Keywords:    []string{"create path", "new path", "add path"},
	},
	ActionCreateRoute: {
		Name: ActionCreateRoute, Category: CategoryCreate, Wizard: true,
		Description: "Create a route on a path",
		Keywords:    []string{"create route", "new route", "add route"},
	},
	ActionCreateTrip: {
		Name: ActionCreateTrip, Category: CategoryCreate, Wizard: true,
		Description: "Schedule a trip on a route",
		Keywords:    []string{"create trip", "new trip", "schedule trip"},
	},
	ActionAssignVehicle: {
		Name: ActionAssignVehicle, Category: CategoryAssign, Target: KindTrip, Requires: KindVehicle,
		Description: "Assign a vehicle to a trip",
		Keywords:    []string{"assign vehicle", "assign bus", "add vehicle", "allocate vehicle"},
	},
	ActionAssignDriver: {
		Name: ActionAssignDriver, Category: CategoryAssign, Target: KindTrip, Requires: KindDriver,
		Description: "Assign a driver to a trip",
		Keywords:    []string{"assign driver", "add driver", "allocate driver"},
	},
	ActionRemoveVehicle: {
		Name: ActionRemoveVehicle, Category: CategoryRemove, Target: KindTrip, Requires: KindVehicle,
		Description: "Remove the vehicle from a trip",
		Keywords:    []string{"remove vehicle", "unassign vehicle", "remove bus"},
	},
	ActionRemoveDriver: {
		Name: ActionRemoveDriver, Category: CategoryRemove, Target: KindTrip, Requires: KindDriver,
		Description: "Remove the driver from a trip",
		Keywords:    []string{"remove driver", "unassign driver"},
	},
	ActionCancelTrip: {
		Name: ActionCancelTrip, Category: CategoryCancel, Target: KindTrip,
		Description: "Cancel a trip and its bookings",
		Keywords:    []string{"cancel trip", "cancel"},
	},
}

// LookupAction returns the spec of a named action.
func LookupAction(name string) (ActionSpec, bool) {
	spec, ok := catalog[name]
	return spec, ok
}

// Actions lists the catalog sorted by name.
func Actions() []ActionSpec {
	out := make([]ActionSpec, 0, len(catalog))
	for _, spec := range catalog {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ActionRequest is what the executor hands to a business handler.
type ActionRequest struct {
	Action     string         `json:"action"`
	TargetKind EntityKind     `json:"target_kind,omitempty"`
	TargetID   int64          `json:"target_id,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
}

// ActionResult is the uniform contract every handler returns.
type ActionResult struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ActionEvent is published after each execution.
type ActionEvent struct {
	Action    string        `json:"action"`
	TargetID  int64         `json:"target_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	OK        bool          `json:"ok"`
	Message   string        `json:"message"`
	At        time.Time     `json:"at"`
	Duration  time.Duration `json:"duration"`
}

// RiskAssessment is the output of the risk classifier.
type RiskAssessment struct {
	NeedsConfirmation bool     `json:"needs_confirmation"`
	Warnings          []string `json:"warnings,omitempty"`
	Blocking          *Failure `json:"blocking,omitempty"`
}
