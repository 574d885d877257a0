package domain

// EntityKind identifies which part of the fleet a reference points to.
type EntityKind string

const (
	KindTrip    EntityKind = "trip"
	KindVehicle EntityKind = "vehicle"
	KindDriver  EntityKind = "driver"
	KindPath    EntityKind = "path"
	KindRoute   EntityKind = "route"
	KindStop    EntityKind = "stop"
)

// Entity statuses used by the reference adapters and the risk policy.
const (
	EntityScheduled = "scheduled"
	EntityCancelled = "cancelled"
	EntityAvailable = "available"
	EntityAssigned  = "assigned"
)

// Entity is a plain record returned by the directory.
type Entity struct {
	Kind   EntityKind `json:"kind"`
	ID     int64      `json:"id"`
	Label  string     `json:"label"`
	Status string     `json:"status,omitempty"`
	// Time is the HH:MM departure for trips, empty otherwise.
	Time string `json:"time,omitempty"`
	Date string `json:"date,omitempty"`
	// Detail distinguishes same-named entities in option lists.
	Detail string `json:"detail,omitempty"`
}

// Snapshot is the entity view the risk classifier needs.
type Snapshot struct {
	Entity     Entity  `json:"entity"`
	Dependents int     `json:"dependents"` // e.g. confirmed bookings on a trip
	Vehicle    *Entity `json:"vehicle,omitempty"`
	Driver     *Entity `json:"driver,omitempty"`
}

// Intent is the structured record returned by the intent classifier.
// A zero Confidence means none was reported and counts as below any threshold.
type Intent struct {
	Action             string         `json:"action" mapstructure:"action"`
	TargetLabel        string         `json:"target_label,omitempty" mapstructure:"target_label"`
	TargetTime         string         `json:"target_time,omitempty" mapstructure:"target_time"`
	TargetID           *int64         `json:"target_id,omitempty" mapstructure:"target_id"`
	Parameters         map[string]any `json:"parameters,omitempty" mapstructure:"parameters"`
	Confidence         float64        `json:"confidence" mapstructure:"confidence"`
	NeedsClarification bool           `json:"needs_clarification,omitempty" mapstructure:"needs_clarification"`
	Suggestions        []string       `json:"suggestions,omitempty" mapstructure:"suggestions"`
	Rationale          string         `json:"rationale,omitempty" mapstructure:"rationale"`
}

// Param returns a string parameter by name.
func (i *Intent) Param(name string) string {
	if i == nil || i.Parameters == nil {
		return ""
	}
	if v, ok := i.Parameters[name].(string); ok {
		return v
	}
	return ""
}

// ResolutionStatus is the outcome of target resolution.
type ResolutionStatus string

const (
	ResolutionResolved           ResolutionStatus = "resolved"
	ResolutionNotFound           ResolutionStatus = "not_found"
	ResolutionNeedsClarification ResolutionStatus = "needs_clarification"
	ResolutionAmbiguous          ResolutionStatus = "ambiguous"
)

// Resolution tiers, in priority order.
const (
	TierCallerID = iota + 1
	TierClassifierID
	TierClassifierTime
	TierClassifierLabel
	TierTextPattern
)

// Resolution is the canonical reference attached to a turn.
type Resolution struct {
	Kind   EntityKind       `json:"kind"`
	ID     int64            `json:"id,omitempty"`
	Label  string           `json:"label,omitempty"`
	Status ResolutionStatus `json:"status"`
	Tier   int              `json:"tier,omitempty"`
}

// Resolved reports whether the resolution carries a usable id.
func (r *Resolution) Resolved() bool {
	return r != nil && r.Status == ResolutionResolved && r.ID != 0
}
