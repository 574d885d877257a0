package wizard

import (
	"github.com/aretw0/dispatch/pkg/actions"
	"github.com/aretw0/dispatch/pkg/domain"
)

// FieldType says how a step validates and canonicalizes its answer.
type FieldType int

const (
	FieldText FieldType = iota
	FieldTime
	FieldDate
	FieldDirection
	FieldID
	FieldCoordinate
	FieldList
)

// Skip is the literal answer that leaves an optional coordinate empty.
const Skip = "skip"

// Step collects one field.
type Step struct {
	Field  string
	Type   FieldType
	Prompt string
	// Kind is the entity an ID or List step refers to; names are resolved through the directory.
	Kind domain.EntityKind
	// Min and Max bound a coordinate.
	Min, Max float64
}

// Definition is the ordered step list of one wizard type.
type Definition struct {
	Type  string
	Title string
	Steps []Step
}

var definitions = map[string]Definition{
	domain.ActionCreateStop: {
		Type:  domain.ActionCreateStop,
		Title: "create a stop",
		Steps: []Step{
			{Field: actions.ParamName, Type: FieldText, Prompt: "What is the name of the new stop?"},
			{Field: actions.ParamLatitude, Type: FieldCoordinate, Min: -90, Max: 90,
				Prompt: "What is its latitude? (-90 to 90, or skip)"},
			{Field: actions.ParamLongitude, Type: FieldCoordinate, Min: -180, Max: 180,
				Prompt: "What is its longitude? (-180 to 180, or skip)"},
		},
	},
	domain.ActionCreatePath: {
		Type:  domain.ActionCreatePath,
		Title: "create a path",
		Steps: []Step{
			{Field: actions.ParamName, Type: FieldText, Prompt: "What is the name of the new path?"},
			{Field: actions.ParamStopIDs, Type: FieldList, Kind: domain.KindStop,
				Prompt: "Which stops does it visit, in order? (comma-separated ids or names)"},
		},
	},
	domain.ActionCreateRoute: {
		Type:  domain.ActionCreateRoute,
		Title: "create a route",
		Steps: []Step{
			{Field: actions.ParamPathID, Type: FieldID, Kind: domain.KindPath, Prompt: "Which path does the route follow? (id or name)"},
			{Field: actions.ParamName, Type: FieldText, Prompt: "What is the name of the new route?"},
			{Field: actions.ParamShiftTime, Type: FieldTime, Prompt: "When does the shift start? (HH:MM)"},
			{Field: actions.ParamDirection, Type: FieldDirection, Prompt: "Which direction, UP or DOWN?"},
		},
	},
	domain.ActionCreateTrip: {
		Type:  domain.ActionCreateTrip,
		Title: "schedule a trip",
		Steps: []Step{
			{Field: actions.ParamRouteID, Type: FieldID, Kind: domain.KindRoute, Prompt: "Which route is the trip on? (id or name)"},
			{Field: actions.ParamTripDate, Type: FieldDate, Prompt: "On what date? (YYYY-MM-DD)"},
			{Field: actions.ParamDepartureTime, Type: FieldTime, Prompt: "At what departure time? (HH:MM)"},
		},
	},
}

// Lookup returns the definition of a wizard type.
func Lookup(wizardType string) (Definition, bool) {
	d, ok := definitions[wizardType]
	return d, ok
}

// Total is the number of field steps.
func (d Definition) Total() int {
	return len(d.Steps)
}

// next returns the index of the first step at or after from with no value.
func (d Definition) next(values map[string]string, from int) int {
	for i := from; i < len(d.Steps); i++ {
		if _, ok := values[d.Steps[i].Field]; !ok {
			return i
		}
	}
	return len(d.Steps)
}
