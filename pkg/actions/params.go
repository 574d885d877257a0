// Package actions holds the typed parameter structs of the reference business
// actions and the decoding shared by every handler implementation.
package actions

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Parameter names shared by the router, the wizards and the handlers.
const (
	ParamVehicleID     = "vehicle_id"
	ParamDriverID      = "driver_id"
	ParamName          = "name"
	ParamLatitude      = "latitude"
	ParamLongitude     = "longitude"
	ParamStopIDs       = "stop_ids"
	ParamPathID        = "path_id"
	ParamShiftTime     = "shift_time"
	ParamDirection     = "direction"
	ParamRouteID       = "route_id"
	ParamTripDate      = "trip_date"
	ParamDepartureTime = "departure_time"
)

// CreateStop parameters.
type CreateStop struct {
	Name      string   `mapstructure:"name"`
	Latitude  *float64 `mapstructure:"latitude"`
	Longitude *float64 `mapstructure:"longitude"`
}

// CreatePath parameters.
type CreatePath struct {
	Name    string  `mapstructure:"name"`
	StopIDs []int64 `mapstructure:"stop_ids"`
}

// CreateRoute parameters.
type CreateRoute struct {
	PathID    int64  `mapstructure:"path_id"`
	Name      string `mapstructure:"name"`
	ShiftTime string `mapstructure:"shift_time"`
	Direction string `mapstructure:"direction"`
}

// CreateTrip parameters.
type CreateTrip struct {
	RouteID       int64  `mapstructure:"route_id"`
	TripDate      string `mapstructure:"trip_date"`
	DepartureTime string `mapstructure:"departure_time"`
}

// Assignment parameters for assign/remove of vehicles and drivers.
type Assignment struct {
	VehicleID int64 `mapstructure:"vehicle_id"`
	DriverID  int64 `mapstructure:"driver_id"`
}

// Decode maps loosely typed params (JSON round trips turn ints into floats,
// classifiers send "42" for 42) into out.
func Decode(params map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to build params decoder: %w", err)
	}
	if err := dec.Decode(params); err != nil {
		return fmt.Errorf("invalid action parameters: %w", err)
	}
	return nil
}
