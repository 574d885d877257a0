package memory

import "github.com/aretw0/dispatch/pkg/domain"

// Seed IDs, stable so tests and demos can refer to them.
const (
	SeedHarborLoop      int64 = 101 // 8 bookings, no vehicle or driver
	SeedAirportAM       int64 = 102 // same label as SeedAirportPM
	SeedAirportPM       int64 = 103
	SeedCityShuttle     int64 = 104 // fully assigned
	SeedNightOwl        int64 = 105 // already cancelled
	SeedVehicleBus12    int64 = 201
	SeedVehicleBus7     int64 = 202
	SeedVehicleVan3     int64 = 203
	SeedDriverRivera    int64 = 301
	SeedDriverOkafor    int64 = 302
	SeedDriverLindqvist int64 = 303
	SeedStopCentral     int64 = 401
	SeedStopHarbor      int64 = 402
	SeedPathCoastal     int64 = 501
	SeedRouteCoastal    int64 = 601
)

// SeedFleet returns a small fleet for demos and end-to-end tests.
func SeedFleet() *Fleet {
	f := NewFleet()

	f.AddVehicle(SeedVehicleBus12, "Bus 12")
	f.AddVehicle(SeedVehicleBus7, "Bus 7")
	f.AddVehicle(SeedVehicleVan3, "Van 3")
	f.AddDriver(SeedDriverRivera, "Ana Rivera")
	f.AddDriver(SeedDriverOkafor, "Sam Okafor")
	f.AddDriver(SeedDriverLindqvist, "Eli Lindqvist")

	f.AddStop(Stop{ID: SeedStopCentral, Name: "Central Station"})
	f.AddStop(Stop{ID: SeedStopHarbor, Name: "Harbor Gate"})
	f.AddPath(Path{ID: SeedPathCoastal, Name: "Coastal", StopIDs: []int64{SeedStopCentral, SeedStopHarbor}})
	f.AddRoute(Route{ID: SeedRouteCoastal, Name: "Coastal Line", PathID: SeedPathCoastal, ShiftTime: "06:00", Direction: "UP"})

	f.AddTrip(Trip{ID: SeedHarborLoop, Label: "Harbor Loop", RouteID: SeedRouteCoastal, Date: "2026-03-02", Time: "09:15", Bookings: 8})
	f.AddTrip(Trip{ID: SeedAirportAM, Label: "Airport Express", RouteID: SeedRouteCoastal, Date: "2026-03-02", Time: "08:00", Bookings: 3})
	f.AddTrip(Trip{ID: SeedAirportPM, Label: "Airport Express", RouteID: SeedRouteCoastal, Date: "2026-03-02", Time: "17:30"})
	f.AddTrip(Trip{
		ID: SeedCityShuttle, Label: "City Shuttle", RouteID: SeedRouteCoastal, Date: "2026-03-02", Time: "10:45",
		VehicleID: SeedVehicleBus12, DriverID: SeedDriverRivera, Bookings: 12,
	})
	f.AddTrip(Trip{ID: SeedNightOwl, Label: "Night Owl", RouteID: SeedRouteCoastal, Date: "2026-03-02", Time: "23:30", Status: domain.EntityCancelled})

	return f
}
