// README: Ledger aggregates (driver, customer, ride), ride stages and events.
package ledger

import (
	"time"

	"taxihub/internal/types"
)

type Status string

const (
	// StatusCompleted is the only stored ride status; rides complete on confirmation.
	StatusCompleted Status = "completed"
)

// DefaultDriverLocation is assigned to drivers registered through login.
const DefaultDriverLocation = "Downtown"

const (
	MinRating = 1
	MaxRating = 5
)

type Driver struct {
	ID             types.ID    `json:"id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	TotalEarnings  types.Money `json:"total_earnings"`
	CompletedRides int         `json:"completed_rides"`
	// AvgRating is 0 until the driver has a rated ride.
	AvgRating float64 `json:"avg_rating"`
	Location  string  `json:"location"`
}

type Customer struct {
	ID    types.ID `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
}

type Ride struct {
	ID         types.ID    `json:"id"`
	CustomerID types.ID    `json:"customer_id"`
	DriverID   types.ID    `json:"driver_id"`
	Pickup     string      `json:"pickup"`
	Dropoff    string      `json:"dropoff"`
	Fare       types.Money `json:"fare"`
	Status     Status      `json:"status"`
	Rating     int         `json:"rating"`
	Feedback   string      `json:"feedback"`
	CreatedAt  time.Time   `json:"created_at"`
	RatedAt    *time.Time  `json:"rated_at,omitempty"`
}

func (r Ride) Rated() bool {
	return r.Rating > 0
}

// Stage is the lifecycle position of a ride, derived from its fields.
type Stage string

const (
	StageNone      Stage = "none"
	StageCompleted Stage = "completed"
	StageRated     Stage = "rated"
)

func (r Ride) Stage() Stage {
	if r.Rated() {
		return StageRated
	}
	return StageCompleted
}

// AllowedTransitions represents the ride lifecycle as code. StageRated is terminal.
var AllowedTransitions = map[Stage][]Stage{
	StageNone:      {StageCompleted},
	StageCompleted: {StageRated},
}

func CanTransition(from, to Stage) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

type EventType string

const (
	EventDriverRegistered   EventType = "driver_registered"
	EventCustomerRegistered EventType = "customer_registered"
	EventRideConfirmed      EventType = "ride_confirmed"
	EventRideRated          EventType = "ride_rated"
	EventRideDeleted        EventType = "ride_deleted"
	EventDriverDeleted      EventType = "driver_deleted"
	EventCustomerDeleted    EventType = "customer_deleted"
)

type Event struct {
	Seq       int64        `json:"seq"`
	Type      EventType    `json:"type"`
	ActorRole types.Role   `json:"actor_role,omitempty"`
	ActorID   *types.ID    `json:"actor_id,omitempty"`
	SubjectID types.ID     `json:"subject_id"`
	Fare      *types.Money `json:"fare,omitempty"`
	Rating    int          `json:"rating,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Session is the identity currently using the ledger.
type Session struct {
	Role  types.Role `json:"role"`
	ID    types.ID   `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
}

// CustomerRide is a ride as shown to its customer.
type CustomerRide struct {
	Ride
	DriverName string `json:"driver_name"`
}

// DriverRide is a ride as shown to its driver.
type DriverRide struct {
	Ride
	CustomerName string `json:"customer_name"`
}

type DriverSummary struct {
	Driver         Driver       `json:"driver"`
	TotalEarnings  types.Money  `json:"total_earnings"`
	CompletedRides int          `json:"completed_rides"`
	AvgRating      float64      `json:"avg_rating"`
	Rides          []DriverRide `json:"rides"`
}
