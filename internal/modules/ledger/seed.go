// README: Startup seed data: the built-in demo dataset and a YAML loader.
package ledger

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"taxihub/internal/types"
)

type Seed struct {
	Currency  string         `yaml:"currency"`
	Drivers   []SeedDriver   `yaml:"drivers"`
	Customers []SeedCustomer `yaml:"customers"`
	Rides     []SeedRide     `yaml:"rides"`
}

type SeedDriver struct {
	ID             string  `yaml:"id"`
	Name           string  `yaml:"name"`
	Email          string  `yaml:"email"`
	TotalEarnings  int64   `yaml:"total_earnings"`
	CompletedRides int     `yaml:"completed_rides"`
	AvgRating      float64 `yaml:"avg_rating"`
	Location       string  `yaml:"location"`
}

type SeedCustomer struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type SeedRide struct {
	ID         string `yaml:"id"`
	CustomerID string `yaml:"customer_id"`
	DriverID   string `yaml:"driver_id"`
	Pickup     string `yaml:"pickup"`
	Dropoff    string `yaml:"dropoff"`
	Fare       int64  `yaml:"fare"`
	Rating     int    `yaml:"rating"`
	Feedback   string `yaml:"feedback"`
}

// DefaultSeed is the demo dataset every fresh process starts with. Driver
// stats are historical totals and are loaded as given, so d1 and d2 carry
// averages (4.8, 4.6) that differ from the mean of their seeded rides (5, 4).
// Recommendations score by the ride mean; summaries show the stored average
// until the next rating or ride deletion recomputes it.
func DefaultSeed() Seed {
	return Seed{
		Currency: types.DefaultCurrency,
		Drivers: []SeedDriver{
			{ID: "d1", Name: "John Smith", Email: "john@taxi.com", TotalEarnings: 2450, CompletedRides: 120, AvgRating: 4.8, Location: "Downtown"},
			{ID: "d2", Name: "Sarah Johnson", Email: "sarah@taxi.com", TotalEarnings: 1980, CompletedRides: 95, AvgRating: 4.6, Location: "Midtown"},
			{ID: "d3", Name: "Mike Chen", Email: "mike@taxi.com", TotalEarnings: 2100, CompletedRides: 110, AvgRating: 4.7, Location: "Uptown"},
			{ID: "d4", Name: "Lisa Brown", Email: "lisa@taxi.com", TotalEarnings: 1850, CompletedRides: 85, AvgRating: 4.5, Location: "Harbor"},
		},
		Customers: []SeedCustomer{
			{ID: "c1", Name: "Alice Wilson", Email: "alice@email.com"},
			{ID: "c2", Name: "Bob Davis", Email: "bob@email.com"},
		},
		Rides: []SeedRide{
			{ID: "r1", CustomerID: "c1", DriverID: "d1", Pickup: "Central Station", Dropoff: "Airport", Fare: 35, Rating: 5, Feedback: "Excellent driver!"},
			{ID: "r2", CustomerID: "c1", DriverID: "d2", Pickup: "Park Avenue", Dropoff: "Beach", Fare: 28, Rating: 4, Feedback: "Good service"},
		},
	}
}

// LoadSeedFile reads a YAML seed. An empty path yields DefaultSeed.
func LoadSeedFile(path string) (Seed, error) {
	if path == "" {
		return DefaultSeed(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if seed.Currency == "" {
		seed.Currency = types.DefaultCurrency
	}
	return seed, nil
}

// Load inserts seed entities into the store. Rides may reference entities the
// seed does not define; lookups on them report not found.
func (s *Store) Load(seed Seed, at time.Time) error {
	cur := seed.Currency
	if cur == "" {
		cur = types.DefaultCurrency
	}
	for _, d := range seed.Drivers {
		if d.ID == "" || d.Email == "" {
			return fmt.Errorf("seed driver %q: %w", d.ID, ErrBadRequest)
		}
		if d.TotalEarnings < 0 || d.CompletedRides < 0 || d.AvgRating < 0 || d.AvgRating > MaxRating {
			return fmt.Errorf("seed driver %s: stats out of range: %w", d.ID, ErrBadRequest)
		}
		loc := d.Location
		if loc == "" {
			loc = DefaultDriverLocation
		}
		err := s.CreateDriver(Driver{
			ID:             types.ID(d.ID),
			Name:           d.Name,
			Email:          d.Email,
			TotalEarnings:  types.Money{Amount: d.TotalEarnings, Currency: cur},
			CompletedRides: d.CompletedRides,
			AvgRating:      d.AvgRating,
			Location:       loc,
		})
		if err != nil {
			return fmt.Errorf("seed driver %s: %w", d.ID, err)
		}
	}
	for _, c := range seed.Customers {
		if c.ID == "" || c.Email == "" {
			return fmt.Errorf("seed customer %q: %w", c.ID, ErrBadRequest)
		}
		if err := s.CreateCustomer(Customer{ID: types.ID(c.ID), Name: c.Name, Email: c.Email}); err != nil {
			return fmt.Errorf("seed customer %s: %w", c.ID, err)
		}
	}
	for _, r := range seed.Rides {
		if r.ID == "" {
			return fmt.Errorf("seed ride: %w", ErrBadRequest)
		}
		if r.Rating < 0 || r.Rating > MaxRating {
			return fmt.Errorf("seed ride %s: %w", r.ID, ErrInvalidRating)
		}
		if r.Fare < 0 {
			return fmt.Errorf("seed ride %s: negative fare: %w", r.ID, ErrBadRequest)
		}
		ride := Ride{
			ID:         types.ID(r.ID),
			CustomerID: types.ID(r.CustomerID),
			DriverID:   types.ID(r.DriverID),
			Pickup:     r.Pickup,
			Dropoff:    r.Dropoff,
			Fare:       types.Money{Amount: r.Fare, Currency: cur},
			Status:     StatusCompleted,
			Rating:     r.Rating,
			Feedback:   r.Feedback,
			CreatedAt:  at,
		}
		if ride.Rated() {
			ratedAt := at
			ride.RatedAt = &ratedAt
		}
		if err := s.CreateRide(ride); err != nil {
			return fmt.Errorf("seed ride %s: %w", r.ID, err)
		}
	}
	return nil
}
