// README: In-memory ledger store; collections keep insertion order for stable listing.
package ledger

import (
	"errors"

	"taxihub/internal/types"
)

var ErrDuplicateID = errors.New("duplicate id")

// collection is an insertion-ordered map of aggregates. Not safe for
// concurrent use; Service serialises access.
type collection[T any] struct {
	items map[types.ID]*T
	order []types.ID
}

func newCollection[T any]() *collection[T] {
	return &collection[T]{items: make(map[types.ID]*T)}
}

func (c *collection[T]) add(id types.ID, item *T) error {
	if _, exists := c.items[id]; exists {
		return ErrDuplicateID
	}
	c.items[id] = item
	c.order = append(c.order, id)
	return nil
}

func (c *collection[T]) get(id types.ID) (*T, bool) {
	item, ok := c.items[id]
	return item, ok
}

func (c *collection[T]) has(id types.ID) bool {
	_, ok := c.items[id]
	return ok
}

func (c *collection[T]) remove(id types.ID) bool {
	if _, exists := c.items[id]; !exists {
		return false
	}
	delete(c.items, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// each visits items in insertion order until fn returns false.
func (c *collection[T]) each(fn func(*T) bool) {
	for _, id := range c.order {
		if !fn(c.items[id]) {
			return
		}
	}
}

func (c *collection[T]) snapshot() []T {
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.items[id])
	}
	return out
}

func (c *collection[T]) len() int {
	return len(c.order)
}

// Store owns the drivers, customers and rides of one running process, plus the
// append-only event log.
type Store struct {
	drivers   *collection[Driver]
	customers *collection[Customer]
	rides     *collection[Ride]
	events    []Event
	eventSeq  int64
}

func NewStore() *Store {
	return &Store{
		drivers:   newCollection[Driver](),
		customers: newCollection[Customer](),
		rides:     newCollection[Ride](),
	}
}

func (s *Store) CreateDriver(d Driver) error {
	return s.drivers.add(d.ID, &d)
}

func (s *Store) CreateCustomer(c Customer) error {
	return s.customers.add(c.ID, &c)
}

func (s *Store) CreateRide(r Ride) error {
	return s.rides.add(r.ID, &r)
}

func (s *Store) driver(id types.ID) (*Driver, bool) {
	return s.drivers.get(id)
}

func (s *Store) customer(id types.ID) (*Customer, bool) {
	return s.customers.get(id)
}

func (s *Store) ride(id types.ID) (*Ride, bool) {
	return s.rides.get(id)
}

// idTaken reports whether any collection already holds id.
func (s *Store) idTaken(id types.ID) bool {
	return s.drivers.has(id) || s.customers.has(id) || s.rides.has(id)
}

func (s *Store) driverByEmail(email string) (*Driver, bool) {
	var found *Driver
	s.drivers.each(func(d *Driver) bool {
		if d.Email == email {
			found = d
			return false
		}
		return true
	})
	return found, found != nil
}

func (s *Store) customerByEmail(email string) (*Customer, bool) {
	var found *Customer
	s.customers.each(func(c *Customer) bool {
		if c.Email == email {
			found = c
			return false
		}
		return true
	})
	return found, found != nil
}

func (s *Store) ridesWhere(match func(*Ride) bool) []Ride {
	var out []Ride
	s.rides.each(func(r *Ride) bool {
		if match(r) {
			out = append(out, *r)
		}
		return true
	})
	return out
}

func (s *Store) ridesByDriver(id types.ID) []Ride {
	return s.ridesWhere(func(r *Ride) bool { return r.DriverID == id })
}

func (s *Store) ridesByCustomer(id types.ID) []Ride {
	return s.ridesWhere(func(r *Ride) bool { return r.CustomerID == id })
}

// ratingsByDriver returns the non-zero ratings of a driver's rides.
func (s *Store) ratingsByDriver(id types.ID) []int {
	var out []int
	s.rides.each(func(r *Ride) bool {
		if r.DriverID == id && r.Rated() {
			out = append(out, r.Rating)
		}
		return true
	})
	return out
}

func (s *Store) deleteDriver(id types.ID) bool {
	return s.drivers.remove(id)
}

func (s *Store) deleteCustomer(id types.ID) bool {
	return s.customers.remove(id)
}

func (s *Store) deleteRide(id types.ID) bool {
	return s.rides.remove(id)
}

func (s *Store) Drivers() []Driver {
	return s.drivers.snapshot()
}

func (s *Store) Customers() []Customer {
	return s.customers.snapshot()
}

func (s *Store) Rides() []Ride {
	return s.rides.snapshot()
}

// AppendEvent assigns the next sequence number and records e.
func (s *Store) AppendEvent(e *Event) {
	s.eventSeq++
	e.Seq = s.eventSeq
	s.events = append(s.events, *e)
}

func (s *Store) Events() []Event {
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Counts reports how many drivers, customers and rides are held.
func (s *Store) Counts() (drivers, customers, rides int) {
	return s.drivers.len(), s.customers.len(), s.rides.len()
}
