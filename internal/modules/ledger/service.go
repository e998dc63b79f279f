// README: Ledger service implements login, booking, ride lifecycle and deletion.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"taxihub/internal/ids"
	"taxihub/internal/modules/matching"
	"taxihub/internal/types"
)

type Recommender interface {
	Recommend(candidates []matching.Candidate) []matching.Recommendation
}

type Pricing interface {
	Quote(ctx context.Context) (types.Money, error)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

var (
	ErrBadRequest       = errors.New("bad request")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrNoSession        = errors.New("no active session")
	ErrDriverNotFound   = errors.New("driver not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrRideNotFound     = errors.New("ride not found")
	ErrAlreadyRated     = errors.New("ride already rated")
	ErrHasRides         = errors.New("entity is referenced by rides")
)

const (
	driverPrefix   = "d"
	customerPrefix = "c"
	ridePrefix     = "r"
	// maxIDAttempts bounds redraws when a generated id is already taken.
	maxIDAttempts = 16
)

type ServiceDeps struct {
	IDs         ids.Generator
	Recommender Recommender
	Pricing     Pricing
	Publisher   Publisher
	Logger      *slog.Logger
	Now         func() time.Time
}

// Service is the single actor over the store: every operation runs to
// completion under mu, so ride and driver updates apply together or not at all.
// pubMu orders publishing; see unlockAndPublish.
type Service struct {
	mu          sync.Mutex
	pubMu       sync.Mutex
	store       *Store
	ids         ids.Generator
	recommender Recommender
	pricing     Pricing
	publisher   Publisher
	log         *slog.Logger
	now         func() time.Time
	session     *Session
}

func NewService(store *Store, deps ServiceDeps) *Service {
	s := &Service{
		store:       store,
		ids:         deps.IDs,
		recommender: deps.Recommender,
		pricing:     deps.Pricing,
		publisher:   deps.Publisher,
		log:         deps.Logger,
		now:         deps.Now,
	}
	if s.ids == nil {
		s.ids = ids.NewCounter()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type LoginCommand struct {
	Role  types.Role
	Name  string
	Email string
}

type BookCommand struct {
	CustomerID types.ID
	Pickup     string
	Dropoff    string
}

type ConfirmCommand struct {
	CustomerID types.ID
	DriverID   types.ID
	Pickup     string
	Dropoff    string
}

type RateCommand struct {
	RideID   types.ID
	Rating   int
	Feedback string
}

// LoginOrRegister looks up the entity of cmd.Role whose email matches exactly,
// creating it when absent, and makes it the active session.
func (s *Service) LoginOrRegister(ctx context.Context, cmd LoginCommand) (Session, error) {
	if cmd.Name == "" || cmd.Email == "" || !cmd.Role.Valid() {
		return Session{}, ErrBadRequest
	}

	s.mu.Lock()
	var (
		sess    Session
		pending []Event
	)
	switch cmd.Role {
	case types.RoleDriver:
		d, ok := s.store.driverByEmail(cmd.Email)
		if !ok {
			id, err := s.nextID(driverPrefix)
			if err != nil {
				s.mu.Unlock()
				return Session{}, err
			}
			nd := Driver{
				ID:            id,
				Name:          cmd.Name,
				Email:         cmd.Email,
				TotalEarnings: types.Money{Currency: types.DefaultCurrency},
				Location:      DefaultDriverLocation,
			}
			if err := s.store.CreateDriver(nd); err != nil {
				s.mu.Unlock()
				return Session{}, err
			}
			d, _ = s.store.driver(id)
			pending = append(pending, s.record(EventDriverRegistered, types.RoleDriver, &id, id))
		}
		sess = Session{Role: types.RoleDriver, ID: d.ID, Name: d.Name, Email: d.Email}
	case types.RoleCustomer:
		c, ok := s.store.customerByEmail(cmd.Email)
		if !ok {
			id, err := s.nextID(customerPrefix)
			if err != nil {
				s.mu.Unlock()
				return Session{}, err
			}
			if err := s.store.CreateCustomer(Customer{ID: id, Name: cmd.Name, Email: cmd.Email}); err != nil {
				s.mu.Unlock()
				return Session{}, err
			}
			c, _ = s.store.customer(id)
			pending = append(pending, s.record(EventCustomerRegistered, types.RoleCustomer, &id, id))
		}
		sess = Session{Role: types.RoleCustomer, ID: c.ID, Name: c.Name, Email: c.Email}
	}
	current := sess
	s.session = &current
	s.unlockAndPublish(ctx, pending)
	return sess, nil
}

func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ErrNoSession
	}
	s.session = nil
	return nil
}

func (s *Service) CurrentSession(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Session{}, ErrNoSession
	}
	return *s.session, nil
}

// BookRide validates the request and returns the recommended drivers. No ride
// is created until ConfirmRide.
func (s *Service) BookRide(ctx context.Context, cmd BookCommand) ([]matching.Recommendation, error) {
	if cmd.Pickup == "" || cmd.Dropoff == "" {
		return nil, ErrBadRequest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.store.customer(cmd.CustomerID); !ok {
		return nil, ErrCustomerNotFound
	}
	return s.recommender.Recommend(s.candidates()), nil
}

// ConfirmRide creates a completed ride with a quoted fare and credits the
// driver with the fare and one more completed ride.
func (s *Service) ConfirmRide(ctx context.Context, cmd ConfirmCommand) (Ride, error) {
	if cmd.CustomerID == "" || cmd.DriverID == "" || cmd.Pickup == "" || cmd.Dropoff == "" {
		return Ride{}, ErrBadRequest
	}

	s.mu.Lock()
	if _, ok := s.store.customer(cmd.CustomerID); !ok {
		s.mu.Unlock()
		return Ride{}, ErrCustomerNotFound
	}
	d, ok := s.store.driver(cmd.DriverID)
	if !ok {
		s.mu.Unlock()
		return Ride{}, ErrDriverNotFound
	}
	fare, err := s.pricing.Quote(ctx)
	if err != nil {
		s.mu.Unlock()
		return Ride{}, err
	}
	id, err := s.nextID(ridePrefix)
	if err != nil {
		s.mu.Unlock()
		return Ride{}, err
	}
	ride := Ride{
		ID:         id,
		CustomerID: cmd.CustomerID,
		DriverID:   cmd.DriverID,
		Pickup:     cmd.Pickup,
		Dropoff:    cmd.Dropoff,
		Fare:       fare,
		Status:     StatusCompleted,
		CreatedAt:  s.now(),
	}
	if !CanTransition(StageNone, ride.Stage()) {
		s.mu.Unlock()
		return Ride{}, ErrBadRequest
	}
	if err := s.store.CreateRide(ride); err != nil {
		s.mu.Unlock()
		return Ride{}, err
	}
	d.TotalEarnings = d.TotalEarnings.Add(fare)
	d.CompletedRides++

	customerID := cmd.CustomerID
	e := s.record(EventRideConfirmed, types.RoleCustomer, &customerID, id, func(e *Event) { e.Fare = &fare })
	s.unlockAndPublish(ctx, []Event{e})
	return ride, nil
}

// RateRide stores a rating and feedback on an unrated ride and recomputes the
// driver's average over all of the driver's rated rides.
func (s *Service) RateRide(ctx context.Context, cmd RateCommand) (Ride, error) {
	if cmd.Rating < MinRating || cmd.Rating > MaxRating {
		return Ride{}, ErrInvalidRating
	}

	s.mu.Lock()
	r, ok := s.store.ride(cmd.RideID)
	if !ok {
		s.mu.Unlock()
		return Ride{}, ErrRideNotFound
	}
	if !CanTransition(r.Stage(), StageRated) {
		s.mu.Unlock()
		return Ride{}, ErrAlreadyRated
	}
	d, ok := s.store.driver(r.DriverID)
	if !ok {
		s.mu.Unlock()
		return Ride{}, ErrDriverNotFound
	}

	now := s.now()
	r.Rating = cmd.Rating
	r.Feedback = cmd.Feedback
	r.RatedAt = &now
	s.refreshAvgRating(d)

	customerID := r.CustomerID
	e := s.record(EventRideRated, types.RoleCustomer, &customerID, r.ID, func(e *Event) { e.Rating = cmd.Rating })
	out := *r
	s.unlockAndPublish(ctx, []Event{e})
	return out, nil
}

// DeleteRide removes a ride. The driver's average is recomputed from the
// remaining rated rides; earnings and ride count are historical and stay.
func (s *Service) DeleteRide(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	r, ok := s.store.ride(id)
	if !ok {
		s.mu.Unlock()
		return ErrRideNotFound
	}
	driverID := r.DriverID
	s.store.deleteRide(id)
	if d, ok := s.store.driver(driverID); ok {
		s.refreshAvgRating(d)
	}
	e := s.record(EventRideDeleted, "", nil, id)
	s.unlockAndPublish(ctx, []Event{e})
	return nil
}

// DeleteDriver removes a driver that no ride references.
func (s *Service) DeleteDriver(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	if _, ok := s.store.driver(id); !ok {
		s.mu.Unlock()
		return ErrDriverNotFound
	}
	if len(s.store.ridesByDriver(id)) > 0 {
		s.mu.Unlock()
		return ErrHasRides
	}
	s.store.deleteDriver(id)
	s.dropSessionFor(types.RoleDriver, id)
	e := s.record(EventDriverDeleted, "", nil, id)
	s.unlockAndPublish(ctx, []Event{e})
	return nil
}

// DeleteCustomer removes a customer that no ride references.
func (s *Service) DeleteCustomer(ctx context.Context, id types.ID) error {
	s.mu.Lock()
	if _, ok := s.store.customer(id); !ok {
		s.mu.Unlock()
		return ErrCustomerNotFound
	}
	if len(s.store.ridesByCustomer(id)) > 0 {
		s.mu.Unlock()
		return ErrHasRides
	}
	s.store.deleteCustomer(id)
	s.dropSessionFor(types.RoleCustomer, id)
	e := s.record(EventCustomerDeleted, "", nil, id)
	s.unlockAndPublish(ctx, []Event{e})
	return nil
}

func (s *Service) GetDriver(ctx context.Context, id types.ID) (Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.store.driver(id)
	if !ok {
		return Driver{}, ErrDriverNotFound
	}
	return *d, nil
}

func (s *Service) GetCustomer(ctx context.Context, id types.ID) (Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.store.customer(id)
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return *c, nil
}

func (s *Service) GetRide(ctx context.Context, id types.ID) (Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.store.ride(id)
	if !ok {
		return Ride{}, ErrRideNotFound
	}
	return *r, nil
}

func (s *Service) ListDrivers(ctx context.Context) []Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Drivers()
}

func (s *Service) ListCustomers(ctx context.Context) []Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Customers()
}

func (s *Service) ListRides(ctx context.Context) []Ride {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Rides()
}

func (s *Service) Events(ctx context.Context) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Events()
}

// CustomerRides lists a customer's rides with driver names. A ride whose
// driver is gone keeps an empty driver name.
func (s *Service) CustomerRides(ctx context.Context, customerID types.ID) ([]CustomerRide, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.store.customer(customerID); !ok {
		return nil, ErrCustomerNotFound
	}
	rides := s.store.ridesByCustomer(customerID)
	out := make([]CustomerRide, 0, len(rides))
	for _, r := range rides {
		cr := CustomerRide{Ride: r}
		if d, ok := s.store.driver(r.DriverID); ok {
			cr.DriverName = d.Name
		}
		out = append(out, cr)
	}
	return out, nil
}

func (s *Service) DriverSummary(ctx context.Context, driverID types.ID) (DriverSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.store.driver(driverID)
	if !ok {
		return DriverSummary{}, ErrDriverNotFound
	}
	rides := s.store.ridesByDriver(driverID)
	out := DriverSummary{
		Driver:         *d,
		TotalEarnings:  d.TotalEarnings,
		CompletedRides: d.CompletedRides,
		AvgRating:      d.AvgRating,
		Rides:          make([]DriverRide, 0, len(rides)),
	}
	for _, r := range rides {
		dr := DriverRide{Ride: r}
		if c, ok := s.store.customer(r.CustomerID); ok {
			dr.CustomerName = c.Name
		}
		out.Rides = append(out.Rides, dr)
	}
	return out, nil
}

// candidates builds the recommender input in driver insertion order. Caller holds mu.
func (s *Service) candidates() []matching.Candidate {
	drivers := s.store.Drivers()
	out := make([]matching.Candidate, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, matching.Candidate{
			ID:             d.ID,
			Name:           d.Name,
			Location:       d.Location,
			AvgRating:      d.AvgRating,
			CompletedRides: d.CompletedRides,
			Ratings:        s.store.ratingsByDriver(d.ID),
		})
	}
	return out
}

// refreshAvgRating sets the mean of the driver's rated rides. With no rated
// rides the last known average stays. Caller holds mu.
func (s *Service) refreshAvgRating(d *Driver) {
	ratings := s.store.ratingsByDriver(d.ID)
	if len(ratings) == 0 {
		return
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	d.AvgRating = float64(sum) / float64(len(ratings))
}

// nextID draws ids until one is free in every collection. Caller holds mu.
func (s *Service) nextID(prefix string) (types.ID, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := s.ids.Next(prefix)
		if !s.store.idTaken(id) {
			return id, nil
		}
	}
	return "", ErrDuplicateID
}

func (s *Service) dropSessionFor(role types.Role, id types.ID) {
	if s.session != nil && s.session.Role == role && s.session.ID == id {
		s.session = nil
	}
}

// record appends an event to the log and returns it for publishing. Caller holds mu.
func (s *Service) record(t EventType, role types.Role, actor *types.ID, subject types.ID, opts ...func(*Event)) Event {
	e := Event{
		Type:      t,
		ActorRole: role,
		ActorID:   actor,
		SubjectID: subject,
		CreatedAt: s.now(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	s.store.AppendEvent(&e)
	return e
}

// unlockAndPublish releases mu and hands events to the publisher. pubMu is
// taken while mu is still held, so publishers see events in Seq order even
// under concurrent callers. A slow publisher therefore delays the next write.
func (s *Service) unlockAndPublish(ctx context.Context, events []Event) {
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()
	s.publish(ctx, events)
}

func (s *Service) publish(ctx context.Context, events []Event) {
	if s.publisher == nil {
		return
	}
	for _, e := range events {
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.log.Warn("publish ledger event", "type", e.Type, "seq", e.Seq, "err", err)
		}
	}
}

// Stats is a point-in-time size report used by the health endpoint.
type Stats struct {
	Drivers   int `json:"drivers"`
	Customers int `json:"customers"`
	Rides     int `json:"rides"`
	Events    int `json:"events"`
}

func (s *Service) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, c, r := s.store.Counts()
	return Stats{Drivers: d, Customers: c, Rides: r, Events: len(s.store.events)}
}
