// README: Ledger service tests (login, booking, ride lifecycle, deletion policy).
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"taxihub/internal/ids"
	"taxihub/internal/modules/matching"
	"taxihub/internal/modules/pricing"
	"taxihub/internal/types"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// countingRecommender records calls and delegates to a real engine.
type countingRecommender struct {
	calls  int
	engine *matching.Engine
}

func (c *countingRecommender) Recommend(candidates []matching.Candidate) []matching.Recommendation {
	c.calls++
	return c.engine.Recommend(candidates)
}

// memPublisher collects published events and optionally fails.
type memPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *memPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *memPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// scriptedIDs returns queued ids first, then falls back to a counter.
type scriptedIDs struct {
	queue []types.ID
	next  *ids.Counter
}

func (s *scriptedIDs) Next(prefix string) types.ID {
	if len(s.queue) > 0 {
		id := s.queue[0]
		s.queue = s.queue[1:]
		return id
	}
	return s.next.Next(prefix)
}

type testEnv struct {
	svc  *Service
	rec  *countingRecommender
	pub  *memPublisher
	seed Seed
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithSeed(t, DefaultSeed(), ids.NewCounter())
}

func newTestEnvWithSeed(t *testing.T, seed Seed, gen ids.Generator) *testEnv {
	t.Helper()
	store := NewStore()
	if err := store.Load(seed, testNow); err != nil {
		t.Fatalf("load seed: %v", err)
	}
	rec := &countingRecommender{engine: matching.NewEngine(rand.New(rand.NewPCG(1, 2)), matching.DefaultTopN)}
	pub := &memPublisher{}
	svc := NewService(store, ServiceDeps{
		IDs:         gen,
		Recommender: rec,
		Pricing:     pricing.NewService(pricing.DefaultRate, rand.New(rand.NewPCG(3, 4))),
		Publisher:   pub,
		Now:         func() time.Time { return testNow },
	})
	return &testEnv{svc: svc, rec: rec, pub: pub, seed: seed}
}

func mustDriver(t *testing.T, svc *Service, id types.ID) Driver {
	t.Helper()
	d, err := svc.GetDriver(context.Background(), id)
	if err != nil {
		t.Fatalf("get driver %s: %v", id, err)
	}
	return d
}

func mustConfirm(t *testing.T, svc *Service, customerID, driverID types.ID) Ride {
	t.Helper()
	r, err := svc.ConfirmRide(context.Background(), ConfirmCommand{
		CustomerID: customerID,
		DriverID:   driverID,
		Pickup:     "Home",
		Dropoff:    "Office",
	})
	if err != nil {
		t.Fatalf("confirm %s->%s: %v", customerID, driverID, err)
	}
	return r
}

func assertFloat(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

// ---------------------------------------------------------------------------
// Login / register
// ---------------------------------------------------------------------------

func TestLoginOrRegister_ExistingEmailLogsIn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		sess, err := env.svc.LoginOrRegister(ctx, LoginCommand{Role: types.RoleCustomer, Name: "whatever", Email: "alice@email.com"})
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if sess.ID != "c1" || sess.Name != "Alice Wilson" {
			t.Fatalf("expected seeded c1 Alice Wilson, got %+v", sess)
		}
	}
	if n := len(env.svc.ListCustomers(ctx)); n != 2 {
		t.Fatalf("login must not create customers, have %d", n)
	}
}

func TestLoginOrRegister_IdempotentOnIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.LoginOrRegister(ctx, LoginCommand{Role: types.RoleDriver, Name: "Nina", Email: "nina@taxi.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := env.svc.LoginOrRegister(ctx, LoginCommand{Role: types.RoleDriver, Name: "Nina", Email: "nina@taxi.com"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same email must yield same id: %s vs %s", first.ID, second.ID)
	}
	other, err := env.svc.LoginOrRegister(ctx, LoginCommand{Role: types.RoleDriver, Name: "Omar", Email: "omar@taxi.com"})
	if err != nil {
		t.Fatalf("register other: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("different emails must yield distinct ids, both %s", other.ID)
	}
}

func TestLoginOrRegister_NewDriverDefaults(t *testing.T) {
	env := newTestEnv(t)
	sess, err := env.svc.LoginOrRegister(context.Background(), LoginCommand{Role: types.RoleDriver, Name: "Nina", Email: "nina@taxi.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.ID != "d_000001" {
		t.Fatalf("expected counter id d_000001, got %s", sess.ID)
	}
	d := mustDriver(t, env.svc, sess.ID)
	if d.TotalEarnings.Amount != 0 || d.CompletedRides != 0 || d.AvgRating != 0 {
		t.Fatalf("new driver must have zeroed stats, got %+v", d)
	}
	if d.Location != DefaultDriverLocation {
		t.Fatalf("location = %q, want %q", d.Location, DefaultDriverLocation)
	}
}

func TestLoginOrRegister_EmailIsCaseSensitive(t *testing.T) {
	env := newTestEnv(t)
	sess, err := env.svc.LoginOrRegister(context.Background(), LoginCommand{Role: types.RoleCustomer, Name: "Alice", Email: "Alice@email.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.ID == "c1" {
		t.Fatal("email match must be exact and case-sensitive")
	}
}

func TestLoginOrRegister_RolesAreSeparate(t *testing.T) {
	env := newTestEnv(t)
	sess, err := env.svc.LoginOrRegister(context.Background(), LoginCommand{Role: types.RoleDriver, Name: "Alice", Email: "alice@email.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.Role != types.RoleDriver || sess.ID == "c1" {
		t.Fatalf("driver login must not resolve to a customer, got %+v", sess)
	}
}

func TestLoginOrRegister_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cases := []LoginCommand{
		{Role: types.RoleCustomer, Name: "", Email: "x@y.z"},
		{Role: types.RoleCustomer, Name: "X", Email: ""},
		{Role: types.Role("admin"), Name: "X", Email: "x@y.z"},
		{Role: "", Name: "X", Email: "x@y.z"},
	}
	for _, cmd := range cases {
		if _, err := env.svc.LoginOrRegister(ctx, cmd); err != ErrBadRequest {
			t.Errorf("%+v: expected ErrBadRequest, got %v", cmd, err)
		}
	}
	if _, err := env.svc.CurrentSession(ctx); err != ErrNoSession {
		t.Fatalf("failed login must not set a session, got %v", err)
	}
	if len(env.svc.ListCustomers(ctx)) != 2 || len(env.svc.ListDrivers(ctx)) != 4 {
		t.Fatal("failed login must not create entities")
	}
}

func TestSession_ReplaceAndLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.svc.Logout(ctx); err != ErrNoSession {
		t.Fatalf("logout without session: expected ErrNoSession, got %v", err)
	}
	if _, err := env.svc.LoginOrRegister(ctx, LoginCommand{Role: types.RoleCustomer, Name: "Alice", Email: "alice@email.com"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.svc.LoginOrRegister(ctx, LoginCommand{Role: types.RoleDriver, Name: "John", Email: "john@taxi.com"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	sess, err := env.svc.CurrentSession(ctx)
	if err != nil {
		t.Fatalf("current session: %v", err)
	}
	if sess.Role != types.RoleDriver || sess.ID != "d1" {
		t.Fatalf("second login must replace the first, got %+v", sess)
	}
	if err := env.svc.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := env.svc.CurrentSession(ctx); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession after logout, got %v", err)
	}
}

func TestLoginOrRegister_SkipsTakenID(t *testing.T) {
	gen := &scriptedIDs{queue: []types.ID{"d1", "c1", "d_fresh"}, next: ids.NewCounter()}
	env := newTestEnvWithSeed(t, DefaultSeed(), gen)
	sess, err := env.svc.LoginOrRegister(context.Background(), LoginCommand{Role: types.RoleDriver, Name: "Nina", Email: "nina@taxi.com"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.ID != "d_fresh" {
		t.Fatalf("expected generator redraw to d_fresh, got %s", sess.ID)
	}
	if d := mustDriver(t, env.svc, "d1"); d.Name != "John Smith" {
		t.Fatalf("seeded d1 overwritten: %+v", d)
	}
}

func TestLoginOrRegister_UUIDScheme(t *testing.T) {
	env := newTestEnvWithSeed(t, DefaultSeed(), ids.UUID{})
	ctx := context.Background()
	a, err := env.svc.LoginOrRegister(ctx, LoginCommand{Role: types.RoleCustomer, Name: "A", Email: "a@x"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	b, err := env.svc.LoginOrRegister(ctx, LoginCommand{Role: types.RoleCustomer, Name: "B", Email: "b@x"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if a.ID == b.ID || len(a.ID) < 10 {
		t.Fatalf("unexpected uuid ids %s %s", a.ID, b.ID)
	}
}

// ---------------------------------------------------------------------------
// Booking
// ---------------------------------------------------------------------------

func TestBookRide_RejectsEmptyLocations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cases := []BookCommand{
		{CustomerID: "c1", Pickup: "", Dropoff: "Airport"},
		{CustomerID: "c1", Pickup: "Home", Dropoff: ""},
		{CustomerID: "c1"},
	}
	for _, cmd := range cases {
		if _, err := env.svc.BookRide(ctx, cmd); err != ErrBadRequest {
			t.Errorf("%+v: expected ErrBadRequest, got %v", cmd, err)
		}
	}
	if env.rec.calls != 0 {
		t.Fatalf("recommender must not run on invalid input, ran %d times", env.rec.calls)
	}
}

func TestBookRide_ReturnsRankedDrivers(t *testing.T) {
	env := newTestEnv(t)
	recs, err := env.svc.BookRide(context.Background(), BookCommand{CustomerID: "c1", Pickup: "Home", Dropoff: "Office"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 recommendations from 4 drivers, got %d", len(recs))
	}
	for i := 1; i < len(recs); i++ {
		if recs[i-1].Score < recs[i].Score {
			t.Fatalf("not sorted descending: %v", recs)
		}
	}
	if len(env.svc.ListRides(context.Background())) != 2 {
		t.Fatal("booking must not create a ride")
	}
}

func TestBookRide_UsesRideRatings(t *testing.T) {
	env := newTestEnv(t)
	recs, err := env.svc.BookRide(context.Background(), BookCommand{CustomerID: "c1", Pickup: "Home", Dropoff: "Office"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	for _, r := range recs {
		switch r.Candidate.ID {
		case "d1":
			assertFloat(t, "d1 rating component", r.Components.Rating, 5*30)
		case "d2":
			assertFloat(t, "d2 rating component", r.Components.Rating, 4*30)
		case "d3":
			assertFloat(t, "d3 rating component", r.Components.Rating, 4.7*30)
		case "d4":
			assertFloat(t, "d4 rating component", r.Components.Rating, 4.5*30)
		}
	}
}

func TestBookRide_FewDrivers(t *testing.T) {
	seed := DefaultSeed()
	seed.Drivers = seed.Drivers[:2]
	env := newTestEnvWithSeed(t, seed, ids.NewCounter())
	recs, err := env.svc.BookRide(context.Background(), BookCommand{CustomerID: "c2", Pickup: "A", Dropoff: "B"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
}

func TestBookRide_UnknownCustomer(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.BookRide(context.Background(), BookCommand{CustomerID: "nobody", Pickup: "A", Dropoff: "B"}); err != ErrCustomerNotFound {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Confirm
// ---------------------------------------------------------------------------

func TestConfirmRide_SeedScenario(t *testing.T) {
	env := newTestEnv(t)
	before := mustDriver(t, env.svc, "d3")

	ride := mustConfirm(t, env.svc, "c1", "d3")

	if ride.Fare.Amount < 15 || ride.Fare.Amount > 54 {
		t.Fatalf("fare %d out of [15,54]", ride.Fare.Amount)
	}
	if ride.Status != StatusCompleted || ride.Rating != 0 || ride.Feedback != "" {
		t.Fatalf("new ride must be completed and unrated, got %+v", ride)
	}
	if ride.Pickup != "Home" || ride.Dropoff != "Office" || ride.CustomerID != "c1" || ride.DriverID != "d3" {
		t.Fatalf("unexpected ride fields %+v", ride)
	}
	after := mustDriver(t, env.svc, "d3")
	if after.CompletedRides != before.CompletedRides+1 {
		t.Fatalf("completed rides %d, want %d", after.CompletedRides, before.CompletedRides+1)
	}
	if after.TotalEarnings.Amount != before.TotalEarnings.Amount+ride.Fare.Amount {
		t.Fatalf("earnings %d, want %d", after.TotalEarnings.Amount, before.TotalEarnings.Amount+ride.Fare.Amount)
	}
	stored, err := env.svc.GetRide(context.Background(), ride.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if stored.Fare != ride.Fare {
		t.Fatalf("stored fare %v, returned %v", stored.Fare, ride.Fare)
	}
}

func TestConfirmRide_EarningsMatchFares(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := make(map[types.ID]Driver)
	for _, d := range env.svc.ListDrivers(ctx) {
		base[d.ID] = d
	}

	fares := make(map[types.ID]int64)
	counts := make(map[types.ID]int)
	driverIDs := []types.ID{"d1", "d2", "d3", "d4"}
	for i := 0; i < 40; i++ {
		did := driverIDs[i%len(driverIDs)]
		r := mustConfirm(t, env.svc, "c2", did)
		fares[did] += r.Fare.Amount
		counts[did]++
	}
	for _, did := range driverIDs {
		d := mustDriver(t, env.svc, did)
		if got := d.TotalEarnings.Amount - base[did].TotalEarnings.Amount; got != fares[did] {
			t.Errorf("%s earnings delta %d, want %d", did, got, fares[did])
		}
		if got := d.CompletedRides - base[did].CompletedRides; got != counts[did] {
			t.Errorf("%s completed delta %d, want %d", did, got, counts[did])
		}
	}
}

func TestConfirmRide_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cases := []struct {
		cmd  ConfirmCommand
		want error
	}{
		{ConfirmCommand{CustomerID: "c1", DriverID: "d1", Pickup: "", Dropoff: "B"}, ErrBadRequest},
		{ConfirmCommand{CustomerID: "c1", DriverID: "d1", Pickup: "A", Dropoff: ""}, ErrBadRequest},
		{ConfirmCommand{CustomerID: "", DriverID: "d1", Pickup: "A", Dropoff: "B"}, ErrBadRequest},
		{ConfirmCommand{CustomerID: "c1", DriverID: "ghost", Pickup: "A", Dropoff: "B"}, ErrDriverNotFound},
		{ConfirmCommand{CustomerID: "ghost", DriverID: "d1", Pickup: "A", Dropoff: "B"}, ErrCustomerNotFound},
	}
	for _, tc := range cases {
		if _, err := env.svc.ConfirmRide(ctx, tc.cmd); err != tc.want {
			t.Errorf("%+v: expected %v, got %v", tc.cmd, tc.want, err)
		}
	}
	if n := len(env.svc.ListRides(ctx)); n != 2 {
		t.Fatalf("failed confirms must not create rides, have %d", n)
	}
	if d := mustDriver(t, env.svc, "d1"); d.TotalEarnings.Amount != 2450 || d.CompletedRides != 120 {
		t.Fatalf("failed confirms must not touch driver stats, got %+v", d)
	}
}

func TestConfirmRide_ConcurrentCallers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	before := mustDriver(t, env.svc, "d4")

	const callers = 16
	var wg sync.WaitGroup
	rides := make(chan Ride, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			r, err := env.svc.ConfirmRide(ctx, ConfirmCommand{CustomerID: "c2", DriverID: "d4", Pickup: "A", Dropoff: "B"})
			if err != nil {
				t.Errorf("confirm: %v", err)
				return
			}
			rides <- r
		}()
	}
	close(start)
	wg.Wait()
	close(rides)

	var sum int64
	seen := make(map[types.ID]bool)
	for r := range rides {
		if seen[r.ID] {
			t.Fatalf("duplicate ride id %s", r.ID)
		}
		seen[r.ID] = true
		sum += r.Fare.Amount
	}
	after := mustDriver(t, env.svc, "d4")
	if after.CompletedRides != before.CompletedRides+callers {
		t.Fatalf("completed %d, want %d", after.CompletedRides, before.CompletedRides+callers)
	}
	if after.TotalEarnings.Amount != before.TotalEarnings.Amount+sum {
		t.Fatalf("earnings %d, want %d", after.TotalEarnings.Amount, before.TotalEarnings.Amount+sum)
	}
}

// ---------------------------------------------------------------------------
// Rating
// ---------------------------------------------------------------------------

func TestRateRide_FreshRatingRecomputesAverage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ride := mustConfirm(t, env.svc, "c1", "d1")
	rated, err := env.svc.RateRide(ctx, RateCommand{RideID: ride.ID, Rating: 5, Feedback: "Great"})
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if rated.Rating != 5 || rated.Feedback != "Great" || rated.RatedAt == nil {
		t.Fatalf("unexpected rated ride %+v", rated)
	}
	// r1 (5) and the new ride (5)
	assertFloat(t, "d1 avg", mustDriver(t, env.svc, "d1").AvgRating, 5)

	second := mustConfirm(t, env.svc, "c2", "d1")
	if _, err := env.svc.RateRide(ctx, RateCommand{RideID: second.ID, Rating: 2}); err != nil {
		t.Fatalf("rate: %v", err)
	}
	assertFloat(t, "d1 avg", mustDriver(t, env.svc, "d1").AvgRating, 4)
}

func TestRateRide_ReRatingRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// r1 is seeded with rating 5.
	if _, err := env.svc.RateRide(ctx, RateCommand{RideID: "r1", Rating: 5, Feedback: "Great"}); err != ErrAlreadyRated {
		t.Fatalf("expected ErrAlreadyRated, got %v", err)
	}
	if _, err := env.svc.RateRide(ctx, RateCommand{RideID: "r1", Rating: 1, Feedback: "Changed my mind"}); err != ErrAlreadyRated {
		t.Fatalf("expected ErrAlreadyRated, got %v", err)
	}
	r1, _ := env.svc.GetRide(ctx, "r1")
	if r1.Rating != 5 || r1.Feedback != "Excellent driver!" {
		t.Fatalf("r1 must be unchanged, got %+v", r1)
	}
	assertFloat(t, "d1 avg", mustDriver(t, env.svc, "d1").AvgRating, 4.8)

	ride := mustConfirm(t, env.svc, "c1", "d2")
	if _, err := env.svc.RateRide(ctx, RateCommand{RideID: ride.ID, Rating: 3}); err != nil {
		t.Fatalf("first rating: %v", err)
	}
	if _, err := env.svc.RateRide(ctx, RateCommand{RideID: ride.ID, Rating: 5}); err != ErrAlreadyRated {
		t.Fatalf("second rating: expected ErrAlreadyRated, got %v", err)
	}
	assertFloat(t, "d2 avg", mustDriver(t, env.svc, "d2").AvgRating, 3.5)
}

func TestRateRide_OutOfRangeRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ride := mustConfirm(t, env.svc, "c1", "d3")
	before := mustDriver(t, env.svc, "d3")

	for _, rating := range []int{0, 6, -1, 100} {
		if _, err := env.svc.RateRide(ctx, RateCommand{RideID: ride.ID, Rating: rating, Feedback: "x"}); err != ErrInvalidRating {
			t.Errorf("rating %d: expected ErrInvalidRating, got %v", rating, err)
		}
	}
	got, _ := env.svc.GetRide(ctx, ride.ID)
	if got.Rating != 0 || got.Feedback != "" {
		t.Fatalf("ride mutated by rejected rating: %+v", got)
	}
	if after := mustDriver(t, env.svc, "d3"); after != before {
		t.Fatalf("driver mutated by rejected rating: %+v vs %+v", after, before)
	}
}

func TestRateRide_AverageMatchesMean(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ratings := []int{1, 5, 3, 4, 2, 5}
	for _, rating := range ratings {
		r := mustConfirm(t, env.svc, "c2", "d4")
		if _, err := env.svc.RateRide(ctx, RateCommand{RideID: r.ID, Rating: rating}); err != nil {
			t.Fatalf("rate: %v", err)
		}
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	assertFloat(t, "d4 avg", mustDriver(t, env.svc, "d4").AvgRating, float64(sum)/float64(len(ratings)))
}

func TestRateRide_UnknownRide(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.RateRide(context.Background(), RateCommand{RideID: "nope", Rating: 4}); err != ErrRideNotFound {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
}

func TestRateRide_DanglingDriverIsNoOp(t *testing.T) {
	seed := DefaultSeed()
	seed.Rides = append(seed.Rides, SeedRide{ID: "r9", CustomerID: "c2", DriverID: "d_gone", Pickup: "A", Dropoff: "B", Fare: 20})
	env := newTestEnvWithSeed(t, seed, ids.NewCounter())
	ctx := context.Background()

	if _, err := env.svc.RateRide(ctx, RateCommand{RideID: "r9", Rating: 4, Feedback: "ok"}); err != ErrDriverNotFound {
		t.Fatalf("expected ErrDriverNotFound, got %v", err)
	}
	r9, _ := env.svc.GetRide(ctx, "r9")
	if r9.Rated() || r9.Feedback != "" {
		t.Fatalf("ride must stay unrated, got %+v", r9)
	}
	rides, err := env.svc.CustomerRides(ctx, "c2")
	if err != nil {
		t.Fatalf("customer rides: %v", err)
	}
	if len(rides) != 1 || rides[0].DriverName != "" {
		t.Fatalf("dangling driver must show empty name, got %+v", rides)
	}
}

// ---------------------------------------------------------------------------
// Deletion
// ---------------------------------------------------------------------------

func TestDeleteDriver_RestrictedWhileReferenced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.svc.DeleteDriver(ctx, "d1"); err != ErrHasRides {
		t.Fatalf("expected ErrHasRides for d1, got %v", err)
	}
	if err := env.svc.DeleteDriver(ctx, "d3"); err != nil {
		t.Fatalf("delete d3: %v", err)
	}
	if _, err := env.svc.GetDriver(ctx, "d3"); err != ErrDriverNotFound {
		t.Fatalf("expected ErrDriverNotFound after delete, got %v", err)
	}
	if err := env.svc.DeleteDriver(ctx, "d3"); err != ErrDriverNotFound {
		t.Fatalf("second delete: expected ErrDriverNotFound, got %v", err)
	}
	if _, err := env.svc.ConfirmRide(ctx, ConfirmCommand{CustomerID: "c1", DriverID: "d3", Pickup: "A", Dropoff: "B"}); err != ErrDriverNotFound {
		t.Fatalf("confirm with deleted driver: expected ErrDriverNotFound, got %v", err)
	}
}

func TestDeleteCustomer_RestrictedWhileReferenced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.svc.DeleteCustomer(ctx, "c1"); err != ErrHasRides {
		t.Fatalf("expected ErrHasRides for c1, got %v", err)
	}
	if err := env.svc.DeleteCustomer(ctx, "c2"); err != nil {
		t.Fatalf("delete c2: %v", err)
	}
	if _, err := env.svc.GetCustomer(ctx, "c2"); err != ErrCustomerNotFound {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestDeleteAfterRidesRemoved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, id := range []types.ID{"r1", "r2"} {
		if err := env.svc.DeleteRide(ctx, id); err != nil {
			t.Fatalf("delete ride %s: %v", id, err)
		}
	}
	if err := env.svc.DeleteDriver(ctx, "d1"); err != nil {
		t.Fatalf("delete d1 once unreferenced: %v", err)
	}
	if err := env.svc.DeleteCustomer(ctx, "c1"); err != nil {
		t.Fatalf("delete c1 once unreferenced: %v", err)
	}
}

func TestDeleteRide_RecomputesAverageKeepsEarnings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	extra := mustConfirm(t, env.svc, "c2", "d1")
	if _, err := env.svc.RateRide(ctx, RateCommand{RideID: extra.ID, Rating: 3}); err != nil {
		t.Fatalf("rate: %v", err)
	}
	assertFloat(t, "d1 avg", mustDriver(t, env.svc, "d1").AvgRating, 4)
	earnings := mustDriver(t, env.svc, "d1").TotalEarnings

	if err := env.svc.DeleteRide(ctx, "r1"); err != nil {
		t.Fatalf("delete r1: %v", err)
	}
	assertFloat(t, "d1 avg after deleting r1", mustDriver(t, env.svc, "d1").AvgRating, 3)

	if err := env.svc.DeleteRide(ctx, extra.ID); err != nil {
		t.Fatalf("delete extra: %v", err)
	}
	d1 := mustDriver(t, env.svc, "d1")
	assertFloat(t, "d1 avg with no rated rides", d1.AvgRating, 3)
	if d1.TotalEarnings != earnings {
		t.Fatalf("earnings must not change on ride delete: %v vs %v", d1.TotalEarnings, earnings)
	}
	if err := env.svc.DeleteRide(ctx, extra.ID); err != ErrRideNotFound {
		t.Fatalf("expected ErrRideNotFound, got %v", err)
	}
}

func TestDeleteDriver_ClearsOwnSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.LoginOrRegister(ctx, LoginCommand{Role: types.RoleDriver, Name: "Mike", Email: "mike@taxi.com"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.svc.DeleteDriver(ctx, "d3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.svc.CurrentSession(ctx); err != ErrNoSession {
		t.Fatalf("expected session cleared, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Dashboards and events
// ---------------------------------------------------------------------------

func TestCustomerRides(t *testing.T) {
	env := newTestEnv(t)
	rides, err := env.svc.CustomerRides(context.Background(), "c1")
	if err != nil {
		t.Fatalf("customer rides: %v", err)
	}
	if len(rides) != 2 {
		t.Fatalf("expected 2 rides, got %d", len(rides))
	}
	if rides[0].ID != "r1" || rides[0].DriverName != "John Smith" {
		t.Fatalf("unexpected first ride %+v", rides[0])
	}
	if rides[1].ID != "r2" || rides[1].DriverName != "Sarah Johnson" {
		t.Fatalf("unexpected second ride %+v", rides[1])
	}
	if _, err := env.svc.CustomerRides(context.Background(), "ghost"); err != ErrCustomerNotFound {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestDriverSummary(t *testing.T) {
	env := newTestEnv(t)
	sum, err := env.svc.DriverSummary(context.Background(), "d1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TotalEarnings.Amount != 2450 || sum.CompletedRides != 120 {
		t.Fatalf("unexpected totals %+v", sum)
	}
	assertFloat(t, "avg", sum.AvgRating, 4.8)
	if len(sum.Rides) != 1 || sum.Rides[0].CustomerName != "Alice Wilson" || sum.Rides[0].Feedback != "Excellent driver!" {
		t.Fatalf("unexpected rides %+v", sum.Rides)
	}
	if _, err := env.svc.DriverSummary(context.Background(), "ghost"); err != ErrDriverNotFound {
		t.Fatalf("expected ErrDriverNotFound, got %v", err)
	}
}

func TestEvents_RecordedAndPublished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sess, err := env.svc.LoginOrRegister(ctx, LoginCommand{Role: types.RoleCustomer, Name: "Zed", Email: "zed@x"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ride := mustConfirm(t, env.svc, sess.ID, "d2")
	if _, err := env.svc.RateRide(ctx, RateCommand{RideID: ride.ID, Rating: 4}); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if err := env.svc.DeleteRide(ctx, ride.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []EventType{EventCustomerRegistered, EventRideConfirmed, EventRideRated, EventRideDeleted}
	got := env.pub.types()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	log := env.svc.Events(ctx)
	if len(log) != len(want) {
		t.Fatalf("event log has %d entries, want %d", len(log), len(want))
	}
	for i, e := range log {
		if e.Seq != int64(i+1) {
			t.Errorf("event %d seq = %d", i, e.Seq)
		}
	}
	if log[1].Fare == nil || log[1].Fare.Amount != ride.Fare.Amount {
		t.Fatalf("confirm event must carry the fare, got %+v", log[1])
	}
	if log[2].Rating != 4 {
		t.Fatalf("rate event must carry the rating, got %+v", log[2])
	}
}

func TestEvents_PublishFailureDoesNotFailOperation(t *testing.T) {
	env := newTestEnv(t)
	env.pub.err = errors.New("broker down")
	if _, err := env.svc.ConfirmRide(context.Background(), ConfirmCommand{CustomerID: "c1", DriverID: "d1", Pickup: "A", Dropoff: "B"}); err != nil {
		t.Fatalf("confirm must succeed when publishing fails: %v", err)
	}
	if len(env.svc.Events(context.Background())) != 1 {
		t.Fatal("event must still be recorded in the log")
	}
}

func TestEvents_PublishedInSeqOrderUnderConcurrency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const callers = 20
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			driverID := []types.ID{"d1", "d2", "d3", "d4"}[i%4]
			if _, err := env.svc.ConfirmRide(ctx, ConfirmCommand{CustomerID: "c2", DriverID: driverID, Pickup: "A", Dropoff: "B"}); err != nil {
				t.Errorf("confirm: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	env.pub.mu.Lock()
	defer env.pub.mu.Unlock()
	if len(env.pub.events) != callers {
		t.Fatalf("published %d events, want %d", len(env.pub.events), callers)
	}
	for i, e := range env.pub.events {
		if e.Seq != int64(i+1) {
			t.Fatalf("publish position %d carries seq %d", i, e.Seq)
		}
	}
}
