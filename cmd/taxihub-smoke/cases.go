// README: Smoke cases: session, booking, confirmation, rating, deletion policy, concurrency and Redis events.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"taxihub/internal/events"
	"taxihub/internal/modules/ledger"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

type Runner struct {
	cfg    Config
	httpc  *http.Client
	redis  *redis.Client
	events <-chan ledger.Event

	// scenario state shared by consecutive cases
	customerID string
	driverID   string
	rideID     string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
		if stream, err := events.Subscribe(ctx, r.redis, r.cfg.RedisChannel); err == nil {
			r.events = stream
		} else {
			fmt.Printf("redis subscribe failed: %v\n", err)
		}
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{
			Name: "Env: API health",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: StatusFail, Note: err.Error()}
				}
				return Result{Status: StatusPass}
			},
		},
		{
			Name: "Session: login seeded customer",
			Run: func(ctx context.Context, r *Runner) Result {
				var sess ledger.Session
				res := r.expect(ctx, http.MethodPost, "/api/session",
					map[string]string{"role": "customer", "name": "Alice Wilson", "email": "alice@email.com"},
					http.StatusOK, &sess)
				r.customerID = string(sess.ID)
				return res
			},
		},
		{
			Name: "Book: empty pickup rejected",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodPost, "/api/rides/recommendations",
					map[string]string{"pickup": "", "dropoff": "Office"}, http.StatusBadRequest, nil)
			},
		},
		{
			Name: "Book: top drivers recommended",
			Run: func(ctx context.Context, r *Runner) Result {
				var resp struct {
					Drivers []struct {
						DriverID string  `json:"driver_id"`
						Score    float64 `json:"score"`
					} `json:"drivers"`
				}
				res := r.expect(ctx, http.MethodPost, "/api/rides/recommendations",
					map[string]string{"pickup": "Home", "dropoff": "Office"}, http.StatusOK, &resp)
				if res.Status != StatusPass {
					return res
				}
				if len(resp.Drivers) == 0 {
					return Result{Status: StatusFail, Note: "no drivers recommended"}
				}
				for i := 1; i < len(resp.Drivers); i++ {
					if resp.Drivers[i-1].Score < resp.Drivers[i].Score {
						return Result{Status: StatusFail, Note: "recommendations not sorted"}
					}
				}
				r.driverID = resp.Drivers[0].DriverID
				res.Note = fmt.Sprintf("top=%s score=%.1f", r.driverID, resp.Drivers[0].Score)
				return res
			},
		},
		{
			Name: "Confirm: ride with top driver",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.driverID == "" {
					return Result{Status: StatusSkip, Note: "no driver chosen"}
				}
				var ride ledger.Ride
				res := r.expect(ctx, http.MethodPost, "/api/rides",
					map[string]string{"driver_id": r.driverID, "pickup": "Home", "dropoff": "Office"},
					http.StatusCreated, &ride)
				r.rideID = string(ride.ID)
				if res.Status == StatusPass {
					res.Note = fmt.Sprintf("ride=%s fare=%s", ride.ID, ride.Fare)
				}
				return res
			},
		},
		{
			Name: "Rate: out of range rejected",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: StatusSkip, Note: "no ride confirmed"}
				}
				return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/rating",
					map[string]any{"rating": 6}, http.StatusBadRequest, nil)
			},
		},
		{
			Name: "Rate: first rating stored",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: StatusSkip, Note: "no ride confirmed"}
				}
				return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/rating",
					map[string]any{"rating": 5, "feedback": "Great"}, http.StatusOK, nil)
			},
		},
		{
			Name: "Rate: re-rating rejected",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.rideID == "" {
					return Result{Status: StatusSkip, Note: "no ride confirmed"}
				}
				return r.expect(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/rating",
					map[string]any{"rating": 1}, http.StatusConflict, nil)
			},
		},
		{
			Name: "Events: ride_confirmed on Redis",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.events == nil {
					return Result{Status: StatusSkip, Note: "redis not configured"}
				}
				return waitForEvent(ctx, r.events, ledger.EventRideConfirmed, r.rideID)
			},
		},
		{
			Name: "Concurrency: parallel confirms keep driver totals",
			Run: func(ctx context.Context, r *Runner) Result {
				return concurrentConfirm(ctx, r)
			},
		},
		{
			Name: "Delete: driver with rides restricted",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.driverID == "" {
					return Result{Status: StatusSkip, Note: "no driver chosen"}
				}
				return r.expect(ctx, http.MethodDelete, "/api/drivers/"+r.driverID, nil, http.StatusConflict, nil)
			},
		},
		{
			Name: "Driver: summary lists rated ride",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.driverID == "" {
					return Result{Status: StatusSkip, Note: "no driver chosen"}
				}
				var drivers []ledger.Driver
				if res := r.expect(ctx, http.MethodGet, "/api/drivers", nil, http.StatusOK, &drivers); res.Status != StatusPass {
					return res
				}
				email := ""
				for _, d := range drivers {
					if string(d.ID) == r.driverID {
						email = d.Email
					}
				}
				if res := r.expect(ctx, http.MethodPost, "/api/session",
					map[string]string{"role": "driver", "name": "smoke", "email": email}, http.StatusOK, nil); res.Status != StatusPass {
					return res
				}
				var sum ledger.DriverSummary
				res := r.expect(ctx, http.MethodGet, "/api/drivers/me/summary", nil, http.StatusOK, &sum)
				if res.Status != StatusPass {
					return res
				}
				for _, ride := range sum.Rides {
					if string(ride.ID) == r.rideID && ride.Rating == 5 {
						res.Note = fmt.Sprintf("earnings=%s avg=%.2f", sum.TotalEarnings, sum.AvgRating)
						return res
					}
				}
				return Result{Status: StatusFail, Note: "rated ride missing from summary"}
			},
		},
		{
			Name: "Session: logout",
			Run: func(ctx context.Context, r *Runner) Result {
				return r.expect(ctx, http.MethodDelete, "/api/session", nil, http.StatusNoContent, nil)
			},
		},
	}
}

// expect sends one JSON request and passes when the status matches. When out
// is non-nil the body is decoded into it.
func (r *Runner) expect(ctx context.Context, method, path string, body any, want int, out any) Result {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	latency := time.Since(start)

	if resp.StatusCode != want {
		return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("status=%d body=%s", resp.StatusCode, bytes.TrimSpace(raw))}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return Result{Status: StatusFail, Latency: latency, Note: "decode: " + err.Error()}
		}
	}
	return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
}

func waitForEvent(ctx context.Context, stream <-chan ledger.Event, typ ledger.EventType, subject string) Result {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for {
		select {
		case e, ok := <-stream:
			if !ok {
				return Result{Status: StatusFail, Note: "event stream closed"}
			}
			if e.Type == typ && string(e.SubjectID) == subject {
				return Result{Status: StatusPass, Note: fmt.Sprintf("seq=%d", e.Seq)}
			}
		case <-ctx.Done():
			return Result{Status: StatusFail, Note: fmt.Sprintf("no %s event for %s", typ, subject)}
		}
	}
}

// concurrentConfirm fires parallel confirms for one driver and checks the
// driver's earnings and ride count moved by exactly the confirmed fares.
func concurrentConfirm(ctx context.Context, r *Runner) Result {
	if r.driverID == "" || r.customerID == "" {
		return Result{Status: StatusSkip, Note: "no scenario state"}
	}
	if res := r.expect(ctx, http.MethodPost, "/api/session",
		map[string]string{"role": "customer", "name": "Alice Wilson", "email": "alice@email.com"}, http.StatusOK, nil); res.Status != StatusPass {
		return res
	}
	before, res := r.driver(ctx, r.driverID)
	if res.Status != StatusPass {
		return res
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fares int64
		succ  int
	)
	start := time.Now()
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var ride ledger.Ride
			res := r.expect(ctx, http.MethodPost, "/api/rides",
				map[string]string{"driver_id": r.driverID, "pickup": "A", "dropoff": "B"}, http.StatusCreated, &ride)
			if res.Status != StatusPass {
				return
			}
			mu.Lock()
			fares += ride.Fare.Amount
			succ++
			mu.Unlock()
		}()
	}
	wg.Wait()
	latency := time.Since(start)

	after, res := r.driver(ctx, r.driverID)
	if res.Status != StatusPass {
		return res
	}
	if after.CompletedRides-before.CompletedRides != succ || after.TotalEarnings.Amount-before.TotalEarnings.Amount != fares {
		return Result{Status: StatusFail, Latency: latency, Note: fmt.Sprintf("rides +%d earnings +%d, want +%d/+%d",
			after.CompletedRides-before.CompletedRides, after.TotalEarnings.Amount-before.TotalEarnings.Amount, succ, fares)}
	}
	return Result{Status: StatusPass, Latency: latency, Note: fmt.Sprintf("confirmed=%d", succ)}
}

func (r *Runner) driver(ctx context.Context, id string) (ledger.Driver, Result) {
	var drivers []ledger.Driver
	res := r.expect(ctx, http.MethodGet, "/api/drivers", nil, http.StatusOK, &drivers)
	if res.Status != StatusPass {
		return ledger.Driver{}, res
	}
	for _, d := range drivers {
		if string(d.ID) == id {
			return d, res
		}
	}
	return ledger.Driver{}, Result{Status: StatusFail, Note: "driver " + id + " not listed"}
}
