// README: Fare rate definition for confirmed rides.
package pricing

import (
	"errors"
	"math"
)

var ErrInvalidRate = errors.New("invalid fare rate")

// Rate bounds a fare. Both ends are inclusive.
type Rate struct {
	MinFare  int64
	MaxFare  int64
	Currency string
}

// MaxFareSpan caps MaxFare-MinFare so the inclusive span fits an int draw on
// every platform.
const MaxFareSpan = math.MaxInt32 - 1

// DefaultRate draws fares uniformly from [15, 54].
var DefaultRate = Rate{MinFare: 15, MaxFare: 54, Currency: "USD"}

func (r Rate) Validate() error {
	if r.MinFare < 0 || r.MaxFare < r.MinFare || r.MaxFare-r.MinFare > MaxFareSpan {
		return ErrInvalidRate
	}
	return nil
}

// IntSource is satisfied by *rand.Rand from math/rand/v2.
type IntSource interface {
	IntN(n int) int
}
