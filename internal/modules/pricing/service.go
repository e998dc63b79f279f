// README: Pricing service quotes fares for confirmed rides.
package pricing

import (
	"context"

	"taxihub/internal/types"
)

type Service struct {
	rate Rate
	rng  IntSource
}

func NewService(rate Rate, rng IntSource) *Service {
	return &Service{rate: rate, rng: rng}
}

// Quote returns a fare drawn uniformly from the configured rate's inclusive range.
// Pickup and dropoff labels are not geocoded, so nothing about the trip feeds the price.
func (s *Service) Quote(ctx context.Context) (types.Money, error) {
	if err := s.rate.Validate(); err != nil {
		return types.Money{}, err
	}
	span := int(s.rate.MaxFare-s.rate.MinFare) + 1
	amount := s.rate.MinFare + int64(s.rng.IntN(span))
	return types.Money{Amount: amount, Currency: s.rate.Currency}, nil
}

func (s *Service) Rate() Rate {
	return s.rate
}
