// README: Recommendation candidates, scores and scoring weights.
package matching

import "taxihub/internal/types"

// Candidate is a driver as seen by the recommender.
type Candidate struct {
	ID             types.ID
	Name           string
	Location       string
	AvgRating      float64
	CompletedRides int
	// Ratings holds the non-zero ratings of the driver's rides.
	Ratings []int
}

// Components is the per-term breakdown of a score.
type Components struct {
	Rating     float64 `json:"rating"`
	Proximity  float64 `json:"proximity"`
	Cost       float64 `json:"cost"`
	Experience float64 `json:"experience"`
}

func (c Components) Total() float64 {
	return c.Rating + c.Proximity + c.Cost + c.Experience
}

type Recommendation struct {
	Candidate  Candidate
	Score      float64
	Components Components
}

const (
	// DefaultTopN is how many drivers a booking surfaces.
	DefaultTopN = 3

	ratingWeight = 30.0
	// proximityBase minus proximityWeight*noise; closer drivers would score higher.
	proximityBase   = 100.0
	proximityWeight = 0.3
	costWeight      = 0.2
	// experienceCap is the ride count at which the experience term saturates.
	experienceCap    = 100.0
	experienceWeight = 20.0
	// noiseScale maps a [0,1) draw onto the [0,100) placeholder signal.
	noiseScale = 100.0
)
