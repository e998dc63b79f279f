// README: Recommendation engine ranks drivers for a booking request.
package matching

import (
	"math"
	"sort"
)

// NoiseSource stands in for the distance/ETA and pricing signals. *rand.Rand
// from math/rand/v2 satisfies it.
type NoiseSource interface {
	Float64() float64
}

type Engine struct {
	noise NoiseSource
	topN  int
}

func NewEngine(noise NoiseSource, topN int) *Engine {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Engine{noise: noise, topN: topN}
}

// Recommend scores every candidate and returns the best topN, highest score
// first. Two noise values are drawn per candidate, proximity then cost, in
// input order. Candidates are not modified.
func (e *Engine) Recommend(candidates []Candidate) []Recommendation {
	if len(candidates) == 0 {
		return []Recommendation{}
	}
	scored := make([]Recommendation, 0, len(candidates))
	for _, c := range candidates {
		proximity := e.noise.Float64() * noiseScale
		cost := e.noise.Float64() * noiseScale
		comp := ScoreCandidate(c, proximity, cost)
		scored = append(scored, Recommendation{Candidate: c, Score: comp.Total(), Components: comp})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > e.topN {
		scored = scored[:e.topN]
	}
	return scored
}

// ScoreCandidate computes the composite score for given noise values in [0,100).
func ScoreCandidate(c Candidate, proximityNoise, costNoise float64) Components {
	return Components{
		Rating:     EffectiveRating(c) * ratingWeight,
		Proximity:  proximityBase - proximityNoise*proximityWeight,
		Cost:       costNoise * costWeight,
		Experience: math.Min(float64(c.CompletedRides)/experienceCap, 1) * experienceWeight,
	}
}

// EffectiveRating is the mean of the candidate's ride ratings, or the stored
// average when none of its rides are rated.
func EffectiveRating(c Candidate) float64 {
	if len(c.Ratings) == 0 {
		return c.AvgRating
	}
	sum := 0
	for _, r := range c.Ratings {
		sum += r
	}
	return float64(sum) / float64(len(c.Ratings))
}
