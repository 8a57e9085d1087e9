package session

import (
	"math"
	"math/rand"
	"sync"

	"github.com/voxdial/voxdial/internal/calls"
)

// CampaignVariant is one script/personality configuration in a campaign's
// A/B test. Variants are immutable once the campaign is live.
type CampaignVariant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Personality string `json:"personality"`
	Script      string `json:"script"`
	Language    string `json:"language"`
	Control     bool   `json:"control"`
}

type variantStats struct {
	assigned  int
	successes int
}

// VariantSelector assigns a campaign variant per call. During cold start
// (total assignments below variants x sample size) it spreads assignments
// round-robin toward the least-sampled variant; after that it draws a
// Thompson-style sample per variant from a smoothed success-rate
// distribution and picks the highest.
type VariantSelector struct {
	mu      sync.Mutex
	sampleN int
	stats   map[string]map[string]*variantStats
	rng     *rand.Rand
}

// NewVariantSelector creates a selector. sampleN is the per-variant cold
// start budget; zero or negative falls back to 20.
func NewVariantSelector(sampleN int, seed int64) *VariantSelector {
	if sampleN <= 0 {
		sampleN = 20
	}
	return &VariantSelector{
		sampleN: sampleN,
		stats:   make(map[string]map[string]*variantStats),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Select picks a variant for the campaign and records the assignment.
func (s *VariantSelector) Select(campaignID string, variants []CampaignVariant) (CampaignVariant, error) {
	if len(variants) == 0 {
		return CampaignVariant{}, &calls.ConfigurationError{Subject: "campaign", Reason: "no variants configured"}
	}
	if len(variants) == 1 {
		s.recordAssignment(campaignID, variants[0].ID)
		return variants[0], nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	perCampaign := s.stats[campaignID]
	if perCampaign == nil {
		perCampaign = make(map[string]*variantStats, len(variants))
		s.stats[campaignID] = perCampaign
	}
	total := 0
	for _, v := range variants {
		st := perCampaign[v.ID]
		if st == nil {
			st = &variantStats{}
			perCampaign[v.ID] = st
		}
		total += st.assigned
	}

	var chosen CampaignVariant
	if total < len(variants)*s.sampleN {
		// Cold start: keep assignment counts within one of each other.
		least := -1
		for _, v := range variants {
			if least == -1 || perCampaign[v.ID].assigned < least {
				least = perCampaign[v.ID].assigned
				chosen = v
			}
		}
	} else {
		best := math.Inf(-1)
		for _, v := range variants {
			score := s.sampleScore(perCampaign[v.ID])
			if score > best {
				best = score
				chosen = v
			}
		}
	}

	perCampaign[chosen.ID].assigned++
	return chosen, nil
}

// sampleScore draws from a normal approximation of the variant's smoothed
// Beta posterior. The cold start guarantees every variant has samples
// before this path runs.
func (s *VariantSelector) sampleScore(st *variantStats) float64 {
	n := float64(st.assigned) + 2
	mean := (float64(st.successes) + 1) / n
	stddev := math.Sqrt(mean * (1 - mean) / n)
	return mean + s.rng.NormFloat64()*stddev
}

// RecordOutcome feeds a completed call's result back into the variant's
// success statistics.
func (s *VariantSelector) RecordOutcome(campaignID, variantID string, success bool) {
	if !success {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	perCampaign := s.stats[campaignID]
	if perCampaign == nil {
		return
	}
	if st := perCampaign[variantID]; st != nil {
		st.successes++
	}
}

func (s *VariantSelector) recordAssignment(campaignID, variantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perCampaign := s.stats[campaignID]
	if perCampaign == nil {
		perCampaign = make(map[string]*variantStats)
		s.stats[campaignID] = perCampaign
	}
	st := perCampaign[variantID]
	if st == nil {
		st = &variantStats{}
		perCampaign[variantID] = st
	}
	st.assigned++
}

// Release undoes one assignment when the session it was made for never
// materialized, so abandoned creates do not skew the cold start spread.
func (s *VariantSelector) Release(campaignID, variantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perCampaign := s.stats[campaignID]
	if perCampaign == nil {
		return
	}
	if st := perCampaign[variantID]; st != nil && st.assigned > 0 {
		st.assigned--
	}
}

// Assignments reports how many calls each variant of the campaign has
// received so far.
func (s *VariantSelector) Assignments(campaignID string) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for id, st := range s.stats[campaignID] {
		out[id] = st.assigned
	}
	return out
}
