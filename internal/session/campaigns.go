package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/voxdial/voxdial/internal/calls"
)

// StaticVariants is an in-memory campaign → variants registry, loaded once
// at startup.
type StaticVariants struct {
	mu         sync.RWMutex
	byCampaign map[string][]CampaignVariant
}

// NewStaticVariants creates an empty registry.
func NewStaticVariants() *StaticVariants {
	return &StaticVariants{byCampaign: make(map[string][]CampaignVariant)}
}

// Register replaces the variant set for a campaign.
func (s *StaticVariants) Register(campaignID string, variants ...CampaignVariant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byCampaign[campaignID] = append([]CampaignVariant(nil), variants...)
}

// VariantsFor returns the active variants for a campaign. An unknown
// campaign is a configuration fault.
func (s *StaticVariants) VariantsFor(_ context.Context, campaignID string) ([]CampaignVariant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	variants, ok := s.byCampaign[campaignID]
	if !ok || len(variants) == 0 {
		return nil, &calls.ConfigurationError{Subject: "campaign", Reason: fmt.Sprintf("no variants registered for %s", campaignID)}
	}
	out := make([]CampaignVariant, len(variants))
	copy(out, variants)
	return out, nil
}

// LoadVariantsFile reads a JSON file mapping campaign ids to variant lists.
func LoadVariantsFile(path string) (*StaticVariants, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read campaigns file: %w", err)
	}
	var raw map[string][]CampaignVariant
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("session: parse campaigns file: %w", err)
	}
	s := NewStaticVariants()
	for campaignID, variants := range raw {
		s.Register(campaignID, variants...)
	}
	return s, nil
}
