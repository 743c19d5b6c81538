package analysis

import "strings"

type Tier string

const (
	TierFree     Tier = "free"
	TierPersonal Tier = "personal"
	TierPro      Tier = "pro"
	TierInstant  Tier = "instant"
	TierBeta     Tier = "beta"
)

// ParseTier normalizes a caller-supplied tier name. Unknown names map to free.
func ParseTier(s string) Tier {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierFree, TierPersonal, TierPro, TierInstant, TierBeta:
		return t
	}
	return TierFree
}

// Feature is a named capability whose presence in a tier's profile controls
// whether the matching fields are emitted.
type Feature string

const (
	FeatureParticipantTones     Feature = "participantTones"
	FeatureRedFlags             Feature = "redFlags"
	FeatureKeyQuotes            Feature = "keyQuotes"
	FeatureAdvancedToneAnalysis Feature = "advancedToneAnalysis"
	FeatureCommunicationStyles  Feature = "communicationStyles"
	FeatureTensionContributions Feature = "tensionContributions"
	FeatureConversationDynamics Feature = "conversationDynamics"
	FeatureMessageDominance     Feature = "messageDominance"
	FeaturePowerDynamics        Feature = "powerDynamics"
	FeatureHistoricalPatterns   Feature = "historicalPatterns"
	FeatureManipulationScore    Feature = "manipulationScore"
)

// Enrichment selects how much red-flag synthesis a tier receives.
type Enrichment string

const (
	EnrichNone        Enrichment = "none"
	EnrichAttribution Enrichment = "attribution"
	EnrichFull        Enrichment = "full"
)

type TierProfile struct {
	Features   []Feature  `json:"features"`
	Enrichment Enrichment `json:"enrichment"`
}

func (p TierProfile) Has(f Feature) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

// FeatureTable maps each tier to its profile. It is treated as read-only.
type FeatureTable map[Tier]TierProfile

// Profile returns the profile for t, falling back to the free profile for
// tiers the table does not know.
func (ft FeatureTable) Profile(t Tier) TierProfile {
	if p, ok := ft[t]; ok {
		return p
	}
	return ft[TierFree]
}

var (
	freeFeatures     = []Feature{FeatureKeyQuotes}
	personalFeatures = []Feature{
		FeatureParticipantTones,
		FeatureRedFlags,
		FeatureKeyQuotes,
		FeatureAdvancedToneAnalysis,
		FeatureCommunicationStyles,
	}
	proFeatures = append(append([]Feature{}, personalFeatures...),
		FeatureTensionContributions,
		FeatureConversationDynamics,
		FeatureMessageDominance,
		FeaturePowerDynamics,
		FeatureHistoricalPatterns,
		FeatureManipulationScore,
	)
)

// DefaultFeatures returns a fresh copy of the built-in feature table.
func DefaultFeatures() FeatureTable {
	clone := func(fs []Feature) []Feature {
		out := make([]Feature, len(fs))
		copy(out, fs)
		return out
	}
	return FeatureTable{
		TierFree:     {Features: clone(freeFeatures), Enrichment: EnrichNone},
		TierPersonal: {Features: clone(personalFeatures), Enrichment: EnrichAttribution},
		TierPro:      {Features: clone(proFeatures), Enrichment: EnrichFull},
		TierInstant:  {Features: clone(proFeatures), Enrichment: EnrichFull},
		TierBeta:     {Features: clone(proFeatures), Enrichment: EnrichFull},
	}
}
