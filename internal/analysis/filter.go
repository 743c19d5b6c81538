package analysis

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

const (
	freePatternLimit = 2
	freeQuoteLimit   = 2
)

type FilterOptions struct {
	Tier     Tier
	Me       string
	Them     string
	Features FeatureTable // nil means DefaultFeatures()
}

// Filter builds a new analysis holding only what the tier is entitled to, plus
// the synthesized enrichment its profile grants. src is not modified, so calling
// Filter twice with the same inputs yields identical output.
func Filter(src *ChatAnalysis, opts FilterOptions) *ChatAnalysis {
	if src == nil {
		return nil
	}
	features := opts.Features
	if features == nil {
		features = DefaultFeatures()
	}
	tier := ParseTier(string(opts.Tier))
	profile := features.Profile(tier)
	limited := tier == TierFree

	out := &ChatAnalysis{
		ToneAnalysis: ToneAnalysis{
			OverallTone:    src.ToneAnalysis.OverallTone,
			EmotionalState: slices.Clone(src.ToneAnalysis.EmotionalState),
		},
		Communication: Communication{
			Patterns: slices.Clone(src.Communication.Patterns),
		},
	}
	if limited {
		out.Communication.Patterns = truncatePatterns(src.Communication.Patterns)
	}
	if out.Communication.Patterns == nil {
		out.Communication.Patterns = []string{}
	}
	if out.ToneAnalysis.EmotionalState == nil {
		out.ToneAnalysis.EmotionalState = []Emotion{}
	}
	if profile.Has(FeatureParticipantTones) && len(src.ToneAnalysis.ParticipantTones) > 0 {
		out.ToneAnalysis.ParticipantTones = maps.Clone(src.ToneAnalysis.ParticipantTones)
	}
	if src.HealthScore != nil {
		hs := *src.HealthScore
		out.HealthScore = &hs
	}

	if profile.Has(FeatureKeyQuotes) {
		out.KeyQuotes = filterKeyQuotes(src.KeyQuotes, limited)
	}
	if profile.Has(FeatureCommunicationStyles) {
		out.Communication.Suggestions = nonEmpty(slices.Clone(src.Communication.Suggestions))
		out.ParticipantAnalysis = cloneRaw(src.ParticipantAnalysis)
	}
	if profile.Has(FeatureAdvancedToneAnalysis) {
		out.HighTensionFactors = nonEmpty(slices.Clone(src.HighTensionFactors))
		if len(src.ParticipantConflictScores) > 0 {
			out.ParticipantConflictScores = maps.Clone(src.ParticipantConflictScores)
		}
		out.TensionMeaning = src.TensionMeaning
		out.EmpatheticSummary = src.EmpatheticSummary
		if src.DramaScore != nil {
			ds := *src.DramaScore
			out.DramaScore = &ds
		}
	}
	if profile.Has(FeatureTensionContributions) && len(src.TensionContributions) > 0 {
		out.TensionContributions = make(map[string][]string, len(src.TensionContributions))
		for name, items := range src.TensionContributions {
			out.TensionContributions[name] = slices.Clone(items)
		}
	}
	if profile.Has(FeatureManipulationScore) {
		out.ManipulationScores = cloneRaw(src.ManipulationScores)
	}
	if profile.Has(FeaturePowerDynamics) {
		out.PowerDynamics = cloneRaw(src.PowerDynamics)
	}
	if profile.Has(FeatureConversationDynamics) {
		out.PsychologicalPatterns = cloneRaw(src.PsychologicalPatterns)
	}
	if profile.Has(FeatureHistoricalPatterns) {
		out.HistoricalPatterns = cloneRaw(src.HistoricalPatterns)
	}
	if profile.Has(FeatureMessageDominance) {
		out.MessageDominance = cloneRaw(src.MessageDominance)
	}

	if profile.Has(FeatureRedFlags) && len(src.RedFlags) > 0 {
		flags := cloneRedFlags(src.RedFlags)
		if profile.Enrichment == EnrichAttribution || profile.Enrichment == EnrichFull {
			for i := range flags {
				if strings.TrimSpace(flags[i].Participant) == "" {
					flags[i].Participant = inferParticipant(flags[i], opts.Me, opts.Them, src.KeyQuotes)
				}
			}
		}
		if profile.Enrichment == EnrichFull {
			for i := range flags {
				enrichFlag(&flags[i], src.KeyQuotes)
			}
		}
		out.RedFlags = flags
	}

	if profile.Enrichment == EnrichFull {
		if profile.Has(FeatureConversationDynamics) {
			out.Communication.Dynamics = buildDynamics(src.KeyQuotes)
		}
		if profile.Has(FeatureMessageDominance) {
			out.DominanceAnalysis = buildDominance(src.KeyQuotes)
		}
		if profile.Has(FeatureManipulationScore) {
			out.EvasionTactics = detectEvasion(src.KeyQuotes)
		}
		if profile.Has(FeaturePowerDynamics) {
			out.PowerShifts = detectPowerShifts(src.KeyQuotes)
		}
	}

	return out
}

// truncatePatterns keeps the first two patterns, each cut to its first sentence.
func truncatePatterns(patterns []string) []string {
	if len(patterns) > freePatternLimit {
		patterns = patterns[:freePatternLimit]
	}
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, strings.TrimSpace(strings.Split(p, ".")[0]))
	}
	return out
}

func filterKeyQuotes(quotes []KeyQuote, limited bool) []KeyQuote {
	if len(quotes) == 0 {
		return nil
	}
	if !limited {
		return slices.Clone(quotes)
	}
	if len(quotes) > freeQuoteLimit {
		quotes = quotes[:freeQuoteLimit]
	}
	out := make([]KeyQuote, len(quotes))
	for i, q := range quotes {
		q.Improvement = ""
		out[i] = q
	}
	return out
}

func cloneRedFlags(flags []RedFlag) []RedFlag {
	out := make([]RedFlag, len(flags))
	for i, f := range flags {
		f.Examples = slices.Clone(f.Examples)
		f.SupportingQuotes = slices.Clone(f.SupportingQuotes)
		if f.PrimaryQuote != nil {
			pq := *f.PrimaryQuote
			f.PrimaryQuote = &pq
		}
		out[i] = f
	}
	return out
}

// cloneRaw copies a pass-through block, treating null and empty containers as absent.
func cloneRaw(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	switch string(trimmed) {
	case "", "null", "{}", "[]", `""`:
		return nil
	}
	return slices.Clone(json.RawMessage(trimmed))
}

func nonEmpty(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	return items
}
