package analysis

import (
	"encoding/json"
	"sort"
	"strings"
)

// decodeAnalysis maps a repaired JSON object onto ChatAnalysis. If the document
// does not fit the typed shape as a whole, each top-level field is decoded on its
// own and the names of fields that still do not fit are returned.
func decodeAnalysis(data []byte) (*ChatAnalysis, []string, error) {
	var a ChatAnalysis
	if err := json.Unmarshal(data, &a); err == nil {
		return &a, nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, nil, err
	}

	a = ChatAnalysis{}
	targets := map[string]any{
		"toneAnalysis":              &a.ToneAnalysis,
		"communication":             &a.Communication,
		"redFlags":                  &a.RedFlags,
		"healthScore":               &a.HealthScore,
		"keyQuotes":                 &a.KeyQuotes,
		"participantConflictScores": &a.ParticipantConflictScores,
		"tensionContributions":      &a.TensionContributions,
		"tensionMeaning":            &a.TensionMeaning,
		"dramaScore":                &a.DramaScore,
		"highTensionFactors":        &a.HighTensionFactors,
		"empatheticSummary":         &a.EmpatheticSummary,
		"participantAnalysis":       &a.ParticipantAnalysis,
		"manipulationScores":        &a.ManipulationScores,
		"powerDynamics":             &a.PowerDynamics,
		"psychologicalPatterns":     &a.PsychologicalPatterns,
		"historicalPatterns":        &a.HistoricalPatterns,
		"messageDominance":          &a.MessageDominance,
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var skipped []string
	for _, key := range keys {
		target, ok := targets[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(fields[key], target); err != nil {
			skipped = append(skipped, key)
		}
	}
	return &a, skipped, nil
}

// normalize enforces the value ranges and required fields of an analysis built
// from model output. Health label and color are always re-derived from the score.
func normalize(a *ChatAnalysis, tmpl Template) {
	if strings.TrimSpace(a.ToneAnalysis.OverallTone) == "" {
		a.ToneAnalysis.OverallTone = placeholderTone
	}

	emotions := a.ToneAnalysis.EmotionalState[:0:0]
	for _, e := range a.ToneAnalysis.EmotionalState {
		if strings.TrimSpace(e.Emotion) == "" {
			continue
		}
		e.Intensity = Number(clamp(float64(e.Intensity), 0, 1))
		emotions = append(emotions, e)
	}
	if len(emotions) == 0 {
		emotions = []Emotion{{Emotion: placeholderUnclear, Intensity: placeholderIntensity}}
	}
	a.ToneAnalysis.EmotionalState = emotions

	for name, tone := range a.ToneAnalysis.ParticipantTones {
		if strings.TrimSpace(tone) == "" {
			a.ToneAnalysis.ParticipantTones[name] = placeholderUnclear
		}
	}

	a.Communication.Patterns = compactStrings(a.Communication.Patterns)
	if len(a.Communication.Patterns) == 0 {
		a.Communication.Patterns = []string{placeholderPattern}
	}
	a.Communication.Suggestions = compactStrings(a.Communication.Suggestions)
	a.HighTensionFactors = compactStrings(a.HighTensionFactors)

	if a.HealthScore != nil {
		a.HealthScore = newHealthScore(float64(a.HealthScore.Score))
	}

	maxSeverity := tmpl.SeverityMax
	if maxSeverity <= 0 {
		maxSeverity = proTemplate.SeverityMax
	}
	flags := a.RedFlags[:0:0]
	for _, f := range a.RedFlags {
		if strings.TrimSpace(f.Type) == "" && strings.TrimSpace(f.Description) == "" {
			continue
		}
		f.Severity = Number(clamp(float64(f.Severity), 1, float64(maxSeverity)))
		flags = append(flags, f)
	}
	a.RedFlags = flags
}

func compactStrings(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
