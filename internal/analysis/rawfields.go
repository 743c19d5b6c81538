package analysis

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

const (
	placeholderTone      = "Analysis incomplete"
	placeholderUnclear   = "Unclear"
	placeholderPattern   = "Unable to analyze communication patterns"
	placeholderIntensity = 0.5
	defaultHealthScore   = 50
	errorTone            = "Analysis error"
	errorPattern         = "Analysis could not be completed"
)

var (
	rawOverallTone     = regexp.MustCompile(`"?overallTone"?\s*:\s*"([^"]*)"`)
	rawOverallToneBare = regexp.MustCompile(`"?overallTone"?\s*:\s*([^",}\n][^,}\n]*)`)
	rawEmotion         = regexp.MustCompile(`"?emotion"?\s*:\s*"([^"]+)"\s*,\s*"?intensity"?\s*:\s*"?(-?\d*\.?\d+)`)
	rawScore           = regexp.MustCompile(`"?score"?\s*:\s*"?(\d+)`)
	rawPatterns        = regexp.MustCompile(`"?patterns"?\s*:\s*\[([^\]]*)\]`)
	rawQuotedItem      = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

// HealthBand maps a 0-100 score to its fixed label and color.
func HealthBand(score float64) (label, color string) {
	switch {
	case score < 30:
		return "Conflict", "red"
	case score < 50:
		return "Tension", "yellow"
	case score < 70:
		return "Stable", "light-green"
	default:
		return "Healthy", "green"
	}
}

func newHealthScore(score float64) *HealthScore {
	score = clamp(score, 0, 100)
	label, color := HealthBand(score)
	return &HealthScore{Score: Number(score), Label: label, Color: color}
}

// ExtractRawFields pulls the required fields out of text that could not be parsed
// as JSON, one targeted regex per field. Missing fields get placeholders so the
// result always carries every required field. It never panics.
func ExtractRawFields(raw, me, them string, logger *slog.Logger) (result *ChatAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error("raw field extraction panicked", "panic", fmt.Sprint(r))
			}
			result = ErrorAnalysis()
		}
	}()

	a := &ChatAnalysis{
		ToneAnalysis: ToneAnalysis{
			OverallTone:    extractOverallTone(raw),
			EmotionalState: extractEmotions(raw),
		},
		Communication: Communication{Patterns: extractPatterns(raw)},
		HealthScore:   newHealthScore(extractScore(raw)),
	}

	tones := map[string]string{}
	for _, name := range []string{me, them} {
		if strings.TrimSpace(name) == "" {
			continue
		}
		tones[name] = extractParticipantTone(raw, name)
	}
	if len(tones) > 0 {
		a.ToneAnalysis.ParticipantTones = tones
	}
	return a
}

// ErrorAnalysis is the fixed shape returned when even raw extraction fails.
func ErrorAnalysis() *ChatAnalysis {
	return &ChatAnalysis{
		ToneAnalysis: ToneAnalysis{
			OverallTone:    errorTone,
			EmotionalState: []Emotion{{Emotion: placeholderUnclear, Intensity: placeholderIntensity}},
		},
		Communication: Communication{Patterns: []string{errorPattern}},
		HealthScore:   newHealthScore(defaultHealthScore),
	}
}

func extractOverallTone(raw string) string {
	if m := rawOverallTone.FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1])
	}
	if m := rawOverallToneBare.FindStringSubmatch(raw); m != nil {
		if tone := strings.Trim(m[1], `" `); tone != "" {
			return tone
		}
	}
	return placeholderTone
}

func extractEmotions(raw string) []Emotion {
	var emotions []Emotion
	for _, m := range rawEmotion.FindAllStringSubmatch(raw, -1) {
		intensity, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			intensity = placeholderIntensity
		}
		emotions = append(emotions, Emotion{
			Emotion:   strings.TrimSpace(m[1]),
			Intensity: Number(clamp(intensity, 0, 1)),
		})
	}
	if len(emotions) == 0 {
		return []Emotion{{Emotion: placeholderUnclear, Intensity: placeholderIntensity}}
	}
	return emotions
}

// extractParticipantTone looks for `name: "tone"` inside the participantTones
// section first, then anywhere in the text.
func extractParticipantTone(raw, name string) string {
	re, err := regexp.Compile(`"?` + regexp.QuoteMeta(name) + `"?\s*:\s*"([^"]*)"`)
	if err != nil {
		return placeholderUnclear
	}
	if i := strings.Index(raw, "participantTones"); i >= 0 {
		if m := re.FindStringSubmatch(raw[i:]); m != nil && strings.TrimSpace(m[1]) != "" {
			return strings.TrimSpace(m[1])
		}
	}
	if m := re.FindStringSubmatch(raw); m != nil && strings.TrimSpace(m[1]) != "" {
		return strings.TrimSpace(m[1])
	}
	return placeholderUnclear
}

func extractScore(raw string) float64 {
	search := raw
	if i := strings.Index(raw, "healthScore"); i >= 0 {
		search = raw[i:]
	}
	m := rawScore.FindStringSubmatch(search)
	if m == nil && len(search) != len(raw) {
		m = rawScore.FindStringSubmatch(raw)
	}
	if m == nil {
		return defaultHealthScore
	}
	score, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultHealthScore
	}
	return float64(score)
}

func extractPatterns(raw string) []string {
	m := rawPatterns.FindStringSubmatch(raw)
	if m == nil {
		return []string{placeholderPattern}
	}

	var patterns []string
	if items := rawQuotedItem.FindAllStringSubmatch(m[1], -1); len(items) > 0 {
		for _, item := range items {
			if p := strings.TrimSpace(item[1]); p != "" {
				patterns = append(patterns, p)
			}
		}
	} else {
		for _, part := range strings.Split(m[1], ",") {
			if p := strings.TrimSpace(strings.Trim(part, `"' `)); p != "" {
				patterns = append(patterns, p)
			}
		}
	}

	if len(patterns) == 0 {
		return []string{placeholderPattern}
	}
	return patterns
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
