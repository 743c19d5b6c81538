package analysis

import (
	"fmt"
	"testing"
)

func TestExtractRawFields_NotJSON(t *testing.T) {
	a := ExtractRawFields("not json at all", "Alex", "Jamie", discardLogger())

	if a.ToneAnalysis.OverallTone != "Analysis incomplete" {
		t.Errorf("expected placeholder tone, got %q", a.ToneAnalysis.OverallTone)
	}
	if len(a.ToneAnalysis.EmotionalState) != 1 || a.ToneAnalysis.EmotionalState[0].Emotion != "Unclear" {
		t.Errorf("expected placeholder emotion, got %+v", a.ToneAnalysis.EmotionalState)
	}
	if a.ToneAnalysis.EmotionalState[0].Intensity != 0.5 {
		t.Errorf("expected intensity 0.5, got %v", a.ToneAnalysis.EmotionalState[0].Intensity)
	}
	if len(a.Communication.Patterns) != 1 || a.Communication.Patterns[0] != placeholderPattern {
		t.Errorf("expected placeholder pattern, got %v", a.Communication.Patterns)
	}
	if a.HealthScore == nil || a.HealthScore.Score != 50 || a.HealthScore.Label != "Stable" {
		t.Errorf("expected default health score 50/Stable, got %+v", a.HealthScore)
	}
	for _, name := range []string{"Alex", "Jamie"} {
		if a.ToneAnalysis.ParticipantTones[name] != "Unclear" {
			t.Errorf("expected Unclear tone for %s, got %q", name, a.ToneAnalysis.ParticipantTones[name])
		}
	}
}

func TestExtractRawFields_TruncatedResponse(t *testing.T) {
	raw := `{"toneAnalysis": {"overallTone": "Tense but civil", "emotionalState": [{"emotion": "frustration", "intensity": 0.8}, {"emotion": "hope", "intensity": 0.3}], "participantTones": {"Alex": "defensive", "Jamie": "calm"}}, "communication": {"patterns": ["Alex deflects", "Jamie asks questions"]}, "healthScore": {"score": 42, "lab`

	a := ExtractRawFields(raw, "Alex", "Jamie", discardLogger())

	if a.ToneAnalysis.OverallTone != "Tense but civil" {
		t.Errorf("expected overall tone, got %q", a.ToneAnalysis.OverallTone)
	}
	if len(a.ToneAnalysis.EmotionalState) != 2 {
		t.Fatalf("expected 2 emotions, got %+v", a.ToneAnalysis.EmotionalState)
	}
	if a.ToneAnalysis.EmotionalState[0].Emotion != "frustration" || a.ToneAnalysis.EmotionalState[0].Intensity != 0.8 {
		t.Errorf("unexpected first emotion: %+v", a.ToneAnalysis.EmotionalState[0])
	}
	if a.ToneAnalysis.ParticipantTones["Alex"] != "defensive" || a.ToneAnalysis.ParticipantTones["Jamie"] != "calm" {
		t.Errorf("unexpected participant tones: %v", a.ToneAnalysis.ParticipantTones)
	}
	if len(a.Communication.Patterns) != 2 || a.Communication.Patterns[1] != "Jamie asks questions" {
		t.Errorf("unexpected patterns: %v", a.Communication.Patterns)
	}
	if a.HealthScore.Score != 42 || a.HealthScore.Label != "Tension" || a.HealthScore.Color != "yellow" {
		t.Errorf("unexpected health score: %+v", a.HealthScore)
	}
}

func TestExtractRawFields_ScoreBands(t *testing.T) {
	tests := []struct {
		score int
		label string
		color string
	}{
		{25, "Conflict", "red"},
		{45, "Tension", "yellow"},
		{65, "Stable", "light-green"},
		{85, "Healthy", "green"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			raw := fmt.Sprintf(`healthScore: {score: %d`, tt.score)
			a := ExtractRawFields(raw, "", "", nil)
			if int(a.HealthScore.Score) != tt.score {
				t.Errorf("expected score %d, got %v", tt.score, a.HealthScore.Score)
			}
			if a.HealthScore.Label != tt.label || a.HealthScore.Color != tt.color {
				t.Errorf("expected %s/%s, got %s/%s", tt.label, tt.color, a.HealthScore.Label, a.HealthScore.Color)
			}
		})
	}
}

func TestHealthBand_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		label string
	}{
		{0, "Conflict"},
		{29, "Conflict"},
		{30, "Tension"},
		{49, "Tension"},
		{50, "Stable"},
		{69, "Stable"},
		{70, "Healthy"},
		{100, "Healthy"},
	}

	for _, tt := range tests {
		if label, _ := HealthBand(tt.score); label != tt.label {
			t.Errorf("HealthBand(%v) = %q, want %q", tt.score, label, tt.label)
		}
	}
}

func TestExtractRawFields_Lenient(t *testing.T) {
	raw := `overallTone: guarded, emotion: "anger", intensity: 3, patterns: [talks over, avoids topic], score: 250`

	a := ExtractRawFields(raw, "Alex", "", nil)

	if a.ToneAnalysis.OverallTone != "guarded" {
		t.Errorf("expected bare tone, got %q", a.ToneAnalysis.OverallTone)
	}
	if len(a.ToneAnalysis.EmotionalState) != 1 || a.ToneAnalysis.EmotionalState[0].Intensity != 1 {
		t.Errorf("expected clamped intensity 1, got %+v", a.ToneAnalysis.EmotionalState)
	}
	want := []string{"talks over", "avoids topic"}
	if len(a.Communication.Patterns) != len(want) {
		t.Fatalf("expected patterns %v, got %v", want, a.Communication.Patterns)
	}
	for i := range want {
		if a.Communication.Patterns[i] != want[i] {
			t.Errorf("pattern %d: expected %q, got %q", i, want[i], a.Communication.Patterns[i])
		}
	}
	if a.HealthScore.Score != 100 || a.HealthScore.Label != "Healthy" {
		t.Errorf("expected clamped score 100, got %+v", a.HealthScore)
	}
	if len(a.ToneAnalysis.ParticipantTones) != 1 {
		t.Errorf("expected only named participants in tones, got %v", a.ToneAnalysis.ParticipantTones)
	}
}

func TestErrorAnalysis(t *testing.T) {
	a := ErrorAnalysis()
	if a.ToneAnalysis.OverallTone != "Analysis error" {
		t.Errorf("expected error tone, got %q", a.ToneAnalysis.OverallTone)
	}
	if a.Communication.Patterns[0] != "Analysis could not be completed" {
		t.Errorf("unexpected pattern %q", a.Communication.Patterns[0])
	}
	if a.HealthScore.Score != 50 || a.HealthScore.Color != "light-green" {
		t.Errorf("unexpected health score %+v", a.HealthScore)
	}
}
