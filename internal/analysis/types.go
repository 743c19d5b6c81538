package analysis

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Request is one analysis job as submitted by a caller.
type Request struct {
	Conversation string `json:"conversation"`
	Me           string `json:"me"`
	Them         string `json:"them"`
	Tier         Tier   `json:"tier"`
	ExtraContext string `json:"extraContext,omitempty"`
}

// Participants is the resolved pair of speaker names for a conversation.
type Participants struct {
	Me   string `json:"me"`
	Them string `json:"them"`
}

// Number is a numeric field that tolerates the model writing numbers as strings.
// Values that cannot be read as a number decode to zero.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	s = strings.TrimSpace(strings.Trim(s, `"`))
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		*n = 0
		return nil
	}
	*n = Number(f)
	return nil
}

type ChatAnalysis struct {
	ToneAnalysis  ToneAnalysis  `json:"toneAnalysis"`
	Communication Communication `json:"communication"`

	RedFlags    []RedFlag    `json:"redFlags,omitempty"`
	HealthScore *HealthScore `json:"healthScore,omitempty"`
	KeyQuotes   []KeyQuote   `json:"keyQuotes,omitempty"`

	ParticipantConflictScores map[string]ConflictScore `json:"participantConflictScores,omitempty"`
	TensionContributions      map[string][]string      `json:"tensionContributions,omitempty"`
	TensionMeaning            string                   `json:"tensionMeaning,omitempty"`
	DramaScore                *Number                  `json:"dramaScore,omitempty"`
	HighTensionFactors        []string                 `json:"highTensionFactors,omitempty"`
	EmpatheticSummary         string                   `json:"empatheticSummary,omitempty"`

	// Blocks the model produces for higher tiers and that are passed through untouched.
	ParticipantAnalysis   json.RawMessage `json:"participantAnalysis,omitempty"`
	ManipulationScores    json.RawMessage `json:"manipulationScores,omitempty"`
	PowerDynamics         json.RawMessage `json:"powerDynamics,omitempty"`
	PsychologicalPatterns json.RawMessage `json:"psychologicalPatterns,omitempty"`
	HistoricalPatterns    json.RawMessage `json:"historicalPatterns,omitempty"`
	MessageDominance      json.RawMessage `json:"messageDominance,omitempty"`

	// Synthesized from key quotes for full-enrichment tiers.
	DominanceAnalysis *DominanceAnalysis `json:"dominanceAnalysis,omitempty"`
	EvasionTactics    []EvasionTactic    `json:"evasionTactics,omitempty"`
	PowerShifts       []PowerShift       `json:"powerShifts,omitempty"`
}

type ToneAnalysis struct {
	OverallTone      string            `json:"overallTone"`
	EmotionalState   []Emotion         `json:"emotionalState"`
	ParticipantTones map[string]string `json:"participantTones,omitempty"`
}

type Emotion struct {
	Emotion   string `json:"emotion"`
	Intensity Number `json:"intensity"` // 0-1
}

type Communication struct {
	Patterns    []string  `json:"patterns"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Dynamics    *Dynamics `json:"dynamics,omitempty"`
}

// Dynamics holds per-participant behaviour counts keyed by participant name.
type Dynamics struct {
	Patterns map[string][]BehaviorPattern `json:"patterns"`
}

type BehaviorPattern struct {
	Behavior  string   `json:"behavior"`
	Frequency int      `json:"frequency"`
	Examples  []string `json:"examples,omitempty"`
}

type RedFlag struct {
	Type              string     `json:"type"`
	Description       string     `json:"description"`
	Severity          Number     `json:"severity"`
	Participant       string     `json:"participant,omitempty"`
	Examples          []Example  `json:"examples,omitempty"`
	Impact            string     `json:"impact,omitempty"`
	RecommendedAction string     `json:"recommendedAction,omitempty"`
	BehavioralPattern string     `json:"behavioralPattern,omitempty"`
	Progression       string     `json:"progression,omitempty"`
	PrimaryQuote      *QuoteRef  `json:"primaryQuote,omitempty"`
	SupportingQuotes  []QuoteRef `json:"supportingQuotes,omitempty"`
	TimelinePosition  string     `json:"timelinePosition,omitempty"` // Early, Mid or Late
}

// Example is a quoted line backing a red flag. The model sometimes emits a bare
// string instead of an object; both forms are accepted.
type Example struct {
	Text string `json:"text"`
	From string `json:"from,omitempty"`
}

func (e *Example) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*e = Example{Text: s}
		return nil
	}
	type plain Example
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		// An unreadable example is kept empty and removed by quote validation.
		*e = Example{}
		return nil
	}
	*e = Example(p)
	return nil
}

type QuoteRef struct {
	Speaker string `json:"speaker"`
	Quote   string `json:"quote"`
}

type HealthScore struct {
	Score Number `json:"score"` // 0-100
	Label string `json:"label"`
	Color string `json:"color"`
}

type KeyQuote struct {
	Speaker     string `json:"speaker"`
	Quote       string `json:"quote"`
	Analysis    string `json:"analysis"`
	Improvement string `json:"improvement,omitempty"`
}

type ConflictScore struct {
	Score        Number `json:"score"`
	Label        string `json:"label,omitempty"`
	IsEscalating bool   `json:"isEscalating"`
}

type DominanceAnalysis struct {
	DominantParticipant string                      `json:"dominantParticipant"` // "Balanced" when no one leads by more than the threshold
	Imbalance           float64                     `json:"imbalance"`
	Participants        map[string]ParticipantShare `json:"participants"`
}

type ParticipantShare struct {
	Messages      int `json:"messages"`
	Words         int `json:"words"`
	Interruptions int `json:"interruptions"`
}

type EvasionTactic struct {
	Participant string `json:"participant"`
	Tactic      string `json:"tactic"`
	Quote       string `json:"quote"`
}

type PowerShift struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Trigger  string `json:"trigger"`
	Position int    `json:"position"` // index of the triggering quote in keyQuotes
}
