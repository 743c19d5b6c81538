package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SystemPrompt is sent with every analysis request.
const SystemPrompt = `You are an expert in interpersonal communication and relationship dynamics. You analyze chat conversations between two people and report tone, communication patterns and concerning behaviours with care and without taking sides.

You respond only with a single JSON object in a fenced code block. You never invent quotes: every quote you report is copied exactly from the conversation you were given.`

// Template describes the output shape requested for one tier.
type Template struct {
	Name        string
	Depth       string
	SeverityMax int // 0 when the template does not request red flags
	MaxTokens   int
}

var (
	freeTemplate = Template{
		Name:      "free",
		Depth:     "Give a brief overview of the conversation.",
		MaxTokens: 2048,
	}
	personalTemplate = Template{
		Name:        "personal",
		Depth:       "Give a thorough analysis of the conversation, including each participant's tone and any concerning behaviour.",
		SeverityMax: 5,
		MaxTokens:   4096,
	}
	proTemplate = Template{
		Name:        "pro",
		Depth:       "Give an in-depth professional analysis of the conversation covering tone, conflict, power dynamics and recurring patterns.",
		SeverityMax: 10,
		MaxTokens:   8192,
	}
)

// TemplateFor returns the template for t. instant and beta share the pro
// template; unknown tiers get the free one.
func TemplateFor(t Tier) Template {
	switch ParseTier(string(t)) {
	case TierPersonal:
		return personalTemplate
	case TierPro, TierInstant, TierBeta:
		return proTemplate
	default:
		return freeTemplate
	}
}

// BuildPrompt renders the user prompt for req. The schema section is assembled
// from the features the tier is entitled to, so one template serves every tier.
// The output depends only on its inputs.
func BuildPrompt(req Request, features FeatureTable) string {
	if features == nil {
		features = DefaultFeatures()
	}
	tier := ParseTier(string(req.Tier))
	tmpl := TemplateFor(tier)
	profile := features.Profile(tier)

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following conversation between %q and %q. %s\n\n", req.Me, req.Them, tmpl.Depth)
	b.WriteString("Return JSON with exactly this structure:\n\n")
	b.WriteString(renderSchema(req.Me, req.Them, tmpl, profile))
	b.WriteString("\n\nRules:\n")
	for _, rule := range promptRules(req.Me, req.Them, tmpl) {
		b.WriteString("- ")
		b.WriteString(rule)
		b.WriteByte('\n')
	}

	if extra := strings.TrimSpace(req.ExtraContext); extra != "" {
		b.WriteString("\nAdditional context from the user:\n")
		b.WriteString(extra)
		b.WriteByte('\n')
	}

	b.WriteString("\nConversation:\n")
	b.WriteString(req.Conversation)
	return b.String()
}

func promptRules(me, them string, tmpl Template) []string {
	rules := []string{
		"Only reference text that appears verbatim in the conversation. Copy quotes exactly; never paraphrase or invent them.",
		"Wrap the JSON in a ```json fenced code block and write nothing outside it.",
		"Use only double quotes for keys and string values.",
		"Keep every text field to 25 words or fewer.",
		"Do not leave trailing commas after the last item of an object or array.",
		"Do not use line breaks, unescaped double quotes or other characters that break JSON inside string values.",
		"Emotion intensity is a number between 0 and 1. healthScore.score is an integer from 0 (hostile) to 100 (healthy).",
		fmt.Sprintf("Refer to the participants only as %q and %q.", me, them),
	}
	if tmpl.SeverityMax > 0 {
		rules = append(rules, fmt.Sprintf("Red flag severity is an integer from 1 (minor) to %d (severe). Return an empty redFlags array if there are none.", tmpl.SeverityMax))
	}
	return rules
}

func renderSchema(me, them string, tmpl Template, profile TierProfile) string {
	var sections []string

	tone := `  "toneAnalysis": {
    "overallTone": "one sentence on the overall tone",
    "emotionalState": [{"emotion": "emotion name", "intensity": 0.5}]`
	if profile.Has(FeatureParticipantTones) {
		tone += `,
    "participantTones": {"{{me}}": "tone of {{me}}", "{{them}}": "tone of {{them}}"}`
	}
	sections = append(sections, tone+"\n  }")

	comm := `  "communication": {
    "patterns": ["observed communication pattern"]`
	if profile.Has(FeatureCommunicationStyles) {
		comm += `,
    "suggestions": ["practical suggestion"]`
	}
	sections = append(sections, comm+"\n  }")

	sections = append(sections, `  "healthScore": {"score": 50}`)

	if profile.Has(FeatureKeyQuotes) {
		sections = append(sections, `  "keyQuotes": [{"speaker": "{{me}} or {{them}}", "quote": "exact words from the conversation", "analysis": "what this shows", "improvement": "a healthier way to say it"}]`)
	}
	if profile.Has(FeatureRedFlags) {
		sections = append(sections, `  "redFlags": [{"type": "behaviour name", "description": "what happened", "severity": {{severity}}, "participant": "{{me}} or {{them}}", "examples": [{"text": "exact words from the conversation", "from": "{{me}} or {{them}}"}]}]`)
	}
	if profile.Has(FeatureAdvancedToneAnalysis) {
		sections = append(sections,
			`  "participantConflictScores": {"{{me}}": {"score": 0, "label": "Low", "isEscalating": false}, "{{them}}": {"score": 0, "label": "Low", "isEscalating": false}}`,
			`  "highTensionFactors": ["factor raising tension"]`,
			`  "tensionMeaning": "what the tension says about the relationship"`,
			`  "dramaScore": 0`,
			`  "empatheticSummary": "a compassionate summary for the reader"`,
		)
	}
	if profile.Has(FeatureCommunicationStyles) {
		sections = append(sections, `  "participantAnalysis": {"{{me}}": {"style": "communication style", "needs": "underlying need"}, "{{them}}": {"style": "communication style", "needs": "underlying need"}}`)
	}
	if profile.Has(FeatureTensionContributions) {
		sections = append(sections, `  "tensionContributions": {"{{me}}": ["behaviour adding tension"], "{{them}}": ["behaviour adding tension"]}`)
	}
	if profile.Has(FeatureManipulationScore) {
		sections = append(sections, `  "manipulationScores": {"{{me}}": 0, "{{them}}": 0}`)
	}
	if profile.Has(FeaturePowerDynamics) {
		sections = append(sections, `  "powerDynamics": {"summary": "who holds power and how", "balance": "balanced or imbalanced"}`)
	}
	if profile.Has(FeatureConversationDynamics) {
		sections = append(sections, `  "psychologicalPatterns": {"attachmentStyles": {"{{me}}": "style", "{{them}}": "style"}, "copingMechanisms": ["mechanism"]}`)
	}
	if profile.Has(FeatureHistoricalPatterns) {
		sections = append(sections, `  "historicalPatterns": {"recurringThemes": ["theme"], "trajectory": "improving, stable or worsening"}`)
	}
	if profile.Has(FeatureMessageDominance) {
		sections = append(sections, `  "messageDominance": {"{{me}}": 50, "{{them}}": 50}`)
	}

	schema := "{\n" + strings.Join(sections, ",\n") + "\n}"
	return strings.NewReplacer(
		"{{me}}", jsonEscape(me),
		"{{them}}", jsonEscape(them),
		"{{severity}}", fmt.Sprintf("%d", severityExample(tmpl)),
	).Replace(schema)
}

// jsonEscape returns s escaped for use inside a JSON string literal.
func jsonEscape(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return s
	}
	return string(b[1 : len(b)-1])
}

func severityExample(tmpl Template) int {
	if tmpl.SeverityMax <= 1 {
		return 1
	}
	return (tmpl.SeverityMax + 1) / 2
}
