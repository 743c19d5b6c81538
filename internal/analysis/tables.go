package analysis

import "strings"

// templateEntry pairs a lower-case keyword with the text used when a red flag's
// type contains it. Tables are ordered; the first match wins.
type templateEntry struct {
	keyword string
	text    string
}

type templateTable struct {
	entries  []templateEntry
	fallback string
}

// Lookup returns the text for the first entry whose keyword occurs in flagType.
func (t templateTable) Lookup(flagType string) string {
	lower := strings.ToLower(flagType)
	for _, e := range t.entries {
		if strings.Contains(lower, e.keyword) {
			return e.text
		}
	}
	return t.fallback
}

var impactTable = templateTable{
	entries: []templateEntry{
		{"gaslight", "Repeated denial of shared events can leave the other person doubting their own memory and judgement."},
		{"stonewall", "Shutting down leaves issues unresolved and the other person feeling unheard."},
		{"contempt", "Contempt signals disrespect and is one of the strongest predictors of relationship breakdown."},
		{"critic", "Attacks on character rather than behaviour make the other person defensive instead of receptive."},
		{"defensive", "Defensiveness blocks accountability and turns requests into arguments."},
		{"narciss", "A self-focused frame leaves little space for the other person's needs and feelings."},
		{"manipulat", "Manipulative pressure erodes trust and makes honest discussion feel unsafe."},
		{"guilt", "Guilt used as leverage makes agreement feel coerced rather than chosen."},
		{"control", "Controlling behaviour narrows the other person's autonomy and breeds resentment."},
		{"blame", "One-sided blame prevents shared problem solving."},
		{"dismiss", "Dismissing concerns teaches the other person that raising issues is pointless."},
		{"passive", "Indirect hostility makes conflict harder to name and resolve."},
	},
	fallback: "This pattern strains trust and makes constructive conversation harder.",
}

var progressionTable = templateTable{
	entries: []templateEntry{
		{"gaslight", "Often starts with small contradictions and grows into routine denial of the other person's experience."},
		{"stonewall", "Tends to escalate from occasional withdrawal to prolonged silence during every disagreement."},
		{"contempt", "Usually builds from sarcasm and eye-rolling to open mockery when left unaddressed."},
		{"critic", "Specific complaints can harden into global statements about who the other person is."},
		{"defensive", "Counter-attacks become reflexive, so each complaint triggers a bigger argument."},
		{"narciss", "Needs for admiration tend to crowd out reciprocity as the relationship continues."},
		{"manipulat", "Tactics typically become more frequent once they have worked a few times."},
		{"guilt", "Guilt appeals tend to widen from single requests to a general sense of obligation."},
		{"control", "Control often expands from one area of life into others over time."},
		{"blame", "Blame can settle into a fixed story where one person is always at fault."},
	},
	fallback: "Without attention this pattern usually becomes more frequent and more entrenched.",
}

var recommendedActionTable = templateTable{
	entries: []templateEntry{
		{"gaslight", "Keep a private record of events and calmly state your own experience without debating it."},
		{"stonewall", "Agree on a short break with a set time to return to the conversation."},
		{"contempt", "Name the disrespect directly and ask for the concern to be raised without mockery."},
		{"critic", "Reframe complaints as specific requests using \"I feel\" statements."},
		{"defensive", "Acknowledge the part of the complaint that is valid before explaining your side."},
		{"narciss", "Set clear expectations for reciprocity and notice whether they are respected."},
		{"manipulat", "Pause before agreeing to anything under pressure and restate your boundary plainly."},
		{"guilt", "Separate the request from the guilt and answer the request on its merits."},
		{"control", "Identify the decisions that are yours to make and communicate them firmly."},
		{"blame", "Shift the conversation to what each person can change next time."},
	},
	fallback: "Raise the pattern at a calm moment and agree on one concrete change.",
}

var behavioralPatternTable = templateTable{
	entries: []templateEntry{
		{"gaslight", "Reality denial"},
		{"stonewall", "Emotional withdrawal"},
		{"contempt", "Contempt and mockery"},
		{"critic", "Character criticism"},
		{"defensive", "Defensive counter-attack"},
		{"narciss", "Self-centred framing"},
		{"manipulat", "Manipulative pressure"},
		{"guilt", "Guilt tripping"},
		{"control", "Controlling behaviour"},
		{"blame", "Blame shifting"},
	},
	fallback: "Recurring communication issue",
}

// keywordFamily groups the words that signal one behaviour in free text.
type keywordFamily struct {
	name     string
	keywords []string
}

func (f keywordFamily) matches(lower string) bool {
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// attributionFamilies drive red-flag participant inference.
var attributionFamilies = []keywordFamily{
	{"narcissism", []string{"narciss", "self-centered", "self-centred", "grandios", "entitle", "admiration"}},
	{"defensiveness", []string{"defensive", "excuse", "deflect", "justif", "counter-attack"}},
	{"stonewalling", []string{"stonewall", "silent treatment", "shut down", "shuts down", "withdraw", "ignor"}},
	{"criticism", []string{"critic", "blame", "attack", "insult", "belittl"}},
	{"gaslighting", []string{"gaslight", "deny", "denies", "denial", "twist", "never happened"}},
}

// behaviorCategories are counted per participant for conversation dynamics.
var behaviorCategories = []keywordFamily{
	{"Criticism", []string{"critic", "blame", "attack", "insult", "belittl"}},
	{"Defensiveness", []string{"defensive", "excuse", "deflect", "justif"}},
	{"Stonewalling", []string{"stonewall", "shut down", "shuts down", "withdraw", "ignor", "silent"}},
	{"Contempt", []string{"contempt", "sarcas", "mock", "eye-roll", "disrespect"}},
	{"Gaslighting", []string{"gaslight", "deny", "denies", "denial", "twist"}},
	{"Validation", []string{"validat", "acknowledg", "understand", "empath", "support"}},
	{"Repair attempts", []string{"apolog", "sorry", "repair", "compromise", "de-escalat"}},
}

var evasionTactics = []keywordFamily{
	{"Deflection", []string{"deflect", "change the subject", "changes the subject", "redirect"}},
	{"Minimization", []string{"minimi", "downplay", "overreact", "no big deal"}},
	{"Denial", []string{"deny", "denies", "denial", "never said"}},
	{"Whataboutism", []string{"whatabout", "what about you", "counter-accus"}},
	{"Stonewalling", []string{"stonewall", "refuses to answer", "avoids the question", "silent"}},
}

var (
	submissionKeywords = keywordFamily{"submission", []string{"apolog", "sorry", "submissive", "gives in", "concede", "backs down", "placat", "appeas"}}
	dominanceKeywords  = keywordFamily{"dominance", []string{"dominan", "control", "demand", "assert", "insist", "ultimatum", "command"}}
	interruptKeywords  = keywordFamily{"interruption", []string{"interrupt", "cuts off", "cut off", "talks over", "talking over"}}
)
