package analysis

import (
	"math"
	"sort"
	"strings"
)

const (
	bothParticipants   = "Both participants"
	balanced           = "Balanced"
	dominanceThreshold = 0.30
	maxSupporting      = 3
	maxDynamicExamples = 2
)

var overlapStopWords = map[string]bool{
	"that": true, "this": true, "with": true, "when": true, "from": true,
	"they": true, "them": true, "their": true, "about": true, "have": true,
	"being": true, "other": true, "person": true, "into": true, "what": true,
}

// inferParticipant attributes a red flag that arrived without a participant.
// A flag naming exactly one participant goes to that participant. Otherwise the
// speaker whose key quotes most often show the flag's behaviour family wins.
// With no evidence, or a tie, the flag belongs to both.
func inferParticipant(flag RedFlag, me, them string, quotes []KeyQuote) string {
	text := strings.ToLower(flag.Type + " " + flag.Description)
	meHit := me != "" && strings.Contains(text, strings.ToLower(me))
	themHit := them != "" && strings.Contains(text, strings.ToLower(them))
	switch {
	case meHit && !themHit:
		return me
	case themHit && !meHit:
		return them
	}

	flagType := strings.ToLower(flag.Type)
	var families []keywordFamily
	for _, f := range attributionFamilies {
		if strings.Contains(flagType, f.name) || f.matches(flagType) {
			families = append(families, f)
		}
	}
	if len(families) == 0 {
		return bothParticipants
	}

	counts := map[string]int{}
	for _, q := range quotes {
		if q.Speaker == "" {
			continue
		}
		analysis := strings.ToLower(q.Analysis)
		for _, f := range families {
			if f.matches(analysis) {
				counts[q.Speaker]++
				break
			}
		}
	}

	best, bestCount, tied := "", 0, false
	for _, speaker := range speakersInOrder(quotes) {
		switch n := counts[speaker]; {
		case n > bestCount:
			best, bestCount, tied = speaker, n, false
		case n == bestCount && n > 0:
			tied = true
		}
	}
	if bestCount == 0 || tied {
		return bothParticipants
	}
	return best
}

// enrichFlag fills the synthesized red-flag fields the model left empty and links
// the flag to its best matching key quotes.
func enrichFlag(flag *RedFlag, quotes []KeyQuote) {
	if flag.Impact == "" {
		flag.Impact = impactTable.Lookup(flag.Type)
	}
	if flag.Progression == "" {
		flag.Progression = progressionTable.Lookup(flag.Type)
	}
	if flag.RecommendedAction == "" {
		flag.RecommendedAction = recommendedActionTable.Lookup(flag.Type)
	}
	if flag.BehavioralPattern == "" {
		flag.BehavioralPattern = behavioralPatternTable.Lookup(flag.Type)
	}

	ranked := rankQuotes(*flag, quotes)
	if len(ranked) == 0 {
		flag.PrimaryQuote = nil
		flag.SupportingQuotes = nil
		flag.TimelinePosition = ""
		return
	}

	primary := quotes[ranked[0]]
	flag.PrimaryQuote = &QuoteRef{Speaker: primary.Speaker, Quote: primary.Quote}
	flag.TimelinePosition = timelinePosition(ranked[0], len(quotes))

	flag.SupportingQuotes = nil
	for _, idx := range ranked[1:] {
		if len(flag.SupportingQuotes) == maxSupporting {
			break
		}
		flag.SupportingQuotes = append(flag.SupportingQuotes, QuoteRef{Speaker: quotes[idx].Speaker, Quote: quotes[idx].Quote})
	}
}

// rankQuotes returns indexes of quotes sharing at least one keyword with the
// flag, best overlap first, earlier quotes first on ties.
func rankQuotes(flag RedFlag, quotes []KeyQuote) []int {
	keywords := overlapKeywords(flag.Type + " " + flag.Description)
	if len(keywords) == 0 {
		return nil
	}

	type scored struct {
		idx, score int
	}
	var hits []scored
	for i, q := range quotes {
		text := strings.ToLower(q.Quote + " " + q.Analysis)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{idx: i, score: score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })

	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.idx
	}
	return out
}

func overlapKeywords(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range significantWords(strings.ToLower(text)) {
		if len(w) <= 3 || overlapStopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func timelinePosition(idx, total int) string {
	if total <= 0 {
		return ""
	}
	pos := float64(idx) / float64(total)
	switch {
	case pos < 1.0/3.0:
		return "Early"
	case pos < 2.0/3.0:
		return "Mid"
	default:
		return "Late"
	}
}

func speakersInOrder(quotes []KeyQuote) []string {
	seen := map[string]bool{}
	var out []string
	for _, q := range quotes {
		if q.Speaker == "" || seen[q.Speaker] {
			continue
		}
		seen[q.Speaker] = true
		out = append(out, q.Speaker)
	}
	return out
}

// buildDynamics counts behaviour categories per participant across their quotes.
func buildDynamics(quotes []KeyQuote) *Dynamics {
	patterns := map[string][]BehaviorPattern{}
	for _, speaker := range speakersInOrder(quotes) {
		var list []BehaviorPattern
		for _, category := range behaviorCategories {
			bp := BehaviorPattern{Behavior: category.name}
			for _, q := range quotes {
				if q.Speaker != speaker || !category.matches(strings.ToLower(q.Quote+" "+q.Analysis)) {
					continue
				}
				bp.Frequency++
				if len(bp.Examples) < maxDynamicExamples {
					bp.Examples = append(bp.Examples, q.Quote)
				}
			}
			if bp.Frequency > 0 {
				list = append(list, bp)
			}
		}
		if len(list) > 0 {
			patterns[speaker] = list
		}
	}
	if len(patterns) == 0 {
		return nil
	}
	return &Dynamics{Patterns: patterns}
}

// buildDominance weighs each speaker's share of messages, words and interruptions.
// A participant is named dominant only when they lead the runner-up by more than
// dominanceThreshold of their own weight.
func buildDominance(quotes []KeyQuote) *DominanceAnalysis {
	speakers := speakersInOrder(quotes)
	if len(speakers) == 0 {
		return nil
	}

	shares := make(map[string]ParticipantShare, len(speakers))
	var totalMessages, totalWords, totalInterruptions int
	for _, q := range quotes {
		if q.Speaker == "" {
			continue
		}
		s := shares[q.Speaker]
		s.Messages++
		words := len(strings.Fields(q.Quote))
		s.Words += words
		totalMessages++
		totalWords += words
		if interruptKeywords.matches(strings.ToLower(q.Analysis)) {
			s.Interruptions++
			totalInterruptions++
		}
		shares[q.Speaker] = s
	}

	weight := func(s ParticipantShare) float64 {
		w := ratio(s.Messages, totalMessages) + ratio(s.Words, totalWords)
		if totalInterruptions > 0 {
			w += ratio(s.Interruptions, totalInterruptions)
		}
		return w
	}

	leader, top, runnerUp := "", -1.0, 0.0
	for _, speaker := range speakers {
		w := weight(shares[speaker])
		switch {
		case w > top:
			runnerUp = math.Max(top, 0)
			leader, top = speaker, w
		case w > runnerUp:
			runnerUp = w
		}
	}

	out := &DominanceAnalysis{DominantParticipant: balanced, Participants: shares}
	if top <= 0 {
		return out
	}
	imbalance := (top - runnerUp) / top
	out.Imbalance = math.Round(imbalance*100) / 100
	if imbalance > dominanceThreshold {
		out.DominantParticipant = leader
	}
	return out
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func detectEvasion(quotes []KeyQuote) []EvasionTactic {
	var out []EvasionTactic
	for _, q := range quotes {
		text := strings.ToLower(q.Quote + " " + q.Analysis)
		for _, tactic := range evasionTactics {
			if tactic.matches(text) {
				out = append(out, EvasionTactic{Participant: q.Speaker, Tactic: tactic.name, Quote: q.Quote})
			}
		}
	}
	return out
}

// detectPowerShifts records a shift whenever a quote reading as submission is
// followed by a different speaker's quote reading as dominance.
func detectPowerShifts(quotes []KeyQuote) []PowerShift {
	var out []PowerShift
	for i := 0; i+1 < len(quotes); i++ {
		prev, next := quotes[i], quotes[i+1]
		if prev.Speaker == next.Speaker {
			continue
		}
		if submissionKeywords.matches(strings.ToLower(prev.Analysis)) && dominanceKeywords.matches(strings.ToLower(next.Analysis)) {
			out = append(out, PowerShift{From: prev.Speaker, To: next.Speaker, Trigger: next.Quote, Position: i + 1})
		}
	}
	return out
}
