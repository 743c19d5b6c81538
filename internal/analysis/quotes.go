package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultQuoteThreshold is the share of significant words that must appear in the
// conversation for a non-verbatim quote to be kept.
const DefaultQuoteThreshold = 0.70

// QuoteValidator drops quotes the model attributes to the conversation but that
// cannot be found in it. It never edits quote text.
type QuoteValidator struct {
	Threshold float64
}

func NewQuoteValidator(threshold float64) QuoteValidator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultQuoteThreshold
	}
	return QuoteValidator{Threshold: threshold}
}

// QuoteReport counts what validation kept and dropped. It is for logs only.
type QuoteReport struct {
	Kept    int `json:"kept"`
	Dropped int `json:"dropped"`
}

// MatchesConversation reports whether quote appears verbatim (case-insensitive) in
// conversation, or whether enough of its words longer than two characters do.
func (v QuoteValidator) MatchesConversation(quote, conversation string) bool {
	return v.matches(strings.ToLower(quote), strings.ToLower(conversation))
}

func (v QuoteValidator) matches(quote, conversation string) bool {
	quote = strings.TrimSpace(quote)
	if quote == "" {
		return false
	}
	if strings.Contains(conversation, quote) {
		return true
	}

	words := significantWords(quote)
	if len(words) == 0 {
		return false
	}
	found := 0
	for _, w := range words {
		if strings.Contains(conversation, w) {
			found++
		}
	}
	return float64(found)/float64(len(words)) >= v.threshold()
}

func (v QuoteValidator) threshold() float64 {
	if v.Threshold <= 0 || v.Threshold > 1 {
		return DefaultQuoteThreshold
	}
	return v.Threshold
}

// significantWords splits on whitespace, strips surrounding punctuation, and keeps
// words longer than two characters.
func significantWords(s string) []string {
	var words []string
	for _, f := range strings.Fields(s) {
		w := strings.TrimFunc(f, unicode.IsPunct)
		if utf8.RuneCountInString(w) > 2 {
			words = append(words, w)
		}
	}
	return words
}

// Validate removes unverifiable red-flag examples and key quotes from a in place.
// Arrays emptied by validation are set to nil so they are omitted from output.
func (v QuoteValidator) Validate(a *ChatAnalysis, conversation string) QuoteReport {
	var report QuoteReport
	if a == nil {
		return report
	}
	conv := strings.ToLower(conversation)

	for i := range a.RedFlags {
		flag := &a.RedFlags[i]
		var kept []Example
		for _, ex := range flag.Examples {
			if v.matches(strings.ToLower(ex.Text), conv) {
				kept = append(kept, ex)
				report.Kept++
			} else {
				report.Dropped++
			}
		}
		flag.Examples = kept
	}

	var quotes []KeyQuote
	for _, q := range a.KeyQuotes {
		if v.matches(strings.ToLower(q.Quote), conv) {
			quotes = append(quotes, q)
			report.Kept++
		} else {
			report.Dropped++
		}
	}
	a.KeyQuotes = quotes

	return report
}
