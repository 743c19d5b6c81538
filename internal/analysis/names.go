package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MikeSquared-Agency/tonecheck/internal/anthropic"
)

const (
	nameScanLimit    = 1000
	nameMinLength    = 2
	nameMaxLength    = 50
	nameMaxTokens    = 100
	contactName      = "Contact"
	fallbackMe       = "Me"
	fallbackThem     = "Them"
	nameSystemPrompt = "You identify the participants of chat conversations and answer with JSON only."
)

const nameUserPrompt = `Who are the two people talking in this conversation? Answer with JSON only, exactly in the form {"me": "first person's name", "them": "second person's name"}.

Conversation:
%s`

// nameFamilies match the speaker prefix of common chat export formats, tried in order.
var nameFamilies = []*regexp.Regexp{
	// 10/1/2024, 09:15 - Alex: hi
	regexp.MustCompile(`(?m)^[ \t\x{200e}]*\d{1,2}[/.]\d{1,2}[/.]\d{2,4},?\s+\d{1,2}:\d{2}(?::\d{2})?(?:\s?[APap]\.?[Mm]\.?)?\s+[-–]\s+([^:\n]{1,60}?):`),
	// [10/1/2024, 09:15:22] Alex: hi
	regexp.MustCompile(`(?m)^[ \t\x{200e}]*\[\d{1,2}[/.]\d{1,2}[/.]\d{2,4},?\s+\d{1,2}:\d{2}(?::\d{2})?(?:\s?[APap]\.?[Mm]\.?)?\]\s*([^:\n]{1,60}?):`),
	// [09:15] Alex: hi
	regexp.MustCompile(`(?m)^[ \t\x{200e}]*\[\d{1,2}:\d{2}(?::\d{2})?(?:\s?[APap]\.?[Mm]\.?)?\]\s*([^:\n]{1,60}?):`),
	// Alex: hi
	regexp.MustCompile(`(?m)^([\pL~][^:\n\[\]]{0,59}?):(?:[ \t]|$)`),
	// indented continuation lines
	regexp.MustCompile(`\n[ \t]+([\pL~][^:\n\[\]]{0,59}?):(?:[ \t]|$)`),
}

var (
	lenientMeName   = regexp.MustCompile(`\\*"me\\*"\s*:\s*\\*"([^"\\]+)\\*"`)
	lenientThemName = regexp.MustCompile(`\\*"them\\*"\s*:\s*\\*"([^"\\]+)\\*"`)
)

var systemNameWords = map[string]bool{
	"changed": true, "added": true, "left": true, "joined": true,
	"created": true, "messages": true, "calls": true,
}

var reservedNames = map[string]bool{
	"you": true, "me": true, "them": true, "media omitted": true,
	"<media omitted>": true, "null": true,
}

// MatchParticipantNames returns the distinct speaker names found in the first
// 1000 characters, in order of first appearance.
func MatchParticipantNames(conversation string) []string {
	head := truncateRunes(conversation, nameScanLimit)

	seen := map[string]bool{}
	var names []string
	for _, family := range nameFamilies {
		for _, m := range family.FindAllStringSubmatch(head, -1) {
			name := cleanName(m[1])
			key := strings.ToLower(name)
			if seen[key] || !validName(name) {
				continue
			}
			seen[key] = true
			names = append(names, name)
		}
		if len(names) >= 2 {
			break
		}
	}
	return names
}

// DetectParticipants always returns a pair of names. It uses export prefixes
// first, asks the model only when no name was found, and otherwise falls back
// to Me and Them.
func DetectParticipants(ctx context.Context, llm LLM, conversation string, logger *slog.Logger) Participants {
	names := MatchParticipantNames(conversation)
	switch len(names) {
	case 0:
	case 1:
		return Participants{Me: names[0], Them: contactName}
	default:
		return Participants{Me: names[0], Them: names[1]}
	}

	if llm != nil {
		p, err := askForNames(ctx, llm, conversation)
		if err == nil {
			return p
		}
		if logger != nil {
			logger.Warn("participant name lookup failed", "error", err)
		}
	}
	return Participants{Me: fallbackMe, Them: fallbackThem}
}

func askForNames(ctx context.Context, llm LLM, conversation string) (Participants, error) {
	prompt := fmt.Sprintf(nameUserPrompt, truncateRunes(conversation, nameScanLimit))
	resp, err := llm.CreateMessage(ctx, nameSystemPrompt, []anthropic.Message{{Role: "user", Content: prompt}}, nameMaxTokens)
	if err != nil {
		return Participants{}, fmt.Errorf("name lookup call: %w", err)
	}
	text, err := ExtractText(resp.Content)
	if err != nil {
		return Participants{}, err
	}
	return parseNameReply(text)
}

// parseNameReply reads {"me": ..., "them": ...} from a short model reply,
// tolerating backslashes in front of the quotes.
func parseNameReply(text string) (Participants, error) {
	me := lenientMeName.FindStringSubmatch(text)
	them := lenientThemName.FindStringSubmatch(text)
	if me == nil || them == nil {
		return Participants{}, errors.New("no names in reply")
	}
	p := Participants{Me: cleanName(me[1]), Them: cleanName(them[1])}
	if !validName(p.Me) || !validName(p.Them) || strings.EqualFold(p.Me, p.Them) {
		return Participants{}, fmt.Errorf("unusable names %q and %q", p.Me, p.Them)
	}
	return p, nil
}

func cleanName(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '~' || r == '\u200e' || r == '\u200f'
	})
}

func validName(name string) bool {
	n := utf8.RuneCountInString(name)
	if n < nameMinLength || n > nameMaxLength {
		return false
	}
	lower := strings.ToLower(name)
	if reservedNames[lower] || strings.Contains(lower, "http") {
		return false
	}
	for _, w := range strings.Fields(lower) {
		if systemNameWords[strings.Trim(w, ".,!")] {
			return false
		}
	}
	return !isNumeric(name)
}

// isNumeric reports whether s is only digits and phone-number punctuation.
func isNumeric(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsSpace(r), strings.ContainsRune("+-()./", r):
		default:
			return false
		}
	}
	return digits > 0
}

func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
