// Package filter implements the spam/validity check every outgoing message
// passes before it reaches the rate limiter. Check is a pure function: no
// network or storage access, and the same input always yields the same
// verdict and normalized text.
//
// Rules run in order and the first failure wins:
//  1. empty or whitespace-only text
//  2. longer than MaxRunes
//  3. flooding: a long run of one character, or one word repeated throughout
//  4. a wall of line breaks
//
// Accepted text is normalized: Unicode NFC, LF line endings, single spaces
// inside lines, no trailing blanks, at most one empty line between paragraphs.
package filter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Reason names why a message was rejected.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonEmpty              Reason = "empty"
	ReasonTooLong            Reason = "too_long"
	ReasonRepeatedCharacters Reason = "repeated_characters"
	ReasonRepeatedContent    Reason = "repeated_content"
	ReasonTooManyLines       Reason = "too_many_lines"
)

// Message returns a user-facing description of the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonEmpty:
		return "message is empty"
	case ReasonTooLong:
		return "message is too long"
	case ReasonRepeatedCharacters:
		return "message repeats the same character too many times"
	case ReasonRepeatedContent:
		return "message repeats the same word too many times"
	case ReasonTooManyLines:
		return "message has too many line breaks"
	default:
		return ""
	}
}

// Rules holds the thresholds used by Check.
type Rules struct {
	// MaxRunes is the maximum length after trimming.
	MaxRunes int
	// MaxCharRun is the longest allowed run of one non-space rune.
	MaxCharRun int
	// MinWordsForRepeat is the word count from which the dominant-word rule applies.
	MinWordsForRepeat int
	// MaxDominantWordPct is the share (0–100) one word may take of all words.
	MaxDominantWordPct int
	// MaxLineBreaks is the absolute cap on line breaks.
	MaxLineBreaks int
	// MinRunesPerBreak is the visible runes required per line break once more
	// than FreeLineBreaks are used.
	MinRunesPerBreak int
	// FreeLineBreaks are allowed regardless of content length.
	FreeLineBreaks int
}

// DefaultRules are the production thresholds.
var DefaultRules = Rules{
	MaxRunes:           350,
	MaxCharRun:         15,
	MinWordsForRepeat:  8,
	MaxDominantWordPct: 70,
	MaxLineBreaks:      12,
	MinRunesPerBreak:   4,
	FreeLineBreaks:     3,
}

// Verdict is the result of Check.
type Verdict struct {
	Valid  bool
	Text   string // normalized text, set when Valid
	Reason Reason // set when !Valid
}

// Check validates raw against DefaultRules.
func Check(raw string) Verdict { return DefaultRules.Check(raw) }

// Check validates raw against r.
func (r Rules) Check(raw string) Verdict {
	s := norm.NFC.String(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSpace(s)

	if s == "" {
		return reject(ReasonEmpty)
	}
	if r.MaxRunes > 0 && utf8.RuneCountInString(s) > r.MaxRunes {
		return reject(ReasonTooLong)
	}
	if r.MaxCharRun > 0 && longestRun(s) > r.MaxCharRun {
		return reject(ReasonRepeatedCharacters)
	}
	if r.dominatedByOneWord(s) {
		return reject(ReasonRepeatedContent)
	}
	if r.tooManyLines(s) {
		return reject(ReasonTooManyLines)
	}
	return Verdict{Valid: true, Text: normalize(s)}
}

func reject(reason Reason) Verdict { return Verdict{Reason: reason} }

// longestRun returns the longest run of one identical non-space rune.
func longestRun(s string) int {
	var (
		prev    rune = -1
		run     int
		longest int
	)
	for _, c := range s {
		if unicode.IsSpace(c) {
			prev, run = -1, 0
			continue
		}
		if c == prev {
			run++
		} else {
			prev, run = c, 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}

func (r Rules) dominatedByOneWord(s string) bool {
	if r.MinWordsForRepeat <= 0 || r.MaxDominantWordPct <= 0 {
		return false
	}
	words := strings.Fields(strings.ToLower(s))
	if len(words) < r.MinWordsForRepeat {
		return false
	}
	counts := make(map[string]int, len(words))
	top := 0
	for _, w := range words {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if w == "" {
			continue
		}
		counts[w]++
		if counts[w] > top {
			top = counts[w]
		}
	}
	return top*100 >= len(words)*r.MaxDominantWordPct
}

func (r Rules) tooManyLines(s string) bool {
	breaks := strings.Count(s, "\n")
	if r.MaxLineBreaks > 0 && breaks > r.MaxLineBreaks {
		return true
	}
	if breaks <= r.FreeLineBreaks || r.MinRunesPerBreak <= 0 {
		return false
	}
	visible := 0
	for _, c := range s {
		if !unicode.IsSpace(c) {
			visible++
		}
	}
	return visible < breaks*r.MinRunesPerBreak
}

var (
	inlineSpaceRE = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)
	blankRunRE    = regexp.MustCompile(`\n{3,}`)
)

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimSpace(inlineSpaceRE.ReplaceAllString(ln, " "))
	}
	out := strings.Join(lines, "\n")
	return blankRunRE.ReplaceAllString(out, "\n\n")
}
