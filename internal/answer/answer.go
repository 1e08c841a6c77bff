// Package answer interprets a question's stored options and correct-answer
// field. It is the only place where question type is inferred; every caller
// (import validation, attempt rendering, grading, review) goes through it.
package answer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pavelanni/examhall/internal/model"
)

var (
	// ErrUnrecognizedBool is returned for true/false literals other than true/t/false/f.
	ErrUnrecognizedBool = errors.New("unrecognized true/false literal")
	// ErrEmptyPrompt is returned for questions without prompt text.
	ErrEmptyPrompt = errors.New("question text is empty")
	// ErrNegativeMark is returned for questions with a mark below zero.
	ErrNegativeMark = errors.New("question mark is negative")
)

// Occupied returns the non-blank option slots in A..D order, trimmed.
func Occupied(q model.Question) []string {
	var out []string
	for _, s := range q.Slots() {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Infer classifies a question from its option occupancy: four occupied slots
// are multiple-choice, exactly two holding the literals True and False are
// true/false, anything else is fill-in-blank.
func Infer(q model.Question) model.QuestionType {
	opts := Occupied(q)
	switch {
	case len(opts) == 4:
		return model.TypeMultipleChoice
	case len(opts) == 2 && isTrueFalsePair(opts[0], opts[1]):
		return model.TypeTrueFalse
	default:
		return model.TypeFillBlank
	}
}

func isTrueFalsePair(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return (a == "true" && b == "false") || (a == "false" && b == "true")
}

// LetterIndex maps a single uppercase letter A..D to its zero-based index.
// Lowercase keys are option text, not letter codes.
func LetterIndex(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 1 {
		return 0, false
	}
	c := s[0]
	if c < 'A' || c > 'D' {
		return 0, false
	}
	return int(c - 'A'), true
}

// Letter is the inverse of LetterIndex.
func Letter(i int) string {
	if i < 0 || i > 3 {
		return ""
	}
	return string(rune('A' + i))
}

// ResolveIndex maps the correct-answer field to an index into Occupied(q).
// A letter code wins; otherwise the trimmed answer is matched exactly against
// the option texts. When neither resolves, index 0 is returned with ok=false.
func ResolveIndex(q model.Question) (idx int, ok bool) {
	opts := Occupied(q)
	ans := strings.TrimSpace(q.Answer)
	if i, isLetter := LetterIndex(ans); isLetter && i < len(opts) {
		return i, true
	}
	for i, o := range opts {
		if o == ans {
			return i, true
		}
	}
	return 0, false
}

// ParseBool accepts true/t and false/f in any case.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t":
		return true, nil
	case "false", "f":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnrecognizedBool, s)
}

// Key is the resolved correct answer of a question.
type Key struct {
	Type    model.QuestionType
	Options []string
	// Index into Options; -1 for fill-in-blank.
	Index int
	// Bool is set for true/false questions.
	Bool *bool
	// Text is what submissions are compared against.
	Text string
	// Resolved is false when a choice question fell back to index 0.
	Resolved bool
}

// Resolve builds the Key for a question.
func Resolve(q model.Question) Key {
	k := Key{Type: Infer(q), Index: -1, Resolved: true}
	switch k.Type {
	case model.TypeFillBlank:
		k.Text = strings.TrimSpace(q.Answer)
		return k
	case model.TypeTrueFalse:
		k.Options = Occupied(q)
		if b, err := ParseBool(q.Answer); err == nil {
			for i, o := range k.Options {
				if strings.EqualFold(o, strconv.FormatBool(b)) {
					k.Index, k.Text, k.Bool = i, o, &b
					return k
				}
			}
		}
	default:
		k.Options = Occupied(q)
	}

	k.Index, k.Resolved = ResolveIndex(q)
	k.Text = k.Options[k.Index]
	if k.Type == model.TypeTrueFalse {
		if b, err := ParseBool(k.Text); err == nil {
			k.Bool = &b
		}
	}
	return k
}

// Matches reports whether submitted text is equivalent to the key. Empty
// submissions never match.
func Matches(k Key, submitted string) bool {
	s := strings.TrimSpace(submitted)
	if s == "" {
		return false
	}
	return strings.EqualFold(s, strings.TrimSpace(k.Text))
}

// ChoiceIndex returns the option a submission picked, or -1.
func ChoiceIndex(k Key, submitted string) int {
	s := strings.TrimSpace(submitted)
	if s == "" {
		return -1
	}
	for i, o := range k.Options {
		if strings.EqualFold(o, s) {
			return i
		}
	}
	return -1
}

// NormalizeMark applies the import default: a zero mark becomes 1.
func NormalizeMark(m float64) float64 {
	if m == 0 {
		return 1
	}
	return m
}

// Validate checks a question at authoring time.
func Validate(q model.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return ErrEmptyPrompt
	}
	if q.Mark < 0 {
		return ErrNegativeMark
	}
	if Infer(q) == model.TypeTrueFalse {
		if _, err := ParseBool(q.Answer); err != nil {
			return err
		}
	}
	return nil
}

// AttemptView strips the correct answer for delivery to a student.
func AttemptView(q model.Question) model.AttemptQuestion {
	aq := model.AttemptQuestion{ID: q.ID, Text: q.Text, Type: Infer(q), Mark: q.Mark}
	if aq.Type != model.TypeFillBlank {
		aq.Options = Occupied(q)
	}
	return aq
}
