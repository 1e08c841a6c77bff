// Package views renders the read-only HTML pages.
package views

import (
	"context"
	"strconv"

	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/review"
)

func formatMark(m float64) string {
	return strconv.FormatFloat(m, 'f', -1, 64)
}

func scoreLine(ctx context.Context, rv *review.Review) string {
	return appI18n.Td(ctx, "ScoreLine", map[string]any{
		"Earned": formatMark(rv.EarnedMarks),
		"Total":  formatMark(rv.TotalMarks),
		"Score":  strconv.FormatFloat(rv.Score, 'f', 1, 64),
	})
}

func labeled(ctx context.Context, labelID, value string) string {
	return appI18n.T(ctx, labelID) + ": " + value
}

// optionClass marks the chosen option and the key; both may be the same.
func optionClass(it review.Item, i int) string {
	switch {
	case i == it.ChosenIndex && i == it.CorrectIndex:
		return "chosen key ok"
	case i == it.ChosenIndex:
		return "chosen bad"
	case i == it.CorrectIndex:
		return "key"
	}
	return ""
}
