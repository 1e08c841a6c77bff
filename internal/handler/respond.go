package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examhall/internal/auth"
	"github.com/pavelanni/examhall/internal/catalog"
	"github.com/pavelanni/examhall/internal/eligibility"
	"github.com/pavelanni/examhall/internal/grading"
	appI18n "github.com/pavelanni/examhall/internal/i18n"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/review"
	"github.com/pavelanni/examhall/internal/store"
)

var (
	errBadRequest   = errors.New("bad request")
	errUnauthorized = errors.New("unauthorized")
	errForbidden    = errors.New("forbidden")
)

// inputError carries a validation detail to the client.
type inputError struct {
	detail string
}

func (e *inputError) Error() string { return "invalid input: " + e.detail }

func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return &inputError{detail: err.Error()}
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fe.Field()+" "+fe.Tag())
	}
	return &inputError{detail: strings.Join(parts, ", ")}
}

type errorBody struct {
	Message string   `json:"message"`
	Valid   []string `json:"valid_question_ids,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps err to a status code and a localized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status, msgID := http.StatusInternalServerError, "ErrInternal"
	body := errorBody{}

	var unknown *grading.UnknownQuestionError
	var input *inputError
	var invalid *catalog.ValidationError
	switch {
	case errors.As(err, &unknown):
		status = http.StatusUnprocessableEntity
		body.Message = appI18n.Td(ctx, "ErrUnknownQuestion", map[string]any{
			"QuestionID": unknown.QuestionID,
			"Valid":      strings.Join(unknown.Valid, ", "),
		})
		body.Valid = unknown.Valid
	case errors.As(err, &input):
		status = http.StatusUnprocessableEntity
		body.Message = appI18n.Td(ctx, "ErrValidation", map[string]any{"Detail": input.detail})
	case errors.As(err, &invalid):
		status = http.StatusUnprocessableEntity
		body.Message = appI18n.Td(ctx, "ErrValidation", map[string]any{"Detail": strings.Join(invalid.Problems, "; ")})
	case errors.Is(err, errUserNotFound):
		status, msgID = http.StatusNotFound, "ErrUserNotFound"
	case errors.Is(err, eligibility.ErrExamNotFound), errors.Is(err, model.ErrNotFound):
		status, msgID = http.StatusNotFound, "ErrExamNotFound"
	case errors.Is(err, review.ErrIncomplete):
		status, msgID = http.StatusNotFound, "ErrReviewIncomplete"
	case errors.Is(err, eligibility.ErrNotAssigned):
		status, msgID = http.StatusForbidden, "ErrExamNotAssigned"
	case errors.Is(err, eligibility.ErrNotStarted):
		status, msgID = http.StatusConflict, "ErrExamNotStarted"
	case errors.Is(err, eligibility.ErrExpired):
		status, msgID = http.StatusConflict, "ErrExamExpired"
	case errors.Is(err, eligibility.ErrCompleted):
		status, msgID = http.StatusConflict, "ErrExamCompleted"
	case errors.Is(err, model.ErrDuplicateSubmission):
		status, msgID = http.StatusConflict, "ErrDuplicateSubmission"
	case errors.Is(err, store.ErrUsernameTaken):
		status, msgID = http.StatusConflict, "ErrUsernameTaken"
	case errors.Is(err, grading.ErrNoAnswers):
		status, msgID = http.StatusUnprocessableEntity, "ErrNoAnswers"
	case errors.Is(err, grading.ErrUnresolvedIdentity):
		status, msgID = http.StatusUnauthorized, "ErrUnresolvedIdentity"
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, msgID = http.StatusUnauthorized, "ErrInvalidCredentials"
	case errors.Is(err, errUnauthorized), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrMissingToken):
		status, msgID = http.StatusUnauthorized, "ErrUnauthorized"
	case errors.Is(err, errForbidden):
		status, msgID = http.StatusForbidden, "ErrForbidden"
	case errors.Is(err, errBadRequest):
		status, msgID = http.StatusBadRequest, "ErrBadRequest"
	}
	if body.Message == "" {
		body.Message = appI18n.T(ctx, msgID)
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, body)
}
