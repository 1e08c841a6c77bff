// Package review rebuilds a graded attempt for read-only display.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/examhall/internal/answer"
	"github.com/pavelanni/examhall/internal/eligibility"
	"github.com/pavelanni/examhall/internal/grading"
	"github.com/pavelanni/examhall/internal/model"
)

// ErrIncomplete is returned when the identity has no complete record set
// for the exam.
var ErrIncomplete = errors.New("no complete graded attempt for this exam")

// Item is one reviewed question. Indices are -1 when not applicable.
type Item struct {
	QuestionID   string             `json:"question_id"`
	Text         string             `json:"text"`
	Type         model.QuestionType `json:"type"`
	Options      []string           `json:"options,omitempty"`
	Mark         float64            `json:"mark"`
	Answer       string             `json:"answer"`
	Correct      bool               `json:"correct"`
	ChosenIndex  int                `json:"chosen_index"`
	CorrectIndex int                `json:"correct_index"`
	ChosenBool   *bool              `json:"chosen_bool,omitempty"`
	CorrectBool  *bool              `json:"correct_bool,omitempty"`
	CorrectText  string             `json:"correct_text"`
}

// Review is a reconstructed attempt.
type Review struct {
	ExamID      string    `json:"exam_id"`
	Title       string    `json:"title"`
	UserID      string    `json:"user_id"`
	Items       []Item    `json:"items"`
	TotalMarks  float64   `json:"total_marks"`
	EarnedMarks float64   `json:"earned_marks"`
	Score       float64   `json:"score"`
	Auto        bool      `json:"auto"`
	SubmittedAt time.Time `json:"submitted_at,omitzero"`
}

// Reconstruct joins the exam's current questions with the stored records by
// question id. Every question must have a record; otherwise ErrIncomplete.
func Reconstruct(questions []model.Question, records []model.ScoredAnswer) ([]Item, error) {
	if len(questions) == 0 {
		return nil, ErrIncomplete
	}
	byQ := make(map[string]model.ScoredAnswer, len(records))
	for _, r := range records {
		byQ[r.QuestionID] = r
	}
	items := make([]Item, 0, len(questions))
	for _, q := range questions {
		rec, ok := byQ[q.ID]
		if !ok {
			return nil, fmt.Errorf("%w: question %s has no record", ErrIncomplete, q.ID)
		}
		key := answer.Resolve(q)
		it := Item{
			QuestionID:   q.ID,
			Text:         q.Text,
			Type:         key.Type,
			Options:      key.Options,
			Mark:         q.Mark,
			Answer:       rec.Answer,
			Correct:      rec.Correct,
			ChosenIndex:  -1,
			CorrectIndex: key.Index,
			CorrectBool:  key.Bool,
			CorrectText:  key.Text,
		}
		if key.Type != model.TypeFillBlank {
			it.ChosenIndex = answer.ChoiceIndex(key, rec.Answer)
		}
		if key.Type == model.TypeTrueFalse {
			if b, err := answer.ParseBool(rec.Answer); err == nil {
				it.ChosenBool = &b
			}
		}
		items = append(items, it)
	}
	return items, nil
}

// Repository is the persistence the reconstructor reads from.
type Repository interface {
	GetExam(ctx context.Context, id string) (*model.Exam, error)
	ExamQuestions(ctx context.Context, examID string) ([]model.Question, error)
	ScoredAnswers(ctx context.Context, userID, examID string) ([]model.ScoredAnswer, error)
	GetSubmission(ctx context.Context, userID, examID string) (*model.Submission, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Review rebuilds userID's attempt at examID.
func (s *Service) Review(ctx context.Context, userID, examID string) (*Review, error) {
	exam, err := s.repo.GetExam(ctx, examID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, eligibility.ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	questions, err := s.repo.ExamQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("exam questions: %w", err)
	}
	records, err := s.repo.ScoredAnswers(ctx, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("scored answers: %w", err)
	}
	items, err := Reconstruct(questions, records)
	if err != nil {
		return nil, err
	}

	rv := &Review{ExamID: exam.ID, Title: exam.Title, UserID: userID, Items: items}
	for _, it := range items {
		rv.TotalMarks += it.Mark
		if it.Correct {
			rv.EarnedMarks += it.Mark
		}
	}
	rv.Score = grading.Percent(rv.EarnedMarks, rv.TotalMarks)

	sub, err := s.repo.GetSubmission(ctx, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if sub != nil {
		rv.Auto, rv.SubmittedAt = sub.Auto, sub.SubmittedAt
	}
	return rv, nil
}
