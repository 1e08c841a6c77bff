// Package grading accepts one finalized answer set per (identity, exam),
// grades it and persists the outcome exactly once.
package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/pavelanni/examhall/internal/answer"
	"github.com/pavelanni/examhall/internal/eligibility"
	"github.com/pavelanni/examhall/internal/model"
)

var (
	ErrNoAnswers          = errors.New("no answers provided")
	ErrUnresolvedIdentity = errors.New("identity could not be resolved")
)

// UnknownQuestionError rejects a submission that names a question outside
// the exam. Valid lists the exam's question ids.
type UnknownQuestionError struct {
	QuestionID string
	Valid      []string
}

func (e *UnknownQuestionError) Error() string {
	return fmt.Sprintf("question %q is not part of this exam; valid ids: %s",
		e.QuestionID, strings.Join(e.Valid, ", "))
}

// Repository is the persistence the service needs.
type Repository interface {
	GetExam(ctx context.Context, id string) (*model.Exam, error)
	ExamQuestions(ctx context.Context, examID string) ([]model.Question, error)
	HasSubmission(ctx context.Context, userID, examID string) (bool, error)
	SaveSubmission(ctx context.Context, sub *model.Submission, answers []model.ScoredAnswer) error
}

// Service grades submissions.
type Service struct {
	repo  Repository
	grace time.Duration
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithGrace accepts submissions up to d after the exam deadline.
func WithGrace(d time.Duration) Option {
	return func(s *Service) { s.grace = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Sheet is the graded form of one submission before it is persisted.
type Sheet struct {
	Records     []model.ScoredAnswer
	TotalMarks  float64
	EarnedMarks float64
	Score       float64
	// Unresolved lists choice questions whose correct answer fell back to option A.
	Unresolved []string
}

// Grade grades answers against questions in exam order. Questions without an
// answer are graded as an empty submission.
func Grade(questions []model.Question, answers map[string]string) Sheet {
	var sh Sheet
	for _, q := range questions {
		key := answer.Resolve(q)
		if !key.Resolved {
			sh.Unresolved = append(sh.Unresolved, q.ID)
		}
		submitted := answers[q.ID]
		correct := answer.Matches(key, submitted)
		sh.TotalMarks += q.Mark
		if correct {
			sh.EarnedMarks += q.Mark
		}
		sh.Records = append(sh.Records, model.ScoredAnswer{
			QuestionID: q.ID,
			Answer:     submitted,
			Correct:    correct,
		})
	}
	sh.Score = Percent(sh.EarnedMarks, sh.TotalMarks)
	return sh
}

// Percent returns earned/total as a percentage rounded to two decimals, or 0
// when total is not positive.
func Percent(earned, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(earned/total*100*100) / 100
}

// Submit validates, grades and stores a submission. Every rejection happens
// before anything is written.
func (s *Service) Submit(ctx context.Context, req model.SubmitRequest) (*model.SubmitResult, error) {
	id := req.Identity
	if strings.TrimSpace(id.UserID) == "" {
		return nil, ErrUnresolvedIdentity
	}
	if len(req.Answers) == 0 {
		return nil, ErrNoAnswers
	}

	exam, err := s.repo.GetExam(ctx, req.ExamID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, eligibility.ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if err := s.checkWindow(id, exam); err != nil {
		return nil, err
	}

	questions, err := s.repo.ExamQuestions(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("exam questions: %w", err)
	}
	answers, err := collect(questions, req.Answers)
	if err != nil {
		return nil, err
	}

	done, err := s.repo.HasSubmission(ctx, id.UserID, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("check submission: %w", err)
	}
	if done {
		return nil, model.ErrDuplicateSubmission
	}

	sh := Grade(questions, answers)
	for _, qid := range sh.Unresolved {
		slog.Warn("correct answer not resolvable, defaulting to option A",
			"exam_id", exam.ID, "question_id", qid)
	}

	sub := &model.Submission{
		UserID:      id.UserID,
		ExamID:      exam.ID,
		TotalMarks:  sh.TotalMarks,
		EarnedMarks: sh.EarnedMarks,
		Score:       sh.Score,
		Auto:        req.Auto,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.repo.SaveSubmission(ctx, sub, sh.Records); err != nil {
		if errors.Is(err, model.ErrDuplicateSubmission) {
			return nil, err
		}
		return nil, fmt.Errorf("save submission: %w", err)
	}

	slog.Info("exam graded", "exam_id", exam.ID, "user_id", id.UserID,
		"earned", sh.EarnedMarks, "total", sh.TotalMarks, "score", sh.Score, "auto", req.Auto)
	return &model.SubmitResult{
		ExamID:      exam.ID,
		TotalMarks:  sh.TotalMarks,
		EarnedMarks: sh.EarnedMarks,
		Score:       sh.Score,
		Submitted:   true,
	}, nil
}

// checkWindow applies class assignment and the time window on the server
// clock. The deadline is extended by the grace period so that an
// auto-submit fired at expiry still lands.
func (s *Service) checkWindow(id model.Identity, exam *model.Exam) error {
	if id.HasClass() && !exam.AssignedTo(id.ClassID) {
		return eligibility.ErrNotAssigned
	}
	now := s.now()
	if now.Before(exam.StartAt) {
		return eligibility.ErrNotStarted
	}
	if now.After(exam.EndAt.Add(s.grace)) {
		return eligibility.ErrExpired
	}
	return nil
}

// collect maps submitted answers by question id, rejecting ids outside the
// exam. A repeated id keeps its last answer.
func collect(questions []model.Question, in []model.AnswerInput) (map[string]string, error) {
	valid := make(map[string]bool, len(questions))
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		valid[q.ID] = true
		ids = append(ids, q.ID)
	}
	out := make(map[string]string, len(in))
	for _, a := range in {
		if !valid[a.QuestionID] {
			return nil, &UnknownQuestionError{QuestionID: a.QuestionID, Valid: ids}
		}
		out[a.QuestionID] = a.Answer
	}
	return out, nil
}
