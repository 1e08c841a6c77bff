package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examhall/internal/model"
)

// SaveSubmission writes the summary row and every scored answer of one
// submission as a single unit. If (user, exam) already has a submission or
// any scored answer, nothing is written and model.ErrDuplicateSubmission is
// returned. A concurrent duplicate that slips past the check is caught by the
// unique constraints and reported the same way.
func (s *Store) SaveSubmission(ctx context.Context, sub *model.Submission, answers []model.ScoredAnswer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (
		   SELECT id FROM submissions WHERE user_id = $1 AND exam_id = $2
		   UNION ALL
		   SELECT id FROM scored_answers WHERE user_id = $3 AND exam_id = $4
		 ) existing`, sub.UserID, sub.ExamID, sub.UserID, sub.ExamID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing submission: %w", err)
	}
	if exists > 0 {
		return model.ErrDuplicateSubmission
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (id, user_id, exam_id, total_marks, earned_marks, score, auto, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID, sub.UserID, sub.ExamID, sub.TotalMarks, sub.EarnedMarks, sub.Score, sub.Auto, unix(sub.SubmittedAt),
	)
	if err != nil {
		return mapWriteErr(err)
	}

	for i := range answers {
		a := &answers[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.UserID, a.ExamID = sub.UserID, sub.ExamID
		a.CreatedAt = sub.SubmittedAt
		_, err := tx.ExecContext(ctx,
			`INSERT INTO scored_answers (id, user_id, exam_id, question_id, answer, correct, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, a.UserID, a.ExamID, a.QuestionID, a.Answer, a.Correct, unix(a.CreatedAt),
		)
		if err != nil {
			return mapWriteErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapWriteErr(err)
	}
	slog.Info("submission saved", "exam_id", sub.ExamID, "user_id", sub.UserID,
		"records", len(answers), "score", sub.Score, "auto", sub.Auto)
	return nil
}

func mapWriteErr(err error) error {
	if isUniqueViolation(err) {
		return model.ErrDuplicateSubmission
	}
	return err
}

// HasSubmission reports whether any outcome exists for (user, exam).
func (s *Store) HasSubmission(ctx context.Context, userID, examID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scored_answers WHERE user_id = $1 AND exam_id = $2`, userID, examID,
	).Scan(&n)
	return n > 0, err
}

const scoredColumns = `id, user_id, exam_id, question_id, answer, correct, created_at`

func (s *Store) queryScored(ctx context.Context, query string, args ...any) ([]model.ScoredAnswer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ScoredAnswer
	for rows.Next() {
		var a model.ScoredAnswer
		var created int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.ExamID, &a.QuestionID, &a.Answer, &a.Correct, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = fromUnix(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ScoredAnswers returns the user's records for one exam.
func (s *Store) ScoredAnswers(ctx context.Context, userID, examID string) ([]model.ScoredAnswer, error) {
	return s.queryScored(ctx,
		`SELECT `+scoredColumns+` FROM scored_answers WHERE user_id = $1 AND exam_id = $2 ORDER BY question_id`,
		userID, examID)
}

// UserScoredAnswers returns every record of the user across exams.
func (s *Store) UserScoredAnswers(ctx context.Context, userID string) ([]model.ScoredAnswer, error) {
	return s.queryScored(ctx,
		`SELECT `+scoredColumns+` FROM scored_answers WHERE user_id = $1 ORDER BY exam_id, question_id`,
		userID)
}

const submissionColumns = `id, user_id, exam_id, total_marks, earned_marks, score, auto, submitted_at`

func scanSubmission(sc interface{ Scan(...any) error }) (model.Submission, error) {
	var sub model.Submission
	var at int64
	err := sc.Scan(&sub.ID, &sub.UserID, &sub.ExamID, &sub.TotalMarks, &sub.EarnedMarks, &sub.Score, &sub.Auto, &at)
	sub.SubmittedAt = fromUnix(at)
	return sub, err
}

// GetSubmission returns the summary row for (user, exam), or nil if absent.
func (s *Store) GetSubmission(ctx context.Context, userID, examID string) (*model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE user_id = $1 AND exam_id = $2`, userID, examID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UserScores returns stored score percentages of the user keyed by exam id.
func (s *Store) UserScores(ctx context.Context, userID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT exam_id, score FROM submissions WHERE user_id = $1`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scores := map[string]float64{}
	for rows.Next() {
		var examID string
		var score float64
		if err := rows.Scan(&examID, &score); err != nil {
			return nil, err
		}
		scores[examID] = score
	}
	return scores, rows.Err()
}

// ExamSubmissions returns every submission of an exam, oldest first.
func (s *Store) ExamSubmissions(ctx context.Context, examID string) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE exam_id = $1 ORDER BY submitted_at, user_id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
