package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/examhall/internal/model"
)

// ImportCatalog upserts questions and exams in one transaction. Questions are
// written first so that exam_questions can reference them. An exam's class
// set and question list are replaced, not merged.
func (s *Store) ImportCatalog(ctx context.Context, questions []model.Question, exams []model.Exam) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range questions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id, text, option_a, option_b, option_c, option_d, answer, mark)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT(id) DO UPDATE SET text = excluded.text, option_a = excluded.option_a,
			   option_b = excluded.option_b, option_c = excluded.option_c, option_d = excluded.option_d,
			   answer = excluded.answer, mark = excluded.mark`,
			q.ID, q.Text, q.OptionA, q.OptionB, q.OptionC, q.OptionD, q.Answer, q.Mark,
		)
		if err != nil {
			return fmt.Errorf("upsert question %s: %w", q.ID, err)
		}
	}

	for _, e := range exams {
		if err := upsertExam(ctx, tx, e); err != nil {
			return fmt.Errorf("upsert exam %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("catalog imported", "questions", len(questions), "exams", len(exams))
	return nil
}

func upsertExam(ctx context.Context, tx *sql.Tx, e model.Exam) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO exams (id, title, description, subject, grade, class_id, start_at, end_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT(id) DO UPDATE SET title = excluded.title, description = excluded.description,
		   subject = excluded.subject, grade = excluded.grade, class_id = excluded.class_id,
		   start_at = excluded.start_at, end_at = excluded.end_at`,
		e.ID, e.Title, e.Description, e.Subject, e.Grade, e.ClassID, unix(e.StartAt), unix(e.EndAt),
	)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM exam_classes WHERE exam_id = $1`, e.ID); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, c := range e.ClassIDs {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exam_classes (exam_id, class_id) VALUES ($1, $2)`, e.ID, c,
		); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM exam_questions WHERE exam_id = $1`, e.ID); err != nil {
		return err
	}
	for i, qid := range e.QuestionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO exam_questions (exam_id, question_id, position) VALUES ($1, $2, $3)`, e.ID, qid, i,
		); err != nil {
			return err
		}
	}
	return nil
}

const examColumns = `id, title, description, subject, grade, class_id, start_at, end_at`

func scanExam(sc interface{ Scan(...any) error }) (model.Exam, error) {
	var e model.Exam
	var start, end int64
	err := sc.Scan(&e.ID, &e.Title, &e.Description, &e.Subject, &e.Grade, &e.ClassID, &start, &end)
	e.StartAt, e.EndAt = fromUnix(start), fromUnix(end)
	return e, err
}

// GetExam returns an exam with its classes and ordered question ids.
// Returns model.ErrNotFound if it does not exist.
func (s *Store) GetExam(ctx context.Context, id string) (*model.Exam, error) {
	e, err := scanExam(s.db.QueryRowContext(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadExamRefs(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExams returns the whole catalog ordered by start time.
func (s *Store) ListExams(ctx context.Context) ([]model.Exam, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+examColumns+` FROM exams ORDER BY start_at, id`)
	if err != nil {
		return nil, err
	}
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		exams = append(exams, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// References are loaded after the cursor is closed: sqlite runs on a single connection.
	for i := range exams {
		if err := s.loadExamRefs(ctx, &exams[i]); err != nil {
			return nil, err
		}
	}
	return exams, nil
}

func (s *Store) loadExamRefs(ctx context.Context, e *model.Exam) error {
	classes, err := s.queryStrings(ctx,
		`SELECT class_id FROM exam_classes WHERE exam_id = $1 ORDER BY class_id`, e.ID)
	if err != nil {
		return fmt.Errorf("exam classes: %w", err)
	}
	qids, err := s.queryStrings(ctx,
		`SELECT question_id FROM exam_questions WHERE exam_id = $1 ORDER BY position`, e.ID)
	if err != nil {
		return fmt.Errorf("exam questions: %w", err)
	}
	e.ClassIDs, e.QuestionIDs = classes, qids
	return nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

const questionColumns = `id, text, option_a, option_b, option_c, option_d, answer, mark`

// GetQuestion returns a question by id, or model.ErrNotFound.
func (s *Store) GetQuestion(ctx context.Context, id string) (model.Question, error) {
	var q model.Question
	err := s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.Answer, &q.Mark)
	if errors.Is(err, sql.ErrNoRows) {
		return q, model.ErrNotFound
	}
	return q, err
}

// ExamQuestions returns the exam's questions in exam order.
func (s *Store) ExamQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id, q.text, q.option_a, q.option_b, q.option_c, q.option_d, q.answer, q.mark
		 FROM exam_questions eq JOIN questions q ON q.id = eq.question_id
		 WHERE eq.exam_id = $1 ORDER BY eq.position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Text, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD, &q.Answer, &q.Mark); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// QuestionIDs returns which of the given ids exist in the bank.
func (s *Store) QuestionIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	got, err := s.queryStrings(ctx,
		`SELECT id FROM questions WHERE id IN (`+placeholders(1, len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	for _, id := range got {
		found[id] = true
	}
	return found, nil
}

// QuestionCount returns the number of questions in the bank.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
