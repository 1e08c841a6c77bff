package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/examhall/internal/model"
)

// ExportExam builds export-ready results for every submission of an exam.
func (s *Store) ExportExam(ctx context.Context, examID string) (*model.ExamExport, error) {
	exam, err := s.GetExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam %s: %w", examID, err)
	}
	questions, err := s.ExamQuestions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("exam questions: %w", err)
	}
	marks := make(map[string]float64, len(questions))
	var total float64
	for _, q := range questions {
		marks[q.ID] = q.Mark
		total += q.Mark
	}

	subs, err := s.ExamSubmissions(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	out := &model.ExamExport{
		ExamID:     exam.ID,
		Title:      exam.Title,
		Subject:    exam.Subject,
		TotalMarks: total,
		Results:    []model.StudentResult{},
	}
	for _, sub := range subs {
		user, err := s.GetUserByID(ctx, sub.UserID)
		if err != nil {
			return nil, fmt.Errorf("get user %s: %w", sub.UserID, err)
		}
		records, err := s.ScoredAnswers(ctx, sub.UserID, examID)
		if err != nil {
			return nil, fmt.Errorf("scored answers of %s: %w", sub.UserID, err)
		}

		r := model.StudentResult{
			UserID:      sub.UserID,
			SubmittedAt: sub.SubmittedAt,
			Auto:        sub.Auto,
			EarnedMarks: sub.EarnedMarks,
			Score:       sub.Score,
		}
		if user != nil {
			r.DisplayName = user.DisplayName
			r.ClassID = user.ClassID
		}
		for _, rec := range records {
			r.Questions = append(r.Questions, model.QuestionResult{
				QuestionID: rec.QuestionID,
				Answer:     rec.Answer,
				Correct:    rec.Correct,
				Mark:       marks[rec.QuestionID],
			})
		}
		out.Results = append(out.Results, r)
	}
	return out, nil
}
