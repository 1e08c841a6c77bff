package grading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/examhall/internal/eligibility"
	"github.com/pavelanni/examhall/internal/model"
	"github.com/pavelanni/examhall/internal/store"
)

var start = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

var bank = []model.Question{
	{ID: "mc", Text: "Capital of the UK?", OptionA: "Paris", OptionB: "London", OptionC: "Berlin", OptionD: "Madrid", Answer: "B", Mark: 2},
	{ID: "tf", Text: "The sun is a star", OptionA: "True", OptionB: "False", Answer: "T", Mark: 1},
	{ID: "fill", Text: "Chemical symbol of gold", Answer: "Au", Mark: 1},
}

func testExam() model.Exam {
	return model.Exam{
		ID: "exam1", Title: "Mixed",
		ClassIDs:    []string{"7A"},
		QuestionIDs: []string{"mc", "tf", "fill"},
		StartAt:     start,
		EndAt:       start.Add(30 * time.Minute),
	}
}

func newService(t *testing.T, now time.Time, opts ...Option) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(context.Background(), store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.ImportCatalog(context.Background(), bank, []model.Exam{testExam()}); err != nil {
		t.Fatalf("import: %v", err)
	}
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewService(st, opts...), st
}

func alice() model.Identity {
	return model.Identity{UserID: "alice", Role: model.UserRoleStudent, ClassID: "7A"}
}

func TestGradeEquivalence(t *testing.T) {
	tests := []struct {
		name      string
		submitted string
		want      bool
	}{
		{"exact option text", "London", true},
		{"case varied", "london", true},
		{"other option", "Paris", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh := Grade(bank[:1], map[string]string{"mc": tt.submitted})
			if sh.Records[0].Correct != tt.want {
				t.Errorf("Correct = %v, want %v", sh.Records[0].Correct, tt.want)
			}
		})
	}
}

func TestGradeAggregation(t *testing.T) {
	sh := Grade(bank, map[string]string{"mc": "London", "tf": "false", "fill": " au "})
	if sh.TotalMarks != 4 || sh.EarnedMarks != 3 || sh.Score != 75 {
		t.Errorf("got total=%v earned=%v score=%v", sh.TotalMarks, sh.EarnedMarks, sh.Score)
	}
	if len(sh.Records) != 3 || sh.Records[1].Correct {
		t.Errorf("records = %+v", sh.Records)
	}
	if len(sh.Unresolved) != 0 {
		t.Errorf("unexpected unresolved: %v", sh.Unresolved)
	}
}

func TestGradeFlagsUnresolved(t *testing.T) {
	q := model.Question{ID: "bad", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", Answer: "zzz", Mark: 1}
	sh := Grade([]model.Question{q}, map[string]string{"bad": "a"})
	if len(sh.Unresolved) != 1 || sh.Unresolved[0] != "bad" {
		t.Errorf("Unresolved = %v", sh.Unresolved)
	}
	// Grading outcome is unchanged: option A is treated as correct.
	if !sh.Records[0].Correct {
		t.Error("fallback to option A not applied")
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		earned, total, want float64
	}{
		{0, 0, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{3, 3, 100},
		{0, 5, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.earned, tt.total); got != tt.want {
			t.Errorf("Percent(%v, %v) = %v, want %v", tt.earned, tt.total, got, tt.want)
		}
	}
}

func TestSubmitPartial(t *testing.T) {
	svc, st := newService(t, start.Add(time.Minute))
	ctx := context.Background()

	res, err := svc.Submit(ctx, model.SubmitRequest{
		ExamID:   "exam1",
		Identity: alice(),
		Answers: []model.AnswerInput{
			{QuestionID: "mc", Answer: "London"},
			{QuestionID: "tf", Answer: "True"},
		},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.TotalMarks != 4 || res.EarnedMarks != 3 || res.Score != 75 || !res.Submitted {
		t.Errorf("result = %+v", res)
	}

	recs, err := st.ScoredAnswers(ctx, "alice", "exam1")
	if err != nil {
		t.Fatalf("ScoredAnswers: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for _, r := range recs {
		if r.QuestionID == "fill" && (r.Correct || r.Answer != "") {
			t.Errorf("unanswered question stored as %+v", r)
		}
	}
}

func TestSubmitIdempotent(t *testing.T) {
	svc, st := newService(t, start.Add(time.Minute))
	ctx := context.Background()
	req := model.SubmitRequest{ExamID: "exam1", Identity: alice(), Answers: []model.AnswerInput{{QuestionID: "mc", Answer: "London"}}}

	if _, err := svc.Submit(ctx, req); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	req.Answers = []model.AnswerInput{{QuestionID: "mc", Answer: "London"}, {QuestionID: "fill", Answer: "Au"}}
	if _, err := svc.Submit(ctx, req); !errors.Is(err, model.ErrDuplicateSubmission) {
		t.Fatalf("second Submit = %v, want ErrDuplicateSubmission", err)
	}
	sub, err := st.GetSubmission(ctx, "alice", "exam1")
	if err != nil || sub == nil || sub.EarnedMarks != 2 {
		t.Errorf("stored submission = %+v, %v", sub, err)
	}
}

func TestSubmitConcurrentDuplicates(t *testing.T) {
	svc, st := newService(t, start.Add(time.Minute))
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(ctx, model.SubmitRequest{
				ExamID: "exam1", Identity: alice(),
				Answers: []model.AnswerInput{{QuestionID: "fill", Answer: "Au"}},
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
		} else if !errors.Is(err, model.ErrDuplicateSubmission) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d submissions accepted, want 1", ok)
	}
	recs, _ := st.ScoredAnswers(ctx, "alice", "exam1")
	if len(recs) != 3 {
		t.Errorf("got %d records, want 3", len(recs))
	}
}

func TestSubmitRejections(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		req  model.SubmitRequest
		want error
	}{
		{
			name: "no identity",
			now:  start,
			req:  model.SubmitRequest{ExamID: "exam1", Answers: []model.AnswerInput{{QuestionID: "mc"}}},
			want: ErrUnresolvedIdentity,
		},
		{
			name: "no answers",
			now:  start,
			req:  model.SubmitRequest{ExamID: "exam1", Identity: alice()},
			want: ErrNoAnswers,
		},
		{
			name: "unknown exam",
			now:  start,
			req:  model.SubmitRequest{ExamID: "nope", Identity: alice(), Answers: []model.AnswerInput{{QuestionID: "mc"}}},
			want: eligibility.ErrExamNotFound,
		},
		{
			name: "other class",
			now:  start,
			req: model.SubmitRequest{ExamID: "exam1", Identity: model.Identity{UserID: "bob", ClassID: "7B"},
				Answers: []model.AnswerInput{{QuestionID: "mc"}}},
			want: eligibility.ErrNotAssigned,
		},
		{
			name: "before start",
			now:  start.Add(-time.Second),
			req:  model.SubmitRequest{ExamID: "exam1", Identity: alice(), Answers: []model.AnswerInput{{QuestionID: "mc"}}},
			want: eligibility.ErrNotStarted,
		},
		{
			name: "past grace",
			now:  start.Add(30*time.Minute + 2*time.Minute + time.Second),
			req:  model.SubmitRequest{ExamID: "exam1", Identity: alice(), Answers: []model.AnswerInput{{QuestionID: "mc"}}},
			want: eligibility.ErrExpired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newService(t, tt.now, WithGrace(2*time.Minute))
			_, err := svc.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Submit = %v, want %v", err, tt.want)
			}
			if ok, _ := st.HasSubmission(context.Background(), tt.req.Identity.UserID, tt.req.ExamID); ok {
				t.Error("rejected submission left records")
			}
		})
	}
}

func TestSubmitUnknownQuestion(t *testing.T) {
	svc, st := newService(t, start)
	_, err := svc.Submit(context.Background(), model.SubmitRequest{
		ExamID: "exam1", Identity: alice(),
		Answers: []model.AnswerInput{{QuestionID: "mc", Answer: "London"}, {QuestionID: "stray", Answer: "x"}},
	})
	var uq *UnknownQuestionError
	if !errors.As(err, &uq) {
		t.Fatalf("Submit = %v, want UnknownQuestionError", err)
	}
	if uq.QuestionID != "stray" || len(uq.Valid) != 3 {
		t.Errorf("error = %+v", uq)
	}
	if ok, _ := st.HasSubmission(context.Background(), "alice", "exam1"); ok {
		t.Error("rejected submission left records")
	}
}

func TestSubmitWithinGrace(t *testing.T) {
	svc, _ := newService(t, start.Add(31*time.Minute), WithGrace(2*time.Minute))
	res, err := svc.Submit(context.Background(), model.SubmitRequest{
		ExamID: "exam1", Identity: alice(), Auto: true,
		Answers: []model.AnswerInput{{QuestionID: "mc", Answer: ""}},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.EarnedMarks != 0 || res.Score != 0 {
		t.Errorf("result = %+v", res)
	}
}
