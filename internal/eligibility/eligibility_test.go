package eligibility

import (
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/examhall/internal/model"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func openExam(id string, qids ...string) model.Exam {
	return model.Exam{
		ID:          id,
		Title:       "Exam " + id,
		QuestionIDs: qids,
		StartAt:     now.Add(-time.Hour),
		EndAt:       now.Add(time.Hour),
	}
}

func student(class string) model.Identity {
	return model.Identity{UserID: "u1", Role: model.UserRoleStudent, ClassID: class}
}

func TestClassVisibility(t *testing.T) {
	multi := openExam("e1", "q1")
	multi.ClassIDs = []string{"A", "C"}
	legacy := openExam("e2", "q1")
	legacy.ClassID = "A"

	tests := []struct {
		name  string
		exam  model.Exam
		class string
		want  Status
	}{
		{"multi set includes C", multi, "C", StatusAvailable},
		{"multi set excludes B", multi, "B", StatusNotAssigned},
		{"legacy field A", legacy, "A", StatusAvailable},
		{"legacy field not B", legacy, "B", StatusNotAssigned},
		{"padded class id", multi, " A ", StatusAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(student(tt.class), tt.exam, nil, now); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimeWindow(t *testing.T) {
	e := openExam("e1", "q1")
	e.ClassIDs = []string{"A"}
	tests := []struct {
		name string
		at   time.Time
		want Status
	}{
		{"before start", e.StartAt.Add(-time.Second), StatusNotStarted},
		{"at start", e.StartAt, StatusAvailable},
		{"inside", now, StatusAvailable},
		{"at end is closed", e.EndAt, StatusExpired},
		{"after end", e.EndAt.Add(time.Minute), StatusExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(student("A"), e, nil, tt.at); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCompletionNonLeakage(t *testing.T) {
	exam1 := openExam("exam1", "Q", "q2")
	exam2 := openExam("exam2", "Q", "q3")
	exam1.ClassIDs = []string{"A"}
	exam2.ClassIDs = []string{"A"}

	r := RecordsFrom([]model.ScoredAnswer{
		{ExamID: "exam1", QuestionID: "Q"},
		{ExamID: "exam1", QuestionID: "q2"},
	})

	if got := Classify(student("A"), exam1, r, now); got != StatusCompleted {
		t.Errorf("exam1 = %q, want completed", got)
	}
	if got := Classify(student("A"), exam2, r, now); got != StatusAvailable {
		t.Errorf("exam2 = %q, want available", got)
	}

	// Partial coverage under the exam's own id is not completion either.
	r.Add("exam2", "Q")
	if IsCompleted(exam2, r) {
		t.Error("partial record set counted as completed")
	}
	r.Add("exam2", "q3")
	if !IsCompleted(exam2, r) {
		t.Error("full record set not counted as completed")
	}
}

func TestEmptyExamNeverCompleted(t *testing.T) {
	if IsCompleted(openExam("e"), Records{"e": {}}) {
		t.Error("exam without questions reported completed")
	}
}

func TestStaffSkipsClassFilter(t *testing.T) {
	e := openExam("e1", "q1")
	e.ClassIDs = []string{"A"}
	staff := model.Identity{UserID: "t1", Role: model.UserRoleTeacher}
	if got := Classify(staff, e, nil, now); got != StatusAvailable {
		t.Errorf("Classify() = %q, want available", got)
	}
}

func TestCheck(t *testing.T) {
	e := openExam("e1", "q1")
	e.ClassIDs = []string{"A"}
	done := RecordsFrom([]model.ScoredAnswer{{ExamID: "e1", QuestionID: "q1"}})

	tests := []struct {
		name string
		exam *model.Exam
		id   model.Identity
		r    Records
		at   time.Time
		want error
	}{
		{"missing", nil, student("A"), nil, now, ErrExamNotFound},
		{"ok", &e, student("A"), nil, now, nil},
		{"not assigned", &e, student("B"), nil, now, ErrNotAssigned},
		{"not started", &e, student("A"), nil, e.StartAt.Add(-time.Minute), ErrNotStarted},
		{"expired", &e, student("A"), nil, e.EndAt, ErrExpired},
		{"completed", &e, student("A"), done, now, ErrCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.id, tt.exam, tt.r, tt.at)
			if !errors.Is(err, tt.want) {
				t.Errorf("Check() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPartition(t *testing.T) {
	avail := openExam("avail", "q1")
	soon := openExam("soon", "q1")
	soon.StartAt, soon.EndAt = now.Add(time.Hour), now.Add(2*time.Hour)
	missed := openExam("missed", "q1")
	missed.StartAt, missed.EndAt = now.Add(-2*time.Hour), now.Add(-time.Hour)
	done := openExam("done", "q1")
	other := openExam("other", "q1")
	other.ClassIDs = []string{"B"}
	for _, e := range []*model.Exam{&avail, &soon, &missed, &done} {
		e.ClassIDs = []string{"A"}
	}

	r := RecordsFrom([]model.ScoredAnswer{{ExamID: "done", QuestionID: "q1"}})
	l := Partition(student("A"), []model.Exam{avail, soon, missed, done, other}, r, map[string]float64{"done": 75}, now)

	if len(l.Available) != 1 || l.Available[0].Exam.ID != "avail" {
		t.Errorf("available = %+v", l.Available)
	}
	if len(l.Upcoming) != 1 || l.Upcoming[0].Exam.ID != "soon" {
		t.Errorf("upcoming = %+v", l.Upcoming)
	}
	if len(l.Completed) != 2 {
		t.Fatalf("completed = %+v", l.Completed)
	}
	byID := map[string]Entry{}
	for _, c := range l.Completed {
		byID[c.Exam.ID] = c
	}
	if c := byID["done"]; c.Score != 75 || c.Missed {
		t.Errorf("done entry = %+v", c)
	}
	if c := byID["missed"]; c.Score != 0 || !c.Missed || c.Status != StatusCompleted {
		t.Errorf("missed entry = %+v", c)
	}
}

func TestAuthoringSeesEverything(t *testing.T) {
	past := openExam("past", "q1")
	past.StartAt, past.EndAt = now.Add(-2*time.Hour), now.Add(-time.Hour)
	past.ClassIDs = []string{"Z"}
	got := Authoring([]model.Exam{openExam("cur"), past}, now)
	if len(got) != 2 {
		t.Fatalf("Authoring() returned %d entries, want 2", len(got))
	}
	if got[1].Status != StatusExpired {
		t.Errorf("past status = %q", got[1].Status)
	}
}
