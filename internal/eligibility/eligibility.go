// Package eligibility decides which exams an identity may see, start or has
// already completed. Nothing here is cached: callers classify on every read.
package eligibility

import (
	"errors"
	"sort"
	"time"

	"github.com/pavelanni/examhall/internal/model"
)

// Status is the classification of one exam for one identity at one instant.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusNotStarted  Status = "not_started"
	StatusExpired     Status = "expired"
	StatusCompleted   Status = "completed"
	StatusNotAssigned Status = "not_assigned"
)

var (
	ErrExamNotFound = errors.New("exam not found")
	ErrNotStarted   = errors.New("exam has not started")
	ErrExpired      = errors.New("exam has expired")
	ErrCompleted    = errors.New("exam already completed")
	ErrNotAssigned  = errors.New("exam is not assigned to your class")
)

// Records indexes an identity's scored answers as exam id -> question ids.
type Records map[string]map[string]bool

// RecordsFrom builds Records from scored answers of a single identity.
func RecordsFrom(answers []model.ScoredAnswer) Records {
	r := Records{}
	for _, a := range answers {
		r.Add(a.ExamID, a.QuestionID)
	}
	return r
}

// Add marks questionID as answered under examID.
func (r Records) Add(examID, questionID string) {
	qs, ok := r[examID]
	if !ok {
		qs = map[string]bool{}
		r[examID] = qs
	}
	qs[questionID] = true
}

// IsCompleted reports whether every current question of the exam has a
// record under that exam's own id. Records filed under other exams never
// count, even when the question is shared. An exam without questions is
// never completed.
func IsCompleted(e model.Exam, r Records) bool {
	if len(e.QuestionIDs) == 0 {
		return false
	}
	qs := r[e.ID]
	for _, id := range e.QuestionIDs {
		if !qs[id] {
			return false
		}
	}
	return true
}

// Classify returns the status of the exam for the identity at now. The time
// window is [start, end). Identities without a class skip the class filter.
func Classify(id model.Identity, e model.Exam, r Records, now time.Time) Status {
	if id.HasClass() && !e.AssignedTo(id.ClassID) {
		return StatusNotAssigned
	}
	if IsCompleted(e, r) {
		return StatusCompleted
	}
	if now.Before(e.StartAt) {
		return StatusNotStarted
	}
	if !now.Before(e.EndAt) {
		return StatusExpired
	}
	return StatusAvailable
}

// Err maps a status to its sentinel error; StatusAvailable maps to nil.
func (s Status) Err() error {
	switch s {
	case StatusNotStarted:
		return ErrNotStarted
	case StatusExpired:
		return ErrExpired
	case StatusCompleted:
		return ErrCompleted
	case StatusNotAssigned:
		return ErrNotAssigned
	}
	return nil
}

// Check returns nil when the identity may act on the exam now. A nil exam is
// reported as ErrExamNotFound.
func Check(id model.Identity, e *model.Exam, r Records, now time.Time) error {
	if e == nil {
		return ErrExamNotFound
	}
	return Classify(id, *e, r, now).Err()
}

// Entry is one exam in a partitioned list.
type Entry struct {
	Exam   model.Exam `json:"exam"`
	Status Status     `json:"status"`
	// Score is the stored percentage for completed exams; expired exams that
	// were never attempted carry 0.
	Score float64 `json:"score"`
	// Missed is set for expired exams shown as completed with a zero score.
	Missed bool `json:"missed,omitempty"`
}

// Lists is the student-facing partition of the catalog.
type Lists struct {
	Available []Entry `json:"available"`
	Upcoming  []Entry `json:"upcoming"`
	Completed []Entry `json:"completed"`
}

// Partition splits the catalog for a student. Exams not assigned to the
// identity's class are dropped. Expired exams that were not completed move
// to Completed with a zero score instead of vanishing. scores holds stored
// percentages keyed by exam id.
func Partition(id model.Identity, exams []model.Exam, r Records, scores map[string]float64, now time.Time) Lists {
	l := Lists{Available: []Entry{}, Upcoming: []Entry{}, Completed: []Entry{}}
	for _, e := range exams {
		st := Classify(id, e, r, now)
		switch st {
		case StatusAvailable:
			l.Available = append(l.Available, Entry{Exam: e, Status: st})
		case StatusNotStarted:
			l.Upcoming = append(l.Upcoming, Entry{Exam: e, Status: st})
		case StatusCompleted:
			l.Completed = append(l.Completed, Entry{Exam: e, Status: st, Score: scores[e.ID]})
		case StatusExpired:
			l.Completed = append(l.Completed, Entry{Exam: e, Status: StatusCompleted, Missed: true})
		}
	}
	sort.SliceStable(l.Available, func(i, j int) bool { return l.Available[i].Exam.EndAt.Before(l.Available[j].Exam.EndAt) })
	sort.SliceStable(l.Upcoming, func(i, j int) bool { return l.Upcoming[i].Exam.StartAt.Before(l.Upcoming[j].Exam.StartAt) })
	sort.SliceStable(l.Completed, func(i, j int) bool { return l.Completed[i].Exam.EndAt.After(l.Completed[j].Exam.EndAt) })
	return l
}

// Authoring returns the whole catalog with no time or class filter, as seen
// by staff on the authoring surface. Statuses reflect the time window only.
func Authoring(exams []model.Exam, now time.Time) []Entry {
	out := make([]Entry, 0, len(exams))
	staff := model.Identity{}
	for _, e := range exams {
		out = append(out, Entry{Exam: e, Status: Classify(staff, e, nil, now)})
	}
	return out
}
