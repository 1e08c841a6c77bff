package model

import (
	"context"
	"strings"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// IsStaff reports whether the role authors exams rather than takes them.
func (r UserRole) IsStaff() bool {
	return r == UserRoleTeacher || r == UserRoleAdmin
}

// User represents a system user.
type User struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	ClassID      string
	Active       bool
	CreatedAt    time.Time
}

// Identity is the caller as seen by the exam core: an opaque id, a role and
// an optional class assignment.
type Identity struct {
	UserID  string   `json:"user_id"`
	Role    UserRole `json:"role"`
	ClassID string   `json:"class_id,omitempty"`
}

// HasClass reports whether the identity is bound to a class.
func (id Identity) HasClass() bool {
	return strings.TrimSpace(id.ClassID) != ""
}

type identityCtxKey struct{}

// ContextWithIdentity stores the caller identity in the request context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, id)
}

// IdentityFromContext retrieves the caller identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityCtxKey{}).(Identity)
	return id, ok && id.UserID != ""
}

// QuestionType is derived from option occupancy, never stored.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeTrueFalse      QuestionType = "true_false"
	TypeFillBlank      QuestionType = "fill_blank"
)

// Question is a bank-owned question. The four option slots encode its type.
type Question struct {
	ID      string  `json:"id"`
	Text    string  `json:"text"`
	OptionA string  `json:"option_a,omitempty"`
	OptionB string  `json:"option_b,omitempty"`
	OptionC string  `json:"option_c,omitempty"`
	OptionD string  `json:"option_d,omitempty"`
	Answer  string  `json:"answer"`
	Mark    float64 `json:"mark"`
}

// Slots returns the four option slots in A..D order, empty or not.
func (q Question) Slots() [4]string {
	return [4]string{q.OptionA, q.OptionB, q.OptionC, q.OptionD}
}

// Exam is an ordered list of question references with a visibility window.
type Exam struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Grade       string    `json:"grade,omitempty"`
	ClassIDs    []string  `json:"class_ids,omitempty"`
	ClassID     string    `json:"class_id,omitempty"` // legacy single-class assignment
	QuestionIDs []string  `json:"question_ids"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
}

// AssignedTo reports whether the exam is assigned to the class, either via
// the many-to-many set or the legacy field.
func (e Exam) AssignedTo(classID string) bool {
	classID = strings.TrimSpace(classID)
	if classID == "" {
		return false
	}
	if strings.TrimSpace(e.ClassID) == classID {
		return true
	}
	for _, c := range e.ClassIDs {
		if strings.TrimSpace(c) == classID {
			return true
		}
	}
	return false
}

// HasQuestion reports whether the question id is part of the exam.
func (e Exam) HasQuestion(questionID string) bool {
	for _, id := range e.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// ScoredAnswer is the immutable per-question grading outcome.
type ScoredAnswer struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ExamID     string    `json:"exam_id"`
	QuestionID string    `json:"question_id"`
	Answer     string    `json:"answer"`
	Correct    bool      `json:"correct"`
	CreatedAt  time.Time `json:"created_at"`
}

// Submission is the summary row written alongside the scored answers.
type Submission struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	ExamID      string    `json:"exam_id"`
	TotalMarks  float64   `json:"total_marks"`
	EarnedMarks float64   `json:"earned_marks"`
	Score       float64   `json:"score"`
	Auto        bool      `json:"auto"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// AnswerInput is one submitted answer.
type AnswerInput struct {
	QuestionID string `json:"question_id" validate:"required"`
	Answer     string `json:"answer"`
}

// SubmitRequest is the payload accepted by the submission endpoint.
type SubmitRequest struct {
	ExamID   string        `json:"exam_id"`
	Identity Identity      `json:"-"`
	Answers  []AnswerInput `json:"answers" validate:"dive"`
	Auto     bool          `json:"auto"`
}

// SubmitResult is returned on a successful submission.
type SubmitResult struct {
	ExamID      string  `json:"exam_id"`
	TotalMarks  float64 `json:"total_marks"`
	EarnedMarks float64 `json:"earned_marks"`
	Score       float64 `json:"score"`
	Submitted   bool    `json:"submitted"`
}

// AttemptQuestion is a question as served to a student: no correct answer.
type AttemptQuestion struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type"`
	Options []string     `json:"options,omitempty"`
	Mark    float64      `json:"mark"`
}

// AttemptPayload is what a client needs to run a timed attempt.
type AttemptPayload struct {
	ExamID    string            `json:"exam_id"`
	Title     string            `json:"title"`
	EndAt     time.Time         `json:"end_at"`
	ServerNow time.Time         `json:"server_now"`
	Questions []AttemptQuestion `json:"questions"`
}
