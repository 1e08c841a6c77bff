package model

import "time"

// ExamExport is the top-level JSON structure for exam result export.
type ExamExport struct {
	ExamID     string          `json:"exam_id"`
	Title      string          `json:"title"`
	Subject    string          `json:"subject,omitempty"`
	TotalMarks float64         `json:"total_marks"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one student's graded submission for export.
type StudentResult struct {
	UserID      string           `json:"user_id"`
	DisplayName string           `json:"display_name"`
	ClassID     string           `json:"class_id,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	Auto        bool             `json:"auto"`
	EarnedMarks float64          `json:"earned_marks"`
	Score       float64          `json:"score"`
	Questions   []QuestionResult `json:"questions"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	QuestionID string  `json:"question_id"`
	Answer     string  `json:"answer"`
	Correct    bool    `json:"correct"`
	Mark       float64 `json:"mark"`
}
