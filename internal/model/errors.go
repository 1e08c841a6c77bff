package model

import "errors"

var (
	// ErrNotFound is returned by stores when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateSubmission is returned when (identity, exam) already has a graded outcome.
	ErrDuplicateSubmission = errors.New("exam already submitted")
)
