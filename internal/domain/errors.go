package domain

import "errors"

var (
	// ErrInvalidQuestion indicates a question whose correct letter does not
	// index into its option list, or that is otherwise unusable.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrQuestionSetNotFound indicates the question pool could not be loaded.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrNoAPIKey indicates no usable credentials remain for a collaborator.
	ErrNoAPIKey = errors.New("no api key available")
)
