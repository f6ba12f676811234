package services

import "errors"

var (
	// ErrMatchNotFound means the match id has neither live state nor a
	// persisted result.
	ErrMatchNotFound = errors.New("match not found")

	// ErrInvalidState means the operation does not apply to the match's
	// current status, e.g. answering a finished battle.
	ErrInvalidState = errors.New("match is in the wrong state for this operation")

	// ErrNoQuestions means the question pool cannot supply enough distinct
	// questions for a battle in the requested language.
	ErrNoQuestions = errors.New("no questions available")
)
