package model

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrValidation       = errors.New("validation failed")
	ErrAlreadyAttempted = errors.New("exam already attempted")
	ErrAlreadyAnswered  = errors.New("question already answered")
	ErrDeadlinePassed   = errors.New("deadline passed")
	ErrPracticeExpired  = errors.New("practice session expired")
	ErrNotInProgress    = errors.New("session is not in progress")
	ErrNoQuestions      = errors.New("no questions available")
	ErrUnavailable      = errors.New("service not configured")
	ErrConflict         = errors.New("already exists")
)
