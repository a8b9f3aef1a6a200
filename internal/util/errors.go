package util

import "errors"

var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvalidInput            = errors.New("invalid input")
	ErrAlreadyAnswered         = errors.New("already answered")
	ErrPhaseOrder              = errors.New("phase 1 not answered yet")
	ErrNotAnswered             = errors.New("question not answered yet")
	ErrSessionNotFound         = errors.New("session not found")
	ErrSessionQuestionNotFound = errors.New("session question not found")
	ErrSessionNotActive        = errors.New("session is not active")
	ErrAllocationBusy          = errors.New("another allocation is in progress for this user")
)
