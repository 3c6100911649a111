package domain

import "errors"

var (
	// ErrValidation indicates the input was rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrTemplateNotFound is returned when a schedule template cannot be located.
	ErrTemplateNotFound = errors.New("schedule template not found")
	// ErrInstanceNotFound is returned when an activity instance cannot be located.
	ErrInstanceNotFound = errors.New("activity instance not found")
	// ErrInvalidState indicates a lifecycle transition is illegal from the instance's current state.
	ErrInvalidState = errors.New("transition not allowed from current state")
)
