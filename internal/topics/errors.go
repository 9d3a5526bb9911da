package topics

import "errors"

var (
	// ErrNotFound is returned when a referenced topic does not exist
	ErrNotFound = errors.New("topic not found")

	// ErrCapacityExceeded is returned when a hierarchy level is full
	ErrCapacityExceeded = errors.New("topic capacity exceeded for level")

	// ErrHasChildren is returned when deleting a topic with children without force
	ErrHasChildren = errors.New("topic has child topics")
)
