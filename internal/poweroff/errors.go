package poweroff

import "errors"

var (
	// ErrTaskNotFound is returned when no task exists for the query.
	ErrTaskNotFound = errors.New("power-off task not found")

	// ErrTaskStateConflict is returned when an operation loses a status
	// race, e.g. cancelling a task that already started executing.
	ErrTaskStateConflict = errors.New("power-off task state conflict")
)
