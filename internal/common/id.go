package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique job identifier.
func NewJobID() string {
	return uuid.New().String()
}

// NewRunnerID generates a unique runner identifier, assigned once at
// registration and retained by the runner across restarts.
func NewRunnerID() string {
	return uuid.New().String()
}
