package lifecycle

import "errors"

// Typed errors the handlers translate to HTTP status codes. Conflict maps
// to 409, the precondition errors to 400, unknown ids to 404 via
// interfaces.ErrNotFound.
var (
	// ErrClaimConflict - the job was pending when the runner saw it but a
	// rival claim landed first.
	ErrClaimConflict = errors.New("already claimed")

	// ErrNotClaimed - the caller's runner id does not match the job's
	// claimed_by.
	ErrNotClaimed = errors.New("not claimed by this runner")

	// ErrNotLive - the job has already reached a terminal state and
	// rejects further mutation.
	ErrNotLive = errors.New("job is not in a live state")

	// ErrUnknownRunner - the X-Runner-ID does not match any registration.
	ErrUnknownRunner = errors.New("unknown runner")
)
