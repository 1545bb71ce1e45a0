// Package uid provides unique identifier generation for SDRVault.
package uid

import (
	"github.com/google/uuid"
)

// New returns a time-based (version 1) UUID string for use as a workspace id.
// Version 1 ids are unique for the lifetime of the process: the clock
// sequence is bumped whenever the clock moves backwards. If the node id
// cannot be determined, a random (version 4) UUID is returned instead.
func New() string {
	id, err := uuid.NewUUID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Temp returns a short random suffix for temporary file names.
func Temp() string {
	id := uuid.New()
	return id.String()[:8]
}
