package reconcile

import (
	"fmt"

	"github.com/onnwee/streamwatch/streamer"
)

// LoadError means tracked accounts could not be read; the reconciliation did not run.
type LoadError struct {
	Err error
}

func (e *LoadError) Error() string { return "load tracked accounts: " + e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }

// PersistenceError means a status write for (Platform, Username) failed.
type PersistenceError struct {
	Platform streamer.Platform
	Username string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist status %s/%s: %v", e.Platform, e.Username, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
