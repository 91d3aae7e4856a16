package calendar

import (
	"errors"
	"fmt"

	"github.com/beekhof/shiftsync/internal/shift"

	"google.golang.org/api/googleapi"
)

// RemoteError reports that a calendar server rejected an event for a shift.
type RemoteError struct {
	Record     shift.Record
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("failed to create calendar event for %s: HTTP %d: %v", e.Record, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("failed to create calendar event for %s: %v", e.Record, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// newRemoteError wraps err, pulling the HTTP status out of Google API errors.
func newRemoteError(rec shift.Record, err error) *RemoteError {
	remote := &RemoteError{Record: rec, Err: err}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		remote.StatusCode = apiErr.Code
	}
	return remote
}
