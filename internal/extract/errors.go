package extract

import (
	"fmt"
	"time"
)

// RowParseError describes a schedule row that looked like a worked shift but
// could not be split into start and end times. Such rows are skipped.
type RowParseError struct {
	Index  int
	Text   string
	Reason string
}

func (e *RowParseError) Error() string {
	return fmt.Sprintf("row %d: %s: %q", e.Index, e.Reason, e.Text)
}

// TimeoutError is returned when the schedule table did not appear before the
// extractor's timeout expired.
type TimeoutError struct {
	Waited time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("schedule table did not appear after %s", e.Waited.Round(time.Second))
}
