package extract

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/beekhof/shiftsync/internal/message"
	"github.com/beekhof/shiftsync/internal/shift"
)

const (
	// DefaultPollInterval matches the portal script's table check interval.
	DefaultPollInterval = 1000 * time.Millisecond
	// DefaultTimeout bounds the wait for the schedule table to render.
	DefaultTimeout = 5 * time.Minute

	shiftSeparator = " - "
)

// Row holds the text of the two cells read from one schedule row.
// A nil field means the cell was not present in the row.
type Row struct {
	Date  *string `json:"date"`
	Shift *string `json:"shift"`
}

// Document is a possibly-still-rendering page that may contain the schedule
// table.
type Document interface {
	// HasTable reports whether the schedule table is present yet.
	HasTable(ctx context.Context) (bool, error)
	// Rows returns the cells of every body row of the schedule table.
	Rows(ctx context.Context) ([]Row, error)
}

// Selectors locate the schedule inside the portal page.
type Selectors struct {
	Table     string `json:"table" yaml:"table"`
	Row       string `json:"row" yaml:"row"`
	DateCell  string `json:"date_cell" yaml:"date_cell"`
	ShiftCell string `json:"shift_cell" yaml:"shift_cell"`
}

// DefaultSelectors returns the selectors used by the Kronos schedule page.
func DefaultSelectors() Selectors {
	return Selectors{
		Table:     ".schedule-table",
		Row:       "tbody tr",
		DateCell:  "td.date-column",
		ShiftCell: "td.shift-column",
	}
}

// WithDefaults fills every empty selector from DefaultSelectors, so a
// configuration may override just one of them.
func (s Selectors) WithDefaults() Selectors {
	def := DefaultSelectors()
	if s.Table == "" {
		s.Table = def.Table
	}
	if s.Row == "" {
		s.Row = def.Row
	}
	if s.DateCell == "" {
		s.DateCell = def.DateCell
	}
	if s.ShiftCell == "" {
		s.ShiftCell = def.ShiftCell
	}
	return s
}

// Extractor waits for the schedule table and parses it exactly once.
type Extractor struct {
	doc          Document
	pollInterval time.Duration
	timeout      time.Duration
	offMarkers   []string
	verbose      bool
}

// Options configure an Extractor. Zero values select the defaults, except
// that a negative Timeout waits for the table forever.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
	OffMarkers   []string
	Verbose      bool
}

// NewExtractor creates an Extractor reading from doc.
func NewExtractor(doc Document, opts Options) *Extractor {
	e := &Extractor{
		doc:          doc,
		pollInterval: opts.PollInterval,
		timeout:      opts.Timeout,
		offMarkers:   opts.OffMarkers,
		verbose:      opts.Verbose,
	}
	if e.pollInterval <= 0 {
		e.pollInterval = DefaultPollInterval
	}
	if e.timeout == 0 {
		e.timeout = DefaultTimeout
	}
	if len(e.offMarkers) == 0 {
		e.offMarkers = []string{"Off"}
	}
	return e
}

// Run extracts the schedule and sends it on out as a single scheduleData
// message. Nothing is sent if extraction fails.
func (e *Extractor) Run(ctx context.Context, out chan<- message.Message) error {
	schedule, err := e.Extract(ctx)
	if err != nil {
		return err
	}

	select {
	case out <- message.ScheduleData(schedule):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Extract waits for the schedule table and returns the worked shifts it
// contains, in row order.
func (e *Extractor) Extract(ctx context.Context) (shift.Collection, error) {
	if err := e.waitForTable(ctx); err != nil {
		return nil, err
	}

	rows, err := e.doc.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule rows: %w", err)
	}

	schedule := e.parseRows(rows)
	log.Printf("Extracted %d shifts from %d schedule rows", len(schedule), len(rows))
	return schedule, nil
}

// waitForTable polls the document until the table appears, the timeout
// expires or ctx is done. With a negative timeout it only returns once the
// table appears or ctx is done.
func (e *Extractor) waitForTable(ctx context.Context) error {
	started := time.Now()

	var deadline <-chan time.Time
	if e.timeout > 0 {
		timer := time.NewTimer(e.timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		found, err := e.doc.HasTable(ctx)
		if err != nil {
			log.Printf("Warning: schedule table check failed: %v", err)
		} else if found {
			if e.verbose {
				log.Printf("DEBUG: schedule table found after %s", time.Since(started).Round(time.Millisecond))
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return &TimeoutError{Waited: time.Since(started)}
		case <-ticker.C:
		}
	}
}

func (e *Extractor) parseRows(rows []Row) shift.Collection {
	schedule := shift.Collection{}
	for i, row := range rows {
		rec, ok, err := e.parseRow(i, row)
		if err != nil {
			log.Printf("Warning: skipping schedule row: %v", err)
			continue
		}
		if !ok {
			continue
		}
		schedule = append(schedule, rec)
	}
	return schedule
}

// parseRow returns ok=false for rows that are not worked shifts.
func (e *Extractor) parseRow(index int, row Row) (shift.Record, bool, error) {
	if row.Date == nil || row.Shift == nil {
		return shift.Record{}, false, nil
	}

	date := strings.TrimSpace(*row.Date)
	text := strings.TrimSpace(*row.Shift)
	if text == "" || e.isOff(text) {
		if e.verbose {
			log.Printf("DEBUG: row %d (%s) is not a worked shift: %q", index, date, text)
		}
		return shift.Record{}, false, nil
	}

	parts := strings.Split(text, shiftSeparator)
	if len(parts) != 2 {
		return shift.Record{}, false, &RowParseError{Index: index, Text: text, Reason: fmt.Sprintf("expected one %q separator", shiftSeparator)}
	}

	start := strings.TrimSpace(parts[0])
	end := strings.TrimSpace(parts[1])
	if start == "" || end == "" {
		return shift.Record{}, false, &RowParseError{Index: index, Text: text, Reason: "missing start or end time"}
	}

	return shift.Record{Date: date, Start: start, End: end}, true, nil
}

func (e *Extractor) isOff(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range e.offMarkers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
