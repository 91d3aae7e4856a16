package calendar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/beekhof/shiftsync/internal/auth"
	"github.com/beekhof/shiftsync/internal/shift"

	"github.com/emersion/go-ical"
)

// ICSPublisher appends shift events to a local iCalendar file, for review or
// manual import. The credential is ignored.
type ICSPublisher struct {
	name     string
	path     string
	template EventTemplate
	now      func() time.Time

	mu sync.Mutex
}

// NewICSPublisher creates a publisher writing to path.
func NewICSPublisher(name, path string, tmpl EventTemplate) *ICSPublisher {
	if name == "" {
		name = filepath.Base(path)
	}
	return &ICSPublisher{
		name:     name,
		path:     path,
		template: tmpl,
		now:      time.Now,
	}
}

// Name implements sync.Publisher.
func (p *ICSPublisher) Name() string {
	return p.name
}

// Publish adds one VEVENT for rec to the file, creating it if needed.
func (p *ICSPublisher) Publish(ctx context.Context, cred *auth.Credential, rec shift.Record) error {
	vevent, err := buildVEvent(p.template, rec, newUID(), p.now())
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cal, err := p.load()
	if err != nil {
		return err
	}
	cal.Children = append(cal.Children, vevent)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}

	if err := writeFileAtomic(p.path, buf.Bytes()); err != nil {
		return newRemoteError(rec, err)
	}
	return nil
}

func (p *ICSPublisher) load() (*ical.Calendar, error) {
	f, err := os.Open(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return newCalendar(), nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", p.path, err)
	}
	defer f.Close()

	cal, err := ical.NewDecoder(f).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", p.path, err)
	}
	return cal, nil
}

// writeFileAtomic writes data via a temp file in the same directory and a
// rename, so readers never see a half-written calendar.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".shiftsync-*.ics.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
