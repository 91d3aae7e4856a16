// Package portal drives the scheduling portal in a Chromium window so the
// user can log in and the schedule table can be read once it renders.
package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/beekhof/shiftsync/internal/extract"

	"github.com/chromedp/chromedp"
)

const (
	mfaInputSelector  = "#mfaCode"
	mfaButtonSelector = "#verify-mfa-button"

	// DefaultMFATimeout bounds how long SubmitMFA waits for the MFA form.
	DefaultMFATimeout = 30 * time.Second
)

// Options configure a Session.
type Options struct {
	// URL of the portal schedule page. Required.
	URL string
	// Headless hides the browser window. The portal login usually needs a
	// visible window, so the default is false.
	Headless bool
	// Selectors locate the schedule table. Empty fields select the defaults.
	Selectors extract.Selectors
	Verbose   bool

	// allocOptions are appended to the Chromium launch flags.
	allocOptions []chromedp.ExecAllocatorOption
}

// Session is a live browser tab on the portal. It implements
// extract.Document and sync.MFARelay.
type Session struct {
	ctx       context.Context
	cancel    context.CancelFunc
	selectors extract.Selectors
	verbose   bool
}

// Open launches Chromium and navigates to opts.URL. The browser stays open
// until Close is called or parent is cancelled.
func Open(parent context.Context, opts Options) (*Session, error) {
	if opts.URL == "" {
		return nil, errors.New("portal: URL is required")
	}
	opts.Selectors = opts.Selectors.WithDefaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
	)
	allocOpts = append(allocOpts, opts.allocOptions...)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)

	var ctxOpts []chromedp.ContextOption
	if opts.Verbose {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(log.Printf))
	}
	ctx, ctxCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	s := &Session{
		ctx: ctx,
		cancel: func() {
			ctxCancel()
			allocCancel()
		},
		selectors: opts.Selectors,
		verbose:   opts.Verbose,
	}

	log.Printf("Opening portal at %s", opts.URL)
	if err := chromedp.Run(ctx, chromedp.Navigate(opts.URL)); err != nil {
		s.Close()
		return nil, fmt.Errorf("portal: failed to open %s: %w", opts.URL, err)
	}

	return s, nil
}

// Close shuts the browser down.
func (s *Session) Close() {
	s.cancel()
}

// run executes actions in the browser tab, aborting early if ctx is done.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// HasTable implements extract.Document.
func (s *Session) HasTable(ctx context.Context) (bool, error) {
	var found bool
	if err := s.run(ctx, chromedp.Evaluate(hasTableScript(s.selectors), &found)); err != nil {
		return false, fmt.Errorf("portal: table check failed: %w", err)
	}
	if s.verbose {
		log.Printf("DEBUG: schedule table present: %v", found)
	}
	return found, nil
}

// Rows implements extract.Document.
func (s *Session) Rows(ctx context.Context) ([]extract.Row, error) {
	var rows []extract.Row
	if err := s.run(ctx, chromedp.Evaluate(rowsScript(s.selectors), &rows)); err != nil {
		return nil, fmt.Errorf("portal: failed to read rows: %w", err)
	}
	return rows, nil
}

// SubmitMFA fills the one-time code into the login form and submits it.
func (s *Session) SubmitMFA(ctx context.Context, code string) error {
	if code == "" {
		return errors.New("portal: empty MFA code")
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultMFATimeout)
	defer cancel()

	err := s.run(ctx,
		chromedp.WaitVisible(mfaInputSelector, chromedp.ByQuery),
		chromedp.SetValue(mfaInputSelector, code, chromedp.ByQuery),
		chromedp.Click(mfaButtonSelector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("portal: failed to submit MFA code: %w", err)
	}
	log.Println("Submitted MFA code")
	return nil
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func hasTableScript(sel extract.Selectors) string {
	return fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(sel.Table))
}

// rowsScript returns an expression yielding [{date, shift}] for every row
// of the table, with null for a missing cell.
func rowsScript(sel extract.Selectors) string {
	return fmt.Sprintf(`(() => {
	const table = document.querySelector(%s);
	if (!table) return [];
	const text = (row, sel) => {
		const cell = row.querySelector(sel);
		return cell ? cell.textContent : null;
	};
	return Array.from(table.querySelectorAll(%s)).map(row => ({
		date: text(row, %s),
		shift: text(row, %s),
	}));
})()`, jsString(sel.Table), jsString(sel.Row), jsString(sel.DateCell), jsString(sel.ShiftCell))
}
