package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/beekhof/shiftsync/internal/extract"

	"github.com/chromedp/chromedp"
)

func TestOpen_RequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), Options{}); err == nil {
		t.Error("Expected error for missing URL")
	}
}

func TestHasTableScript(t *testing.T) {
	got := hasTableScript(extract.DefaultSelectors())
	want := `document.querySelector(".schedule-table") !== null`
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestRowsScript_QuotesSelectors(t *testing.T) {
	sel := extract.Selectors{
		Table:     `table[data-id="x"]`,
		Row:       "tbody tr",
		DateCell:  "td.date-column",
		ShiftCell: "td.shift-column",
	}
	script := rowsScript(sel)

	for _, want := range []string{
		`document.querySelector("table[data-id=\"x\"]")`,
		`table.querySelectorAll("tbody tr")`,
		`date: text(row, "td.date-column")`,
		`shift: text(row, "td.shift-column")`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("Expected script to contain %s, got:\n%s", want, script)
		}
	}
}

func TestSubmitMFA_EmptyCode(t *testing.T) {
	s := &Session{ctx: context.Background(), cancel: func() {}}
	if err := s.SubmitMFA(context.Background(), ""); err == nil {
		t.Error("Expected error for empty code")
	}
}

// findBrowser skips the test when no Chromium build is installed.
func findBrowser(t *testing.T) {
	t.Helper()
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if _, err := exec.LookPath(name); err == nil {
			return
		}
	}
	t.Skip("no Chromium browser installed")
}

const parityPage = `<!DOCTYPE html>
<html><body><div id="app">
<table class="schedule-table"><thead><tr><th>Date</th><th>Shift</th></tr></thead><tbody>
<tr><td class="date-column">Mon 01/01/24</td><td class="shift-column">9:00 AM - 5:00 PM</td></tr>
<tr><td class="notes">Holiday week</td></tr>
<tr><td class="date-column">Thu 01/04/24</td><td class="shift-column">13:00 - 21:30</td></tr>
</tbody></table>
</div></body></html>`

func TestRows_MatchOfflineDocument(t *testing.T) {
	findBrowser(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(parityPage))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	session, err := Open(ctx, Options{
		URL:          server.URL,
		Headless:     true,
		allocOptions: []chromedp.ExecAllocatorOption{chromedp.NoSandbox},
	})
	if err != nil {
		t.Fatalf("Open() returned an error: %v", err)
	}
	defer session.Close()

	for _, sel := range []extract.Selectors{
		{},
		{Row: ".schedule-table tbody tr"},
		{Row: "#app tbody tr"},
		{Row: "tbody > tr", DateCell: "td:first-child", ShiftCell: "td:nth-child(2)"},
		{Row: "tr"},
	} {
		session.selectors = sel.WithDefaults()
		live, err := session.Rows(ctx)
		if err != nil {
			t.Fatalf("Rows(%+v) returned an error: %v", sel, err)
		}

		doc, err := extract.ParseHTML(strings.NewReader(parityPage), sel)
		if err != nil {
			t.Fatalf("ParseHTML(%+v) returned an error: %v", sel, err)
		}
		offline, err := doc.Rows(ctx)
		if err != nil {
			t.Fatalf("offline Rows(%+v) returned an error: %v", sel, err)
		}

		if len(live) != len(offline) {
			t.Fatalf("Selectors %+v: browser found %d rows, offline found %d", sel, len(live), len(offline))
		}
		for i := range live {
			if cellText(live[i].Date) != cellText(offline[i].Date) || cellText(live[i].Shift) != cellText(offline[i].Shift) {
				t.Errorf("Selectors %+v row %d: browser %s/%s, offline %s/%s", sel, i,
					cellText(live[i].Date), cellText(live[i].Shift),
					cellText(offline[i].Date), cellText(offline[i].Shift))
			}
		}
	}
}

func cellText(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}
