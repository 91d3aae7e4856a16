package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// HTMLDocument is a Document backed by a static HTML page, e.g. a schedule
// page saved from the browser. The table is either there or it is not, so
// HasTable never changes its answer.
//
// Scoped lookups follow the browser's element.querySelectorAll: candidates
// are descendants of the scope element, but the whole selector is matched
// against the document, ancestors above the scope included. The same
// Selectors therefore find the same rows here and in a live portal session.
type HTMLDocument struct {
	root  *html.Node
	table cascadia.Selector
	row   cascadia.Selector
	date  cascadia.Selector
	shift cascadia.Selector
}

// ParseHTML parses r into an HTMLDocument using sel to locate the schedule.
// Empty selectors fall back to DefaultSelectors.
func ParseHTML(r io.Reader, sel Selectors) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	sel = sel.WithDefaults()
	doc := &HTMLDocument{root: root}
	for _, s := range []struct {
		dst  *cascadia.Selector
		text string
	}{
		{&doc.table, sel.Table},
		{&doc.row, sel.Row},
		{&doc.date, sel.DateCell},
		{&doc.shift, sel.ShiftCell},
	} {
		compiled, err := cascadia.Compile(s.text)
		if err != nil {
			return nil, fmt.Errorf("invalid selector %q: %w", s.text, err)
		}
		*s.dst = compiled
	}

	return doc, nil
}

// LoadHTMLFile reads and parses a saved schedule page.
func LoadHTMLFile(path string, sel Selectors) (*HTMLDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open HTML file: %w", err)
	}
	defer f.Close()

	return ParseHTML(f, sel)
}

// HasTable implements Document.
func (d *HTMLDocument) HasTable(ctx context.Context) (bool, error) {
	return cascadia.Query(d.root, d.table) != nil, nil
}

// Rows implements Document.
func (d *HTMLDocument) Rows(ctx context.Context) ([]Row, error) {
	table := cascadia.Query(d.root, d.table)
	if table == nil {
		return nil, fmt.Errorf("schedule table not found")
	}

	var rows []Row
	// QueryAll visits descendants only, and Match walks every ancestor.
	for _, tr := range cascadia.QueryAll(table, d.row) {
		var row Row
		if cell := cascadia.Query(tr, d.date); cell != nil {
			text := textContent(cell)
			row.Date = &text
		}
		if cell := cascadia.Query(tr, d.shift); cell != nil {
			text := textContent(cell)
			row.Shift = &text
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}
