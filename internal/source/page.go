// Package source finds the published timetable on the faculty page and
// downloads it.
package source

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrRowNotFound is returned when no table row matches the course label.
	ErrRowNotFound = errors.New("source: course row not found")
	// ErrNoLink is returned when the matching row has no workbook link.
	ErrNoLink = errors.New("source: course row has no link")
)

// Link is the workbook reference published for one course.
type Link struct {
	// URL is the absolute workbook URL.
	URL string
	// UpdateDate is the first dotted token of the row's second cell,
	// e.g. "02.12.2024" from "aktualizacja 02.12.2024". May be empty.
	UpdateDate string
}

// FindLink scans the page's table rows for the first one whose first cell
// contains match and does not contain exclude (an empty exclude is ignored).
// Relative links are resolved against base.
func FindLink(page io.Reader, base *url.URL, match, exclude string) (Link, error) {
	doc, err := goquery.NewDocumentFromReader(page)
	if err != nil {
		return Link{}, fmt.Errorf("source: parse page: %w", err)
	}

	var row *goquery.Selection
	doc.Find("table tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		first := tr.Find("td").First()
		if first.Length() == 0 {
			return true
		}
		text := first.Text()
		if !strings.Contains(text, match) {
			return true
		}
		if exclude != "" && strings.Contains(text, exclude) {
			return true
		}
		row = tr
		return false
	})
	if row == nil {
		return Link{}, ErrRowNotFound
	}

	tds := row.Find("td")
	href, ok := tds.First().Find("a[href]").First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return Link{}, ErrNoLink
	}
	ref, err := url.Parse(href)
	if err != nil {
		return Link{}, fmt.Errorf("source: bad link %q: %w", href, err)
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}

	return Link{
		URL:        abs.String(),
		UpdateDate: dottedToken(tds.Eq(1).Text()),
	}, nil
}

func dottedToken(s string) string {
	for _, p := range strings.Fields(s) {
		if strings.Contains(p, ".") {
			return p
		}
	}
	return ""
}
