package history

import (
	"strings"
	"time"

	"github.com/imgprompt/imgprompt/internal/errors"
)

// On-disk names of the live page.
const (
	LiveJSONFile = "history.json"
	LiveHTMLFile = "History.html"
)

// Page addresses the live page or one dated archive page.
type Page string

const (
	// Live is the bounded page new entries are appended to.
	Live Page = "live"
	// AnyPage searches the live page, then archives newest first.
	AnyPage Page = ""
)

// ParsePage accepts "live", a YYYYMMDD archive key, or "" for AnyPage.
func ParsePage(s string) (Page, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return AnyPage, nil
	case string(Live):
		return Live, nil
	}
	if !isDateKey(s) {
		return "", errors.NewInvalidRequest("page must be \"live\" or a YYYYMMDD archive date")
	}
	return Page(s), nil
}

// IsArchive reports whether p names a dated archive.
func (p Page) IsArchive() bool {
	return p != Live && p != AnyPage
}

// JSONFile returns the page's JSON file name relative to the base dir.
func (p Page) JSONFile() string {
	if p == Live {
		return LiveJSONFile
	}
	return "History_" + string(p) + ".json"
}

// HTMLFile returns the page's HTML file name relative to the base dir.
func (p Page) HTMLFile() string {
	if p == Live {
		return LiveHTMLFile
	}
	return "History_" + string(p) + ".html"
}

// Title is the heading shown on the rendered page.
func (p Page) Title() string {
	if p == Live {
		return "Prompt History"
	}
	return "Prompt History Archive " + string(p)
}

// PageInfo summarizes one page for listings.
type PageInfo struct {
	Page     Page   `json:"page"`
	Title    string `json:"title"`
	HTMLFile string `json:"html_file"`
	Count    int    `json:"count"`
}

// PageView is everything a Renderer needs to produce one page.
type PageView struct {
	Page    Page
	Title   string
	Entries []Entry
	// Archives lists archive date keys newest first. Set on the live page only.
	Archives []string
	// APIBase is the local server origin, e.g. http://127.0.0.1:3000.
	APIBase       string
	ConfirmDelete bool
}

// Renderer turns a page view into HTML. Implementations must be deterministic.
type Renderer interface {
	Render(view PageView) ([]byte, error)
}

// archivePageFromFile extracts the date key from History_YYYYMMDD.json.
func archivePageFromFile(name string) (Page, bool) {
	rest, ok := strings.CutPrefix(name, "History_")
	if !ok {
		return "", false
	}
	key, ok := strings.CutSuffix(rest, ".json")
	if !ok || !isDateKey(key) {
		return "", false
	}
	return Page(key), true
}

// isPageFile reports whether name is one of the files a page is stored in:
// history.json, History.html or History_YYYYMMDD.{json,html}.
func isPageFile(name string) bool {
	if name == LiveJSONFile || name == LiveHTMLFile {
		return true
	}
	if _, ok := archivePageFromFile(name); ok {
		return true
	}
	rest, ok := strings.CutPrefix(name, "History_")
	if !ok {
		return false
	}
	key, ok := strings.CutSuffix(rest, ".html")
	return ok && isDateKey(key)
}

func isDateKey(s string) bool {
	if len(s) != dateKeyLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	_, err := time.Parse("20060102", s)
	return err == nil
}
