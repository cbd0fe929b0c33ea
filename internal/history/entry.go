package history

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Id and timestamp layouts. Both use local time.
const (
	idTimeLayout = "20060102_150405"
	tsLayout     = "2006-01-02 15:04:05"
	dateKeyLen   = 8
)

// Entry is one history record as stored in history.json and archive files.
type Entry struct {
	ID     string   `json:"id"`
	TS     string   `json:"ts"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
}

// Lines splits the prompt into its lines.
func (e Entry) Lines() []string {
	return strings.Split(e.Prompt, "\n")
}

// Image returns the attached image path, or "" when there is none.
func (e Entry) Image() string {
	if len(e.Images) == 0 {
		return ""
	}
	return e.Images[len(e.Images)-1]
}

// withImage returns a copy of e pointing at rel (or at nothing if rel is empty).
func (e Entry) withImage(rel string) Entry {
	if rel == "" {
		e.Images = []string{}
	} else {
		e.Images = []string{rel}
	}
	return e
}

// normalize trims fields and enforces at most one image. It reports false
// for entries that carry no id.
func normalize(e Entry) (Entry, bool) {
	e.ID = strings.TrimSpace(e.ID)
	e.TS = strings.TrimSpace(e.TS)
	e.Prompt = strings.TrimSpace(e.Prompt)
	if e.ID == "" {
		return e, false
	}

	var images []string
	for _, img := range e.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	if len(images) > 1 {
		images = images[len(images)-1:]
	}
	if images == nil {
		images = []string{}
	}
	e.Images = images
	return e, true
}

// nextID returns the first YYYYMMDD_HHMMSS_NNNN id for now that is higher
// than every id with the same second prefix in pages.
func nextID(now time.Time, pages ...[]Entry) string {
	base := now.Format(idTimeLayout)
	prefix := base + "_"
	seq := 1
	for _, entries := range pages {
		for _, e := range entries {
			rest, ok := strings.CutPrefix(e.ID, prefix)
			if !ok {
				continue
			}
			if n, err := strconv.Atoi(rest); err == nil && n >= seq {
				seq = n + 1
			}
		}
	}
	return fmt.Sprintf("%s_%04d", base, seq)
}

func dateKey(t time.Time) string {
	return t.Format("20060102")
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

func indexOf(entries []Entry, id string) int {
	for i, e := range entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}
