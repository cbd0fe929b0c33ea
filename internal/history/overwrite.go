package history

import (
	"context"
	"strings"

	"github.com/imgprompt/imgprompt/internal/errors"
)

// Overwrite replaces the prompt text of an entry. Its id, timestamp and
// image are kept. Only the page holding the entry is rewritten.
func (s *Store) Overwrite(ctx context.Context, page Page, id, prompt string) (Located, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Located{}, errors.NewInvalidRequest("prompt is empty")
	}
	id = strings.TrimSpace(id)

	if err := s.acquire(ctx, "overwrite"); err != nil {
		return Located{}, err
	}
	defer s.release()

	p, i, err := s.locate(page, id)
	if err != nil {
		return Located{}, err
	}

	entries := cloneEntries(s.entriesOf(p))
	entries[i].Prompt = prompt

	if err := s.apply(pageChange(p, entries)); err != nil {
		return Located{}, err
	}
	s.logger.Debug("history overwritten", "id", id, "page", string(p))
	return Located{Entry: entries[i], Page: p}, nil
}

// pageChange builds a change that rewrites a single page.
func pageChange(p Page, entries []Entry) *change {
	if p == Live {
		return &change{live: entries, liveChanged: true}
	}
	return &change{archives: map[Page][]Entry{p: entries}}
}
