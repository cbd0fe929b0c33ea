package history

import (
	"context"
	"strings"
)

// Delete removes an entry and its image file from the page holding it.
// An archive page that loses entries is never refilled from the live page.
func (s *Store) Delete(ctx context.Context, page Page, id string) (Located, error) {
	id = strings.TrimSpace(id)

	if err := s.acquire(ctx, "delete"); err != nil {
		return Located{}, err
	}
	defer s.release()

	p, i, err := s.locate(page, id)
	if err != nil {
		return Located{}, err
	}

	current := s.entriesOf(p)
	removed := current[i]
	entries := make([]Entry, 0, len(current)-1)
	entries = append(entries, current[:i]...)
	entries = append(entries, current[i+1:]...)

	c := pageChange(p, entries)
	c.removedImage = removed.Image()
	if err := s.apply(c); err != nil {
		return Located{}, err
	}
	s.logger.Debug("history deleted", "id", id, "page", string(p))
	return Located{Entry: removed, Page: p}, nil
}
