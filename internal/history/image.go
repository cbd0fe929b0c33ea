package history

import (
	"context"
	"strings"

	"github.com/imgprompt/imgprompt/internal/images"
)

// ReplaceImage attaches upload to an entry, replacing any previous image.
// The new file is written first and the old one removed last, so the entry
// always points at exactly one existing file.
func (s *Store) ReplaceImage(ctx context.Context, page Page, id string, upload ImageUpload) (Located, error) {
	ext, err := images.ValidateUpload(upload.Name, int64(len(upload.Data)))
	if err != nil {
		return Located{}, err
	}
	id = strings.TrimSpace(id)

	if err := s.acquire(ctx, "replace image"); err != nil {
		return Located{}, err
	}
	defer s.release()

	p, i, err := s.locate(page, id)
	if err != nil {
		return Located{}, err
	}

	rel, err := s.images.Store(upload.Data, ext)
	if err != nil {
		return Located{}, err
	}

	entries := cloneEntries(s.entriesOf(p))
	old := entries[i].Image()
	entries[i] = entries[i].withImage(rel)

	c := pageChange(p, entries)
	c.addedImage = rel
	c.removedImage = old
	if err := s.apply(c); err != nil {
		return Located{}, err
	}
	s.logger.Debug("history image replaced", "id", id, "page", string(p), "path", rel)
	return Located{Entry: entries[i], Page: p}, nil
}
