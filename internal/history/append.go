package history

import (
	"context"
	"strings"

	"github.com/imgprompt/imgprompt/internal/errors"
	"github.com/imgprompt/imgprompt/internal/images"
)

// AppendInput contains parameters for Append.
type AppendInput struct {
	Prompt string
	// Image is optional.
	Image *ImageUpload
}

// Append adds a new entry at the end of the live page, archives any
// overflow, and persists every affected page before returning.
func (s *Store) Append(ctx context.Context, input AppendInput) (Entry, error) {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return Entry{}, errors.NewInvalidRequest("prompt is empty")
	}

	var ext string
	if input.Image != nil {
		var err error
		ext, err = images.ValidateUpload(input.Image.Name, int64(len(input.Image.Data)))
		if err != nil {
			return Entry{}, err
		}
	}

	if err := s.acquire(ctx, "append"); err != nil {
		return Entry{}, err
	}
	defer s.release()

	now := s.now()
	entry := Entry{
		ID:     nextID(now, s.allPages()...),
		TS:     now.Format(tsLayout),
		Prompt: prompt,
		Images: []string{},
	}

	c := &change{}
	if input.Image != nil {
		rel, err := s.images.Store(input.Image.Data, ext)
		if err != nil {
			return Entry{}, err
		}
		entry = entry.withImage(rel)
		c.addedImage = rel
	}

	live := make([]Entry, 0, len(s.live)+1)
	live = append(live, s.live...)
	live = append(live, entry)
	s.archiveOverflow(c, live, now)

	if err := s.apply(c); err != nil {
		return Entry{}, err
	}
	s.logger.Debug("history appended", "id", entry.ID, "image", entry.Image() != "")
	return entry, nil
}
