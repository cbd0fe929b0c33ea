package history

import "time"

// splitOverflow returns the entries that stay live and the oldest ones
// that must move out so that at most capacity remain. A capacity of zero
// or less moves everything.
func splitOverflow(entries []Entry, capacity int) (kept, moved []Entry) {
	if capacity <= 0 {
		return []Entry{}, entries
	}
	overflow := len(entries) - capacity
	if overflow <= 0 {
		return entries, nil
	}
	return entries[overflow:], entries[:overflow]
}

// archiveOverflow trims live to capacity and records the moved entries in
// c under the archive page for the cut date. An existing page for that
// date gains them at its end.
func (s *Store) archiveOverflow(c *change, live []Entry, now time.Time) {
	kept, moved := splitOverflow(live, s.capacity)
	c.live = cloneEntries(kept)
	c.liveChanged = true
	if len(moved) == 0 {
		return
	}

	p := Page(dateKey(now))
	existing := s.archives[p]
	merged := make([]Entry, 0, len(existing)+len(moved))
	merged = append(merged, existing...)
	merged = append(merged, moved...)

	if c.archives == nil {
		c.archives = make(map[Page][]Entry)
	}
	c.archives[p] = merged

	s.logger.Info("history archived",
		"page", string(p),
		"moved", len(moved),
		"archive_size", len(merged),
		"live", len(kept),
		"new_page", existing == nil,
	)
}
