package history

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/imgprompt/imgprompt/internal/errors"
	"github.com/imgprompt/imgprompt/internal/fsutil"
)

// Load reads history.json and every History_YYYYMMDD.json in the base
// dir. A missing live file yields an empty live page. A file that cannot
// be parsed fails the load with CORRUPT_STORE and is left as is.
func Load(opts Options) (*Store, error) {
	if opts.BaseDir == "" {
		return nil, errors.NewInvalidRequest("base dir is required")
	}
	if opts.Renderer == nil {
		return nil, errors.NewInvalidRequest("renderer is required")
	}
	s := newStore(opts)

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return nil, errors.NewIOFailure("create", s.baseDir, err)
	}

	removed, err := fsutil.CleanTemp(s.baseDir, isPageFile)
	if err != nil {
		return nil, errors.NewIOFailure("clean temp files", s.baseDir, err)
	}
	orphans, err := s.images.CleanTemp()
	if err != nil {
		return nil, err
	}
	removed = append(removed, orphans...)
	if len(removed) > 0 {
		s.logger.Info("removed interrupted writes", "files", removed)
	}

	live, err := readEntries(filepath.Join(s.baseDir, LiveJSONFile))
	if err != nil {
		return nil, err
	}
	s.live = live

	items, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, errors.NewIOFailure("list", s.baseDir, err)
	}
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		p, ok := archivePageFromFile(item.Name())
		if !ok {
			continue
		}
		entries, err := readEntries(filepath.Join(s.baseDir, item.Name()))
		if err != nil {
			return nil, err
		}
		s.archives[p] = entries
	}

	s.logger.Info("history loaded",
		"base_dir", s.baseDir,
		"live", len(s.live),
		"archives", len(s.archives),
		"capacity", s.capacity,
	)
	return s, nil
}

// readEntries parses one page file. A missing file is an empty page.
func readEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, errors.NewIOFailure("read", filepath.Base(path), err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.NewCorruptStore(path, stderrors.New("root is not a JSON array"))
	}

	var raw []Entry
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, errors.NewCorruptStore(path, err)
	}

	entries := make([]Entry, 0, len(raw))
	for i, e := range raw {
		n, ok := normalize(e)
		if !ok {
			return nil, errors.NewCorruptStore(path, fmt.Errorf("entry %d has no id", i))
		}
		entries = append(entries, n)
	}
	return entries, nil
}
