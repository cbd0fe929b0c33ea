package history

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/imgprompt/imgprompt/internal/errors"
	"github.com/imgprompt/imgprompt/internal/fsutil"
)

// fileTx applies one mutation's file writes in order and can undo them.
//
// Order is fixed: new image (already written by the caller and registered
// with addedImage), JSON pages, HTML pages. Old images are removed only
// after commit.
type fileTx struct {
	s       *Store
	json    []pendingFile
	html    []pendingFile
	added   []string
	removed []string

	applied []backup
}

type pendingFile struct {
	rel  string
	data []byte
}

type backup struct {
	path    string
	prev    []byte
	existed bool
}

func (s *Store) newTx() *fileTx {
	return &fileTx{s: s}
}

// addedImage registers an image file written for this mutation. It is
// removed again on rollback.
func (tx *fileTx) addedImage(rel string) {
	if rel != "" {
		tx.added = append(tx.added, rel)
	}
}

// removeImage schedules an image file for deletion after commit.
func (tx *fileTx) removeImage(rel string) {
	if rel != "" {
		tx.removed = append(tx.removed, rel)
	}
}

// putPage schedules the JSON and HTML files of a page.
func (tx *fileTx) putPage(p Page, entries []Entry, html []byte) error {
	data, err := encodeEntries(entries)
	if err != nil {
		return errors.NewInternal(err)
	}
	tx.json = append(tx.json, pendingFile{rel: p.JSONFile(), data: data})
	tx.html = append(tx.html, pendingFile{rel: p.HTMLFile(), data: html})
	return nil
}

// putHTML schedules an HTML-only rewrite, used when a page's archive
// links change but its entries do not.
func (tx *fileTx) putHTML(p Page, html []byte) {
	tx.html = append(tx.html, pendingFile{rel: p.HTMLFile(), data: html})
}

// commit writes every scheduled file. On failure it restores the previous
// bytes of everything already written, removes added images, and returns
// an IO_FAILURE. After a successful write phase old images are deleted;
// a failure there only leaves an orphan file and is logged.
func (tx *fileTx) commit() error {
	for _, group := range [][]pendingFile{tx.json, tx.html} {
		for _, f := range group {
			if err := tx.write(f); err != nil {
				tx.rollback()
				return err
			}
		}
	}

	for _, rel := range tx.removed {
		if err := tx.s.images.Delete(rel); err != nil {
			tx.s.logger.Warn("old image not removed", "path", rel, "error", err)
		}
	}
	return nil
}

func (tx *fileTx) write(f pendingFile) error {
	path := filepath.Join(tx.s.baseDir, f.rel)

	b := backup{path: path}
	prev, err := os.ReadFile(path)
	switch {
	case err == nil:
		b.prev, b.existed = prev, true
	case !os.IsNotExist(err):
		return errors.NewIOFailure("read", f.rel, err)
	}

	if err := fsutil.Retry(func() error { return tx.s.writeFile(path, f.data) }); err != nil {
		return errors.NewIOFailure("write", f.rel, err)
	}
	tx.applied = append(tx.applied, b)
	return nil
}

func (tx *fileTx) rollback() {
	for i := len(tx.applied) - 1; i >= 0; i-- {
		b := tx.applied[i]
		var err error
		if b.existed {
			err = fsutil.AtomicWriteFile(b.path, b.prev, 0o644)
		} else {
			err = fsutil.RemoveIfExists(b.path)
		}
		if err != nil {
			tx.s.logger.Error("rollback failed", "path", b.path, "error", err)
		}
	}
	for _, rel := range tx.added {
		if err := tx.s.images.Delete(rel); err != nil {
			tx.s.logger.Error("rollback failed", "path", rel, "error", err)
		}
	}
	tx.s.logger.Warn("history mutation rolled back", "files", len(tx.applied), "images", len(tx.added))
}

// encodeEntries produces the on-disk pretty-printed array: two-space indent,
// no HTML escaping, no trailing newline.
func encodeEntries(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
