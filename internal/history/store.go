// Package history owns the prompt history: the bounded live page, the
// dated archive pages, and the JSON and HTML files that mirror them.
//
// Every operation runs under one store-wide lock that spans the whole
// mutate, persist and render cycle, so callers from the desktop UI, the
// local HTTP server and the MCP endpoint never interleave. Memory is only
// updated after every file of a mutation has been written.
package history

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/imgprompt/imgprompt/internal/errors"
	"github.com/imgprompt/imgprompt/internal/fsutil"
	"github.com/imgprompt/imgprompt/internal/images"
	"github.com/imgprompt/imgprompt/internal/logging"
)

// Options configures Load.
type Options struct {
	// BaseDir holds history.json, the archive files and images/.
	BaseDir string
	// Capacity bounds the live page. Zero or negative archives every append.
	Capacity int
	// ConfirmDelete is passed through to rendered pages.
	ConfirmDelete bool
	// APIBase is the local server origin embedded in pages.
	APIBase string

	Renderer Renderer
	Logger   *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
	// WriteFile replaces the atomic writer, for fault injection in tests.
	WriteFile func(path string, data []byte) error
}

// Store is the single owner of all history pages.
type Store struct {
	baseDir       string
	capacity      int
	confirmDelete bool
	renderer      Renderer
	images        *images.Store
	logger        *slog.Logger
	now           func() time.Time
	writeFile     func(path string, data []byte) error

	// sem is the store lock. A buffered channel lets waiters give up when
	// their context is cancelled.
	sem chan struct{}

	// Guarded by sem.
	apiBase  string
	live     []Entry
	archives map[Page][]Entry

	revision atomic.Uint64
}

// Located is an entry together with the page that holds it.
type Located struct {
	Entry
	Page Page `json:"page"`
}

// ImageUpload is an image file received from a caller.
type ImageUpload struct {
	Name string
	Data []byte
}

// Capacity returns the configured live page capacity.
func (s *Store) Capacity() int { return s.capacity }

// BaseDir returns the directory holding the history files.
func (s *Store) BaseDir() string { return s.baseDir }

// Revision returns a counter bumped after every successful mutation.
// It is safe to call without holding the lock.
func (s *Store) Revision() uint64 {
	return s.revision.Load()
}

// SetAPIBase changes the server origin embedded in pages. Call Regenerate
// afterwards to rewrite existing HTML.
func (s *Store) SetAPIBase(ctx context.Context, url string) error {
	if err := s.acquire(ctx, "set api base"); err != nil {
		return err
	}
	defer s.release()

	s.apiBase = url
	return nil
}

// Pages lists the live page followed by archives, newest first.
func (s *Store) Pages(ctx context.Context) ([]PageInfo, error) {
	if err := s.acquire(ctx, "pages"); err != nil {
		return nil, err
	}
	defer s.release()

	infos := []PageInfo{pageInfo(Live, s.live)}
	for _, key := range s.archiveKeys(nil) {
		p := Page(key)
		infos = append(infos, pageInfo(p, s.archives[p]))
	}
	return infos, nil
}

// List returns the entries of a page in stored (chronological) order.
// AnyPage lists the live page.
func (s *Store) List(ctx context.Context, page Page) ([]Entry, error) {
	if err := s.acquire(ctx, "list"); err != nil {
		return nil, err
	}
	defer s.release()

	entries, err := s.pageEntries(page)
	if err != nil {
		return nil, err
	}
	return cloneEntries(entries), nil
}

// Get returns one entry.
func (s *Store) Get(ctx context.Context, page Page, id string) (Located, error) {
	if err := s.acquire(ctx, "get"); err != nil {
		return Located{}, err
	}
	defer s.release()

	p, i, err := s.locate(page, id)
	if err != nil {
		return Located{}, err
	}
	return Located{Entry: s.entriesOf(p)[i], Page: p}, nil
}

// ReadImage returns the bytes and content type of an entry's image.
func (s *Store) ReadImage(ctx context.Context, page Page, id string) ([]byte, string, error) {
	if err := s.acquire(ctx, "read image"); err != nil {
		return nil, "", err
	}
	defer s.release()

	p, i, err := s.locate(page, id)
	if err != nil {
		return nil, "", err
	}
	rel := s.entriesOf(p)[i].Image()
	if rel == "" {
		return nil, "", &errors.HistoryError{
			Code:    errors.ErrNotFound,
			Status:  404,
			Message: "history entry has no image: " + id,
			Details: map[string]any{"id": id},
		}
	}
	return s.images.Read(rel)
}

// Regenerate re-renders the HTML of every page from memory.
func (s *Store) Regenerate(ctx context.Context) error {
	if err := s.acquire(ctx, "regenerate"); err != nil {
		return err
	}
	defer s.release()

	keys := s.archiveKeys(nil)
	tx := s.newTx()

	html, err := s.render(Live, s.live, keys)
	if err != nil {
		return err
	}
	tx.putHTML(Live, html)

	for _, key := range keys {
		p := Page(key)
		html, err := s.render(p, s.archives[p], nil)
		if err != nil {
			return err
		}
		tx.putHTML(p, html)
	}

	if err := tx.commit(); err != nil {
		return err
	}
	s.logger.Debug("history pages regenerated", "pages", len(keys)+1)
	return nil
}

// change describes the page contents a mutation produces. Pages not named
// keep their current contents.
type change struct {
	live        []Entry
	liveChanged bool
	archives    map[Page][]Entry

	addedImage   string
	removedImage string
}

// apply renders and persists c, then installs it in memory. It must be
// called with the lock held. On any failure memory is left untouched and
// files are rolled back.
func (s *Store) apply(c *change) error {
	tx := s.newTx()
	tx.addedImage(c.addedImage)

	fail := func(err error) error {
		if c.addedImage != "" {
			_ = s.images.Delete(c.addedImage)
		}
		return err
	}

	keys := s.archiveKeys(c.archives)
	live := s.live
	if c.liveChanged {
		live = c.live
	}
	if c.liveChanged || s.createsArchive(c.archives) {
		html, err := s.render(Live, live, keys)
		if err != nil {
			return fail(err)
		}
		if c.liveChanged {
			if err := tx.putPage(Live, live, html); err != nil {
				return fail(err)
			}
		} else {
			tx.putHTML(Live, html)
		}
	}

	for _, p := range sortedPages(c.archives) {
		html, err := s.render(p, c.archives[p], nil)
		if err != nil {
			return fail(err)
		}
		if err := tx.putPage(p, c.archives[p], html); err != nil {
			return fail(err)
		}
	}

	tx.removeImage(c.removedImage)
	if err := tx.commit(); err != nil {
		return err
	}

	if c.liveChanged {
		s.live = c.live
	}
	for p, entries := range c.archives {
		s.archives[p] = entries
	}
	s.revision.Add(1)
	return nil
}

func (s *Store) render(p Page, entries []Entry, archiveKeys []string) ([]byte, error) {
	html, err := s.renderer.Render(PageView{
		Page:          p,
		Title:         p.Title(),
		Entries:       entries,
		Archives:      archiveKeys,
		APIBase:       s.apiBase,
		ConfirmDelete: s.confirmDelete,
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return html, nil
}

func (s *Store) acquire(ctx context.Context, op string) error {
	if ctx.Err() != nil {
		return errors.NewCancelled(op)
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return errors.NewCancelled(op)
	}
}

func (s *Store) release() {
	<-s.sem
}

// locate finds id on page. AnyPage searches live first, then archives
// newest first.
func (s *Store) locate(page Page, id string) (Page, int, error) {
	if id == "" {
		return "", -1, errors.NewInvalidRequest("id is required")
	}

	var candidates []Page
	switch {
	case page == AnyPage:
		candidates = append(candidates, Live)
		for _, key := range s.archiveKeys(nil) {
			candidates = append(candidates, Page(key))
		}
	case page == Live:
		candidates = []Page{Live}
	default:
		if _, ok := s.archives[page]; !ok {
			return "", -1, errors.NewPageNotFound(string(page))
		}
		candidates = []Page{page}
	}

	for _, p := range candidates {
		if i := indexOf(s.entriesOf(p), id); i >= 0 {
			return p, i, nil
		}
	}
	return "", -1, errors.NewNotFound(id)
}

func (s *Store) pageEntries(page Page) ([]Entry, error) {
	if page == AnyPage || page == Live {
		return s.live, nil
	}
	entries, ok := s.archives[page]
	if !ok {
		return nil, errors.NewPageNotFound(string(page))
	}
	return entries, nil
}

func (s *Store) entriesOf(p Page) []Entry {
	if p == Live {
		return s.live
	}
	return s.archives[p]
}

// archiveKeys returns existing archive keys plus those in pending, newest first.
func (s *Store) archiveKeys(pending map[Page][]Entry) []string {
	set := make(map[string]struct{}, len(s.archives)+len(pending))
	for p := range s.archives {
		set[string(p)] = struct{}{}
	}
	for p := range pending {
		set[string(p)] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}

func (s *Store) createsArchive(pending map[Page][]Entry) bool {
	for p := range pending {
		if _, ok := s.archives[p]; !ok {
			return true
		}
	}
	return false
}

func (s *Store) allPages() [][]Entry {
	pages := make([][]Entry, 0, len(s.archives)+1)
	pages = append(pages, s.live)
	for _, entries := range s.archives {
		pages = append(pages, entries)
	}
	return pages
}

func sortedPages(m map[Page][]Entry) []Page {
	pages := make([]Page, 0, len(m))
	for p := range m {
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i] < pages[j] })
	return pages
}

func pageInfo(p Page, entries []Entry) PageInfo {
	return PageInfo{Page: p, Title: p.Title(), HTMLFile: p.HTMLFile(), Count: len(entries)}
}

func newStore(opts Options) *Store {
	s := &Store{
		baseDir:       opts.BaseDir,
		capacity:      opts.Capacity,
		confirmDelete: opts.ConfirmDelete,
		renderer:      opts.Renderer,
		logger:        opts.Logger,
		now:           opts.Now,
		writeFile:     opts.WriteFile,
		apiBase:       opts.APIBase,
		sem:           make(chan struct{}, 1),
		archives:      make(map[Page][]Entry),
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.writeFile == nil {
		s.writeFile = func(path string, data []byte) error {
			return fsutil.AtomicWriteFile(path, data, 0o644)
		}
	}
	s.images = images.NewStore(s.baseDir, s.now)
	return s
}
