// Package images manages the per-entry image files under images/YYYY/MM/.
//
// Paths handed out and accepted by this package are relative to the base
// dir and always use forward slashes, so they can be embedded verbatim in
// history JSON and in <img src> attributes of pages opened from disk.
package images

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/imgprompt/imgprompt/internal/errors"
	"github.com/imgprompt/imgprompt/internal/fsutil"
)

// Dir is the top-level directory holding image files.
const Dir = "images"

// MaxUploadBytes is the largest image accepted (20 MiB).
const MaxUploadBytes = 20 << 20

// AllowedExtensions lists accepted image extensions, lowercase with dot.
var AllowedExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

var contentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// Store writes and removes image files below a base directory.
type Store struct {
	baseDir string
	now     func() time.Time

	mu      sync.Mutex
	entropy io.Reader
}

// NewStore returns a Store rooted at baseDir. A nil now uses time.Now.
func NewStore(baseDir string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		baseDir: baseDir,
		now:     now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// ValidateUpload checks an upload's file name and size and returns the
// normalized extension.
func ValidateUpload(name string, size int64) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowed(ext) {
		return "", errors.NewUnsupportedImage(ext, AllowedExtensions)
	}
	if size > MaxUploadBytes {
		return "", errors.NewImageTooLarge(MaxUploadBytes, int(size))
	}
	if size <= 0 {
		return "", errors.NewInvalidRequest("image file is empty")
	}
	return ext, nil
}

// Store writes data to a fresh images/YYYY/MM/<ulid><ext> file and returns
// its relative path.
func (s *Store) Store(data []byte, ext string) (string, error) {
	ext, err := ValidateUpload("image"+ext, int64(len(data)))
	if err != nil {
		return "", err
	}

	now := s.now()
	name, err := s.newName(now)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	rel := path.Join(Dir, now.Format("2006"), now.Format("01"), name+ext)
	abs := s.abs(rel)

	if err := fsutil.Retry(func() error {
		return fsutil.AtomicWriteFile(abs, data, 0o644)
	}); err != nil {
		return "", errors.NewIOFailure("write image", rel, err)
	}
	return rel, nil
}

// Delete removes the image at rel. A missing file is not an error.
func (s *Store) Delete(rel string) error {
	if rel == "" {
		return nil
	}
	if err := ValidatePath(rel); err != nil {
		return err
	}
	if err := fsutil.Retry(func() error {
		return fsutil.RemoveIfExists(s.abs(rel))
	}); err != nil {
		return errors.NewIOFailure("delete image", rel, err)
	}
	return nil
}

// Read returns the image bytes at rel and their content type. Symlinks
// are refused.
func (s *Store) Read(rel string) ([]byte, string, error) {
	if err := ValidatePath(rel); err != nil {
		return nil, "", err
	}
	f, err := openNoFollow(s.abs(rel), rel)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", errors.NewIOFailure("read image", rel, err)
	}
	return data, ContentType(rel), nil
}

func imageNotFound(rel string) *errors.HistoryError {
	return &errors.HistoryError{
		Code:    errors.ErrNotFound,
		Status:  404,
		Message: "image file not found",
		Details: map[string]any{"path": rel},
	}
}

// CleanTemp removes leftovers of interrupted image writes from the
// images/YYYY/MM directories. Only temps of ULID-named image files are
// touched. It returns the removed paths.
func (s *Store) CleanTemp() ([]string, error) {
	var removed []string
	root := filepath.Join(s.baseDir, Dir)
	years, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIOFailure("list", Dir, err)
	}
	for _, year := range years {
		if !year.IsDir() || !isDigitName(year.Name(), 4) {
			continue
		}
		months, err := os.ReadDir(filepath.Join(root, year.Name()))
		if err != nil {
			return removed, errors.NewIOFailure("list", path.Join(Dir, year.Name()), err)
		}
		for _, month := range months {
			if !month.IsDir() || !isDigitName(month.Name(), 2) {
				continue
			}
			dir := filepath.Join(root, year.Name(), month.Name())
			got, err := fsutil.CleanTemp(dir, isImageName)
			removed = append(removed, got...)
			if err != nil {
				return removed, errors.NewIOFailure("clean temp files", path.Join(Dir, year.Name(), month.Name()), err)
			}
		}
	}
	return removed, nil
}

// isImageName reports whether name looks like a file Store writes: a
// lowercase ULID followed by an allowed extension.
func isImageName(name string) bool {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if !allowed(ext) || len(stem) != ulid.EncodedSize {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(stem))
	return err == nil
}

func isDigitName(name string, n int) bool {
	if len(name) != n {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ContentType maps an image path to its MIME type.
func ContentType(rel string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(rel))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ValidatePath checks that rel is a relative path that stays under images/.
func ValidatePath(rel string) error {
	if rel == "" {
		return errors.NewInvalidRequest("image path is required")
	}
	if strings.Contains(rel, `\`) {
		return errors.NewInvalidRequest("image path must use forward slashes")
	}
	if path.IsAbs(rel) || filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return errors.NewInvalidRequest("image path must be relative")
	}
	if containsTraversal(rel) {
		return errors.NewInvalidRequest("image path must not contain directory traversal (..)")
	}
	if !strings.HasPrefix(path.Clean(rel), Dir+"/") {
		return errors.NewInvalidRequest(fmt.Sprintf("image path must be under %s/", Dir))
	}
	return nil
}

func (s *Store) abs(rel string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(rel))
}

func (s *Store) newName(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	if err != nil {
		return "", err
	}
	return strings.ToLower(id.String()), nil
}

func allowed(ext string) bool {
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

func containsTraversal(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
