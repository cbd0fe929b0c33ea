//go:build windows

package images

import (
	"os"

	"github.com/imgprompt/imgprompt/internal/errors"
)

// openNoFollow opens an image for reading.
// O_NOFOLLOW is not available on Windows; symlinks are refused by Lstat
// instead, which leaves a small race.
func openNoFollow(path, rel string) (*os.File, error) {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, imageNotFound(rel)
		}
		return nil, errors.NewIOFailure("open image", rel, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("image path is a symlink")
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, imageNotFound(rel)
		}
		return nil, errors.NewIOFailure("open image", rel, err)
	}
	return f, nil
}
