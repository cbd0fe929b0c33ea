//go:build !windows

package images

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/imgprompt/imgprompt/internal/errors"
)

// openNoFollow opens an image for reading with O_NOFOLLOW, so a symlink
// planted under images/ cannot expose files outside the base dir.
// O_CLOEXEC prevents FD leaks across exec.
//
// Only the final component is protected. Directory components are checked
// by ValidatePath.
func openNoFollow(path, rel string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0)
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("image path is a symlink")
		}
		if stderrors.Is(err, syscall.ENOENT) {
			return nil, imageNotFound(rel)
		}
		return nil, errors.NewIOFailure("open image", rel, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}
