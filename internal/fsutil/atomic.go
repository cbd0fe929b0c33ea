// Package fsutil holds the file primitives the history files rely on:
// write-temp-then-rename, idempotent removal and a single retry for
// transient failures such as a file briefly locked by a virus scanner.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TempSuffix marks in-flight writes. Files ending in it are never canonical.
const TempSuffix = ".tmp"

// Swapped in tests to simulate a crash between temp write and rename.
var (
	rename     = os.Rename
	retryDelay = 50 * time.Millisecond
)

// AtomicWriteFile writes data to a temp file next to path, syncs it, and
// renames it over path. A failure at any point leaves the previous file intact.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.CreateTemp(dir, filepath.Base(path)+".*"+TempSuffix)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	success := false
	defer func() {
		if f != nil {
			_ = f.Close()
		}
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	// Close before rename (required on Windows; fine elsewhere).
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	f = nil
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	success = true
	return nil
}

// RemoveIfExists deletes path, treating absence as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Retry runs op, and once more after a short pause if it fails.
func Retry(op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	time.Sleep(retryDelay)
	return op()
}

// TempBase reports which file a temp name belongs to. AtomicWriteFile
// names temps "<base>.<digits>.tmp"; older writers used "<base>.tmp".
func TempBase(name string) (string, bool) {
	stem, ok := strings.CutSuffix(name, TempSuffix)
	if !ok || stem == "" {
		return "", false
	}
	if i := strings.LastIndexByte(stem, '.'); i > 0 && isDigits(stem[i+1:]) {
		return stem[:i], true
	}
	return stem, true
}

// CleanTemp removes leftovers of interrupted writes in dir whose target
// file satisfies owned. Other *.tmp files are left alone. It returns the
// removed paths.
func CleanTemp(dir string, owned func(base string) bool) ([]string, error) {
	items, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var removed []string
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		base, ok := TempBase(item.Name())
		if !ok || !owned(base) {
			continue
		}
		path := filepath.Join(dir, item.Name())
		if err := RemoveIfExists(path); err != nil {
			return removed, err
		}
		removed = append(removed, path)
	}
	return removed, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
