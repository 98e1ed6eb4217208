// Package fileutil moves job artifacts between the work and output trees.
package fileutil

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// CopyFile streams src to dst and verifies the copy by size and SHA-256.
// dst is removed when verification fails.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	srcSum, dstSum := sha256.New(), sha256.New()
	written, copyErr := io.Copy(io.MultiWriter(out, dstSum), io.TeeReader(in, srcSum))
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr, verify(info.Size(), written, srcSum, dstSum)); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

func verify(want, got int64, src, dst hash.Hash) error {
	if want != got {
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", want, got)
	}
	if string(src.Sum(nil)) != string(dst.Sum(nil)) {
		return errors.New("copy hash mismatch")
	}
	return nil
}

// ReplaceFile moves src over dst. Across devices the content is copied to a
// hidden sibling of dst and renamed into place, so dst is never half-written.
func ReplaceFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	staged := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".partial")
	if err := CopyFile(src, staged); err != nil {
		return fmt.Errorf("copy across devices: %w", err)
	}
	if err := os.Rename(staged, dst); err != nil {
		_ = os.Remove(staged)
		return err
	}
	return os.Remove(src)
}

// FileSize returns the size of path, or 0 when it cannot be stat'ed.
func FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
