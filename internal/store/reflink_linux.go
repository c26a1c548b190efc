//go:build linux

package store

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// reflinkFile attempts a FICLONE copy-on-write clone of src into dst, which
// must not exist yet.
func reflinkFile(src, dst string, info os.FileInfo) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open src: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create dst: %w", err)
	}
	defer dstFile.Close()

	if err := unix.IoctlFileClone(int(dstFile.Fd()), int(srcFile.Fd())); err != nil {
		dstFile.Close()
		os.Remove(dst)
		return fmt.Errorf("ficlone: %w", err)
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
