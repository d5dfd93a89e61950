// Package extension packages the browser extension directory for download.
package extension

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("extension directory not found")

// Zip archives every regular file under dir. Dot files and dot directories
// (.git, .DS_Store) are skipped; entry names are slash separated and relative
// to dir.
func Zip(w io.Writer, dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotFound, dir)
	}

	zw := zip.NewWriter(w)
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		return addFile(zw, path, filepath.ToSlash(rel))
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", dir, err)
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, f)
	return err
}

// Bytes returns the archive in memory.
func Bytes(dir string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Zip(&buf, dir); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
