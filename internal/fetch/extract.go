package fetch

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extract unpacks a zip archive into dir and returns the written file paths.
// Entries that would land outside dir are rejected.
func Extract(archive, dir string) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return nil, &ExtractionError{Archive: archive, Err: err}
	}
	defer func() { _ = zr.Close() }()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &ExtractionError{Archive: archive, Err: err}
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, &ExtractionError{Archive: archive, Err: err}
	}

	var files []string
	for _, zf := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(zf.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return files, &ExtractionError{Archive: archive, Entry: zf.Name, Err: fmt.Errorf("entry escapes destination")}
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return files, &ExtractionError{Archive: archive, Entry: zf.Name, Err: err}
			}
			continue
		}

		if err := extractFile(zf, target); err != nil {
			return files, &ExtractionError{Archive: archive, Entry: zf.Name, Err: err}
		}
		files = append(files, target)
	}

	return files, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	src, err := zf.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}

	_, err = io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	return err
}
