package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lochel/genealogy/logging"
)

// WriteArchive streams a ZIP archive of every regular file below root to w.
// Entry names are slash separated and relative to root. Hidden files and
// directories are skipped. It returns the number of archived files.
func WriteArchive(w io.Writer, root string) (int, error) {
	root = filepath.Clean(root)
	if info, err := os.Stat(root); err != nil {
		return 0, fmt.Errorf("failed to stat archive root %s: %w", root, err)
	} else if !info.IsDir() {
		return 0, fmt.Errorf("archive root %s is not a directory", root)
	}

	zipWriter := zip.NewWriter(w)
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if err := addFile(zipWriter, path, filepath.ToSlash(rel)); err != nil {
			logging.L().Warnf("zipper: skipping %s: %v", path, err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		zipWriter.Close()
		return count, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	if err := zipWriter.Close(); err != nil {
		return count, fmt.Errorf("failed to finalize zip writer: %w", err)
	}
	logging.L().Infof("zipper: archived %d files from %s", count, root)
	return count, nil
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

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(writer, f)
	return err
}
