package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// ArchiveWriter streams a zip archive to an io.Writer entry by entry, so
// archives of any size are produced without buffering them.
type ArchiveWriter struct {
	zw      *zip.Writer
	entries int
	closed  bool
}

func NewArchiveWriter(w io.Writer) *ArchiveWriter {
	return &ArchiveWriter{zw: zip.NewWriter(w)}
}

// WriteFile adds a deflated entry holding data
func (a *ArchiveWriter) WriteFile(name string, data []byte, modified time.Time) error {
	w, err := a.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
	if err != nil {
		return fmt.Errorf("zipper: failed to create entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("zipper: failed to write entry %s: %w", name, err)
	}
	a.entries++
	return nil
}

// CopyFile adds an entry copied from r without compression. Image formats
// are already compressed.
func (a *ArchiveWriter) CopyFile(name string, r io.Reader, modified time.Time) (int64, error) {
	w, err := a.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store, Modified: modified})
	if err != nil {
		return 0, fmt.Errorf("zipper: failed to create entry %s: %w", name, err)
	}
	n, err := io.Copy(w, r)
	if err != nil {
		return n, fmt.Errorf("zipper: failed to write entry %s: %w", name, err)
	}
	a.entries++
	return n, nil
}

// Entries returns the number of entries written so far
func (a *ArchiveWriter) Entries() int {
	return a.entries
}

// Close writes the central directory. It is safe to call more than once.
func (a *ArchiveWriter) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.zw.Close(); err != nil {
		return fmt.Errorf("zipper: failed to finalize archive: %w", err)
	}
	return nil
}
