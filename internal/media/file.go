package media

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// File is a locally selected file. It is never uploaded until submission.
type File struct {
	Name      string
	MediaType string
	Size      int64
	open      func() (io.ReadCloser, error)
}

// NewFile wraps an arbitrary source. open must return a fresh reader on every call
// so a failed submission can be retried with the same file.
func NewFile(name, mediaType string, size int64, open func() (io.ReadCloser, error)) File {
	return File{Name: name, MediaType: baseType(mediaType), Size: size, open: open}
}

// FileFromBytes keeps the file contents in memory. An empty mediaType is sniffed.
func FileFromBytes(name, mediaType string, data []byte) File {
	if mediaType == "" {
		mediaType = mimetype.Detect(data).String()
	}
	return NewFile(name, mediaType, int64(len(data)), func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

// FileFromPath references a file on disk; its media type is sniffed from content.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("stat file: %s is a directory", path)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, fmt.Errorf("detect media type: %w", err)
	}

	return NewFile(filepath.Base(path), mt.String(), info.Size(), func() (io.ReadCloser, error) {
		return os.Open(path)
	}), nil
}

// Open returns a new reader over the file contents.
func (f File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return nil, fmt.Errorf("open %s: file has no content", f.Name)
	}
	return f.open()
}

// IsVideo reports whether the media type is a video type.
func (f File) IsVideo() bool {
	return strings.HasPrefix(f.MediaType, "video/")
}

func baseType(mediaType string) string {
	mt, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
