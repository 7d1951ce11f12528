package bundle

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// A source provides random access to the raw container bytes. The two
// implementations encode ownership: a fileSource owns its handle, can probe
// writability and can be reopened after the backing file is replaced on
// disk; a streamSource wraps bytes the caller handed in and is never closed
// or refreshed by the bundle.
type source interface {
	io.ReaderAt

	// Size returns the container length in bytes.
	Size() int64

	// Path returns the backing file path, or "" when not file-backed.
	Path() string

	// Reopen re-acquires the backing bytes after the container changed.
	Reopen() error

	Close() error
}

type fileSource struct {
	path string
	f    *os.File
	size int64
}

func openFileSource(path string) (*fileSource, error) {
	s := &fileSource{path: path}
	if err := s.Reopen(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

func (s *fileSource) Size() int64 { return s.size }

func (s *fileSource) Path() string { return s.path }

func (s *fileSource) Reopen() error {
	if s.f != nil {
		s.f.Close()
		s.f = nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening container %s: %w", s.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("sizing container %s: %w", s.path, err)
	}

	s.f = f
	s.size = info.Size()
	return nil
}

func (s *fileSource) Close() error {
	if s.f == nil {
		return nil
	}

	err := s.f.Close()
	s.f = nil

	if err != nil {
		return fmt.Errorf("closing container %s: %w", s.path, err)
	}
	return nil
}

// writable probes whether the backing file accepts writes right now.
func (s *fileSource) writable() bool {
	f, err := os.OpenFile(s.path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// streamSource materializes a caller-supplied stream up front so the
// container can be re-read from offset 0 without the caller re-supplying
// it. The caller keeps ownership of the original reader.
type streamSource struct {
	r    *bytes.Reader
	size int64
}

func bufferStream(r io.Reader) (*streamSource, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("buffering container stream: %w", err)
	}
	return &streamSource{r: bytes.NewReader(data), size: int64(len(data))}, nil
}

func (s *streamSource) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

func (s *streamSource) Size() int64 { return s.size }

func (s *streamSource) Path() string { return "" }

func (s *streamSource) Reopen() error { return nil }

func (s *streamSource) Close() error { return nil }
