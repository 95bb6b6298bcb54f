package logsource

import (
	"compress/bzip2"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// StdinPath is the input path that selects standard input.
const StdinPath = "-"

// Open opens path for reading, transparently decompressing .gz, .zst and .bz2
// files. StdinPath reads standard input, which Close leaves open.
func Open(path string) (io.ReadCloser, error) {
	if path == StdinPath {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputIOError{Source: path, Op: "open", Err: err}
	}
	rc, err := decompress(path, f)
	if err != nil {
		f.Close()
		return nil, &InputIOError{Source: path, Op: "open", Err: err}
	}
	return rc, nil
}

// Name returns the display name of an input path.
func Name(path string) string {
	if path == StdinPath {
		return "stdin"
	}
	return path
}

func decompress(path string, f *os.File) (io.ReadCloser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		return &stackedCloser{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		rc := dec.IOReadCloser()
		return &stackedCloser{Reader: rc, closers: []io.Closer{rc, f}}, nil
	case ".bz2":
		return &stackedCloser{Reader: bzip2.NewReader(f), closers: []io.Closer{f}}, nil
	}
	return f, nil
}

// stackedCloser reads from the outermost decoder and closes every layer.
type stackedCloser struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedCloser) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
