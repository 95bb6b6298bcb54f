package logsource

import (
	"bufio"
	"io"
	"strings"
)

const readerBufferSize = 64 * 1024

// LineReader splits a byte stream into text lines. Line length is unbounded,
// a trailing "\r" is dropped, invalid UTF-8 is replaced with U+FFFD and a final
// line without a newline is still returned.
type LineReader struct {
	br *bufio.Reader
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{br: bufio.NewReaderSize(r, readerBufferSize)}
}

// Next returns the next line, or io.EOF once the input is exhausted.
func (l *LineReader) Next() (string, error) {
	s, err := l.br.ReadString('\n')
	if err != nil {
		if err == io.EOF && s != "" {
			return clean(s), nil
		}
		return "", err
	}
	return clean(s), nil
}

func clean(s string) string {
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return strings.ToValidUTF8(s, "\uFFFD")
}
