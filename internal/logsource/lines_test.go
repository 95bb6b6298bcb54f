package logsource

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectLines(t *testing.T, r io.Reader) []string {
	t.Helper()
	lr := NewLineReader(r)
	var out []string
	for {
		line, err := lr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, line)
	}
}

func TestLineReader(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"lf", "a\nb\n", []string{"a", "b"}},
		{"crlf", "a\r\nb\r\n", []string{"a", "b"}},
		{"no final newline", "a\nb", []string{"a", "b"}},
		{"blank lines kept", "a\n\nb\n", []string{"a", "", "b"}},
		{"invalid utf8", "ok \xff\xfe end\n", []string{"ok \uFFFD end"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, collectLines(t, strings.NewReader(tc.in)))
		})
	}
}

func TestLineReader_LongLine(t *testing.T) {
	long := strings.Repeat("x", 3*readerBufferSize)
	assert.Equal(t, []string{long, "y"}, collectLines(t, strings.NewReader(long+"\ny\n")))
}

type failingReader struct{ sent bool }

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, "one\n"), nil
	}
	return 0, errors.New("disk error")
}

func TestReaderSource(t *testing.T) {
	src := NewReaderSource(context.Background(), "test", strings.NewReader("a\nb\nc"))
	var got []string
	for line := range src.Lines() {
		got = append(got, line)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.NoError(t, src.Err())
	assert.Equal(t, "test", src.Name())
}

func TestReaderSource_ReadError(t *testing.T) {
	src := NewReaderSource(context.Background(), "broken", &failingReader{})
	var got []string
	for line := range src.Lines() {
		got = append(got, line)
	}
	assert.Equal(t, []string{"one"}, got)

	var ioErr *InputIOError
	require.ErrorAs(t, src.Err(), &ioErr)
	assert.Equal(t, "read", ioErr.Op)
	assert.Equal(t, "broken", ioErr.Source)
}

func TestReaderSource_StopClosesLines(t *testing.T) {
	src := NewReaderSource(context.Background(), "test",
		strings.NewReader(strings.Repeat("line\n", 100)), ReaderConfig{BufferSize: 1})
	src.Stop()
	src.Stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-src.Lines():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for lines channel to close")
		}
	}
}
