package logsource

import (
	"context"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/tinytelemetry/logscope/internal/logging"
)

// DefaultBuffer is the default channel buffer size for source lines.
const DefaultBuffer = 8192

// ReaderConfig holds tunable parameters for a reader source.
type ReaderConfig struct {
	BufferSize int
	Logger     *zap.Logger
}

// ReaderSource streams the lines of an io.Reader over a channel from a
// background goroutine.
type ReaderSource struct {
	name   string
	ch     chan string
	cancel context.CancelFunc
	logger *zap.Logger

	mu  sync.Mutex
	err error
}

var _ LogSource = (*ReaderSource)(nil)

// NewReaderSource starts reading r. The source stops at end of input, on a
// read error, or when ctx is cancelled; Lines is closed in every case.
func NewReaderSource(ctx context.Context, name string, r io.Reader, conf ...ReaderConfig) *ReaderSource {
	bufferSize := DefaultBuffer
	var logger *zap.Logger
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		logger = conf[0].Logger
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		name:   name,
		ch:     make(chan string, bufferSize),
		cancel: cancel,
		logger: logging.OrNop(logger),
	}
	go s.read(ctx, r)
	return s
}

func (s *ReaderSource) read(ctx context.Context, r io.Reader) {
	defer close(s.ch)

	lr := NewLineReader(r)
	for {
		line, err := lr.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.logger.Error("input read failed", zap.String("source", s.name), zap.Error(err))
			s.setErr(&InputIOError{Source: s.name, Op: "read", Err: err})
			return
		}
		select {
		case s.ch <- line:
		case <-ctx.Done():
			return
		}
	}
}

func (s *ReaderSource) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Err returns the read failure, if any. It is final once Lines is closed.
func (s *ReaderSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ReaderSource) Lines() <-chan string { return s.ch }
func (s *ReaderSource) Stop()                { s.cancel() }
func (s *ReaderSource) Name() string         { return s.name }
