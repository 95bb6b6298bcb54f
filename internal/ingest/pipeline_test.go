package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/logscope/internal/duckdb"
	"github.com/tinytelemetry/logscope/internal/logsource"
	"github.com/tinytelemetry/logscope/internal/model"
)

func accessLine(i int) string {
	return fmt.Sprintf(`10.0.0.%d - - [10/Oct/2000:13:55:36 -0700] "GET /p%d HTTP/1.1" 200 %d "-" "curl/8.0"`, i%255, i, i)
}

// recordingSink keeps every accepted record in order.
type recordingSink struct {
	mu       sync.Mutex
	records  []*model.LogRecord
	finished int
	failAt   int
}

func (s *recordingSink) Accept(_ context.Context, r *model.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.records) == s.failAt {
		return errors.New("sink full")
	}
	s.records = append(s.records, r)
	return nil
}

func (s *recordingSink) Finish(context.Context) error {
	s.finished++
	return nil
}

func (s *recordingSink) Stats() (int64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.records)), s.finished
}

func paths(records []*model.LogRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Path
	}
	return out
}

func TestPipeline_PreservesInputOrder(t *testing.T) {
	var in strings.Builder
	var want []string
	for i := 0; i < 2000; i++ {
		in.WriteString(accessLine(i) + "\n")
		want = append(want, fmt.Sprintf("/p%d", i))
		if i%13 == 0 {
			in.WriteString("garbage that does not parse\n")
		}
	}

	sink := &recordingSink{}
	p := New(sink, Config{Workers: 8, ChunkLines: 7})
	st, err := p.Run(context.Background(), strings.NewReader(in.String()))
	require.NoError(t, err)
	assert.Equal(t, int64(2000), st.Records)
	assert.Equal(t, want, paths(sink.records))
	assert.Equal(t, 1, sink.finished)
}

type batchRecorder struct {
	batches [][]string
}

func (b *batchRecorder) WriteBatch(_ context.Context, records []*model.LogRecord) error {
	b.batches = append(b.batches, paths(records))
	return nil
}

func (b *batchRecorder) Close() error { return nil }

func TestPipeline_BatchesAreContiguous(t *testing.T) {
	var in strings.Builder
	for i := 0; i < 1234; i++ {
		in.WriteString(accessLine(i) + "\r\n")
	}

	w := &batchRecorder{}
	acc := duckdb.NewAccumulator(w, duckdb.AccumulatorConfig{BatchSize: 100})
	st, err := New(acc, Config{Workers: 4, ChunkLines: 33}).Run(context.Background(), strings.NewReader(in.String()))
	require.NoError(t, err)
	assert.Equal(t, Stats{Records: 1234, Batches: 13}, st)

	i := 0
	for bi, batch := range w.batches {
		if bi < len(w.batches)-1 {
			assert.Len(t, batch, 100)
		}
		for _, p := range batch {
			assert.Equal(t, fmt.Sprintf("/p%d", i), p)
			i++
		}
	}
	assert.Equal(t, 1234, i)
	assert.Len(t, w.batches[len(w.batches)-1], 34)
}

func TestPipeline_SpecScenarioLine(t *testing.T) {
	line := `127.0.0.1 - - [10/Oct/2000:13:55:36 -0700] "GET /index.html HTTP/1.0" 200 2326 "-" "Mozilla/5.0"`
	sink := &recordingSink{}
	_, err := New(sink).Run(context.Background(), strings.NewReader(line))
	require.NoError(t, err)
	require.Len(t, sink.records, 1)

	r := sink.records[0]
	assert.Equal(t, "/index.html", r.Path)
	assert.Equal(t, int32(200), r.Status)
	require.NotNil(t, r.Bytes)
	assert.Equal(t, int64(2326), *r.Bytes)
	require.NotNil(t, r.Time)
	assert.Equal(t, "2000-10-10T20:55:36Z", r.Time.UTC().Format("2006-01-02T15:04:05Z07:00"))
}

func TestPipeline_EmptyInput(t *testing.T) {
	sink := &recordingSink{}
	st, err := New(sink).Run(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, st.Records)
	assert.Empty(t, sink.records)
	assert.Equal(t, 1, sink.finished)
}

type brokenReader struct{ n int }

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.n < 3 {
		b.n++
		return copy(p, accessLine(b.n)+"\n"), nil
	}
	return 0, errors.New("connection reset")
}

func TestPipeline_InputIOError(t *testing.T) {
	sink := &recordingSink{}
	_, err := New(sink, Config{SourceName: "access.log"}).Run(context.Background(), &brokenReader{})

	var ioErr *logsource.InputIOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "access.log", ioErr.Source)
	assert.Zero(t, sink.finished, "a failed read must not seal the dataset")
}

func TestPipeline_SinkErrorStopsRun(t *testing.T) {
	var in strings.Builder
	for i := 0; i < 5000; i++ {
		in.WriteString(accessLine(i) + "\n")
	}
	sink := &recordingSink{failAt: 10}
	_, err := New(sink, Config{Workers: 4, ChunkLines: 16}).Run(context.Background(), strings.NewReader(in.String()))
	require.EqualError(t, err, "sink full")
	assert.Len(t, sink.records, 10)
	assert.Zero(t, sink.finished)
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sink := &recordingSink{}
	_, err := New(sink).Run(ctx, strings.NewReader(accessLine(1)+"\n"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sink.finished)
}
