package ingest

import (
	"context"
	"io"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/logscope/internal/logging"
	"github.com/tinytelemetry/logscope/internal/logparse"
	"github.com/tinytelemetry/logscope/internal/logsource"
	"github.com/tinytelemetry/logscope/internal/model"
)

// BatchSink receives records in input order and seals the final batch on Finish.
type BatchSink interface {
	model.RecordSink
	Finish(ctx context.Context) error
	Stats() (records int64, batches int)
}

// Config holds tunable parameters for the ingestion pipeline.
type Config struct {
	Workers    int // parse workers; defaults to GOMAXPROCS
	ChunkLines int // lines per work unit
	SourceName string
	Logger     *zap.Logger
}

// Stats summarizes a finished run.
type Stats struct {
	Records int64
	Batches int
}

// Pipeline parses access-log lines on a pool of workers and feeds the records
// to a sink in the exact order the lines were read.
type Pipeline struct {
	sink       BatchSink
	workers    int
	chunkLines int
	sourceName string
	logger     *zap.Logger
}

// New creates a pipeline writing to sink.
func New(sink BatchSink, conf ...Config) *Pipeline {
	p := &Pipeline{
		sink:       sink,
		workers:    runtime.GOMAXPROCS(0),
		chunkLines: model.DefaultChunkLines,
		sourceName: "input",
	}
	var logger *zap.Logger
	if len(conf) > 0 {
		c := conf[0]
		if c.Workers > 0 {
			p.workers = c.Workers
		}
		if c.ChunkLines > 0 {
			p.chunkLines = c.ChunkLines
		}
		if c.SourceName != "" {
			p.sourceName = c.SourceName
		}
		logger = c.Logger
	}
	p.logger = logging.OrNop(logger)
	return p
}

type chunk struct {
	seq   int
	lines []string
}

type parsedChunk struct {
	seq     int
	records []*model.LogRecord
}

// Run reads r to the end and returns once every record has reached the sink
// and the final batch is sealed. Lines that do not match the grammar are
// dropped. A read failure is returned as *logsource.InputIOError; a sink
// failure is returned as reported by the sink.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (Stats, error) {
	src := logsource.NewReaderSource(ctx, p.sourceName, r, logsource.ReaderConfig{Logger: p.logger})
	defer src.Stop()
	return p.RunSource(ctx, src)
}

// RunSource is Run over an already started line source.
func (p *Pipeline) RunSource(ctx context.Context, src logsource.LogSource) (Stats, error) {
	g, gctx := errgroup.WithContext(ctx)

	chunks := make(chan chunk, p.workers)
	parsed := make(chan parsedChunk, p.workers)
	// Bounds the chunks held between the reader and the collector so a slow
	// chunk cannot make the reorder buffer grow without limit.
	inflight := make(chan struct{}, 4*p.workers)

	g.Go(func() error {
		defer close(chunks)
		return p.readChunks(gctx, src, chunks, inflight)
	})

	workers, wctx := errgroup.WithContext(gctx)
	for i := 0; i < p.workers; i++ {
		workers.Go(func() error { return parseChunks(wctx, chunks, parsed) })
	}
	g.Go(func() error {
		defer close(parsed)
		return workers.Wait()
	})

	g.Go(func() error { return p.collect(gctx, parsed, inflight) })

	if err := g.Wait(); err != nil {
		return p.stats(), err
	}
	if err := ctx.Err(); err != nil {
		return p.stats(), err
	}
	if err := p.sink.Finish(ctx); err != nil {
		return p.stats(), err
	}
	st := p.stats()
	p.logger.Info("ingestion complete",
		zap.String("source", src.Name()),
		zap.Int64("records", st.Records),
		zap.Int("batches", st.Batches))
	return st, nil
}

func (p *Pipeline) stats() Stats {
	records, batches := p.sink.Stats()
	return Stats{Records: records, Batches: batches}
}

func (p *Pipeline) readChunks(ctx context.Context, src logsource.LogSource, out chan<- chunk, inflight chan struct{}) error {
	seq := 0
	send := func(lines []string) error {
		select {
		case inflight <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case out <- chunk{seq: seq, lines: lines}:
			seq++
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	lines := make([]string, 0, p.chunkLines)
	for {
		select {
		case line, ok := <-src.Lines():
			if !ok {
				if err := src.Err(); err != nil {
					return err
				}
				if len(lines) > 0 {
					return send(lines)
				}
				return nil
			}
			lines = append(lines, line)
			if len(lines) == p.chunkLines {
				if err := send(lines); err != nil {
					return err
				}
				lines = make([]string, 0, p.chunkLines)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseChunks(ctx context.Context, in <-chan chunk, out chan<- parsedChunk) error {
	for c := range in {
		records := make([]*model.LogRecord, 0, len(c.lines))
		for _, line := range c.lines {
			if rec, ok := logparse.ParseLine(line); ok {
				records = append(records, rec)
			}
		}
		select {
		case out <- parsedChunk{seq: c.seq, records: records}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// collect restores input order across workers and hands records to the sink.
func (p *Pipeline) collect(ctx context.Context, in <-chan parsedChunk, inflight <-chan struct{}) error {
	pending := make(map[int][]*model.LogRecord)
	next := 0
	for pc := range in {
		pending[pc.seq] = pc.records
		for {
			records, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			for _, rec := range records {
				if err := p.sink.Accept(ctx, rec); err != nil {
					return err
				}
			}
			<-inflight
		}
	}
	return nil
}
