package duckdb

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/tinytelemetry/logscope/internal/logging"
	"github.com/tinytelemetry/logscope/internal/metrics"
	"github.com/tinytelemetry/logscope/internal/model"
)

// ErrAccumulatorFinished is returned by Accept after Finish.
var ErrAccumulatorFinished = errors.New("duckdb: accumulator finished")

// AccumulatorConfig holds tunable parameters for the batch accumulator.
type AccumulatorConfig struct {
	BatchSize int
	Logger    *zap.Logger
}

// Accumulator buffers records in input order and hands full batches to a
// BatchWriter. The first write failure is sticky: every later call returns it,
// while batches written before the failure stay valid.
type Accumulator struct {
	writer   model.BatchWriter
	logger   *zap.Logger
	mu       sync.Mutex
	pending  []*model.LogRecord
	maxBatch int
	batches  int
	accepted int64
	err      error
	finished bool
}

var _ model.RecordSink = (*Accumulator)(nil)

// NewAccumulator creates an accumulator that flushes to writer.
func NewAccumulator(writer model.BatchWriter, conf ...AccumulatorConfig) *Accumulator {
	batchSize := model.DefaultBatchSize
	var logger *zap.Logger
	if len(conf) > 0 {
		if conf[0].BatchSize > 0 {
			batchSize = conf[0].BatchSize
		}
		logger = conf[0].Logger
	}
	return &Accumulator{
		writer:   writer,
		logger:   logging.OrNop(logger),
		pending:  make([]*model.LogRecord, 0, min(batchSize, 4096)),
		maxBatch: batchSize,
	}
}

// Accept appends one record and flushes when the buffer reaches capacity.
func (a *Accumulator) Accept(ctx context.Context, record *model.LogRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.finished {
		return ErrAccumulatorFinished
	}
	a.pending = append(a.pending, record)
	a.accepted++
	return a.flushIfFullLocked(ctx)
}

// FlushIfFull writes the buffer when it has reached capacity.
func (a *Accumulator) FlushIfFull(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	return a.flushIfFullLocked(ctx)
}

// Finish flushes any non-empty remainder. Every accepted record reaches the
// writer exactly once. Calling Finish again is a no-op.
func (a *Accumulator) Finish(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	if a.finished {
		return nil
	}
	a.finished = true
	if err := a.flushLocked(ctx); err != nil {
		return err
	}
	a.logger.Info("ingestion finished",
		zap.Int64("records", a.accepted),
		zap.Int("batches", a.batches))
	return nil
}

// Stats returns the records accepted and batches flushed so far.
func (a *Accumulator) Stats() (records int64, batches int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.accepted, a.batches
}

// Pending returns the number of buffered, unflushed records.
func (a *Accumulator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Accumulator) flushIfFullLocked(ctx context.Context) error {
	if len(a.pending) < a.maxBatch {
		return nil
	}
	return a.flushLocked(ctx)
}

func (a *Accumulator) flushLocked(ctx context.Context) error {
	if len(a.pending) == 0 {
		return nil
	}
	batch := a.pending
	if err := a.writer.WriteBatch(ctx, batch); err != nil {
		a.err = err
		return err
	}
	a.batches++
	metrics.ObserveRecords(len(batch))
	a.pending = make([]*model.LogRecord, 0, cap(batch))
	return nil
}
