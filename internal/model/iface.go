package model

import (
	"context"
	"time"
)

// BotClassifier decides whether a user-agent string belongs to an automated client.
type BotClassifier interface {
	IsBot(ua string) bool
	Family(ua string) string
}

// LogQuerier provides read-only aggregations over one finished dataset.
type LogQuerier interface {
	TotalRecords(ctx context.Context) (int64, error)
	HitsByPath(ctx context.Context, topN int) ([]PathCount, error)
	StatusDistribution(ctx context.Context) ([]StatusCount, error)
	HitsOverTime(ctx context.Context, bucket time.Duration) ([]TimeBucket, error)
	Top404s(ctx context.Context, topN int) ([]PathCount, error)
	P95LatencyByPath(ctx context.Context, topN int) ([]PathLatency, error)
	DistinctCrawledPaths(ctx context.Context, classifier BotClassifier) (map[string]struct{}, error)
	BotHumanSplit(ctx context.Context, classifier BotClassifier) (BotSplit, error)
	TopFamilies(ctx context.Context, classifier BotClassifier, topN int) ([]FamilyCount, error)
}

// BatchWriter persists one sealed batch as a self-contained storage unit.
type BatchWriter interface {
	WriteBatch(ctx context.Context, records []*LogRecord) error
	Close() error
}

// RecordSink accepts parsed records in input order.
type RecordSink interface {
	Accept(ctx context.Context, record *LogRecord) error
}
