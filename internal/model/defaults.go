package model

import "time"

// Shared defaults used by the ingest pipeline, the query layer, and the CLI.
const (
	DefaultBatchSize  = 50_000
	DefaultTopN       = 20
	DefaultBucket     = time.Hour
	DefaultChunkLines = 4096
)
