package model

import "time"

// LogRecord represents one parsed access-log entry.
// It is the canonical type for parsing, columnar storage, and query results.
// Optional fields are nil when the source field was missing or malformed.
type LogRecord struct {
	RemoteAddr string
	Time       *time.Time
	Method     *string
	Path       string
	Protocol   *string
	Status     int32
	Bytes      *int64
	Referer    string
	UserAgent  string
	Latency    *float64 // seconds; only present for logs with a trailing request-time token
}

// PathCount represents the number of hits recorded for one request path.
type PathCount struct {
	Path string `json:"path" yaml:"path"`
	Hits int64  `json:"hits" yaml:"hits"`
}

// StatusCount represents the number of responses with one status code.
type StatusCount struct {
	Status int32 `json:"status" yaml:"status"`
	Count  int64 `json:"count" yaml:"count"`
}

// TimeBucket represents hit volume within one truncated time interval.
type TimeBucket struct {
	Bucket time.Time `json:"bucket" yaml:"bucket"`
	Hits   int64     `json:"hits" yaml:"hits"`
}

// PathLatency represents a per-path latency percentile.
type PathLatency struct {
	Path    string  `json:"path" yaml:"path"`
	P95     float64 `json:"p95" yaml:"p95"`
	Samples int64   `json:"samples" yaml:"samples"`
}

// FamilyCount represents grouped counts by user-agent family.
type FamilyCount struct {
	Family string `json:"family" yaml:"family"`
	Bot    bool   `json:"bot" yaml:"bot"`
	Hits   int64  `json:"hits" yaml:"hits"`
}

// BotSplit is the bot/human breakdown of all records.
type BotSplit struct {
	Bot   int64 `json:"bot" yaml:"bot"`
	Human int64 `json:"human" yaml:"human"`
}

// Report bundles the standard aggregations over one dataset.
// Latency is nil when the dataset carries no latency column.
type Report struct {
	Records     int64         `json:"records" yaml:"records"`
	TopPaths    []PathCount   `json:"top_paths" yaml:"top_paths"`
	Statuses    []StatusCount `json:"statuses" yaml:"statuses"`
	Timeline    []TimeBucket  `json:"timeline" yaml:"timeline"`
	Top404s     []PathCount   `json:"top_404s" yaml:"top_404s"`
	Latency     []PathLatency `json:"latency,omitempty" yaml:"latency,omitempty"`
	Bots        BotSplit      `json:"bots" yaml:"bots"`
	TopFamilies []FamilyCount `json:"top_families" yaml:"top_families"`
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// Int64Ptr returns a pointer to n.
func Int64Ptr(n int64) *int64 { return &n }

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 { return &f }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }
