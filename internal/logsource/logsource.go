package logsource

import "fmt"

// LogSource is a unified interface for line-oriented log inputs.
type LogSource interface {
	Lines() <-chan string // read-only channel of log lines, closed at end of input
	Err() error           // read failure, valid once Lines is closed
	Stop()                // graceful shutdown
	Name() string         // "stdin" or the input path
}

// InputIOError reports that the input stream could not be opened or read.
// It aborts ingestion.
type InputIOError struct {
	Source string
	Op     string
	Err    error
}

func (e *InputIOError) Error() string {
	return fmt.Sprintf("%s input %s: %v", e.Op, e.Source, e.Err)
}

func (e *InputIOError) Unwrap() error { return e.Err }
