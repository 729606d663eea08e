package errs

import "github.com/cockroachdb/errors"

// ErrorKind identifies a kind of internal error. Errors marked with a kind
// match it with errors.Is.
type ErrorKind string

const (
	// SourceFailure is returned when the log source fails to return a page.
	SourceFailure = ErrorKind("source failure")
	// SinkFailure is returned when a decoded batch could not be persisted.
	SinkFailure = ErrorKind("sink failure")
	// CheckpointFailure is returned when the cursor could not be loaded or saved.
	CheckpointFailure = ErrorKind("checkpoint failure")
	// InvalidConfig is returned when settings fail validation.
	InvalidConfig = ErrorKind("invalid config")
	// PermanentFailure marks errors that repeating the same request cannot fix.
	PermanentFailure = ErrorKind("permanent failure")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

var stages = []struct {
	kind  ErrorKind
	stage string
}{
	{SourceFailure, "source"},
	{SinkFailure, "sink"},
	{CheckpointFailure, "checkpoint"},
	{InvalidConfig, "config"},
}

// Stage names the pipeline stage an error was marked with.
func Stage(err error) string {
	for _, s := range stages {
		if errors.Is(err, s.kind) {
			return s.stage
		}
	}
	return "unknown"
}
