package eventlog

import "fmt"

// LogAccessError reports that the operational log could not be read at all:
// the file is missing, access was denied, or the reader tool failed.
type LogAccessError struct {
	Path string
	Err  error
}

func (e *LogAccessError) Error() string {
	return fmt.Sprintf("read task scheduler log %s: %v", e.Path, e.Err)
}

func (e *LogAccessError) Unwrap() error {
	return e.Err
}

// MalformedRecordError reports a record that does not have the expected
// structure. Position is the zero-based index of the record in its source.
type MalformedRecordError struct {
	Position int
	Field    string
	Reason   string
	Err      error
}

func (e *MalformedRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed record at position %d: %s", e.Position, e.Reason)
	}
	return fmt.Sprintf("malformed record at position %d: %s: %s", e.Position, e.Field, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}
