package eventlog

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"os"
)

const (
	// DefaultLogPath is where Windows keeps the Task Scheduler operational log.
	DefaultLogPath = `C:\Windows\System32\winevt\Logs\Microsoft-Windows-TaskScheduler%4Operational.evtx`
	// DefaultChannel is the event channel backing DefaultLogPath.
	DefaultChannel = "Microsoft-Windows-TaskScheduler/Operational"
)

// Source opens a fresh, independent read handle over the operational log.
type Source interface {
	Open(ctx context.Context) (Iterator, error)
	// Describe names the log for messages and errors.
	Describe() string
}

// Iterator yields raw records in log order. Next returns io.EOF after the last
// record. Close releases the handle and is safe to call at any point, more than
// once.
type Iterator interface {
	Next() (RawRecord, error)
	Close() error
}

// FileSource reads an XML export of the log, either a bare sequence of <Event>
// elements (wevtutil qe /f:xml) or one wrapped in <Events>.
type FileSource struct {
	Path string
}

func (s *FileSource) Describe() string {
	return s.Path
}

// Open implements Source.
func (s *FileSource) Open(ctx context.Context) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &LogAccessError{Path: s.Path, Err: err}
	}
	return newStreamIterator(s.Path, f, f.Close), nil
}

// streamIterator pulls <Event> elements from an XML token stream.
type streamIterator struct {
	path     string
	dec      *xml.Decoder
	position int
	done     bool
	closeFn  func() error
	closed   bool
}

func newStreamIterator(path string, r io.Reader, closeFn func() error) *streamIterator {
	return &streamIterator{path: path, dec: xml.NewDecoder(r), closeFn: closeFn}
}

func (it *streamIterator) Next() (RawRecord, error) {
	if it.done {
		return nil, io.EOF
	}
	for {
		tok, err := it.dec.Token()
		if err == io.EOF {
			it.done = true
			return nil, io.EOF
		}
		if err != nil {
			it.done = true
			return nil, it.streamError(err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Event" {
			continue
		}
		node, err := readElement(it.dec, start)
		if err != nil {
			it.done = true
			return nil, it.streamError(err)
		}
		it.position++
		return node, nil
	}
}

// streamError separates broken XML, which is a record problem, from failures
// of the underlying reader.
func (it *streamIterator) streamError(err error) error {
	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &MalformedRecordError{Position: it.position, Reason: "invalid XML", Err: err}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &MalformedRecordError{Position: it.position, Reason: "truncated record", Err: err}
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return &LogAccessError{Path: it.path, Err: err}
	}
	return &MalformedRecordError{Position: it.position, Reason: err.Error(), Err: err}
}

func (it *streamIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.done = true
	if it.closeFn == nil {
		return nil
	}
	return it.closeFn()
}
