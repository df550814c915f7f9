package eventlog

import (
	"context"
	"io"
	"time"

	"github.com/patrickspencer/taskhist/internal/command"
)

// WevtutilSource reads the log through `wevtutil qe`, either from the live
// channel or from an .evtx file when LogFile is set.
type WevtutilSource struct {
	Binary  string
	Channel string
	LogFile string
	// Reverse asks wevtutil for newest-first order.
	Reverse bool
	Timeout time.Duration
}

func (s *WevtutilSource) Describe() string {
	if s.LogFile != "" {
		return s.LogFile
	}
	return s.channel()
}

func (s *WevtutilSource) channel() string {
	if s.Channel == "" {
		return DefaultChannel
	}
	return s.Channel
}

// Args returns the wevtutil command line used by Open.
func (s *WevtutilSource) Args() []string {
	args := []string{"qe"}
	if s.LogFile != "" {
		args = append(args, s.LogFile, "/lf:true")
	} else {
		args = append(args, s.channel())
	}
	args = append(args, "/f:xml")
	if s.Reverse {
		args = append(args, "/rd:true")
	}
	return args
}

// Open implements Source. Each call starts its own wevtutil process.
func (s *WevtutilSource) Open(ctx context.Context) (Iterator, error) {
	bin := s.Binary
	if bin == "" {
		bin = "wevtutil.exe"
	}
	proc, err := command.Start(ctx, bin, s.Args(), &command.Options{Timeout: s.Timeout})
	if err != nil {
		return nil, &LogAccessError{Path: s.Describe(), Err: err}
	}
	it := &wevtutilIterator{proc: proc, path: s.Describe()}
	it.stream = newStreamIterator(it.path, proc.Stdout(), nil)
	return it, nil
}

type wevtutilIterator struct {
	proc   *command.Process
	path   string
	stream *streamIterator
	eof    bool
	closed bool
}

func (it *wevtutilIterator) Next() (RawRecord, error) {
	if it.eof {
		return nil, io.EOF
	}
	rec, err := it.stream.Next()
	if err == nil {
		return rec, nil
	}
	it.eof = true
	// The exit status decides whether an empty or short stream was a failure.
	if waitErr := it.proc.Wait(); waitErr != nil {
		return nil, &LogAccessError{Path: it.path, Err: waitErr}
	}
	return nil, err
}

func (it *wevtutilIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	if !it.eof {
		// Stopped early: the caller already has its answer, so the kill
		// status is not reported.
		it.proc.Kill()
		_ = it.proc.Wait()
	}
	return nil
}
