// Package command runs the external Windows tools (wevtutil, powershell) that
// front the Task Scheduler service, streaming stdout and keeping a bounded
// tail of stderr for error reporting.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const stderrTailSize = 8 * 1024

// RingBuffer is a fixed-size circular buffer that implements io.Writer.
// It retains only the most recent bytes written, up to its capacity.
type RingBuffer struct {
	mu   sync.Mutex
	buf  []byte
	size int
	pos  int
	full bool
}

// NewRingBuffer creates a RingBuffer with the given capacity.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{buf: make([]byte, size), size: size}
}

// Write implements io.Writer, overwriting the oldest data once full.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	if n >= rb.size {
		copy(rb.buf, p[n-rb.size:])
		rb.pos = 0
		rb.full = true
		return n, nil
	}

	oldPos := rb.pos
	first := rb.size - rb.pos
	if first >= n {
		copy(rb.buf[rb.pos:], p)
	} else {
		copy(rb.buf[rb.pos:], p[:first])
		copy(rb.buf, p[first:])
	}

	rb.pos = (rb.pos + n) % rb.size
	if !rb.full && rb.pos <= oldPos {
		rb.full = true
	}
	return n, nil
}

// String returns the buffered contents in chronological order.
func (rb *RingBuffer) String() string {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.full {
		return string(rb.buf[:rb.pos])
	}
	out := make([]byte, rb.size)
	n := copy(out, rb.buf[rb.pos:])
	copy(out[n:], rb.buf[:rb.pos])
	return string(out)
}

// ExitError describes a command that could not be started or exited non-zero.
type ExitError struct {
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Name, e.Err)
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Options controls how a command is started.
type Options struct {
	Dir     string
	Timeout time.Duration
}

// Process is a started command whose stdout is consumed by the caller.
type Process struct {
	name   string
	cmd    *exec.Cmd
	ctx    context.Context
	cancel context.CancelFunc
	stdout io.ReadCloser
	stderr *RingBuffer

	once    sync.Once
	waitErr error
}

// Start launches name with args. The caller must read Stdout to completion (or
// stop early, calling Kill first) and then call Wait to release the process.
func Start(ctx context.Context, name string, args []string, opts *Options) (*Process, error) {
	var cancel context.CancelFunc
	if opts != nil && opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if opts != nil && opts.Dir != "" {
		cmd.Dir = opts.Dir
	}

	stderr := NewRingBuffer(stderrTailSize)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &ExitError{Name: name, ExitCode: -1, Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &ExitError{Name: name, ExitCode: -1, Err: err}
	}

	return &Process{
		name:   name,
		cmd:    cmd,
		ctx:    ctx,
		cancel: cancel,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

// Stdout returns the command's standard output stream.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Kill stops the process without waiting for it.
func (p *Process) Kill() {
	p.cancel()
}

// Wait reaps the process. It is safe to call more than once; later calls return
// the first result.
func (p *Process) Wait() error {
	p.once.Do(func() {
		// Drain anything left so the child is not blocked on a full pipe.
		_, _ = io.Copy(io.Discard, p.stdout)
		err := p.cmd.Wait()
		ctxErr := p.ctx.Err()
		p.cancel()

		if err == nil {
			return
		}
		exit := &ExitError{Name: p.name, ExitCode: -1, Stderr: p.stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exit.ExitCode = exitErr.ExitCode()
		}
		if ctxErr != nil {
			exit.Err = ctxErr
		}
		p.waitErr = exit
	})
	return p.waitErr
}

// Output runs the command to completion and returns its stdout.
func Output(ctx context.Context, name string, args []string, opts *Options) ([]byte, error) {
	p, err := Start(ctx, name, args, opts)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	_, copyErr := io.Copy(&out, p.stdout)
	if err := p.Wait(); err != nil {
		return nil, err
	}
	if copyErr != nil {
		return nil, fmt.Errorf("read %s output: %w", name, copyErr)
	}
	return out.Bytes(), nil
}
