package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/patrickspencer/taskhist/internal/eventlog"
)

// Policy decides what happens to records that fail to decode.
type Policy int

const (
	// FailFast stops at the first malformed record and returns no table.
	FailFast Policy = iota
	// SkipMalformed leaves malformed records out and reports them in
	// Result.Skipped.
	SkipMalformed
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail"
	case SkipMalformed:
		return "skip"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "fail" (or "") and "skip".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail", "fail-fast":
		return FailFast, nil
	case "skip", "skip-malformed":
		return SkipMalformed, nil
	default:
		return FailFast, fmt.Errorf("unknown malformed-record policy %q", s)
	}
}

// Options controls Extract.
type Options struct {
	Policy Policy
	Logger zerolog.Logger
}

// Result is the outcome of one extraction.
type Result struct {
	Table *Table
	// Skipped holds the records left out under SkipMalformed, in source order.
	Skipped []*eventlog.MalformedRecordError
}

// Extract reads src once from start to end and builds the history table. The
// read handle is closed before Extract returns, whatever the outcome. No
// partial table is returned with an error.
func Extract(ctx context.Context, src eventlog.Source, opts Options) (res *Result, err error) {
	log := opts.Logger.With().Str("source", src.Describe()).Logger()

	it, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := it.Close(); cerr != nil && err == nil {
			res, err = nil, &eventlog.LogAccessError{Path: src.Describe(), Err: cerr}
		}
	}()

	records := []eventlog.EventRecord{}
	var skipped []*eventlog.MalformedRecordError

	for position := 0; ; position++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		rec, err := eventlog.Decode(position, raw)
		if err != nil {
			var malformedErr *eventlog.MalformedRecordError
			if opts.Policy != SkipMalformed || !errors.As(err, &malformedErr) {
				return nil, err
			}
			log.Warn().Err(err).Int("position", position).Msg("skipping malformed record")
			skipped = append(skipped, malformedErr)
			continue
		}
		records = append(records, rec)
	}

	log.Debug().Int("records", len(records)).Int("skipped", len(skipped)).Msg("history extracted")
	return &Result{Table: NewTable(records), Skipped: skipped}, nil
}
