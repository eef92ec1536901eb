package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
)

// Summary reports what a run did.
type Summary struct {
	RunID string

	Enumerated    int64 // entries seen by the producers
	Processed     int64 // images written after processing
	PassedThrough int64 // entries copied through unchanged
	Skipped       int64 // entries whose output already existed
	BytesWritten  int64

	// Sentinels counts end-of-stream markers observed by sinks: one per
	// output, including outputs of nested archives.
	Sentinels    int64
	PeakInFlight int64

	Aborted bool
	// Errors aggregates per-item failures; nil when there were none.
	Errors  error
	Elapsed time.Duration
}

// ErrorCount returns the number of per-item failures.
func (s Summary) ErrorCount() int {
	if me, ok := s.Errors.(*multierror.Error); ok {
		return me.Len()
	}
	if s.Errors != nil {
		return 1
	}
	return 0
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s entries, %s processed, %s copied, %s skipped, %s written in %s",
		humanize.Comma(s.Enumerated),
		humanize.Comma(s.Processed),
		humanize.Comma(s.PassedThrough),
		humanize.Comma(s.Skipped),
		humanize.Bytes(uint64(s.BytesWritten)),
		s.Elapsed.Round(time.Millisecond),
	)
	if n := s.ErrorCount(); n > 0 {
		fmt.Fprintf(&b, ", %d errors", n)
	}
	if s.Aborted {
		b.WriteString(" (aborted)")
	}
	return b.String()
}

// tally accumulates counters shared by the stages of a run and its nested
// archive runs.
type tally struct {
	enumerated atomic.Int64
	processed  atomic.Int64
	passed     atomic.Int64
	skipped    atomic.Int64
	bytes      atomic.Int64
	sentinels  atomic.Int64
	aborted    atomic.Bool

	mu   sync.Mutex
	errs *multierror.Error
}

func (t *tally) fail(name string, err error) {
	t.mu.Lock()
	t.errs = multierror.Append(t.errs, fmt.Errorf("%s: %w", name, err))
	t.mu.Unlock()
}

func (t *tally) summary() Summary {
	t.mu.Lock()
	errs := t.errs.ErrorOrNil()
	t.mu.Unlock()
	return Summary{
		Enumerated:    t.enumerated.Load(),
		Processed:     t.processed.Load(),
		PassedThrough: t.passed.Load(),
		Skipped:       t.skipped.Load(),
		BytesWritten:  t.bytes.Load(),
		Sentinels:     t.sentinels.Load(),
		Aborted:       t.aborted.Load(),
		Errors:        errs,
	}
}
