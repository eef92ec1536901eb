package hooks

import (
	"fmt"
	"io"
	"sync"
)

// Progress writes progress tokens as KEY=value lines, one per report, for a
// supervising process to parse.
type Progress struct {
	mu sync.Mutex
	w  io.Writer
}

// NewProgress returns a Progress writing to w.
func NewProgress(w io.Writer) *Progress { return &Progress{w: w} }

func (p *Progress) Report(key, value string) {
	p.mu.Lock()
	fmt.Fprintf(p.w, "%s=%s\n", key, value)
	p.mu.Unlock()
}

// ProgressCounter counts reports per key=value token; useful when no line
// output is wanted.
type ProgressCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewProgressCounter() *ProgressCounter {
	return &ProgressCounter{counts: make(map[string]int)}
}

func (c *ProgressCounter) Report(key, value string) {
	c.mu.Lock()
	c.counts[key+"="+value]++
	c.mu.Unlock()
}

// Count returns how many times token ("KEY=value") was reported.
func (c *ProgressCounter) Count(token string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[token]
}
