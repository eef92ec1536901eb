package pipeline

import (
	"context"
	"sync/atomic"
	"time"
)

// Controller carries the cooperative abort and pause signals of a run.  It is
// polled by the producer between entries; an item already in flight is never
// interrupted.
type Controller struct {
	aborted atomic.Bool
	paused  atomic.Bool
}

// NewController returns a Controller in the running state.
func NewController() *Controller { return &Controller{} }

// Abort asks the run to stop after the items already in flight.
func (c *Controller) Abort() { c.aborted.Store(true) }

// Pause stalls the producer before its next entry.
func (c *Controller) Pause() { c.paused.Store(true) }

// Resume releases a paused producer.
func (c *Controller) Resume() { c.paused.Store(false) }

func (c *Controller) Aborted() bool { return c.aborted.Load() }
func (c *Controller) Paused() bool  { return c.paused.Load() }

const pausePollInterval = 50 * time.Millisecond

// wait blocks while the run is paused.  It returns early on abort or when ctx
// is done.
func (c *Controller) wait(ctx context.Context) error {
	if !c.Paused() {
		return nil
	}
	t := time.NewTicker(pausePollInterval)
	defer t.Stop()
	for c.Paused() && !c.Aborted() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
