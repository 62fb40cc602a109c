package probe

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tkjaer/mtr/internal/shared"
)

// Mode selects when snapshots are emitted.
type Mode int

const (
	// ModeContinuous emits a snapshot after every cycle.
	ModeContinuous Mode = iota
	// ModeReport runs silently and emits a single snapshot at the end.
	ModeReport
)

// RunState is the lifecycle of a Controller.
type RunState int32

const (
	StateInitializing RunState = iota
	StateRunning
	StateCancelled
	StateCompleted
)

func (s RunState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// Renderer consumes snapshots. Update is called after every cycle in
// continuous mode, Complete exactly once when the run ends.
type Renderer interface {
	Update(s shared.Snapshot)
	Complete(s shared.Snapshot)
}

type ControllerConfig struct {
	Mode     Mode
	Cycles   uint // 0 runs until cancelled
	Interval time.Duration
}

// Controller drives cycles until the configured count is reached or the
// context is cancelled.
type Controller struct {
	path      *PathState
	scheduler *Scheduler
	renderer  Renderer
	config    ControllerConfig
	state     atomic.Int32
}

func NewController(path *PathState, scheduler *Scheduler, renderer Renderer, config ControllerConfig) *Controller {
	return &Controller{
		path:      path,
		scheduler: scheduler,
		renderer:  renderer,
		config:    config,
	}
}

func (c *Controller) State() RunState {
	return RunState(c.state.Load())
}

// Run executes cycles and emits the final snapshot. Cancellation ends the
// run gracefully and is not reported as an error.
func (c *Controller) Run(ctx context.Context) error {
	c.state.Store(int32(StateRunning))
	final := c.loop(ctx)
	c.state.Store(int32(final))

	slog.Debug("Run finished", "state", final, "cycles", c.path.Cycle())
	c.renderer.Complete(c.path.Snapshot())
	return nil
}

func (c *Controller) loop(ctx context.Context) RunState {
	for n := uint(1); ; n++ {
		if ctx.Err() != nil {
			return StateCancelled
		}

		c.scheduler.RunCycle(ctx, c.path)
		if c.config.Mode == ModeContinuous {
			c.renderer.Update(c.path.Snapshot())
		}

		if c.config.Cycles > 0 && n >= c.config.Cycles {
			return StateCompleted
		}

		timer := time.NewTimer(c.config.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return StateCancelled
		case <-timer.C:
		}
	}
}
