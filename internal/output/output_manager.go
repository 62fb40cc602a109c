package output

import (
	"log/slog"

	"github.com/tkjaer/mtr/internal/shared"
)

// Output interface for different output types
type Output interface {
	// Update is called with the path after every cycle in continuous mode.
	Update(s shared.Snapshot)
	// Complete is called exactly once with the final path.
	Complete(s shared.Snapshot)
	Close() error
}

// OutputManager manages multiple outputs
type OutputManager struct {
	outputs []Output
}

func (om *OutputManager) Register(o Output) {
	om.outputs = append(om.outputs, o)
}

func (om *OutputManager) Update(s shared.Snapshot) {
	for _, o := range om.outputs {
		o.Update(s)
	}
}

func (om *OutputManager) Complete(s shared.Snapshot) {
	for _, o := range om.outputs {
		o.Complete(s)
	}
}

func (om *OutputManager) Close() {
	for _, o := range om.outputs {
		if err := o.Close(); err != nil {
			slog.Warn("Failed to close output", "error", err)
		}
	}
}
