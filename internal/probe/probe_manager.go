package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tkjaer/mtr/pkg/ptr"
	"github.com/tkjaer/mtr/pkg/route"

	"github.com/tkjaer/mtr/internal/config"
	"github.com/tkjaer/mtr/internal/output"
	"github.com/tkjaer/mtr/internal/shared"
)

// ProbeManager wires the engine to its transport and outputs for one run
type ProbeManager struct {
	args      config.Args
	target    Target
	source    string // Local address shown to the user, may be empty
	transport Transport
	closer    io.Closer // closes the transport, may be nil

	path       *PathState
	controller *Controller

	outputs *output.OutputManager
	tui     *output.BubbleTUIOutput
	metrics *output.MetricsOutput

	closeOnce sync.Once
}

// NewProbeManager resolves the destination, opens the ICMP socket and
// creates the outputs. Any failure here is fatal for the run.
func NewProbeManager(a config.Args) (*ProbeManager, error) {
	target, err := ResolveTarget(a.Destination)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Destination, err)
	}
	slog.Debug("Resolved destination", "destination", target.Name, "ip", target.Addr)

	source := a.Source
	if rt, err := route.Get(target.Addr); err != nil {
		slog.Warn("Route lookup failed", "destination", target.Addr, "error", err)
	} else {
		slog.Debug("Route to destination",
			"source", rt.Source,
			"gateway", rt.Gateway,
			"interface", rt.InterfaceName(),
		)
		if source == "" {
			source = rt.Source.String()
		}
	}

	transport, err := NewICMPTransport(a.Source)
	if err != nil {
		return nil, err
	}

	pm, err := newProbeManager(a, target, source, transport)
	if err != nil {
		transport.Close()
		return nil, err
	}
	pm.closer = transport
	return pm, nil
}

func newProbeManager(a config.Args, target Target, source string, transport Transport) (*ProbeManager, error) {
	policy, ok := ParseFinalHopPolicy(a.FinalHop)
	if !ok {
		return nil, fmt.Errorf("unknown final hop policy %q", a.FinalHop)
	}

	var resolver PTRResolver = ptr.Disabled{}
	if !a.NoDNS {
		resolver = ptr.NewPtrManager()
	}

	pm := &ProbeManager{
		args:      a,
		target:    target,
		source:    source,
		transport: transport,
		path: NewPathState(target, uint8(a.MaxTTL),
			WithFinalHopPolicy(policy),
			WithPTRResolver(resolver),
			WithHashAlgorithm(a.HashAlgorithm),
		),
	}

	if err := pm.createOutputs(); err != nil {
		return nil, err
	}

	mode := ModeContinuous
	if a.Report {
		mode = ModeReport
	}
	pm.controller = NewController(pm.path, NewScheduler(transport, a.Timeout), pm.outputs, ControllerConfig{
		Mode:     mode,
		Cycles:   a.Cycles(),
		Interval: a.Interval,
	})

	return pm, nil
}

// createOutputs creates and initializes output handlers
func (pm *ProbeManager) createOutputs() error {
	a := pm.args
	om := &output.OutputManager{}

	info := shared.OutputInfo{
		Destination:   pm.target.Name,
		DestinationIP: pm.target.Addr.String(),
		Source:        pm.source,
		Interval:      a.Interval,
		NoDNS:         a.NoDNS,
	}

	switch {
	case a.Json:
		// JSON on stdout replaces the table
		jsonOut, err := output.NewJSONOutput("")
		if err != nil {
			return err
		}
		om.Register(jsonOut)
	case a.TUI:
		pm.tui = output.NewBubbleTUIOutput(info)
		om.Register(pm.tui)
	default:
		om.Register(output.NewTextOutput(a.NoDNS, a.Report))
	}

	if a.JsonFile != "" {
		jsonOut, err := output.NewJSONOutput(a.JsonFile)
		if err != nil {
			om.Close()
			return fmt.Errorf("failed to create JSON file output: %w", err)
		}
		om.Register(jsonOut)
	}

	if a.MetricsAddr != "" {
		pm.metrics = output.NewMetricsOutput(prometheus.NewRegistry())
		om.Register(pm.metrics)
	}

	pm.outputs = om
	return nil
}

// Run probes until the cycle limit is reached, ctx is cancelled or the user
// quits the TUI. Cancellation is not an error.
func (pm *ProbeManager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if pm.metrics != nil {
		if err := pm.metrics.Serve(ctx, pm.args.MetricsAddr); err != nil {
			return err
		}
	}

	if pm.tui != nil {
		pm.tui.Start()
		go func() {
			select {
			case <-pm.tui.QuitChan():
				// User quit the TUI, stop probing
				slog.Debug("User quit TUI, stopping probes")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	slog.Debug("Starting run",
		"destination", pm.target.Name,
		"mode", pm.args.ModeName(),
		"cycles", pm.args.Cycles(),
		"max_ttl", pm.args.MaxTTL,
	)

	err := pm.controller.Run(ctx)
	slog.Debug("Run complete", "state", pm.controller.State(), "cycles", pm.path.Cycle())
	return err
}

// State returns the run state of the controller.
func (pm *ProbeManager) State() RunState {
	return pm.controller.State()
}

// Close shuts down the outputs and the transport.
func (pm *ProbeManager) Close() error {
	var err error
	pm.closeOnce.Do(func() {
		pm.outputs.Close()
		if pm.closer != nil {
			err = pm.closer.Close()
		}
	})
	return err
}
