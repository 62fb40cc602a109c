package probe

import (
	"context"
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Transport sends a single ICMP Echo with the given TTL and waits for the
// answer. Implementations must be safe for concurrent use and must return
// once ctx is done or timeout has elapsed.
type Transport interface {
	SendProbe(ctx context.Context, target netip.Addr, ttl uint8, seq uint16, timeout time.Duration) Outcome
}

// Scheduler runs cycles of parallel probes against a path.
type Scheduler struct {
	transport Transport
	timeout   time.Duration
	seq       atomic.Uint32
	cycle     atomic.Uint64
}

func NewScheduler(transport Transport, timeout time.Duration) *Scheduler {
	return &Scheduler{
		transport: transport,
		timeout:   timeout,
	}
}

// RunCycle probes every active hop of path in parallel, waits for all of
// them to resolve and folds the results into path.
//
// Cancelling ctx does not abort probes that are already in flight: each one
// runs until it gets an answer or its own timeout fires, so the returned
// report always has one outcome per active hop.
func (s *Scheduler) RunCycle(ctx context.Context, path *PathState) CycleReport {
	ttls := path.ActiveTTLs()
	report := CycleReport{
		Cycle:    uint(s.cycle.Add(1)),
		Outcomes: make(map[uint8]Outcome, len(ttls)),
		Started:  time.Now(),
	}

	// Probes outlive cancellation of the run, but not their own timeout.
	probeCtx := context.WithoutCancel(ctx)
	target := path.Target().Addr
	results := make([]Outcome, len(ttls))

	var g errgroup.Group
	g.SetLimit(len(ttls) + 1)
	for i, ttl := range ttls {
		i, ttl := i, ttl
		seq := uint16(s.seq.Add(1))
		g.Go(func() error {
			results[i] = s.probe(probeCtx, target, ttl, seq)
			return nil
		})
	}
	_ = g.Wait()

	for i, ttl := range ttls {
		report.Outcomes[ttl] = results[i]
	}
	report.Duration = time.Since(report.Started)

	path.Fold(report)

	slog.Debug("Cycle complete",
		"cycle", report.Cycle,
		"hops", len(ttls),
		"duration", report.Duration,
	)
	return report
}

func (s *Scheduler) probe(ctx context.Context, target netip.Addr, ttl uint8, seq uint16) Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outcome := s.transport.SendProbe(ctx, target, ttl, seq, s.timeout)
	if outcome.Kind == OutcomeTransportError {
		slog.Debug("Probe failed", "ttl", ttl, "seq", seq, "error", outcome.Err)
	}
	return outcome
}
