package probe

import (
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/tkjaer/mtr/internal/shared"
)

// HopState tracks where a hop is in the discovery state machine.
type HopState int

const (
	HopUnprobed HopState = iota
	HopActive
	HopIntermediate
	HopFinal
)

func (s HopState) String() string {
	switch s {
	case HopUnprobed:
		return "unprobed"
	case HopActive:
		return "active"
	case HopIntermediate:
		return "intermediate"
	case HopFinal:
		return "final"
	}
	return "unknown"
}

// FinalHopPolicy decides which hop becomes final when several hops answer
// from the destination in the same cycle.
type FinalHopPolicy int

const (
	// FinalHopLowest picks the lowest TTL.
	FinalHopLowest FinalHopPolicy = iota
	// FinalHopFastest picks the hop with the lowest RTT, lowest TTL on ties.
	FinalHopFastest
)

// ParseFinalHopPolicy converts a flag value to a FinalHopPolicy.
func ParseFinalHopPolicy(s string) (FinalHopPolicy, bool) {
	switch s {
	case "", "lowest":
		return FinalHopLowest, true
	case "fastest":
		return FinalHopFastest, true
	}
	return FinalHopLowest, false
}

// PTRResolver is the reverse lookup service used to name hops.
type PTRResolver interface {
	RequestPTR(ip string)
	GetPTR(ip string) (string, bool)
}

// Target is the resolved destination.
type Target struct {
	Name string // As supplied by the user
	Addr netip.Addr
}

// Hop is the state for one TTL.
type Hop struct {
	TTL   uint8
	Addr  netip.Addr // Most recent responder, invalid until the first answer
	PTR   string
	State HopState
	Stats HopStats
}

// CycleReport holds one outcome per active hop for a single cycle.
type CycleReport struct {
	Cycle    uint
	Outcomes map[uint8]Outcome
	Started  time.Time
	Duration time.Duration
}

// PathState owns every hop of the path. It is written only by Fold and read
// through Snapshot.
type PathState struct {
	mu sync.RWMutex

	target        Target
	maxTTL        uint8
	policy        FinalHopPolicy
	hashAlgorithm string
	ptr           PTRResolver // nil disables reverse lookups

	hops     []*Hop // index is TTL-1
	finalTTL uint8  // 0 while unknown
	cycle    uint
	updated  time.Time
}

type PathOption func(*PathState)

func WithFinalHopPolicy(p FinalHopPolicy) PathOption {
	return func(ps *PathState) { ps.policy = p }
}

func WithPTRResolver(r PTRResolver) PathOption {
	return func(ps *PathState) { ps.ptr = r }
}

func WithHashAlgorithm(algorithm string) PathOption {
	return func(ps *PathState) { ps.hashAlgorithm = algorithm }
}

// NewPathState creates a path with maxTTL unprobed hops.
func NewPathState(target Target, maxTTL uint8, opts ...PathOption) *PathState {
	ps := &PathState{
		target:        target,
		maxTTL:        maxTTL,
		hashAlgorithm: "crc32",
		hops:          make([]*Hop, maxTTL),
	}
	for i := range ps.hops {
		ps.hops[i] = &Hop{TTL: uint8(i + 1)}
	}
	for _, opt := range opts {
		opt(ps)
	}
	return ps
}

func (ps *PathState) Target() Target { return ps.target }

// FinalTTL returns the TTL of the final hop once it is known.
func (ps *PathState) FinalTTL() (uint8, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.finalTTL, ps.finalTTL != 0
}

// Cycle returns the number of folded cycles.
func (ps *PathState) Cycle() uint {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.cycle
}

// ActiveTTLs returns the TTLs to probe in the next cycle.
func (ps *PathState) ActiveTTLs() []uint8 {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	limit := ps.limitLocked()
	ttls := make([]uint8, 0, limit)
	for ttl := uint8(1); ttl <= limit && ttl != 0; ttl++ {
		ttls = append(ttls, ttl)
	}
	return ttls
}

func (ps *PathState) limitLocked() uint8 {
	if ps.finalTTL != 0 && ps.finalTTL < ps.maxTTL {
		return ps.finalTTL
	}
	return ps.maxTTL
}

// Fold applies a completed cycle to the hop statistics. Outcomes for TTLs
// above an already known final hop are ignored.
func (ps *PathState) Fold(report CycleReport) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	limit := ps.limitLocked()
	var candidates []uint8

	for ttl, outcome := range report.Outcomes {
		if ttl == 0 || ttl > limit {
			slog.Debug("Ignoring outcome beyond active path", "ttl", ttl, "limit", limit)
			continue
		}
		hop := ps.hops[ttl-1]
		if hop.State == HopUnprobed {
			hop.State = HopActive
		}

		hop.Stats.AddSent()
		hop.Stats.Record(outcome)

		switch outcome.Kind {
		case OutcomeReplyFromTarget:
			ps.setAddrLocked(hop, outcome.From)
			candidates = append(candidates, ttl)
		case OutcomeReplyFromIntermediate:
			ps.setAddrLocked(hop, outcome.From)
			if hop.State != HopFinal {
				hop.State = HopIntermediate
			}
		case OutcomeUnreachable:
			ps.setAddrLocked(hop, outcome.From)
		case OutcomeTimeout:
		case OutcomeTransportError:
			slog.Debug("Transport error recorded as loss", "ttl", ttl, "error", outcome.Err)
		}
	}

	if ps.finalTTL == 0 && len(candidates) > 0 {
		final := ps.pickFinal(candidates, report.Outcomes)
		ps.finalTTL = final
		ps.hops[final-1].State = HopFinal
		slog.Debug("Final hop discovered", "ttl", final, "cycle", report.Cycle)
	}

	ps.cycle++
	ps.updated = report.Started.Add(report.Duration)
	ps.refreshPTRLocked()
}

func (ps *PathState) pickFinal(candidates []uint8, outcomes map[uint8]Outcome) uint8 {
	best := candidates[0]
	for _, ttl := range candidates[1:] {
		switch ps.policy {
		case FinalHopFastest:
			if outcomes[ttl].RTT < outcomes[best].RTT ||
				(outcomes[ttl].RTT == outcomes[best].RTT && ttl < best) {
				best = ttl
			}
		default:
			if ttl < best {
				best = ttl
			}
		}
	}
	return best
}

func (ps *PathState) setAddrLocked(hop *Hop, addr netip.Addr) {
	if !addr.IsValid() || hop.Addr == addr {
		return
	}
	hop.Addr = addr
	hop.PTR = ""
	if ps.ptr != nil {
		go ps.ptr.RequestPTR(addr.String())
	}
}

// refreshPTRLocked copies finished reverse lookups into the hops so that a
// snapshot never changes between two cycles.
func (ps *PathState) refreshPTRLocked() {
	if ps.ptr == nil {
		return
	}
	for _, hop := range ps.hops {
		if hop.Addr.IsValid() && hop.PTR == "" {
			if name, ok := ps.ptr.GetPTR(hop.Addr.String()); ok {
				hop.PTR = name
			}
		}
	}
}

// Snapshot returns a deep copy of the path. Hops beyond the final hop are
// never included.
func (ps *PathState) Snapshot() shared.Snapshot {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	s := shared.Snapshot{
		Destination:   ps.target.Name,
		DestinationIP: ps.target.Addr.String(),
		Cycle:         ps.cycle,
		FinalTTL:      ps.finalTTL,
		Resolved:      ps.finalTTL != 0,
		Timestamp:     ps.updated,
	}

	if ps.finalTTL != 0 {
		s.DestinationPTR = ps.hops[ps.finalTTL-1].PTR
	}

	limit := ps.limitLocked()
	s.Hops = make([]shared.HopSnapshot, 0, limit)
	for _, hop := range ps.hops[:limit] {
		if hop.State == HopUnprobed {
			break
		}
		s.Hops = append(s.Hops, hopSnapshot(hop))
	}
	s.PathHash = shared.CalculatePathHash(s.Hops, ps.hashAlgorithm)

	return s
}

func hopSnapshot(hop *Hop) shared.HopSnapshot {
	st := &hop.Stats
	h := shared.HopSnapshot{
		TTL:      hop.TTL,
		PTR:      hop.PTR,
		Sent:     st.Sent(),
		Received: st.Received(),
		LossPct:  st.LossPercent(),
		Final:    hop.State == HopFinal,
	}
	if hop.Addr.IsValid() {
		h.IP = hop.Addr.String()
	}
	if last, ok := st.Last(); ok {
		h.Last = msPtr(durationToMs(last))
	}
	if mean, ok := st.Mean(); ok {
		h.Avg = msPtr(mean)
	}
	if best, ok := st.Best(); ok {
		h.Best = msPtr(durationToMs(best))
	}
	if worst, ok := st.Worst(); ok {
		h.Worst = msPtr(durationToMs(worst))
	}
	if sd, ok := st.StdDev(); ok {
		h.StdDev = msPtr(sd)
	}
	return h
}

func msPtr(v float64) *float64 {
	return &v
}
