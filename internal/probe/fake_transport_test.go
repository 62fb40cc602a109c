package probe

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/tkjaer/mtr/internal/shared"
)

var (
	testTarget = Target{Name: "example.com", Addr: netip.MustParseAddr("203.0.113.1")}
)

// routerAddr returns the address of the router at ttl in test paths.
func routerAddr(ttl uint8) netip.Addr {
	return netip.AddrFrom4([4]byte{192, 0, 2, ttl})
}

// fakeTransport answers probes from a respond function. It records every
// call so tests can check which TTLs were probed.
type fakeTransport struct {
	mu      sync.Mutex
	respond func(ttl uint8) Outcome
	delay   time.Duration
	onSend  func(ttl uint8)

	calls   []uint8
	seqs    map[uint16]struct{}
	dupSeqs int
	aborted int
}

func newFakeTransport(respond func(ttl uint8) Outcome) *fakeTransport {
	return &fakeTransport{respond: respond, seqs: make(map[uint16]struct{})}
}

func (f *fakeTransport) SendProbe(ctx context.Context, target netip.Addr, ttl uint8, seq uint16, timeout time.Duration) Outcome {
	f.mu.Lock()
	f.calls = append(f.calls, ttl)
	if _, dup := f.seqs[seq]; dup {
		f.dupSeqs++
	}
	f.seqs[seq] = struct{}{}
	onSend := f.onSend
	f.mu.Unlock()

	if onSend != nil {
		onSend(ttl)
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			f.mu.Lock()
			f.aborted++
			f.mu.Unlock()
			return Timeout()
		}
	}
	return f.respond(ttl)
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) maxTTLSince(n int) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var highest uint8
	for _, ttl := range f.calls[n:] {
		highest = max(highest, ttl)
	}
	return highest
}

// pathTo simulates a route where routers answer below targetTTL and the
// destination answers from targetTTL on. RTT grows with the TTL.
func pathTo(targetTTL uint8) func(ttl uint8) Outcome {
	return func(ttl uint8) Outcome {
		rtt := time.Duration(ttl) * time.Millisecond
		if ttl >= targetTTL {
			return ReplyFromTarget(testTarget.Addr, rtt)
		}
		return ReplyFromIntermediate(routerAddr(ttl), rtt)
	}
}

func silent(ttl uint8) Outcome {
	return Timeout()
}

// recordingRenderer collects the snapshots it receives.
type recordingRenderer struct {
	mu        sync.Mutex
	updates   []uint
	completes []uint
	final     shared.Snapshot
	onUpdate  func()
}

func (r *recordingRenderer) Update(s shared.Snapshot) {
	r.mu.Lock()
	r.updates = append(r.updates, s.Cycle)
	onUpdate := r.onUpdate
	r.mu.Unlock()
	if onUpdate != nil {
		onUpdate()
	}
}

func (r *recordingRenderer) Complete(s shared.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, s.Cycle)
	r.final = s
}

// fakeResolver returns names from a fixed table.
type fakeResolver struct {
	mu       sync.Mutex
	names    map[string]string
	requests []string
}

func (f *fakeResolver) RequestPTR(ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, ip)
}

func (f *fakeResolver) GetPTR(ip string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.names[ip]
	return name, ok
}
