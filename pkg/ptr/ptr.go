package ptr

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultTTL is how long a successful lookup is cached.
	DefaultTTL = 10 * time.Minute
	// DefaultNegativeTTL is how long a failed lookup is cached before it is retried.
	DefaultNegativeTTL = time.Minute
)

// PtrManager handles PTR lookups with caching
type PtrManager struct {
	cache      *ttlcache.Cache[string, string]
	lookupFunc func(ip string) ([]string, error)
	retries    int
	retryDelay time.Duration
	ttl        time.Duration
	negTTL     time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewPtrManager creates a new PtrManager
func NewPtrManager() *PtrManager {
	return &PtrManager{
		cache: ttlcache.New(
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
		lookupFunc: net.LookupAddr,
		retries:    3,
		retryDelay: 100 * time.Millisecond,
		ttl:        DefaultTTL,
		negTTL:     DefaultNegativeTTL,
		inflight:   make(map[string]struct{}),
	}
}

// RequestPTR looks up the PTR record for ip unless it is cached or already
// being looked up. It blocks for the duration of the lookup, so callers
// usually run it in a goroutine.
func (pm *PtrManager) RequestPTR(ip string) {
	if pm.cache.Has(ip) {
		return
	}

	pm.mu.Lock()
	if _, busy := pm.inflight[ip]; busy {
		pm.mu.Unlock()
		return
	}
	pm.inflight[ip] = struct{}{}
	pm.mu.Unlock()

	defer func() {
		pm.mu.Lock()
		delete(pm.inflight, ip)
		pm.mu.Unlock()
	}()

	for attempt := 0; attempt < pm.retries; attempt++ {
		names, err := pm.lookupFunc(ip)
		if err == nil && len(names) > 0 {
			if name := normalizePTR(names[0]); name != "" {
				pm.cache.Set(ip, name, pm.ttl)
				return
			}
		}
		if attempt < pm.retries-1 {
			time.Sleep(pm.retryDelay)
		}
	}

	// Remember the miss so we don't hammer the resolver
	pm.cache.Set(ip, "", pm.negTTL)
}

// GetPTR retrieves the cached PTR result for the given IP address
// Returns the PTR and a boolean indicating if it was found
func (pm *PtrManager) GetPTR(ip string) (string, bool) {
	item := pm.cache.Get(ip)
	if item == nil || item.Value() == "" {
		return "", false
	}
	return item.Value(), true
}

// Disabled is a resolver that never returns a name. It is used with --no-dns.
type Disabled struct{}

func (Disabled) RequestPTR(string) {}

func (Disabled) GetPTR(string) (string, bool) { return "", false }

// normalizePTR removes the trailing dot from a fully qualified name
func normalizePTR(name string) string {
	return strings.TrimSuffix(name, ".")
}
