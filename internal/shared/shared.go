package shared

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/crc32"
	"strings"
	"time"
)

// UnknownHost is displayed for hops that have not answered a single probe.
const UnknownHost = "???"

// HopSnapshot is a read-only copy of the statistics for a single hop (TTL).
// RTT values are in milliseconds; nil means "no data".
type HopSnapshot struct {
	TTL      uint8    `json:"ttl"`
	IP       string   `json:"ip"`  // Responder address, empty if the hop never answered
	PTR      string   `json:"ptr"` // Reverse lookup for IP, empty if unknown or disabled
	Sent     uint     `json:"sent"`
	Received uint     `json:"received"`
	LossPct  float64  `json:"loss_pct"`
	Last     *float64 `json:"last_ms"`
	Avg      *float64 `json:"avg_ms"`
	Best     *float64 `json:"best_ms"`
	Worst    *float64 `json:"worst_ms"`
	StdDev   *float64 `json:"stddev_ms"`
	Final    bool     `json:"final"` // Hop answered directly from the destination
}

// Host returns the address of the hop or UnknownHost.
func (h HopSnapshot) Host() string {
	if h.IP == "" {
		return UnknownHost
	}
	return h.IP
}

// Snapshot is an immutable view of the whole path after a completed cycle.
type Snapshot struct {
	Destination    string        `json:"destination"`     // Target as given by the user
	DestinationIP  string        `json:"destination_ip"`  // Resolved target address
	DestinationPTR string        `json:"destination_ptr"` // PTR record for the destination
	Cycle          uint          `json:"cycle"`           // Number of completed cycles
	FinalTTL       uint8         `json:"final_ttl"`       // 0 while the destination is unresolved
	Resolved       bool          `json:"resolved"`        // Whether any hop answered from the destination
	PathHash       string        `json:"path_hash"`
	Hops           []HopSnapshot `json:"hops"` // Sorted by TTL
	Timestamp      time.Time     `json:"timestamp"`
}

// OutputInfo carries static information about a run for outputs that need it
// before the first snapshot arrives.
type OutputInfo struct {
	Destination   string
	DestinationIP string
	Source        string // Local address probes are sent from, if known
	Interval      time.Duration
	NoDNS         bool
}

// calculatePathHash computes a hash of the network path using the specified algorithm
// It takes a slice of IP addresses representing the path and returns a hash string
func calculatePathHash(ips []string, algorithm string) string {
	if len(ips) == 0 {
		switch algorithm {
		case "sha256":
			return strings.Repeat("0", 64)
		default:
			return "00000000"
		}
	}

	var pathBuilder strings.Builder
	for _, ip := range ips {
		if ip != "" {
			pathBuilder.WriteString(ip)
			pathBuilder.WriteString("|")
		}
	}
	pathString := pathBuilder.String()

	switch algorithm {
	case "sha256":
		hash := sha256.Sum256([]byte(pathString))
		return hex.EncodeToString(hash[:])
	default:
		hash := crc32.ChecksumIEEE([]byte(pathString))
		return fmt.Sprintf("%08x", hash)
	}
}

// CalculatePathHash computes a hash from the responder addresses of the given hops.
// Hops without an address are skipped.
func CalculatePathHash(hops []HopSnapshot, algorithm string) string {
	ips := make([]string, 0, len(hops))
	for _, hop := range hops {
		if hop.IP != "" {
			ips = append(ips, hop.IP)
		}
	}
	return calculatePathHash(ips, algorithm)
}
