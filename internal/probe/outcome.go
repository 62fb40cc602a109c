package probe

import (
	"net/netip"
	"time"
)

// OutcomeKind classifies the result of a single probe.
type OutcomeKind int

const (
	// OutcomeTimeout means no answer arrived before the probe deadline.
	OutcomeTimeout OutcomeKind = iota
	// OutcomeReplyFromTarget is an Echo Reply from the destination.
	OutcomeReplyFromTarget
	// OutcomeReplyFromIntermediate is a Time Exceeded message from a router.
	OutcomeReplyFromIntermediate
	// OutcomeUnreachable is a Destination Unreachable message. The responder
	// is known, but the probe counts as lost.
	OutcomeUnreachable
	// OutcomeTransportError means the probe could not be sent or received.
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeTimeout:
		return "timeout"
	case OutcomeReplyFromTarget:
		return "reply"
	case OutcomeReplyFromIntermediate:
		return "ttl-exceeded"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeTransportError:
		return "transport-error"
	}
	return "unknown"
}

// Outcome is the result of one probe at one TTL.
type Outcome struct {
	Kind OutcomeKind
	From netip.Addr    // Responder, invalid for timeouts and transport errors
	RTT  time.Duration // Only meaningful for replies
	Err  error         // Only set for transport errors
}

func ReplyFromTarget(from netip.Addr, rtt time.Duration) Outcome {
	return Outcome{Kind: OutcomeReplyFromTarget, From: from, RTT: rtt}
}

func ReplyFromIntermediate(from netip.Addr, rtt time.Duration) Outcome {
	return Outcome{Kind: OutcomeReplyFromIntermediate, From: from, RTT: rtt}
}

func Unreachable(from netip.Addr) Outcome {
	return Outcome{Kind: OutcomeUnreachable, From: from}
}

func Timeout() Outcome {
	return Outcome{Kind: OutcomeTimeout}
}

func TransportError(err error) Outcome {
	return Outcome{Kind: OutcomeTransportError, Err: err}
}

// IsReply reports whether the outcome carries an RTT sample.
func (o Outcome) IsReply() bool {
	switch o.Kind {
	case OutcomeReplyFromTarget, OutcomeReplyFromIntermediate:
		return true
	case OutcomeTimeout, OutcomeUnreachable, OutcomeTransportError:
		return false
	}
	return false
}
