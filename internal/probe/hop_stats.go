package probe

import (
	"math"
	"time"
)

// HopStats holds the running statistics for a single TTL.
//
// Mean and variance are maintained with Welford's online algorithm so that
// updates are O(1) and never depend on the sample history. All RTT
// accumulators are kept in milliseconds.
type HopStats struct {
	sent     uint
	received uint

	last    time.Duration
	hasLast bool

	best  time.Duration
	worst time.Duration

	mean float64 // running mean in ms
	m2   float64 // running sum of squared deviations from the mean
}

// AddSent counts a probe as sent. The scheduler calls it once per cycle the
// hop takes part in, before the outcome is recorded.
func (s *HopStats) AddSent() {
	s.sent++
}

// Record folds the outcome of one probe into the statistics.
func (s *HopStats) Record(o Outcome) {
	switch o.Kind {
	case OutcomeReplyFromTarget, OutcomeReplyFromIntermediate:
		s.addSample(o.RTT)
	case OutcomeTimeout, OutcomeUnreachable, OutcomeTransportError:
		s.hasLast = false
	}
}

func (s *HopStats) addSample(rtt time.Duration) {
	if rtt < 0 {
		rtt = 0
	}
	// A reply without a matching sent count would break received <= sent.
	if s.received >= s.sent {
		s.sent = s.received + 1
	}
	s.received++
	s.last = rtt
	s.hasLast = true

	if s.received == 1 || rtt < s.best {
		s.best = rtt
	}
	if s.received == 1 || rtt > s.worst {
		s.worst = rtt
	}

	x := durationToMs(rtt)
	delta := x - s.mean
	s.mean += delta / float64(s.received)
	s.m2 += delta * (x - s.mean)
}

func (s *HopStats) Sent() uint     { return s.sent }
func (s *HopStats) Received() uint { return s.received }

// Last returns the RTT of the most recent probe, or false if it was lost.
func (s *HopStats) Last() (time.Duration, bool) {
	return s.last, s.hasLast
}

// Best returns the lowest RTT seen, or false without any reply.
func (s *HopStats) Best() (time.Duration, bool) {
	return s.best, s.received > 0
}

// Worst returns the highest RTT seen, or false without any reply.
func (s *HopStats) Worst() (time.Duration, bool) {
	return s.worst, s.received > 0
}

// Mean returns the average RTT in milliseconds, or false without any reply.
func (s *HopStats) Mean() (float64, bool) {
	return s.mean, s.received > 0
}

// Variance returns the population variance of the RTT in ms².
func (s *HopStats) Variance() (float64, bool) {
	if s.received == 0 {
		return 0, false
	}
	v := s.m2 / float64(s.received)
	if v < 0 {
		v = 0
	}
	return v, true
}

// StdDev returns the population standard deviation of the RTT in ms.
func (s *HopStats) StdDev() (float64, bool) {
	v, ok := s.Variance()
	if !ok {
		return 0, false
	}
	return math.Sqrt(v), true
}

// LossPercent returns the share of sent probes that did not get a reply.
func (s *HopStats) LossPercent() float64 {
	if s.sent == 0 {
		return 0
	}
	if s.received == 0 {
		return 100
	}
	return float64(s.sent-s.received) / float64(s.sent) * 100
}

func durationToMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
