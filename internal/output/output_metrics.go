package output

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tkjaer/mtr/internal/shared"
)

const metricsServerTimeout = time.Second

type metrics struct {
	hopRTT             *prometheus.GaugeVec
	hopLoss            *prometheus.GaugeVec
	hopSent            *prometheus.GaugeVec
	hopReceived        *prometheus.GaugeVec
	pathChanges        *prometheus.CounterVec
	destinationReached *prometheus.GaugeVec
	cycles             *prometheus.GaugeVec
	lastCycleTime      *prometheus.GaugeVec
}

func newMetrics(registry prometheus.Registerer) *metrics {
	m := &metrics{
		hopRTT: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtr_hop_rtt_ms",
				Help: "Round-trip time statistics for each hop in milliseconds",
			},
			[]string{"destination", "ttl", "hop_ip", "hop_ptr", "stat"},
		),
		hopLoss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtr_hop_loss_percent",
				Help: "Share of probes to each hop that got no reply",
			},
			[]string{"destination", "ttl", "hop_ip"},
		),
		hopSent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtr_hop_sent",
				Help: "Number of probes sent to each hop",
			},
			[]string{"destination", "ttl"},
		),
		hopReceived: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtr_hop_received",
				Help: "Number of replies received from each hop",
			},
			[]string{"destination", "ttl"},
		),
		pathChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mtr_path_changes_total",
				Help: "Total number of path changes detected",
			},
			[]string{"destination"},
		),
		destinationReached: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtr_destination_reached",
				Help: "Whether the destination was reached (1 = yes, 0 = no)",
			},
			[]string{"destination", "final_ttl"},
		),
		cycles: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtr_cycles",
				Help: "Number of completed probe cycles",
			},
			[]string{"destination"},
		),
		lastCycleTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mtr_last_cycle_timestamp",
				Help: "Timestamp of the last completed cycle",
			},
			[]string{"destination"},
		),
	}

	registry.MustRegister(m.hopRTT)
	registry.MustRegister(m.hopLoss)
	registry.MustRegister(m.hopSent)
	registry.MustRegister(m.hopReceived)
	registry.MustRegister(m.pathChanges)
	registry.MustRegister(m.destinationReached)
	registry.MustRegister(m.cycles)
	registry.MustRegister(m.lastCycleTime)

	return m
}

// MetricsOutput exposes the latest snapshot as Prometheus metrics and JSON.
type MetricsOutput struct {
	metrics  *metrics
	gatherer prometheus.Gatherer

	mu           sync.RWMutex
	last         shared.Snapshot
	lastPathHash string
}

func NewMetricsOutput(registry *prometheus.Registry) *MetricsOutput {
	return &MetricsOutput{
		metrics:  newMetrics(registry),
		gatherer: registry,
	}
}

func (m *MetricsOutput) Update(s shared.Snapshot) {
	m.process(s)
}

func (m *MetricsOutput) Complete(s shared.Snapshot) {
	m.process(s)
}

func (m *MetricsOutput) process(s shared.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dest := s.DestinationIP

	// Check for path changes
	if m.lastPathHash != "" && m.lastPathHash != s.PathHash {
		m.metrics.pathChanges.WithLabelValues(dest).Inc()
	}
	m.lastPathHash = s.PathHash
	m.last = s

	// Hop addresses and names are labels and the path can shrink once the
	// final hop is known, so stale series must go
	m.metrics.hopRTT.Reset()
	m.metrics.hopLoss.Reset()
	m.metrics.hopSent.Reset()
	m.metrics.hopReceived.Reset()
	m.metrics.destinationReached.Reset()

	reached := 0.0
	if s.Resolved {
		reached = 1.0
	}
	m.metrics.destinationReached.WithLabelValues(dest, strconv.Itoa(int(s.FinalTTL))).Set(reached)
	m.metrics.cycles.WithLabelValues(dest).Set(float64(s.Cycle))
	if !s.Timestamp.IsZero() {
		m.metrics.lastCycleTime.WithLabelValues(dest).Set(float64(s.Timestamp.Unix()))
	}

	for _, hop := range s.Hops {
		ttl := strconv.Itoa(int(hop.TTL))
		host := hop.Host()

		m.metrics.hopSent.WithLabelValues(dest, ttl).Set(float64(hop.Sent))
		m.metrics.hopReceived.WithLabelValues(dest, ttl).Set(float64(hop.Received))
		m.metrics.hopLoss.WithLabelValues(dest, ttl, host).Set(hop.LossPct)

		for stat, v := range map[string]*float64{
			"last":   hop.Last,
			"avg":    hop.Avg,
			"best":   hop.Best,
			"worst":  hop.Worst,
			"stddev": hop.StdDev,
		} {
			if v != nil {
				m.metrics.hopRTT.WithLabelValues(dest, ttl, host, hop.PTR, stat).Set(*v)
			}
		}
	}
}

// Handler serves /metrics, /snapshot and /health.
func (m *MetricsOutput) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", m.snapshotHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return r
}

func (m *MetricsOutput) snapshotHandler(w http.ResponseWriter, _ *http.Request) {
	m.mu.RLock()
	s := m.last
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		slog.Debug("Failed to write snapshot", "error", err)
	}
}

// Serve listens on addr and serves Handler until ctx is done.
func (m *MetricsOutput) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           m.Handler(),
		ReadTimeout:       metricsServerTimeout,
		ReadHeaderTimeout: metricsServerTimeout,
		WriteTimeout:      metricsServerTimeout,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	go closeOnContext(ctx, srv)

	slog.Info("Serving metrics", "addr", ln.Addr().String())
	return nil
}

func closeOnContext(ctx context.Context, srv *http.Server) {
	<-ctx.Done()

	timeout, cancel := context.WithTimeout(context.Background(), metricsServerTimeout)
	defer cancel()
	_ = srv.Shutdown(timeout)
}

func (m *MetricsOutput) Close() error {
	return nil
}
