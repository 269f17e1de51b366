// Package metric exposes supervisor and session counters to Prometheus.
//
// The counters stay plain atomics owned by the supervisor; Register wraps
// them in CounterFunc and GaugeFunc collectors so no value is copied.
package metric

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-beddit/beddit"
	"github.com/arloliu/go-beddit/supervisor"
)

// Namespace prefixes every metric name.
const Namespace = "beddit"

const shutdownTimeout = 5 * time.Second

func counter(name, help string, v *atomic.Uint64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(v.Load()) })
}

func gauge(name, help string, v *atomic.Uint32) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(v.Load()) })
}

// Register adds collectors for sup and sess to reg. Either may be nil.
func Register(reg prometheus.Registerer, sup *supervisor.Metrics, sess *beddit.Metrics) error {
	var collectors []prometheus.Collector

	if sup != nil {
		collectors = append(collectors,
			counter("connect_attempts_total", "Connect attempts.", &sup.ConnectAttempts),
			counter("connect_failures_total", "Failed connect attempts.", &sup.ConnectFailures),
			counter("reconnects_total", "Sessions discarded after a failure.", &sup.Reconnects),
			counter("radio_resets_total", "Radio reset hook invocations.", &sup.RadioResets),
			counter("radio_reset_errors_total", "Failed radio reset hook invocations.", &sup.RadioResetErrors),
			counter("readings_recorded_total", "Readings accepted by the sink.", &sup.ReadingsRecorded),
			counter("readings_skipped_total", "Frames without samples.", &sup.ReadingsSkipped),
			counter("sink_errors_total", "Readings the sink failed to record.", &sup.SinkErrors),
			gauge("connected", "1 while a session is streaming.", &sup.Connected),
			gauge("consecutive_failures", "Failed cycles since the last recorded reading.", &sup.ConnRetryGauge),
		)
	}

	if sess != nil {
		collectors = append(collectors,
			counter("handshakes_total", "Successful handshakes.", &sess.Handshakes),
			counter("frames_total", "Frames that passed checksum validation.", &sess.FramesRead),
			counter("payload_bytes_total", "Payload bytes in valid frames.", &sess.PayloadBytes),
			counter("keepalives_total", "Keep-alive commands sent.", &sess.KeepAlivesSent),
			counter("stream_restarts_total", "Periodic stream restarts.", &sess.StreamRestarts),
			counter("packet_gaps_total", "Packet numbers that did not follow their predecessor.", &sess.PacketGaps),
			counter("checksum_errors_total", "Frames rejected for a bad checksum.", &sess.ChecksumErrors),
			counter("protocol_errors_total", "Protocol violations.", &sess.ProtocolErrors),
			counter("timeouts_total", "Deadline expiries.", &sess.Timeouts),
			counter("transport_errors_total", "Send and receive failures.", &sess.TransportErrors),
		)
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

// Handler serves /metrics from g and /health. healthy may be nil; when it
// reports false, /health answers 503.
func Handler(g prometheus.Gatherer, healthy func() bool) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if healthy != nil && !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("DISCONNECTED"))

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return mux
}

// Serve runs an HTTP server for h on addr until ctx is done, then shuts it
// down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
