// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alarmd"

// Collectors are labelled by backend ("native" or "legacy").
var (
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "registrations_total",
			Help:      "Trigger requests accepted by a primitive.",
		},
		[]string{"backend"},
	)

	RegistrationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "registration_failures_total",
			Help:      "Trigger requests rejected by a primitive.",
		},
		[]string{"backend"},
	)

	Cancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "cancellations_total",
			Help:      "Identifiers retracted from a primitive.",
		},
		[]string{"backend"},
	)

	Fallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "fallbacks_total",
			Help:      "Native schedule calls delegated to the legacy backend.",
		},
	)

	PermissionDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "permission_denials_total",
			Help:      "Authorization requests answered with a denial.",
		},
		[]string{"backend"},
	)

	PendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "legacy",
			Name:      "pending_requests",
			Help:      "Requests currently held by the capped legacy queue.",
		},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "deliveries_total",
			Help:      "Fired alarms processed by the delivery pipeline.",
		},
		[]string{"result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
