// Package metrics exposes operational counters over Prometheus. It feeds
// entirely off the event bus, so the control loop carries no metrics code.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danielpatrickdp/state-weaver/internal/bus"
)

// #region collectors

// Set bundles every collector the daemon exports.
type Set struct {
	registry *prometheus.Registry

	cyclesStarted   prometheus.Counter
	cyclesCompleted prometheus.Counter
	cycleErrors     prometheus.Counter
	configInvalid   prometheus.Counter
	decisions       *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	rollbacks       prometheus.Counter
	eventsDropped   prometheus.Counter
}

// NewSet creates the collectors on a private registry.
func NewSet() *Set {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Set{
		registry: reg,
		cyclesStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "weaver_cycles_started_total",
			Help: "Cycles the orchestrator has begun.",
		}),
		cyclesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "weaver_cycles_completed_total",
			Help: "Cycles that ran to completion.",
		}),
		cycleErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "weaver_cycle_errors_total",
			Help: "Cycles degraded by dispatch or internal errors.",
		}),
		configInvalid: factory.NewCounter(prometheus.CounterOpts{
			Name: "weaver_config_invalid_total",
			Help: "Cycles aborted by configuration validation.",
		}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weaver_decisions_total",
			Help: "Decisions by outcome.",
		}, []string{"outcome"}), // selected | suppressed
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weaver_verifications_total",
			Help: "Verification outcomes.",
		}, []string{"outcome"}), // scheduled | passed | failed
		rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "weaver_rollbacks_triggered_total",
			Help: "Rollbacks triggered by failed verifications.",
		}),
		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "weaver_bus_events_dropped_total",
			Help: "Events dropped on slow bus subscribers.",
		}),
	}
}

// Handler returns the scrape endpoint handler for the private registry.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// #endregion collectors

// #region observe

// Observe applies one event to the counters.
func (s *Set) Observe(ev bus.Event) {
	switch ev.Type {
	case bus.CycleStarted:
		s.cyclesStarted.Inc()
	case bus.CycleCompleted:
		s.cyclesCompleted.Inc()
	case bus.CycleError:
		s.cycleErrors.Inc()
	case bus.ConfigInvalid:
		s.configInvalid.Inc()
	case bus.ActionSelected:
		s.decisions.WithLabelValues("selected").Inc()
	case bus.NoAction:
		s.decisions.WithLabelValues("suppressed").Inc()
	case bus.VerifyScheduled:
		s.verifications.WithLabelValues("scheduled").Inc()
	case bus.VerifyPassed:
		s.verifications.WithLabelValues("passed").Inc()
	case bus.VerifyFailed:
		s.verifications.WithLabelValues("failed").Inc()
	case bus.RollbackTriggered:
		s.rollbacks.Inc()
	}
}

// Watch subscribes to the bus and feeds the counters until ctx ends. The
// drop counter is sampled periodically since drops have no event of their
// own.
func (s *Set) Watch(ctx context.Context, b *bus.Bus) {
	ch, cancel := b.Subscribe(128)
	defer cancel()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var lastDropped uint64
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.Observe(ev)
		case <-ticker.C:
			if d := b.Dropped(); d > lastDropped {
				s.eventsDropped.Add(float64(d - lastDropped))
				lastDropped = d
			}
		}
	}
}

// #endregion observe
