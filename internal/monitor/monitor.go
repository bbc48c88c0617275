// Package monitor runs one goroutine per configured endpoint, polling its
// health and, while healthy, its model list, feeding results into the
// shared registry.State for its task. A monitor self-terminates the moment
// it observes its own URL has vanished from the live endpoint list, which
// is how /reload retires monitors for endpoints that were removed without
// anyone having to track or cancel them explicitly.
package monitor

import (
	"context"
	"time"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
	"github.com/arcbridge/gatekeeper/internal/core/ports"
	"github.com/arcbridge/gatekeeper/internal/logger"
	"github.com/arcbridge/gatekeeper/pkg/format"
)

// Monitor drives one endpoint's health/model probe loop.
type Monitor struct {
	prober ports.Prober
	log    logger.StyledLogger
}

func New(prober ports.Prober, log logger.StyledLogger) *Monitor {
	return &Monitor{prober: prober, log: log}
}

// Run loops until ctx is cancelled or ep.URL is no longer present in
// state's endpoint list, which is checked at the top of every cycle before
// any network I/O.
func (m *Monitor) Run(ctx context.Context, ep domain.Endpoint, state ports.TaskState) {
	interval := domain.MinCheckInterval

	for {
		if ctx.Err() != nil {
			return
		}
		if !m.stillConfigured(ep.URL, state) {
			return
		}

		status, latencyMs, _ := m.prober.CheckHealth(ctx, ep)

		rec, changed := state.RecordHealth(ep.URL, status, latencyMs, time.Now(), interval)
		interval = rec.CheckInterval

		if changed {
			m.logTransition(ep, rec)
		}

		if status.Routable() {
			if models, err := m.prober.FetchModels(ctx, ep); err == nil {
				state.SetModels(ep.URL, models)
			}
			// a fetch error leaves the previously reported model list in
			// place; only a failed health probe clears it.
		} else {
			state.ClearModels(ep.URL)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (m *Monitor) stillConfigured(url string, state ports.TaskState) bool {
	for _, ep := range state.Endpoints() {
		if ep.URL == url {
			return true
		}
	}
	return false
}

func (m *Monitor) logTransition(ep domain.Endpoint, rec domain.HealthRecord) {
	if m.log == nil {
		return
	}
	latency := format.Latency(rec.LastLatencyMs)
	if rec.Status.Routable() {
		m.log.InfoHealthStatus("endpoint is now", ep.DisplayName(), rec.Status, "latency", latency)
	} else {
		m.log.WarnHealthStatus("endpoint is now", ep.DisplayName(), rec.Status, "latency", latency)
	}
}
