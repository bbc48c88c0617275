package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
	"github.com/arcbridge/gatekeeper/internal/logger"
	"github.com/arcbridge/gatekeeper/internal/registry"
)

func testLogger() logger.StyledLogger {
	return logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type fakeProber struct {
	mu      sync.Mutex
	status  domain.HealthStatus
	models  []domain.ModelInfo
	modelsErr error
	calls   int
}

func (f *fakeProber) CheckHealth(ctx context.Context, ep domain.Endpoint) (domain.HealthStatus, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.status, 5, nil
}

func (f *fakeProber) FetchModels(ctx context.Context, ep domain.Endpoint) ([]domain.ModelInfo, error) {
	return f.models, f.modelsErr
}

func (f *fakeProber) setStatus(s domain.HealthStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func (f *fakeProber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestMonitor_SelfTerminatesWhenEndpointRemoved(t *testing.T) {
	state := registry.New()
	ep := domain.Endpoint{URL: "http://up:1", Groups: []string{"g"}, Task: domain.TaskGenerate}
	state.Replace([]domain.Endpoint{ep})

	prober := &fakeProber{status: domain.StatusHealthy}
	m := New(prober, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx, ep, state)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for prober.callCount() < 1 {
		select {
		case <-deadline:
			t.Fatal("monitor never probed the endpoint")
		case <-time.After(time.Millisecond):
		}
	}

	state.Replace(nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not self-terminate after its endpoint was removed")
	}
}

func TestMonitor_RecordsHealthAndModelsOnSuccess(t *testing.T) {
	state := registry.New()
	ep := domain.Endpoint{URL: "http://up:1", Groups: []string{"g"}, Task: domain.TaskGenerate}
	state.Replace([]domain.Endpoint{ep})

	prober := &fakeProber{status: domain.StatusHealthy, models: []domain.ModelInfo{{"id": "m1"}}}
	m := New(prober, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx, ep, state)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if models := state.ModelsOf(ep.URL); len(models) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("models were never recorded")
		case <-time.After(time.Millisecond):
		}
	}

	rec, ok := state.HealthOf(ep.URL)
	if !ok || rec.Status != domain.StatusHealthy {
		t.Fatalf("HealthOf = %+v, %v; want healthy record", rec, ok)
	}

	cancel()
	<-done
}

func TestMonitor_ClearsModelsWhenUnhealthy(t *testing.T) {
	state := registry.New()
	ep := domain.Endpoint{URL: "http://up:1", Groups: []string{"g"}, Task: domain.TaskGenerate}
	state.Replace([]domain.Endpoint{ep})
	state.SetModels(ep.URL, []domain.ModelInfo{{"id": "m1"}})

	prober := &fakeProber{status: domain.StatusUnhealthy}
	m := New(prober, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		m.Run(ctx, ep, state)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if models := state.ModelsOf(ep.URL); len(models) == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("models were never cleared")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestMonitor_StopsOnContextCancel(t *testing.T) {
	state := registry.New()
	ep := domain.Endpoint{URL: "http://up:1", Groups: []string{"g"}, Task: domain.TaskGenerate}
	state.Replace([]domain.Endpoint{ep})

	prober := &fakeProber{status: domain.StatusHealthy}
	m := New(prober, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, ep, state)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after context cancel")
	}
}
