// Package ports declares the interfaces internal/registry, internal/monitor,
// internal/dispatcher and internal/api are written against, so each can be
// tested and wired independently. internal/auth uses its own concrete
// TokenStore rather than the TokenStore interface declared here.
package ports

import (
	"context"
	"net/http"
	"time"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
)

// TaskState is the shared state one task universe (generate or embed)
// exposes to the monitor, dispatcher and admin handlers.
type TaskState interface {
	// Endpoints returns a snapshot of the currently configured endpoints.
	Endpoints() []domain.Endpoint

	// Replace atomically swaps the endpoint list and clears every
	// dependent map (health, models, inverted index) for this task.
	Replace(endpoints []domain.Endpoint)

	// RecordHealth applies a fresh probe result to an endpoint's health
	// record and returns the updated record plus whether the status
	// changed, so the monitor can decide whether to log.
	RecordHealth(url string, probe domain.HealthStatus, latencyMs int64, now time.Time, configuredInterval time.Duration) (record domain.HealthRecord, changed bool)

	// Health returns a snapshot of every endpoint's current health record.
	Health() map[string]domain.HealthRecord

	// HealthOf returns a single endpoint's health record, and whether one
	// exists yet.
	HealthOf(url string) (domain.HealthRecord, bool)

	// SetModels reconciles the model set (set-diff: add new ids, remove
	// dropped ids) an endpoint reports and updates the inverted index.
	SetModels(url string, models []domain.ModelInfo)

	// ClearModels removes an endpoint entirely from the model map and the
	// inverted index, used when a health probe fails.
	ClearModels(url string)

	// ModelsOf returns the model list an endpoint last reported.
	ModelsOf(url string) []domain.ModelInfo

	// AllModels returns every endpoint's reported model list, keyed by URL.
	AllModels() map[string][]domain.ModelInfo

	// EndpointsForModel returns the ordered candidate list for a model id.
	EndpointsForModel(modelID string) []string

	// ModelToEndpoints returns the full inverted index, model id to ordered
	// endpoint URL list.
	ModelToEndpoints() map[string][]string

	// Rotate moves url to the tail of modelID's candidate list. It is a
	// no-op if the model or URL is not present.
	Rotate(modelID, url string)

	// EndpointByURL returns the endpoint descriptor for a URL, if still
	// configured.
	EndpointByURL(url string) (domain.Endpoint, bool)
}

// TokenStore resolves bearer tokens to the set of groups they grant.
type TokenStore interface {
	// GroupsFor returns the union of every group whose token list contains
	// token. An empty, non-nil result means the token is unrecognised.
	GroupsFor(token string) map[string]struct{}
}

// ConfigSource loads endpoint descriptors and the token map from their
// backing files (or any other source), split by task.
type ConfigSource interface {
	LoadEndpoints(ctx context.Context) (map[domain.Task][]domain.Endpoint, error)
	LoadTokens(ctx context.Context) (map[string][]string, error)
}

// Prober performs the two upstream calls a monitor cycle needs.
type Prober interface {
	CheckHealth(ctx context.Context, ep domain.Endpoint) (domain.HealthStatus, int64, error)
	FetchModels(ctx context.Context, ep domain.Endpoint) ([]domain.ModelInfo, error)
}

// Forwarder performs the outbound call the dispatcher makes to a selected
// upstream, abstracted so the dispatcher can be tested without a real
// http.Client.
type Forwarder interface {
	Forward(ctx context.Context, req *http.Request) (*http.Response, error)
}
