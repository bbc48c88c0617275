// Package api implements the admin and introspection routes: /endpoints,
// /health-status, /v1/models, /model-to-endpoints, /reload and /health.
// Every handler except /health requires a resolved AuthContext and filters
// its output to what the caller's groups can see.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arcbridge/gatekeeper/internal/auth"
	"github.com/arcbridge/gatekeeper/internal/core/domain"
	"github.com/arcbridge/gatekeeper/internal/core/ports"
	"github.com/arcbridge/gatekeeper/internal/logger"
)

// MonitorSpawner starts a monitor for one endpoint against one task's
// state and returns immediately - it is expected to launch its own
// goroutine rather than block. /reload calls it once per loaded endpoint,
// for every task.
type MonitorSpawner func(ctx context.Context, ep domain.Endpoint, state ports.TaskState)

// API serves the admin/introspection surface over both task universes.
type API struct {
	generate ports.TaskState
	embed    ports.TaskState
	tokens   *auth.TokenStore
	source   ports.ConfigSource
	spawn    MonitorSpawner
	log      logger.StyledLogger

	// monitorCtx is the long-lived context monitors spawned by /reload run
	// under; cancelling it (on shutdown) stops every monitor at once.
	monitorCtx context.Context
}

func New(generate, embed ports.TaskState, tokens *auth.TokenStore, source ports.ConfigSource, spawn MonitorSpawner, log logger.StyledLogger, monitorCtx context.Context) *API {
	return &API{
		generate:   generate,
		embed:      embed,
		tokens:     tokens,
		source:     source,
		spawn:      spawn,
		log:        log,
		monitorCtx: monitorCtx,
	}
}

// Health always answers 200 with an empty body. The auth middleware
// bypasses this path entirely, but the route still needs registering.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Endpoints returns every endpoint visible to the caller across both task
// universes, with its access token stripped.
func (a *API) Endpoints(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var visible []domain.Endpoint
	for _, ep := range a.generate.Endpoints() {
		if ep.VisibleTo(ac.Groups) {
			visible = append(visible, ep)
		}
	}
	for _, ep := range a.embed.Endpoints() {
		if ep.VisibleTo(ac.Groups) {
			visible = append(visible, ep)
		}
	}
	if visible == nil {
		visible = []domain.Endpoint{}
	}

	writeJSON(w, http.StatusOK, visible)
}

// HealthStatus returns the health record of every endpoint visible to the
// caller, keyed by endpoint URL, across both task universes.
func (a *API) HealthStatus(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	combined := make(map[string]domain.HealthRecord)
	collectHealth(a.generate, ac.Groups, combined)
	collectHealth(a.embed, ac.Groups, combined)

	writeJSON(w, http.StatusOK, combined)
}

func collectHealth(state ports.TaskState, callerGroups map[string]struct{}, out map[string]domain.HealthRecord) {
	for _, ep := range state.Endpoints() {
		if !ep.VisibleTo(callerGroups) {
			continue
		}
		if rec, ok := state.HealthOf(ep.URL); ok {
			out[ep.URL] = rec
		}
	}
}

// Models returns the combined /v1/models listing: every model every
// visible endpoint across both task universes last reported, annotated
// with its serving endpoint_url and task. Unlike /model-to-endpoints, this
// is not deduplicated - the same model id can legitimately appear once per
// endpoint that serves it.
func (a *API) Models(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	data := make([]domain.ModelInfo, 0)
	collectModels(a.generate, domain.TaskGenerate, ac.Groups, &data)
	collectModels(a.embed, domain.TaskEmbed, ac.Groups, &data)

	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data":   data,
	})
}

func collectModels(state ports.TaskState, task domain.Task, callerGroups map[string]struct{}, out *[]domain.ModelInfo) {
	for url, models := range state.AllModels() {
		ep, ok := state.EndpointByURL(url)
		if !ok || !ep.VisibleTo(callerGroups) {
			continue
		}
		for _, m := range models {
			*out = append(*out, m.WithEndpoint(url, task))
		}
	}
}

// ModelToEndpoints returns the combined inverted index - model id to the
// set of endpoint URLs visible to the caller that serve it - across both
// task universes. Endpoint URLs are deduplicated per model; the output
// order is not significant.
func (a *API) ModelToEndpoints(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	combined := make(map[string]map[string]struct{})
	collectModelToEndpoints(a.generate, ac.Groups, combined)
	collectModelToEndpoints(a.embed, ac.Groups, combined)

	final := make(map[string][]string, len(combined))
	for modelID, urls := range combined {
		list := make([]string, 0, len(urls))
		for url := range urls {
			list = append(list, url)
		}
		final[modelID] = list
	}

	writeJSON(w, http.StatusOK, final)
}

func collectModelToEndpoints(state ports.TaskState, callerGroups map[string]struct{}, combined map[string]map[string]struct{}) {
	for modelID, urls := range state.ModelToEndpoints() {
		for _, url := range urls {
			ep, ok := state.EndpointByURL(url)
			if !ok || !ep.VisibleTo(callerGroups) {
				continue
			}
			set, exists := combined[modelID]
			if !exists {
				set = make(map[string]struct{})
				combined[modelID] = set
			}
			set[url] = struct{}{}
		}
	}
}

// Reload is gated to admin/staff callers. It reloads the endpoint
// descriptor file and replaces both task universes' state atomically,
// then reloads the token file, then spawns a fresh monitor for every
// loaded endpoint - it never explicitly cancels monitors for endpoints
// that already existed, since every monitor self-terminates the moment it
// finds its own URL missing from its task's endpoint list.
//
// A failed endpoint reload leaves all state untouched. A failed token
// reload happens after the endpoint state has already been replaced and is
// not rolled back, matching the upstream behaviour this mirrors.
func (a *API) Reload(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if !ac.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := a.ReloadNow(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Reloaded endpoints and reset all statuses"))
}

// ReloadNow performs the same reload the /reload route triggers, without
// the HTTP wrapping, so a file-watch callback on the endpoint/token
// descriptors can drive it too. See Reload for the failure-mode contract.
func (a *API) ReloadNow(ctx context.Context) error {
	byTask, err := a.source.LoadEndpoints(ctx)
	if err != nil {
		return fmt.Errorf("Failed to load YAML: %w", err)
	}

	a.generate.Replace(byTask[domain.TaskGenerate])
	a.embed.Replace(byTask[domain.TaskEmbed])

	tokens, err := a.source.LoadTokens(ctx)
	if err != nil {
		return fmt.Errorf("Failed to load auth tokens YAML: %w", err)
	}
	a.tokens.Replace(tokens)

	if a.spawn != nil {
		for _, ep := range byTask[domain.TaskGenerate] {
			a.spawn(a.monitorCtx, ep, a.generate)
		}
		for _, ep := range byTask[domain.TaskEmbed] {
			a.spawn(a.monitorCtx, ep, a.embed)
		}
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
