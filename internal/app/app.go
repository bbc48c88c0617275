// Package app wires the gatekeeper's packages into a runnable application:
// loads the endpoint and token descriptors, starts one monitor per
// endpoint, registers the HTTP routes, and owns the web server's
// lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/arcbridge/gatekeeper/internal/api"
	"github.com/arcbridge/gatekeeper/internal/auth"
	"github.com/arcbridge/gatekeeper/internal/config"
	"github.com/arcbridge/gatekeeper/internal/core/domain"
	"github.com/arcbridge/gatekeeper/internal/core/ports"
	"github.com/arcbridge/gatekeeper/internal/dispatcher"
	"github.com/arcbridge/gatekeeper/internal/logger"
	"github.com/arcbridge/gatekeeper/internal/monitor"
	"github.com/arcbridge/gatekeeper/internal/probe"
	"github.com/arcbridge/gatekeeper/internal/registry"
	"github.com/arcbridge/gatekeeper/internal/router"
)

// Application is the gatekeeper's top-level wiring: two task universes
// (generate, embed), the auth/config/monitor machinery shared across both,
// and the HTTP server that fronts them.
type Application struct {
	config *config.Config
	log    logger.StyledLogger

	generate *registry.State
	embed    *registry.State
	tokens   *auth.TokenStore
	source   *config.FileConfigSource

	mon *monitor.Monitor

	dispatcher *dispatcher.Dispatcher
	api        *api.API
	routes     *router.RouteRegistry
	server     *http.Server

	monitorCtx    context.Context
	monitorCancel context.CancelFunc

	errCh chan error
}

// New constructs the Application: it loads the initial endpoint and token
// descriptors eagerly, so a misconfigured file fails startup instead of
// surfacing later as an empty routing table.
func New(cfg *config.Config, log logger.StyledLogger) (*Application, error) {
	ctx := context.Background()

	source := config.NewFileConfigSource(cfg.Files.EndpointsFile, cfg.Files.TokensFile)

	byTask, err := source.LoadEndpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading endpoints: %w", err)
	}
	tokenMap, err := source.LoadTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading tokens: %w", err)
	}

	generate := registry.New()
	embed := registry.New()
	generate.Replace(byTask[domain.TaskGenerate])
	embed.Replace(byTask[domain.TaskEmbed])

	tokens := auth.NewTokenStore(tokenMap)

	prober := probe.NewHTTPProber(cfg.Health.CheckTimeout)
	mon := monitor.New(prober, log)

	monitorCtx, monitorCancel := context.WithCancel(context.Background())

	disp := dispatcher.New(generate, embed, log)

	spawn := func(ctx context.Context, ep domain.Endpoint, state ports.TaskState) {
		go mon.Run(ctx, ep, state)
	}

	apiHandlers := api.New(generate, embed, tokens, source, spawn, log, monitorCtx)

	routes := router.NewRouteRegistry(log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a := &Application{
		config:        cfg,
		log:           log,
		generate:      generate,
		embed:         embed,
		tokens:        tokens,
		source:        source,
		mon:           mon,
		dispatcher:    disp,
		api:           apiHandlers,
		routes:        routes,
		server:        server,
		monitorCtx:    monitorCtx,
		monitorCancel: monitorCancel,
		errCh:         make(chan error, 1),
	}

	for _, ep := range byTask[domain.TaskGenerate] {
		spawn(monitorCtx, ep, generate)
	}
	for _, ep := range byTask[domain.TaskEmbed] {
		spawn(monitorCtx, ep, embed)
	}

	source.WatchEndpoints(a.onFileChanged)
	source.WatchTokens(a.onFileChanged)

	return a, nil
}

func (a *Application) onFileChanged() {
	if err := a.api.ReloadNow(context.Background()); err != nil {
		a.log.Error("failed to reload after file change", "error", err)
		return
	}
	a.log.Info("reloaded endpoints and tokens after file change")
}

// Start registers routes, starts the web server and returns immediately.
// A server error after that point is not returned: a goroutine started
// here logs it from the internal error channel, until ctx is done.
func (a *Application) Start(ctx context.Context) error {
	go func() {
		select {
		case err := <-a.errCh:
			a.log.Error("Server startup error", "error", err)
		case <-ctx.Done():
			return
		}
	}()

	a.startWebServer()

	a.log.Info("gatekeeper started", "bind", a.server.Addr)
	return nil
}

// Stop cancels every monitor and shuts the web server down gracefully.
func (a *Application) Stop(ctx context.Context) error {
	a.monitorCancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}
	return nil
}

func (a *Application) registerRoutes() {
	a.routes.Register("/endpoints", a.api.Endpoints, "Combined endpoint listing, filtered by group")
	a.routes.Register("/health-status", a.api.HealthStatus, "Combined health status, filtered by group")
	a.routes.Register("/v1/models", a.api.Models, "Combined model listing, filtered by group")
	a.routes.Register("/model-to-endpoints", a.api.ModelToEndpoints, "Inverted model routing index, filtered by group")
	a.routes.Register("/reload", a.api.Reload, "Reload endpoints and tokens from disk (admin/staff only)")
	a.routes.Register("/health", a.api.Health, "Liveness check, bypasses auth")

	a.routes.RegisterWithMethod("/v1/chat/completions", a.dispatcher.ChatCompletions, "Chat completions, routed by model", http.MethodPost)
	a.routes.RegisterWithMethod("/v1/completions", a.dispatcher.Completions, "Legacy completions alias", http.MethodPost)
	a.routes.RegisterWithMethod("/v1/embeddings", a.dispatcher.Embeddings, "Embeddings, routed by model", http.MethodPost)
}

func (a *Application) startWebServer() {
	a.log.Info("Starting WebServer...", "host", a.config.Server.Host, "port", a.config.Server.Port)

	mux := http.NewServeMux()
	a.registerRoutes()
	a.routes.WireUp(mux)

	handler := accessLogMiddleware(a.log)(auth.Middleware(a.tokens)(mux))
	a.server.Handler = handler

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server error", "error", err)
			a.errCh <- err
		}
	}()

	a.log.Info("Started WebServer", "bind", a.server.Addr)
}
