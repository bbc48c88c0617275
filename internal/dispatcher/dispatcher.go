// Package dispatcher implements the three OpenAI-compatible forwarding
// routes: chat/completions, the legacy completions alias, and embeddings.
// Each handler extracts the model id from the request body, resolves it to
// a group-visible endpoint in the appropriate task universe, rotates that
// endpoint to the tail of its candidate list, and relays the upstream
// response back to the caller either buffered or streamed.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/arcbridge/gatekeeper/internal/auth"
	"github.com/arcbridge/gatekeeper/internal/core/domain"
	"github.com/arcbridge/gatekeeper/internal/core/ports"
	"github.com/arcbridge/gatekeeper/internal/logger"
	"github.com/arcbridge/gatekeeper/pkg/pool"
)

const (
	connectTimeout     = 5 * time.Second
	bufferedTimeout    = 90 * time.Second
	streamChunkTimeout = 30 * time.Second
)

var bufPool = pool.NewLitePool(func() *bytes.Buffer { return new(bytes.Buffer) })

// Dispatcher forwards generate and embed traffic to upstream endpoints.
type Dispatcher struct {
	generate ports.TaskState
	embed    ports.TaskState
	log      logger.StyledLogger

	// streaming has a connect timeout but no overall request timeout,
	// since a streamed response may legitimately run long.
	streaming ports.Forwarder
	// buffered additionally bounds the whole round trip, matching the
	// 90s ceiling non-streaming callers get.
	buffered ports.Forwarder

	// chunkTimeout is streamChunkTimeout in production; tests shrink it
	// to exercise the stall-abort path without a real 30s wait.
	chunkTimeout time.Duration
}

// clientForwarder adapts an *http.Client to ports.Forwarder so tests can
// substitute a fake without standing up a real listener.
type clientForwarder struct{ client *http.Client }

func (c clientForwarder) Forward(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(ctx))
}

func New(generate, embed ports.TaskState, log logger.StyledLogger) *Dispatcher {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}
	return &Dispatcher{
		generate:     generate,
		embed:        embed,
		log:          log,
		streaming:    clientForwarder{client: &http.Client{Transport: transport}},
		buffered:     clientForwarder{client: &http.Client{Transport: transport, Timeout: bufferedTimeout}},
		chunkTimeout: streamChunkTimeout,
	}
}

// ChatCompletions handles POST /v1/chat/completions.
func (d *Dispatcher) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	d.forwardGenerate(w, r, "/v1/chat/completions")
}

// Completions handles the legacy POST /v1/completions alias, identical in
// every respect to ChatCompletions except the upstream path.
func (d *Dispatcher) Completions(w http.ResponseWriter, r *http.Request) {
	d.forwardGenerate(w, r, "/v1/completions")
}

// Embeddings handles POST /v1/embeddings. Embedding requests are always
// forwarded buffered; there is no streaming mode for embeddings.
func (d *Dispatcher) Embeddings(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	body, modelID, ok := readModel(w, r)
	if !ok {
		return
	}

	ep, ok := d.selectEndpoint(d.embed, modelID, ac.Groups)
	if !ok {
		notFoundModel(w, modelID)
		return
	}

	if d.log != nil {
		d.log.Info("forwarded embed request for model", "model", modelID, "endpoint", ep.URL)
	}
	d.relayBuffered(w, r.Context(), ep, "/v1/embeddings", body)
}

func (d *Dispatcher) forwardGenerate(w http.ResponseWriter, r *http.Request, upstreamPath string) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	body, modelID, ok := readModel(w, r)
	if !ok {
		return
	}

	streamRequested := requestsStream(body)

	ep, ok := d.selectEndpoint(d.generate, modelID, ac.Groups)
	if !ok {
		notFoundModel(w, modelID)
		return
	}

	if streamRequested {
		if d.log != nil {
			d.log.Info("forwarded streaming request for model", "model", modelID, "endpoint", ep.URL)
		}
		d.relayStreamed(w, r.Context(), ep, upstreamPath, body)
	} else {
		if d.log != nil {
			d.log.Info("forwarded request for model", "model", modelID, "endpoint", ep.URL)
		}
		d.relayBuffered(w, r.Context(), ep, upstreamPath, body)
	}
}

// readModel decodes the request body into a reusable buffer (so it can be
// forwarded unmodified) and extracts a validated "model" string field,
// writing the exact 404 the missing-model case requires itself when the
// field is absent or not a string.
func readModel(w http.ResponseWriter, r *http.Request) (raw []byte, modelID string, ok bool) {
	buf := bufPool.Get()
	defer bufPool.Put(buf)

	if _, err := io.Copy(buf, r.Body); err != nil {
		http.Error(w, fmt.Sprintf("Forward request failed: %s", err), http.StatusInternalServerError)
		return nil, "", false
	}
	raw = append([]byte(nil), buf.Bytes()...)

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		notFoundModel(w, "")
		return nil, "", false
	}

	v, exists := payload["model"]
	if !exists {
		notFoundModel(w, "")
		return nil, "", false
	}
	s, isString := v.(string)
	if !isString {
		notFoundModel(w, "")
		return nil, "", false
	}

	return raw, s, true
}

func requestsStream(body []byte) bool {
	var payload struct {
		Stream bool `json:"stream"`
	}
	_ = json.Unmarshal(body, &payload)
	return payload.Stream
}

// selectEndpoint resolves modelID to a group-visible endpoint in state and
// rotates it to the tail of the candidate list, mirroring the
// pick-first-then-rotate behaviour of the original proxy.
func (d *Dispatcher) selectEndpoint(state ports.TaskState, modelID string, callerGroups map[string]struct{}) (domain.Endpoint, bool) {
	candidates := state.EndpointsForModel(modelID)
	if len(candidates) == 0 {
		return domain.Endpoint{}, false
	}

	for _, url := range candidates {
		ep, ok := state.EndpointByURL(url)
		if !ok {
			continue
		}
		if !ep.VisibleTo(callerGroups) {
			continue
		}
		state.Rotate(modelID, url)
		return ep, true
	}
	return domain.Endpoint{}, false
}

func notFoundModel(w http.ResponseWriter, modelID string) {
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, "The model `%s` does not exist.", modelID)
}
