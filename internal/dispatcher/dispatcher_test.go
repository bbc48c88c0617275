package dispatcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/arcbridge/gatekeeper/internal/auth"
	"github.com/arcbridge/gatekeeper/internal/core/domain"
	"github.com/arcbridge/gatekeeper/internal/registry"
)

// fakeForwarder lets tests substitute the outbound call without a real
// listener, matching ports.Forwarder.
type fakeForwarder struct {
	resp *http.Response
	err  error
	got  *http.Request
}

func (f *fakeForwarder) Forward(ctx context.Context, req *http.Request) (*http.Response, error) {
	f.got = req
	return f.resp, f.err
}

func newResp(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newGenerateDispatcher(t *testing.T) (*Dispatcher, *registry.State, *fakeForwarder) {
	t.Helper()
	state := registry.New()
	state.Replace([]domain.Endpoint{
		{URL: "http://upstream-1", AccessToken: "tok-1", Groups: []string{"eng"}, Task: domain.TaskGenerate},
	})
	state.SetModels("http://upstream-1", []domain.ModelInfo{{"id": "llama3"}})

	d := &Dispatcher{generate: state, embed: registry.New(), log: nil}
	fwd := &fakeForwarder{resp: newResp(200, `{"ok":true}`)}
	d.buffered = fwd
	d.streaming = fwd
	return d, state, fwd
}

func TestChatCompletions_UnknownModel(t *testing.T) {
	d, _, _ := newGenerateDispatcher(t)
	store := auth.NewTokenStore(map[string][]string{"eng": {"secret"}})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"nope"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	auth.Middleware(store)(http.HandlerFunc(d.ChatCompletions)).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := w.Body.String(); got != "The model `nope` does not exist." {
		t.Fatalf("body = %q", got)
	}
}

func TestChatCompletions_MissingModelField(t *testing.T) {
	d, _, _ := newGenerateDispatcher(t)
	store := auth.NewTokenStore(map[string][]string{"eng": {"secret"}})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	auth.Middleware(store)(http.HandlerFunc(d.ChatCompletions)).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if got := w.Body.String(); got != "The model `` does not exist." {
		t.Fatalf("body = %q", got)
	}
}

func TestChatCompletions_GroupNotVisible(t *testing.T) {
	d, _, _ := newGenerateDispatcher(t)
	store := auth.NewTokenStore(map[string][]string{"other": {"secret"}})

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"llama3"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	auth.Middleware(store)(http.HandlerFunc(d.ChatCompletions)).ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when caller's group is not in the endpoint's group list", w.Code)
	}
}

func TestChatCompletions_ForwardsAndRotates(t *testing.T) {
	d, state, fwd := newGenerateDispatcher(t)
	state.Replace([]domain.Endpoint{
		{URL: "http://upstream-1", Groups: []string{"eng"}, Task: domain.TaskGenerate},
		{URL: "http://upstream-2", Groups: []string{"eng"}, Task: domain.TaskGenerate},
	})
	state.SetModels("http://upstream-1", []domain.ModelInfo{{"id": "llama3"}})
	state.SetModels("http://upstream-2", []domain.ModelInfo{{"id": "llama3"}})

	store := auth.NewTokenStore(map[string][]string{"eng": {"secret"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"llama3"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	auth.Middleware(store)(http.HandlerFunc(d.ChatCompletions)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
	if fwd.got.URL.String() != "http://upstream-1/v1/chat/completions" {
		t.Fatalf("forwarded to %s, want upstream-1 first", fwd.got.URL.String())
	}

	candidates := state.EndpointsForModel("llama3")
	if len(candidates) != 2 || candidates[len(candidates)-1] != "http://upstream-1" {
		t.Fatalf("expected upstream-1 rotated to tail, got %v", candidates)
	}
}

func TestEmbeddings_AlwaysBuffered(t *testing.T) {
	state := registry.New()
	state.Replace([]domain.Endpoint{{URL: "http://embed-1", Groups: []string{"eng"}, Task: domain.TaskEmbed}})
	state.SetModels("http://embed-1", []domain.ModelInfo{{"id": "embed-small"}})

	d := &Dispatcher{generate: registry.New(), embed: state}
	fwd := &fakeForwarder{resp: newResp(200, `{"data":[]}`)}
	d.buffered = fwd
	d.streaming = &fakeForwarder{err: io.ErrUnexpectedEOF}

	store := auth.NewTokenStore(map[string][]string{"eng": {"secret"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/embeddings", strings.NewReader(`{"model":"embed-small","stream":true}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	auth.Middleware(store)(http.HandlerFunc(d.Embeddings)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if fwd.got == nil {
		t.Fatal("embeddings request did not go through the buffered forwarder")
	}
	if fwd.got.URL.Path != "/v1/embeddings" {
		t.Fatalf("forwarded path = %s", fwd.got.URL.Path)
	}
}

func TestForwardFailure_Is500(t *testing.T) {
	d, _, fwd := newGenerateDispatcher(t)
	fwd.resp = nil
	fwd.err = io.ErrUnexpectedEOF

	store := auth.NewTokenStore(map[string][]string{"eng": {"secret"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(`{"model":"llama3"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()

	auth.Middleware(store)(http.HandlerFunc(d.ChatCompletions)).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.HasPrefix(w.Body.String(), "Forward request failed:") {
		t.Fatalf("body = %q", w.Body.String())
	}
}
