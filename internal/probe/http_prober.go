// Package probe implements the two upstream calls the monitor makes each
// cycle: a health GET and, while healthy, a models GET.
package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
	"github.com/arcbridge/gatekeeper/internal/util"
)

// HTTPProber implements ports.Prober against real upstream HTTP endpoints.
type HTTPProber struct {
	client *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{client: &http.Client{Timeout: timeout}}
}

// CheckHealth GETs "<endpoint>/health" and reports the endpoint healthy iff
// the response status is 2xx. Any transport error counts as unhealthy, not
// as an error the caller needs to branch on separately.
func (p *HTTPProber) CheckHealth(ctx context.Context, ep domain.Endpoint) (domain.HealthStatus, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, util.JoinURLPath(ep.URL, "/health"), nil)
	if err != nil {
		return domain.StatusUnhealthy, 0, err
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return domain.StatusUnhealthy, latency, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return domain.StatusHealthy, latency, nil
	}
	return domain.StatusUnhealthy, latency, nil
}

// FetchModels GETs "<endpoint>/v1/models" with the endpoint's own bearer
// token and returns the "data" array, or an empty list if the response has
// none.
func (p *HTTPProber) FetchModels(ctx context.Context, ep domain.Endpoint) ([]domain.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, util.JoinURLPath(ep.URL, "/v1/models"), nil)
	if err != nil {
		return nil, err
	}
	if ep.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+ep.AccessToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{status: resp.StatusCode}
	}

	var payload struct {
		Data []domain.ModelInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Data == nil {
		return []domain.ModelInfo{}, nil
	}
	return payload.Data, nil
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string {
	return http.StatusText(e.status)
}
