package dispatcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
	"github.com/arcbridge/gatekeeper/internal/util"
)

// relayBuffered forwards body to ep+upstreamPath, waits for the full
// response and writes it back verbatim: same status code, "application/json"
// content type, whole body. A transport error becomes a 500 with the
// "Forward request failed: {e}" message the original proxy used.
func (d *Dispatcher) relayBuffered(w http.ResponseWriter, ctx context.Context, ep domain.Endpoint, upstreamPath string, body []byte) {
	req, err := newUpstreamRequest(ctx, ep, upstreamPath, body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Forward request failed: %s", err), http.StatusInternalServerError)
		return
	}

	resp, err := d.buffered.Forward(ctx, req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Forward request failed: %s", err), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Forward request failed: %s", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

// relayStreamed forwards body and relays the upstream response body
// chunk-by-chunk as it is produced, enforcing a per-chunk read timeout: if
// the upstream goes silent for longer than streamChunkTimeout, the relay
// aborts rather than holding the client connection open indefinitely.
func (d *Dispatcher) relayStreamed(w http.ResponseWriter, ctx context.Context, ep domain.Endpoint, upstreamPath string, body []byte) {
	req, err := newUpstreamRequest(ctx, ep, upstreamPath, body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Forward request failed: %s", err), http.StatusInternalServerError)
		return
	}

	resp, err := d.streaming.Forward(ctx, req)
	if err != nil {
		http.Error(w, fmt.Sprintf("Forward request failed: %s", err), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)

	flusher, canFlush := w.(http.Flusher)

	timeout := d.chunkTimeout
	if timeout <= 0 {
		timeout = streamChunkTimeout
	}

	chunks := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go pumpChunks(resp.Body, chunks, done)

	for {
		select {
		case <-ctx.Done():
			return
		case res, open := <-chunks:
			if !open {
				return
			}
			if res.err != nil {
				// upstream went silent or errored mid-stream; stop
				// relaying rather than hang the client forever.
				return
			}
			if len(res.data) > 0 {
				if _, err := w.Write(res.data); err != nil {
					return
				}
				if canFlush {
					flusher.Flush()
				}
			}
		case <-time.After(timeout):
			// closing the body unblocks pumpChunks' in-flight Read on a
			// real connection; on return the deferred resp.Body.Close()
			// above becomes a harmless double close.
			resp.Body.Close()
			return
		}
	}
}

type readResult struct {
	data []byte
	err  error
}

// pumpChunks performs blocking reads against body on its own goroutine so
// relayStreamed's select can race each read against the chunk timeout
// without the timeout itself aborting an in-flight Read call. done is
// closed by relayStreamed when it stops consuming, so a read that
// completes after the deadline never blocks forever trying to send.
func pumpChunks(body io.Reader, out chan<- readResult, done <-chan struct{}) {
	defer close(out)
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- readResult{data: chunk}:
			case <-done:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				select {
				case out <- readResult{err: err}:
				case <-done:
				}
			}
			return
		}
	}
}

func newUpstreamRequest(ctx context.Context, ep domain.Endpoint, upstreamPath string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, util.JoinURLPath(ep.URL, upstreamPath), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if ep.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+ep.AccessToken)
	}
	return req, nil
}
