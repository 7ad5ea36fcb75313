package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// HTTPTransport fetches manifests and chunks from a base URL. Concurrent
// requests for the same file share one round trip.
type HTTPTransport struct {
	baseURL *url.URL
	client  *http.Client
	sf      singleflight.Group
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = c
	}
}

// WithRequestTimeout sets the timeout of the default client.
func WithRequestTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		t.client = &http.Client{Timeout: d}
	}
}

// NewHTTPTransport creates a transport serving files below baseURL.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) (*HTTPTransport, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrEmptyBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}

	t := &HTTPTransport{
		baseURL: u,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// FetchManifest returns the manifest published on top of hash, or nil when
// the server answers 404, which means there is no update.
func (t *HTTPTransport) FetchManifest(ctx context.Context, runtime, hash string) (*Manifest, error) {
	target := t.resolve(ManifestFilename(runtime, hash))
	body, status, err := t.get(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest %s: %w", target, err)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, nil
	case status < 200 || status > 299:
		return nil, fmt.Errorf("fetch manifest %s: %w: %d", target, ErrUnexpectedCode, status)
	}
	return DecodeManifest(bytes.NewReader(body))
}

// FetchChunk downloads and decodes one update chunk.
func (t *HTTPTransport) FetchChunk(ctx context.Context, chunkID, hash string) (*Chunk, error) {
	target := t.resolve(ChunkFilename(chunkID, hash))
	body, status, err := t.get(ctx, target)
	if err != nil {
		kind := ChunkOther
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = ChunkTimeout
		}
		return nil, &ChunkLoadError{ChunkID: chunkID, Type: kind, Request: target, Err: err}
	}
	switch {
	case status == http.StatusNotFound:
		return nil, &ChunkLoadError{ChunkID: chunkID, Type: ChunkMissing, Request: target, Err: fmt.Errorf("%w: %d", ErrUnexpectedCode, status)}
	case status < 200 || status > 299:
		return nil, &ChunkLoadError{ChunkID: chunkID, Type: ChunkOther, Request: target, Err: fmt.Errorf("%w: %d", ErrUnexpectedCode, status)}
	}

	chunk, err := DecodeChunk(bytes.NewReader(body))
	if err != nil {
		return nil, &ChunkLoadError{ChunkID: chunkID, Type: ChunkOther, Request: target, Err: err}
	}
	return chunk, nil
}

func (t *HTTPTransport) resolve(name string) string {
	return t.baseURL.ResolveReference(&url.URL{Path: name}).String()
}

type response struct {
	body   []byte
	status int
}

// get coalesces concurrent requests for target. The shared round trip is
// detached from any one caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (t *HTTPTransport) get(ctx context.Context, target string) ([]byte, int, error) {
	ch := t.sf.DoChan(target, func() (any, error) {
		req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return response{body: body, status: resp.StatusCode}, nil
	})

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, 0, res.Err
		}
		r := res.Val.(response)
		return r.body, r.status, nil
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
