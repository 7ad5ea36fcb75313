package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GoCodeAlone/hotswap/transport"
)

var ErrChunkNotPublished = errors.New("chunk not published")

// MemTransport is an in-memory update source keyed the same way the file
// and HTTP transports are: manifests by previous hash, chunks by id and
// previous hash.
type MemTransport struct {
	mu            sync.Mutex
	manifests     map[string]*transport.Manifest
	chunks        map[string]*transport.Chunk
	manifestErr   error
	chunkErrs     map[string]error
	ManifestCalls int
	ChunkCalls    int
}

// NewMemTransport creates an empty transport: every check finds no update.
func NewMemTransport() *MemTransport {
	return &MemTransport{
		manifests: make(map[string]*transport.Manifest),
		chunks:    make(map[string]*transport.Chunk),
		chunkErrs: make(map[string]error),
	}
}

// Publish makes m the update for runtimes on previousHash.
func (t *MemTransport) Publish(previousHash string, m *transport.Manifest, chunks ...*transport.Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifests[previousHash] = m
	for _, c := range chunks {
		t.chunks[transport.ChunkFilename(c.ID, previousHash)] = c
	}
}

// FailManifest makes every manifest fetch fail with err; nil clears it.
func (t *MemTransport) FailManifest(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.manifestErr = err
}

// FailChunk makes fetches of chunkID fail with err.
func (t *MemTransport) FailChunk(chunkID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chunkErrs[chunkID] = err
}

// FetchManifest implements the runtime's update transport.
func (t *MemTransport) FetchManifest(ctx context.Context, runtime, hash string) (*transport.Manifest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ManifestCalls++
	if t.manifestErr != nil {
		return nil, t.manifestErr
	}
	return t.manifests[hash], nil
}

// FetchChunk implements the runtime's update transport.
func (t *MemTransport) FetchChunk(ctx context.Context, chunkID, hash string) (*transport.Chunk, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ChunkCalls++
	name := transport.ChunkFilename(chunkID, hash)
	if err := t.chunkErrs[chunkID]; err != nil {
		return nil, &transport.ChunkLoadError{ChunkID: chunkID, Type: transport.ChunkOther, Request: name, Err: err}
	}
	c, ok := t.chunks[name]
	if !ok {
		return nil, &transport.ChunkLoadError{
			ChunkID: chunkID,
			Type:    transport.ChunkMissing,
			Request: name,
			Err:     fmt.Errorf("%w: %s", ErrChunkNotPublished, name),
		}
	}
	return c, nil
}
