package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileTransport reads manifests and chunks from a local directory, the
// layout Publisher writes.
type FileTransport struct {
	dir string
}

// NewFileTransport creates a transport reading from dir.
func NewFileTransport(dir string) (*FileTransport, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrEmptyDir
	}
	return &FileTransport{dir: dir}, nil
}

// FetchManifest returns nil when no manifest exists for hash.
func (t *FileTransport) FetchManifest(ctx context.Context, runtime, hash string) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(t.dir, ManifestFilename(runtime, hash))
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return DecodeManifest(f)
}

// FetchChunk reads one chunk file.
func (t *FileTransport) FetchChunk(ctx context.Context, chunkID, hash string) (*Chunk, error) {
	path := filepath.Join(t.dir, ChunkFilename(chunkID, hash))
	if err := ctx.Err(); err != nil {
		return nil, &ChunkLoadError{ChunkID: chunkID, Type: ChunkTimeout, Request: path, Err: err}
	}
	f, err := os.Open(path)
	if err != nil {
		kind := ChunkOther
		if errors.Is(err, os.ErrNotExist) {
			kind = ChunkMissing
		}
		return nil, &ChunkLoadError{ChunkID: chunkID, Type: kind, Request: path, Err: err}
	}
	defer f.Close()

	chunk, err := DecodeChunk(f)
	if err != nil {
		return nil, &ChunkLoadError{ChunkID: chunkID, Type: ChunkOther, Request: path, Err: err}
	}
	return chunk, nil
}
