// Package transport carries hot updates between a build side and a Runtime:
// the JSON manifest announcing an update, the msgpack chunk payloads that
// hold the new module sources, and the HTTP and file system sources they
// are fetched from.
package transport

import (
	"encoding/json"
	"fmt"
	"io"
)

// Manifest announces an update relative to the hash the runtime currently
// runs. It is fetched from ManifestFilename(runtime, previousHash).
type Manifest struct {
	// Hash is the hash the runtime advances to once the update applied.
	Hash string `json:"h"`
	// Chunks lists the chunks that carry updated modules.
	Chunks []string `json:"c"`
	// RemovedChunks lists chunks that no longer exist after the update.
	RemovedChunks []string `json:"r,omitempty"`
	// RemovedModules lists modules that no longer exist after the update.
	RemovedModules []string `json:"m,omitempty"`
}

// DecodeManifest parses a manifest document.
func DecodeManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	if m.Hash == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrInvalidManifest)
	}
	return &m, nil
}

// EncodeManifest writes m as JSON.
func EncodeManifest(w io.Writer, m *Manifest) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// ManifestFilename names the manifest published for a runtime whose current
// hash is previousHash.
func ManifestFilename(runtime, previousHash string) string {
	if previousHash == "" {
		return runtime + ".hot-update.json"
	}
	return runtime + "." + previousHash + ".hot-update.json"
}

// ChunkFilename names an update chunk built on top of previousHash.
func ChunkFilename(chunkID, previousHash string) string {
	if previousHash == "" {
		return chunkID + ".hot-update.msgpack"
	}
	return chunkID + "." + previousHash + ".hot-update.msgpack"
}
