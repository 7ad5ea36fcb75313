package transport

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidManifest = errors.New("invalid update manifest")
	ErrInvalidChunk    = errors.New("invalid update chunk")
	ErrUnexpectedCode  = errors.New("unexpected status code")
	ErrEmptyBaseURL    = errors.New("transport base URL is empty")
	ErrEmptyDir        = errors.New("transport directory is empty")
)

// ChunkLoadErrorType classifies a failed chunk load.
type ChunkLoadErrorType string

const (
	ChunkMissing ChunkLoadErrorType = "missing"
	ChunkTimeout ChunkLoadErrorType = "timeout"
	ChunkOther   ChunkLoadErrorType = "error"
)

// ChunkLoadError reports a chunk that could not be loaded.
type ChunkLoadError struct {
	ChunkID string
	Type    ChunkLoadErrorType
	Request string
	Err     error
}

func (e *ChunkLoadError) Error() string {
	return fmt.Sprintf("loading hot update chunk %s failed (%s: %s): %v", e.ChunkID, e.Type, e.Request, e.Err)
}

func (e *ChunkLoadError) Unwrap() error { return e.Err }
