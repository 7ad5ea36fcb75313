package transport

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ChunkSource loads single update chunks.
type ChunkSource interface {
	FetchChunk(ctx context.Context, chunkID, hash string) (*Chunk, error)
}

// FetchChunks loads all chunks concurrently. Fetches are joined, not
// sequenced: a failing chunk does not cancel its siblings and every
// failure is reported. Results keep the order of ids.
func FetchChunks(ctx context.Context, src ChunkSource, ids []string, hash string) ([]*Chunk, error) {
	chunks := make([]*Chunk, len(ids))
	errs := make([]error, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			chunk, err := src.FetchChunk(ctx, id, hash)
			if err != nil {
				errs[i] = err
				return nil
			}
			chunks[i] = chunk
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return chunks, nil
}
