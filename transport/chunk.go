package transport

import (
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Chunk is one update payload: new module sources keyed by module id plus
// the names of runtime patches to run during apply.
type Chunk struct {
	ID      string                  `msgpack:"id"`
	Hash    string                  `msgpack:"hash"`
	Modules map[string]ModuleSource `msgpack:"modules"`
	Runtime []string                `msgpack:"runtime,omitempty"`
}

// ModuleSource is the build output for one module. Version identifies the
// build; Code and Meta are opaque to the runtime and handed to its Linker.
type ModuleSource struct {
	Version string            `msgpack:"version"`
	Code    []byte            `msgpack:"code,omitempty"`
	Meta    map[string]string `msgpack:"meta,omitempty"`
}

// EncodeChunk writes c as msgpack.
func EncodeChunk(w io.Writer, c *Chunk) error {
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	return enc.Encode(c)
}

// DecodeChunk reads a msgpack chunk.
func DecodeChunk(r io.Reader) (*Chunk, error) {
	var c Chunk
	dec := msgpack.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidChunk)
	}
	return &c, nil
}
