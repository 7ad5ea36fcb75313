package transport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Update is everything published for one rebuild.
type Update struct {
	Runtime        string
	PreviousHash   string
	Hash           string
	Chunks         []*Chunk
	RemovedChunks  []string
	RemovedModules []string
}

// Publisher writes updates into a directory served to runtimes. Files are
// written to a temp file and renamed into place, so a concurrent reader
// never observes a partial manifest.
type Publisher struct {
	dir string
}

// NewPublisher creates the publish directory if needed.
func NewPublisher(dir string) (*Publisher, error) {
	if dir == "" {
		return nil, ErrEmptyDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create publish dir: %w", err)
	}
	return &Publisher{dir: dir}, nil
}

// Dir returns the publish directory.
func (p *Publisher) Dir() string { return p.dir }

// Publish writes every chunk first and the manifest last; a runtime that
// sees the manifest can always load its chunks.
func (p *Publisher) Publish(u *Update) (*Manifest, error) {
	if u.Runtime == "" || u.Hash == "" {
		return nil, fmt.Errorf("%w: runtime and hash are required", ErrInvalidManifest)
	}

	m := &Manifest{
		Hash:           u.Hash,
		Chunks:         make([]string, 0, len(u.Chunks)),
		RemovedChunks:  u.RemovedChunks,
		RemovedModules: u.RemovedModules,
	}

	for _, c := range u.Chunks {
		if c.ID == "" {
			return nil, fmt.Errorf("%w: missing id", ErrInvalidChunk)
		}
		if c.Hash == "" {
			c.Hash = u.Hash
		}
		var buf bytes.Buffer
		if err := EncodeChunk(&buf, c); err != nil {
			return nil, fmt.Errorf("encode chunk %s: %w", c.ID, err)
		}
		if err := p.writeFile(ChunkFilename(c.ID, u.PreviousHash), buf.Bytes()); err != nil {
			return nil, err
		}
		m.Chunks = append(m.Chunks, c.ID)
	}
	sort.Strings(m.Chunks)

	var buf bytes.Buffer
	if err := EncodeManifest(&buf, m); err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	if err := p.writeFile(ManifestFilename(u.Runtime, u.PreviousHash), buf.Bytes()); err != nil {
		return nil, err
	}
	return m, nil
}

func (p *Publisher) writeFile(name string, data []byte) error {
	f, err := os.CreateTemp(p.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp, filepath.Join(p.dir, name)); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}
