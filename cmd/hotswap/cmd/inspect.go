package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/hotswap/transport"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	keyColor     = color.New(color.FgYellow)
	removedColor = color.New(color.FgRed)
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>...",
		Short: "Print the contents of manifest and chunk files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := inspectFile(cmd.OutOrStdout(), path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func inspectFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, ".json"):
		m, err := transport.DecodeManifest(f)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		printManifest(w, name, m)
	case strings.HasSuffix(name, ".msgpack"):
		c, err := transport.DecodeChunk(f)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		printChunk(w, name, c)
	default:
		return fmt.Errorf("%s: not a manifest or chunk file", name)
	}
	return nil
}

func printManifest(w io.Writer, name string, m *transport.Manifest) {
	headingColor.Fprintf(w, "manifest %s\n", name)
	printField(w, "hash", m.Hash)
	printField(w, "chunks", strings.Join(m.Chunks, ", "))
	for _, id := range m.RemovedChunks {
		removedColor.Fprintf(w, "  - chunk %s\n", id)
	}
	for _, id := range m.RemovedModules {
		removedColor.Fprintf(w, "  - module %s\n", id)
	}
}

func printChunk(w io.Writer, name string, c *transport.Chunk) {
	headingColor.Fprintf(w, "chunk %s\n", name)
	printField(w, "id", c.ID)
	printField(w, "hash", c.Hash)

	ids := make([]string, 0, len(c.Modules))
	for id := range c.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		src := c.Modules[id]
		fmt.Fprintf(w, "  %s @%s (%d bytes)\n", id, orDash(src.Version), len(src.Code))
	}
	if len(c.Runtime) > 0 {
		printField(w, "runtime", strings.Join(c.Runtime, ", "))
	}
}

func printField(w io.Writer, key, value string) {
	keyColor.Fprintf(w, "  %-8s", key)
	fmt.Fprintf(w, "%s\n", orDash(value))
}
