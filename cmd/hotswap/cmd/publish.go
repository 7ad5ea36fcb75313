package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/hotswap/transport"
)

// updateDescription is the YAML document the publish command reads.
type updateDescription struct {
	Runtime        string             `yaml:"runtime"`
	PreviousHash   string             `yaml:"previous_hash"`
	Hash           string             `yaml:"hash"`
	RemovedChunks  []string           `yaml:"removed_chunks"`
	RemovedModules []string           `yaml:"removed_modules"`
	Chunks         []chunkDescription `yaml:"chunks"`
}

type chunkDescription struct {
	ID      string                       `yaml:"id"`
	Runtime []string                     `yaml:"runtime"`
	Modules map[string]moduleDescription `yaml:"modules"`
}

type moduleDescription struct {
	Version  string            `yaml:"version"`
	Code     string            `yaml:"code"`
	CodeFile string            `yaml:"code_file"`
	Meta     map[string]string `yaml:"meta"`
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(flags *rootFlags) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "publish <update.yaml>",
		Short: "Publish an update described in YAML into the update directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Server.Dir
			}

			update, err := readUpdateDescription(args[0], cfg.Runtime.Name)
			if err != nil {
				return err
			}
			pub, err := transport.NewPublisher(dir)
			if err != nil {
				return err
			}
			m, err := pub.Publish(update)
			if err != nil {
				return err
			}
			printPublished(cmd.OutOrStdout(), update, m)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "update directory (overrides server.dir)")
	return cmd
}

// readUpdateDescription loads path. Code files resolve relative to it.
func readUpdateDescription(path, defaultRuntime string) (*transport.Update, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read update description: %w", err)
	}
	var desc updateDescription
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("parse update description %s: %w", path, err)
	}
	if desc.Runtime == "" {
		desc.Runtime = defaultRuntime
	}

	base := filepath.Dir(path)
	update := &transport.Update{
		Runtime:        desc.Runtime,
		PreviousHash:   desc.PreviousHash,
		Hash:           desc.Hash,
		RemovedChunks:  desc.RemovedChunks,
		RemovedModules: desc.RemovedModules,
	}
	for _, cd := range desc.Chunks {
		chunk := &transport.Chunk{
			ID:      cd.ID,
			Runtime: cd.Runtime,
			Modules: make(map[string]transport.ModuleSource, len(cd.Modules)),
		}
		for id, md := range cd.Modules {
			code := []byte(md.Code)
			if md.CodeFile != "" {
				codePath := md.CodeFile
				if !filepath.IsAbs(codePath) {
					codePath = filepath.Join(base, codePath)
				}
				if code, err = os.ReadFile(codePath); err != nil {
					return nil, fmt.Errorf("read code for %s: %w", id, err)
				}
			}
			if len(code) == 0 {
				code = nil
			}
			chunk.Modules[id] = transport.ModuleSource{Version: md.Version, Code: code, Meta: md.Meta}
		}
		update.Chunks = append(update.Chunks, chunk)
	}
	return update, nil
}

func printPublished(w io.Writer, u *transport.Update, m *transport.Manifest) {
	ok := color.New(color.FgGreen, color.Bold)
	faint := color.New(color.Faint)

	modules := 0
	for _, c := range u.Chunks {
		modules += len(c.Modules)
	}
	ok.Fprintf(w, "published %s ", u.Runtime)
	fmt.Fprintf(w, "%s -> %s\n", orDash(u.PreviousHash), m.Hash)
	faint.Fprintf(w, "  chunks: %s (%d modules)\n", strings.Join(m.Chunks, ", "), modules)
	if len(m.RemovedChunks) > 0 {
		faint.Fprintf(w, "  removed chunks: %s\n", strings.Join(m.RemovedChunks, ", "))
	}
	if len(m.RemovedModules) > 0 {
		faint.Fprintf(w, "  removed modules: %s\n", strings.Join(m.RemovedModules, ", "))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
