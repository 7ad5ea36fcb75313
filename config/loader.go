package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// hclConfig mirrors Config with optional blocks, the shape gohcl decodes.
type hclConfig struct {
	Runtime   *RuntimeConfig   `hcl:"runtime,block"`
	Transport *TransportConfig `hcl:"transport,block"`
	Server    *ServerConfig    `hcl:"server,block"`
	Trigger   *TriggerConfig   `hcl:"trigger,block"`
	Log       *LogConfig       `hcl:"log,block"`
}

// Load reads path over Defaults. The format follows the file extension:
// .yaml/.yml, .toml or .hcl. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml config %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse toml config %s: %w", path, err)
		}
	case ".hcl":
		hclFile, diags := hclparse.NewParser().ParseHCL(data, path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse hcl config %s: %w", path, diags)
		}
		var file hclConfig
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &file); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode hcl config %s: %w", path, diags)
		}
		overlayBlock(&cfg.Runtime, file.Runtime)
		overlayBlock(&cfg.Transport, file.Transport)
		overlayBlock(&cfg.Server, file.Server)
		overlayBlock(&cfg.Trigger, file.Trigger)
		overlayBlock(&cfg.Log, file.Log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	return cfg, nil
}

// overlayBlock copies the non-zero fields of src over dst. HCL leaves
// absent optional attributes zero, so defaults must survive them.
func overlayBlock[T any](dst *T, src *T) {
	if src == nil {
		return
	}
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	for i := 0; i < sv.NumField(); i++ {
		if !sv.Field(i).IsZero() {
			dv.Field(i).Set(sv.Field(i))
		}
	}
}
