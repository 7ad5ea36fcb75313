package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate reports every problem found in cfg, joined.
func Validate(cfg *Config) error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if strings.TrimSpace(cfg.Runtime.Name) == "" {
		invalid("runtime.name is required")
	}

	switch cfg.Transport.Kind {
	case "http":
		if cfg.Transport.URL == "" {
			invalid("transport.url is required for http transport")
		} else if u, err := url.Parse(cfg.Transport.URL); err != nil || u.Scheme == "" || u.Host == "" {
			invalid("transport.url %q is not an absolute URL", cfg.Transport.URL)
		}
	case "file":
		if cfg.Transport.Dir == "" {
			invalid("transport.dir is required for file transport")
		}
	default:
		invalid("transport.kind %q must be http or file", cfg.Transport.Kind)
	}
	if d, err := cfg.Transport.RequestTimeout(); err != nil || d <= 0 {
		invalid("transport.timeout %q must be a positive duration", cfg.Transport.Timeout)
	}

	if cfg.Trigger.Watch && cfg.Transport.Kind != "file" {
		invalid("trigger.watch requires the file transport")
	}
	if cfg.Trigger.Poll != "" {
		if _, err := cron.ParseStandard(cfg.Trigger.Poll); err != nil {
			invalid("trigger.poll %q: %v", cfg.Trigger.Poll, err)
		}
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		invalid("log.level %q must be debug, info, warn or error", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		invalid("log.format %q must be text or json", cfg.Log.Format)
	}

	return errors.Join(errs...)
}
