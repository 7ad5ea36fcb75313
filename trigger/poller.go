package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/hotswap"
)

// Poller checks on a cron schedule such as "@every 30s" or "*/5 * * * *".
// A check still running when the next tick fires makes that tick a no-op.
type Poller struct {
	spec   string
	check  CheckFunc
	logger hotswap.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewPoller validates spec and creates a poller.
func NewPoller(spec string, check CheckFunc, logger hotswap.Logger) (*Poller, error) {
	if check == nil {
		return nil, ErrNilCheck
	}
	if strings.TrimSpace(spec) == "" {
		return nil, ErrEmptySchedule
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = hotswap.NopLogger()
	}
	return &Poller{spec: spec, check: check, logger: logger}, nil
}

// Start schedules the checks.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return ErrAlreadyStarted
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(p.spec, func() {
		if ctx.Err() != nil {
			return
		}
		if err := p.check(ctx); err != nil {
			p.logger.Error("Scheduled update check failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule update check: %w", err)
	}
	c.Start()
	p.cron = c
	p.logger.Info("Polling for hot updates", "schedule", p.spec)
	return nil
}

// Stop cancels the schedule and waits for a running check.
func (p *Poller) Stop() error {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	<-c.Stop().Done()
	return nil
}
