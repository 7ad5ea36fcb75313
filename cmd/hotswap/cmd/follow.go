package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/hotswap"
	"github.com/GoCodeAlone/hotswap/config"
	"github.com/GoCodeAlone/hotswap/transport"
	"github.com/GoCodeAlone/hotswap/trigger"
)

// NewFollowCommand creates the follow command.
func NewFollowCommand(flags *rootFlags) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Apply published updates to a mirror runtime and report each cycle",
		Long: `Follow runs a mirror runtime whose modules hold the latest published
source of each module. Checks are started by the configured triggers
(watch, poll, socket) or run once with --once.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			f, err := newFollower(cfg, logger, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if once {
				err := f.check(ctx)
				f.rt.WaitObservers()
				return err
			}

			triggers, err := f.triggers(cfg)
			if err != nil {
				return err
			}
			started := make([]trigger.Trigger, 0, len(triggers))
			for _, t := range triggers {
				if err := t.Start(ctx); err != nil {
					_ = trigger.StopAll(started)
					return err
				}
				started = append(started, t)
			}
			<-ctx.Done()
			err = trigger.StopAll(started)
			f.rt.WaitObservers()
			return err
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single check and exit")
	return cmd
}

// mirrorLinker links every module source to a factory exporting the source
// itself. Mirror modules accept themselves, so every update applies.
type mirrorLinker struct {
	logger *slog.Logger

	mu     sync.Mutex
	linked map[string]struct{}
}

func newMirrorLinker(logger *slog.Logger) *mirrorLinker {
	return &mirrorLinker{logger: logger, linked: make(map[string]struct{})}
}

func (l *mirrorLinker) Link(id string, src transport.ModuleSource) (hotswap.Factory, error) {
	l.mu.Lock()
	l.linked[id] = struct{}{}
	l.mu.Unlock()
	return func(m *hotswap.Module, _ hotswap.RequireFunc) error {
		m.Exports = src
		if m.Hot != nil {
			m.Hot.AcceptSelf(nil)
		}
		return nil
	}, nil
}

func (l *mirrorLinker) LinkRuntime(name string) (hotswap.RuntimeCallback, error) {
	return func(rt *hotswap.Runtime) error {
		l.logger.Info("Runtime patch applied", "patch", name, "runtime", rt.RuntimeName())
		return nil
	}, nil
}

// takeLinked returns and forgets the ids linked since the last call.
func (l *mirrorLinker) takeLinked() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.linked))
	for id := range l.linked {
		ids = append(ids, id)
	}
	l.linked = make(map[string]struct{})
	sort.Strings(ids)
	return ids
}

type follower struct {
	rt     *hotswap.Runtime
	linker *mirrorLinker
	run    func(context.Context) error
	logger *slog.Logger

	mu sync.Mutex
}

func newFollower(cfg *config.Config, logger *slog.Logger, out io.Writer) (*follower, error) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}
	linker := newMirrorLinker(logger)

	rt, err := hotswap.NewRuntime(
		hotswap.WithLogger(logger),
		hotswap.WithTransport(tr),
		hotswap.WithLinker(linker),
		hotswap.WithRuntimeName(cfg.Runtime.Name),
		hotswap.WithHash(cfg.Runtime.Hash),
		hotswap.WithInstalledChunks(cfg.Runtime.InstalledChunks...),
		hotswap.WithObserver(newCyclePrinter(out),
			hotswap.EventTypeUpdateApplied,
			hotswap.EventTypeUpdateAborted,
			hotswap.EventTypeUpdateFailed,
		),
	)
	if err != nil {
		return nil, err
	}

	opts := &hotswap.ApplyOptions{
		IgnoreDeclined:   cfg.Runtime.IgnoreDeclined,
		IgnoreUnaccepted: cfg.Runtime.IgnoreUnaccepted,
		IgnoreErrored:    cfg.Runtime.IgnoreErrored,
	}
	return &follower{
		rt:     rt,
		linker: linker,
		run:    rt.CheckTrigger(opts),
		logger: logger,
	}, nil
}

func newTransport(cfg config.TransportConfig) (hotswap.UpdateTransport, error) {
	switch cfg.Kind {
	case "http":
		timeout, err := cfg.RequestTimeout()
		if err != nil {
			return nil, err
		}
		return transport.NewHTTPTransport(cfg.URL, transport.WithRequestTimeout(timeout))
	case "file":
		return transport.NewFileTransport(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

// check runs one cycle, then loads modules that arrived new with it.
func (f *follower) check(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.run(ctx)
	linked := f.linker.takeLinked()
	if err != nil || f.rt.Status() != hotswap.StatusIdle {
		return err
	}
	for _, id := range linked {
		if _, ok := f.rt.Module(id); ok {
			continue
		}
		if _, err := f.rt.Require(id); err != nil {
			f.logger.Warn("Failed to load new module", "module", id, "error", err)
		}
	}
	return nil
}

func (f *follower) triggers(cfg *config.Config) ([]trigger.Trigger, error) {
	var triggers []trigger.Trigger
	if cfg.Trigger.Watch {
		w, err := trigger.NewWatcher(cfg.Transport.Dir, f.check, f.logger)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, w)
	}
	if cfg.Trigger.Poll != "" {
		p, err := trigger.NewPoller(cfg.Trigger.Poll, f.check, f.logger)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, p)
	}
	if cfg.Trigger.Socket != "" {
		s, err := trigger.NewSocketNotifier(cfg.Trigger.Socket, cfg.Trigger.SocketPath, f.check, f.rt.Hash, f.logger)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, s)
	}
	if len(triggers) == 0 {
		return nil, fmt.Errorf("no trigger configured: set trigger.watch, trigger.poll or trigger.socket, or use --once")
	}
	return triggers, nil
}

// newCyclePrinter reports finished cycles on out.
func newCyclePrinter(out io.Writer) hotswap.Observer {
	var mu sync.Mutex
	applied := color.New(color.FgGreen, color.Bold)
	aborted := color.New(color.FgYellow, color.Bold)
	failed := color.New(color.FgRed, color.Bold)

	return hotswap.NewFunctionalObserver("cycle-printer", func(_ context.Context, event cloudevents.Event) error {
		var data map[string]any
		if err := event.DataAs(&data); err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()
		switch event.Type() {
		case hotswap.EventTypeUpdateApplied:
			applied.Fprint(out, "applied ")
			fmt.Fprintf(out, "%v: %s\n", data["hash"], joinIDs(data["outdated"]))
		case hotswap.EventTypeUpdateAborted:
			aborted.Fprint(out, "aborted ")
			fmt.Fprintf(out, "%v\n", data["error"])
		case hotswap.EventTypeUpdateFailed:
			failed.Fprint(out, "failed ")
			fmt.Fprintf(out, "%v\n", data["error"])
		}
		return nil
	})
}

func joinIDs(v any) string {
	items, _ := v.([]any)
	if len(items) == 0 {
		return "(no modules)"
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, fmt.Sprint(item))
	}
	return strings.Join(ids, ", ")
}
