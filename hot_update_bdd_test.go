package hotswap

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/GoCodeAlone/hotswap/internal/testutil"
	"github.com/GoCodeAlone/hotswap/transport"
)

var (
	errUnexpectedAbort   = errors.New("expected the update to succeed")
	errExpectedAbort     = errors.New("expected the update to abort")
	errUnknownAbortKind  = errors.New("unknown abort kind")
	errUnexpectedCount   = errors.New("unexpected count")
	errUnexpectedList    = errors.New("unexpected list")
	errModuleNotLive     = errors.New("module is not live")
	errUnexpectedDispose = errors.New("modules were disposed")
)

// hotUpdateBDDContext holds the state of one hot update scenario.
type hotUpdateBDDContext struct {
	rt        *Runtime
	transport *testutil.MemTransport
	deps      map[string][]string
	hooks     map[string][]func(m *Module, req RequireFunc)
	runs      map[string]int
	accepts   map[string]int
	disposed  []string
	statuses  []Status
	outdated  []string
	err       error
	hash      int
}

func (c *hotUpdateBDDContext) reset() {
	c.rt = nil
	c.transport = testutil.NewMemTransport()
	c.deps = make(map[string][]string)
	c.hooks = make(map[string][]func(m *Module, req RequireFunc))
	c.runs = make(map[string]int)
	c.accepts = make(map[string]int)
	c.disposed = nil
	c.statuses = nil
	c.outdated = nil
	c.err = nil
	c.hash = 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *hotUpdateBDDContext) factory(id, version string) Factory {
	return func(m *Module, req RequireFunc) error {
		c.runs[id]++
		for _, dep := range c.deps[id] {
			if _, err := req(dep); err != nil {
				return err
			}
		}
		m.Exports = id + "@" + version
		m.Hot.Dispose(func(map[string]any) error {
			c.disposed = append(c.disposed, id)
			return nil
		})
		for _, hook := range c.hooks[id] {
			hook(m, req)
		}
		return nil
	}
}

func (c *hotUpdateBDDContext) aRuntimeWithDependencies(edges string) error {
	rt, err := NewRuntime(WithTransport(c.transport), WithHash("h0"))
	if err != nil {
		return err
	}
	c.rt = rt
	rt.AddStatusHandler(func(_ context.Context, s Status) error {
		c.statuses = append(c.statuses, s)
		return nil
	})

	ids := make(map[string]struct{})
	for _, edge := range splitList(edges) {
		parts := strings.SplitN(edge, "->", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid edge %q", edge)
		}
		parent, child := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		c.deps[parent] = append(c.deps[parent], child)
		ids[parent] = struct{}{}
		ids[child] = struct{}{}
	}
	for id := range ids {
		if err := rt.Define(id, c.factory(id, "v1")); err != nil {
			return err
		}
	}
	return nil
}

func (c *hotUpdateBDDContext) addHook(id string, hook func(m *Module, req RequireFunc)) {
	c.hooks[id] = append(c.hooks[id], hook)
}

func (c *hotUpdateBDDContext) moduleAccepts(id, deps string) error {
	c.addHook(id, func(m *Module, _ RequireFunc) {
		m.Hot.Accept(splitList(deps), func([]string) error {
			c.accepts[id]++
			return nil
		}, nil)
	})
	return nil
}

func (c *hotUpdateBDDContext) moduleDeclines(id, deps string) error {
	c.addHook(id, func(m *Module, _ RequireFunc) {
		m.Hot.Decline(splitList(deps)...)
	})
	return nil
}

func (c *hotUpdateBDDContext) moduleDeclinesItself(id string) error {
	c.addHook(id, func(m *Module, _ RequireFunc) {
		m.Hot.Decline()
	})
	return nil
}

func (c *hotUpdateBDDContext) moduleAcceptsItself(id string) error {
	c.addHook(id, func(m *Module, _ RequireFunc) {
		m.Hot.AcceptSelf(nil)
	})
	return nil
}

func (c *hotUpdateBDDContext) moduleInvalidatesWhenDisposed(id, target string) error {
	c.addHook(id, func(m *Module, _ RequireFunc) {
		m.Hot.Dispose(func(map[string]any) error {
			if other, ok := c.rt.Module(target); ok {
				other.Hot.Invalidate()
			}
			return nil
		})
	})
	return nil
}

func (c *hotUpdateBDDContext) theModulesAreLoadedFrom(id string) error {
	_, err := c.rt.Require(id)
	c.statuses = nil
	return err
}

func (c *hotUpdateBDDContext) anUpdateIsPublished(ids string) error {
	c.hash++
	next := fmt.Sprintf("h%d", c.hash)
	factories := make(map[string]Factory)
	for _, id := range splitList(ids) {
		factories[id] = c.factory(id, next)
	}
	c.transport.Publish(c.rt.Hash(), &transport.Manifest{Hash: next, Chunks: []string{DefaultRuntimeName}})
	c.rt.HotUpdate(DefaultRuntimeName, factories)
	return nil
}

func (c *hotUpdateBDDContext) theRuntimeChecksAndApplies() error {
	c.outdated, c.err = c.rt.Check(context.Background(), &ApplyOptions{})
	return nil
}

func (c *hotUpdateBDDContext) theUpdateShouldSucceed() error {
	if c.err != nil {
		return fmt.Errorf("%w: %v", errUnexpectedAbort, c.err)
	}
	return nil
}

func (c *hotUpdateBDDContext) theUpdateShouldAbortAs(kind string) error {
	var sentinel error
	switch kind {
	case "declined":
		sentinel = ErrDeclined
	case "self-declined":
		sentinel = ErrSelfDeclined
	case "unaccepted":
		sentinel = ErrUnaccepted
	default:
		return fmt.Errorf("%w: %s", errUnknownAbortKind, kind)
	}
	if !errors.Is(c.err, sentinel) {
		return fmt.Errorf("%w as %s, got %v", errExpectedAbort, kind, c.err)
	}
	if c.rt.Status() != StatusIdle {
		return fmt.Errorf("runtime should be idle after abort, is %s", c.rt.Status())
	}
	return nil
}

func (c *hotUpdateBDDContext) thePropagationChainShouldBe(chain string) error {
	var abort *AbortError
	if !errors.As(c.err, &abort) {
		return fmt.Errorf("%w, got %v", errExpectedAbort, c.err)
	}
	return expectList(splitList(chain), abort.Chain())
}

func (c *hotUpdateBDDContext) noModuleShouldHaveBeenDisposed() error {
	if len(c.disposed) > 0 {
		return fmt.Errorf("%w: %v", errUnexpectedDispose, c.disposed)
	}
	return nil
}

func (c *hotUpdateBDDContext) theLiveModulesShouldBe(ids string) error {
	return expectList(splitList(ids), c.rt.Modules())
}

func (c *hotUpdateBDDContext) theOutdatedModulesShouldBe(ids string) error {
	return expectList(splitList(ids), c.outdated)
}

func (c *hotUpdateBDDContext) theAcceptCallbackShouldHaveRun(id string, times int) error {
	if got := c.accepts[id]; got != times {
		return fmt.Errorf("%w: accept callback of %s ran %d times, want %d", errUnexpectedCount, id, got, times)
	}
	return nil
}

func (c *hotUpdateBDDContext) moduleShouldHaveExecuted(id string, times int) error {
	if _, ok := c.rt.Module(id); !ok {
		return fmt.Errorf("%w: %s", errModuleNotLive, id)
	}
	if got := c.runs[id]; got != times {
		return fmt.Errorf("%w: %s executed %d times, want %d", errUnexpectedCount, id, got, times)
	}
	return nil
}

func (c *hotUpdateBDDContext) theStatusHistoryShouldBe(history string) error {
	got := make([]string, len(c.statuses))
	for i, s := range c.statuses {
		got[i] = string(s)
	}
	return expectList(splitList(history), got)
}

func expectList(want, got []string) error {
	if len(want) == 0 && len(got) == 0 {
		return nil
	}
	if !reflect.DeepEqual(want, got) {
		return fmt.Errorf("%w: want %v, got %v", errUnexpectedList, want, got)
	}
	return nil
}

// InitializeHotUpdateScenario registers the hot update step definitions.
func InitializeHotUpdateScenario(ctx *godog.ScenarioContext) {
	testCtx := &hotUpdateBDDContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		testCtx.reset()
		return ctx, nil
	})

	ctx.Step(`^a runtime with dependencies "([^"]*)"$`, testCtx.aRuntimeWithDependencies)
	ctx.Step(`^module "([^"]*)" accepts "([^"]*)"$`, testCtx.moduleAccepts)
	ctx.Step(`^module "([^"]*)" declines "([^"]*)"$`, testCtx.moduleDeclines)
	ctx.Step(`^module "([^"]*)" declines itself$`, testCtx.moduleDeclinesItself)
	ctx.Step(`^module "([^"]*)" accepts itself$`, testCtx.moduleAcceptsItself)
	ctx.Step(`^module "([^"]*)" invalidates "([^"]*)" when disposed$`, testCtx.moduleInvalidatesWhenDisposed)
	ctx.Step(`^the modules are loaded from "([^"]*)"$`, testCtx.theModulesAreLoadedFrom)

	ctx.Step(`^an update to "([^"]*)" is published$`, testCtx.anUpdateIsPublished)
	ctx.Step(`^the runtime checks for the update and applies it$`, testCtx.theRuntimeChecksAndApplies)

	ctx.Step(`^the update should succeed$`, testCtx.theUpdateShouldSucceed)
	ctx.Step(`^the update should abort as "([^"]*)"$`, testCtx.theUpdateShouldAbortAs)
	ctx.Step(`^the propagation chain should be "([^"]*)"$`, testCtx.thePropagationChainShouldBe)
	ctx.Step(`^no module should have been disposed$`, testCtx.noModuleShouldHaveBeenDisposed)
	ctx.Step(`^the live modules should be "([^"]*)"$`, testCtx.theLiveModulesShouldBe)
	ctx.Step(`^the outdated modules should be "([^"]*)"$`, testCtx.theOutdatedModulesShouldBe)
	ctx.Step(`^the accept callback of "([^"]*)" should have run (\d+) times?$`, testCtx.theAcceptCallbackShouldHaveRun)
	ctx.Step(`^module "([^"]*)" should have executed (\d+) times?$`, testCtx.moduleShouldHaveExecuted)
	ctx.Step(`^the status history should be "([^"]*)"$`, testCtx.theStatusHistoryShouldBe)
}

func TestHotUpdateFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeHotUpdateScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/hot_update.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
