package hotswap

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/hotswap/internal/testutil"
	"github.com/GoCodeAlone/hotswap/transport"
)

// testGraph builds module graphs whose factories require their
// dependencies in order, count executions and then run a per-module hook.
type testGraph struct {
	t         *testing.T
	rt        *Runtime
	transport *testutil.MemTransport
	logger    *testutil.Logger

	mu    sync.Mutex
	runs  map[string]int
	hooks map[string]func(m *Module, req RequireFunc)
	deps  map[string][]string
	hash  int
}

func newTestGraph(t *testing.T, opts ...Option) *testGraph {
	t.Helper()
	g := &testGraph{
		t:         t,
		transport: testutil.NewMemTransport(),
		logger:    &testutil.Logger{},
		runs:      make(map[string]int),
		hooks:     make(map[string]func(m *Module, req RequireFunc)),
		deps:      make(map[string][]string),
	}
	base := []Option{
		WithLogger(g.logger),
		WithTransport(g.transport),
		WithHash("h0"),
	}
	rt, err := NewRuntime(append(base, opts...)...)
	require.NoError(t, err)
	g.rt = rt
	return g
}

// define registers id with the given dependencies.
func (g *testGraph) define(id string, deps ...string) {
	g.t.Helper()
	g.mu.Lock()
	g.deps[id] = deps
	g.mu.Unlock()
	require.NoError(g.t, g.rt.Define(id, g.factory(id, "v1")))
}

// on sets the hook run at the end of id's factory.
func (g *testGraph) on(id string, hook func(m *Module, req RequireFunc)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks[id] = hook
}

func (g *testGraph) factory(id, version string) Factory {
	return func(m *Module, req RequireFunc) error {
		g.mu.Lock()
		g.runs[id]++
		deps := g.deps[id]
		hook := g.hooks[id]
		g.mu.Unlock()

		for _, dep := range deps {
			if _, err := req(dep); err != nil {
				return err
			}
		}
		m.Exports = id + "@" + version
		if hook != nil {
			hook(m, req)
		}
		return nil
	}
}

func (g *testGraph) runCount(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.runs[id]
}

func (g *testGraph) load(id string) {
	g.t.Helper()
	_, err := g.rt.Require(id)
	require.NoError(g.t, err)
}

// publish announces an update replacing the given modules with new
// versions, delivered inline on the runtime chunk.
func (g *testGraph) publish(ids ...string) {
	g.publishManifest(&transport.Manifest{}, ids...)
}

func (g *testGraph) publishManifest(m *transport.Manifest, ids ...string) {
	g.mu.Lock()
	g.hash++
	next := fmt.Sprintf("h%d", g.hash)
	g.mu.Unlock()

	m.Hash = next
	if len(m.Chunks) == 0 {
		m.Chunks = []string{DefaultRuntimeName}
	}
	factories := make(map[string]Factory, len(ids))
	for _, id := range ids {
		factories[id] = g.factory(id, next)
	}
	g.transport.Publish(g.rt.Hash(), m)
	g.rt.HotUpdate(DefaultRuntimeName, factories)
}

func (g *testGraph) checkAndApply(opts *ApplyOptions) ([]string, error) {
	if opts == nil {
		opts = &ApplyOptions{}
	}
	return g.rt.Check(context.Background(), opts)
}

func (g *testGraph) module(id string) *Module {
	g.t.Helper()
	m, ok := g.rt.Module(id)
	require.True(g.t, ok, "module %s should be live", id)
	return m
}

// statusRecorder collects every status a runtime moves through.
type statusRecorder struct {
	mu       sync.Mutex
	statuses []Status
}

func recordStatuses(rt *Runtime) *statusRecorder {
	r := &statusRecorder{}
	rt.AddStatusHandler(func(_ context.Context, s Status) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.statuses = append(r.statuses, s)
		return nil
	})
	return r
}

func (r *statusRecorder) list() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, len(r.statuses))
	copy(out, r.statuses)
	return out
}
