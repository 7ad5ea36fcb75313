package hotswap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/GoCodeAlone/hotswap/transport"
)

// DefaultRuntimeName is the manifest name used when none is configured.
const DefaultRuntimeName = "main"

// UpdateTransport is where a Runtime looks for updates. FetchManifest
// returns (nil, nil) when there is no update for hash.
type UpdateTransport interface {
	FetchManifest(ctx context.Context, runtime, hash string) (*transport.Manifest, error)
	FetchChunk(ctx context.Context, chunkID, hash string) (*transport.Chunk, error)
}

type inlineChunk struct {
	modules map[string]Factory
	runtime []RuntimeCallback
}

// Runtime owns one module registry and drives its hot update cycles.
// Independent runtimes share nothing.
type Runtime struct {
	logger    Logger
	registry  *Registry
	status    *statusMachine
	transport UpdateTransport
	linker    Linker
	errorHook func(error)

	handlerSeq atomic.Uint64

	loaderMu       sync.Mutex
	interceptors   []Interceptor
	currentParents []string
	currentChild   string

	mu              sync.Mutex
	runtimeName     string
	hash            string
	installedChunks idSet
	moduleData      map[string]map[string]any
	pending         *pendingUpdate
	queued          *queue.Queue
	inline          map[string]*inlineChunk
	blocking        int
	blockingDone    chan struct{}
	checking        bool
	cycle           string

	observers observerSet
}

// NewRuntime creates a runtime in idle status.
func NewRuntime(opts ...Option) (*Runtime, error) {
	rt := &Runtime{
		logger:          noopLogger{},
		registry:        NewRegistry(),
		status:          newStatusMachine(),
		runtimeName:     DefaultRuntimeName,
		installedChunks: make(idSet),
		moduleData:      make(map[string]map[string]any),
		queued:          queue.New(),
		inline:          make(map[string]*inlineChunk),
		observers:       observerSet{observers: make(map[string]*observerRegistration)},
	}

	for _, opt := range opts {
		if err := opt(rt); err != nil {
			return nil, err
		}
	}

	rt.installedChunks.add(rt.runtimeName)
	rt.interceptors = append([]Interceptor{rt.hotInterceptor}, rt.interceptors...)
	rt.status.onChange = rt.onStatusChange
	rt.status.onHandlerError = func(err error, status Status) {
		rt.logger.Warn("Status handler failed", "status", status, "error", err)
		rt.hookError(err)
	}
	return rt, nil
}

// Registry returns the runtime's module registry.
func (rt *Runtime) Registry() *Registry {
	return rt.registry
}

// Module returns the live record for id.
func (rt *Runtime) Module(id string) (*Module, bool) {
	return rt.registry.Get(id)
}

// Modules returns the ids of all live records, sorted.
func (rt *Runtime) Modules() []string {
	return rt.registry.IDs()
}

// Status returns the current hot update status.
func (rt *Runtime) Status() Status {
	return rt.status.Current()
}

// AddStatusHandler registers a handler invoked on every status transition.
func (rt *Runtime) AddStatusHandler(handler StatusHandler) HandlerID {
	id := rt.nextHandlerID()
	rt.status.add(id, handler)
	return id
}

// RemoveStatusHandler unregisters a status handler.
func (rt *Runtime) RemoveStatusHandler(id HandlerID) {
	rt.status.remove(id)
}

// Hash returns the build hash the runtime currently runs.
func (rt *Runtime) Hash() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.hash
}

// RuntimeName returns the name manifests are fetched for.
func (rt *Runtime) RuntimeName() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.runtimeName
}

// InstallChunk marks a chunk as loaded so later updates to it are fetched.
func (rt *Runtime) InstallChunk(id string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.installedChunks.add(id)
}

// InstalledChunks returns the loaded chunk ids, sorted.
func (rt *Runtime) InstalledChunks() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.installedChunks.sorted()
}

func (rt *Runtime) chunkInstalled(id string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.installedChunks.has(id)
}

func (rt *Runtime) uninstallChunks(ids []string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, id := range ids {
		rt.installedChunks.remove(id)
	}
}

func (rt *Runtime) nextHandlerID() HandlerID {
	return HandlerID(rt.handlerSeq.Add(1))
}

func (rt *Runtime) moduleDataFor(id string) map[string]any {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.moduleData[id]
}

func (rt *Runtime) setModuleData(id string, data map[string]any) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.moduleData[id] = data
}

func (rt *Runtime) setHash(hash string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.hash = hash
}

func (rt *Runtime) currentCycle() string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.cycle
}

func (rt *Runtime) hookError(err error) {
	if rt.errorHook != nil {
		rt.errorHook(err)
	}
}

// onStatusChange opens a cycle when leaving idle and closes it on return.
func (rt *Runtime) onStatusChange(ctx context.Context, from, to Status) {
	rt.mu.Lock()
	if from == StatusIdle {
		rt.cycle = newEventID()
	}
	cycle := rt.cycle
	if to == StatusIdle {
		rt.cycle = ""
		rt.pending = nil
	}
	rt.mu.Unlock()

	rt.logger.Debug("Hot update status changed", "from", from, "to", to, "cycle", cycle)
	rt.emitStatusChanged(ctx, cycle, from, to)
}

// HotUpdate delivers an update chunk in-process instead of through the
// transport. The next check uses it for the chunk if its manifest lists
// the chunk; otherwise it is discarded.
func (rt *Runtime) HotUpdate(chunkID string, modules map[string]Factory, runtime ...RuntimeCallback) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.inline[chunkID] = &inlineChunk{modules: modules, runtime: runtime}
}

func (rt *Runtime) takeInline() map[string]*inlineChunk {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	inline := rt.inline
	rt.inline = make(map[string]*inlineChunk)
	return inline
}

// CheckTrigger adapts Check for update triggers: it is a no-op unless the
// runtime is idle.
func (rt *Runtime) CheckTrigger(opts *ApplyOptions) func(context.Context) error {
	return func(ctx context.Context) error {
		if st := rt.Status(); st != StatusIdle {
			rt.logger.Debug("Skipping update check", "status", st)
			return nil
		}
		_, err := rt.Check(ctx, opts)
		if errors.Is(err, ErrCheckNotIdle) {
			return nil
		}
		return err
	}
}

// invalidate registers id for the next apply. From idle it starts a cycle
// that goes straight to ready; during check, prepare, dispose or apply it
// is queued for the next fold point; abort and fail ignore it.
func (rt *Runtime) invalidate(ctx context.Context, id string) {
	switch st := rt.Status(); st {
	case StatusIdle:
		rt.enqueueInvalidated(id)
		rt.foldInvalidated()
		if rt.status.setFrom(ctx, StatusIdle, StatusReady) {
			rt.logger.Info("Module invalidated", "module", id)
		}
	case StatusReady:
		rt.enqueueInvalidated(id)
		rt.foldInvalidated()
		rt.logger.Info("Module invalidated", "module", id)
	case StatusCheck, StatusPrepare, StatusDispose, StatusApply:
		rt.enqueueInvalidated(id)
		rt.logger.Info("Module invalidation queued", "module", id, "status", st)
	default:
		rt.logger.Debug("Ignoring invalidation", "module", id, "status", st)
	}
}

func (rt *Runtime) enqueueInvalidated(id string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.queued.Add(id)
}

func (rt *Runtime) hasQueued() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.queued.Length() > 0
}

// foldInvalidated moves queued invalidations into the pending update with
// their current factory. It reports whether an update is pending.
func (rt *Runtime) foldInvalidated() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.queued.Length() > 0 && rt.pending == nil {
		rt.pending = newPendingUpdate()
	}
	for rt.queued.Length() > 0 {
		id := rt.queued.Remove().(string)
		f, _ := rt.registry.Factory(id)
		rt.pending.setIfAbsent(id, f)
	}
	return rt.pending != nil
}

// TrackLoad runs load as a blocking load. While one is in flight a ready
// runtime moves back to prepare, and a running check waits for it before
// it reports ready.
func (rt *Runtime) TrackLoad(ctx context.Context, load func(context.Context) error) error {
	tracked := rt.block(ctx)
	err := load(ctx)
	if tracked {
		rt.unblock(ctx)
	}
	return err
}

func (rt *Runtime) block(ctx context.Context) bool {
	rt.mu.Lock()
	st := rt.status.Current()
	if st != StatusReady && st != StatusPrepare {
		rt.mu.Unlock()
		return false
	}
	rt.blocking++
	if rt.blockingDone == nil {
		rt.blockingDone = make(chan struct{})
	}
	rt.mu.Unlock()

	if st == StatusReady {
		rt.status.setFrom(ctx, StatusReady, StatusPrepare)
	}
	return true
}

func (rt *Runtime) unblock(ctx context.Context) {
	rt.mu.Lock()
	rt.blocking--
	if rt.blocking > 0 {
		rt.mu.Unlock()
		return
	}
	done := rt.blockingDone
	rt.blockingDone = nil
	checking := rt.checking
	rt.mu.Unlock()

	if !checking {
		rt.status.setFrom(ctx, StatusPrepare, StatusReady)
	}
	if done != nil {
		close(done)
	}
}

func (rt *Runtime) waitForBlocking(ctx context.Context) error {
	rt.mu.Lock()
	done := rt.blockingDone
	rt.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rt *Runtime) setChecking(v bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.checking = v
}

// Check asks the transport for an update on top of the current hash. It is
// legal only from idle. Without a manifest it reports no update, but still
// moves to ready if invalidated modules are pending. With autoApply set the
// prepared update is applied right away and the outdated module ids are
// returned; otherwise the updated module ids are returned and the runtime
// waits in ready for Apply.
func (rt *Runtime) Check(ctx context.Context, autoApply *ApplyOptions) ([]string, error) {
	if rt.transport == nil {
		return nil, ErrNoTransport
	}
	if !rt.status.setFrom(ctx, StatusIdle, StatusCheck) {
		return nil, fmt.Errorf("%w: status is %s", ErrCheckNotIdle, rt.Status())
	}
	cycle := rt.currentCycle()

	rt.mu.Lock()
	rt.checking = true
	name, hash := rt.runtimeName, rt.hash
	rt.mu.Unlock()

	manifest, err := rt.transport.FetchManifest(ctx, name, hash)
	if err != nil {
		rt.setChecking(false)
		return nil, rt.abortCycle(ctx, cycle, fmt.Errorf("fetch update manifest: %w", err))
	}

	if manifest == nil {
		rt.setChecking(false)
		rt.emitUpdateChecked(ctx, cycle, hash, nil)
		if rt.foldInvalidated() {
			_ = rt.status.set(ctx, StatusPrepare)
			_ = rt.status.set(ctx, StatusReady)
			return nil, nil
		}
		_ = rt.status.set(ctx, StatusIdle)
		return nil, nil
	}

	if err := rt.status.set(ctx, StatusPrepare); err != nil {
		rt.setChecking(false)
		return nil, err
	}
	rt.logger.Info("Hot update available", "runtime", name, "from", hash, "to", manifest.Hash, "chunks", manifest.Chunks)

	updated, err := rt.prepareUpdate(ctx, manifest, hash)
	if err == nil {
		err = rt.waitForBlocking(ctx)
	}
	rt.setChecking(false)
	if err != nil {
		return nil, rt.abortCycle(ctx, cycle, err)
	}

	if err := rt.status.set(ctx, StatusReady); err != nil {
		return nil, err
	}
	rt.emitUpdateChecked(ctx, cycle, manifest.Hash, updated)

	if autoApply == nil {
		return updated, nil
	}
	return rt.internalApply(ctx, autoApply, false)
}

// prepareUpdate builds the pending update described by manifest. Inline
// chunks win over transported ones; transported chunks are fetched
// concurrently and must all succeed.
func (rt *Runtime) prepareUpdate(ctx context.Context, manifest *transport.Manifest, hash string) ([]string, error) {
	rt.mu.Lock()
	update := rt.pending
	if update == nil {
		update = newPendingUpdate()
		rt.pending = update
	}
	for _, id := range manifest.RemovedModules {
		update.set(id, nil)
	}
	update.removedChunks = append(update.removedChunks, manifest.RemovedChunks...)
	update.hash = manifest.Hash
	rt.mu.Unlock()

	inline := rt.takeInline()
	var fetch []string
	for _, chunkID := range manifest.Chunks {
		if !rt.chunkInstalled(chunkID) {
			continue
		}
		if c, ok := inline[chunkID]; ok {
			delete(inline, chunkID)
			rt.mergeInline(update, c)
			continue
		}
		fetch = append(fetch, chunkID)
	}
	for chunkID := range inline {
		rt.logger.Debug("Discarding inline chunk not in manifest", "chunk", chunkID)
	}

	if len(fetch) > 0 {
		chunks, err := transport.FetchChunks(ctx, rt.transport, fetch, hash)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			if err := rt.linkChunk(update, c); err != nil {
				return nil, err
			}
		}
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	return update.updated.slice(), nil
}

func (rt *Runtime) mergeInline(update *pendingUpdate, c *inlineChunk) {
	ids := make([]string, 0, len(c.modules))
	for id := range c.modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, id := range ids {
		update.set(id, c.modules[id])
		update.updated.add(id)
	}
	update.runtime = append(update.runtime, c.runtime...)
}

func (rt *Runtime) linkChunk(update *pendingUpdate, c *transport.Chunk) error {
	if rt.linker == nil && (len(c.Modules) > 0 || len(c.Runtime) > 0) {
		return fmt.Errorf("%w: chunk %s", ErrNoLinker, c.ID)
	}

	ids := make([]string, 0, len(c.Modules))
	for id := range c.Modules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	factories := make([]Factory, len(ids))
	for i, id := range ids {
		f, err := rt.linker.Link(id, c.Modules[id])
		if err != nil {
			return fmt.Errorf("link chunk %s: %w", c.ID, err)
		}
		factories[i] = f
	}
	callbacks := make([]RuntimeCallback, 0, len(c.Runtime))
	for _, name := range c.Runtime {
		cb, err := rt.linker.LinkRuntime(name)
		if err != nil {
			return fmt.Errorf("link chunk %s: %w", c.ID, err)
		}
		callbacks = append(callbacks, cb)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i, id := range ids {
		update.set(id, factories[i])
		update.updated.add(id)
	}
	update.runtime = append(update.runtime, callbacks...)
	return nil
}

// Apply applies the update prepared by Check or by invalidations. It is
// legal only from ready and returns the ids of all outdated modules.
func (rt *Runtime) Apply(ctx context.Context, opts *ApplyOptions) ([]string, error) {
	if st := rt.Status(); st != StatusReady {
		return nil, fmt.Errorf("%w: status is %s", ErrApplyNotReady, st)
	}
	return rt.internalApply(ctx, opts, false)
}

func (rt *Runtime) internalApply(ctx context.Context, opts *ApplyOptions, reentry bool) ([]string, error) {
	if opts == nil {
		opts = &ApplyOptions{}
	}
	cycle := rt.currentCycle()

	rt.foldInvalidated()
	rt.mu.Lock()
	update := rt.pending
	rt.pending = nil
	rt.mu.Unlock()
	if update == nil {
		update = newPendingUpdate()
	}

	plan, err := rt.planUpdate(cycle, update, opts)
	if err != nil {
		if reentry {
			return nil, rt.failCycle(ctx, cycle, err)
		}
		return nil, rt.abortCycle(ctx, cycle, err)
	}

	if !reentry {
		if err := rt.status.set(ctx, StatusDispose); err != nil {
			return nil, err
		}
	}
	report := &firstError{}
	rt.disposeOutdated(ctx, plan, report)

	if !reentry {
		if err := rt.status.set(ctx, StatusApply); err != nil {
			return nil, err
		}
	}
	outdated := rt.installUpdate(ctx, plan, report)
	if update.hash != "" {
		rt.setHash(update.hash)
	}

	if report.err != nil {
		return nil, rt.failCycle(ctx, cycle, report.err)
	}

	if rt.hasQueued() {
		rt.logger.Debug("Applying invalidations queued during apply", "cycle", cycle)
		if err := rt.status.set(ctx, StatusApply); err != nil {
			return nil, err
		}
		list, err := rt.internalApply(ctx, opts, true)
		if err != nil {
			return nil, err
		}
		seen := newOrderedIDs(list...)
		for _, id := range outdated {
			if seen.add(id) {
				list = append(list, id)
			}
		}
		return list, nil
	}

	rt.logger.Info("Hot update applied", "cycle", cycle, "outdated", outdated, "hash", rt.Hash())
	rt.emitUpdateApplied(ctx, cycle, outdated)
	_ = rt.status.set(ctx, StatusIdle)
	return outdated, nil
}

// abortCycle surfaces err through abort and resets to idle.
func (rt *Runtime) abortCycle(ctx context.Context, cycle string, err error) error {
	rt.logger.Warn("Hot update aborted", "cycle", cycle, "error", err)
	rt.emitUpdateAborted(ctx, cycle, err)
	_ = rt.status.set(ctx, StatusAbort)
	_ = rt.status.set(ctx, StatusIdle)
	return err
}

// failCycle surfaces err through fail and resets to idle.
func (rt *Runtime) failCycle(ctx context.Context, cycle string, err error) error {
	rt.logger.Error("Hot update failed", "cycle", cycle, "error", err)
	rt.emitUpdateFailed(ctx, cycle, err)
	_ = rt.status.set(ctx, StatusFail)
	_ = rt.status.set(ctx, StatusIdle)
	return err
}
