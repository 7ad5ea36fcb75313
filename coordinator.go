package hotswap

import (
	"context"
	"sort"
)

// RuntimeCallback runs once per apply, after new factories are installed
// and before any accept callback. Update chunks use it to patch runtime
// level state.
type RuntimeCallback func(rt *Runtime) error

// pendingUpdate is the update collected for the current cycle. A nil
// factory marks a module removed by the update.
type pendingUpdate struct {
	order         []string
	modules       map[string]Factory
	runtime       []RuntimeCallback
	removedChunks []string
	hash          string
	updated       *orderedIDs
}

func newPendingUpdate() *pendingUpdate {
	return &pendingUpdate{
		modules: make(map[string]Factory),
		updated: newOrderedIDs(),
	}
}

func (p *pendingUpdate) set(id string, f Factory) {
	if _, ok := p.modules[id]; !ok {
		p.order = append(p.order, id)
	}
	p.modules[id] = f
}

func (p *pendingUpdate) setIfAbsent(id string, f Factory) {
	if _, ok := p.modules[id]; ok {
		return
	}
	p.set(id, f)
}

type selfAcceptItem struct {
	module  *Module
	onError SelfAcceptErrorHandler
}

// applyPlan is a validated batch: every member resolved Accepted or Disposed.
type applyPlan struct {
	cycle                string
	opts                 *ApplyOptions
	outdatedModules      *orderedIDs
	outdatedDependencies *dependencyMap
	applied              []string
	factories            map[string]Factory
	removed              idSet
	selfAccepted         []selfAcceptItem
	runtime              []RuntimeCallback
	removedChunks        []string
}

// firstError keeps the first error reported during an apply.
type firstError struct {
	err error
}

func (f *firstError) add(err error) {
	if f.err == nil {
		f.err = err
	}
}

// planUpdate resolves every module of the update. Any outcome other than
// Accepted or Disposed aborts the whole batch, unless ignored through opts,
// before anything is mutated.
func (rt *Runtime) planUpdate(cycle string, update *pendingUpdate, opts *ApplyOptions) (*applyPlan, error) {
	plan := &applyPlan{
		cycle:                cycle,
		opts:                 opts,
		outdatedModules:      newOrderedIDs(),
		outdatedDependencies: newDependencyMap(),
		factories:            make(map[string]Factory),
		removed:              make(idSet),
		runtime:              update.runtime,
		removedChunks:        update.removedChunks,
	}

	for _, id := range update.order {
		factory := update.modules[id]

		var outcome Outcome
		if factory != nil {
			outcome = Resolve(rt.registry, id)
		} else {
			outcome = Disposed{Module: id}
		}

		switch o := outcome.(type) {
		case SelfDeclined:
			opts.declined(o)
			if !opts.IgnoreDeclined {
				return nil, &AbortError{Outcome: o}
			}
		case Declined:
			opts.declined(o)
			if !opts.IgnoreDeclined {
				return nil, &AbortError{Outcome: o}
			}
		case Unaccepted:
			opts.unaccepted(o)
			if !opts.IgnoreUnaccepted {
				return nil, &AbortError{Outcome: o}
			}
		case Accepted:
			opts.accepted(o)
			plan.applied = append(plan.applied, id)
			plan.factories[id] = factory
			for _, outdated := range o.OutdatedModules {
				plan.outdatedModules.add(outdated)
			}
			parents := make([]string, 0, len(o.OutdatedDependencies))
			for parent := range o.OutdatedDependencies {
				parents = append(parents, parent)
			}
			sort.Strings(parents)
			for _, parent := range parents {
				plan.outdatedDependencies.add(parent, o.OutdatedDependencies[parent]...)
			}
		case Disposed:
			opts.disposed(o)
			plan.outdatedModules.add(o.Module)
			plan.applied = append(plan.applied, id)
			plan.factories[id] = rt.removedFactory(id)
			plan.removed.add(id)
		}
	}

	for _, id := range plan.outdatedModules.list {
		m, ok := rt.registry.Get(id)
		if !ok || m.Hot == nil {
			continue
		}
		if (m.Hot.isSelfAccepted() || m.Hot.IsMain()) && !plan.removed.has(id) && !m.Hot.isSelfInvalidated() {
			plan.selfAccepted = append(plan.selfAccepted, selfAcceptItem{
				module:  m,
				onError: m.Hot.selfAcceptErrorHandler(),
			})
		}
	}

	return plan, nil
}

// disposeOutdated tears down outdated instances in reverse dependency order.
// Each record leaves the lookup before its dispose handlers run.
func (rt *Runtime) disposeOutdated(ctx context.Context, plan *applyPlan, report *firstError) {
	rt.uninstallChunks(plan.removedChunks)

	queue := plan.outdatedModules.slice()
	for len(queue) > 0 {
		id := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		m, ok := rt.registry.Get(id)
		if !ok {
			continue
		}
		rt.registry.evict(id)

		data := make(map[string]any)
		if m.Hot != nil {
			for _, handler := range m.Hot.disposeHandlerList() {
				if err := safeCall(func() error { return handler(data) }); err != nil {
					rt.routeCallbackError(ctx, plan, report, ErrorEvent{Kind: KindDisposeErrored, ModuleID: id, Err: err})
				}
			}
			m.Hot.deactivate()
		}
		rt.setModuleData(id, data)

		plan.outdatedDependencies.remove(id)

		for _, childID := range m.Children() {
			if child, ok := rt.registry.Get(childID); ok {
				child.removeParent(id)
			}
		}
		rt.emitModuleDisposed(ctx, plan.cycle, id)
	}

	for _, parentID := range plan.outdatedDependencies.parents() {
		parent, ok := rt.registry.Get(parentID)
		if !ok {
			continue
		}
		for _, dep := range plan.outdatedDependencies.get(parentID) {
			parent.removeChild(dep)
		}
	}
}

// installUpdate swaps in the new factories, runs runtime callbacks, then
// the accept callbacks of every accepting parent and finally re-executes
// self-accepted modules. It returns the outdated module ids.
func (rt *Runtime) installUpdate(ctx context.Context, plan *applyPlan, report *firstError) []string {
	for _, id := range plan.applied {
		rt.registry.setFactory(id, plan.factories[id])
	}

	for _, callback := range plan.runtime {
		if err := safeCall(func() error { return callback(rt) }); err != nil {
			rt.routeCallbackError(ctx, plan, report, ErrorEvent{Kind: KindRuntimeErrored, Err: err})
		}
	}

	for _, parentID := range plan.outdatedDependencies.parents() {
		parent, ok := rt.registry.Get(parentID)
		if !ok || parent.Hot == nil {
			continue
		}
		deps := plan.outdatedDependencies.get(parentID)

		var (
			registrations []*acceptRegistration
			dependencies  []string
		)
		seen := make(map[*acceptRegistration]struct{})
		for _, dep := range deps {
			reg := parent.Hot.acceptRegistration(dep)
			if reg == nil {
				continue
			}
			if _, dup := seen[reg]; dup {
				continue
			}
			seen[reg] = struct{}{}
			registrations = append(registrations, reg)
			dependencies = append(dependencies, dep)
		}

		for i, reg := range registrations {
			err := safeCall(func() error { return reg.callback(deps) })
			if err == nil {
				continue
			}
			if reg.onError != nil {
				info := AcceptErrorInfo{ModuleID: parentID, DependencyID: dependencies[i]}
				if err2 := safeCall(func() error { return reg.onError(err, info) }); err2 != nil {
					rt.routeCallbackError(ctx, plan, report, ErrorEvent{
						Kind:         KindAcceptErrorHandlerErrored,
						ModuleID:     parentID,
						DependencyID: dependencies[i],
						Err:          err2,
						OriginalErr:  err,
					})
				}
				continue
			}
			rt.routeCallbackError(ctx, plan, report, ErrorEvent{
				Kind:         KindAcceptErrored,
				ModuleID:     parentID,
				DependencyID: dependencies[i],
				Err:          err,
			})
		}
	}

	for _, item := range plan.selfAccepted {
		id := item.module.ID
		err := safeCall(func() error { return rt.requireSelf(item.module) })
		if err == nil {
			continue
		}
		if item.onError != nil {
			current, _ := rt.registry.Get(id)
			info := SelfAcceptErrorInfo{ModuleID: id, Module: current}
			if err2 := safeCall(func() error { return item.onError(err, info) }); err2 != nil {
				rt.routeCallbackError(ctx, plan, report, ErrorEvent{
					Kind:        KindSelfAcceptErrorHandlerErrored,
					ModuleID:    id,
					Err:         err2,
					OriginalErr: err,
				})
			}
			continue
		}
		rt.routeCallbackError(ctx, plan, report, ErrorEvent{Kind: KindSelfAcceptErrored, ModuleID: id, Err: err})
	}

	return plan.outdatedModules.slice()
}

// routeCallbackError hands a callback error to the apply observers and the
// runtime error hook, then records it for the cycle unless ignored.
func (rt *Runtime) routeCallbackError(ctx context.Context, plan *applyPlan, report *firstError, event ErrorEvent) {
	plan.opts.errored(event)

	cbErr := &CallbackError{
		Kind:         event.Kind,
		ModuleID:     event.ModuleID,
		DependencyID: event.DependencyID,
		Err:          event.Err,
	}
	rt.logger.Error("Hot update callback failed", "cycle", plan.cycle, "kind", event.Kind, "module", event.ModuleID, "error", event.Err)
	rt.hookError(cbErr)
	rt.emitModuleErrored(ctx, plan.cycle, event)

	if plan.opts.IgnoreErrored {
		return
	}
	report.add(cbErr)
	if event.OriginalErr != nil {
		report.add(event.OriginalErr)
	}
}
