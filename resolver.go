package hotswap

// Outcome is the result of resolving one changed module against the live
// graph. It is one of Accepted, SelfDeclined, Declined, Unaccepted or
// Disposed.
type Outcome interface {
	// ModuleID returns the module the outcome is about.
	ModuleID() string
	isOutcome()
}

// Accepted means the change is contained. OutdatedModules lists the changed
// module followed by every ancestor that must be replaced with it;
// OutdatedDependencies maps each accepting parent to the dependencies whose
// accept callbacks it must run.
type Accepted struct {
	Module               string
	OutdatedModules      []string
	OutdatedDependencies map[string][]string
}

// SelfDeclined means a module on the propagation path declined updates to itself.
type SelfDeclined struct {
	Module string
	Chain  []string
}

// Declined means Parent explicitly declined updates of Module.
type Declined struct {
	Module string
	Parent string
	Chain  []string
}

// Unaccepted means propagation reached a root that does not accept itself.
type Unaccepted struct {
	Module string
	Chain  []string
}

// Disposed means the module was removed by the update.
type Disposed struct {
	Module string
}

func (o Accepted) ModuleID() string     { return o.Module }
func (o SelfDeclined) ModuleID() string { return o.Module }
func (o Declined) ModuleID() string     { return o.Module }
func (o Unaccepted) ModuleID() string   { return o.Module }
func (o Disposed) ModuleID() string     { return o.Module }

func (Accepted) isOutcome()     {}
func (SelfDeclined) isOutcome() {}
func (Declined) isOutcome()     {}
func (Unaccepted) isOutcome()   {}
func (Disposed) isOutcome()     {}

type resolveItem struct {
	id    string
	chain []string
}

// Resolve computes the effect of a change to id on the modules loaded in
// reg. The traversal is depth first over parent edges. Per visited module
// the checks run in a fixed order: absent or self-accepted (and not
// invalidated) modules contain the change; a self-declined module aborts;
// a main module aborts as unaccepted; otherwise every parent is examined
// for decline, already-outdated, accept and finally propagation.
func Resolve(reg *Registry, id string) Outcome {
	outdatedModules := newOrderedIDs(id)
	outdatedDependencies := newDependencyMap()
	stack := []resolveItem{{id: id, chain: []string{id}}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		m, ok := reg.Get(item.id)
		if !ok || m.Hot == nil {
			continue
		}
		if m.Hot.isSelfAccepted() && !m.Hot.isSelfInvalidated() {
			continue
		}
		if m.Hot.isSelfDeclined() {
			return SelfDeclined{Module: item.id, Chain: item.chain}
		}
		if m.Hot.IsMain() {
			return Unaccepted{Module: item.id, Chain: item.chain}
		}

		for _, parentID := range m.Parents() {
			parent, ok := reg.Get(parentID)
			if !ok || parent.Hot == nil {
				continue
			}
			if parent.Hot.declines(item.id) {
				return Declined{
					Module: item.id,
					Parent: parentID,
					Chain:  extendChain(item.chain, parentID),
				}
			}
			if outdatedModules.has(parentID) {
				continue
			}
			if parent.Hot.accepts(item.id) {
				outdatedDependencies.add(parentID, item.id)
				continue
			}
			outdatedDependencies.remove(parentID)
			outdatedModules.add(parentID)
			stack = append(stack, resolveItem{id: parentID, chain: extendChain(item.chain, parentID)})
		}
	}

	return Accepted{
		Module:               id,
		OutdatedModules:      outdatedModules.slice(),
		OutdatedDependencies: outdatedDependencies.toMap(),
	}
}

func extendChain(chain []string, id string) []string {
	out := make([]string, len(chain), len(chain)+1)
	copy(out, chain)
	return append(out, id)
}
