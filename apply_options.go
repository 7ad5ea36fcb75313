package hotswap

// ApplyOptions tune how an apply reacts to resolver outcomes and callback
// errors. The On* observers are for embedding tooling; the algorithm does
// not depend on them.
type ApplyOptions struct {
	// IgnoreDeclined applies the rest of the batch when a module is
	// declined instead of aborting.
	IgnoreDeclined bool
	// IgnoreUnaccepted applies the rest of the batch when propagation
	// reaches an unaccepting root instead of aborting.
	IgnoreUnaccepted bool
	// IgnoreErrored keeps callback errors out of the cycle result. They
	// are still passed to OnErrored and the runtime error hook.
	IgnoreErrored bool

	OnDeclined   func(outcome Outcome)
	OnUnaccepted func(outcome Unaccepted)
	OnAccepted   func(outcome Accepted)
	OnDisposed   func(outcome Disposed)
	OnErrored    func(event ErrorEvent)
}

// ErrorEvent describes a callback error observed during an apply.
type ErrorEvent struct {
	Kind         ErrorKind
	ModuleID     string
	DependencyID string
	Err          error
	// OriginalErr is set when an error handler itself failed; it holds the
	// error the handler was given.
	OriginalErr error
}

func (o *ApplyOptions) declined(outcome Outcome) {
	if o.OnDeclined != nil {
		o.OnDeclined(outcome)
	}
}

func (o *ApplyOptions) unaccepted(outcome Unaccepted) {
	if o.OnUnaccepted != nil {
		o.OnUnaccepted(outcome)
	}
}

func (o *ApplyOptions) accepted(outcome Accepted) {
	if o.OnAccepted != nil {
		o.OnAccepted(outcome)
	}
}

func (o *ApplyOptions) disposed(outcome Disposed) {
	if o.OnDisposed != nil {
		o.OnDisposed(outcome)
	}
}

func (o *ApplyOptions) errored(event ErrorEvent) {
	if o.OnErrored != nil {
		o.OnErrored(event)
	}
}
