package hotswap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbortError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		outcome  Outcome
		sentinel error
		message  string
	}{
		{
			name:     "self_declined",
			outcome:  SelfDeclined{Module: "leaf", Chain: []string{"leaf"}},
			sentinel: ErrSelfDeclined,
			message:  "update aborted because of self decline: leaf\nUpdate propagation: leaf",
		},
		{
			name:     "declined",
			outcome:  Declined{Module: "leaf", Parent: "a", Chain: []string{"leaf", "a"}},
			sentinel: ErrDeclined,
			message:  "update aborted because of declined dependency: leaf in a\nUpdate propagation: leaf -> a",
		},
		{
			name:     "unaccepted",
			outcome:  Unaccepted{Module: "root", Chain: []string{"leaf", "a", "root"}},
			sentinel: ErrUnaccepted,
			message:  "update aborted because module is not accepted: root\nUpdate propagation: leaf -> a -> root",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := &AbortError{Outcome: tt.outcome}
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.message, err.Error())
		})
	}
}

func TestCallbackError(t *testing.T) {
	t.Parallel()
	cause := errors.New("cause")

	err := &CallbackError{Kind: KindAcceptErrored, ModuleID: "a", DependencyID: "leaf", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "accept-errored in a (dependency leaf): cause", err.Error())

	err = &CallbackError{Kind: KindDisposeErrored, ModuleID: "leaf", Err: cause}
	assert.Equal(t, "dispose-errored in leaf: cause", err.Error())
}

func TestSafeCall(t *testing.T) {
	t.Parallel()
	cause := errors.New("cause")

	assert.NoError(t, safeCall(func() error { return nil }))
	assert.ErrorIs(t, safeCall(func() error { return cause }), cause)

	err := safeCall(func() error { panic(cause) })
	var panicErr *PanicError
	assert.ErrorAs(t, err, &panicErr)
	assert.ErrorIs(t, err, cause)
}
