package vkforge

import (
	"errors"
	"fmt"
	"runtime"

	vk "github.com/vulkan-go/vulkan"
)

// Kind classifies the errors this module can return, per the error
// handling design: callers branch on Kind with errors.Is/errors.As rather
// than string-matching messages.
type Kind int

const (
	// KindOutOfMemory: no suballocator or dedicated path could satisfy a request.
	KindOutOfMemory Kind = iota
	// KindOversizedAllocation: request exceeds a hard device limit (max allocation size, etc).
	KindOversizedAllocation
	// KindInvalidState: caller violated a state-machine precondition.
	KindInvalidState
	// KindFeatureUnavailable: operation needs a capability the device doesn't report.
	KindFeatureUnavailable
	// KindUnderlyingApiFailure: a vk.Result came back non-Success.
	KindUnderlyingApiFailure
	// KindAspectMismatch: an image/subresource aspect doesn't match what the operation expects.
	KindAspectMismatch
)

func (k Kind) String() string {
	switch k {
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindOversizedAllocation:
		return "OversizedAllocation"
	case KindInvalidState:
		return "InvalidState"
	case KindFeatureUnavailable:
		return "FeatureUnavailable"
	case KindUnderlyingApiFailure:
		return "UnderlyingApiFailure"
	case KindAspectMismatch:
		return "AspectMismatch"
	default:
		return "Unknown"
	}
}

// Error is the single error type the module returns. Kind is what callers
// match on; Op and Frame exist for diagnostics, not control flow.
type Error struct {
	Kind  Kind
	Op    string
	Frame string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s (%s)", e.Op, e.Kind, e.Err, e.Frame)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Op, e.Kind, e.Frame)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, &Error{Kind: k}) match any *Error of Kind k,
// ignoring Op, Frame and Err, since Kind is not itself an error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

func callerFrame(skip int) string {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	name := "unknown"
	if fn != nil {
		name = fn.Name()
	}
	return fmt.Sprintf("%s:%d %s", file, line, name)
}

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Frame: callerFrame(2), Err: err}
}

func isError(ret vk.Result) bool {
	return ret != vk.Success
}

// newError wraps a non-Success vk.Result as a KindUnderlyingApiFailure.
// Returns nil on vk.Success.
func newError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	return &Error{
		Kind:  KindUnderlyingApiFailure,
		Op:    "vulkan",
		Frame: callerFrame(1),
		Err:   fmt.Errorf("vk.Result(%d)", ret),
	}
}

func orPanic(err error, finalizers ...func()) {
	if err != nil {
		for _, fn := range finalizers {
			fn()
		}
		panic(err)
	}
}

func checkErr(err *error) {
	if v := recover(); v != nil {
		if e, ok := v.(error); ok {
			*err = e
			return
		}
		*err = fmt.Errorf("%+v", v)
	}
}

// Fatal is a panic-on-unrecoverable helper, kept for the few setup paths
// (device/queue discovery) where there is no sane recovery.
func Fatal(err error) {
	if err != nil {
		panic(err)
	}
}

// NewError adapts a vk.Result into the typed Error for call sites
// outside this file that want the exported spelling.
func NewError(ret vk.Result) error {
	return newError(ret)
}
