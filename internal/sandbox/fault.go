package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

// FaultKind classifies an execution failure.
type FaultKind string

const (
	FaultSyntax  FaultKind = "syntax_error"
	FaultName    FaultKind = "name_error"
	FaultType    FaultKind = "type_error"
	FaultKey     FaultKind = "key_error"
	FaultValue   FaultKind = "value_error"
	FaultRange   FaultKind = "range_error"
	FaultTimeout FaultKind = "timeout"
	FaultRuntime FaultKind = "runtime_error"
)

// Fault is returned when admitted code fails to parse or run. Code is the
// snapshot that was executed.
type Fault struct {
	Kind    FaultKind
	Message string
	Code    string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Error names thrown by host functions.
const (
	errKeyError   = "KeyError"
	errValueError = "ValueError"
)

var faultByName = map[string]FaultKind{
	"ReferenceError": FaultName,
	"TypeError":      FaultType,
	"SyntaxError":    FaultSyntax,
	"RangeError":     FaultRange,
	errKeyError:      FaultKey,
	errValueError:    FaultValue,
}

// toFault maps an interpreter error to a Fault.
func toFault(ctx context.Context, vm *goja.Runtime, err error, code string) *Fault {
	f := &Fault{Kind: FaultRuntime, Message: err.Error(), Code: code}

	// Host code that stops on an expired budget surfaces as an ordinary
	// error rather than an interrupt.
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) || ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			f.Message = "execution canceled"
			return f
		}
		f.Kind = FaultTimeout
		f.Message = "execution exceeded its time budget"
		return f
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		f.Kind = FaultRange
		f.Message = "maximum call stack size exceeded"
		return f
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		name, msg := describeThrown(vm, ex.Value())
		if kind, ok := faultByName[name]; ok {
			f.Kind = kind
		}
		if msg != "" {
			f.Message = msg
		}
		if name != "" && f.Kind == FaultRuntime && name != "Error" {
			f.Message = name + ": " + f.Message
		}
		return f
	}

	if strings.Contains(err.Error(), "call stack size exceeded") {
		f.Kind = FaultRange
		f.Message = "maximum call stack size exceeded"
	}
	return f
}

func describeThrown(vm *goja.Runtime, v goja.Value) (name, msg string) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", ""
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return "", v.String()
	}
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		name = n.String()
	}
	if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
		msg = m.String()
	}
	return name, msg
}

func syntaxFault(err error, code string) *Fault {
	return &Fault{Kind: FaultSyntax, Message: err.Error(), Code: code}
}
