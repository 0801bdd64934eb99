package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/BV-BRC/sheet-analyst/internal/chart"
	"github.com/BV-BRC/sheet-analyst/internal/table"
)

// session is one hardened runtime plus the host state its bindings use.
type session struct {
	vm      *goja.Runtime
	ctx     context.Context
	env     *Environment
	out     *capture
	objects map[*goja.Object]interface{}
	fig     *chart.Figure
	charts  []Chart
}

// Scripts run against a fresh runtime before any binding exists. A
// required script that fails aborts the session.
var hardening = []struct {
	src      string
	required bool
}{
	{`Object.defineProperty(Function.prototype, "constructor", {value: undefined, writable: false, configurable: false})`, true},
	{`Object.defineProperty(Object.getPrototypeOf(function*(){}), "constructor", {value: undefined, writable: false, configurable: false})`, false},
	{`Object.defineProperty(Object.getPrototypeOf(async function(){}), "constructor", {value: undefined, writable: false, configurable: false})`, false},
	{`if (!delete Object.prototype.__proto__) { throw new Error("__proto__ accessor could not be removed") }`, true},
}

// globalThis is itself a global, so the loop holds its own reference.
const pruneGlobals = `(function (keep) {
	var g = globalThis;
	var names = Object.getOwnPropertyNames(g);
	for (var i = 0; i < names.length; i++) {
		if (keep.indexOf(names[i]) < 0) {
			delete g[names[i]];
		}
	}
})`

func newSession(env *Environment) (*session, error) {
	vm := goja.New()
	vm.SetMaxCallStackSize(env.opts.MaxCallStack)

	s := &session{
		vm:      vm,
		env:     env,
		out:     newCapture(env.opts.MaxOutputBytes),
		objects: make(map[*goja.Object]interface{}),
	}
	if err := s.harden(); err != nil {
		return nil, err
	}
	if err := s.bind(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *session) harden() error {
	for _, h := range hardening {
		if _, err := s.vm.RunString(h.src); err != nil && h.required {
			return fmt.Errorf("sandbox: hardening failed: %w", err)
		}
	}
	fn, err := s.vm.RunString(pruneGlobals)
	if err != nil {
		return err
	}
	prune, ok := goja.AssertFunction(fn)
	if !ok {
		return errors.New("sandbox: global pruning script is not callable")
	}
	keep := make([]interface{}, len(keptGlobals))
	for i, name := range keptGlobals {
		keep[i] = name
	}
	_, err = prune(goja.Undefined(), s.vm.ToValue(keep))
	return err
}

// define installs a read-only global.
func (s *session) define(name string, v goja.Value) error {
	return s.vm.GlobalObject().DefineDataProperty(name, v, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

func (s *session) bind() error {
	prims := primitives(s)
	for _, name := range s.env.policy.Primitives() {
		if err := s.define(name, s.vm.ToValue(prims[name])); err != nil {
			return err
		}
	}
	for _, t := range s.env.tables {
		if err := s.define(t.Name, s.wrapTable(t)); err != nil {
			return err
		}
	}
	if s.env.policy.Plotting() {
		if err := s.define(nsPlt, s.namespace(nsPlt, pltFuncs(s))); err != nil {
			return err
		}
		if err := s.define(nsSns, s.namespace(nsSns, snsFuncs(s))); err != nil {
			return err
		}
	}
	return nil
}

// register tracks the host value behind a wrapper object.
func (s *session) register(obj *goja.Object, v interface{}) *goja.Object {
	_ = obj.SetPrototype(nil)
	s.objects[obj] = v
	return obj
}

// host returns the Go value behind a wrapper, if v is one.
func (s *session) host(v goja.Value) (interface{}, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	h, ok := s.objects[obj]
	return h, ok
}

func (s *session) wrapTable(t *table.Table) *goja.Object {
	o := &tableObject{s: s, t: t}
	return s.register(s.vm.NewDynamicObject(o), o)
}

func (s *session) wrapSeries(c *table.Series) *goja.Object {
	o := &seriesObject{s: s, c: c}
	return s.register(s.vm.NewDynamicObject(o), o)
}

func (s *session) wrapGroup(g *table.GroupBy, col string) *goja.Object {
	o := &groupObject{s: s, g: g, col: col}
	return s.register(s.vm.NewDynamicObject(o), o)
}

func (s *session) namespace(name string, funcs map[string]func(goja.FunctionCall) goja.Value) *goja.Object {
	o := &namespaceObject{s: s, name: name, funcs: funcs}
	return s.register(s.vm.NewDynamicObject(o), o)
}

// throw raises a script exception with the given error name.
func (s *session) throw(name, msg string) {
	e := s.vm.NewTypeError(msg)
	if name != "TypeError" {
		_ = e.Set("name", name)
	}
	panic(e)
}

// throwErr raises err as a script exception, naming it after its Go type.
func (s *session) throwErr(err error) {
	var ke *table.KeyError
	if errors.As(err, &ke) {
		s.throw(errKeyError, err.Error())
	}
	s.throw(errValueError, err.Error())
}

// call invokes a script callback, rethrowing its exception into the
// calling script. An interrupt is re-armed so it also stops the caller.
func (s *session) call(fn goja.Callable, args ...goja.Value) goja.Value {
	v, err := fn(goja.Undefined(), args...)
	if err != nil {
		var ex *goja.Exception
		if errors.As(err, &ex) {
			panic(ex.Value())
		}
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			s.vm.Interrupt(interrupted.Value())
		}
		panic(s.vm.NewGoError(err))
	}
	return v
}
