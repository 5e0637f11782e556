// Package eval implements C4: expression and non-scheduling statement
// evaluation over the AST produced by internal/parser, maintaining scoped
// bindings via internal/value.Scope. Scheduling statements (sleep, trigger,
// loop, spawn, ...) are driven by internal/schedule, which calls back into
// this package only to evaluate expressions and run user-defined functions.
package eval

import (
	"fmt"

	"github.com/schollz/collidertracker/internal/ast"
	"github.com/schollz/collidertracker/internal/value"
)

// maxCallDepth guards against unbounded recursion through $math-driven
// self-reference or user-defined functions, matching spec §4.4.
const maxCallDepth = 256

// Env carries the render-time quantities exposed to `$env`. The scheduler
// updates Beat as its cursor advances; Bpm changes on `tempo`/`bpm`.
type Env struct {
	Bpm   float64
	Beat  float64
	Seed  int64
}

// Evaluator walks expressions against a Scope, resolving `$env`/`$math`/
// `$easing`/`$mod`/`$curve` namespaces and user-defined function calls.
type Evaluator struct {
	Scope *value.Scope
	Env   *Env
	depth int
}

// New creates an Evaluator sharing scope and env with its caller (normally
// internal/schedule, which owns both for the duration of one render).
func New(scope *value.Scope, env *Env) *Evaluator {
	return &Evaluator{Scope: scope, Env: env}
}

// EvalError carries a source span alongside the message, per spec §7.
type EvalError struct {
	Line, Col int
	Msg       string
}

func (e *EvalError) Error() string { return e.Msg }

func errAt(span ast.Span, format string, args ...any) error {
	return &EvalError{Line: span.Line, Col: span.Column, Msg: fmt.Sprintf(format, args...)}
}

// Eval evaluates an expression to a Value.
func (ev *Evaluator) Eval(e ast.Expression) (value.Value, error) {
	switch e.Kind {
	case ast.ExprNumber:
		return value.Num(e.Number), nil
	case ast.ExprString:
		return value.Str(e.Str), nil
	case ast.ExprBoolean:
		return value.Bool(e.Boolean), nil
	case ast.ExprDuration:
		if e.IsAuto {
			return value.Dur(value.DurSpec{Kind: value.DurAuto}), nil
		}
		if e.DurDen != 0 {
			return value.Dur(value.DurSpec{Kind: value.DurBeat, Num: e.DurNum, Den: e.DurDen}), nil
		}
		return value.Dur(value.DurSpec{Kind: value.DurMillis, Ms: e.DurMs}), nil
	case ast.ExprIdentifier:
		v, ok := ev.Scope.Get(e.Name)
		if !ok {
			return value.Null(), errAt(e.Span, "undefined identifier %q", e.Name)
		}
		return v, nil
	case ast.ExprArray:
		elems := make([]value.Value, len(e.Elements))
		for i, el := range e.Elements {
			v, err := ev.Eval(el)
			if err != nil {
				return value.Null(), err
			}
			elems[i] = v
		}
		return value.Arr(elems), nil
	case ast.ExprRange:
		lo, err := ev.Eval(*e.RangeLo)
		if err != nil {
			return value.Null(), err
		}
		hi, err := ev.Eval(*e.RangeHi)
		if err != nil {
			return value.Null(), err
		}
		var elems []value.Value
		for n := lo.Number; n <= hi.Number; n++ {
			elems = append(elems, value.Num(n))
		}
		return value.Arr(elems), nil
	case ast.ExprMap:
		entries := make([]value.MapEntry, len(e.MapKeys))
		for i, k := range e.MapKeys {
			v, err := ev.Eval(e.MapVals[i])
			if err != nil {
				return value.Null(), err
			}
			entries[i] = value.MapEntry{Key: k, Value: v}
		}
		return value.Mp(entries), nil
	case ast.ExprUnary:
		r, err := ev.Eval(*e.Right)
		if err != nil {
			return value.Null(), err
		}
		if e.Op == "-" {
			return value.Num(-r.Number), nil
		}
		return r, nil
	case ast.ExprBinary:
		return ev.evalBinary(e)
	case ast.ExprIndex:
		return ev.evalIndex(e)
	case ast.ExprField:
		return ev.evalField(e)
	case ast.ExprCall:
		return ev.evalCall(e)
	case ast.ExprSpecial:
		// A bare special reference with no call, e.g. `$env.bpm`.
		return ev.evalSpecialAccess(e)
	default:
		return value.Null(), errAt(e.Span, "unhandled expression kind")
	}
}

func (ev *Evaluator) evalBinary(e ast.Expression) (value.Value, error) {
	l, err := ev.Eval(*e.Left)
	if err != nil {
		return value.Null(), err
	}
	r, err := ev.Eval(*e.Right)
	if err != nil {
		return value.Null(), err
	}

	// String concatenation stringifies the non-string operand.
	if e.Op == "+" && (l.Kind == value.KindString || r.Kind == value.KindString) {
		return value.Str(l.String() + r.String()), nil
	}

	switch e.Op {
	case "+":
		return value.Num(l.Number + r.Number), nil
	case "-":
		return value.Num(l.Number - r.Number), nil
	case "*":
		return value.Num(l.Number * r.Number), nil
	case "/":
		if r.Number == 0 {
			return value.Null(), errAt(e.Span, "division by zero")
		}
		return value.Num(l.Number / r.Number), nil
	case "%":
		if r.Number == 0 {
			return value.Null(), errAt(e.Span, "division by zero")
		}
		return value.Num(float64(int64(l.Number) % int64(r.Number))), nil
	case "==":
		return value.Bool(valuesEqual(l, r)), nil
	case "!=":
		return value.Bool(!valuesEqual(l, r)), nil
	case "<":
		return value.Bool(l.Number < r.Number), nil
	case "<=":
		return value.Bool(l.Number <= r.Number), nil
	case ">":
		return value.Bool(l.Number > r.Number), nil
	case ">=":
		return value.Bool(l.Number >= r.Number), nil
	default:
		return value.Null(), errAt(e.Span, "unknown operator %q", e.Op)
	}
}

func valuesEqual(l, r value.Value) bool {
	if l.Kind != r.Kind {
		return false
	}
	switch l.Kind {
	case value.KindNumber:
		return l.Number == r.Number
	case value.KindString, value.KindIdentifier, value.KindSample:
		return l.Str == r.Str
	case value.KindBoolean:
		return l.Boolean == r.Boolean
	case value.KindNull:
		return true
	default:
		return l.String() == r.String()
	}
}

func (ev *Evaluator) evalIndex(e ast.Expression) (value.Value, error) {
	t, err := ev.Eval(*e.Target)
	if err != nil {
		return value.Null(), err
	}
	idx, err := ev.Eval(*e.Index)
	if err != nil {
		return value.Null(), err
	}
	switch t.Kind {
	case value.KindArray:
		i := int(idx.Number)
		if i < 0 || i >= len(t.Array) {
			return value.Null(), errAt(e.Span, "array index %d out of range", i)
		}
		return t.Array[i], nil
	case value.KindMap:
		v, ok := t.MapGet(idx.String())
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	default:
		return value.Null(), errAt(e.Span, "cannot index a %s", t.TypeName())
	}
}

func (ev *Evaluator) evalField(e ast.Expression) (value.Value, error) {
	t, err := ev.Eval(*e.Target)
	if err != nil {
		return value.Null(), err
	}
	if t.Kind != value.KindMap {
		return value.Null(), errAt(e.Span, "cannot access field %q on a %s", e.Name, t.TypeName())
	}
	v, ok := t.MapGet(e.Name)
	if !ok {
		return value.Null(), nil
	}
	return v, nil
}

// evalCall resolves both special-namespace calls (`$math.sin(x)`) and
// user-defined function calls bound via `fn`.
func (ev *Evaluator) evalCall(e ast.Expression) (value.Value, error) {
	if e.Callee.Kind == ast.ExprSpecial {
		args, err := ev.evalArgs(e.Args)
		if err != nil {
			return value.Null(), err
		}
		return ev.dispatchSpecial(*e.Callee, args)
	}
	if e.Callee.Kind == ast.ExprIdentifier && e.Callee.Name == "synth" {
		// `synth <waveform>` is handled by the parser as a call with one
		// identifier arg; evaluated as a Map value describing the synth.
		if len(e.Args) != 1 {
			return value.Null(), errAt(e.Span, "synth expects one waveform argument")
		}
		return value.Mp([]value.MapEntry{
			{Key: "__synth__", Value: value.Bool(true)},
			{Key: "waveform", Value: value.Str(e.Args[0].Name)},
		}), nil
	}
	callee, err := ev.Eval(*e.Callee)
	if err != nil {
		return value.Null(), err
	}
	if callee.Kind != value.KindCallable {
		return value.Null(), errAt(e.Span, "value is not callable")
	}
	args, err := ev.evalArgs(e.Args)
	if err != nil {
		return value.Null(), err
	}
	return ev.Call(callee.Callable, args, e.Span)
}

func (ev *Evaluator) evalArgs(exprs []ast.Expression) ([]value.Value, error) {
	args := make([]value.Value, len(exprs))
	for i, a := range exprs {
		v, err := ev.Eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// Call checks a user-defined function call without running its body: it
// enforces the recursion depth guard and the argument count, then returns
// Null. Binding parameters, executing the body and collecting the `return`
// value happen in internal/schedule (Scheduler.callFunction), which owns
// statement execution.
func (ev *Evaluator) Call(c *value.Callable, args []value.Value, span ast.Span) (value.Value, error) {
	ev.depth++
	defer func() { ev.depth-- }()
	if ev.depth > maxCallDepth {
		return value.Null(), errAt(span, "recursion depth exceeded")
	}
	if len(args) != len(c.Params) {
		return value.Null(), errAt(span, "function %q expects %d arguments, got %d", c.Name, len(c.Params), len(args))
	}
	// Bound by internal/schedule, which knows how to execute c.Body
	// (an []*ast.Statement under the hood) and collect a return value.
	return value.Null(), nil
}
