// Package value implements the tagged Value union described in spec §3
// (Data Model) along with the scope stack used by the evaluator and
// scheduler.
package value

import (
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the active variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindBoolean
	KindDuration
	KindIdentifier
	KindSample
	KindArray
	KindMap
	KindBlock
	KindCallable
)

// DurKind distinguishes the three DurSpec forms from spec §3.
type DurKind int

const (
	DurMillis DurKind = iota
	DurBeat
	DurAuto
)

// DurSpec is a duration literal: either milliseconds, a beat fraction
// (num/den), or "auto" (the natural length of the triggered source).
type DurSpec struct {
	Kind DurKind
	Ms   float64
	Num  float64
	Den  float64
}

// Beats converts a DurSpec to a beat count given the tempo in effect. Auto
// durations cannot be resolved here; callers must special-case DurAuto.
func (d DurSpec) Beats(bpm float64) float64 {
	switch d.Kind {
	case DurBeat:
		if d.Den == 0 {
			return 0
		}
		return d.Num / d.Den
	case DurMillis:
		return (d.Ms / 1000.0) * (bpm / 60.0)
	default:
		return 0
	}
}

// MapEntry preserves insertion order for Value maps (JSON-object-like).
type MapEntry struct {
	Key   string
	Value Value
}

// Value is the tagged union every expression evaluates to.
type Value struct {
	Kind    Kind
	Number  float64
	Str     string
	Boolean bool
	Dur     DurSpec
	Array   []Value
	Map     []MapEntry
	Callable *Callable
}

// Callable is a bound user-defined function value: `fn name(args): body`.
type Callable struct {
	Name   string
	Params []string
	Body   any // []*ast.Statement, typed loosely to avoid an import cycle with ast
	// Closure is the defining scope itself (shared, not copied); the
	// scheduler snapshots it when the function is called.
	Closure *Scope
}

func Null() Value                 { return Value{Kind: KindNull} }
func Num(n float64) Value         { return Value{Kind: KindNumber, Number: n} }
func Str(s string) Value          { return Value{Kind: KindString, Str: s} }
func Bool(b bool) Value           { return Value{Kind: KindBoolean, Boolean: b} }
func Ident(s string) Value        { return Value{Kind: KindIdentifier, Str: s} }
func Sample(uri string) Value     { return Value{Kind: KindSample, Str: uri} }
func Dur(d DurSpec) Value         { return Value{Kind: KindDuration, Dur: d} }
func Arr(vs []Value) Value        { return Value{Kind: KindArray, Array: vs} }
func Mp(entries []MapEntry) Value { return Value{Kind: KindMap, Map: entries} }
func Fn(c *Callable) Value        { return Value{Kind: KindCallable, Callable: c} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Truthy implements the language's notion of truthiness for if/while
// predicates: zero number, empty string, false boolean, null, and empty
// array/map are falsy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindNumber:
		return v.Number != 0
	case KindString:
		return v.Str != ""
	case KindBoolean:
		return v.Boolean
	case KindArray:
		return len(v.Array) > 0
	case KindMap:
		return len(v.Map) > 0
	default:
		return true
	}
}

// MapGet looks up a key in a Value map, preserving insertion-order semantics
// for iteration elsewhere while still supporting O(n) lookup (maps here are
// small parameter bags, not hot-path data structures).
func (v Value) MapGet(key string) (Value, bool) {
	for _, e := range v.Map {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// String renders a Value the way string-concatenation stringifies the
// non-String operand: numbers use the shortest round-trip form, booleans
// print true/false, maps/arrays render JSON-like.
func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindBoolean:
		if v.Boolean {
			return "true"
		}
		return "false"
	case KindIdentifier:
		return v.Str
	case KindSample:
		return v.Str
	case KindDuration:
		switch v.Dur.Kind {
		case DurAuto:
			return "auto"
		case DurBeat:
			return fmt.Sprintf("%g/%g", v.Dur.Num, v.Dur.Den)
		default:
			return fmt.Sprintf("%gms", v.Dur.Ms)
		}
	case KindArray:
		s := "["
		for i, e := range v.Array {
			if i > 0 {
				s += ","
			}
			s += e.String()
		}
		return s + "]"
	case KindMap:
		keys := make([]string, len(v.Map))
		for i, e := range v.Map {
			keys[i] = e.Key
		}
		sort.Strings(keys) // stable textual form only; iteration order elsewhere uses v.Map directly
		s := "{"
		for i, k := range keys {
			if i > 0 {
				s += ","
			}
			ev, _ := v.MapGet(k)
			s += k + ":" + ev.String()
		}
		return s + "}"
	case KindCallable:
		return "<fn " + v.Callable.Name + ">"
	default:
		return ""
	}
}

// TypeName returns a human-readable type name for error messages.
func (v Value) TypeName() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBoolean:
		return "boolean"
	case KindDuration:
		return "duration"
	case KindIdentifier:
		return "identifier"
	case KindSample:
		return "sample"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindBlock:
		return "block"
	case KindCallable:
		return "function"
	default:
		return "unknown"
	}
}
