package eval

import (
	"math"
	"math/rand"
	"strings"

	"github.com/schollz/collidertracker/internal/ast"
	"github.com/schollz/collidertracker/internal/music"
	"github.com/schollz/collidertracker/internal/value"
)

// evalSpecialAccess resolves a bare `$namespace.path` reference with no
// call, e.g. `$env.bpm`. Namespaces other than `$env` only expose callables.
func (ev *Evaluator) evalSpecialAccess(e ast.Expression) (value.Value, error) {
	if e.SpecialNS != "env" {
		return value.Null(), errAt(e.Span, "$%s requires a call", e.SpecialNS)
	}
	path := strings.Join(e.SpecialPath, ".")
	switch path {
	case "bpm":
		return value.Num(ev.Env.Bpm), nil
	case "beat", "position":
		return value.Num(ev.Env.Beat), nil
	case "seed":
		return value.Num(float64(ev.Env.Seed)), nil
	default:
		return value.Null(), errAt(e.Span, "unknown $env.%s", path)
	}
}

// dispatchSpecial evaluates a call against one of the reserved namespaces.
// Per spec §9's design note, `$mod`/`$easing`/`$curve` are resolved before
// `$math` whenever a member name would otherwise collide across namespaces;
// since each call already carries its own namespace prefix, no member name
// is looked up in more than one namespace.
func (ev *Evaluator) dispatchSpecial(special ast.Expression, args []value.Value) (value.Value, error) {
	path := strings.Join(special.SpecialPath, ".")
	switch special.SpecialNS {
	case "math":
		return evalMath(path, args, special.Span)
	case "easing":
		return evalEasing(path, args, special.Span)
	case "mod":
		return ev.evalMod(path, args, special.Span)
	case "curve":
		return ev.evalCurve(path, args, special.Span)
	default:
		return value.Null(), errAt(special.Span, "$%s is not callable here", special.SpecialNS)
	}
}

func arg(args []value.Value, i int) float64 {
	if i >= len(args) {
		return 0
	}
	return args[i].Number
}

func evalMath(name string, args []value.Value, span ast.Span) (value.Value, error) {
	switch name {
	case "sin":
		return value.Num(math.Sin(arg(args, 0))), nil
	case "cos":
		return value.Num(math.Cos(arg(args, 0))), nil
	case "tan":
		return value.Num(math.Tan(arg(args, 0))), nil
	case "abs":
		return value.Num(math.Abs(arg(args, 0))), nil
	case "min":
		return value.Num(math.Min(arg(args, 0), arg(args, 1))), nil
	case "max":
		return value.Num(math.Max(arg(args, 0), arg(args, 1))), nil
	case "pow":
		return value.Num(math.Pow(arg(args, 0), arg(args, 1))), nil
	case "log":
		return value.Num(math.Log(arg(args, 0))), nil
	case "sqrt":
		return value.Num(math.Sqrt(arg(args, 0))), nil
	case "random":
		seed := int64(arg(args, 0))
		r := rand.New(rand.NewSource(seed))
		return value.Num(r.Float64()), nil
	case "lerp":
		a, b, t := arg(args, 0), arg(args, 1), arg(args, 2)
		return value.Num(a + (b-a)*t), nil
	default:
		return value.Null(), errAt(span, "unknown $math.%s", name)
	}
}

// evalEasing implements the named easing functions, all f: [0,1] -> [0,1];
// the back and elastic curves, which overshoot, are clamped to that range.
func evalEasing(name string, args []value.Value, span ast.Span) (value.Value, error) {
	t := arg(args, 0)
	f, ok := easingFuncs[name]
	if !ok {
		return value.Null(), errAt(span, "unknown $easing.%s", name)
	}
	return value.Num(math.Max(0, math.Min(1, f(t)))), nil
}

var easingFuncs = map[string]func(float64) float64{
	"linear": func(t float64) float64 { return t },

	"easeInQuad":  func(t float64) float64 { return t * t },
	"easeOutQuad": func(t float64) float64 { return t * (2 - t) },
	"easeInOutQuad": func(t float64) float64 {
		if t < 0.5 {
			return 2 * t * t
		}
		return -1 + (4-2*t)*t
	},

	"easeInCubic":  func(t float64) float64 { return t * t * t },
	"easeOutCubic": func(t float64) float64 { s := t - 1; return s*s*s + 1 },
	"easeInOutCubic": func(t float64) float64 {
		if t < 0.5 {
			return 4 * t * t * t
		}
		s := 2*t - 2
		return 0.5*s*s*s + 1
	},

	"easeInQuart":  func(t float64) float64 { return t * t * t * t },
	"easeOutQuart": func(t float64) float64 { s := t - 1; return 1 - s*s*s*s },
	"easeInOutQuart": func(t float64) float64 {
		if t < 0.5 {
			return 8 * t * t * t * t
		}
		s := t - 1
		return 1 - 8*s*s*s*s
	},

	"easeInExpo": func(t float64) float64 {
		if t == 0 {
			return 0
		}
		return math.Pow(2, 10*(t-1))
	},
	"easeOutExpo": func(t float64) float64 {
		if t == 1 {
			return 1
		}
		return 1 - math.Pow(2, -10*t)
	},
	"easeInOutExpo": func(t float64) float64 {
		if t == 0 || t == 1 {
			return t
		}
		if t < 0.5 {
			return 0.5 * math.Pow(2, 20*t-10)
		}
		return 1 - 0.5*math.Pow(2, -20*t+10)
	},

	"easeInBack": func(t float64) float64 {
		const c1 = 1.70158
		return t * t * ((c1+1)*t - c1)
	},
	"easeOutBack": func(t float64) float64 {
		const c1 = 1.70158
		s := t - 1
		return 1 + s*s*((c1+1)*s+c1)
	},
	"easeInOutBack": func(t float64) float64 {
		const c1 = 1.70158
		const c2 = c1 * 1.525
		if t < 0.5 {
			return (math.Pow(2*t, 2) * ((c2+1)*2*t - c2)) / 2
		}
		return (math.Pow(2*t-2, 2)*((c2+1)*(t*2-2)+c2) + 2) / 2
	},

	"easeInElastic": func(t float64) float64 {
		if t == 0 || t == 1 {
			return t
		}
		const c4 = 2 * math.Pi / 3
		return -math.Pow(2, 10*t-10) * math.Sin((t*10-10.75)*c4)
	},
	"easeOutElastic": func(t float64) float64 {
		if t == 0 || t == 1 {
			return t
		}
		const c4 = 2 * math.Pi / 3
		return math.Pow(2, -10*t)*math.Sin((t*10-0.75)*c4) + 1
	},

	"easeOutBounce": easeOutBounce,
	"easeInBounce":  func(t float64) float64 { return 1 - easeOutBounce(1-t) },
}

func easeOutBounce(t float64) float64 {
	const n1 = 7.5625
	const d1 = 2.75
	switch {
	case t < 1/d1:
		return n1 * t * t
	case t < 2/d1:
		t -= 1.5 / d1
		return n1*t*t + 0.75
	case t < 2.5/d1:
		t -= 2.25 / d1
		return n1*t*t + 0.9375
	default:
		t -= 2.625 / d1
		return n1*t*t + 0.984375
	}
}

// evalMod implements `$mod.lfo.sine`, `$mod.lfo.tri`, `$mod.envelope`, and
// the supplemented `$mod.quantize` scale-quantizer (SPEC_FULL.md §3).
func (ev *Evaluator) evalMod(name string, args []value.Value, span ast.Span) (value.Value, error) {
	switch name {
	case "lfo.sine":
		rate := arg(args, 0)
		return value.Num(math.Sin(2 * math.Pi * rate * ev.Env.Beat)), nil
	case "lfo.tri":
		rate := arg(args, 0)
		phase := math.Mod(rate*ev.Env.Beat, 1)
		return value.Num(2*math.Abs(2*phase-1) - 1), nil
	case "envelope":
		a, d, s, r, t := arg(args, 0), arg(args, 1), arg(args, 2), arg(args, 3), arg(args, 4)
		return value.Num(adsrAt(a, d, s, r, t)), nil
	case "quantize":
		note := int(arg(args, 0))
		scale := "major"
		if len(args) > 1 {
			scale = args[1].String()
		}
		root := 0
		if len(args) > 2 {
			root = int(arg(args, 2))
		}
		return value.Num(float64(music.QuantizeToScale(note, scale, root))), nil
	default:
		return value.Null(), errAt(span, "unknown $mod.%s", name)
	}
}

// adsrAt evaluates a piecewise-linear ADSR envelope at time t (milliseconds)
// given attack/decay/release phase lengths in milliseconds and sustain
// level s in [0,1]. Release begins once the caller signals note-off, which
// this pure sampling form approximates by treating t beyond a+d as the
// sustain plateau (the audio engine drives true note-off timing in
// internal/dsp; this helper backs the `$mod.envelope` expression function).
func adsrAt(a, d, s, r, t float64) float64 {
	switch {
	case t < 0:
		return 0
	case t < a:
		if a == 0 {
			return 1
		}
		return t / a
	case t < a+d:
		if d == 0 {
			return s
		}
		return 1 - (1-s)*(t-a)/d
	default:
		_ = r
		return s
	}
}

// evalCurve implements the `$curve.*` shaping functions for expressions.
// internal/automation accepts the same curve names but computes its shapes
// with its own shape function.
func (ev *Evaluator) evalCurve(name string, args []value.Value, span ast.Span) (value.Value, error) {
	t := arg(args, 0)
	switch name {
	case "linear":
		return value.Num(t), nil
	case "easeIn":
		return value.Num(t * t), nil
	case "easeOut":
		return value.Num(t * (2 - t)), nil
	case "easeInOut":
		return evalEasing("easeInOutQuad", args, span)
	case "swing":
		amount := arg(args, 1)
		return value.Num(t + amount*math.Sin(math.Pi*t)*0.25), nil
	case "bounce":
		return value.Num(easeOutBounce(t)), nil
	case "elastic":
		return evalEasing("easeOutElastic", args, span)
	case "bezier":
		x1, y1, x2, y2 := arg(args, 1), arg(args, 2), arg(args, 3), arg(args, 4)
		return value.Num(cubicBezierY(t, x1, y1, x2, y2)), nil
	case "step":
		n := arg(args, 1)
		if n <= 1 {
			return value.Num(0), nil
		}
		return value.Num(math.Floor(t*n) / (n - 1)), nil
	case "random":
		idx := int64(arg(args, 1))
		r := rand.New(rand.NewSource(ev.Env.Seed + idx))
		return value.Num(r.Float64()), nil
	case "perlin":
		return value.Num(Perlin1D(t, ev.Env.Seed)), nil
	default:
		return value.Null(), errAt(span, "unknown $curve.%s", name)
	}
}

// cubicBezierY samples the y-coordinate of a cubic bezier easing curve
// (control points (0,0),(x1,y1),(x2,y2),(1,1)) at parameter t by a fixed
// number of Newton-Raphson iterations on x, the same approach CSS
// easing implementations use.
func cubicBezierY(t, x1, y1, x2, y2 float64) float64 {
	bez := func(t, p1, p2 float64) float64 {
		u := 1 - t
		return 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t
	}
	bezDeriv := func(t, p1, p2 float64) float64 {
		u := 1 - t
		return 3*u*u*p1 + 6*u*t*(p2-p1) + 3*t*t*(1-p2)
	}
	x := t
	for i := 0; i < 8; i++ {
		cx := bez(x, x1, x2) - t
		dx := bezDeriv(x, x1, x2)
		if math.Abs(dx) < 1e-6 {
			break
		}
		x -= cx / dx
	}
	return bez(x, y1, y2)
}
