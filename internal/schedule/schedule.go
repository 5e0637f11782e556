package schedule

import (
	"sort"
	"strings"

	"github.com/schollz/collidertracker/internal/ast"
	"github.com/schollz/collidertracker/internal/automation"
	"github.com/schollz/collidertracker/internal/diag"
	"github.com/schollz/collidertracker/internal/dsp"
	"github.com/schollz/collidertracker/internal/eval"
	"github.com/schollz/collidertracker/internal/music"
	"github.com/schollz/collidertracker/internal/resolve"
	"github.com/schollz/collidertracker/internal/sampleprovider"
	"github.com/schollz/collidertracker/internal/value"
)

// maxFnDepth bounds user-function recursion, mirroring eval's call-depth
// guard (spec §4.4); schedule owns function-body execution so it enforces
// the limit itself rather than delegating to eval.Call.
const maxFnDepth = 256

// defaultLoopCapBeats bounds an unbounded `loop:` in the absence of an
// explicit render-duration cap (spec §4.5 failure semantics).
const defaultLoopCapBeats = 256.0

// defaultBarBeats is the bar length `pattern` spreads its steps across.
const defaultBarBeats = 4.0

// Options configures one Schedule call.
type Options struct {
	DefaultBpm    float64
	Seed          int64
	LoopCapBeats  float64 // 0 -> defaultLoopCapBeats
}

// TempoChange records a `tempo` statement's effect on the piecewise-constant
// global tempo (spec §4.5/§7): bpm holds from AtBeat until the next change.
type TempoChange struct {
	AtBeat float64
	Bpm    float64
}

// Scheduler drives C5: it walks a resolved module's statements, evaluating
// expressions via internal/eval and emitting a totally ordered EventStream.
type Scheduler struct {
	provider *sampleprovider.Provider
	diag     *diag.Log
	opts     Options

	events      EventStream
	seq         int
	laneBirths  int
	bpm         float64

	groups       map[string]*ast.Statement
	patterns     map[string]*ast.Statement
	moduleScopes map[string]*value.Scope
	banks        map[string]*resolve.Bank // alias -> bank, across all modules touched this render

	globalAutomations map[string]*automation.Automation
	tempoChanges      []TempoChange
}

// New creates a Scheduler. provider may be nil; an `auto` sample duration
// then falls back to one beat without a warning. A sample the provider
// cannot resolve also falls back to one beat, with a diagnostic warning
// (spec §4.7's "missing sample -> silence, warn", generalized to the
// scheduling phase where the duration is first needed).
func New(provider *sampleprovider.Provider, log *diag.Log, opts Options) *Scheduler {
	if opts.LoopCapBeats <= 0 {
		opts.LoopCapBeats = defaultLoopCapBeats
	}
	if opts.DefaultBpm <= 0 {
		opts.DefaultBpm = 120
	}
	return &Scheduler{
		provider:          provider,
		diag:              log,
		opts:              opts,
		bpm:               opts.DefaultBpm,
		groups:            make(map[string]*ast.Statement),
		patterns:          make(map[string]*ast.Statement),
		moduleScopes:      make(map[string]*value.Scope),
		banks:             make(map[string]*resolve.Bank),
		globalAutomations: make(map[string]*automation.Automation),
		tempoChanges:      []TempoChange{{AtBeat: 0, Bpm: opts.DefaultBpm}},
	}
}

// TempoChanges returns the piecewise-constant tempo timeline recorded during
// Schedule, sorted ascending by AtBeat, for internal/render's beat->seconds
// conversion (spec §4.7/§7's single-bpm example generalizes to a timeline).
func (s *Scheduler) TempoChanges() []TempoChange {
	sorted := append([]TempoChange{}, s.tempoChanges...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AtBeat < sorted[j].AtBeat })
	return sorted
}

// lane is a logical, cooperatively-interleaved execution thread (spec §5):
// its cursor is a beat position, not an OS thread.
type lane struct {
	sched  *Scheduler
	scope  *value.Scope
	ev     *eval.Evaluator
	cursor float64
	birth  int
	depth  int

	// noteAutomations are Automations registered by an enclosing
	// `automate ... mode note:` block, active only while its body executes
	// (spec §4.5).
	noteAutomations []*automation.Automation
}

func (s *Scheduler) newLane(scope *value.Scope, cursor float64) *lane {
	s.laneBirths++
	env := &eval.Env{Bpm: s.bpm, Beat: cursor, Seed: s.opts.Seed}
	return &lane{sched: s, scope: scope, ev: eval.New(scope, env), cursor: cursor, birth: s.laneBirths}
}

func (l *lane) fork(cursor float64) *lane {
	nl := l.sched.newLane(l.scope.Snapshot(), cursor)
	return nl
}

func (l *lane) syncEnv() {
	l.ev.Env.Bpm = l.sched.bpm
	l.ev.Env.Beat = l.cursor
}

// breakSignal/returnSignal are internal control-flow sentinels; they never
// escape Schedule.
type breakSignal struct{}

func (breakSignal) Error() string { return "break" }

type returnSignal struct{ value value.Value }

func (returnSignal) Error() string { return "return" }

// Schedule walks mod (plus its resolved imports, for top-level bindings)
// and returns the totally ordered EventStream.
func (s *Scheduler) Schedule(mod *resolve.Module) (EventStream, error) {
	root := s.newLane(value.NewScope(), 0)
	if err := s.execModule(mod, root); err != nil {
		_, isBreak := err.(breakSignal)
		_, isReturn := err.(returnSignal)
		if !isBreak && !isReturn {
			return nil, err
		}
	}
	s.events.Sort()
	return s.events, nil
}

// execModule runs imports (for their exported bindings) then the module's
// own statements, on l.
func (s *Scheduler) execModule(m *resolve.Module, l *lane) error {
	for name, imp := range m.Imports {
		impScope, err := s.moduleScope(imp)
		if err != nil {
			return err
		}
		if v, ok := impScope.Get(name); ok {
			l.scope.Define(name, v, false)
		}
	}
	for alias, bank := range m.Banks {
		l.scope.Define(alias, value.Str(bank.Fullname), true)
		s.banks[alias] = bank
	}
	for alias, load := range m.Loads {
		l.scope.Define(alias, value.Sample(load.URI), false)
	}
	return s.execBlock(l, m.Statements)
}

// moduleScope executes an imported module once (memoized by path) purely to
// collect its top-level bindings; side-effecting statements (trigger,
// sleep, ...) in a definitions-only import are expected to be absent, but
// are still executed on a private lane so the behavior degrades gracefully
// rather than silently dropping events.
func (s *Scheduler) moduleScope(m *resolve.Module) (*value.Scope, error) {
	if sc, ok := s.moduleScopes[m.Path]; ok {
		return sc, nil
	}
	l := s.newLane(value.NewScope(), 0)
	s.moduleScopes[m.Path] = l.scope // reserve early in case of self-import edge cases
	if err := s.execModule(m, l); err != nil {
		return nil, err
	}
	s.moduleScopes[m.Path] = l.scope
	return l.scope, nil
}

func (s *Scheduler) execBlock(l *lane, stmts []*ast.Statement) error {
	for _, st := range stmts {
		if st == nil {
			continue
		}
		if err := s.execStmt(l, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) nextSeq() int {
	s.seq++
	return s.seq
}

func (s *Scheduler) execStmt(l *lane, st *ast.Statement) error {
	l.syncEnv()
	switch st.Kind {
	case ast.StmtTempo:
		v, err := l.ev.Eval(st.Expr)
		if err != nil {
			return err
		}
		s.bpm = v.Number
		if n := len(s.tempoChanges); n > 0 && s.tempoChanges[n-1].AtBeat == l.cursor {
			s.tempoChanges[n-1].Bpm = s.bpm
		} else {
			s.tempoChanges = append(s.tempoChanges, TempoChange{AtBeat: l.cursor, Bpm: s.bpm})
		}
		return nil

	case ast.StmtBank, ast.StmtLoad, ast.StmtUse, ast.StmtImport, ast.StmtExport:
		return nil // resolved statically by internal/resolve; nothing to do at schedule time

	case ast.StmtLet:
		v, err := l.ev.Eval(st.Expr)
		if err != nil {
			return err
		}
		if err := l.scope.Define(st.Name, v, st.IsConst); err != nil {
			s.diag.Errorf("", st.Span.Line, st.Span.Column, "%v", err)
		}
		return nil

	case ast.StmtFn:
		l.scope.Define(st.Name, value.Fn(&value.Callable{Name: st.Name, Params: st.Params, Body: st.Body, Closure: l.scope}), false)
		return nil

	case ast.StmtGroup:
		s.groups[st.Name] = st
		return nil

	case ast.StmtPattern:
		s.patterns[st.Name] = st
		return nil

	case ast.StmtCall:
		return s.callTarget(l, st.Name, false)

	case ast.StmtSpawn:
		return s.execSpawn(l, st)

	case ast.StmtSleep:
		d, err := l.ev.Eval(st.Expr)
		if err != nil {
			return err
		}
		l.cursor += s.durationBeats(d, 0)
		return nil

	case ast.StmtLoop:
		return s.execLoop(l, st)

	case ast.StmtFor:
		return s.execFor(l, st)

	case ast.StmtIf:
		return s.execIf(l, st)

	case ast.StmtTrigger:
		return s.execTrigger(l, st)

	case ast.StmtArrowCall:
		return s.execArrowCall(l, st)

	case ast.StmtAutomate:
		return s.execAutomate(l, st)

	case ast.StmtOn:
		l.scope.Define("on:"+st.EventName, value.Fn(&value.Callable{Name: st.EventName, Body: st.Body, Closure: l.scope}), false)
		return nil

	case ast.StmtEmit:
		return s.execEmit(l, st)

	case ast.StmtPrint:
		v, err := l.ev.Eval(st.Expr)
		if err != nil {
			return err
		}
		s.diag.Add(diag.Entry{Level: diag.Info, Message: v.String(), Line: st.Span.Line, Col: st.Span.Column})
		return nil

	case ast.StmtBreak:
		return breakSignal{}

	case ast.StmtReturn:
		var v value.Value
		if exprPresent(st.Expr) {
			var err error
			v, err = l.ev.Eval(st.Expr)
			if err != nil {
				return err
			}
		}
		return returnSignal{value: v}

	case ast.StmtExprStmt:
		_, err := s.evalStmtExpr(l, st.Expr)
		return err

	default:
		return nil
	}
}

// evalStmtExpr evaluates a bare expression statement, running a
// user-defined function's body itself (eval.Call only validates args —
// internal/schedule owns statement execution, per eval.go's doc comment).
func (s *Scheduler) evalStmtExpr(l *lane, e ast.Expression) (value.Value, error) {
	if e.Kind == ast.ExprCall && e.Callee.Kind == ast.ExprIdentifier {
		if v, ok := l.scope.Get(e.Callee.Name); ok && v.Kind == value.KindCallable {
			args, err := evalArgs(l, e.Args)
			if err != nil {
				return value.Null(), err
			}
			return s.callFunction(l, v.Callable, args, e.Span)
		}
	}
	return l.ev.Eval(e)
}

// exprPresent distinguishes an optional Expression field the parser left
// unset (zero value, never spanned) from one actually parsed — ast nodes
// always carry a non-zero 1-based line once parsed.
func exprPresent(e ast.Expression) bool { return e.Span.Line != 0 }

func evalArgs(l *lane, exprs []ast.Expression) ([]value.Value, error) {
	out := make([]value.Value, len(exprs))
	for i, e := range exprs {
		v, err := l.ev.Eval(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// callFunction executes a user-defined function's body against a fresh
// child scope of its closure, returning whatever `return` set (Null
// otherwise).
func (s *Scheduler) callFunction(l *lane, c *value.Callable, args []value.Value, span ast.Span) (value.Value, error) {
	l.depth++
	defer func() { l.depth-- }()
	if l.depth > maxFnDepth {
		return value.Null(), &eval.EvalError{Line: span.Line, Col: span.Column, Msg: "recursion depth exceeded in " + c.Name}
	}
	body, _ := c.Body.([]*ast.Statement)

	childScope := c.Closure.Snapshot()
	childScope.Push()
	for i, p := range c.Params {
		var v value.Value
		if i < len(args) {
			v = args[i]
		}
		childScope.Define(p, v, false)
	}

	oldScope, oldEv := l.scope, l.ev
	l.scope = childScope
	l.ev = eval.New(childScope, oldEv.Env)
	err := s.execBlock(l, body)
	l.scope, l.ev = oldScope, oldEv

	if rs, ok := err.(returnSignal); ok {
		return rs.value, nil
	}
	if err != nil {
		return value.Null(), err
	}
	return value.Null(), nil
}

// durationBeats resolves a Value to a beat length at the lane's current
// tempo. autoFallbackBeats is used for DurAuto when no better length is
// known (e.g. sleep, which has no "natural length" source). A plain number
// (e.g. a `duration` option) is read as milliseconds.
func (s *Scheduler) durationBeats(d value.Value, autoFallbackBeats float64) float64 {
	if d.Kind == value.KindNumber {
		return value.DurSpec{Kind: value.DurMillis, Ms: d.Number}.Beats(s.bpm)
	}
	if d.Kind != value.KindDuration {
		return 0
	}
	if d.Dur.Kind == value.DurAuto {
		return autoFallbackBeats
	}
	return d.Dur.Beats(s.bpm)
}

func (s *Scheduler) execLoop(l *lane, st *ast.Statement) error {
	if exprPresent(st.PassMs) {
		ms, err := l.ev.Eval(st.PassMs)
		if err != nil {
			return err
		}
		durBeats := (ms.Number / 1000.0) * (s.bpm / 60.0)
		bg := l.fork(l.cursor)
		startCursor := bg.cursor
		for bg.cursor-startCursor < durBeats {
			before := bg.cursor
			if err := s.execBlock(bg, st.Body); err != nil {
				if _, ok := err.(breakSignal); ok {
					break
				}
				return err
			}
			if bg.cursor == before {
				break // body never advances time; avoid a hang
			}
		}
		return nil // parent cursor does not advance
	}

	if !exprPresent(st.LoopN) {
		startCursor := l.cursor
		for l.cursor-startCursor < s.opts.LoopCapBeats {
			before := l.cursor
			if err := s.execBlock(l, st.Body); err != nil {
				if _, ok := err.(breakSignal); ok {
					break
				}
				return err
			}
			if l.cursor == before {
				s.diag.Warnf("", st.Span.Line, st.Span.Column, "infinite loop with no time advance; stopping after one iteration")
				break
			}
		}
		return nil
	}

	n, err := l.ev.Eval(st.LoopN)
	if err != nil {
		return err
	}
	for i := 0; i < int(n.Number); i++ {
		if err := s.execBlock(l, st.Body); err != nil {
			if _, ok := err.(breakSignal); ok {
				break
			}
			return err
		}
	}
	return nil
}

func (s *Scheduler) execFor(l *lane, st *ast.Statement) error {
	iter, err := l.ev.Eval(st.Iterable)
	if err != nil {
		return err
	}
	var items []value.Value
	switch iter.Kind {
	case value.KindArray:
		items = iter.Array
	default:
		items = nil
	}
	l.scope.Push()
	defer l.scope.Pop()
	for _, item := range items {
		l.scope.Define(st.LoopVar, item, false)
		if err := s.execBlock(l, st.Body); err != nil {
			if _, ok := err.(breakSignal); ok {
				break
			}
			return err
		}
	}
	return nil
}

func (s *Scheduler) execIf(l *lane, st *ast.Statement) error {
	cond, err := l.ev.Eval(st.Cond)
	if err != nil {
		return err
	}
	if cond.Truthy() {
		return s.execBlock(l, st.Body)
	}
	for _, ei := range st.ElseIfs {
		c, err := l.ev.Eval(ei.Cond)
		if err != nil {
			return err
		}
		if c.Truthy() {
			return s.execBlock(l, ei.Body)
		}
	}
	if st.ElseBody != nil {
		return s.execBlock(l, st.ElseBody)
	}
	return nil
}

func (s *Scheduler) execSpawn(l *lane, st *ast.Statement) error {
	child := l.fork(l.cursor)
	if st.Body != nil {
		return s.execBlock(child, st.Body)
	}
	return s.callTarget(child, st.Name, true)
}

// callTarget executes a group, pattern, or zero-arg user function by name,
// either inline on l (spawned=false, `call`) or on l directly (spawned=true
// lanes are already forked by the caller; callTarget just runs the body).
func (s *Scheduler) callTarget(l *lane, name string, spawned bool) error {
	if pat, ok := s.patterns[name]; ok {
		return s.expandPattern(l, pat)
	}
	if grp, ok := s.groups[name]; ok {
		return s.execBlock(l, grp.Body)
	}
	if v, ok := l.scope.Get(name); ok && v.Kind == value.KindCallable {
		_, err := s.callFunction(l, v.Callable, nil, ast.Span{})
		return err
	}
	s.diag.Errorf("", 0, 0, "unknown group/pattern/function %q", name)
	return nil
}

func (s *Scheduler) execEmit(l *lane, st *ast.Statement) error {
	v, ok := l.scope.Get("on:" + st.EventName)
	if !ok || v.Kind != value.KindCallable {
		s.diag.Warnf("", st.Span.Line, st.Span.Column, "emit %q has no registered handler", st.EventName)
		return nil
	}
	if exprPresent(st.EmitArgs) {
		payload, err := l.ev.Eval(st.EmitArgs)
		if err != nil {
			return err
		}
		_ = payload // handler bodies read emitted payload via $env/bound names in a fuller implementation
	}
	fresh := l.fork(l.cursor)
	return s.execBlock(fresh, v.Callable.Body.([]*ast.Statement))
}

// expandPattern turns a step string into one SamplePlay trigger per
// non-rest character, evenly spaced across one bar (spec §4.5).
func (s *Scheduler) expandPattern(l *lane, pat *ast.Statement) error {
	steps := strings.ReplaceAll(pat.PatternStep, " ", "")
	n := len(steps)
	if n == 0 {
		return nil
	}
	step := defaultBarBeats / float64(n)
	for i, c := range steps {
		if c == '-' {
			continue
		}
		start := l.cursor + float64(i)*step
		s.emitSamplePlay(l, pat.PatternBank, start, step, 1.0, false, nil, nil)
	}
	l.cursor += defaultBarBeats
	return nil
}

func (s *Scheduler) execTrigger(l *lane, st *ast.Statement) error {
	var durVal value.Value
	if exprPresent(st.TriggerDur) {
		v, err := l.ev.Eval(st.TriggerDur)
		if err != nil {
			return err
		}
		durVal = v
	} else {
		durVal = value.Dur(value.DurSpec{Kind: value.DurAuto})
	}

	var effects []EffectSpec
	if exprPresent(st.TriggerArgs) {
		m, err := l.ev.Eval(st.TriggerArgs)
		if err != nil {
			return err
		}
		effects = effectsFromMap(m)
	}

	uri := s.sampleURI(st.TriggerTarget)
	natural := s.naturalLengthBeats(uri)
	durBeats := s.durationBeats(durVal, natural)
	if durVal.Kind == value.KindDuration && durVal.Dur.Kind == value.DurAuto {
		durBeats = natural
	}

	s.emitSamplePlay(l, st.TriggerTarget, l.cursor, durBeats, 1.0, false, effects, l.noteAutomations)
	l.cursor += durBeats
	return nil
}

func (s *Scheduler) emitSamplePlay(l *lane, target string, start, durBeats, speed float64, reverse bool, effects []EffectSpec, autos []*automation.Automation) {
	uri := s.sampleURI(target)
	all := append(append([]*automation.Automation{}, s.lookupGlobalAutomation(target)...), autos...)
	s.events = append(s.events, Event{
		TStartBeats: start,
		TDurBeats:   durBeats,
		Kind:        KindSamplePlay,
		SamplePlay: &SamplePlayPayload{
			SampleURI:   uri,
			Speed:       speed,
			Reverse:     reverse,
			Effects:     effects,
			Automations: all,
		},
		laneBirth: l.birth,
		seq:       s.nextSeq(),
	})
}

func (s *Scheduler) lookupGlobalAutomation(target string) []*automation.Automation {
	if a, ok := s.globalAutomations[target]; ok {
		return []*automation.Automation{a}
	}
	return nil
}

func (s *Scheduler) sampleURI(dotted string) string {
	alias, trig, ok := strings.Cut(dotted, ".")
	if !ok {
		return dotted
	}
	fullname := alias
	if b, ok := s.banks[alias]; ok {
		fullname = b.Fullname
	}
	return "devalang://bank/" + fullname + "/" + trig + ".wav"
}

func (s *Scheduler) naturalLengthBeats(uri string) float64 {
	if s.provider == nil {
		return 1 // quarter-note fallback; no provider wired
	}
	smp, err := s.provider.Resolve(uri)
	if err != nil {
		s.diag.Warnf("", 0, 0, "sample %q unresolved: %v", uri, err)
		return 1
	}
	frames := len(smp.PCM)
	if smp.Channels > 0 {
		frames /= smp.Channels
	}
	seconds := float64(frames) / float64(smp.SampleRate)
	return seconds * (s.bpm / 60.0)
}

func effectsFromMap(v value.Value) []EffectSpec {
	if v.Kind != value.KindMap {
		return nil
	}
	out := make([]EffectSpec, 0, len(v.Map))
	for _, e := range v.Map {
		spec := EffectSpec{Kind: e.Key, Params: map[string]float64{}}
		switch e.Value.Kind {
		case value.KindNumber:
			spec.Params["mix"] = e.Value.Number
		case value.KindMap:
			for _, pe := range e.Value.Map {
				if pe.Value.Kind == value.KindNumber {
					spec.Params[pe.Key] = pe.Value.Number
				}
			}
		}
		out = append(out, spec)
	}
	return out
}

func (s *Scheduler) execAutomate(l *lane, st *ast.Statement) error {
	kps := make([]automation.Keypoint, 0, len(st.Keypoints))
	for _, kp := range st.Keypoints {
		v, err := l.ev.Eval(kp.Value)
		if err != nil {
			return err
		}
		kps = append(kps, automation.Keypoint{Fraction: kp.Fraction, Value: v.Number})
	}
	mode := automation.Global
	if st.AutomateMode == "note" {
		mode = automation.PerNote
	}
	auto := automation.New(st.AutomateTarget, st.AutomateParam, mode, kps, "linear", s.opts.Seed)

	if mode == automation.Global {
		s.globalAutomations[st.AutomateTarget] = auto
		return nil
	}

	l.noteAutomations = append(l.noteAutomations, auto)
	err := s.execBlock(l, st.Body)
	l.noteAutomations = l.noteAutomations[:len(l.noteAutomations)-1]
	return err
}

// execArrowCall builds either a NoteOn (synth target) or SamplePlay
// (sample/bank target) event from a `target -> stage(...) -> stage(...)`
// chain (spec §4.5).
func (s *Scheduler) execArrowCall(l *lane, st *ast.Statement) error {
	target, err := l.ev.Eval(st.ArrowTarget)
	if err != nil {
		return err
	}

	nb := noteBuild{
		waveform: "sine",
		velocity: 0.8,
		durBeats: 1,
		adsr:     dsp.DefaultADSR(),
	}
	if wf, ok := target.MapGet("waveform"); ok {
		nb.waveform = wf.Str
	}
	targetName := ""
	if st.ArrowTarget.Kind == ast.ExprIdentifier {
		targetName = st.ArrowTarget.Name
	}

	for _, stage := range st.ArrowChain {
		if err := s.applyArrowStage(l, &nb, stage); err != nil {
			return err
		}
	}

	freqs := nb.freqs()
	if len(freqs) == 0 {
		l.cursor += nb.durBeats
		return nil
	}
	autos := append(append([]*automation.Automation{}, s.lookupGlobalAutomation(targetName)...), l.noteAutomations...)
	for _, f := range freqs {
		s.events = append(s.events, Event{
			TStartBeats: l.cursor,
			TDurBeats:   nb.durBeats,
			Kind:        KindNoteOn,
			NoteOn: &NoteOnPayload{
				SynthRef: targetName,
				Waveform: nb.waveform,
				Freq:     f,
				Velocity: nb.velocity,
				ADSR:     ADSRSpec{AttackMs: nb.adsr.AttackMs, DecayMs: nb.adsr.DecayMs, Sustain: nb.adsr.Sustain, ReleaseMs: nb.adsr.ReleaseMs},
				Pan:      nb.pan,
				Effects:  nb.effects,
				Automations: autos,
				LFOs:     nb.lfos,
			},
			laneBirth: l.birth,
			seq:       s.nextSeq(),
		})
	}
	l.cursor += nb.durBeats
	return nil
}

// noteBuild accumulates the parameters an arrow-call chain sets before the
// event is emitted.
type noteBuild struct {
	waveform string
	note     float64
	hasNote  bool
	chord    []float64
	velocity float64
	durBeats float64
	pan      float64
	adsr     dsp.ADSR
	effects  []EffectSpec
	lfos     []LFOSpec
}

func (nb *noteBuild) freqs() []float64 {
	if len(nb.chord) > 0 {
		out := make([]float64, len(nb.chord))
		for i, n := range nb.chord {
			out[i] = music.MidiToFreq(n)
		}
		return out
	}
	if nb.hasNote {
		return []float64{music.MidiToFreq(nb.note)}
	}
	return nil
}

// noteArgToMidi resolves a `note(...)`/`chord(...)` first argument, which
// the parser hands us as either a bare note-name Identifier (e.g. `C4`) or
// a numeric MIDI value.
func noteArgToMidi(l *lane, e ast.Expression) (float64, error) {
	if e.Kind == ast.ExprIdentifier {
		if midi, err := music.NoteNameToMIDI(e.Name); err == nil {
			return float64(midi), nil
		}
	}
	v, err := l.ev.Eval(e)
	if err != nil {
		return 0, err
	}
	return v.Number, nil
}

func (s *Scheduler) applyArrowStage(l *lane, nb *noteBuild, stage ast.ArrowStage) error {
	switch stage.Method {
	case "note":
		if len(stage.Args) == 0 {
			return nil
		}
		midi, err := noteArgToMidi(l, stage.Args[0])
		if err != nil {
			return err
		}
		nb.note = midi
		nb.hasNote = true
		if len(stage.Args) > 1 {
			s.applyNoteOpts(l, nb, stage.Args[1])
		}
	case "chord":
		if len(stage.Args) == 0 {
			return nil
		}
		root, err := noteArgToMidi(l, stage.Args[0])
		if err != nil {
			return err
		}
		quality := "maj"
		if len(stage.Args) > 1 && stage.Args[1].Kind == ast.ExprString {
			quality = stage.Args[1].Str
		}
		nb.chord = toFloats(music.ChordNotes(int(root), quality))
		if len(stage.Args) > 2 {
			s.applyNoteOpts(l, nb, stage.Args[2])
		}
	case "duration":
		if len(stage.Args) == 0 {
			return nil
		}
		v, err := l.ev.Eval(stage.Args[0])
		if err != nil {
			return err
		}
		nb.durBeats = s.durationBeats(v, nb.durBeats)
	case "velocity":
		if v, ok := firstNumber(l, stage.Args); ok {
			nb.velocity = v
		}
	case "pan":
		if v, ok := firstNumber(l, stage.Args); ok {
			nb.pan = v
		}
	case "adsr":
		if len(stage.Args) > 0 {
			m, err := l.ev.Eval(stage.Args[0])
			if err != nil {
				return err
			}
			applyADSRMap(&nb.adsr, m)
		}
	case "lfo":
		// `-> lfo(rate, depth, shape, target)` (spec §4.5/§4.6): a
		// continuous per-sample modulator, distinct from the keypoint
		// automations the `automate` statement registers.
		rate, _ := firstNumber(l, stage.Args)
		depth, _ := argNumber(l, stage.Args, 1)
		shape, _ := argString(l, stage.Args, 2)
		if shape == "" {
			shape = "sine"
		}
		target, _ := argString(l, stage.Args, 3)
		if target == "" {
			target = "pitch"
		}
		nb.lfos = append(nb.lfos, LFOSpec{Target: target, RatePerBeat: rate, Depth: depth, Shape: shape})
	default:
		params := map[string]float64{}
		if len(stage.Args) > 0 {
			m, err := l.ev.Eval(stage.Args[0])
			if err != nil {
				return err
			}
			if m.Kind == value.KindMap {
				for _, e := range m.Map {
					if e.Value.Kind == value.KindNumber {
						params[e.Key] = e.Value.Number
					}
				}
			} else if m.Kind == value.KindNumber {
				params["mix"] = m.Number
			}
		}
		nb.effects = append(nb.effects, EffectSpec{Kind: stage.Method, Params: params})
	}
	return nil
}

func (s *Scheduler) applyNoteOpts(l *lane, nb *noteBuild, e ast.Expression) {
	m, err := l.ev.Eval(e)
	if err != nil || m.Kind != value.KindMap {
		return
	}
	if v, ok := m.MapGet("duration"); ok {
		nb.durBeats = s.durationBeats(v, nb.durBeats)
	}
	if v, ok := m.MapGet("velocity"); ok && v.Kind == value.KindNumber {
		nb.velocity = v.Number
	}
	if v, ok := m.MapGet("pan"); ok && v.Kind == value.KindNumber {
		nb.pan = v.Number
	}
}

func applyADSRMap(a *dsp.ADSR, m value.Value) {
	if m.Kind != value.KindMap {
		return
	}
	if v, ok := m.MapGet("a"); ok {
		a.AttackMs = v.Number
	}
	if v, ok := m.MapGet("d"); ok {
		a.DecayMs = v.Number
	}
	if v, ok := m.MapGet("s"); ok {
		a.Sustain = v.Number
	}
	if v, ok := m.MapGet("r"); ok {
		a.ReleaseMs = v.Number
	}
}

func firstNumber(l *lane, args []ast.Expression) (float64, bool) {
	return argNumber(l, args, 0)
}

func argNumber(l *lane, args []ast.Expression, idx int) (float64, bool) {
	if idx >= len(args) {
		return 0, false
	}
	v, err := l.ev.Eval(args[idx])
	if err != nil || v.Kind != value.KindNumber {
		return 0, false
	}
	return v.Number, true
}

// argString reads the expression at args[idx] as a string, accepting a bare
// identifier (e.g. `sine`, `pitch`) the way note names are accepted
// unquoted elsewhere, a string literal, or a general expression evaluating
// to a string.
func argString(l *lane, args []ast.Expression, idx int) (string, bool) {
	if idx >= len(args) {
		return "", false
	}
	e := args[idx]
	switch e.Kind {
	case ast.ExprIdentifier:
		return e.Name, true
	case ast.ExprString:
		return e.Str, true
	}
	v, err := l.ev.Eval(e)
	if err != nil || v.Kind != value.KindString {
		return "", false
	}
	return v.Str, true
}

func toFloats(ns []int) []float64 {
	out := make([]float64, len(ns))
	for i, n := range ns {
		out[i] = float64(n)
	}
	return out
}
