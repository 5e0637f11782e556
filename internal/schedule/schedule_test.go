package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/collidertracker/internal/ast"
	"github.com/schollz/collidertracker/internal/diag"
	"github.com/schollz/collidertracker/internal/resolve"
)

func numExpr(n float64) ast.Expression {
	return ast.Expression{Kind: ast.ExprNumber, Number: n, Span: ast.Span{Line: 1, Column: 1}}
}

func identExpr(name string) ast.Expression {
	return ast.Expression{Kind: ast.ExprIdentifier, Name: name, Span: ast.Span{Line: 1, Column: 1}}
}

func modOf(stmts []*ast.Statement) *resolve.Module {
	return &resolve.Module{
		Path: "entry.deva", Dir: ".",
		Statements: stmts,
		Imports:    map[string]*resolve.Module{},
		Exports:    map[string]bool{},
		Banks:      map[string]*resolve.Bank{},
		Loads:      map[string]*resolve.LoadBinding{},
		Errors:     &diag.Log{},
	}
}

func newSched() *Scheduler {
	return New(nil, &diag.Log{}, Options{DefaultBpm: 120, Seed: 1})
}

func TestTempoSleepEmitsNoEvents(t *testing.T) {
	stmts := []*ast.Statement{
		{Kind: ast.StmtTempo, Expr: numExpr(120), Span: ast.Span{Line: 1, Column: 1}},
		{Kind: ast.StmtSleep, Expr: ast.Expression{Kind: ast.ExprDuration, DurNum: 1, DurDen: 4, Span: ast.Span{Line: 2, Column: 1}}, Span: ast.Span{Line: 2, Column: 1}},
		{Kind: ast.StmtSleep, Expr: ast.Expression{Kind: ast.ExprDuration, DurNum: 1, DurDen: 4, Span: ast.Span{Line: 3, Column: 1}}, Span: ast.Span{Line: 3, Column: 1}},
	}
	s := newSched()
	events, err := s.Schedule(modOf(stmts))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTriggerEmitsSamplePlayAndAdvances(t *testing.T) {
	stmts := []*ast.Statement{
		{Kind: ast.StmtBank, BankFullname: "acme.drums", BankAlias: "drums", Span: ast.Span{Line: 1, Column: 1}},
		{Kind: ast.StmtTrigger, TriggerTarget: "drums.kick", Span: ast.Span{Line: 2, Column: 1}},
		{Kind: ast.StmtTrigger, TriggerTarget: "drums.snare", Span: ast.Span{Line: 3, Column: 1}},
	}
	mod := modOf(stmts)
	mod.Banks["drums"] = &resolve.Bank{Fullname: "acme.drums", Alias: "drums", Triggers: map[string]string{}}
	s := newSched()
	events, err := s.Schedule(mod)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 0.0, events[0].TStartBeats)
	assert.Equal(t, "devalang://bank/acme.drums/kick.wav", events[0].SamplePlay.SampleURI)
	assert.Equal(t, events[0].TStartBeats+events[0].TDurBeats, events[1].TStartBeats)
}

func TestArrowCallEmitsNoteOn(t *testing.T) {
	stmts := []*ast.Statement{
		{Kind: ast.StmtLet, Name: "lead", VarKind: "let", Expr: ast.Expression{
			Kind: ast.ExprCall, Span: ast.Span{Line: 1, Column: 1},
			Callee: &ast.Expression{Kind: ast.ExprIdentifier, Name: "synth", Span: ast.Span{Line: 1, Column: 1}},
			Args:   []ast.Expression{identExpr("sine")},
		}, Span: ast.Span{Line: 1, Column: 1}},
		{Kind: ast.StmtArrowCall, ArrowTarget: identExpr("lead"), Span: ast.Span{Line: 2, Column: 1},
			ArrowChain: []ast.ArrowStage{
				{Method: "note", Args: []ast.Expression{identExpr("A4")}, Span: ast.Span{Line: 2, Column: 1}},
				{Method: "velocity", Args: []ast.Expression{numExpr(0.5)}, Span: ast.Span{Line: 2, Column: 1}},
			}},
	}
	s := newSched()
	events, err := s.Schedule(modOf(stmts))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, KindNoteOn, events[0].Kind)
	assert.InDelta(t, 440.0, events[0].NoteOn.Freq, 0.1)
	assert.Equal(t, 0.5, events[0].NoteOn.Velocity)
	assert.Equal(t, "sine", events[0].NoteOn.Waveform)
}

func TestArrowCallLfoStagePopulatesNoteOnLFOs(t *testing.T) {
	stmts := []*ast.Statement{
		{Kind: ast.StmtLet, Name: "lead", VarKind: "let", Expr: ast.Expression{
			Kind: ast.ExprCall, Span: ast.Span{Line: 1, Column: 1},
			Callee: &ast.Expression{Kind: ast.ExprIdentifier, Name: "synth", Span: ast.Span{Line: 1, Column: 1}},
			Args:   []ast.Expression{identExpr("sine")},
		}, Span: ast.Span{Line: 1, Column: 1}},
		{Kind: ast.StmtArrowCall, ArrowTarget: identExpr("lead"), Span: ast.Span{Line: 2, Column: 1},
			ArrowChain: []ast.ArrowStage{
				{Method: "note", Args: []ast.Expression{identExpr("A4")}, Span: ast.Span{Line: 2, Column: 1}},
				{Method: "lfo", Args: []ast.Expression{
					numExpr(0.25), numExpr(7), identExpr("tri"), identExpr("pan"),
				}, Span: ast.Span{Line: 2, Column: 1}},
			}},
	}
	s := newSched()
	events, err := s.Schedule(modOf(stmts))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, events[0].NoteOn.LFOs, 1)
	lfo := events[0].NoteOn.LFOs[0]
	assert.Equal(t, "pan", lfo.Target)
	assert.Equal(t, "tri", lfo.Shape)
	assert.Equal(t, 0.25, lfo.RatePerBeat)
	assert.Equal(t, 7.0, lfo.Depth)
}

func TestArrowCallLfoStageDefaultsShapeAndTarget(t *testing.T) {
	stmts := []*ast.Statement{
		{Kind: ast.StmtLet, Name: "lead", VarKind: "let", Expr: ast.Expression{
			Kind: ast.ExprCall, Span: ast.Span{Line: 1, Column: 1},
			Callee: &ast.Expression{Kind: ast.ExprIdentifier, Name: "synth", Span: ast.Span{Line: 1, Column: 1}},
			Args:   []ast.Expression{identExpr("sine")},
		}, Span: ast.Span{Line: 1, Column: 1}},
		{Kind: ast.StmtArrowCall, ArrowTarget: identExpr("lead"), Span: ast.Span{Line: 2, Column: 1},
			ArrowChain: []ast.ArrowStage{
				{Method: "note", Args: []ast.Expression{identExpr("A4")}, Span: ast.Span{Line: 2, Column: 1}},
				{Method: "lfo", Args: []ast.Expression{numExpr(1), numExpr(0.1)}, Span: ast.Span{Line: 2, Column: 1}},
			}},
	}
	s := newSched()
	events, err := s.Schedule(modOf(stmts))
	require.NoError(t, err)
	require.Len(t, events[0].NoteOn.LFOs, 1)
	lfo := events[0].NoteOn.LFOs[0]
	assert.Equal(t, "pitch", lfo.Target)
	assert.Equal(t, "sine", lfo.Shape)
}

func TestLoopCountRepeatsBody(t *testing.T) {
	stmts := []*ast.Statement{
		{Kind: ast.StmtBank, BankFullname: "acme.drums", BankAlias: "drums", Span: ast.Span{Line: 1, Column: 1}},
		{Kind: ast.StmtLoop, LoopN: numExpr(3), Span: ast.Span{Line: 2, Column: 1}, Body: []*ast.Statement{
			{Kind: ast.StmtTrigger, TriggerTarget: "drums.kick", Span: ast.Span{Line: 3, Column: 1}},
		}},
	}
	mod := modOf(stmts)
	mod.Banks["drums"] = &resolve.Bank{Fullname: "acme.drums", Alias: "drums"}
	s := newSched()
	events, err := s.Schedule(mod)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, 0.0, events[0].TStartBeats)
	assert.Equal(t, 1.0, events[1].TStartBeats)
	assert.Equal(t, 2.0, events[2].TStartBeats)
}

func TestIfBranchChoosesTruthy(t *testing.T) {
	stmts := []*ast.Statement{
		{Kind: ast.StmtBank, BankFullname: "acme.drums", BankAlias: "drums", Span: ast.Span{Line: 1, Column: 1}},
		{Kind: ast.StmtIf, Cond: ast.Expression{Kind: ast.ExprBoolean, Boolean: false, Span: ast.Span{Line: 2, Column: 1}},
			Span: ast.Span{Line: 2, Column: 1},
			Body: []*ast.Statement{{Kind: ast.StmtTrigger, TriggerTarget: "drums.kick", Span: ast.Span{Line: 3, Column: 1}}},
			ElseBody: []*ast.Statement{{Kind: ast.StmtTrigger, TriggerTarget: "drums.snare", Span: ast.Span{Line: 4, Column: 1}}},
		},
	}
	mod := modOf(stmts)
	mod.Banks["drums"] = &resolve.Bank{Fullname: "acme.drums", Alias: "drums"}
	s := newSched()
	events, err := s.Schedule(mod)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "devalang://bank/acme.drums/snare.wav", events[0].SamplePlay.SampleURI)
}

func TestSpawnForksLaneAtSameStart(t *testing.T) {
	stmts := []*ast.Statement{
		{Kind: ast.StmtBank, BankFullname: "acme.drums", BankAlias: "drums", Span: ast.Span{Line: 1, Column: 1}},
		{Kind: ast.StmtSpawn, Span: ast.Span{Line: 2, Column: 1}, Body: []*ast.Statement{
			{Kind: ast.StmtTrigger, TriggerTarget: "drums.hat", Span: ast.Span{Line: 3, Column: 1}},
		}},
		{Kind: ast.StmtTrigger, TriggerTarget: "drums.kick", Span: ast.Span{Line: 4, Column: 1}},
	}
	mod := modOf(stmts)
	mod.Banks["drums"] = &resolve.Bank{Fullname: "acme.drums", Alias: "drums"}
	s := newSched()
	events, err := s.Schedule(mod)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 0.0, events[0].TStartBeats)
	assert.Equal(t, 0.0, events[1].TStartBeats)
	// Tie-break: the parent lane's subsequent events precede the spawned
	// child's same-beat events (spec §5 ordering guarantees).
	assert.Equal(t, "devalang://bank/acme.drums/kick.wav", events[0].SamplePlay.SampleURI)
	assert.Equal(t, "devalang://bank/acme.drums/hat.wav", events[1].SamplePlay.SampleURI)
}

func TestAutomateGlobalAttachesToLaterEvents(t *testing.T) {
	stmts := []*ast.Statement{
		{Kind: ast.StmtLet, Name: "lead", Expr: ast.Expression{
			Kind: ast.ExprCall, Span: ast.Span{Line: 1, Column: 1},
			Callee: &ast.Expression{Kind: ast.ExprIdentifier, Name: "synth", Span: ast.Span{Line: 1, Column: 1}},
			Args:   []ast.Expression{identExpr("sine")},
		}, Span: ast.Span{Line: 1, Column: 1}},
		{Kind: ast.StmtAutomate, AutomateTarget: "lead", AutomateMode: "global", AutomateParam: "cutoff",
			Span: ast.Span{Line: 2, Column: 1},
			Keypoints: []ast.Keypoint{
				{Fraction: 0, Value: numExpr(200)},
				{Fraction: 1, Value: numExpr(800)},
			},
		},
		{Kind: ast.StmtArrowCall, ArrowTarget: identExpr("lead"), Span: ast.Span{Line: 3, Column: 1},
			ArrowChain: []ast.ArrowStage{{Method: "note", Args: []ast.Expression{identExpr("C4")}, Span: ast.Span{Line: 3, Column: 1}}}},
	}
	s := newSched()
	events, err := s.Schedule(modOf(stmts))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Len(t, events[0].NoteOn.Automations, 1)
	assert.Equal(t, "cutoff", events[0].NoteOn.Automations[0].Param)
}

func TestPatternExpandsStepsAcrossBar(t *testing.T) {
	stmts := []*ast.Statement{
		{Kind: ast.StmtBank, BankFullname: "acme.drums", BankAlias: "drums", Span: ast.Span{Line: 1, Column: 1}},
		{Kind: ast.StmtPattern, Name: "basic", PatternBank: "drums.kick", PatternStep: "x--x", Span: ast.Span{Line: 2, Column: 1}},
		{Kind: ast.StmtCall, Name: "basic", Span: ast.Span{Line: 3, Column: 1}},
	}
	mod := modOf(stmts)
	mod.Banks["drums"] = &resolve.Bank{Fullname: "acme.drums", Alias: "drums"}
	s := newSched()
	events, err := s.Schedule(mod)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 0.0, events[0].TStartBeats)
	assert.Equal(t, 3.0, events[1].TStartBeats)
}
