package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/collidertracker/internal/ast"
	"github.com/schollz/collidertracker/internal/lexer"
)

func parseSrc(t *testing.T, src string) ([]*ast.Statement, int) {
	t.Helper()
	toks, lexLog := lexer.Tokenize("test.deva", []byte(src))
	require.False(t, lexLog.HasErrors(), "lex errors: %v", lexLog.Entries())
	stmts, log := Parse("test.deva", toks)
	return stmts, len(log.Entries())
}

func TestParseTempo(t *testing.T) {
	stmts, nerr := parseSrc(t, "tempo 120\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 1)
	assert.Equal(t, ast.StmtTempo, stmts[0].Kind)
	assert.Equal(t, float64(120), stmts[0].Expr.Number)
}

func TestParseBankAlias(t *testing.T) {
	stmts, nerr := parseSrc(t, "bank drums as d\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 1)
	assert.Equal(t, ast.StmtBank, stmts[0].Kind)
	assert.Equal(t, "drums", stmts[0].BankFullname)
	assert.Equal(t, "d", stmts[0].BankAlias)
}

func TestParseLoadAs(t *testing.T) {
	stmts, nerr := parseSrc(t, `@load "./kick.wav" as kick`+"\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 1)
	assert.Equal(t, ast.StmtLoad, stmts[0].Kind)
	assert.Equal(t, "./kick.wav", stmts[0].LoadPath)
	assert.Equal(t, "kick", stmts[0].LoadAlias)
}

func TestParseLetConstSynth(t *testing.T) {
	stmts, nerr := parseSrc(t, "let osc = synth sine\nconst x = 4\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 2)

	assert.Equal(t, ast.StmtLet, stmts[0].Kind)
	assert.Equal(t, "osc", stmts[0].Name)
	assert.False(t, stmts[0].IsConst)
	assert.Equal(t, ast.ExprCall, stmts[0].Expr.Kind)
	assert.Equal(t, "synth", stmts[0].Expr.Callee.Name)
	assert.Equal(t, "sine", stmts[0].Expr.Args[0].Name)

	assert.Equal(t, ast.StmtLet, stmts[1].Kind)
	assert.True(t, stmts[1].IsConst)
}

func TestParseGroupBlock(t *testing.T) {
	src := "group drums:\n  sleep 250\n  call other\n"
	stmts, nerr := parseSrc(t, src)
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 1)
	assert.Equal(t, ast.StmtGroup, stmts[0].Kind)
	assert.Equal(t, "drums", stmts[0].Name)
	require.Len(t, stmts[0].Body, 2)
	assert.Equal(t, ast.StmtSleep, stmts[0].Body[0].Kind)
	assert.Equal(t, ast.StmtCall, stmts[0].Body[1].Kind)
}

func TestParseTriggerWithBeatDuration(t *testing.T) {
	stmts, nerr := parseSrc(t, "bank drums as drums\n.drums.kick 1/4 {gain: 0.8}\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 2)
	trig := stmts[1]
	assert.Equal(t, ast.StmtTrigger, trig.Kind)
	assert.Equal(t, "drums.kick", trig.TriggerTarget)
	assert.Equal(t, float64(1), trig.TriggerDur.DurNum)
	assert.Equal(t, float64(4), trig.TriggerDur.DurDen)
	require.Equal(t, ast.ExprMap, trig.TriggerArgs.Kind)
	assert.Equal(t, "gain", trig.TriggerArgs.MapKeys[0])
}

func TestParseTriggerAutoDuration(t *testing.T) {
	stmts, nerr := parseSrc(t, "bank drums as drums\n.drums.kick auto\n")
	require.Equal(t, 0, nerr)
	require.True(t, stmts[1].TriggerDur.IsAuto)
}

func TestParseArrowCallChain(t *testing.T) {
	stmts, nerr := parseSrc(t, "osc -> note(60) -> gain(0.5)\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 1)
	s := stmts[0]
	assert.Equal(t, ast.StmtArrowCall, s.Kind)
	assert.Equal(t, "osc", s.ArrowTarget.Name)
	require.Len(t, s.ArrowChain, 2)
	assert.Equal(t, "note", s.ArrowChain[0].Method)
	assert.Equal(t, float64(60), s.ArrowChain[0].Args[0].Number)
	assert.Equal(t, "gain", s.ArrowChain[1].Method)
}

func TestParseIfElseIfElse(t *testing.T) {
	src := "if x:\n  print 1\nelse if y:\n  print 2\nelse:\n  print 3\n"
	stmts, nerr := parseSrc(t, src)
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 1)
	s := stmts[0]
	assert.Equal(t, ast.StmtIf, s.Kind)
	require.Len(t, s.Body, 1)
	require.Len(t, s.ElseIfs, 1)
	assert.Equal(t, "y", s.ElseIfs[0].Cond.Name)
	require.Len(t, s.ElseBody, 1)
}

func TestParseForLoop(t *testing.T) {
	stmts, nerr := parseSrc(t, "for i in [1, 2, 3]:\n  print i\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 1)
	s := stmts[0]
	assert.Equal(t, ast.StmtFor, s.Kind)
	assert.Equal(t, "i", s.LoopVar)
	assert.Equal(t, ast.ExprArray, s.Iterable.Kind)
	require.Len(t, s.Iterable.Elements, 3)
}

func TestParseLoopCountAndPass(t *testing.T) {
	stmts, nerr := parseSrc(t, "loop 4:\n  sleep 100\nloop pass(50):\n  sleep 10\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 2)
	assert.Equal(t, float64(4), stmts[0].LoopN.Number)
	require.NotNil(t, stmts[1].PassMs)
	assert.Equal(t, float64(50), stmts[1].PassMs.Number)
}

func TestParseAutomateParamKeypoints(t *testing.T) {
	src := "automate osc mode global:\n  param cutoff {0%: 200, 50%: 800, 100%: 200}\n"
	stmts, nerr := parseSrc(t, src)
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 1)
	s := stmts[0]
	assert.Equal(t, ast.StmtAutomate, s.Kind)
	assert.Equal(t, "osc", s.AutomateTarget)
	assert.Equal(t, "global", s.AutomateMode)
	assert.Equal(t, "cutoff", s.AutomateParam)
	require.Len(t, s.Keypoints, 3)
	assert.Equal(t, 0.0, s.Keypoints[0].Fraction)
	assert.Equal(t, 0.5, s.Keypoints[1].Fraction)
	assert.Equal(t, float64(800), s.Keypoints[1].Value.Number)
	assert.Equal(t, 1.0, s.Keypoints[2].Fraction)
}

func TestParseOnEmit(t *testing.T) {
	stmts, nerr := parseSrc(t, "on beat:\n  print \"tick\"\nemit beat {n: 1}\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 2)
	assert.Equal(t, ast.StmtOn, stmts[0].Kind)
	assert.Equal(t, "beat", stmts[0].EventName)
	assert.Equal(t, ast.StmtEmit, stmts[1].Kind)
	assert.Equal(t, "beat", stmts[1].EventName)
	assert.Equal(t, ast.ExprMap, stmts[1].EmitArgs.Kind)
}

func TestParsePatternWith(t *testing.T) {
	stmts, nerr := parseSrc(t, `pattern main with drums.kick = "x--x--x-"`+"\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 1)
	s := stmts[0]
	assert.Equal(t, ast.StmtPattern, s.Kind)
	assert.Equal(t, "main", s.Name)
	assert.Equal(t, "drums.kick", s.PatternBank)
	assert.Equal(t, "x--x--x-", s.PatternStep)
}

func TestParseBinaryPrecedence(t *testing.T) {
	stmts, nerr := parseSrc(t, "print 1 + 2 * 3\n")
	require.Equal(t, 0, nerr)
	e := stmts[0].Expr
	require.Equal(t, ast.ExprBinary, e.Kind)
	assert.Equal(t, "+", e.Op)
	assert.Equal(t, ast.ExprBinary, e.Right.Kind)
	assert.Equal(t, "*", e.Right.Op)
}

func TestParseSpawnAnonymous(t *testing.T) {
	stmts, nerr := parseSrc(t, "spawn:\n  sleep 10\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 1)
	assert.Equal(t, ast.StmtSpawn, stmts[0].Kind)
	assert.Equal(t, "", stmts[0].Name)
	require.Len(t, stmts[0].Body, 1)
}

func TestParseImportExport(t *testing.T) {
	stmts, nerr := parseSrc(t, `@import { kick, snare } from "./drums.deva"`+"\n@export { main }\n")
	require.Equal(t, 0, nerr)
	require.Len(t, stmts, 2)
	assert.Equal(t, ast.StmtImport, stmts[0].Kind)
	assert.Equal(t, []string{"kick", "snare"}, stmts[0].ImportNames)
	assert.Equal(t, "./drums.deva", stmts[0].ImportPath)
	assert.Equal(t, ast.StmtExport, stmts[1].Kind)
	assert.Equal(t, []string{"main"}, stmts[1].ExportNames)
}

func TestParseErrorRecoveryContinues(t *testing.T) {
	// a stray ')' is a syntax error; the parser should recover and still
	// parse the following statement.
	stmts, nerr := parseSrc(t, "print )\nprint 1\n")
	assert.Greater(t, nerr, 0)
	require.GreaterOrEqual(t, len(stmts), 1)
	last := stmts[len(stmts)-1]
	assert.Equal(t, ast.StmtPrint, last.Kind)
}
