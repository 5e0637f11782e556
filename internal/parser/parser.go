// Package parser implements C2: a recursive-descent parser turning a token
// stream into an AST of Statements with spans. Syntax errors are recovered
// by skipping to the next statement boundary so a single compile can report
// more than one diagnostic, matching spec §4.2.
package parser

import (
	"strconv"

	"github.com/schollz/collidertracker/internal/ast"
	"github.com/schollz/collidertracker/internal/diag"
	"github.com/schollz/collidertracker/internal/token"
)

// Parser consumes a token slice (as produced by internal/lexer) and builds
// an AST.
type Parser struct {
	file string
	toks []token.Token
	pos  int
	log  *diag.Log
}

// New creates a Parser over toks, attributing diagnostics to file.
func New(file string, toks []token.Token) *Parser {
	return &Parser{file: file, toks: toks, log: &diag.Log{}}
}

// Parse parses an already-tokenized file in one call; callers (the module
// resolver) run lexer.Tokenize first.
func Parse(file string, toks []token.Token) ([]*ast.Statement, *diag.Log) {
	p := New(file, toks)
	return p.parseProgram(), p.log
}

func (p *Parser) cur() token.Token {
	if p.pos >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) peekAt(n int) token.Token {
	if p.pos+n >= len(p.toks) {
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos+n]
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) at(k token.Kind) bool { return p.cur().Kind == k }

func (p *Parser) expect(k token.Kind) (token.Token, bool) {
	if p.at(k) {
		return p.advance(), true
	}
	t := p.cur()
	p.errf(t, "expected %s, got %s", k, t.Kind)
	return t, false
}

func (p *Parser) errf(t token.Token, format string, args ...any) {
	p.log.Errorf(p.file, t.Line, t.Column, format, args...)
}

func (p *Parser) span(t token.Token) ast.Span { return ast.Span{Line: t.Line, Column: t.Column} }

// skipNewlines consumes any run of Newline tokens.
func (p *Parser) skipNewlines() {
	for p.at(token.Newline) {
		p.advance()
	}
}

// recover skips tokens up to and including the next Newline, or until a
// Dedent/EOF, so parsing can continue with the following statement.
func (p *Parser) recover() {
	for !p.at(token.Newline) && !p.at(token.Dedent) && !p.at(token.EOF) {
		p.advance()
	}
	if p.at(token.Newline) {
		p.advance()
	}
}

func (p *Parser) parseProgram() []*ast.Statement {
	var stmts []*ast.Statement
	p.skipNewlines()
	for !p.at(token.EOF) {
		if p.at(token.Dedent) {
			// stray dedent at top level: ignore and continue
			p.advance()
			continue
		}
		s := p.parseStatement()
		if s != nil {
			stmts = append(stmts, s)
		}
		p.skipNewlines()
	}
	return stmts
}

// parseBlock parses an Indent ... Dedent block. The caller has already
// consumed the header's trailing ':' and Newline.
func (p *Parser) parseBlock() []*ast.Statement {
	if _, ok := p.expect(token.Indent); !ok {
		return nil
	}
	var stmts []*ast.Statement
	p.skipNewlines()
	for !p.at(token.Dedent) && !p.at(token.EOF) {
		s := p.parseStatement()
		if s != nil {
			stmts = append(stmts, s)
		}
		p.skipNewlines()
	}
	p.expect(token.Dedent)
	return stmts
}

// expectHeaderEnd consumes the ':' and Newline that end a block header line.
func (p *Parser) expectHeaderEnd() bool {
	if _, ok := p.expect(token.Colon); !ok {
		p.recover()
		return false
	}
	p.skipNewlines()
	return true
}

func (p *Parser) parseStatement() *ast.Statement {
	t := p.cur()
	switch t.Kind {
	case token.KwTempo, token.KwBpm:
		return p.parseTempo()
	case token.KwBank:
		return p.parseBank()
	case token.AtLoad:
		return p.parseLoad()
	case token.AtUse:
		return p.parseUse()
	case token.AtImport:
		return p.parseImport()
	case token.AtExport:
		return p.parseExport()
	case token.KwLet, token.KwConst, token.KwVar:
		return p.parseLetConstVar()
	case token.KwFn:
		return p.parseFn()
	case token.KwGroup:
		return p.parseGroup()
	case token.KwCall:
		return p.parseCall()
	case token.KwSpawn:
		return p.parseSpawn()
	case token.KwSleep:
		return p.parseSleep()
	case token.KwLoop:
		return p.parseLoop()
	case token.KwFor:
		return p.parseFor()
	case token.KwIf:
		return p.parseIf()
	case token.KwAutomate:
		return p.parseAutomate()
	case token.KwOn:
		return p.parseOn()
	case token.KwEmit:
		return p.parseEmit()
	case token.KwPattern:
		return p.parsePattern()
	case token.KwPrint:
		return p.parsePrint()
	case token.KwBreak:
		s := &ast.Statement{Kind: ast.StmtBreak, Span: p.span(t)}
		p.advance()
		return s
	case token.KwReturn:
		return p.parseReturn()
	case token.TriggerDot:
		return p.parseTrigger()
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseTempo() *ast.Statement {
	t := p.advance()
	expr := p.parseExpr()
	return &ast.Statement{Kind: ast.StmtTempo, Span: p.span(t), Expr: expr}
}

func (p *Parser) parseBank() *ast.Statement {
	t := p.advance()
	name, _ := p.expect(token.Identifier)
	stmt := &ast.Statement{Kind: ast.StmtBank, Span: p.span(t), BankFullname: name.Lexeme}
	if p.at(token.KwAs) {
		p.advance()
		alias, _ := p.expect(token.Identifier)
		stmt.BankAlias = alias.Lexeme
	}
	return stmt
}

func (p *Parser) parseLoad() *ast.Statement {
	t := p.advance()
	path, _ := p.expect(token.String)
	stmt := &ast.Statement{Kind: ast.StmtLoad, Span: p.span(t), LoadPath: path.Lexeme}
	if p.at(token.KwAs) {
		p.advance()
		alias, _ := p.expect(token.Identifier)
		stmt.LoadAlias = alias.Lexeme
	}
	return stmt
}

func (p *Parser) parseUse() *ast.Statement {
	t := p.advance()
	target, _ := p.expect(token.Identifier)
	stmt := &ast.Statement{Kind: ast.StmtUse, Span: p.span(t), UseTarget: target.Lexeme}
	if p.at(token.KwAs) {
		p.advance()
		alias, _ := p.expect(token.Identifier)
		stmt.UseAlias = alias.Lexeme
	}
	return stmt
}

func (p *Parser) parseImport() *ast.Statement {
	t := p.advance()
	stmt := &ast.Statement{Kind: ast.StmtImport, Span: p.span(t)}
	if _, ok := p.expect(token.LBrace); ok {
		for !p.at(token.RBrace) && !p.at(token.EOF) {
			name, _ := p.expect(token.Identifier)
			stmt.ImportNames = append(stmt.ImportNames, name.Lexeme)
			if p.at(token.Comma) {
				p.advance()
			}
		}
		p.expect(token.RBrace)
	}
	// `from "./path"`
	if p.at(token.Identifier) && p.cur().Lexeme == "from" {
		p.advance()
	}
	path, _ := p.expect(token.String)
	stmt.ImportPath = path.Lexeme
	return stmt
}

func (p *Parser) parseExport() *ast.Statement {
	t := p.advance()
	stmt := &ast.Statement{Kind: ast.StmtExport, Span: p.span(t)}
	if _, ok := p.expect(token.LBrace); ok {
		for !p.at(token.RBrace) && !p.at(token.EOF) {
			name, _ := p.expect(token.Identifier)
			stmt.ExportNames = append(stmt.ExportNames, name.Lexeme)
			if p.at(token.Comma) {
				p.advance()
			}
		}
		p.expect(token.RBrace)
	}
	return stmt
}

func (p *Parser) parseLetConstVar() *ast.Statement {
	t := p.advance()
	name, _ := p.expect(token.Identifier)
	stmt := &ast.Statement{
		Kind: ast.StmtLet, Span: p.span(t), Name: name.Lexeme,
		IsConst: t.Kind == token.KwConst, VarKind: t.Lexeme,
	}
	if _, ok := p.expect(token.Assign); !ok {
		return stmt
	}
	stmt.Expr = p.parseRHS()
	return stmt
}

// parseRHS parses the right-hand side of a let/const/var binding, which
// includes the `synth <waveform>` pseudo-constructor as a call expression.
func (p *Parser) parseRHS() ast.Expression {
	if p.at(token.KwSynth) {
		t := p.advance()
		wave, _ := p.expect(token.Identifier)
		return ast.Expression{
			Kind: ast.ExprCall, Span: p.span(t),
			Callee: &ast.Expression{Kind: ast.ExprIdentifier, Name: "synth", Span: p.span(t)},
			Args:   []ast.Expression{{Kind: ast.ExprIdentifier, Name: wave.Lexeme, Span: p.span(wave)}},
		}
	}
	return p.parseExpr()
}

func (p *Parser) parseFn() *ast.Statement {
	t := p.advance()
	name, _ := p.expect(token.Identifier)
	stmt := &ast.Statement{Kind: ast.StmtFn, Span: p.span(t), Name: name.Lexeme}
	if _, ok := p.expect(token.LParen); ok {
		for !p.at(token.RParen) && !p.at(token.EOF) {
			pn, _ := p.expect(token.Identifier)
			stmt.Params = append(stmt.Params, pn.Lexeme)
			if p.at(token.Comma) {
				p.advance()
			}
		}
		p.expect(token.RParen)
	}
	if !p.expectHeaderEnd() {
		return stmt
	}
	stmt.Body = p.parseBlock()
	return stmt
}

func (p *Parser) parseGroup() *ast.Statement {
	t := p.advance()
	name, _ := p.expect(token.Identifier)
	stmt := &ast.Statement{Kind: ast.StmtGroup, Span: p.span(t), Name: name.Lexeme}
	if !p.expectHeaderEnd() {
		return stmt
	}
	stmt.Body = p.parseBlock()
	return stmt
}

func (p *Parser) parseCall() *ast.Statement {
	t := p.advance()
	name, _ := p.expect(token.Identifier)
	return &ast.Statement{Kind: ast.StmtCall, Span: p.span(t), Name: name.Lexeme}
}

func (p *Parser) parseSpawn() *ast.Statement {
	t := p.advance()
	stmt := &ast.Statement{Kind: ast.StmtSpawn, Span: p.span(t)}
	if p.at(token.Colon) {
		// Anonymous inline spawn: spawn: <block>
		if !p.expectHeaderEnd() {
			return stmt
		}
		stmt.Body = p.parseBlock()
		return stmt
	}
	name, _ := p.expect(token.Identifier)
	stmt.Name = name.Lexeme
	return stmt
}

func (p *Parser) parseSleep() *ast.Statement {
	t := p.advance()
	return &ast.Statement{Kind: ast.StmtSleep, Span: p.span(t), Expr: p.parseDurationExpr()}
}

func (p *Parser) parseLoop() *ast.Statement {
	t := p.advance()
	stmt := &ast.Statement{Kind: ast.StmtLoop, Span: p.span(t)}
	if p.at(token.KwPass) {
		p.advance()
		p.expect(token.LParen)
		stmt.PassMs = p.parseExpr()
		p.expect(token.RParen)
	} else if !p.at(token.Colon) {
		stmt.LoopN = p.parseExpr()
	}
	if !p.expectHeaderEnd() {
		return stmt
	}
	stmt.Body = p.parseBlock()
	return stmt
}

func (p *Parser) parseFor() *ast.Statement {
	t := p.advance()
	name, _ := p.expect(token.Identifier)
	p.expect(token.KwIn)
	iter := p.parseExpr()
	stmt := &ast.Statement{Kind: ast.StmtFor, Span: p.span(t), LoopVar: name.Lexeme, Iterable: iter}
	if !p.expectHeaderEnd() {
		return stmt
	}
	stmt.Body = p.parseBlock()
	return stmt
}

func (p *Parser) parseIf() *ast.Statement {
	t := p.advance()
	cond := p.parseExpr()
	stmt := &ast.Statement{Kind: ast.StmtIf, Span: p.span(t), Cond: cond}
	if !p.expectHeaderEnd() {
		return stmt
	}
	stmt.Body = p.parseBlock()
	for p.at(token.KwElse) && p.peekAt(1).Kind == token.KwIf {
		p.advance() // else
		p.advance() // if
		c := p.parseExpr()
		if !p.expectHeaderEnd() {
			break
		}
		b := p.parseBlock()
		stmt.ElseIfs = append(stmt.ElseIfs, &ast.IfClause{Cond: c, Body: b})
	}
	if p.at(token.KwElse) {
		p.advance()
		if p.expectHeaderEnd() {
			stmt.ElseBody = p.parseBlock()
		}
	}
	return stmt
}

func (p *Parser) parseAutomate() *ast.Statement {
	t := p.advance()
	target, _ := p.expect(token.Identifier)
	stmt := &ast.Statement{Kind: ast.StmtAutomate, Span: p.span(t), AutomateTarget: target.Lexeme, AutomateMode: "global"}
	if p.at(token.KwMode) {
		p.advance()
		mt := p.advance()
		stmt.AutomateMode = mt.Lexeme
	}
	if !p.expectHeaderEnd() {
		return stmt
	}
	p.expect(token.Indent)
	p.skipNewlines()
	if p.at(token.KwParam) {
		p.advance()
		pn, _ := p.expect(token.Identifier)
		stmt.AutomateParam = pn.Lexeme
		stmt.Keypoints = p.parseKeypointMap()
	}
	p.skipNewlines()
	for !p.at(token.Dedent) && !p.at(token.EOF) {
		// note-mode automate blocks may contain a nested body (arrow calls)
		s := p.parseStatement()
		if s != nil {
			stmt.Body = append(stmt.Body, s)
		}
		p.skipNewlines()
	}
	p.expect(token.Dedent)
	return stmt
}

func (p *Parser) parseKeypointMap() []ast.Keypoint {
	var kps []ast.Keypoint
	if _, ok := p.expect(token.LBrace); !ok {
		return kps
	}
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		numTok, _ := p.expect(token.Number)
		p.expect(token.Percent)
		p.expect(token.Colon)
		val := p.parseExpr()
		frac, _ := strconv.ParseFloat(numTok.Lexeme, 64)
		kps = append(kps, ast.Keypoint{Fraction: frac / 100.0, Value: val})
		if p.at(token.Comma) {
			p.advance()
		}
	}
	p.expect(token.RBrace)
	return kps
}

func (p *Parser) parseOn() *ast.Statement {
	t := p.advance()
	name, _ := p.expect(token.Identifier)
	stmt := &ast.Statement{Kind: ast.StmtOn, Span: p.span(t), EventName: name.Lexeme}
	if !p.expectHeaderEnd() {
		return stmt
	}
	stmt.Body = p.parseBlock()
	return stmt
}

func (p *Parser) parseEmit() *ast.Statement {
	t := p.advance()
	name, _ := p.expect(token.Identifier)
	stmt := &ast.Statement{Kind: ast.StmtEmit, Span: p.span(t), EventName: name.Lexeme}
	if p.at(token.LBrace) {
		stmt.EmitArgs = p.parseMapLiteral()
	}
	return stmt
}

func (p *Parser) parsePattern() *ast.Statement {
	t := p.advance()
	name, _ := p.expect(token.Identifier)
	stmt := &ast.Statement{Kind: ast.StmtPattern, Span: p.span(t), Name: name.Lexeme}
	if p.at(token.KwWith) {
		p.advance()
		bt, _ := p.expect(token.Identifier)
		// bt.Lexeme is a dotted identifier "bank.trigger"
		stmt.PatternBank = bt.Lexeme
	}
	p.expect(token.Assign)
	step, _ := p.expect(token.String)
	stmt.PatternStep = step.Lexeme
	return stmt
}

func (p *Parser) parsePrint() *ast.Statement {
	t := p.advance()
	return &ast.Statement{Kind: ast.StmtPrint, Span: p.span(t), Expr: p.parseExpr()}
}

func (p *Parser) parseReturn() *ast.Statement {
	t := p.advance()
	stmt := &ast.Statement{Kind: ast.StmtReturn, Span: p.span(t)}
	if !p.at(token.Newline) && !p.at(token.Dedent) && !p.at(token.EOF) {
		stmt.Expr = p.parseExpr()
	}
	return stmt
}

// parseTrigger parses `.alias.trigger [duration] [{effects}]`.
func (p *Parser) parseTrigger() *ast.Statement {
	t := p.advance() // TriggerDot
	name, ok := p.expect(token.Identifier)
	if !ok {
		p.recover()
		return nil
	}
	stmt := &ast.Statement{Kind: ast.StmtTrigger, Span: p.span(t), TriggerTarget: name.Lexeme}
	if p.at(token.Number) || p.at(token.Identifier) && p.cur().Lexeme == "auto" {
		stmt.TriggerDur = p.parseDurationExpr()
	}
	if p.at(token.LBrace) {
		stmt.TriggerArgs = p.parseMapLiteral()
	}
	return stmt
}

// parseExprStatement handles arrow-calls and bare expression statements
// (e.g. invoking a user-defined function for its side effects).
func (p *Parser) parseExprStatement() *ast.Statement {
	t := p.cur()
	expr := p.parseExpr()
	if p.at(token.Arrow) {
		stmt := &ast.Statement{Kind: ast.StmtArrowCall, Span: p.span(t), ArrowTarget: expr}
		for p.at(token.Arrow) {
			p.advance()
			var mt token.Token
			if p.at(token.KwNote) {
				mt = p.advance()
			} else {
				mt, _ = p.expect(token.Identifier)
			}
			method := mt.Lexeme
			var args []ast.Expression
			if p.at(token.LParen) {
				p.advance()
				for !p.at(token.RParen) && !p.at(token.EOF) {
					args = append(args, p.parseExpr())
					if p.at(token.Comma) {
						p.advance()
					}
				}
				p.expect(token.RParen)
			}
			stmt.ArrowChain = append(stmt.ArrowChain, ast.ArrowStage{Method: method, Args: args, Span: p.span(mt)})
		}
		return stmt
	}
	return &ast.Statement{Kind: ast.StmtExprStmt, Span: p.span(t), Expr: expr}
}
