package parser

import (
	"strconv"
	"strings"

	"github.com/schollz/collidertracker/internal/ast"
	"github.com/schollz/collidertracker/internal/token"
)

// precedence table for binary operators, lowest to highest.
var binPrec = map[token.Kind]int{
	token.EqEq: 1, token.NotEq: 1,
	token.Lt: 2, token.LtEq: 2, token.Gt: 2, token.GtEq: 2,
	token.Plus: 3, token.Minus: 3,
	token.Star: 4, token.Slash: 4, token.Percent: 4,
}

// parseExpr parses a full expression using precedence climbing.
func (p *Parser) parseExpr() ast.Expression {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(minPrec int) ast.Expression {
	left := p.parseUnary()
	for {
		prec, ok := binPrec[p.cur().Kind]
		if !ok || prec < minPrec {
			return left
		}
		opTok := p.advance()
		right := p.parseBinary(prec + 1)
		left = ast.Expression{
			Kind: ast.ExprBinary, Span: left.Span,
			Op: opTok.Kind.String(), Left: &left, Right: &right,
		}
	}
}

func (p *Parser) parseUnary() ast.Expression {
	if p.at(token.Minus) {
		t := p.advance()
		operand := p.parseUnary()
		return ast.Expression{Kind: ast.ExprUnary, Span: p.span(t), Op: "-", Right: &operand}
	}
	return p.parsePostfix()
}

// parsePostfix handles call/index/field chains after a primary expression.
func (p *Parser) parsePostfix() ast.Expression {
	expr := p.parsePrimary()
	for {
		switch {
		case p.at(token.LParen):
			t := p.advance()
			var args []ast.Expression
			for !p.at(token.RParen) && !p.at(token.EOF) {
				args = append(args, p.parseExpr())
				if p.at(token.Comma) {
					p.advance()
				}
			}
			p.expect(token.RParen)
			callee := expr
			expr = ast.Expression{Kind: ast.ExprCall, Span: p.span(t), Callee: &callee, Args: args}
		case p.at(token.LBracket):
			t := p.advance()
			idx := p.parseExpr()
			p.expect(token.RBracket)
			target := expr
			expr = ast.Expression{Kind: ast.ExprIndex, Span: p.span(t), Target: &target, Index: &idx}
		case p.at(token.Dot):
			t := p.advance()
			name, _ := p.expect(token.Identifier)
			target := expr
			expr = ast.Expression{Kind: ast.ExprField, Span: p.span(t), Target: &target, Name: name.Lexeme}
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.Expression {
	t := p.cur()
	switch t.Kind {
	case token.Number:
		p.advance()
		n, _ := strconv.ParseFloat(t.Lexeme, 64)
		// The lexer has no `ms` suffix; a Number here is a plain number.
		// Statement-position durations (a bare millisecond count, `n/d`,
		// `auto`) go through parseDurationExpr instead.
		return ast.Expression{Kind: ast.ExprNumber, Span: p.span(t), Number: n}
	case token.String:
		p.advance()
		return ast.Expression{Kind: ast.ExprString, Span: p.span(t), Str: t.Lexeme}
	case token.KwTrue, token.KwFalse:
		p.advance()
		return ast.Expression{Kind: ast.ExprBoolean, Span: p.span(t), Boolean: t.Kind == token.KwTrue}
	case token.Identifier:
		p.advance()
		return ast.Expression{Kind: ast.ExprIdentifier, Span: p.span(t), Name: t.Lexeme}
	case token.LParen:
		p.advance()
		e := p.parseExpr()
		p.expect(token.RParen)
		return e
	case token.LBracket:
		return p.parseArrayOrRange()
	case token.LBrace:
		return p.parseMapLiteral()
	case token.DollarEnv, token.DollarMath, token.DollarEasing, token.DollarMod, token.DollarCurve, token.DollarBeat, token.DollarBar:
		return p.parseSpecial()
	default:
		p.errf(t, "unexpected token %s in expression", t.Kind)
		p.advance()
		return ast.Expression{Kind: ast.ExprNumber, Span: p.span(t)}
	}
}

// parseArrayOrRange parses `[a, b, c]` or `[lo..hi]`.
func (p *Parser) parseArrayOrRange() ast.Expression {
	t := p.advance() // [
	if p.at(token.RBracket) {
		p.advance()
		return ast.Expression{Kind: ast.ExprArray, Span: p.span(t)}
	}
	first := p.parseExpr()
	if p.at(token.DotDot) {
		p.advance()
		last := p.parseExpr()
		p.expect(token.RBracket)
		return ast.Expression{Kind: ast.ExprRange, Span: p.span(t), RangeLo: &first, RangeHi: &last}
	}
	elems := []ast.Expression{first}
	for p.at(token.Comma) {
		p.advance()
		if p.at(token.RBracket) {
			break
		}
		elems = append(elems, p.parseExpr())
	}
	p.expect(token.RBracket)
	return ast.Expression{Kind: ast.ExprArray, Span: p.span(t), Elements: elems}
}

// parseMapLiteral parses `{key: value, key2: value2}`. Keys may be a bare
// identifier, a string, or (inside automate param blocks) a `N%` fraction;
// the fraction form is handled separately by parseKeypointMap, so here keys
// are always identifier or string.
func (p *Parser) parseMapLiteral() ast.Expression {
	t := p.advance() // {
	m := ast.Expression{Kind: ast.ExprMap, Span: p.span(t)}
	for !p.at(token.RBrace) && !p.at(token.EOF) {
		var key string
		switch {
		case p.at(token.Identifier):
			key = p.advance().Lexeme
		case p.at(token.String):
			key = p.advance().Lexeme
		default:
			kt := p.advance()
			key = kt.Lexeme
		}
		p.expect(token.Colon)
		val := p.parseExpr()
		m.MapKeys = append(m.MapKeys, key)
		m.MapVals = append(m.MapVals, val)
		if p.at(token.Comma) {
			p.advance()
		}
	}
	p.expect(token.RBrace)
	return m
}

// parseSpecial parses a `$namespace.path.to.member` expression, optionally
// followed by a call (handled by parsePostfix via the caller chain).
func (p *Parser) parseSpecial() ast.Expression {
	t := p.advance()
	ns := strings.TrimPrefix(t.Kind.String(), "$")
	e := ast.Expression{Kind: ast.ExprSpecial, Span: p.span(t), SpecialNS: ns}
	// The lexer emits every '.' as TriggerDot, so both kinds are accepted; a
	// keyword member (`$env.bpm`) is taken by its lexeme.
	for p.at(token.Dot) || p.at(token.TriggerDot) {
		p.advance()
		name := p.cur()
		if _, isKw := token.Keywords[name.Lexeme]; isKw {
			p.advance()
		} else {
			name, _ = p.expect(token.Identifier)
		}
		e.SpecialPath = append(e.SpecialPath, name.Lexeme)
	}
	return e
}

// parseDurationExpr parses a duration in a trigger/sleep/pass argument slot:
// `auto`, a bare millisecond number, or a `<num>/<num>` beat fraction. This
// is the one place `/` means "beat fraction separator" rather than division,
// since a bare division there would be ambiguous with a fraction literal.
func (p *Parser) parseDurationExpr() ast.Expression {
	t := p.cur()
	if p.at(token.Identifier) && t.Lexeme == "auto" {
		p.advance()
		return ast.Expression{Kind: ast.ExprDuration, Span: p.span(t), IsAuto: true}
	}
	if p.at(token.Number) {
		numTok := p.advance()
		num, _ := strconv.ParseFloat(numTok.Lexeme, 64)
		if p.at(token.Slash) {
			p.advance()
			denTok, _ := p.expect(token.Number)
			den, _ := strconv.ParseFloat(denTok.Lexeme, 64)
			return ast.Expression{Kind: ast.ExprDuration, Span: p.span(t), DurNum: num, DurDen: den}
		}
		return ast.Expression{Kind: ast.ExprDuration, Span: p.span(t), DurMs: num}
	}
	// Fall back to a general expression (e.g. a variable holding a duration).
	return p.parseExpr()
}
