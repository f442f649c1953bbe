package vpl

import "fmt"

// Parse parses a VPL pipeline expression into its AST. Parse performs only
// syntactic validation (grammar, balanced brackets, well-formed values);
// semantic validation against a concrete operation registry is done
// separately by Validate.
func Parse(src string) (Pipeline, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return Pipeline{}, err
	}
	pipeline, err := p.parsePipeline()
	if err != nil {
		return Pipeline{}, err
	}
	if p.tok.kind != tokEOF {
		return Pipeline{}, &ParseError{Line: p.tok.line, Col: p.tok.col, Reason: fmt.Sprintf("unexpected token %q after pipeline", p.tok.text)}
	}
	return pipeline, nil
}

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expect(k tokenKind, what string) (token, error) {
	if p.tok.kind != k {
		return token{}, &ParseError{Line: p.tok.line, Col: p.tok.col, Reason: fmt.Sprintf("expected %s, got %q", what, p.tok.text)}
	}
	t := p.tok
	return t, p.advance()
}

// parsePipeline := operation ( '|' operation )*
func (p *parser) parsePipeline() (Pipeline, error) {
	op, err := p.parseOperation()
	if err != nil {
		return Pipeline{}, err
	}
	ops := []Operation{op}
	for p.tok.kind == tokPipe {
		if err := p.advance(); err != nil {
			return Pipeline{}, err
		}
		op, err := p.parseOperation()
		if err != nil {
			return Pipeline{}, err
		}
		ops = append(ops, op)
	}
	return Pipeline{Operations: ops}, nil
}

// parseOperation := name ( arg | source_list )*
func (p *parser) parseOperation() (Operation, error) {
	nameTok, err := p.expect(tokIdent, "operation name")
	if err != nil {
		return Operation{}, err
	}
	op := Operation{Name: nameTok.text, Line: nameTok.line, Col: nameTok.col}

	for {
		switch p.tok.kind {
		case tokIdent:
			arg, err := p.parseArg()
			if err != nil {
				return Operation{}, err
			}
			op.Args = append(op.Args, arg)
		case tokLBrack:
			sources, err := p.parseSourceList()
			if err != nil {
				return Operation{}, err
			}
			op.Sources = append(op.Sources, sources...)
		default:
			return op, nil
		}
	}
}

// parseArg := key '=' value
func (p *parser) parseArg() (Arg, error) {
	keyTok, err := p.expect(tokIdent, "argument key")
	if err != nil {
		return Arg{}, err
	}
	if _, err := p.expect(tokEquals, "'='"); err != nil {
		return Arg{}, err
	}
	val, err := p.parseValue()
	if err != nil {
		return Arg{}, err
	}
	return Arg{Key: keyTok.text, Value: val}, nil
}

// parseValue := quoted_string | bracketed_list | number | identifier
func (p *parser) parseValue() (Value, error) {
	switch p.tok.kind {
	case tokString:
		s := p.tok.text
		return s, p.advance()
	case tokNumber:
		n := p.tok.num
		return n, p.advance()
	case tokIdent:
		s := p.tok.text
		return s, p.advance()
	case tokLBrack:
		return p.parseValueList()
	default:
		return nil, &ParseError{Line: p.tok.line, Col: p.tok.col, Reason: fmt.Sprintf("expected value, got %q", p.tok.text)}
	}
}

// parseValueList parses a bracketed, comma-separated list of plain values
// (used for arg values like levels=[1,2,3] or layers=["a","b"]).
func (p *parser) parseValueList() (Value, error) {
	if _, err := p.expect(tokLBrack, "'['"); err != nil {
		return nil, err
	}
	var values []Value
	if p.tok.kind != tokRBrack {
		for {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(tokRBrack, "']'"); err != nil {
		return nil, err
	}
	return values, nil
}

// parseSourceList := '[' pipeline ( ',' pipeline )* ']'
func (p *parser) parseSourceList() ([]Pipeline, error) {
	if _, err := p.expect(tokLBrack, "'['"); err != nil {
		return nil, err
	}
	var pipelines []Pipeline
	pl, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	pipelines = append(pipelines, pl)
	for p.tok.kind == tokComma {
		if err := p.advance(); err != nil {
			return nil, err
		}
		pl, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, pl)
	}
	if _, err := p.expect(tokRBrack, "']'"); err != nil {
		return nil, err
	}
	return pipelines, nil
}
