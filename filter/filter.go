package filter

import (
	"errors"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/fanyeren/sysdig/errs"
)

// Predicate is a compiled filter expression (spec §4.7).
type Predicate interface {
	// Evaluate reports whether ctx passes the filter. Side-effect free.
	Evaluate(ctx *Context) bool

	// WorksOnThreadTableOnly reports whether every field this predicate
	// references resolves off the thread record alone, letting the
	// inspector evaluate it against a minimal/incomplete event (spec
	// §4.6 tie-break clause, §4.7).
	WorksOnThreadTableOnly() bool
}

type compiled struct {
	expr *Expression
}

func (c *compiled) Evaluate(ctx *Context) bool  { return c.expr.evaluate(ctx) }
func (c *compiled) WorksOnThreadTableOnly() bool { return c.expr.threadTableOnly() }

// Compile parses expression into a Predicate, or returns a
// *errs.CompileError wrapping errs.FilterCompile with a byte position
// (spec §4.7 "compile(expression) returns a predicate or a
// FilterCompile error carrying position information"; worked example
// in spec §8.4: `set_filter("evt.type = ")` must return a FilterCompile
// error with the column pointing past `=`).
func Compile(expression string) (Predicate, error) {
	expr, err := filterParser.ParseString("", expression)
	if err != nil {
		return nil, toCompileError(expression, err)
	}
	return &compiled{expr: expr}, nil
}

func toCompileError(expression string, err error) error {
	var perr participle.Error
	if errors.As(err, &perr) {
		pos := perr.Position()
		return &errs.CompileError{
			Expr:    expression,
			Pos:     byteOffset(expression, pos),
			Message: perr.Message(),
		}
	}
	return errs.Wrap(errs.FilterCompile, "%v", err)
}

// byteOffset converts a lexer.Position (line/column, 1-based) back to
// a byte offset into expression. The grammar is single-line, so this
// only needs to account for the column.
func byteOffset(expression string, pos lexer.Position) int {
	if pos.Column <= 1 {
		return 0
	}
	off := pos.Column - 1
	if off > len(expression) {
		off = len(expression)
	}
	return off
}
