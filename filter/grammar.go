package filter

import (
	"github.com/alecthomas/participle/v2"
)

// Grammar (spec §8.4 "Filter Gate (C7) (expansion: grammar)"):
//
//	expr       := orExpr
//	orExpr     := andExpr ("or" andExpr)*
//	andExpr    := unary ("and" unary)*
//	unary      := "not" unary | primary
//	primary    := "(" expr ")" | comparison
//	comparison := field op value
//	field      := ident ("." ident)*
//	op         := "=" | "!=" | "contains" | "in" "(" value ("," value)* ")"
type Expression struct {
	Or *OrExpr `@@`
}

type OrExpr struct {
	Left  *AndExpr   `@@`
	Right []*AndExpr `("or" @@)*`
}

type AndExpr struct {
	Left  *Unary   `@@`
	Right []*Unary `("and" @@)*`
}

type Unary struct {
	Not     *Unary   `(  "not" @@`
	Primary *Primary `  | @@ )`
}

type Primary struct {
	Sub        *Expression `(  "(" @@ ")"`
	Comparison *Comparison `  | @@ )`
}

type Comparison struct {
	Field *Field `@@`

	Eq       *Value  `(  "=" @@`
	Neq      *Value  `  | "!=" @@`
	Contains *Value  `  | "contains" @@`
	In       []*Value `  | "in" "(" @@ ("," @@)* ")" )`
}

type Field struct {
	Parts []string `@Ident ("." @Ident)*`
}

type Value struct {
	Str   *string `  @String`
	Int   *int64  `| @Int`
	Ident *string `| @Ident`
}

var filterParser = participle.MustBuild[Expression](
	participle.Lexer(filterLexer),
	participle.Unquote("String"),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)
