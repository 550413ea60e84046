// Package filter implements C7 (spec §4.7): compiling the
// `evt.type = ...` boolean expression language into a predicate that
// can be evaluated against a parsed event without side effects.
// Grounded on the teacher's sigma/sigma.go, which compiles a rule
// source into a predicate once and evaluates it repeatedly per event;
// generalized from Sigma's YAML condition strings to the flat boolean
// grammar spec.md §8.4 sketches, using participle (a teacher
// transitive dependency via sigma-go, promoted to direct since Sigma's
// own rule format has no equivalent here — only its parser-combinator
// library is reusable, not its rule model).
package filter

import (
	"github.com/alecthomas/participle/v2/lexer"
)

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\n\r]+`},
	{Name: "String", Pattern: `"(\\.|[^"])*"`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `!=|[=(),.]`},
})
