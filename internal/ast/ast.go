// Package ast defines the spanned AST produced by the parser.
package ast

import "github.com/jinjacore/dbtjinja/internal/lexer"

// Span re-exports the lexer's byte/line/col span so AST and token code share
// one representation end to end.
type Span = lexer.Span

// Node is implemented by every statement and expression.
type Node interface {
	Span() Span
}

// ---- Statements ----

type Stmt interface {
	Node
	stmtNode()
}

// Spanned carries the byte span every AST node embeds.
type Spanned struct{ Sp Span }

func (b Spanned) Span() Span { return b.Sp }

// NewSpanned constructs a Spanned from a span, for use in node literals.
func NewSpanned(s Span) Spanned { return Spanned{Sp: s} }

// Template is the root node: a sequence of top-level statements.
type Template struct {
	Spanned
	Body []Stmt
}

// EmitExpr is `{{ expr }}`.
type EmitExpr struct {
	Spanned
	Expr Expr
}

// EmitRaw is literal template text between directives.
type EmitRaw struct {
	Spanned
	Data string
}

// ForLoop is `{% for target in iter %}body{% else %}orelse{% endfor %}`.
type ForLoop struct {
	Spanned
	Target    []string // tuple-unpack targets; len 1 for a single loop var
	Iter      Expr
	Body      []Stmt
	Else      []Stmt
	Recursive bool
	Filter    Expr // optional `{% for x in y if cond %}`
}

// IfCond is `{% if cond %}then{% elif ... %}{% else %}else{% endif %}`.
type IfCond struct {
	Spanned
	Cond Expr
	Then []Stmt
	Else []Stmt // may itself be a single IfCond for elif chains
}

// WithBlock is `{% with a = 1, b = 2 %}body{% endwith %}`.
type WithBlock struct {
	Spanned
	Names  []string
	Values []Expr
	Body   []Stmt
}

// Set is `{% set name = expr %}` (possibly with attribute/index targets).
type Set struct {
	Spanned
	Target Expr // Var, GetAttr, or GetItem
	Value  Expr
	Filter string // optional `{% set x | filter %}` single-name shorthand
}

// SetBlock is `{% set name %}body{% endset %}` — the body's captured output
// becomes the assigned value.
type SetBlock struct {
	Spanned
	Target Expr
	Body   []Stmt
	Filter string
}

// AutoEscape is `{% autoescape mode %}body{% endautoescape %}`.
type AutoEscape struct {
	Spanned
	Mode Expr
	Body []Stmt
}

// FilterBlock is `{% filter name %}body{% endfilter %}`.
type FilterBlock struct {
	Spanned
	Filter Expr // a Filter expr chain applied to captured body output
	Body   []Stmt
}

// Block is `{% block name %}body{% endblock %}` (template inheritance).
type Block struct {
	Spanned
	Name     string
	Body     []Stmt
	Scoped   bool
	Required bool
}

// Import is `{% import "tpl" as name %}`.
type Import struct {
	Spanned
	Template Expr
	Name     string
	IgnoreMissing bool
}

// FromImport is `{% from "tpl" import a, b as c %}`.
type FromImport struct {
	Spanned
	Template Expr
	Names    []ImportedName
	IgnoreMissing bool
}

type ImportedName struct {
	Name  string
	Alias string
}

// Extends is `{% extends "tpl" %}`.
type Extends struct {
	Spanned
	Template Expr
}

// Include is `{% include "tpl" ignore missing %}`.
type Include struct {
	Spanned
	Template      Expr // string or list of candidate names
	IgnoreMissing bool
	WithContext   bool
}

// MacroKind distinguishes the dbt-flavored macro-like declarations that all
// compile to an internally-named macro.
type MacroKind uint8

const (
	MacroKindMacro MacroKind = iota
	MacroKindTest
	MacroKindSnapshot
	MacroKindMaterialization
	MacroKindDocs
)

// Macro is `{% macro name(args) %}body{% endmacro %}` and its dbt-dialect
// variants (test/snapshot/materialization/docs), which are parsed down to
// the same node with Kind + InternalName set.
type Macro struct {
	Spanned
	Kind         MacroKind
	Name         string // surface name, e.g. "foo" in `test foo(...)`
	InternalName string // e.g. "test_foo", "materialization_foo_x"
	Args         []MacroArg
	Body         []Stmt
	// DocsRaw holds the raw, syntax-unchecked body text for `docs ...
	// enddocs` blocks by force-advancing past malformed tokens.
	DocsRaw string
}

type MacroArg struct {
	Name    string
	Default Expr // nil if required
}

// CallBlock is `{% call macro(args) %}body{% endcall %}`; Body becomes the
// value `caller()` returns when invoked from within macro.
type CallBlock struct {
	Spanned
	Call Expr // a Call expression naming the macro
	Body []Stmt
}

type Continue struct{ Spanned }
type Break struct{ Spanned }

// Do evaluates Expr for its side effects and discards the result; `print`
// is parsed as a Do node too, aliased semantically to do.
type Do struct {
	Spanned
	Expr Expr
}

type Comment struct {
	Spanned
	Text string
}

func (*Template) stmtNode()    {}
func (*EmitExpr) stmtNode()    {}
func (*EmitRaw) stmtNode()     {}
func (*ForLoop) stmtNode()     {}
func (*IfCond) stmtNode()      {}
func (*WithBlock) stmtNode()   {}
func (*Set) stmtNode()         {}
func (*SetBlock) stmtNode()    {}
func (*AutoEscape) stmtNode()  {}
func (*FilterBlock) stmtNode() {}
func (*Block) stmtNode()       {}
func (*Import) stmtNode()      {}
func (*FromImport) stmtNode()  {}
func (*Extends) stmtNode()     {}
func (*Include) stmtNode()     {}
func (*Macro) stmtNode()       {}
func (*CallBlock) stmtNode()   {}
func (*Continue) stmtNode()    {}
func (*Break) stmtNode()       {}
func (*Do) stmtNode()          {}
func (*Comment) stmtNode()     {}

// ---- Expressions ----

type Expr interface {
	Node
	exprNode()
}

type Var struct {
	Spanned
	Name string
}

// ConstKind tags the literal kind carried by Const, since Go's empty
// interface would otherwise lose the scalar/string/bytes distinction.
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstUndefined
	ConstBool
	ConstInt
	ConstBigInt
	ConstFloat
	ConstString
	ConstBytes
)

type Const struct {
	Spanned
	Kind ConstKind
	B    bool
	I    int64
	Big  string // decimal text for ConstBigInt
	F    float64
	S    string
}

type Slice struct {
	Spanned
	Target      Expr
	Start, Stop, Step Expr // any may be nil
}

type UnaryOp struct {
	Spanned
	Op   string // "-", "not"
	Expr Expr
}

type BinOp struct {
	Spanned
	Op          string // "+","-","*","/","//","%","**","==","!=","<","<=",">",">=","and","or","in","~"
	Left, Right Expr
}

type IfExpr struct {
	Spanned
	Cond Expr
	Then Expr
	Else Expr // nil => undefined when Cond is false
}

type Filter struct {
	Spanned
	Target Expr
	Name   string
	Args   []Expr
	Kwargs []KwArg
}

type Test struct {
	Spanned
	Target Expr
	Name   string
	Not    bool
	Args   []Expr
	Kwargs []KwArg
}

type GetAttr struct {
	Spanned
	Target Expr
	Name   string
}

type GetItem struct {
	Spanned
	Target Expr
	Index  Expr
}

type KwArg struct {
	Name  string
	Value Expr
}

type Call struct {
	Spanned
	Callee     Expr
	Args       []Expr
	Kwargs     []KwArg
	ArgSplat   Expr // *splat, nil if absent
	KwargSplat Expr // **splat, nil if absent
}

type List struct {
	Spanned
	Items []Expr
}

type MapLit struct {
	Spanned
	Keys   []Expr
	Values []Expr
}

type Tuple struct {
	Spanned
	Items []Expr
}

func (*Var) exprNode()     {}
func (*Const) exprNode()   {}
func (*Slice) exprNode()   {}
func (*UnaryOp) exprNode() {}
func (*BinOp) exprNode()   {}
func (*IfExpr) exprNode()  {}
func (*Filter) exprNode()  {}
func (*Test) exprNode()    {}
func (*GetAttr) exprNode() {}
func (*GetItem) exprNode() {}
func (*Call) exprNode()    {}
func (*List) exprNode()    {}
func (*MapLit) exprNode()  {}
func (*Tuple) exprNode()   {}

// NewSpan builds a Span from two child spans, covering their concatenation:
// the end-span of a node always covers exactly its children's spans.
func NewSpan(start, end Span) Span {
	return Span{Start: start.Start, End: end.End}
}

// With constructs a Spanned with the given span; statement/expression
// constructors embed it directly rather than through a helper method set
// to keep struct literals simple at call sites.
func With(s Span) Spanned { return Spanned{Sp: s} }
