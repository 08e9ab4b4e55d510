// Package host is the front end for the Python syntax host language: it
// turns source text into a Node tree (through tree-sitter), caches parses,
// and defines the host object model the interpreter works with.
package host

// Node is any syntax tree node.
type Node interface {
	Line() int
}

// Pos is embedded by every node and carries its 1-based source line.
type Pos struct {
	Ln int
}

func (p Pos) Line() int { return p.Ln }

// Stmt is a statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is an expression node.
type Expr interface {
	Node
	exprNode()
}

// Module is a parsed source file.
type Module struct {
	Pos
	Filename string
	Body     []Stmt
}

// Param is a function parameter. Kind tells plain, *args and **kwargs
// parameters apart; KwOnly marks parameters following a bare '*'.
type Param struct {
	Name    string
	Default Expr
	Kind    ParamKind
	KwOnly  bool
}

type ParamKind int

const (
	ParamPlain ParamKind = iota
	ParamVarArgs
	ParamKwArgs
)

// FunctionDef is a def statement. Decorators are evaluated when the
// definition runs.
type FunctionDef struct {
	Pos
	Name       string
	Params     []Param
	Decorators []Expr
	Body       []Stmt
}

type ClassDef struct {
	Pos
	Name       string
	Bases      []Expr
	Decorators []Expr
	Body       []Stmt
}

// Assign binds Value to every target: "a = b = value".
type Assign struct {
	Pos
	Targets []Expr
	Value   Expr
}

type AugAssign struct {
	Pos
	Target Expr
	Op     string
	Value  Expr
}

type ExprStmt struct {
	Pos
	X Expr
}

// If holds an elif chain as a single nested If in Orelse.
type If struct {
	Pos
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

type For struct {
	Pos
	Target Expr
	Iter   Expr
	Body   []Stmt
	Orelse []Stmt
}

type While struct {
	Pos
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

type Break struct{ Pos }
type Continue struct{ Pos }
type Pass struct{ Pos }

type Return struct {
	Pos
	Value Expr
}

type RaiseStmt struct {
	Pos
	Exc Expr
}

type Assert struct {
	Pos
	Test Expr
	Msg  Expr
}

type Global struct {
	Pos
	Names []string
}

type Delete struct {
	Pos
	Targets []Expr
}

// Alias is one imported name, with its optional "as" name.
type Alias struct {
	Name   string
	AsName string
}

type Import struct {
	Pos
	Names []Alias
}

// ImportFrom is "from Module import Names". A single "*" alias imports
// every public name.
type ImportFrom struct {
	Pos
	Module string
	Names  []Alias
}

// Handler is one except clause. A nil Type catches everything.
type Handler struct {
	Line int
	Type Expr
	Name string
	Body []Stmt
}

type Try struct {
	Pos
	Body     []Stmt
	Handlers []Handler
	Orelse   []Stmt
	Finally  []Stmt
}

type WithItem struct {
	Context Expr
	Target  Expr
}

type With struct {
	Pos
	Items []WithItem
	Body  []Stmt
}

// MatchCase is one case arm. Patterns holds the alternatives, a nil
// pattern is the catch all "_".
type MatchCase struct {
	Line     int
	Patterns []Pattern
	Guard    Expr
	Body     []Stmt
}

type Match struct {
	Pos
	Subject Expr
	Cases   []MatchCase
}

// Pattern is a case pattern.
type Pattern interface {
	Node
	patternNode()
}

// MatchValue compares the subject with an expression value.
type MatchValue struct {
	Pos
	Value Expr
}

// MatchCapture binds the subject to Name ("case x:"). An empty name is
// the wildcard.
type MatchCapture struct {
	Pos
	Name string
}

func (*FunctionDef) stmtNode() {}
func (*ClassDef) stmtNode()    {}
func (*Assign) stmtNode()      {}
func (*AugAssign) stmtNode()   {}
func (*ExprStmt) stmtNode()    {}
func (*If) stmtNode()          {}
func (*For) stmtNode()         {}
func (*While) stmtNode()       {}
func (*Break) stmtNode()       {}
func (*Continue) stmtNode()    {}
func (*Pass) stmtNode()        {}
func (*Return) stmtNode()      {}
func (*RaiseStmt) stmtNode()   {}
func (*Assert) stmtNode()      {}
func (*Global) stmtNode()      {}
func (*Delete) stmtNode()      {}
func (*Import) stmtNode()      {}
func (*ImportFrom) stmtNode()  {}
func (*Try) stmtNode()         {}
func (*With) stmtNode()        {}
func (*Match) stmtNode()       {}

func (*MatchValue) patternNode()   {}
func (*MatchCapture) patternNode() {}

// Name is an identifier reference.
type Name struct {
	Pos
	ID string
}

// Constant is a literal: nil, bool, int64, float64 or string.
type Constant struct {
	Pos
	Value any
}

// FPart is a piece of an f-string: literal text or an interpolated
// expression with its conversion and format spec.
type FPart struct {
	Lit  string
	X    Expr
	Conv byte
	Spec string
}

type FString struct {
	Pos
	Parts []FPart
}

type BinOp struct {
	Pos
	Op   string
	L, R Expr
}

type UnaryExpr struct {
	Pos
	Op string
	X  Expr
}

// BoolOp is an "and" / "or" chain.
type BoolOp struct {
	Pos
	Op     string
	Values []Expr
}

// CompareExpr is a comparison chain "a < b <= c".
type CompareExpr struct {
	Pos
	Left  Expr
	Ops   []string
	Comps []Expr
}

// Arg is a positional call argument, Star marks "*args" expansion.
type Arg struct {
	Value Expr
	Star  bool
}

// Keyword is a keyword call argument. An empty Name marks "**kwargs".
type Keyword struct {
	Name  string
	Value Expr
}

type Call struct {
	Pos
	Func     Expr
	Args     []Arg
	Keywords []Keyword
}

type Attribute struct {
	Pos
	X    Expr
	Attr string
}

type Subscript struct {
	Pos
	X     Expr
	Index Expr
}

type Slice struct {
	Pos
	Lo, Hi, Step Expr
}

type List struct {
	Pos
	Elts []Expr
}

type Tuple struct {
	Pos
	Elts []Expr
}

type Set struct {
	Pos
	Elts []Expr
}

// Dict literal. A nil key marks a "**mapping" entry.
type Dict struct {
	Pos
	Keys   []Expr
	Values []Expr
}

type IfExp struct {
	Pos
	Test, Body, Orelse Expr
}

type Lambda struct {
	Pos
	Params []Param
	Body   Expr
}

// Comprehension is one "for Target in Iter if ..." clause.
type Comprehension struct {
	Target Expr
	Iter   Expr
	Ifs    []Expr
}

// Comp covers list, set and generator comprehensions, Kind is "list",
// "set" or "gen".
type Comp struct {
	Pos
	Kind       string
	Elt        Expr
	Generators []Comprehension
}

type DictComp struct {
	Pos
	Key, Value Expr
	Generators []Comprehension
}

// NamedExpr is the walrus "name := value".
type NamedExpr struct {
	Pos
	Target string
	Value  Expr
}

type Starred struct {
	Pos
	X Expr
}

// Yield is "yield Value", or "yield from Value" when From is set.
type Yield struct {
	Pos
	Value Expr
	From  bool
}

func (*Name) exprNode()        {}
func (*Constant) exprNode()    {}
func (*FString) exprNode()     {}
func (*BinOp) exprNode()       {}
func (*UnaryExpr) exprNode()   {}
func (*BoolOp) exprNode()      {}
func (*CompareExpr) exprNode() {}
func (*Call) exprNode()        {}
func (*Attribute) exprNode()   {}
func (*Subscript) exprNode()   {}
func (*Slice) exprNode()       {}
func (*List) exprNode()        {}
func (*Tuple) exprNode()       {}
func (*Set) exprNode()         {}
func (*Dict) exprNode()        {}
func (*IfExp) exprNode()       {}
func (*Lambda) exprNode()      {}
func (*Comp) exprNode()        {}
func (*DictComp) exprNode()    {}
func (*NamedExpr) exprNode()   {}
func (*Starred) exprNode()     {}
func (*Yield) exprNode()       {}

// Elements returns the items of a tuple or list target, nil for anything
// else.
func Elements(e Expr) []Expr {
	switch x := e.(type) {
	case *Tuple:
		return x.Elts
	case *List:
		return x.Elts
	}
	return nil
}
