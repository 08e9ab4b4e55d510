package emitter

import (
	"io/fs"

	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// Op is a host operator lowered to the target language.
type Op int

const (
	OpAdd Op = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitOr
	OpBitXor
	OpBitAnd
	OpConcat
	OpShl
	OpShr
	OpEq
	OpNotEq
	OpLt
	OpLtE
	OpGt
	OpGtE
	OpUAdd
	OpUSub
	OpNot
	OpInvert
	OpAnd
	OpOr
)

var opNames = map[Op]string{
	OpAdd: "Add", OpSub: "Sub", OpMul: "Mult", OpDiv: "Div", OpMod: "Mod",
	OpBitOr: "BitOr", OpBitXor: "BitXor", OpBitAnd: "BitAnd", OpConcat: "Concat",
	OpShl: "LShift", OpShr: "RShift",
	OpEq: "Eq", OpNotEq: "NotEq", OpLt: "Lt", OpLtE: "LtE", OpGt: "Gt", OpGtE: "GtE",
	OpUAdd: "UAdd", OpUSub: "USub", OpNot: "Not", OpInvert: "Invert",
	OpAnd: "And", OpOr: "Or",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "Op?"
}

func (o Op) IsArith() bool   { return o >= OpAdd && o <= OpMod }
func (o Op) IsBit() bool     { return o >= OpBitOr && o <= OpBitAnd }
func (o Op) IsShift() bool   { return o == OpShl || o == OpShr }
func (o Op) IsCompare() bool { return o >= OpEq && o <= OpGtE }

// ProcessKind tells apart sensitivity driven processes from the concurrent
// area of a module and from run-once initialization blocks.
type ProcessKind int

const (
	NormalProcess ProcessKind = iota
	RootProcess
	InitProcess
)

func (k ProcessKind) String() string {
	switch k {
	case RootProcess:
		return "root"
	case InitProcess:
		return "init"
	}
	return "normal"
}

// ProcessInfo describes the process being generated.
type ProcessInfo struct {
	Name string
	Kind ProcessKind
	Sens []entity.Sens
	// Mode is the declared process mode, "comb" or empty.
	Mode string
}

// MatchCase is one arm of an emitted case statement. A nil Pattern is the
// default arm.
type MatchCase struct {
	Pattern any
	Scope   *Placement
}

// PortArg is a module port with the value it was generated with.
type PortArg struct {
	Port  *entity.Port
	Value *value.Value
}

// Binding connects an instance port to a value. A none value leaves the
// port open.
type Binding struct {
	Port  string
	Value *value.Value
}

// Slice is a host slice subscript. Start may be a hardware value, in which
// case Width gives the part select size.
type Slice struct {
	Start any
	Stop  any
	Step  any
	Width int
}

// Dialect is the target language specific half of an emitter. The Emitter
// embeds it, so statement emitters are reached directly on the Emitter.
type Dialect interface {
	Kind() string
	FileExt() string
	// LibFS holds the always loaded libraries (listed by a LIBS manifest)
	// and the on-demand ones.
	LibFS() fs.FS
	ExtraLibs() []string

	// NoCast reports whether a host literal can be used as is as an
	// operand of a value of the given kind.
	NoCast(x any, kind types.Kind) bool
	ConvertLiteral(x any) (any, error)
	CastScalar(x any, dtype *types.Type) (string, error)
	ArrayLiteral(parts []string, shape []int) string
	Broadcast(text string, dtype *types.Type) string
	Index(text string, coords []string) string
	SliceCoord(start, stop int, last bool) string
	PartSelect(base string, width int, last bool) string
	SValue(x any) string

	EvalToString(x any) (string, error)
	QuoteString(s string) string
	EvalToken(tok string) (string, bool)

	EmitFinish()
	EmitWaitFor(t any) error
	EmitWaitRising(args []*value.Value)
	EmitWaitFalling(args []*value.Value)
	EmitWaitUntil(args []*value.Value)
	EmitReport(parts []string)
	EmitWrite(parts []string)
	EmitComment(msg string)
	EmitIf(test any) error
	EmitElif(test any) error
	EmitElse()
	EmitEndIf()
	EmitAssert(test *value.Value, parts []string) error
	EmitMatchCases(subject *value.Value, cases []MatchCase) error

	IsRootVariable(v *value.Value) bool
	VarRemap(v *value.Value, isStore bool) *value.Value
	EmitDeclare(name string, v *value.Value) error
	EmitAssign(target *value.Value, v any) error
	MakePortArg(v *value.Value) *value.Value

	EmitEntity(name string, params []entity.Param, binds []Binding) error
	EmitModuleDef(name string, ports []PortArg, comment string) error
	EmitModuleDecl(name string, ports []PortArg) error
	EmitModuleEnd() error
	EmitProcessDecl(p ProcessInfo) error
	EmitProcessBegin()
	EmitProcessEnd()
	ModuleVarsPlace() *Placement
	ProcessVarsPlace() *Placement

	ArithText(op Op, left, right *value.Value) (string, error)
	OpText(op Op, left, right string) string
	ConcatText(left, right string) string
	UnaryText(op Op, arg *value.Value) (string, error)
	LogicJoiner(op Op) string
	IfExpText(test string, body, orelse *value.Value) string
}

// Extensions are the backend operations reachable from host code by name
// through ExtensionOps.
type Extensions interface {
	IsNaN(v *value.Value) (*value.Value, error)
	IsInf(v *value.Value) (*value.Value, error)
}

// ExtensionOps maps extension function names to backend methods.
var ExtensionOps = map[string]func(Extensions, *value.Value) (*value.Value, error){
	"is_nan": Extensions.IsNaN,
	"is_inf": Extensions.IsInf,
}

// InterfaceInstancer is implemented by backends which call library
// functions through instances of parametrized helper modules.
type InterfaceInstancer interface {
	// InterfaceID returns the instance id of module with the given
	// parameters, instantiating it at the first request.
	InterfaceID(module string, params []entity.Param) string
	// FPModResolve names fn within the instance of module parametrized
	// with the float format of dtype.
	FPModResolve(module, fn string, dtype *types.Type, extra ...entity.Param) (string, error)
}
