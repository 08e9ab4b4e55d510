// Package verilog is the SystemVerilog backend. Float arithmetic is lowered
// to calls into parameterized helper interfaces (fpu, fp_utils, fp_conv)
// which are instantiated once per parameter set and loaded on demand.
package verilog

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/config"
	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// Name is the backend registry name.
const Name = "verilog"

//go:embed libs
var libFiles embed.FS

func init() {
	emitter.Register(Name, New)
}

var defaultFnMap = map[string]config.FPUFunc{
	"add":          {Module: "fpu", Func: "add"},
	"sub":          {Module: "fpu", Func: "sub"},
	"mul":          {Module: "fpu", Func: "mul"},
	"div":          {Module: "fpu", Func: "div"},
	"mod":          {Module: "fpu", Func: "mod"},
	"neg":          {Module: "fpu", Func: "neg"},
	"to_integer":   {Module: "fpu", Func: "to_integer"},
	"from_integer": {Module: "fpu", Func: "from_integer"},
	"one":          {Module: "fpu", Func: "one"},
	"zero":         {Module: "fpu", Func: "zero"},
	"from_real":    {Module: "fp_utils", Func: "from_real"},
	"to_real":      {Module: "fp_utils", Func: "to_real"},
	"is_nan":       {Module: "fp_utils", Func: "is_nan"},
	"is_inf":       {Module: "fp_utils", Func: "is_inf"},
	"convert":      {Module: "fp_conv", Func: "convert"},
}

var floatOpFns = map[emitter.Op]string{
	emitter.OpAdd: "add",
	emitter.OpSub: "sub",
	emitter.OpMul: "mul",
	emitter.OpDiv: "div",
	emitter.OpMod: "mod",
}

// wireReg shadows a wire written from within a process: the process writes
// the register and a continuous assignment drives the wire from it.
type wireReg struct {
	wire *value.Value
	reg  *value.Value
	init any
}

// Dialect generates SystemVerilog text for an emitter.
type Dialect struct {
	e            *emitter.Emitter
	fnMap        map[string]config.FPUFunc
	modComment   string
	moduleVars   *emitter.Placement
	modulesPlace *emitter.Placement
	entityPlace  *emitter.Placement
	processVars  *emitter.Placement
	itor         *entity.Instanciator
	wregNames    []string
	wregs        map[string]*wireReg
	extraLibs    map[string]bool
}

func New(e *emitter.Emitter) emitter.Dialect {
	d := &Dialect{
		e:         e,
		fnMap:     make(map[string]config.FPUFunc, len(defaultFnMap)),
		extraLibs: make(map[string]bool),
	}
	for k, v := range defaultFnMap {
		d.fnMap[k] = v
	}
	for k, v := range e.Config().Verilog.FPUFnMap {
		d.fnMap[k] = v
	}
	d.initModulePlaces()
	d.moduleReset()
	return d
}

func (d *Dialect) initModulePlaces() {
	d.moduleVars = d.e.EmitPlacement(0)
	d.modulesPlace = d.e.EmitPlacement(0)
	d.entityPlace = d.e.EmitPlacement(0)
}

func (d *Dialect) moduleReset() {
	d.modComment = ""
	d.itor = entity.NewInstanciator()
	d.wregNames = nil
	d.wregs = make(map[string]*wireReg)
	d.e.ResetProcess()
}

func (d *Dialect) Kind() string    { return Name }
func (d *Dialect) FileExt() string { return "sv" }

func (d *Dialect) LibFS() fs.FS {
	sub, err := fs.Sub(libFiles, "libs")
	if err != nil {
		return nil
	}
	return sub
}

// ExtraLibs lists the helper interfaces referenced so far.
func (d *Dialect) ExtraLibs() []string {
	libs := make([]string, 0, len(d.extraLibs))
	for lib := range d.extraLibs {
		libs = append(libs, lib)
	}
	sort.Strings(libs)
	return libs
}

func (d *Dialect) ifaceID(module string, params []entity.Param) string {
	d.extraLibs[module] = true
	return d.itor.GetID(module, params, nil)
}

// InterfaceID exposes the helper interface instances to external function
// calls.
func (d *Dialect) InterfaceID(module string, params []entity.Param) string {
	return d.ifaceID(module, params)
}

func (d *Dialect) fpCall(fn string, params []entity.Param) (string, error) {
	m, ok := d.fnMap[fn]
	if !ok {
		return "", fmt.Errorf("Unable to find configuration for FPU function: %s", fn)
	}
	return d.ifaceID(m.Module, params) + "." + m.Func, nil
}

// FPModResolve returns the call name of fn within an instance of module
// parameterized with the float format of dtype.
func (d *Dialect) FPModResolve(module, fn string, dtype *types.Type, extra ...entity.Param) (string, error) {
	params, err := d.fpParams(dtype, extra...)
	if err != nil {
		return "", err
	}
	return d.ifaceID(module, params) + "." + fn, nil
}

func (d *Dialect) registerWireReg(wire *value.Value, init any) *wireReg {
	ref := wire.Ref()
	if wr, ok := d.wregs[ref.Name]; ok {
		return wr
	}
	wr := &wireReg{
		wire: wire,
		reg:  value.New(wire.DType(), value.NewRef(ref.Name+"_", ref.VSpec), value.Register),
		init: init,
	}
	d.wregs[ref.Name] = wr
	d.wregNames = append(d.wregNames, ref.Name)
	return wr
}

func (d *Dialect) EvalToString(x any) (string, error) {
	v, ok := x.(*value.Value)
	if !ok {
		return d.QuoteString(d.SValue(x)), nil
	}
	switch v.DType().Kind() {
	case types.KindUint, types.KindSint, types.KindInteger:
		return fmt.Sprintf(`$sformatf("%%d", %s)`, v.Text()), nil
	case types.KindBool, types.KindBits:
		return fmt.Sprintf(`$sformatf("%%b", %s)`, v.Text()), nil
	case types.KindReal:
		return fmt.Sprintf(`$sformatf("%%e", %s)`, v.Text()), nil
	case types.KindFloat:
		params, err := d.fpParams(v.DType())
		if err != nil {
			return "", err
		}
		call, err := d.fpCall("to_real", params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`$sformatf("%%e", %s(%s))`, call, v.Text()), nil
	}
	return "", types.Errorf("Unable to convert to string: %s", v.DType())
}

func (d *Dialect) QuoteString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

func (d *Dialect) EvalToken(tok string) (string, bool) {
	if tok == "NOW" {
		return `$sformatf("%t", $time)`, true
	}
	return "", false
}

func (d *Dialect) EmitFinish() { d.e.EmitLine("$finish;") }

func (d *Dialect) EmitWaitFor(t any) error {
	if t == nil {
		d.e.EmitLine("wait (0);")
		return nil
	}
	f, ok := emitter.AsFloat(t)
	if !ok {
		iv, iok := emitter.AsInt(t)
		if !iok {
			return types.Errorf("Wait time must be a number: %v", t)
		}
		f = float64(iv)
	}
	n, unit := emitter.NormalizeTime(f, d.e.TimeUnit())
	d.e.EmitLine(fmt.Sprintf("#%d%s;", n, unit))
	return nil
}

func (d *Dialect) EmitWaitRising(args []*value.Value) {
	sargs := d.e.ArgsString(func(a string) string { return "posedge " + emitter.Paren(a) }, " or ", args)
	d.e.EmitLine("@(" + sargs + ");")
}

func (d *Dialect) EmitWaitFalling(args []*value.Value) {
	sargs := d.e.ArgsString(func(a string) string { return "negedge " + emitter.Paren(a) }, " or ", args)
	d.e.EmitLine("@(" + sargs + ");")
}

func (d *Dialect) EmitWaitUntil(args []*value.Value) {
	sargs := d.e.ArgsString(emitter.Paren, " or ", args)
	d.e.EmitLine("@(" + sargs + ");")
}

func (d *Dialect) EmitReport(parts []string) { d.EmitWrite(parts) }

func (d *Dialect) EmitWrite(parts []string) {
	if len(parts) == 0 {
		d.e.EmitLine(`$display("");`)
		return
	}
	d.e.EmitLine(`$display("` + strings.Repeat("%s", len(parts)) + `", ` + strings.Join(parts, ", ") + ");")
}

func (d *Dialect) EmitComment(msg string) {
	for _, ln := range strings.Split(msg, "\n") {
		d.e.EmitLine("// " + ln)
	}
}

func (d *Dialect) EmitIf(test any) error {
	xtest, err := d.e.CastText(test, types.BoolType)
	if err != nil {
		return err
	}
	d.e.EmitLine("if (" + xtest + ") begin")
	return nil
}

func (d *Dialect) EmitElif(test any) error {
	xtest, err := d.e.CastText(test, types.BoolType)
	if err != nil {
		return err
	}
	d.e.EmitLine("end else if (" + xtest + ") begin")
	return nil
}

func (d *Dialect) EmitElse()  { d.e.EmitLine("end else begin") }
func (d *Dialect) EmitEndIf() { d.e.EmitLine("end") }

func (d *Dialect) EmitAssert(test *value.Value, parts []string) error {
	xtest, err := d.e.CastText(test, types.BoolType)
	if err != nil {
		return err
	}
	if len(parts) > 0 {
		d.e.EmitLine("assert (" + xtest + `) else $error("` + strings.Repeat("%s", len(parts)) +
			`", ` + strings.Join(parts, ", ") + ");")
	} else {
		d.e.EmitLine("assert (" + xtest + ");")
	}
	return nil
}

func (d *Dialect) EmitMatchCases(subject *value.Value, cases []emitter.MatchCase) error {
	d.e.EmitLine("case (" + subject.Text() + ")")
	err := d.e.WithIndent(func() error {
		for _, mc := range cases {
			block := mc.Scope.Len() > 1
			sblock := ""
			if block {
				sblock = " begin"
			}
			if mc.Pattern != nil {
				xpattern, err := d.e.CastText(mc.Pattern, subject.DType())
				if err != nil {
					return err
				}
				d.e.EmitLine(emitter.Paren(xpattern) + ":" + sblock)
			} else {
				d.e.EmitLine("default:" + sblock)
			}
			if mc.Scope.Len() == 0 {
				_ = d.e.WithPlacement(mc.Scope, func() error {
					d.e.EmitLine(";")
					return nil
				})
			}
			d.e.AppendPlacement(mc.Scope)
			if block {
				d.e.EmitLine("end")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.e.EmitLine("endcase")
	return nil
}

// IsRootVariable reports whether v is declared at module level. Wires
// always are.
func (d *Dialect) IsRootVariable(v *value.Value) bool {
	return v.IsWire() || v.IsConst()
}

// VarRemap redirects process writes of a wire to its shadow register.
// Read-only wires keep their name, so a write reports the port itself.
func (d *Dialect) VarRemap(v *value.Value, isStore bool) *value.Value {
	if v == nil || !v.IsWire() || v.Ref() == nil || value.IsRORef(v) {
		return v
	}
	if d.e.Process().Kind == emitter.RootProcess || !isStore {
		return v
	}
	return d.registerWireReg(v, nil).reg
}

func (d *Dialect) EmitDeclare(name string, v *value.Value) error {
	var vprefix string
	isConst := v.IsConst()
	switch {
	case isConst:
		vprefix = "const "
	case v.IsReg():
	default:
		vprefix = "wire "
	}

	vinit := ""
	if init := v.Init(); init != nil && init.Value != nil {
		if v.IsReg() || isConst {
			xinit, err := d.e.CastText(init.Value, v.DType())
			if err != nil {
				return err
			}
			vinit = " = " + xinit
		} else {
			// Wires cannot carry an initializer, their shadow register does.
			d.registerWireReg(value.MkWire(v.DType(), name, v.VSpec()), init.Value)
		}
	}
	tdecl, err := d.typeOf(v.DType(), "")
	if err != nil {
		return err
	}
	d.e.EmitLine(vprefix + declare(tdecl, name) + vinit + ";")
	return nil
}

func (d *Dialect) EmitAssign(target *value.Value, v any) error {
	xvalue, err := d.e.CastText(v, target.DType())
	if err != nil {
		return err
	}
	var xdelay string
	if delay, ok := d.e.ContextValue("delay"); ok && delay != nil {
		xdelay = "#" + emitter.Paren(d.e.SValueOf(delay)) + " "
	}

	contAssign := d.e.Process().Kind == emitter.RootProcess && !target.IsReg()
	// Edge triggered processes use non blocking assignments.
	asop := "="
	if !contAssign && len(entity.Edges(d.e.Process().Sens)) > 0 {
		asop = "<="
	}
	if contAssign {
		d.e.EmitLine(fmt.Sprintf("assign %s%s %s %s;", xdelay, target.Text(), asop, xvalue))
	} else {
		d.e.EmitLine(fmt.Sprintf("%s%s %s %s;", xdelay, target.Text(), asop, xvalue))
	}
	return nil
}

func (d *Dialect) MakePortArg(v *value.Value) *value.Value { return v }

func (d *Dialect) EmitEntity(name string, params []entity.Param, binds []emitter.Binding) error {
	iname := d.e.EntityInstance(name)
	xparams := ""
	if len(params) > 0 {
		parts := make([]string, len(params))
		for i, p := range params {
			parts[i] = "." + p.Name + "(" + p.Value + ")"
		}
		xparams = "#(" + strings.Join(parts, ", ") + ") "
	}
	return d.e.WithPlacement(d.entityPlace, func() error {
		d.e.EmitLine(name + " " + xparams + iname + "(")
		_ = d.e.WithIndent(func() error {
			for i, b := range binds {
				arg := ""
				if b.Value != nil && !b.Value.IsNone() {
					arg = b.Value.Text()
				}
				d.e.EmitLine("." + b.Port + "(" + arg + ")" + sep(i, len(binds), ","))
			}
			return nil
		})
		d.e.EmitLine(");")
		return nil
	})
}

func sep(i, n int, s string) string {
	if i == n-1 {
		return ""
	}
	return s
}

// EmitModuleDef only records the comment, SystemVerilog has no separate
// interface declaration.
func (d *Dialect) EmitModuleDef(name string, ports []emitter.PortArg, comment string) error {
	d.modComment = comment
	return nil
}

func (d *Dialect) EmitModuleDecl(name string, ports []emitter.PortArg) error {
	if d.modComment != "" {
		d.EmitComment(d.modComment)
	}
	names := make([]string, len(ports))
	for i, pa := range ports {
		names[i] = pa.Port.Name
	}
	d.e.EmitLine("module " + name + "(" + strings.Join(names, ", ") + ");")
	return d.e.WithIndent(func() error {
		for _, pa := range ports {
			var pdir, kind string
			switch pa.Port.Dir {
			case entity.In:
				pdir = "input"
			case entity.Out:
				pdir = "output"
				if pa.Value.IsReg() {
					kind = "reg"
				}
			case entity.InOut:
				pdir = "inout"
			default:
				return types.Errorf("Invalid port direction: %s", pa.Port)
			}
			tdecl, err := d.typeOf(pa.Value.DType(), kind)
			if err != nil {
				return err
			}
			d.e.EmitLine(pdir + " " + declare(tdecl, pa.Port.Name) + ";")
		}
		d.initModulePlaces()
		return nil
	})
}

func (d *Dialect) EmitModuleEnd() error {
	err := d.e.WithPlacement(d.moduleVars, func() error {
		for _, name := range d.wregNames {
			wr := d.wregs[name]
			vinit := ""
			if wr.init != nil {
				xinit, err := d.e.CastText(wr.init, wr.reg.DType())
				if err != nil {
					return err
				}
				vinit = " = " + xinit
			}
			tdecl, err := d.typeOf(wr.reg.DType(), "")
			if err != nil {
				return err
			}
			d.e.EmitLine(declare(tdecl, wr.reg.Text()) + vinit + ";")
		}
		return nil
	})
	if err != nil {
		return err
	}

	_ = d.e.WithPlacement(d.modulesPlace, func() error {
		for _, inst := range d.itor.Instances() {
			params := make([]string, len(inst.Params))
			for i, p := range inst.Params {
				params[i] = "." + p.Name + "(" + p.Value + ")"
			}
			args := make([]string, len(inst.Args))
			for i, a := range inst.Args {
				args[i] = "." + a.Name + "(" + a.Value + ")"
			}
			d.e.EmitLine(fmt.Sprintf("%s #(%s) %s(%s);", inst.Module, strings.Join(params, ", "), inst.ID, strings.Join(args, ", ")))
		}
		return nil
	})

	_ = d.e.WithIndent(func() error {
		for _, name := range d.wregNames {
			wr := d.wregs[name]
			d.e.EmitLine("assign " + wr.wire.Text() + " = " + wr.reg.Text() + ";")
		}
		return nil
	})
	d.e.EmitLine("endmodule")
	d.moduleReset()
	return nil
}

func (d *Dialect) EmitProcessDecl(p emitter.ProcessInfo) error {
	switch {
	case p.Kind == emitter.InitProcess:
		if len(p.Sens) > 0 {
			return types.Errorf("Sensitivity list not allowed in init process: %s", p.Name)
		}
		d.e.EmitLine("initial")
	case len(p.Sens) > 0:
		conds := make([]string, len(p.Sens))
		for i, s := range p.Sens {
			switch s.Trigger {
			case entity.PosEdge:
				conds[i] = "posedge " + emitter.Paren(s.Name)
			case entity.NegEdge:
				conds[i] = "negedge " + emitter.Paren(s.Name)
			default:
				conds[i] = emitter.Paren(s.Name)
			}
		}
		d.e.EmitLine("always @(" + strings.Join(conds, " or ") + ")")
	case p.Mode == "comb":
		d.e.EmitLine("always_comb")
	default:
		d.e.EmitLine("always")
	}
	d.e.SetProcess(p)
	return nil
}

func (d *Dialect) EmitProcessBegin() {
	if name := d.e.Process().Name; name != "" {
		d.e.EmitLine(name + " : begin")
	} else {
		d.e.EmitLine("begin")
	}
	d.processVars = d.e.EmitPlacement(1)
}

func (d *Dialect) EmitProcessEnd() {
	d.e.EmitLine("end")
	d.e.ResetProcess()
}

func (d *Dialect) ModuleVarsPlace() *emitter.Placement  { return d.moduleVars }
func (d *Dialect) ProcessVarsPlace() *emitter.Placement { return d.processVars }

var opSyms = map[emitter.Op]string{
	emitter.OpAdd:    "+",
	emitter.OpSub:    "-",
	emitter.OpMul:    "*",
	emitter.OpDiv:    "/",
	emitter.OpMod:    "%",
	emitter.OpBitOr:  "|",
	emitter.OpBitXor: "^",
	emitter.OpBitAnd: "&",
	emitter.OpEq:     "==",
	emitter.OpNotEq:  "!=",
	emitter.OpLt:     "<",
	emitter.OpLtE:    "<=",
	emitter.OpGt:     ">",
	emitter.OpGtE:    ">=",
	emitter.OpShl:    "<<",
	emitter.OpShr:    ">>",
}

func (d *Dialect) OpText(op emitter.Op, left, right string) string {
	return emitter.Paren(left) + " " + opSyms[op] + " " + emitter.Paren(right)
}

// ArithText builds an arithmetic expression. Float operands go through the
// fpu interface, products of sized integers are cut back to the operand
// width.
func (d *Dialect) ArithText(op emitter.Op, left, right *value.Value) (string, error) {
	dtype := left.DType()
	if dtype.Kind() == types.KindFloat {
		params, err := d.fpParams(dtype)
		if err != nil {
			return "", err
		}
		call, err := d.fpCall(floatOpFns[op], params)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s, %s)", call, left.Text(), right.Text()), nil
	}
	result := d.OpText(op, left.Text(), right.Text())
	switch dtype.Kind() {
	case types.KindUint, types.KindSint:
		if op == emitter.OpMul {
			result = fmt.Sprintf("%d'(%s)", dtype.NBits(), result)
		}
	}
	return result, nil
}

func (d *Dialect) ConcatText(left, right string) string {
	return "{" + left + ", " + right + "}"
}

func (d *Dialect) UnaryText(op emitter.Op, arg *value.Value) (string, error) {
	if arg.DType().Kind() == types.KindFloat {
		if op != emitter.OpUSub {
			return "", types.Errorf("Unsupported operation for type %s: %s", arg.DType(), op)
		}
		params, err := d.fpParams(arg.DType())
		if err != nil {
			return "", err
		}
		call, err := d.fpCall("neg", params)
		if err != nil {
			return "", err
		}
		return call + "(" + arg.Text() + ")", nil
	}
	switch op {
	case emitter.OpUSub:
		return "-" + emitter.Paren(arg.Text()), nil
	case emitter.OpNot:
		return "!" + emitter.Paren(arg.Text()), nil
	case emitter.OpInvert:
		return "~" + emitter.Paren(arg.Text()), nil
	}
	return "", types.Errorf("Unsupported operation for type %s: %s", arg.DType(), op)
}

func (d *Dialect) LogicJoiner(op emitter.Op) string {
	if op == emitter.OpOr {
		return " || "
	}
	return " && "
}

func (d *Dialect) IfExpText(test string, body, orelse *value.Value) string {
	return fmt.Sprintf("%s ? %s : %s", emitter.Paren(test), body.Text(), orelse.Text())
}

func (d *Dialect) floatPredicate(fn string, v *value.Value) (*value.Value, error) {
	if v.DType().Kind() != types.KindFloat {
		return nil, types.Errorf("Unsupported type: %s", v.DType())
	}
	params, err := d.fpParams(v.DType())
	if err != nil {
		return nil, err
	}
	call, err := d.fpCall(fn, params)
	if err != nil {
		return nil, err
	}
	return value.NewTemp(types.BoolType, call+"("+v.Text()+")"), nil
}

func (d *Dialect) IsNaN(v *value.Value) (*value.Value, error) { return d.floatPredicate("is_nan", v) }
func (d *Dialect) IsInf(v *value.Value) (*value.Value, error) { return d.floatPredicate("is_inf", v) }
