// Package vhdl is the VHDL-2008 backend. Registers and ports are signals,
// wires declared inside processes are variables.
package vhdl

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// Name is the backend registry name.
const Name = "vhdl"

//go:embed libs
var libFiles embed.FS

const stdHeader = `library ieee;
use ieee.std_logic_1164.all;
use ieee.numeric_std.all;
use ieee.math_real.all;
use ieee.float_pkg.all;
use std.textio.all;

library work;
use work.all;
`

const defaultArch = "behavior"

func init() {
	emitter.Register(Name, New)
}

// Dialect generates VHDL text for an emitter.
type Dialect struct {
	e           *emitter.Emitter
	arch        string
	modComment  string
	procIndent  int
	moduleVars  *emitter.Placement
	entityPlace *emitter.Placement
	processVars *emitter.Placement
}

func New(e *emitter.Emitter) emitter.Dialect {
	d := &Dialect{e: e, arch: e.Config().EntityArch}
	if d.arch == "" {
		d.arch = defaultArch
	}
	d.moduleVars = e.EmitPlacement(0)
	d.entityPlace = e.EmitPlacement(0)
	return d
}

func (d *Dialect) Kind() string    { return Name }
func (d *Dialect) FileExt() string { return "vhd" }

func (d *Dialect) LibFS() fs.FS {
	sub, err := fs.Sub(libFiles, "libs")
	if err != nil {
		return nil
	}
	return sub
}

func (d *Dialect) ExtraLibs() []string { return nil }

func (d *Dialect) emitHeader() {
	hdr := d.e.Config().Header
	if hdr == "" {
		hdr = stdHeader
	}
	for _, ln := range strings.Split(hdr, "\n") {
		d.e.EmitLine(ln)
	}
}

func (d *Dialect) EvalToString(x any) (string, error) {
	v, ok := x.(*value.Value)
	if !ok {
		return d.QuoteString(d.SValue(x)), nil
	}
	switch v.DType().Kind() {
	case types.KindUint, types.KindSint:
		return fmt.Sprintf("to_hstring(%s)", v.Text()), nil
	case types.KindBool, types.KindBits, types.KindInteger, types.KindReal:
		return fmt.Sprintf("to_string(%s)", v.Text()), nil
	case types.KindFloat:
		return fmt.Sprintf("to_string(to_real(%s))", v.Text()), nil
	}
	return "", types.Errorf("Unable to convert to string: %s", v.DType())
}

func (d *Dialect) QuoteString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (d *Dialect) EvalToken(tok string) (string, bool) {
	if tok == "NOW" {
		return "to_string(now)", true
	}
	return "", false
}

func (d *Dialect) EmitFinish() { d.e.EmitLine("std.env.finish;") }

// EmitWaitFor waits for t time units, or forever when t is nil.
func (d *Dialect) EmitWaitFor(t any) error {
	if t == nil {
		d.e.EmitLine("wait;")
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
	d.e.EmitLine(fmt.Sprintf("wait for %d %s;", n, unit))
	return nil
}

func (d *Dialect) EmitWaitRising(args []*value.Value) {
	sargs := d.e.ArgsString(func(a string) string { return "rising_edge(" + emitter.Paren(a) + ")" }, " or ", args)
	d.e.EmitLine("wait until " + sargs + ";")
}

func (d *Dialect) EmitWaitFalling(args []*value.Value) {
	sargs := d.e.ArgsString(func(a string) string { return "falling_edge(" + emitter.Paren(a) + ")" }, " or ", args)
	d.e.EmitLine("wait until " + sargs + ";")
}

func (d *Dialect) EmitWaitUntil(args []*value.Value) {
	sargs := d.e.ArgsString(emitter.Paren, " or ", args)
	d.e.EmitLine("wait until " + sargs + ";")
}

func (d *Dialect) EmitReport(parts []string) {
	d.e.EmitLine("report " + strings.Join(parts, " & ") + ";")
}

func (d *Dialect) EmitWrite(parts []string) {
	d.e.EmitLine("write(output, " + strings.Join(parts, " & ") + " & LF);")
}

func (d *Dialect) EmitComment(msg string) {
	for _, ln := range strings.Split(msg, "\n") {
		d.e.EmitLine("-- " + ln)
	}
}

func (d *Dialect) EmitIf(test any) error {
	xtest, err := d.e.CastText(test, types.BoolType)
	if err != nil {
		return err
	}
	d.e.EmitLine("if " + xtest + " then")
	return nil
}

func (d *Dialect) EmitElif(test any) error {
	xtest, err := d.e.CastText(test, types.BoolType)
	if err != nil {
		return err
	}
	d.e.EmitLine("elsif " + xtest + " then")
	return nil
}

func (d *Dialect) EmitElse()  { d.e.EmitLine("else") }
func (d *Dialect) EmitEndIf() { d.e.EmitLine("end if;") }

func (d *Dialect) EmitAssert(test *value.Value, parts []string) error {
	xtest, err := d.e.CastText(test, types.BoolType)
	if err != nil {
		return err
	}
	if len(parts) > 0 {
		d.e.EmitLine("assert " + xtest + " report " + strings.Join(parts, " & ") + ";")
	} else {
		d.e.EmitLine("assert " + xtest + ";")
	}
	return nil
}

func (d *Dialect) EmitMatchCases(subject *value.Value, cases []emitter.MatchCase) error {
	d.e.EmitLine("case " + emitter.Paren(subject.Text()) + " is")
	err := d.e.WithIndent(func() error {
		for _, mc := range cases {
			if mc.Pattern != nil {
				xpattern, err := d.e.CastText(mc.Pattern, subject.DType())
				if err != nil {
					return err
				}
				d.e.EmitLine("when " + emitter.Paren(xpattern) + " =>")
			} else {
				d.e.EmitLine("when others =>")
			}
			if mc.Scope.Len() == 0 {
				_ = d.e.WithPlacement(mc.Scope, func() error {
					d.e.EmitLine("null;")
					return nil
				})
			}
			d.e.AppendPlacement(mc.Scope)
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.e.EmitLine("end case;")
	return nil
}

func (d *Dialect) IsRootVariable(v *value.Value) bool {
	return v.IsReg() || v.IsConst()
}

func (d *Dialect) VarRemap(v *value.Value, isStore bool) *value.Value { return v }

func (d *Dialect) EmitDeclare(name string, v *value.Value) error {
	vtype, err := d.typeOf(v.DType())
	if err != nil {
		return err
	}
	var vprefix string
	switch {
	case v.IsConst():
		vprefix = "constant"
	case d.e.Process().Kind == emitter.RootProcess:
		vprefix = "signal"
	case v.IsWire():
		vprefix = "variable"
	default:
		vprefix = "signal"
	}
	vinit := ""
	if init := v.Init(); init != nil && init.Value != nil {
		xinit, err := d.e.CastText(init.Value, v.DType())
		if err != nil {
			return err
		}
		vinit = " := " + xinit
	}
	d.e.EmitLine(fmt.Sprintf("%s %s : %s%s;", vprefix, name, vtype, vinit))
	return nil
}

func (d *Dialect) EmitAssign(target *value.Value, v any) error {
	xvalue, err := d.e.CastText(v, target.DType())
	if err != nil {
		return err
	}
	root := d.e.Process().Kind == emitter.RootProcess

	var xdelay, xtrans string
	delay, hasDelay := d.e.ContextValue("delay")
	trans, _ := d.e.ContextValue("trans")
	isTrans := trans == true
	if hasDelay || isTrans {
		// Delays apply to signals only.
		if target.IsWire() {
			return types.Errorf("Cannot use delay/trans on wires: %s", target.Text())
		}
		if root {
			return types.Errorf("Cannot use delay/trans within a root process: %s", target.Text())
		}
		if hasDelay {
			xdelay = fmt.Sprintf(" after %s %s", d.e.SValueOf(delay), d.e.TimeUnit())
		}
		if isTrans {
			xtrans = "transport "
		}
	}

	asop := "<="
	vspec := target.VSpec()
	isPort := vspec != nil && vspec.Port != nil && vspec.Port.IsWr()
	if !isPort && !root && target.IsWire() {
		asop = ":="
	}
	d.e.EmitLine(fmt.Sprintf("%s %s %s%s%s;", target.Text(), asop, xtrans, xvalue, xdelay))
	return nil
}

// MakePortArg turns a port argument into a signal reference. Port signals
// are never process variables.
func (d *Dialect) MakePortArg(v *value.Value) *value.Value {
	return v.NewKind(value.Wire)
}

func (d *Dialect) EmitEntity(name string, params []entity.Param, binds []emitter.Binding) error {
	iname := d.e.EntityInstance(name)
	return d.e.WithPlacement(d.entityPlace, func() error {
		d.e.EmitLine(iname + " : entity " + name)
		if len(params) > 0 {
			d.e.EmitLine("generic map (")
			_ = d.e.WithIndent(func() error {
				for i, p := range params {
					d.e.EmitLine(p.Name + " => " + p.Value + sep(i, len(params), ","))
				}
				return nil
			})
			d.e.EmitLine(")")
		}
		d.e.EmitLine("port map (")
		_ = d.e.WithIndent(func() error {
			for i, b := range binds {
				arg := "open"
				if b.Value != nil && !b.Value.IsNone() {
					arg = b.Value.Text()
				}
				d.e.EmitLine(b.Port + " => " + arg + sep(i, len(binds), ","))
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

func (d *Dialect) EmitModuleDef(name string, ports []emitter.PortArg, comment string) error {
	d.emitHeader()
	d.modComment = comment
	if comment != "" {
		d.EmitComment(comment)
	}
	d.e.EmitLine("entity " + name + " is")
	if len(ports) > 0 {
		err := d.e.WithIndent(func() error {
			d.e.EmitLine("port (")
			err := d.e.WithIndent(func() error {
				for i, pa := range ports {
					pdir := "inout"
					switch {
					case pa.Port.IsRO():
						pdir = "in"
					case pa.Port.IsWO():
						pdir = "out"
					}
					ptype, err := d.typeOf(pa.Value.DType())
					if err != nil {
						return err
					}
					d.e.EmitLine(fmt.Sprintf("%s : %s %s%s", pa.Port.Name, pdir, ptype, sep(i, len(ports), ";")))
				}
				return nil
			})
			d.e.EmitLine(");")
			return err
		})
		if err != nil {
			return err
		}
	}
	d.e.EmitLine("end entity;")
	return nil
}

func (d *Dialect) EmitModuleDecl(name string, ports []emitter.PortArg) error {
	d.emitHeader()
	if d.modComment != "" {
		d.EmitComment(d.modComment)
	}
	d.e.EmitLine(fmt.Sprintf("architecture %s of %s is", d.arch, name))
	d.moduleVars = d.e.EmitPlacement(1)
	d.e.EmitLine("begin")
	d.entityPlace = d.e.EmitPlacement(1)
	return nil
}

func (d *Dialect) EmitModuleEnd() error {
	d.e.EmitLine("end architecture;")
	d.modComment = ""
	return nil
}

func (d *Dialect) EmitProcessDecl(p emitter.ProcessInfo) error {
	d.e.SetProcess(p)
	decl := p.Name + " : process"
	if len(p.Sens) > 0 {
		names := make([]string, len(p.Sens))
		for i, s := range p.Sens {
			names[i] = s.Name
		}
		decl += " (" + strings.Join(names, ", ") + ")"
	} else if p.Mode == "comb" {
		decl += " (all)"
	}
	d.e.EmitLine(decl)
	d.processVars = d.e.EmitPlacement(1)
	return nil
}

// EmitProcessBegin opens the process body. Edge triggered processes get
// their body wrapped by the clock edge test.
func (d *Dialect) EmitProcessBegin() {
	d.e.EmitLine("begin")
	var tests []string
	for _, s := range d.e.Process().Sens {
		switch s.Trigger {
		case entity.PosEdge:
			tests = append(tests, "rising_edge("+s.Name+")")
		case entity.NegEdge:
			tests = append(tests, "falling_edge("+s.Name+")")
		}
	}
	if len(tests) > 0 {
		d.procIndent++
		d.e.ShiftIndent(1)
		d.e.EmitLine("if " + strings.Join(tests, " or ") + " then")
	}
}

func (d *Dialect) EmitProcessEnd() {
	// VHDL has no run-once process, an init process suspends forever instead.
	if d.e.Process().Kind == emitter.InitProcess {
		_ = d.e.WithIndent(func() error {
			d.e.EmitLine("wait;")
			return nil
		})
	}
	if d.procIndent > 0 {
		d.procIndent--
		d.e.EmitLine("end if;")
		d.e.ShiftIndent(-1)
	}
	d.e.EmitLine("end process;")
	d.e.ResetProcess()
}

func (d *Dialect) ModuleVarsPlace() *emitter.Placement  { return d.moduleVars }
func (d *Dialect) ProcessVarsPlace() *emitter.Placement { return d.processVars }

var opSyms = map[emitter.Op]string{
	emitter.OpAdd:    "+",
	emitter.OpSub:    "-",
	emitter.OpMul:    "*",
	emitter.OpDiv:    "/",
	emitter.OpMod:    "mod",
	emitter.OpBitOr:  "or",
	emitter.OpBitXor: "xor",
	emitter.OpBitAnd: "and",
	emitter.OpConcat: "&",
	emitter.OpEq:     "=",
	emitter.OpNotEq:  "/=",
	emitter.OpLt:     "<",
	emitter.OpLtE:    "<=",
	emitter.OpGt:     ">",
	emitter.OpGtE:    ">=",
}

var opFuncs = map[emitter.Op]string{
	emitter.OpShl: "hdlgen.bit_shl",
	emitter.OpShr: "hdlgen.bit_shr",
}

func (d *Dialect) OpText(op emitter.Op, left, right string) string {
	if fn, ok := opFuncs[op]; ok {
		return fmt.Sprintf("%s(%s, %s)", fn, emitter.Paren(left), emitter.Paren(right))
	}
	return emitter.Paren(left) + " " + opSyms[op] + " " + emitter.Paren(right)
}

// ArithText builds an arithmetic expression. Signed and unsigned products
// are resized back to the operand width.
func (d *Dialect) ArithText(op emitter.Op, left, right *value.Value) (string, error) {
	result := d.OpText(op, left.Text(), right.Text())
	switch left.DType().Kind() {
	case types.KindUint, types.KindSint:
		if op == emitter.OpMul {
			result = fmt.Sprintf("resize(%s, %d)", result, left.DType().NBits())
		}
	}
	return result, nil
}

func (d *Dialect) ConcatText(left, right string) string {
	return d.OpText(emitter.OpConcat, left, right)
}

func (d *Dialect) UnaryText(op emitter.Op, arg *value.Value) (string, error) {
	switch op {
	case emitter.OpUSub:
		return "-" + emitter.Paren(arg.Text()), nil
	case emitter.OpNot, emitter.OpInvert:
		return "not " + emitter.Paren(arg.Text()), nil
	}
	return "", types.Errorf("Unsupported operation: %s", op)
}

func (d *Dialect) LogicJoiner(op emitter.Op) string {
	if op == emitter.OpOr {
		return " or "
	}
	return " and "
}

func (d *Dialect) IfExpText(test string, body, orelse *value.Value) string {
	return fmt.Sprintf("hdlgen.%s_ifexp(%s, %s, %s)", body.DType().Name(), test, body.Text(), orelse.Text())
}

func (d *Dialect) IsNaN(v *value.Value) (*value.Value, error) {
	if v.DType().Kind() != types.KindFloat {
		return nil, types.Errorf("Unsupported type: %s", v.DType())
	}
	return value.NewTemp(types.BoolType, "Isnan("+v.Text()+")"), nil
}

func (d *Dialect) IsInf(v *value.Value) (*value.Value, error) {
	if v.DType().Kind() != types.KindFloat {
		return nil, types.Errorf("Unsupported type: %s", v.DType())
	}
	return value.NewTemp(types.BoolType, "not Finite("+v.Text()+")"), nil
}
