package compiler

import (
	"fmt"
	"strings"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/facts"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// Function attributes set by the hdl and hdl_process decorators.
const (
	hdlAttr     = "__hdl__"
	hdlArgsAttr = "__hdl_args__"
)

// Process kinds, as host code names them.
const (
	rootProcessName = "$ROOT"
	initProcessName = "$INIT"
)

// entityInfo is the parsed declaration of an entity class.
type entityInfo struct {
	ports []*entity.Port
	// args are the ARGS defaults.
	args *host.Namespace
	// name is the NAME of external entities, empty for generated ones.
	name string
}

// entityInfo parses and caches the PORTS, ARGS and NAME class attributes.
func (c *Compiler) entityInfo(cls *host.Class) (*entityInfo, error) {
	if info, ok := c.entInfos[cls]; ok {
		return info, nil
	}
	info := &entityInfo{args: host.NewNamespace()}
	if pv, _, ok := cls.Lookup("PORTS"); ok {
		ports, err := portList(pv)
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", cls.Name, err)
		}
		info.ports = ports
	}
	if av, _, ok := cls.Lookup("ARGS"); ok && av != nil {
		d, ok := av.(*host.DictObject)
		if !ok {
			return nil, host.Raise("TypeError", "entity %s: ARGS must be a dict, got %s", cls.Name, host.TypeName(av))
		}
		ns, err := d.StringKeys()
		if err != nil {
			return nil, err
		}
		info.args = ns
	}
	if nv, _, ok := cls.Lookup("NAME"); ok && nv != nil {
		name, err := asString("NAME", nv)
		if err != nil {
			return nil, err
		}
		info.name = name
	}
	c.entInfos[cls] = info
	return info, nil
}

// isEntityClass reports whether cls is a user entity class.
func (c *Compiler) isEntityClass(cls *host.Class) bool {
	return cls != c.cls.entity && cls.IsSubclass(c.cls.entity)
}

// entityRecord is an entity definition to generate: the class and the
// arguments it is specialized with.
type entityRecord struct {
	class  *host.Class
	name   string
	ports  *host.Namespace
	kwargs *host.Namespace
}

func (r *entityRecord) args() *host.Namespace {
	args := r.ports.Clone()
	args.Update(r.kwargs)
	return args
}

// portKeyPart renders what makes a port argument produce different code:
// its type and kind, or the interface class and field types.
func (c *Compiler) portKeyPart(pin *entity.Port, arg any) string {
	switch a := arg.(type) {
	case *value.Value:
		return fmt.Sprintf("%s=%s/%s", pin.Name, a.DType(), a.Kind())
	case *types.Type:
		return fmt.Sprintf("%s=%s/%s", pin.Name, a, value.Wire)
	}
	if origin, st, ok := ifcOriginOf(arg); ok {
		return fmt.Sprintf("%s=%s(%s)", pin.Name, origin.Class.Name, c.ifcDescribe(origin, st))
	}
	return pin.Name + "=" + host.Repr(arg)
}

// registerEntity returns the definition name of cls specialized with ports
// and kwargs, queueing a new definition for generation when needed.
func (c *Compiler) registerEntity(cls *host.Class, info *entityInfo, ports, kwargs *host.Namespace, generated bool) (string, error) {
	parts := make([]string, 0, len(info.ports)+kwargs.Len())
	for _, pin := range info.ports {
		arg, _ := ports.Get(pin.Name)
		parts = append(parts, c.portKeyPart(pin, arg))
	}
	for _, k := range kwargs.Keys() {
		v, _ := kwargs.Get(k)
		r, err := c.repr(v)
		if err != nil {
			return "", err
		}
		parts = append(parts, k+"="+r)
	}
	name, created := c.versions.Name(cls.Name, entity.Digest(parts...))
	rec, ok := c.records[name]
	if created || !ok {
		rec = &entityRecord{class: cls, name: name, ports: ports, kwargs: kwargs}
		c.records[name] = rec
		c.used = append(c.used, rec)
		c.debugf("registered entity %s (%s)", name, strings.Join(parts, ", "))
	}
	if generated {
		c.generated[rec] = true
	}
	return name, nil
}

func newPort(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("Port", args, kw, "name", "idir", "type?")
	if err != nil {
		return nil, err
	}
	name, err := asString("Port", a[0])
	if err != nil {
		return nil, err
	}
	dir, err := asString("Port", a[1])
	if err != nil {
		return nil, err
	}
	switch entity.Dir(dir) {
	case entity.In, entity.Out, entity.InOut, entity.Ifc:
	default:
		return nil, &entity.BindingError{Msg: fmt.Sprintf("Invalid port direction: %s", dir)}
	}
	var ptype string
	if a[2] != nil {
		if ptype, err = asString("Port", a[2]); err != nil {
			return nil, err
		}
	}
	return &entity.Port{Name: name, Dir: entity.Dir(dir), Type: ptype}, nil
}

// entityInit is Entity.__init__: it checks every port is bound and
// stores the port arguments and the ARGS values in args and kwargs.
// Interface ports are replaced by their view.
func entityInit(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	c := cc.C
	if len(args) != 1 {
		return nil, host.Raise("TypeError", "Entity.__init__() takes keyword arguments only")
	}
	inst, ok := args[0].(*host.Instance)
	if !ok {
		return nil, host.Raise("TypeError", "Entity.__init__() needs an instance")
	}
	info, err := c.entityInfo(inst.Class)
	if err != nil {
		return nil, err
	}
	pargs := host.NewDict()
	for _, pin := range info.ports {
		arg, ok := kw.Get(pin.Name)
		if !ok || arg == nil {
			return nil, &entity.BindingError{Msg: fmt.Sprintf("Missing argument %q for Entity %q", pin.Name, inst.Class.Name)}
		}
		if pin.IsIfc() {
			origin, _, ok := ifcOriginOf(arg)
			if !ok {
				return nil, &entity.BindingError{Msg: fmt.Sprintf("Port %s needs an interface, got %s", pin.Name, host.TypeName(arg))}
			}
			_, portName := pin.IfcSplit()
			if arg, err = c.createPortView(origin, pin.Name, portName); err != nil {
				return nil, err
			}
		}
		pargs.SetStr(pin.Name, arg)
	}
	kwargs := host.NewDict()
	for _, name := range info.args.Keys() {
		v, ok := kw.Get(name)
		if !ok {
			v, _ = info.args.Get(name)
		}
		kwargs.SetStr(name, v)
	}
	inst.Dict.Set("args", pargs)
	inst.Dict.Set("kwargs", kwargs)
	return nil, nil
}

// entityRepr is "Class(k=v, ...)" over the keyword arguments and the
// port arguments of an entity instance.
func (c *Compiler) entityRepr(inst *host.Instance) string {
	var parts []string
	for _, key := range []string{"kwargs", "args"} {
		dv, ok := inst.Dict.Get(key)
		if !ok {
			continue
		}
		d, ok := dv.(*host.DictObject)
		if !ok {
			continue
		}
		items := d.Items()
		for i := 0; i+1 < len(items); i += 2 {
			r, err := c.repr(items[i+1])
			if err != nil {
				r = host.Repr(items[i+1])
			}
			parts = append(parts, host.Str(items[i])+"="+r)
		}
	}
	return inst.Class.Name + "(" + strings.Join(parts, ", ") + ")"
}

// GenerateEntity emits the definition of cls specialized with eargs, the
// port arguments and keyword arguments of the entity. Port arguments are
// hardware values or types.
func (c *Compiler) GenerateEntity(cls *host.Class, eargs *host.Namespace) error {
	info, err := c.entityInfo(cls)
	if err != nil {
		return err
	}
	kwargs := eargs.Clone()
	ports := host.NewNamespace()
	cargs := host.NewNamespace()
	var portArgs []emitter.PortArg
	known := make(map[string]bool)
	for _, pin := range info.ports {
		arg, ok := kwargs.Get(pin.Name)
		if !ok || arg == nil {
			return &entity.BindingError{Msg: fmt.Sprintf("Missing argument %q for Entity %q", pin.Name, cls.Name)}
		}
		kwargs.Delete(pin.Name)
		ports.Set(pin.Name, arg)

		if pin.IsIfc() {
			origin, _, ok := ifcOriginOf(arg)
			if !ok {
				return &entity.BindingError{Msg: fmt.Sprintf("Port %s needs an interface, got %s", pin.Name, host.TypeName(arg))}
			}
			if err := ifcClassMatches(pin, origin); err != nil {
				return err
			}
			_, portName := pin.IfcSplit()
			pins, err := c.expandPort(origin, pin.Name, portName)
			if err != nil {
				return err
			}
			for _, xp := range pins {
				ref := value.NewRef(xp.port.Name, &value.VSpec{Const: xp.port.IsRO(), Port: xp.port})
				pv := c.em.MakePortArg(xp.field.NewValue(ref, nil))
				portArgs = append(portArgs, emitter.PortArg{Port: xp.port, Value: pv})
				known[xp.port.Name] = true
			}
			view, err := c.createPortView(origin, pin.Name, portName)
			if err != nil {
				return err
			}
			cargs.Set(pin.Name, view)
			continue
		}

		vspec := &value.VSpec{Const: pin.IsRO(), Port: pin}
		var pv *value.Value
		switch a := arg.(type) {
		case *value.Value:
			pv = a.NewValue(value.NewRef(pin.Name, vspec), nil)
		case *types.Type:
			pv = value.MkWire(a, pin.Name, vspec)
		default:
			return types.Errorf("Argument must be Type at this point: %s", host.Repr(arg))
		}
		if err := pin.CheckType(pv.DType()); err != nil {
			return err
		}
		pv = c.em.MakePortArg(pv)
		portArgs = append(portArgs, emitter.PortArg{Port: pin, Value: pv})
		cargs.Set(pin.Name, pv)
		known[pin.Name] = true
	}
	for _, name := range info.args.Keys() {
		if _, ok := kwargs.Get(name); !ok {
			v, _ := info.args.Get(name)
			kwargs.Set(name, v)
		}
	}

	name, err := c.registerEntity(cls, info, ports, kwargs, true)
	if err != nil {
		return err
	}
	kwargs.Delete(emitter.ParamKey)
	entArgs := cargs.Clone()
	entArgs.Update(kwargs)

	logctx.Info(c.ctx, "generating entity", zap.String("entity", name), zap.String("class", cls.Name))

	inst := host.NewInstance(cls)
	if init, _, ok := cls.Lookup("__init__"); ok {
		if _, err := c.call(&host.BoundMethod{Self: inst, Func: init}, nil, entArgs); err != nil {
			return err
		}
	}

	comment, err := c.entityComment(name, cls, cargs, inst)
	if err != nil {
		return err
	}
	err = c.em.WithPlacement(c.moduleDecls, func() error {
		return c.em.EmitModuleDef(name, portArgs, comment)
	})
	if err != nil {
		return err
	}
	if err := c.em.EmitModuleDecl(name, portArgs); err != nil {
		return err
	}

	c.rootVars = make(map[string]*value.Value)
	c.revgen = newRevGen()
	c.entSignals = make(map[string]bool)
	c.curEntity = name
	defer func() { c.curEntity = "" }()

	kwRepr, _ := c.repr(kwargs)
	c.facts.Entity(facts.EntityRow{Name: name, Class: cls.Name, Backend: c.em.Kind(), Args: kwRepr})
	for _, pa := range portArgs {
		c.revgen.reserve(pa.Port.Name)
		c.facts.Port(facts.PortRow{Entity: name, Name: pa.Port.Name, Direction: string(pa.Port.Dir), Type: pa.Value.DType().String()})
	}

	for _, pname := range cls.Dict.Keys() {
		pv, _ := cls.Dict.Get(pname)
		fn, ok := pv.(*host.Function)
		if !ok || !isHDLFunction(fn) {
			continue
		}
		pa, err := c.processArgs(fn)
		if err != nil {
			return err
		}
		if err := entity.CheckSensitivity(pa.sens, func(s string) bool { return known[s] }); err != nil {
			return err
		}
		err = c.em.WithIndent(func() error {
			return c.generateProcess(inst, fn, entArgs, pa)
		})
		if err != nil {
			return err
		}
	}
	if err := c.em.EmitModuleEnd(); err != nil {
		return err
	}
	c.generated[c.records[name]] = true
	return nil
}

// entityComment describes the specialization of a generated entity.
func (c *Compiler) entityComment(name string, cls *host.Class, cargs *host.Namespace, inst *host.Instance) (string, error) {
	var args []string
	for _, k := range cargs.Keys() {
		v, _ := cargs.Get(k)
		var r string
		if hv, ok := v.(*value.Value); ok {
			r = hv.DType().String()
		} else {
			var err error
			if r, err = c.repr(v); err != nil {
				return "", err
			}
		}
		args = append(args, fmt.Sprintf("'%s': %s", k, r))
	}
	kwargs := "{}"
	if kv, ok := inst.Dict.Get("kwargs"); ok {
		r, err := c.repr(kv)
		if err != nil {
			return "", err
		}
		kwargs = r
	}
	return fmt.Sprintf("Entity %q is %q with:\n\targs={%s}\n\tkwargs=%s", name, cls.Name, strings.Join(args, ", "), kwargs), nil
}

// procArgs are the hdl_process decorator arguments.
type procArgs struct {
	sens []entity.Sens
	kind emitter.ProcessKind
	mode string
}

func (c *Compiler) processArgs(fn *host.Function) (procArgs, error) {
	var pa procArgs
	av, ok := fn.Attr(hdlArgsAttr)
	if !ok || av == nil {
		return pa, nil
	}
	hargs, ok := av.(*host.Namespace)
	if !ok {
		return pa, host.Raise("TypeError", "invalid process arguments of %s", fn.Name)
	}
	if sv, ok := hargs.Get("sens"); ok && sv != nil {
		sens, err := expandSensitivity(sv, nil)
		if err != nil {
			return pa, err
		}
		pa.sens = sens
	}
	if kv, ok := hargs.Get("kind"); ok && kv != nil {
		switch kv {
		case rootProcessName:
			pa.kind = emitter.RootProcess
		case initProcessName:
			pa.kind = emitter.InitProcess
		default:
			return pa, types.Errorf("Unknown process kind: %s", host.Repr(kv))
		}
	}
	if mv, ok := hargs.Get("proc_mode"); ok && mv != nil {
		mode, err := asString("proc_mode", mv)
		if err != nil {
			return pa, err
		}
		pa.mode = mode
	}
	return pa, nil
}

// expandSensitivity reads the sens process argument: "+CLK, RST" strings,
// {name: Sens(...)} dicts, or sequences of either.
func expandSensitivity(x any, dest []entity.Sens) ([]entity.Sens, error) {
	switch v := x.(type) {
	case string:
		return append(dest, entity.ParseSensitivity(v)...), nil
	case *host.DictObject:
		items := v.Items()
		for i := 0; i+1 < len(items); i += 2 {
			name, err := asString("sens", items[i])
			if err != nil {
				return nil, err
			}
			trig := entity.Level
			switch t := items[i+1].(type) {
			case *entity.Sens:
				trig = t.Trigger
			case string:
				trig = entity.Trigger(t)
			case nil:
			default:
				return nil, types.Errorf("Invalid sensitivity for %s: %s", name, host.Repr(t))
			}
			dest = append(dest, entity.Sens{Name: strings.ReplaceAll(name, ".", "_"), Trigger: trig})
		}
		return dest, nil
	case *host.TupleObject, *host.ListObject:
		var err error
		for _, e := range host.Items(v) {
			if dest, err = expandSensitivity(e, dest); err != nil {
				return nil, err
			}
		}
		return dest, nil
	}
	return nil, types.Errorf("Invalid sensitivity: %s", host.Repr(x))
}

// generateProcess runs one process function of an entity. Root processes
// generate concurrent code in the module body, other processes get their
// own process block.
func (c *Compiler) generateProcess(self *host.Instance, fn *host.Function, entArgs *host.Namespace, pa procArgs) error {
	var args []any
	if len(fn.Params) > 0 && fn.Params[0].Name == "self" {
		args = []any{self}
	}
	kwargs := entArgs.Clone()
	c.debugf("process %s kind=%s sens=%v", fn.Name, pa.kind, pa.sens)

	if pa.kind == emitter.RootProcess {
		c.enterScope(fn.Name, pa.kind, c.em.ModuleVarsPlace())
		_, err := c.call(fn, args, kwargs)
		if xerr := c.exitScope(); err == nil {
			err = xerr
		}
		c.recordProcess(fn.Name, pa)
		return err
	}

	info := emitter.ProcessInfo{Name: fn.Name, Kind: pa.kind, Sens: pa.sens, Mode: pa.mode}
	if err := c.em.EmitProcessDecl(info); err != nil {
		return err
	}
	c.em.EmitProcessBegin()
	c.enterScope(fn.Name, pa.kind, c.em.ProcessVarsPlace())
	err := c.em.WithIndent(func() error {
		_, err := c.call(fn, args, kwargs)
		return err
	})
	if xerr := c.exitScope(); err == nil {
		err = xerr
	}
	if err != nil {
		return err
	}
	c.em.EmitProcessEnd()
	c.recordProcess(fn.Name, pa)
	return nil
}

func (c *Compiler) recordProcess(name string, pa procArgs) {
	c.facts.Process(facts.ProcessRow{
		Entity:  c.curEntity,
		Name:    name,
		Kind:    pa.kind.String(),
		Mode:    pa.mode,
		Clocked: len(entity.Edges(pa.sens)) > 0,
	})
	for _, s := range pa.sens {
		c.facts.Sensitivity(facts.SensitivityRow{Entity: c.curEntity, Process: name, Signal: s.Name, Trigger: string(s.Trigger)})
	}
}

func (c *Compiler) enterScope(name string, kind emitter.ProcessKind, place *emitter.Placement) {
	c.scopes = append(c.scopes, &procScope{name: name, kind: kind, place: place})
}

// exitScope declares the variables of the closing process scope. Variables
// the backend declares at module level are shared by all processes, and
// must be declared the same way by each.
func (c *Compiler) exitScope() error {
	s := c.scope()
	c.scopes = c.scopes[:len(c.scopes)-1]

	var roots []declVar
	err := c.em.WithPlacement(s.place, func() error {
		for _, dv := range s.vars {
			if c.em.IsRootVariable(dv.v) {
				roots = append(roots, dv)
				continue
			}
			c.debugf("variable %s %s %s", dv.v.Kind(), dv.v.DType(), dv.name)
			if err := c.em.EmitDeclare(dv.name, dv.v); err != nil {
				return err
			}
			c.recordSignal(s.name, dv)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.em.WithPlacement(c.em.ModuleVarsPlace(), func() error {
		for _, dv := range roots {
			if prev, ok := c.rootVars[dv.name]; ok {
				if !prev.Equal(dv.v) {
					return types.Errorf("Root variable declaration mismatch: %s vs. %s", dv.v, prev)
				}
				continue
			}
			c.debugf("root variable %s %s %s", dv.v.Kind(), dv.v.DType(), dv.name)
			if err := c.em.EmitDeclare(dv.name, dv.v); err != nil {
				return err
			}
			c.rootVars[dv.name] = dv.v
			c.recordSignal("", dv)
		}
		return nil
	})
}

func (c *Compiler) recordSignal(scope string, dv declVar) {
	c.facts.Signal(facts.SignalRow{
		Entity: c.curEntity,
		Scope:  scope,
		Name:   dv.name,
		Type:   dv.v.DType().String(),
		Kind:   dv.v.Kind().String(),
		Const:  dv.v.IsConst(),
	})
}

// instantiateEntity implements calls of entity classes from process code:
// the entity is bound to the arguments and its definition is queued for
// generation. Its processes do not run here.
func (c *Compiler) instantiateEntity(cls *host.Class, args []any, kw *host.Namespace) (any, error) {
	if len(args) > 0 {
		return nil, host.Raise("TypeError", "%s() takes keyword arguments only", cls.Name)
	}
	info, err := c.entityInfo(cls)
	if err != nil {
		return nil, err
	}
	c.debugf("entity instantiation: %s", cls.Name)

	rkwargs := kw.Clone()
	ports := host.NewNamespace()
	var binds []emitter.Binding
	for _, pin := range info.ports {
		arg, ok := rkwargs.Get(pin.Name)
		if !ok || arg == nil {
			return nil, &entity.BindingError{Msg: fmt.Sprintf("Missing entity port %q binding for entity %s", pin.Name, cls.Name)}
		}
		rkwargs.Delete(pin.Name)

		if pin.IsIfc() {
			origin, _, ok := ifcOriginOf(arg)
			if !ok {
				return nil, &entity.BindingError{Msg: fmt.Sprintf("Port %s needs an interface, got %s", pin.Name, host.TypeName(arg))}
			}
			if err := ifcClassMatches(pin, origin); err != nil {
				return nil, err
			}
			_, portName := pin.IfcSplit()
			pins, err := c.expandPort(origin, pin.Name, portName)
			if err != nil {
				return nil, err
			}
			// Through a view, the fields are the ports of the enclosing entity.
			src := arg.(*host.Instance)
			for _, xp := range pins {
				fname := strings.TrimPrefix(xp.port.Name, pin.Name+"_")
				fv, err := ifcField(src, fname)
				if err != nil {
					return nil, err
				}
				binds = append(binds, emitter.Binding{Port: xp.port.Name, Value: fv})
			}
			ports.Set(pin.Name, origin)
			continue
		}

		v, ok := arg.(*value.Value)
		if !ok {
			return nil, &entity.BindingError{Msg: fmt.Sprintf("Port %s of %s needs a hardware value, got %s", pin.Name, cls.Name, host.TypeName(arg))}
		}
		if err := pin.CheckType(v.DType()); err != nil {
			return nil, err
		}
		ports.Set(pin.Name, v)
		binds = append(binds, emitter.Binding{Port: pin.Name, Value: v})
	}
	for _, name := range info.args.Keys() {
		if _, ok := rkwargs.Get(name); !ok {
			v, _ := info.args.Get(name)
			rkwargs.Set(name, v)
		}
	}

	params, err := c.entityParams(rkwargs)
	if err != nil {
		return nil, err
	}
	name := info.name
	if name == "" {
		if name, err = c.registerEntity(cls, info, ports, rkwargs, false); err != nil {
			return nil, err
		}
	} else {
		c.facts.Entity(facts.EntityRow{Name: name, Class: cls.Name, Backend: c.em.Kind(), External: true})
	}
	if err := c.em.EmitEntity(name, params, binds); err != nil {
		return nil, err
	}

	iname := c.em.LastInstance(name)
	c.facts.Instance(facts.InstanceRow{Entity: c.curEntity, Name: iname, Target: name})
	for _, b := range binds {
		expr := ""
		if b.Value != nil && !b.Value.IsNone() {
			expr = b.Value.Text()
		}
		c.facts.Binding(facts.BindingRow{Entity: c.curEntity, Instance: iname, Port: b.Port, Expr: expr})
	}

	inst := host.NewInstance(cls)
	ekw := kw.Clone()
	ekw.Delete(emitter.ParamKey)
	if _, err := entityInit(&CallCtx{C: c}, []any{inst}, ekw); err != nil {
		return nil, err
	}
	return inst, nil
}

// entityParams converts the _P keyword argument to instance parameters.
func (c *Compiler) entityParams(kwargs *host.Namespace) ([]entity.Param, error) {
	pv, ok := kwargs.Get(emitter.ParamKey)
	if !ok || pv == nil {
		return nil, nil
	}
	d, ok := pv.(*host.DictObject)
	if !ok {
		return nil, host.Raise("TypeError", "%s must be a dict, got %s", emitter.ParamKey, host.TypeName(pv))
	}
	var params []entity.Param
	items := d.Items()
	for i := 0; i+1 < len(items); i += 2 {
		name, err := asString(emitter.ParamKey, items[i])
		if err != nil {
			return nil, err
		}
		var text string
		if hv, ok := items[i+1].(*value.Value); ok {
			text = c.em.SValueOf(hv)
		} else {
			text = emitter.FormatHost(items[i+1])
		}
		params = append(params, entity.Param{Name: name, Value: text})
	}
	return params, nil
}
