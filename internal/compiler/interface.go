package compiler

import (
	"fmt"
	"strings"

	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// ifcState is the Go side of Interface and InterfaceView instances.
type ifcState struct {
	// uname is the unique prefix of the interface signals. Views use the
	// name of the port they are seen through.
	uname  string
	fields []string
	// origin is the interface a view was created from, nil for interfaces.
	origin *host.Instance
}

func newInterfaceClass(object *host.Class) *host.Class {
	cls := host.MustClass("Interface", object)
	methods := map[string]NativeFunc{
		"__init__":         ifcInit,
		"mkfield":          ifcMkField,
		"create_fields":    ifcCreateFields,
		"get_xname":        ifcGetXName,
		"get_name":         ifcGetName,
		"create_port_view": ifcCreatePortView,
		"expand_port":      ifcExpandPort,
		"unpack":           ifcUnpack,
		"reset":            func(cc *CallCtx, args []any, kw *host.Namespace) (any, error) { return nil, nil },
	}
	for name, fn := range methods {
		cls.Dict.Set(name, NewNative(name, fn))
	}
	cls.Dict.Set("origin", &host.Property{Get: NewNative("origin", ifcOrigin)})
	cls.Dict.Set("fields", &host.Property{Get: NewNative("fields", ifcFields)})
	return cls
}

// ifcSelf returns the interface instance a native method is bound to.
func ifcSelf(fname string, args []any) (*host.Instance, *ifcState, error) {
	if len(args) > 0 {
		if inst, ok := args[0].(*host.Instance); ok {
			if st, ok := inst.Native.(*ifcState); ok {
				return inst, st, nil
			}
			return inst, nil, host.Raise("TypeError", "%s(): %s.__init__() was not called", fname, inst.Class.Name)
		}
	}
	return nil, nil, host.Raise("TypeError", "%s() needs an interface instance", fname)
}

func ifcInit(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	if len(args) == 0 {
		return nil, host.Raise("TypeError", "__init__() missing self")
	}
	inst, ok := args[0].(*host.Instance)
	if !ok {
		return nil, host.Raise("TypeError", "__init__() needs an instance")
	}
	a, err := unpackArgs("__init__", args[1:], kw, "name")
	if err != nil {
		return nil, err
	}
	name, err := asString("__init__", a[0])
	if err != nil {
		return nil, err
	}
	c := cc.C
	uname := name
	if n := c.ifcNames[name]; n > 0 {
		uname = fmt.Sprintf("%s%d", name, n)
	}
	c.ifcNames[name]++
	inst.Native = &ifcState{uname: uname}
	inst.Dict.Set("name", name)

	if fstr, _, ok := inst.Class.Lookup("FIELDS"); ok && fstr != nil {
		s, err := asString("FIELDS", fstr)
		if err != nil {
			return nil, err
		}
		if err := c.createFields(inst, s); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func ifcCreateFields(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	inst, _, err := ifcSelf("create_fields", args)
	if err != nil {
		return nil, err
	}
	a, err := unpackArgs("create_fields", args[1:], kw, "fstr")
	if err != nil {
		return nil, err
	}
	s, err := asString("create_fields", a[0])
	if err != nil {
		return nil, err
	}
	return nil, cc.C.createFields(inst, s)
}

// createFields declares the fields of a "X:u16, Y:u16=0" declaration.
func (c *Compiler) createFields(inst *host.Instance, fstr string) error {
	for _, fs := range splitTopLevel(fstr) {
		name, ftype, ok := strings.Cut(fs, ":")
		if !ok {
			return types.Errorf("Invalid interface field declaration: %s", fs)
		}
		ftype, finit, hasInit := strings.Cut(ftype, "=")
		var init any
		if hasInit {
			init = strings.TrimSpace(finit)
		}
		if err := c.mkField(inst, strings.TrimSpace(name), strings.TrimSpace(ftype), init); err != nil {
			return err
		}
	}
	return nil
}

// splitTopLevel splits s at the commas outside of brackets, so that array
// shapes like u8[2, 4] stay whole.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

func ifcMkField(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	inst, _, err := ifcSelf("mkfield", args)
	if err != nil {
		return nil, err
	}
	a, err := unpackArgs("mkfield", args[1:], kw, "name", "value", "init?")
	if err != nil {
		return nil, err
	}
	name, err := asString("mkfield", a[0])
	if err != nil {
		return nil, err
	}
	return nil, cc.C.mkField(inst, name, a[1], a[2])
}

// mkField binds a field to a hardware variable named after the interface.
// Values already bound to a variable are used as they are, types declare a
// new register.
func (c *Compiler) mkField(inst *host.Instance, name string, fv any, init any) error {
	st := inst.Native.(*ifcState)
	xname := entity.SubName(st.uname, name)

	var decl *value.Value
	switch v := fv.(type) {
	case *value.Value:
		if v.Ref() != nil {
			inst.Dict.Set(name, v)
			st.fields = append(st.fields, name)
			return nil
		}
		decl = v
	case *types.Type, string:
		dtype, err := asType("mkfield", v)
		if err != nil {
			return err
		}
		decl = value.MkReg(dtype, "", nil)
		if init != nil {
			if s, ok := init.(string); ok {
				if init, err = c.evalSource(s, nil); err != nil {
					return err
				}
			}
			decl = value.MkVReg(dtype, init, nil)
		}
	default:
		return types.Errorf("Invalid interface value: %s", host.Repr(fv))
	}
	ref, err := c.declareVar(c.revgen.newName(xname), decl)
	if err != nil {
		return err
	}
	inst.Dict.Set(name, ref)
	st.fields = append(st.fields, name)
	return nil
}

func ifcGetXName(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	_, st, err := ifcSelf("get_xname", args)
	if err != nil {
		return nil, err
	}
	a, err := unpackArgs("get_xname", args[1:], kw, "name")
	if err != nil {
		return nil, err
	}
	name, err := asString("get_xname", a[0])
	if err != nil {
		return nil, err
	}
	return entity.SubName(st.uname, name), nil
}

func ifcGetName(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	_, st, err := ifcSelf("get_name", args)
	if err != nil {
		return nil, err
	}
	a, err := unpackArgs("get_name", args[1:], kw, "xname")
	if err != nil {
		return nil, err
	}
	xname, err := asString("get_name", a[0])
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(xname, st.uname+"_") {
		return nil, types.Errorf("Invalid external name: %s", xname)
	}
	return xname[len(st.uname)+1:], nil
}

func ifcOrigin(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	inst, st, err := ifcSelf("origin", args)
	if err != nil {
		return nil, err
	}
	if st.origin != nil {
		return st.origin, nil
	}
	return inst, nil
}

func ifcFields(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	_, st, err := ifcSelf("fields", args)
	if err != nil {
		return nil, err
	}
	d := host.NewDict()
	for _, f := range st.fields {
		d.SetStr(f, entity.SubName(st.uname, f))
	}
	return d, nil
}

// ifcOriginOf returns the interface behind an interface or a view.
func ifcOriginOf(x any) (*host.Instance, *ifcState, bool) {
	inst, ok := x.(*host.Instance)
	if !ok {
		return nil, nil, false
	}
	st, ok := inst.Native.(*ifcState)
	if !ok {
		return nil, nil, false
	}
	if st.origin != nil {
		ost, ok := st.origin.Native.(*ifcState)
		return st.origin, ost, ok
	}
	return inst, st, true
}

// ifcPorts reads the port list an interface exports under portName: a port
// string like "X, Y, =Z" or a sequence of Port objects.
func (c *Compiler) ifcPorts(inst *host.Instance, portName string) ([]*entity.Port, error) {
	spec, err := c.getAttr(inst, portName)
	if err != nil {
		return nil, types.Errorf("Invalid port name: %s", portName)
	}
	return portList(spec)
}

// portList accepts a ports string or a sequence of Port objects.
func portList(spec any) ([]*entity.Port, error) {
	switch s := spec.(type) {
	case string:
		return entity.ParsePorts(s)
	case *host.TupleObject, *host.ListObject:
		var ports []*entity.Port
		for _, p := range host.Items(s) {
			port, ok := p.(*entity.Port)
			if !ok {
				return nil, &entity.BindingError{Msg: fmt.Sprintf("Unrecognized port value: %s", host.Repr(p))}
			}
			ports = append(ports, port)
		}
		return ports, nil
	}
	return nil, &entity.BindingError{Msg: fmt.Sprintf("Unrecognized ports value: %s", host.Repr(spec))}
}

// ifcField returns the hardware value bound to an interface field.
func ifcField(inst *host.Instance, name string) (*value.Value, error) {
	fv, ok := inst.Dict.Get(name)
	if !ok {
		return nil, types.Errorf("Interface %s has no field %s", inst.Class.Name, name)
	}
	v, ok := fv.(*value.Value)
	if !ok || v.Ref() == nil {
		return nil, types.Errorf("Wrong field value type (should contain a Ref): %s", host.Repr(fv))
	}
	return v, nil
}

// createPortView builds the view of origin seen through the entity port
// name. View fields are named after the port, and are read-only for input
// pins.
func (c *Compiler) createPortView(origin *host.Instance, name, portName string) (*host.Instance, error) {
	pins, err := c.ifcPorts(origin, portName)
	if err != nil {
		return nil, err
	}
	st := &ifcState{uname: name, origin: origin}
	view := host.NewInstance(c.cls.ifcView)
	view.Native = st
	view.Dict.Set("name", name)
	for _, pin := range pins {
		fv, err := ifcField(origin, pin.Name)
		if err != nil {
			return nil, err
		}
		xname := entity.SubName(name, pin.Name)
		xpin := &entity.Port{Name: xname, Dir: pin.Dir, Type: pin.Type}
		ref := value.NewRef(xname, &value.VSpec{Const: pin.IsRO(), Port: xpin})
		if pin.IsRO() || fv.Ref().Mode == value.RO {
			ref = ref.WithMode(value.RO)
		} else {
			ref = ref.WithMode(value.RW)
		}
		view.Dict.Set(pin.Name, c.em.MakePortArg(fv.NewValue(ref, nil)))
		st.fields = append(st.fields, pin.Name)
	}
	return view, nil
}

func ifcCreatePortView(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	inst, _, err := ifcSelf("create_port_view", args)
	if err != nil {
		return nil, err
	}
	a, err := unpackArgs("create_port_view", args[1:], kw, "name", "port_name")
	if err != nil {
		return nil, err
	}
	name, err := asString("create_port_view", a[0])
	if err != nil {
		return nil, err
	}
	portName, err := asString("create_port_view", a[1])
	if err != nil {
		return nil, err
	}
	return cc.C.createPortView(inst, name, portName)
}

// expandedPin is one flattened port of an interface port, with the field
// it connects to.
type expandedPin struct {
	port  *entity.Port
	field *value.Value
}

func (c *Compiler) expandPort(origin *host.Instance, name, portName string) ([]expandedPin, error) {
	pins, err := c.ifcPorts(origin, portName)
	if err != nil {
		return nil, err
	}
	out := make([]expandedPin, 0, len(pins))
	for _, pin := range pins {
		fv, err := ifcField(origin, pin.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, expandedPin{
			port:  &entity.Port{Name: entity.SubName(name, pin.Name), Dir: pin.Dir, Type: pin.Type},
			field: fv,
		})
	}
	return out, nil
}

func ifcExpandPort(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	inst, _, err := ifcSelf("expand_port", args)
	if err != nil {
		return nil, err
	}
	a, err := unpackArgs("expand_port", args[1:], kw, "name", "port_name")
	if err != nil {
		return nil, err
	}
	name, err := asString("expand_port", a[0])
	if err != nil {
		return nil, err
	}
	portName, err := asString("expand_port", a[1])
	if err != nil {
		return nil, err
	}
	pins, err := cc.C.expandPort(inst, name, portName)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(pins))
	for i, p := range pins {
		out[i] = host.NewTuple(p.port, p.field)
	}
	return host.NewTuple(out...), nil
}

// ifcUnpack returns the fields named by its arguments, as a list, or as a
// single value when only one is named. Arguments may be comma separated
// name lists.
func ifcUnpack(cc *CallCtx, args []any, kw *host.Namespace) (any, error) {
	inst, _, err := ifcSelf("unpack", args)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, a := range args[1:] {
		s, err := asString("unpack", a)
		if err != nil {
			return nil, err
		}
		for _, name := range splitTopLevel(s) {
			fv, err := ifcField(inst, name)
			if err != nil {
				return nil, err
			}
			out = append(out, cc.C.em.VarRemap(fv, false))
		}
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return host.NewList(out...), nil
}

// ifcDescribe lists the fields of an interface with their types.
func (c *Compiler) ifcDescribe(inst *host.Instance, st *ifcState) string {
	parts := make([]string, 0, len(st.fields))
	for _, f := range st.fields {
		dtype := "?"
		if v, err := ifcField(inst, f); err == nil {
			dtype = v.DType().String()
		}
		parts = append(parts, f+":"+dtype)
	}
	return strings.Join(parts, ", ")
}

// ifcClassMatches checks an interface argument against the class named by
// an IFC port type, "module.Class.PORT".
func ifcClassMatches(pin *entity.Port, origin *host.Instance) error {
	clsPath, _ := pin.IfcSplit()
	want := clsPath
	if i := strings.LastIndex(clsPath, "."); i >= 0 {
		want = clsPath[i+1:]
	}
	for _, m := range origin.Class.MRO {
		if m.Name == want {
			return nil
		}
	}
	return &entity.BindingError{Msg: fmt.Sprintf("Invalid argument of type %s when %s is required", origin.Class.Name, clsPath)}
}

func newInterfaceViewClass(object *host.Class) *host.Class {
	cls := host.MustClass("InterfaceView", object)
	cls.Dict.Set("unpack", NewNative("unpack", ifcUnpack))
	cls.Dict.Set("origin", &host.Property{Get: NewNative("origin", ifcOrigin)})
	cls.Dict.Set("fields", &host.Property{Get: NewNative("fields", ifcFields)})
	return cls
}
