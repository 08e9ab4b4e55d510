// Package emitter holds the backend independent half of code generation:
// the placement tree, operand marshaling, casts, library loading and the
// registry of target language backends.
package emitter

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdlgen/internal/config"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"
)

// ParamKey is the keyword argument holding the generic (VHDL) or parameter
// (SystemVerilog) map of an entity instance.
const ParamKey = "_P"

// Factory builds the dialect of a backend bound to its emitter.
type Factory func(e *Emitter) Dialect

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under name. Backends register
// themselves from an init function.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Available lists the registered backend names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Emitter accumulates the generated text of one compilation unit.
type Emitter struct {
	Dialect

	ctx        context.Context
	cfg        *config.Config
	indent     int
	placements []*Placement
	root       *Placement
	entInsts   map[string]int
	modules    *moduleRegistry
	contexts   []map[string]any
	proc       ProcessInfo
	// libs are on-demand libraries requested by host code, on top of the
	// ones the dialect asks for.
	libs []string
}

// New creates an emitter for the named backend.
func New(ctx context.Context, backend string, cfg *config.Config) (*Emitter, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(backend)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("Unknown emitter: %s (available: %s)", backend, strings.Join(Available(), ", "))
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Emitter{
		ctx:      ctx,
		cfg:      cfg,
		root:     newPlacement(0),
		entInsts: make(map[string]int),
		modules:  newModuleRegistry(),
		proc:     ProcessInfo{Kind: RootProcess},
	}
	e.Dialect = f(e)
	return e, nil
}

func (e *Emitter) Config() *config.Config   { return e.cfg }
func (e *Emitter) Context() context.Context { return e.ctx }

func (e *Emitter) debugf(format string, args ...any) {
	logctx.Debug(e.ctx, fmt.Sprintf(format, args...), zap.String("backend", e.Kind()))
}

// CreatePlacement makes a detached placement at the current indentation
// plus extra.
func (e *Emitter) CreatePlacement(extra int) *Placement {
	return newPlacement(e.indent + extra)
}

// EmitPlacement creates a placement and appends it to the current output.
func (e *Emitter) EmitPlacement(extra int) *Placement {
	p := e.CreatePlacement(extra)
	e.target().appendPlacement(p)
	return p
}

// AppendPlacement attaches an existing placement to the current output.
func (e *Emitter) AppendPlacement(p *Placement) {
	e.target().appendPlacement(p)
}

func (e *Emitter) target() *Placement {
	if n := len(e.placements); n > 0 {
		return e.placements[n-1]
	}
	return e.root
}

// WithPlacement redirects emission into p, at p's indentation, while fn runs.
func (e *Emitter) WithPlacement(p *Placement, fn func() error) error {
	saved := e.indent
	e.placements = append(e.placements, p)
	e.indent = p.indent
	defer func() {
		e.indent = saved
		e.placements = e.placements[:len(e.placements)-1]
	}()
	return fn()
}

// WithIndent runs fn one indentation level deeper.
func (e *Emitter) WithIndent(fn func() error) error {
	e.indent++
	defer func() { e.indent-- }()
	return fn()
}

func (e *Emitter) IndentLevel() int { return e.indent }

// ShiftIndent moves the indentation level by delta. Process skeletons which
// open a block in Begin and close it in End use it.
func (e *Emitter) ShiftIndent(delta int) { e.indent += delta }

// EmitLine writes one line at the current indentation.
func (e *Emitter) EmitLine(line string) {
	spaces := strings.Repeat(" ", e.cfg.IndentSpaces*e.indent)
	e.target().appendLine(spaces + line)
}

// EmitCode writes a possibly multi-line code block.
func (e *Emitter) EmitCode(code string) {
	for _, ln := range strings.Split(code, "\n") {
		e.EmitLine(ln)
	}
}

// PushContext installs emission modifiers (delay, trans) until the
// matching PopContext.
func (e *Emitter) PushContext(kv map[string]any) { e.contexts = append(e.contexts, kv) }

func (e *Emitter) PopContext() {
	if len(e.contexts) > 0 {
		e.contexts = e.contexts[:len(e.contexts)-1]
	}
}

// ContextValue returns the innermost value of a context key.
func (e *Emitter) ContextValue(key string) (any, bool) {
	for i := len(e.contexts) - 1; i >= 0; i-- {
		if v, ok := e.contexts[i][key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Process returns the process being generated. Outside of processes it
// reports a root process.
func (e *Emitter) Process() ProcessInfo { return e.proc }

func (e *Emitter) SetProcess(p ProcessInfo) { e.proc = p }

func (e *Emitter) ResetProcess() { e.proc = ProcessInfo{Kind: RootProcess} }

// EntityInstance hands out the next "Name_N" instance label.
func (e *Emitter) EntityInstance(name string) string {
	e.entInsts[name]++
	return fmt.Sprintf("%s_%d", name, e.entInsts[name])
}

// LastInstance is the label EntityInstance handed out last for name.
func (e *Emitter) LastInstance(name string) string {
	return fmt.Sprintf("%s_%d", name, e.entInsts[name])
}

// FloatSpec resolves the exponent and mantissa split of a float type.
func (e *Emitter) FloatSpec(dtype *types.Type) (types.FloatSpec, error) {
	return e.cfg.FloatSpec(dtype.NBits())
}

// TimeUnit is the unit wait and delay amounts are expressed in.
func (e *Emitter) TimeUnit() string {
	tu, _ := e.cfg.Lookup("TIME_UNIT", e.cfg.TimeUnit)
	return tu
}

// DefaultFloatType is the float type used when host code asks for a float
// without a width. HDLGEN_FLOAT_TYPE overrides it.
func (e *Emitter) DefaultFloatType() *types.Type {
	if s := os.Getenv(config.EnvPrefix + "FLOAT_TYPE"); s != "" {
		if t, err := types.Parse(s); err == nil && t.Kind() == types.KindFloat {
			return t
		}
	}
	return types.DefaultFloat
}

// SValueOf returns the text of a value or the backend rendering of a host
// literal.
func (e *Emitter) SValueOf(x any) string {
	if v, ok := x.(*value.Value); ok {
		return v.Text()
	}
	return e.SValue(x)
}

// ArgsString formats args with fn and joins them with delim.
func (e *Emitter) ArgsString(fn func(string) string, delim string, args []*value.Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fn(a.Text())
	}
	return strings.Join(parts, delim)
}

// EmitCall emits a call to fname. A void dtype makes it a statement,
// otherwise the call is returned as a value which materializes where it is
// used.
func (e *Emitter) EmitCall(fname string, args []any, dtype *types.Type) *value.Value {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = e.SValueOf(a)
	}
	call := fmt.Sprintf("%s(%s)", fname, strings.Join(parts, ", "))
	e.debugf("%s -> %v", call, dtype)
	if dtype == nil || dtype.IsVoid() {
		e.EmitLine(call + ";")
		return nil
	}
	return value.NewTemp(dtype, call)
}

// AddLib requests an on-demand library by name.
func (e *Emitter) AddLib(name string) {
	if !slices.Contains(e.libs, name) {
		e.libs = append(e.libs, name)
	}
}

// Libs lists the on-demand libraries of the compilation unit.
func (e *Emitter) Libs() []string {
	out := e.ExtraLibs()
	for _, lib := range e.libs {
		if !slices.Contains(out, lib) {
			out = append(out, lib)
		}
	}
	return out
}

// Flush returns the complete compilation unit: library code followed by
// the generated code.
func (e *Emitter) Flush() ([]string, error) {
	libs, err := e.LoadLibs(e.Libs())
	if err != nil {
		return nil, err
	}
	return append(libs, e.root.Lines()...), nil
}
