// Package compiler runs host programs and turns the hardware operations they
// perform into backend code. Host values are computed as the program runs,
// while every operation touching a hardware value is handed to the emitter.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"github.com/robert-at-pretension-io/hdlgen/internal/config"
	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/entity"
	"github.com/robert-at-pretension-io/hdlgen/internal/extern"
	"github.com/robert-at-pretension-io/hdlgen/internal/facts"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/validator"
	"github.com/robert-at-pretension-io/hdlgen/internal/value"

	_ "github.com/robert-at-pretension-io/hdlgen/internal/emitter/verilog"
	_ "github.com/robert-at-pretension-io/hdlgen/internal/emitter/vhdl"
)

// Options configures a compilation.
type Options struct {
	Backend string
	// Entity is the class name of the top entity.
	Entity   string
	Filename string
	// Src is the program text. When nil, Filename is read.
	Src []byte
	// Inputs are "A,B=expr" port bindings of the top entity.
	Inputs []string
	// Kwargs are "K=expr" keyword arguments of the top entity.
	Kwargs []string
	Config *config.Config
	Parser *host.Parser
}

// Compiler holds the state of one compilation unit.
type Compiler struct {
	ctx    context.Context
	cfg    *config.Config
	em     *emitter.Emitter
	parser *host.Parser
	facts  *facts.Recorder

	builtins *host.Namespace
	cls      *coreClasses
	modules  map[string]*host.ModuleObject
	srcDir   string

	frames  []*frame
	frameID int
	scopes  []*procScope

	rootVars    map[string]*value.Value
	revgen      *revGen
	ifcNames    map[string]int
	moduleDecls *emitter.Placement

	versions  *entity.Versions
	used      []*entityRecord
	records   map[string]*entityRecord
	generated map[*entityRecord]bool
	entInfos  map[*host.Class]*entityInfo
	curEntity string
	// entSignals are the signals declared by the entity being generated.
	entSignals map[string]bool

	excStack []*host.Instance
	noHDL    int

	externs   map[string]*extern.Module
	validator *validator.Validator
}

// New creates a compiler emitting code for backend.
func New(ctx context.Context, backend string, cfg *config.Config) (*Compiler, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	em, err := emitter.New(ctx, backend, cfg)
	if err != nil {
		return nil, err
	}
	c := &Compiler{
		ctx:       ctx,
		cfg:       cfg,
		em:        em,
		parser:    host.NewParser(0),
		facts:     facts.NewRecorder(),
		modules:   make(map[string]*host.ModuleObject),
		rootVars:  make(map[string]*value.Value),
		revgen:    newRevGen(),
		ifcNames:  make(map[string]int),
		versions:  entity.NewVersions(),
		generated: make(map[*entityRecord]bool),
		records:   make(map[string]*entityRecord),
		entInfos:  make(map[*host.Class]*entityInfo),
		externs:   make(map[string]*extern.Module),

		entSignals: make(map[string]bool),
	}
	c.moduleDecls = em.EmitPlacement(0)
	c.cls = newCoreClasses()
	c.builtins = c.makeBuiltins()
	if err := c.initModules(); err != nil {
		return nil, err
	}
	if err := c.loadConfiguredExterns(); err != nil {
		return nil, err
	}
	return c, nil
}

// Emitter returns the emitter the compiler writes to.
func (c *Compiler) Emitter() *emitter.Emitter { return c.em }

// Context returns the context the compilation runs under.
func (c *Compiler) Context() context.Context { return c.ctx }

// Config returns the compilation configuration.
func (c *Compiler) Config() *config.Config { return c.cfg }

// SetParser shares a parser, and its caches, with other compilations.
func (c *Compiler) SetParser(p *host.Parser) { c.parser = p }

// Facts returns the design facts recorded so far.
func (c *Compiler) Facts() facts.Tables { return c.facts.Tables() }

// Generate compiles the top entity named by opts and returns the generated
// lines, library code first.
func Generate(ctx context.Context, opts Options) ([]string, error) {
	c, err := New(ctx, opts.Backend, opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Parser != nil {
		c.SetParser(opts.Parser)
	}
	if err := c.Compile(opts); err != nil {
		return nil, err
	}
	return c.Flush()
}

// Compile loads the program of opts and generates its top entity, and every
// entity it instantiates. Flush returns the result.
func (c *Compiler) Compile(opts Options) error {
	src := opts.Src
	if src == nil {
		data, err := os.ReadFile(opts.Filename)
		if err != nil {
			return fmt.Errorf("reading %s: %w", opts.Filename, err)
		}
		src = data
	}
	mod, err := c.Load(opts.Filename, src)
	if err != nil {
		return err
	}
	v, ok := mod.Dict.Get(opts.Entity)
	if !ok {
		return fmt.Errorf("entity %s not found in %s", opts.Entity, opts.Filename)
	}
	cls, ok := v.(*host.Class)
	if !ok || !c.isEntityClass(cls) {
		return fmt.Errorf("%s is not an entity class", opts.Entity)
	}
	args, err := c.ParseArgs(mod, opts.Inputs, opts.Kwargs)
	if err != nil {
		return err
	}
	return c.GenerateEntity(cls, args)
}

// Load runs a program module and returns it.
func (c *Compiler) Load(filename string, src []byte) (*host.ModuleObject, error) {
	m, err := c.parser.Parse(c.ctx, filename, src)
	if err != nil {
		return nil, err
	}
	if filename != "" {
		c.srcDir = filepath.Dir(filename)
	}
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return c.runModule(name, filename, m)
}

func (c *Compiler) runModule(name, filename string, m *host.Module) (*host.ModuleObject, error) {
	globals := host.NewNamespace()
	globals.Set("__name__", name)
	globals.Set("__file__", filename)
	mod := &host.ModuleObject{Name: name, Dict: globals}
	c.modules[name] = mod

	f := c.pushFrame(globals, globals, nil, filename, "<module>")
	defer c.popFrame()
	f.line = 1
	if _, err := c.execBody(m.Body); err != nil {
		return nil, err
	}
	return mod, nil
}

// ParseArgs evaluates "A,B=expr" entity inputs and keyword arguments. The
// expressions see the hdl module names and the module globals. An input
// which does not evaluate is parsed as a type name.
func (c *Compiler) ParseArgs(mod *host.ModuleObject, inputs, kwargs []string) (*host.Namespace, error) {
	globals := c.hdlModule().Dict.Clone()
	globals.Update(mod.Dict)
	args := host.NewNamespace()
	add := func(spec string, typeFallback bool) error {
		names, expr, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("invalid argument %q, want NAME=EXPR", spec)
		}
		v, err := c.evalString(expr, globals)
		if err != nil {
			dtype, perr := types.Parse(strings.TrimSpace(expr))
			if !typeFallback || perr != nil {
				return fmt.Errorf("evaluating %q: %w", expr, err)
			}
			v = dtype
		}
		for _, name := range strings.Split(names, ",") {
			name = strings.TrimSpace(name)
			if _, dup := args.Get(name); dup {
				return fmt.Errorf("duplicate argument: %s", name)
			}
			args.Set(name, v)
		}
		return nil
	}
	for _, in := range inputs {
		if err := add(in, true); err != nil {
			return nil, err
		}
	}
	for _, kw := range kwargs {
		if err := add(kw, false); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func (c *Compiler) evalString(expr string, globals *host.Namespace) (any, error) {
	x, err := c.parser.ParseExpr(c.ctx, strings.TrimSpace(expr))
	if err != nil {
		return nil, err
	}
	c.pushFrame(globals, globals, nil, "<input>", "<input>")
	defer c.popFrame()
	return c.eval(x)
}

// Flush generates the entities still pending and returns the compilation
// unit.
func (c *Compiler) Flush() ([]string, error) {
	if err := c.flushGeneration(); err != nil {
		return nil, err
	}
	lines, err := c.em.Flush()
	if err != nil {
		return nil, err
	}
	for _, lib := range c.em.Libs() {
		c.facts.Library(facts.LibraryRow{Name: lib, Backend: c.em.Kind()})
	}
	return lines, nil
}

// flushGeneration generates instantiated entities until no new definition
// shows up.
func (c *Compiler) flushGeneration() error {
	for round := 1; ; round++ {
		pending := make([]*entityRecord, 0, len(c.used))
		for _, rec := range c.used {
			if !c.generated[rec] {
				pending = append(pending, rec)
			}
		}
		if len(pending) == 0 {
			return nil
		}
		logctx.Info(c.ctx, "generating instantiated entities", zap.Int("round", round), zap.Int("count", len(pending)))
		for _, rec := range pending {
			if err := c.GenerateEntity(rec.class, rec.args()); err != nil {
				return err
			}
		}
	}
}

func (c *Compiler) pushFrame(globals, locals *host.Namespace, closure []*host.Namespace, file, fname string) *frame {
	c.frameID++
	f := &frame{
		id:      c.frameID,
		globals: globals,
		locals:  locals,
		closure: closure,
		file:    file,
		fname:   fname,
	}
	c.frames = append(c.frames, f)
	return f
}

func (c *Compiler) popFrame() {
	c.frames = c.frames[:len(c.frames)-1]
}

func (c *Compiler) frame() *frame { return c.frames[len(c.frames)-1] }

func (c *Compiler) scope() *procScope {
	if len(c.scopes) == 0 {
		return nil
	}
	return c.scopes[len(c.scopes)-1]
}

// processName is the name of the process being generated, empty in the
// concurrent area.
func (c *Compiler) processName() string {
	if s := c.scope(); s != nil {
		return s.name
	}
	return ""
}

func (c *Compiler) debugf(format string, args ...any) {
	logctx.Debug(c.ctx, fmt.Sprintf(format, args...))
}

func (c *Compiler) warnf(format string, args ...any) {
	logctx.Warnf(c.ctx, format, args...)
}
