// Package extern loads the declarations of external helper modules: library
// functions which live in backend source files and are called from host
// code through typed wrappers.
//
// A declaration is a YAML document:
//
//	name: xmod_test
//	name_remap: {vhdl: xmod_pkg}
//	functions:
//	  xmod_test:
//	    nargs: 2
//	    params: ["N=nbits(0)"]
//	    fnsig: "u*, u*"
//	    dtype: "0"
//
// For SystemVerilog the function is reached through an instance of the
// module, parametrized by params. For VHDL it is a package function.
package extern

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/robert-at-pretension-io/hdlgen/internal/types"
	"github.com/robert-at-pretension-io/hdlgen/internal/validator"
)

// Module is a loaded external module declaration.
type Module struct {
	Name      string
	NameRemap map[string]string
	Path      string

	functions map[string]*Function
	order     []string
}

// Function is one function of an external module.
type Function struct {
	Name string
	// FuncName is the backend function name, Name when empty.
	FuncName  string
	NArgs     int
	Params    []Param
	Args      map[string]string
	NameRemap map[string]string
	// Filename is the library file holding the module code, without
	// extension. It defaults to the module name.
	Filename string
	FnSig    string
	DType    string
	// Line is the position of the declaration in its source document.
	Line int
}

// Param is a module parameter bound at call time. Source is a literal, or
// one of nbits(N), exp(N), mant(N) reading the type of argument N.
type Param struct {
	Name   string
	Source string
}

// LoadError reports a malformed declaration.
type LoadError struct {
	Path string
	Line int
	Msg  string
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

type functionDoc struct {
	FuncName  string            `yaml:"funcname" json:"funcname,omitempty"`
	NArgs     int               `yaml:"nargs" json:"nargs,omitempty"`
	Params    []string          `yaml:"params" json:"params,omitempty"`
	Args      map[string]string `yaml:"args" json:"args,omitempty"`
	NameRemap map[string]string `yaml:"name_remap" json:"name_remap,omitempty"`
	Filename  string            `yaml:"filename" json:"filename,omitempty"`
	FnSig     string            `yaml:"fnsig" json:"fnsig,omitempty"`
	DType     string            `yaml:"dtype" json:"dtype,omitempty"`
}

type moduleDoc struct {
	Name      string                  `yaml:"name" json:"name"`
	NameRemap map[string]string       `yaml:"name_remap" json:"name_remap,omitempty"`
	Functions map[string]*functionDoc `yaml:"functions" json:"functions"`
}

// Load reads and validates the declaration at path.
func Load(path string, v *validator.Validator) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading extern module: %w", err)
	}
	return Parse(path, data, v)
}

// Parse decodes a declaration. A nil validator skips the schema check.
func Parse(path string, data []byte, v *validator.Validator) (*Module, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &LoadError{Path: path, Msg: err.Error()}
	}
	if len(root.Content) == 0 {
		return nil, &LoadError{Path: path, Msg: "empty document"}
	}
	doc := root.Content[0]
	var md moduleDoc
	if err := doc.Decode(&md); err != nil {
		return nil, &LoadError{Path: path, Line: doc.Line, Msg: err.Error()}
	}
	if v != nil {
		if err := v.ValidateExternModule(md); err != nil {
			msg := err.Error()
			if errs := v.ValidationErrors(md, validator.ExternModuleDef); len(errs) > 0 {
				msg = strings.Join(errs, "; ")
			}
			return nil, &LoadError{Path: path, Msg: msg}
		}
	}
	lines := functionLines(doc)

	m := &Module{
		Name:      md.Name,
		NameRemap: md.NameRemap,
		Path:      path,
		functions: make(map[string]*Function, len(md.Functions)),
	}
	for name := range md.Functions {
		m.order = append(m.order, name)
	}
	sort.Slice(m.order, func(i, j int) bool { return lines[m.order[i]] < lines[m.order[j]] })

	for _, name := range m.order {
		fd := md.Functions[name]
		if fd == nil {
			fd = &functionDoc{}
		}
		fn := &Function{
			Name:      name,
			FuncName:  fd.FuncName,
			NArgs:     fd.NArgs,
			Args:      fd.Args,
			NameRemap: fd.NameRemap,
			Filename:  fd.Filename,
			FnSig:     fd.FnSig,
			DType:     fd.DType,
			Line:      lines[name],
		}
		if len(fn.NameRemap) == 0 {
			fn.NameRemap = md.NameRemap
		}
		if fn.Filename == "" {
			fn.Filename = md.Name
		}
		for _, ps := range fd.Params {
			p, err := parseParam(ps)
			if err != nil {
				return nil, &LoadError{Path: path, Line: fn.Line, Msg: err.Error()}
			}
			fn.Params = append(fn.Params, p)
		}
		m.functions[name] = fn
	}
	return m, nil
}

// functionLines maps function names to their line in the document.
func functionLines(doc *yaml.Node) map[string]int {
	lines := make(map[string]int)
	if doc.Kind != yaml.MappingNode {
		return lines
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "functions" {
			continue
		}
		fns := doc.Content[i+1]
		for j := 0; j+1 < len(fns.Content); j += 2 {
			lines[fns.Content[j].Value] = fns.Content[j].Line
		}
	}
	return lines
}

func parseParam(s string) (Param, error) {
	name, src, ok := strings.Cut(s, "=")
	if !ok {
		return Param{}, fmt.Errorf("invalid parameter %q, want NAME=VALUE", s)
	}
	return Param{Name: strings.TrimSpace(name), Source: strings.TrimSpace(src)}, nil
}

// Function returns the named function of the module.
func (m *Module) Function(name string) (*Function, error) {
	fn, ok := m.functions[name]
	if !ok {
		return nil, fmt.Errorf("Unable to find %s logic within %s module", name, m.Name)
	}
	return fn, nil
}

// Functions lists the function names in declaration order.
func (m *Module) Functions() []string { return append([]string(nil), m.order...) }

// BackendName is the name the function is called by on backend: the remap
// entry qualified by the module name, or module.function.
func (f *Function) BackendName(module, backend string) string {
	fname := f.FuncName
	if fname == "" {
		fname = f.Name
	}
	if remap, ok := f.NameRemap[backend]; ok {
		if strings.Contains(remap, ".") {
			return remap
		}
		return remap + "." + fname
	}
	return module + "." + fname
}

var paramRx = regexp.MustCompile(`^(nbits|exp|mant)\((\d+)\)$`)

// FloatSpecFunc resolves the exponent and mantissa widths of a float type.
type FloatSpecFunc func(*types.Type) (types.FloatSpec, error)

// ResolveParams computes the parameter values of a call with argument
// types dtypes. Args come after the params, sorted by name.
func (f *Function) ResolveParams(dtypes []*types.Type, fspec FloatSpecFunc) ([][2]string, error) {
	var out [][2]string
	for _, p := range f.Params {
		m := paramRx.FindStringSubmatch(p.Source)
		if m == nil {
			out = append(out, [2]string{p.Name, p.Source})
			continue
		}
		n, _ := strconv.Atoi(m[2])
		if n >= len(dtypes) || dtypes[n] == nil {
			return nil, fmt.Errorf("%s: parameter %s refers to argument %d, which has no type", f.Name, p.Name, n)
		}
		dt := dtypes[n]
		var v int
		switch m[1] {
		case "nbits":
			v = dt.NBits()
		case "exp", "mant":
			fs, err := fspec(dt)
			if err != nil {
				return nil, err
			}
			v = fs.Exp
			if m[1] == "mant" {
				v = fs.Mant
			}
		}
		out = append(out, [2]string{p.Name, strconv.Itoa(v)})
	}
	names := make([]string, 0, len(f.Args))
	for k := range f.Args {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		out = append(out, [2]string{k, f.Args[k]})
	}
	return out, nil
}

// CheckArgs verifies the number of call arguments when nargs is declared.
func (f *Function) CheckArgs(n int) error {
	if f.NArgs > 0 && n != f.NArgs {
		return fmt.Errorf("%s() takes %d arguments (%d given)", f.Name, f.NArgs, n)
	}
	return nil
}

// ResultType parses the dtype declaration. An integer N means the type of
// argument N, an empty declaration means a void call.
func (f *Function) ResultType(dtypes []*types.Type) (*types.Type, error) {
	if f.DType == "" {
		return types.VoidType, nil
	}
	if n, err := strconv.Atoi(f.DType); err == nil {
		if n < 0 || n >= len(dtypes) || dtypes[n] == nil {
			return nil, fmt.Errorf("%s: result type refers to argument %d, which has no type", f.Name, n)
		}
		return dtypes[n], nil
	}
	return types.Parse(f.DType)
}
