package entity

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"lukechampine.com/blake3"
)

// Digest hashes the parts of an instance key into a short stable id.
func Digest(parts ...string) string {
	h := blake3.New(16, nil)
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s;", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Versions hands out unique definition names for entity instances. Equal
// keys of the same class share a name, the first one gets the bare class
// name and the following ones get a "_N" suffix.
type Versions struct {
	classes map[string]map[string]int
}

func NewVersions() *Versions {
	return &Versions{classes: make(map[string]map[string]int)}
}

// Name returns the definition name for the key and whether it was just created.
func (v *Versions) Name(class, key string) (string, bool) {
	vers, ok := v.classes[class]
	if !ok {
		vers = make(map[string]int)
		v.classes[class] = vers
	}
	ver, ok := vers[key]
	created := !ok
	if created {
		ver = len(vers)
		vers[key] = ver
	}
	if ver == 0 {
		return class, created
	}
	return fmt.Sprintf("%s_%d", class, ver), created
}

// Param is a named module parameter value.
type Param struct {
	Name  string
	Value string
}

// Instance is one interface-module instance created by an Instanciator.
type Instance struct {
	ID     string
	Module string
	Params []Param
	Args   []Param
}

func (i *Instance) key() string {
	var sb strings.Builder
	sb.WriteString(i.Module)
	for _, p := range i.Params {
		sb.WriteString("|" + p.Name + "=" + p.Value)
	}
	sb.WriteString("#")
	for _, a := range i.Args {
		sb.WriteString("|" + a.Name + "=" + a.Value)
	}
	return sb.String()
}

var cnameRx = regexp.MustCompile(`[.$:]+`)

// Instanciator assigns "module_N" ids to helper module instances, reusing
// the id of an identical earlier instance.
type Instanciator struct {
	byKey     map[string]*Instance
	ids       map[string]int
	instances []*Instance
}

func NewInstanciator() *Instanciator {
	return &Instanciator{byKey: make(map[string]*Instance), ids: make(map[string]int)}
}

func (it *Instanciator) GetID(module string, params, args []Param) string {
	inst := &Instance{Module: module, Params: params, Args: args}
	key := inst.key()
	if prev, ok := it.byKey[key]; ok {
		return prev.ID
	}
	cname := cnameRx.ReplaceAllString(module, "_")
	it.ids[cname]++
	inst.ID = fmt.Sprintf("%s_%d", cname, it.ids[cname])
	it.byKey[key] = inst
	it.instances = append(it.instances, inst)
	return inst.ID
}

// Instances returns the instances in creation order.
func (it *Instanciator) Instances() []*Instance { return it.instances }
