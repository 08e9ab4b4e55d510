// hdlgen-ast prints the syntax tree of a host source file, for debugging
// the front end. By default it prints the raw tree-sitter tree with field
// names; --host prints the converted host nodes instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/robert-at-pretension-io/hdlgen/internal/host"
)

func main() {
	hostNodes := flag.Bool("host", false, "print the converted host nodes")
	maxDepth := flag.Int("depth", 0, "limit the printed tree depth (0: no limit)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: hdlgen-ast [--host] [--depth N] <file.py>")
		os.Exit(1)
	}
	path := flag.Arg(0)
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *hostNodes {
		err = printHost(path, source)
	} else {
		err = printTree(source, *maxDepth)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printTree(source []byte, maxDepth int) error {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return err
	}
	defer tree.Close()

	var walk func(n *sitter.Node, field string, depth int)
	walk = func(n *sitter.Node, field string, depth int) {
		if maxDepth > 0 && depth >= maxDepth {
			return
		}
		indent := strings.Repeat("  ", depth)
		label := n.Type()
		if field != "" {
			label = field + ": " + label
		}
		switch {
		case n.IsError():
			label += " ERROR"
		case n.IsMissing():
			label += " MISSING"
		}
		pos := n.StartPoint()
		if n.ChildCount() == 0 {
			fmt.Printf("%s%s [%d:%d] %q\n", indent, label, pos.Row+1, pos.Column, n.Content(source))
			return
		}
		fmt.Printf("%s%s [%d:%d]\n", indent, label, pos.Row+1, pos.Column)
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i), n.FieldNameForChild(i), depth+1)
		}
	}
	walk(tree.RootNode(), "", 0)
	return nil
}

func printHost(path string, source []byte) error {
	mod, err := host.NewParser(0).Parse(context.Background(), path, source)
	if err != nil {
		return err
	}
	host.Walk(mod, func(n host.Node) bool {
		name := strings.TrimPrefix(fmt.Sprintf("%T", n), "*host.")
		switch x := n.(type) {
		case *host.FunctionDef:
			name += " " + x.Name
		case *host.ClassDef:
			name += " " + x.Name
		case *host.Name:
			name += " " + x.ID
		case *host.Attribute:
			name += " ." + x.Attr
		case *host.Constant:
			name += " " + host.Repr(x.Value)
		}
		fmt.Printf("%4d  %s\n", n.Line(), name)
		return true
	})
	return nil
}
