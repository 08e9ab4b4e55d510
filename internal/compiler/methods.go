package compiler

import (
	"strings"
	"unicode"

	"github.com/robert-at-pretension-io/hdlgen/internal/emitter"
	"github.com/robert-at-pretension-io/hdlgen/internal/host"
)

// builtinMethods returns the method table of a Go backed host object.
func builtinMethods(obj any) map[string]methodFn {
	switch obj.(type) {
	case string:
		return strMethods
	case *host.ListObject:
		return listMethods
	case *host.TupleObject:
		return tupleMethods
	case *host.DictObject:
		return dictMethods
	case *host.SetObject:
		return setMethods
	case int64:
		return intMethods
	case float64:
		return floatMethods
	}
	return nil
}

var strMethods, listMethods, tupleMethods, dictMethods, setMethods, intMethods, floatMethods map[string]methodFn

func init() {
	strMethods = map[string]methodFn{
		"format":     strFormat,
		"join":       strJoin,
		"split":      strSplit,
		"strip":      strTrim("strip", strings.Trim, strings.TrimSpace),
		"lstrip":     strTrim("lstrip", strings.TrimLeft, func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }),
		"rstrip":     strTrim("rstrip", strings.TrimRight, func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }),
		"upper":      strMap(strings.ToUpper),
		"lower":      strMap(strings.ToLower),
		"startswith": strPred("startswith", strings.HasPrefix),
		"endswith":   strPred("endswith", strings.HasSuffix),
		"replace":    strReplace,
		"find":       strFind,
		"count":      strCount,
		"isdigit": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			s := recv.(string)
			if s == "" {
				return false, nil
			}
			for _, r := range s {
				if !unicode.IsDigit(r) {
					return false, nil
				}
			}
			return true, nil
		},
		"zfill": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("zfill", args, kw, "width")
			if err != nil {
				return nil, err
			}
			w, err := asInt("zfill", a[0])
			if err != nil {
				return nil, err
			}
			s := recv.(string)
			sign := ""
			if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
				sign, s = s[:1], s[1:]
			}
			if pad := int(w) - len(sign) - len(s); pad > 0 {
				s = strings.Repeat("0", pad) + s
			}
			return sign + s, nil
		},
		"ljust": strJustify("ljust", func(s, fill string) string { return s + fill }),
		"rjust": strJustify("rjust", func(s, fill string) string { return fill + s }),
	}

	listMethods = map[string]methodFn{
		"append": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("append", args, kw, "object")
			if err != nil {
				return nil, err
			}
			l := recv.(*host.ListObject)
			l.Elts = append(l.Elts, a[0])
			return nil, nil
		},
		"extend": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("extend", args, kw, "iterable")
			if err != nil {
				return nil, err
			}
			items, err := c.iterate(a[0])
			if err != nil {
				return nil, err
			}
			l := recv.(*host.ListObject)
			l.Elts = append(l.Elts, items...)
			return nil, nil
		},
		"insert": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("insert", args, kw, "index", "object")
			if err != nil {
				return nil, err
			}
			i, err := asInt("insert", a[0])
			if err != nil {
				return nil, err
			}
			l := recv.(*host.ListObject)
			n := int64(len(l.Elts))
			if i < 0 {
				i += n
			}
			i = max(0, min(i, n))
			l.Elts = append(l.Elts[:i], append([]any{a[1]}, l.Elts[i:]...)...)
			return nil, nil
		},
		"pop": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("pop", args, kw, "index?")
			if err != nil {
				return nil, err
			}
			l := recv.(*host.ListObject)
			if len(l.Elts) == 0 {
				return nil, host.Raise("IndexError", "pop from empty list")
			}
			i := int64(len(l.Elts) - 1)
			if a[0] != nil {
				if i, err = asInt("pop", a[0]); err != nil {
					return nil, err
				}
				if i < 0 {
					i += int64(len(l.Elts))
				}
				if i < 0 || i >= int64(len(l.Elts)) {
					return nil, host.Raise("IndexError", "pop index out of range")
				}
			}
			v := l.Elts[i]
			l.Elts = append(l.Elts[:i], l.Elts[i+1:]...)
			return v, nil
		},
		"remove": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("remove", args, kw, "value")
			if err != nil {
				return nil, err
			}
			l := recv.(*host.ListObject)
			for i, e := range l.Elts {
				if c.equal(e, a[0]) {
					l.Elts = append(l.Elts[:i], l.Elts[i+1:]...)
					return nil, nil
				}
			}
			return nil, host.Raise("ValueError", "list.remove(x): x not in list")
		},
		"index": seqIndex,
		"count": seqCount,
		"clear": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			recv.(*host.ListObject).Elts = nil
			return nil, nil
		},
		"copy": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			return host.NewList(append([]any(nil), recv.(*host.ListObject).Elts...)...), nil
		},
		"reverse": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			l := recv.(*host.ListObject)
			for i, j := 0, len(l.Elts)-1; i < j; i, j = i+1, j-1 {
				l.Elts[i], l.Elts[j] = l.Elts[j], l.Elts[i]
			}
			return nil, nil
		},
		"sort": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			l := recv.(*host.ListObject)
			sorted, err := builtinSorted(&CallCtx{C: c}, append([]any{l}, args...), kw)
			if err != nil {
				return nil, err
			}
			l.Elts = sorted.(*host.ListObject).Elts
			return nil, nil
		},
	}

	tupleMethods = map[string]methodFn{
		"index": seqIndex,
		"count": seqCount,
	}

	dictMethods = map[string]methodFn{
		"get": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("get", args, kw, "key", "default?")
			if err != nil {
				return nil, err
			}
			v, ok, err := recv.(*host.DictObject).Get(a[0])
			if err != nil || !ok {
				return a[1], err
			}
			return v, nil
		},
		"keys": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			return host.NewList(recv.(*host.DictObject).Keys()...), nil
		},
		"values": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			return host.NewList(recv.(*host.DictObject).Values()...), nil
		},
		"items": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			flat := recv.(*host.DictObject).Items()
			items := make([]any, 0, len(flat)/2)
			for i := 0; i+1 < len(flat); i += 2 {
				items = append(items, host.NewTuple(flat[i], flat[i+1]))
			}
			return host.NewList(items...), nil
		},
		"pop": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("pop", args, kw, "key", "default?")
			if err != nil {
				return nil, err
			}
			d := recv.(*host.DictObject)
			v, ok, err := d.Get(a[0])
			if err != nil {
				return nil, err
			}
			if !ok {
				if len(args) > 1 {
					return a[1], nil
				}
				return nil, host.Raise("KeyError", "%s", host.Repr(a[0]))
			}
			_, err = d.Delete(a[0])
			return v, err
		},
		"setdefault": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("setdefault", args, kw, "key", "default?")
			if err != nil {
				return nil, err
			}
			d := recv.(*host.DictObject)
			v, ok, err := d.Get(a[0])
			if err != nil || ok {
				return v, err
			}
			return a[1], d.Set(a[0], a[1])
		},
		"update": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			src, err := builtinDict(&CallCtx{C: c}, args, kw)
			if err != nil {
				return nil, err
			}
			d := recv.(*host.DictObject)
			flat := src.(*host.DictObject).Items()
			for i := 0; i+1 < len(flat); i += 2 {
				if err := d.Set(flat[i], flat[i+1]); err != nil {
					return nil, err
				}
			}
			return nil, nil
		},
		"copy": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			return recv.(*host.DictObject).Clone(), nil
		},
		"clear": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			d := recv.(*host.DictObject)
			for _, k := range d.Keys() {
				if _, err := d.Delete(k); err != nil {
					return nil, err
				}
			}
			return nil, nil
		},
	}

	setMethods = map[string]methodFn{
		"add": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("add", args, kw, "elem")
			if err != nil {
				return nil, err
			}
			return nil, recv.(*host.SetObject).Add(a[0])
		},
		"remove": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("remove", args, kw, "elem")
			if err != nil {
				return nil, err
			}
			ok, err := recv.(*host.SetObject).Remove(a[0])
			if err == nil && !ok {
				err = host.Raise("KeyError", "%s", host.Repr(a[0]))
			}
			return nil, err
		},
		"discard": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			a, err := unpackArgs("discard", args, kw, "elem")
			if err != nil {
				return nil, err
			}
			_, err = recv.(*host.SetObject).Remove(a[0])
			return nil, err
		},
		"update": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			s := recv.(*host.SetObject)
			for _, a := range args {
				items, err := c.iterate(a)
				if err != nil {
					return nil, err
				}
				for _, it := range items {
					if err := s.Add(it); err != nil {
						return nil, err
					}
				}
			}
			return nil, nil
		},
		"union":        setAlgebra("|"),
		"intersection": setAlgebra("&"),
		"difference":   setAlgebra("-"),
		"copy": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			return builtinSet(&CallCtx{C: c}, []any{recv}, kw)
		},
	}

	intMethods = map[string]methodFn{
		"bit_length": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			v := recv.(int64)
			if v < 0 {
				v = -v
			}
			return int64(emitter.BitLength(v)), nil
		},
	}

	floatMethods = map[string]methodFn{
		"is_integer": func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
			f := recv.(float64)
			return f == float64(int64(f)), nil
		},
	}
}

func strMap(fn func(string) string) methodFn {
	return func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
		return fn(recv.(string)), nil
	}
}

func strTrim(name string, cut func(string, string) string, space func(string) string) methodFn {
	return func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs(name, args, kw, "chars?")
		if err != nil {
			return nil, err
		}
		if a[0] == nil {
			return space(recv.(string)), nil
		}
		chars, err := asString(name, a[0])
		if err != nil {
			return nil, err
		}
		return cut(recv.(string), chars), nil
	}
}

func strPred(name string, fn func(string, string) bool) methodFn {
	return func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs(name, args, kw, "prefix")
		if err != nil {
			return nil, err
		}
		var alts []any
		if t, ok := a[0].(*host.TupleObject); ok {
			alts = t.Elts
		} else {
			alts = []any{a[0]}
		}
		for _, alt := range alts {
			p, err := asString(name, alt)
			if err != nil {
				return nil, err
			}
			if fn(recv.(string), p) {
				return true, nil
			}
		}
		return false, nil
	}
}

func strJustify(name string, join func(s, fill string) string) methodFn {
	return func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
		a, err := unpackArgs(name, args, kw, "width", "fillchar?")
		if err != nil {
			return nil, err
		}
		w, err := asInt(name, a[0])
		if err != nil {
			return nil, err
		}
		fill := " "
		if a[1] != nil {
			if fill, err = asString(name, a[1]); err != nil {
				return nil, err
			}
		}
		s := recv.(string)
		if pad := int(w) - len([]rune(s)); pad > 0 {
			return join(s, strings.Repeat(fill, pad)), nil
		}
		return s, nil
	}
}

func strJoin(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("join", args, kw, "iterable")
	if err != nil {
		return nil, err
	}
	items, err := c.iterate(a[0])
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(items))
	for i, it := range items {
		s, ok := it.(string)
		if !ok {
			return nil, host.Raise("TypeError", "sequence item %d: expected str instance, %s found", i, host.TypeName(it))
		}
		parts[i] = s
	}
	return strings.Join(parts, recv.(string)), nil
}

func strSplit(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("split", args, kw, "sep?", "maxsplit?")
	if err != nil {
		return nil, err
	}
	n := -1
	if a[1] != nil {
		m, err := asInt("split", a[1])
		if err != nil {
			return nil, err
		}
		if m >= 0 {
			n = int(m) + 1
		}
	}
	s := recv.(string)
	var parts []string
	if a[0] == nil {
		parts = strings.Fields(s)
		if n > 0 && len(parts) > n {
			head := parts[:n-1]
			rest := s
			for _, h := range head {
				rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
				rest = strings.TrimPrefix(rest, h)
			}
			parts = append(head, strings.TrimLeftFunc(rest, unicode.IsSpace))
		}
	} else {
		sep, err := asString("split", a[0])
		if err != nil {
			return nil, err
		}
		if sep == "" {
			return nil, host.Raise("ValueError", "empty separator")
		}
		parts = strings.SplitN(s, sep, n)
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return host.NewList(out...), nil
}

func strReplace(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("replace", args, kw, "old", "new", "count?")
	if err != nil {
		return nil, err
	}
	o, err := asString("replace", a[0])
	if err != nil {
		return nil, err
	}
	n, err := asString("replace", a[1])
	if err != nil {
		return nil, err
	}
	count := int64(-1)
	if a[2] != nil {
		if count, err = asInt("replace", a[2]); err != nil {
			return nil, err
		}
	}
	return strings.Replace(recv.(string), o, n, int(count)), nil
}

func strFind(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("find", args, kw, "sub")
	if err != nil {
		return nil, err
	}
	sub, err := asString("find", a[0])
	if err != nil {
		return nil, err
	}
	return int64(strings.Index(recv.(string), sub)), nil
}

func strCount(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("count", args, kw, "sub")
	if err != nil {
		return nil, err
	}
	sub, err := asString("count", a[0])
	if err != nil {
		return nil, err
	}
	return int64(strings.Count(recv.(string), sub)), nil
}

// strFormat implements str.format with automatic and explicit field
// numbering, keyword fields, conversions and format specs.
func strFormat(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
	s := recv.(string)
	var sb strings.Builder
	auto := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '}' {
			if i+1 < len(s) && s[i+1] == '}' {
				i++
			}
			sb.WriteByte('}')
			continue
		}
		if ch != '{' {
			sb.WriteByte(ch)
			continue
		}
		if i+1 < len(s) && s[i+1] == '{' {
			sb.WriteByte('{')
			i++
			continue
		}
		end := strings.IndexByte(s[i:], '}')
		if end < 0 {
			return nil, host.Raise("ValueError", "Single '{' encountered in format string")
		}
		field := s[i+1 : i+end]
		i += end
		spec := ""
		if k := strings.IndexByte(field, ':'); k >= 0 {
			field, spec = field[:k], field[k+1:]
		}
		var conv byte
		if k := strings.IndexByte(field, '!'); k >= 0 && k+1 < len(field) {
			field, conv = field[:k], field[k+1]
		}
		var v any
		switch {
		case field == "":
			if auto >= len(args) {
				return nil, host.Raise("IndexError", "Replacement index %d out of range", auto)
			}
			v = args[auto]
			auto++
		case field[0] >= '0' && field[0] <= '9':
			idx := 0
			for _, d := range field {
				if d < '0' || d > '9' {
					return nil, host.Raise("ValueError", "invalid format field: %s", field)
				}
				idx = idx*10 + int(d-'0')
			}
			if idx >= len(args) {
				return nil, host.Raise("IndexError", "Replacement index %d out of range", idx)
			}
			v = args[idx]
		default:
			name, attr, _ := strings.Cut(field, ".")
			var ok bool
			if v, ok = kw.Get(name); !ok {
				return nil, host.Raise("KeyError", "'%s'", name)
			}
			if attr != "" {
				var err error
				if v, err = c.getAttr(v, attr); err != nil {
					return nil, err
				}
			}
		}
		text, err := c.formatValue(v, conv, spec)
		if err != nil {
			return nil, err
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func seqItems(recv any) []any {
	switch x := recv.(type) {
	case *host.ListObject:
		return x.Elts
	case *host.TupleObject:
		return x.Elts
	}
	return nil
}

func seqIndex(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("index", args, kw, "value")
	if err != nil {
		return nil, err
	}
	for i, e := range seqItems(recv) {
		if c.equal(e, a[0]) {
			return int64(i), nil
		}
	}
	return nil, host.Raise("ValueError", "%s is not in %s", host.Repr(a[0]), host.TypeName(recv))
}

func seqCount(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
	a, err := unpackArgs("count", args, kw, "value")
	if err != nil {
		return nil, err
	}
	n := int64(0)
	for _, e := range seqItems(recv) {
		if c.equal(e, a[0]) {
			n++
		}
	}
	return n, nil
}

func setAlgebra(op string) methodFn {
	return func(c *Compiler, recv any, args []any, kw *host.Namespace) (any, error) {
		var acc any = recv
		for _, a := range args {
			other, ok := a.(*host.SetObject)
			if !ok {
				s, err := builtinSet(&CallCtx{C: c}, []any{a}, kw)
				if err != nil {
					return nil, err
				}
				other = s.(*host.SetObject)
			}
			var err error
			if acc, err = host.BinaryOp(op, acc, other); err != nil {
				return nil, err
			}
		}
		if acc == recv {
			return builtinSet(&CallCtx{C: c}, []any{recv}, kw)
		}
		return acc, nil
	}
}
