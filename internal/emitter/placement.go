package emitter

// Placement is an append-only block of output lines and nested placements.
// Placements let code be written out of order: a module header reserves a
// placement for its declarations before the process bodies that produce
// them have been generated.
type Placement struct {
	code   []any
	indent int
}

func newPlacement(indent int) *Placement {
	return &Placement{indent: indent}
}

// Indent is the indentation level lines emitted into the placement get.
func (p *Placement) Indent() int { return p.indent }

func (p *Placement) appendLine(line string) { p.code = append(p.code, line) }

func (p *Placement) appendPlacement(c *Placement) { p.code = append(p.code, c) }

// Len counts the lines held by the placement, recursively.
func (p *Placement) Len() int {
	n := 0
	for _, c := range p.code {
		if sub, ok := c.(*Placement); ok {
			n += sub.Len()
		} else {
			n++
		}
	}
	return n
}

// Lines flattens the placement tree depth first.
func (p *Placement) Lines() []string {
	return p.expand(nil)
}

func (p *Placement) expand(lines []string) []string {
	for _, c := range p.code {
		switch x := c.(type) {
		case *Placement:
			lines = x.expand(lines)
		case string:
			lines = append(lines, x)
		}
	}
	return lines
}
