package entity

import (
	"fmt"
	"strings"
)

type Trigger string

const (
	Level   Trigger = "LEVEL"
	PosEdge Trigger = "POSEDGE"
	NegEdge Trigger = "NEGEDGE"
)

// Sens is one entry of a process sensitivity list.
type Sens struct {
	Name    string
	Trigger Trigger
}

// ParseSensitivity reads "+CLK, -RST, A" style lists. A leading '+' marks a
// rising edge, '-' a falling edge, no prefix a level trigger. Dotted
// interface references ("IFC.X") map to their flattened port name.
func ParseSensitivity(s string) []Sens {
	var sens []Sens
	for _, part := range strings.Split(s, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		trig := Level
		switch name[0] {
		case '+':
			trig, name = PosEdge, name[1:]
		case '-':
			trig, name = NegEdge, name[1:]
		}
		sens = append(sens, Sens{Name: strings.ReplaceAll(strings.TrimSpace(name), ".", "_"), Trigger: trig})
	}
	return sens
}

// CheckSensitivity makes sure every sensitivity source is a known port.
func CheckSensitivity(sens []Sens, known func(string) bool) error {
	for _, s := range sens {
		if !known(s.Name) {
			return &BindingError{Msg: fmt.Sprintf("Sensitivity source is not a port: %s", s.Name)}
		}
	}
	return nil
}

// Edges returns the edge triggered entries.
func Edges(sens []Sens) []Sens {
	var edges []Sens
	for _, s := range sens {
		if s.Trigger != Level {
			edges = append(edges, s)
		}
	}
	return edges
}
