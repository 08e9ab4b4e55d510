package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/robert-at-pretension-io/hdlgen/internal/facts"
	"github.com/robert-at-pretension-io/hdlgen/internal/validator"
)

// Session keeps a fact snapshot and re-evaluates the rules as deltas
// arrive. It is not safe for concurrent use.
type Session struct {
	engine         *Engine
	factsValidator *validator.FactsValidator

	tables facts.Tables
	last   *Result
}

// NewSession wraps engine. Every snapshot and delta is validated against the
// facts schema before evaluation.
func NewSession(engine *Engine) (*Session, error) {
	fv, err := validator.NewFactsValidator()
	if err != nil {
		return nil, fmt.Errorf("init facts validator: %w", err)
	}
	return &Session{engine: engine, factsValidator: fv}, nil
}

// Init loads a full snapshot and returns the current violations.
func (s *Session) Init(ctx context.Context, tables facts.Tables) (*Result, error) {
	tables = facts.BuildTables(tables)
	if err := s.factsValidator.Validate(tables); err != nil {
		return nil, err
	}
	res, err := s.engine.Evaluate(ctx, tables)
	if err != nil {
		return nil, err
	}
	s.tables, s.last = tables, res
	return res, nil
}

// Delta applies an incremental update and returns the updated violations.
// An empty delta returns the previous result.
func (s *Session) Delta(ctx context.Context, delta facts.Delta) (*Result, error) {
	if s.last == nil {
		return nil, errors.New("policy session: delta before init")
	}
	if delta.Empty() {
		return s.last, nil
	}
	if err := s.factsValidator.Validate(delta.Added); err != nil {
		return nil, fmt.Errorf("delta: %w", err)
	}
	tables := facts.ApplyDelta(s.tables, delta)
	res, err := s.engine.Evaluate(ctx, tables)
	if err != nil {
		return nil, err
	}
	s.tables, s.last = tables, res
	return res, nil
}

// Snapshot returns the facts the last result was computed from.
func (s *Session) Snapshot() facts.Tables { return s.tables }
