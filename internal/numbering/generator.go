// Package numbering renders human-readable ticket numbers from a monotonic counter.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sequencer hands out strictly increasing values. Implementations must be safe for
// concurrent callers and must never return the same value twice.
type Sequencer interface {
	Next(ctx context.Context) (int64, error)
}

// Generator formats sequencer values as PREFIX-YEAR-SEQUENCE.
// The counter never resets; only the year segment follows the calendar.
type Generator struct {
	seq    Sequencer
	prefix string
	width  int
	now    func() time.Time
}

// Option customizes a Generator.
type Option func(*Generator)

// WithPrefix overrides the default TCKT prefix.
func WithPrefix(prefix string) Option {
	return func(g *Generator) {
		if prefix != "" {
			g.prefix = prefix
		}
	}
}

// WithWidth sets the zero padding of the sequence segment.
func WithWidth(width int) Option {
	return func(g *Generator) {
		if width > 0 {
			g.width = width
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGenerator builds a Generator around seq.
func NewGenerator(seq Sequencer, opts ...Option) *Generator {
	g := &Generator{
		seq:    seq,
		prefix: "TCKT",
		width:  6,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next allocates the next ticket number.
func (g *Generator) Next(ctx context.Context) (string, error) {
	if g == nil || g.seq == nil {
		return "", errors.New("ticket number sequencer not configured")
	}
	value, err := g.seq.Next(ctx)
	if err != nil {
		return "", fmt.Errorf("allocate ticket number: %w", err)
	}
	return Format(g.prefix, g.now().Year(), value, g.width), nil
}

// Format renders a ticket number.
func Format(prefix string, year int, value int64, width int) string {
	return fmt.Sprintf("%s-%d-%0*d", prefix, year, width, value)
}
