// Package codec formats conversations into model-specific chat templates and
// parses raw completions back into structured turns.
//
// A single engine serves every model family. Everything that differs between
// families (role markers, catalog text, reasoning dialects, call-block
// grammar) is data held in a Family record; see families.go.
package codec

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/chat-template-codecs/internal/domain"
)

const tracerName = "github.com/tjfontaine/chat-template-codecs/internal/codec"

// Codec is a Family bound to a reasoning effort. It is immutable after
// construction and safe for concurrent use.
type Codec struct {
	family *Family
	effort domain.Effort
	tracer trace.Tracer
}

// Option configures a Codec.
type Option func(*Codec)

// WithEffort sets the reasoning effort. An empty effort means medium.
func WithEffort(effort domain.Effort) Option {
	return func(c *Codec) {
		c.effort = effort
	}
}

// WithTracer overrides the tracer used for codec spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Codec) {
		c.tracer = tracer
	}
}

// New creates a codec for the given family.
func New(family *Family, opts ...Option) *Codec {
	c := &Codec{family: family}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// Name returns the family name.
func (c *Codec) Name() string {
	return c.family.Name
}

// Family returns the family this codec renders.
func (c *Codec) Family() *Family {
	return c.family
}

// Effort returns the configured reasoning effort, defaulting to medium.
func (c *Codec) Effort() domain.Effort {
	if c.effort == "" {
		return domain.EffortMedium
	}
	return c.effort
}
