package ai

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

type generatorChain struct {
	primary  Generator
	fallback Generator
}

// WithFallback returns a generator that first tries the primary implementation
// and consults the fallback once when the primary is unavailable or fails.
func WithFallback(primary, fallback Generator) Generator {
	if isNil(primary) {
		return fallback
	}
	if isNil(fallback) {
		return primary
	}
	return &generatorChain{primary: primary, fallback: fallback}
}

func isNil(g Generator) bool {
	switch v := g.(type) {
	case nil:
		return true
	case *GeminiClient:
		return v == nil
	case *OpenAIClient:
		return v == nil
	}
	return false
}

func (c *generatorChain) Enabled() bool {
	if c == nil {
		return false
	}
	return c.primary.Enabled() || c.fallback.Enabled()
}

func (c *generatorChain) Name() string {
	return c.primary.Name() + "+" + c.fallback.Name()
}

func (c *generatorChain) Generate(ctx context.Context, prompt Prompt) (string, error) {
	if c == nil {
		return "", ErrDisabled
	}
	var primaryErr error
	if c.primary.Enabled() {
		text, err := c.primary.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		primaryErr = err
		logrus.WithError(err).WithField("provider", c.primary.Name()).Warn("primary generator failed; trying fallback")
	}
	if c.fallback.Enabled() {
		text, err := c.fallback.Generate(ctx, prompt)
		if err != nil && primaryErr != nil {
			return "", errors.Join(primaryErr, err)
		}
		return text, err
	}
	if primaryErr != nil {
		return "", primaryErr
	}
	return "", ErrDisabled
}
