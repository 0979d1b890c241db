package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"journez/backend/internal/ai"
	"journez/backend/internal/parse"
	"journez/backend/internal/places"
	"journez/backend/internal/util"
)

// Config tunes a Pipeline.
type Config struct {
	GenerationTimeout time.Duration
}

// Hooks observe a running pipeline. Every field is optional.
type Hooks struct {
	Started   func(requestID string)
	Generated func(requestID string, items int)
	Progress  ProgressFunc
}

// Result is the grouped outcome of one pipeline run.
type Result struct {
	RequestID  string                    `json:"request_id"`
	Location   string                    `json:"location"`
	Categories []string                  `json:"categories"`
	Results    []CategoryRecommendations `json:"results"`
}

// Pipeline turns a recommendation request into grouped, enriched results.
// It keeps no state between runs.
type Pipeline struct {
	generator         ai.Generator
	resolver          *Resolver
	generationTimeout time.Duration
}

// NewPipeline wires a generator and resolver. Either may be nil; the missing
// half surfaces as ai.ErrDisabled or places.ErrMissingCredential on use.
func NewPipeline(generator ai.Generator, resolver *Resolver, cfg Config) *Pipeline {
	timeout := cfg.GenerationTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Pipeline{
		generator:         generator,
		resolver:          resolver,
		generationTimeout: timeout,
	}
}

// GeneratorEnabled reports whether Run can reach a model.
func (p *Pipeline) GeneratorEnabled() bool {
	return p != nil && p.generator != nil && p.generator.Enabled()
}

// DirectoryEnabled reports whether lookups can be attempted.
func (p *Pipeline) DirectoryEnabled() bool {
	return p != nil && p.resolver.Ready()
}

// Run asks the model for recommendations and enriches its answer.
func (p *Pipeline) Run(ctx context.Context, req Request, hooks Hooks) (Result, error) {
	query, err := req.Validate()
	if err != nil {
		return Result{}, err
	}
	if !p.GeneratorEnabled() {
		return Result{}, ai.ErrDisabled
	}
	if !p.DirectoryEnabled() {
		return Result{}, places.ErrMissingCredential
	}

	requestID := uuid.NewString()
	if hooks.Started != nil {
		hooks.Started(requestID)
	}

	raw, err := p.generate(ctx, requestID, query)
	if err != nil {
		pipelineRunsTotal.WithLabelValues("generated", "generation_error").Inc()
		return Result{}, err
	}
	return p.process(ctx, requestID, query, raw, hooks, "generated")
}

// FromText enriches an already generated model answer.
func (p *Pipeline) FromText(ctx context.Context, req Request, raw string, hooks Hooks) (Result, error) {
	query, err := req.Validate()
	if err != nil {
		return Result{}, err
	}
	if !p.DirectoryEnabled() {
		return Result{}, places.ErrMissingCredential
	}

	requestID := uuid.NewString()
	if hooks.Started != nil {
		hooks.Started(requestID)
	}
	return p.process(ctx, requestID, query, raw, hooks, "text")
}

func (p *Pipeline) generate(ctx context.Context, requestID string, query Query) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, p.generationTimeout)
	defer cancel()

	timer := util.StartTimer()
	raw, err := p.generator.Generate(genCtx, ai.BuildPrompt(query.Categories, query.Location, query.Count))

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	generationDuration.WithLabelValues(p.generator.Name(), outcome).Observe(timer.Seconds())

	fields := logrus.Fields{
		"request_id": requestID,
		"provider":   p.generator.Name(),
		"location":   query.Location,
		"categories": query.Labels(),
		"elapsed_ms": timer.ElapsedMs(),
	}
	if err != nil {
		logrus.WithFields(fields).WithError(err).Error("generation failed")
		if errors.Is(err, ai.ErrGeneration) || errors.Is(err, ai.ErrDisabled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ai.ErrGeneration, err)
	}
	fields["chars"] = len(raw)
	logrus.WithFields(fields).Info("model answer received")
	return raw, nil
}

func (p *Pipeline) process(ctx context.Context, requestID string, query Query, raw string, hooks Hooks, source string) (Result, error) {
	sections := parse.Parse(raw, query.parseOptions())

	items := 0
	for _, section := range sections {
		items += len(section.Items)
	}
	extractedItems.Observe(float64(items))
	if hooks.Generated != nil {
		hooks.Generated(requestID, items)
	}

	timer := util.StartTimer()
	details, err := p.resolver.Resolve(ctx, query.Location, sections, hooks.Progress)
	if err != nil {
		pipelineRunsTotal.WithLabelValues(source, "resolve_error").Inc()
		return Result{}, fmt.Errorf("resolve places: %w", err)
	}

	groups := Assemble(sections, details)
	pipelineRunsTotal.WithLabelValues(source, "ok").Inc()
	logrus.WithFields(logrus.Fields{
		"request_id": requestID,
		"source":     source,
		"groups":     len(groups),
		"items":      items,
		"elapsed_ms": timer.ElapsedMs(),
	}).Info("recommendations assembled")

	return Result{
		RequestID:  requestID,
		Location:   query.Location,
		Categories: query.Labels(),
		Results:    groups,
	}, nil
}
