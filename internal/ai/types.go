package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"journez/backend/internal/parse"
)

// SystemInstruction frames every generation request.
const SystemInstruction = "You are a local travel agent. You list specific locations. Do not include general areas or the location itself in the list of locations. Do not include locations that do not have physical addresses, websites, or hours of operations listed"

var (
	// ErrDisabled is returned when no generator is configured.
	ErrDisabled = errors.New("ai generator disabled")
	// ErrGeneration wraps every failure to obtain a model answer.
	ErrGeneration = errors.New("generation failed")
)

// Generator produces a free-form recommendation answer for a prompt.
type Generator interface {
	Enabled() bool
	Name() string
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// Prompt is a provider-neutral generation request: a system instruction and
// one question per requested category.
type Prompt struct {
	System    string
	Questions []string
}

// categoryQuestions holds the question template for each category.
var categoryQuestions = map[parse.Category]string{
	parse.CategoryDo:   "Where are %d places to do activities in %s?",
	parse.CategoryEat:  "Where are %d places to eat in %s?",
	parse.CategoryStay: "Where are %d places to stay in %s?",
	parse.CategoryShop: "Where are %d places to shop in %s?",
}

// BuildPrompt asks for count places per category in location. Categories
// without a question are skipped.
func BuildPrompt(categories []parse.Category, location string, count int) Prompt {
	prompt := Prompt{System: SystemInstruction}
	location = strings.TrimSpace(location)
	for _, category := range categories {
		template, ok := categoryQuestions[category]
		if !ok {
			continue
		}
		prompt.Questions = append(prompt.Questions, fmt.Sprintf(template, count, location))
	}
	return prompt
}

func generationError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrGeneration, provider, err)
}
