package remedy

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"plantcare/internal/domain"
	"plantcare/internal/upstream"
)

// Generator produces text for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const promptTemplate = "Explain the remedies for %s in short with bullet points with clear understanding short definition, give at least 6-7 points."

// BuildPrompt embeds a disease label in the remedy instruction. Input that
// is already an instruction is passed through.
func BuildPrompt(label string) string {
	label = strings.TrimSpace(label)
	if strings.HasPrefix(strings.ToLower(label), "explain ") {
		return label
	}
	return fmt.Sprintf(promptTemplate, label)
}

type Retriever struct {
	gen    Generator
	policy upstream.Policy
	log    *zap.Logger
}

func NewRetriever(gen Generator, policy upstream.Policy, log *zap.Logger) (*Retriever, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	return &Retriever{gen: gen, policy: policy, log: log}, nil
}

// Retrieve returns the raw remedy text for label.
func (r *Retriever) Retrieve(ctx context.Context, label string) (string, error) {
	if strings.TrimSpace(label) == "" {
		return "", domain.NewValidationError("Context is required")
	}

	prompt := BuildPrompt(label)

	var text string
	err := upstream.Do(ctx, r.policy, r.log, "generator", func(ctx context.Context) error {
		out, err := r.gen.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		return "", domain.NewUpstreamError("An error occurred while processing the request", err)
	}

	r.log.Info("Remedy generated",
		zap.String("label", label),
		zap.Int("length", len(text)))

	return text, nil
}
