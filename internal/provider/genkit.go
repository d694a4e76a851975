package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/formpilot/formpilot/internal/log"
	"github.com/formpilot/formpilot/internal/prompt"
)

// GenkitProvider is a Generator backed by a Genkit-registered model.
// Both the Gemini and OpenAI backends go through this type; only the
// model name differs.
type GenkitProvider struct {
	g       *genkit.Genkit
	name    string
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  log.Logger
}

// NewGenkitProvider creates a provider for the named model. rps
// bounds outgoing calls; a burst of one keeps request pacing even.
func NewGenkitProvider(g *genkit.Genkit, name, model string, timeout time.Duration, rps float64, logger log.Logger) *GenkitProvider {
	if logger == nil {
		logger = log.NewNop()
	}
	return &GenkitProvider{
		g:       g,
		name:    name,
		model:   model,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

// Name returns the provider's registry name.
func (p *GenkitProvider) Name() string { return p.name }

// Generate runs one generation call. The call is rate limited and
// bounded by the provider timeout; failures come back classified as
// *Error.
func (p *GenkitProvider) Generate(ctx context.Context, pr prompt.Prompt) (Generation, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return Generation{}, wrapError(p.name, fmt.Errorf("rate limiter: %w", err))
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := genkit.Generate(callCtx, p.g,
		ai.WithModelName(p.model),
		ai.WithSystem(pr.System),
		ai.WithPrompt(pr.User),
		ai.WithConfig(map[string]any{
			"temperature":     pr.Temperature,
			"topP":            pr.TopP,
			"maxOutputTokens": pr.MaxTokens,
		}),
	)
	if err != nil {
		perr := wrapError(p.name, err)
		p.logger.Warn("generation failed",
			"provider", p.name, "model", p.model, "kind", perr.Kind,
			"elapsed", time.Since(start), "error", err)
		return Generation{}, perr
	}

	text := resp.Text()
	if text == "" {
		return Generation{}, wrapError(p.name, fmt.Errorf("model returned an empty response"))
	}

	gen := Generation{Text: text}
	if resp.Usage != nil {
		gen.InputTokens = resp.Usage.InputTokens
		gen.OutputTokens = resp.Usage.OutputTokens
	}

	p.logger.Debug("generation succeeded",
		"provider", p.name, "model", p.model, "elapsed", time.Since(start),
		"response_length", len(text),
		"input_tokens", gen.InputTokens, "output_tokens", gen.OutputTokens)
	return gen, nil
}
