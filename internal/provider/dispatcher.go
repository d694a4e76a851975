package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/formpilot/formpilot/internal/log"
	"github.com/formpilot/formpilot/internal/prompt"
	"github.com/formpilot/formpilot/internal/task"
)

// dispatchState tracks progress through the provider chain. States
// advance monotonically; there is no retry of an earlier state within
// one dispatch.
type dispatchState int

const (
	stateTrying dispatchState = iota
	stateFallback
	stateDone
)

// Outcome is the result of one dispatch.
type Outcome struct {
	// Provider names the backend that served the request
	// (NameFallback for synthetic output).
	Provider string

	// Text is the raw model text. Empty when Synthetic.
	Text string

	// Output is the synthesized payload. Set only when Synthetic.
	Output map[string]any

	// Synthetic marks outputs produced without a model call.
	Synthetic bool

	// InputTokens and OutputTokens are the token counts the serving
	// backend reported. Zero for synthetic output.
	InputTokens  int
	OutputTokens int

	// Warnings describes degradations encountered on the way, one
	// entry per failed backend.
	Warnings []string
}

// Dispatcher walks the provider chain until a backend produces text,
// then terminates in the synthetic fallback if none did.
// Safe for concurrent use by multiple goroutines.
type Dispatcher struct {
	registry *Registry
	usage    *UsageRecorder
	logger   log.Logger
}

// NewDispatcher creates a Dispatcher. usage may be nil to disable
// accounting.
func NewDispatcher(registry *Registry, usage *UsageRecorder, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		usage:    usage,
		logger:   logger,
	}
}

// Dispatch runs the chain for one request. Every backend failure
// advances to the next backend; exhausting the chain produces a
// deterministic synthetic payload from the task descriptor, so the
// only error Dispatch can return is the caller's own context ending.
func (d *Dispatcher) Dispatch(ctx context.Context, desc *task.Descriptor, pr prompt.Prompt, input map[string]any) (Outcome, error) {
	var warnings []string

	state := stateTrying
	chain := d.registry.Chain()
	next := 0

	for state != stateDone {
		// A dead caller context stops the chain; nobody is waiting
		// for the fallback.
		if err := ctx.Err(); err != nil {
			return Outcome{}, fmt.Errorf("dispatch aborted: %w", err)
		}

		switch state {
		case stateTrying:
			if next >= len(chain) {
				state = stateFallback
				continue
			}
			gen := chain[next]
			next++

			res, err := gen.Generate(ctx, pr)
			if err != nil {
				warnings = append(warnings, degradationWarning(gen.Name(), err))
				d.logger.Warn("backend failed, advancing chain",
					"task", desc.Kind, "provider", gen.Name(), "error", err)
				continue
			}

			d.usage.record(desc.Kind, gen.Name(), false, res.InputTokens, res.OutputTokens)
			return Outcome{
				Provider:     gen.Name(),
				Text:         res.Text,
				InputTokens:  res.InputTokens,
				OutputTokens: res.OutputTokens,
				Warnings:     warnings,
			}, nil

		case stateFallback:
			output := desc.Synthesize(input)
			warnings = append(warnings,
				fmt.Sprintf("no provider available; returning a synthetic %s draft", desc.Kind))
			d.usage.record(desc.Kind, NameFallback, true, 0, 0)
			d.logger.Info("dispatch fell back to synthetic output", "task", desc.Kind)
			return Outcome{
				Provider:  NameFallback,
				Output:    output,
				Synthetic: true,
				Warnings:  warnings,
			}, nil
		}
	}

	// Unreachable: both states return.
	return Outcome{}, fmt.Errorf("dispatch reached an invalid state")
}

// degradationWarning renders a backend failure for the response
// envelope without leaking raw backend error text to end users.
func degradationWarning(name string, err error) string {
	var perr *Error
	if errors.As(err, &perr) {
		return fmt.Sprintf("provider %s unavailable (%s)", name, perr.Kind)
	}
	return fmt.Sprintf("provider %s unavailable", name)
}
