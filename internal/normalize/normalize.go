// Package normalize turns raw model text into a schema-valid output
// payload.
//
// Models wrap JSON in prose, code fences, or half-finished sentences;
// normalization never trusts the raw text. The pipeline is:
//
//  1. Extract the largest balanced JSON object from the text.
//  2. Validate it against the task's output shape.
//  3. On validation failure, repair: keep the valid fields and fill
//     missing required ones from the task's synthesizer.
//  4. With no parseable JSON at all, fall back to wrapping the raw
//     text in a synthesized payload at low confidence.
//
// Every path yields a payload that validates against the output
// shape; only the confidence and review flags differ.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/formpilot/formpilot/internal/log"
	"github.com/formpilot/formpilot/internal/task"
)

// Confidence levels by normalization path.
const (
	// ConfidenceClean is assigned when the model output validated
	// as-is.
	ConfidenceClean = 0.9

	// ConfidenceRepaired is assigned when required fields had to be
	// synthesized.
	ConfidenceRepaired = 0.5

	// ConfidenceTextual is assigned when no JSON could be extracted
	// at all.
	ConfidenceTextual = 0.3
)

// Result is a normalized output payload with its quality signals.
type Result struct {
	Output      map[string]any
	Confidence  float64
	NeedsReview bool
	Warnings    []string
}

// Normalizer validates and repairs model output against task shapes.
type Normalizer struct {
	logger log.Logger
}

// New creates a Normalizer.
func New(logger log.Logger) *Normalizer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Normalizer{logger: logger}
}

// Normalize converts raw model text into a payload valid for the
// task's output shape. input is the validated request input, used to
// synthesize replacement values during repair.
func (n *Normalizer) Normalize(desc *task.Descriptor, raw string, input map[string]any) Result {
	block, ok := ExtractJSONBlock(raw)
	if !ok {
		return n.textualFallback(desc, raw, input, "model output contained no JSON object")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		// Balanced but not valid JSON (e.g. single quotes). Treat the
		// same as no JSON.
		return n.textualFallback(desc, raw, input, "extracted block was not valid JSON")
	}

	res := task.Validate(desc.Output, parsed)
	if res.OK {
		return Result{
			Output:     res.Value,
			Confidence: ConfidenceClean,
		}
	}

	return n.repair(desc, parsed, input, res.Errors)
}

// repair fills missing or invalid fields from the task synthesizer,
// keeping every field that validated. partial is the parsed model
// payload before validation.
func (n *Normalizer) repair(desc *task.Descriptor, partial map[string]any, input map[string]any, errs []task.FieldError) Result {
	synthesized := desc.Synthesize(input)

	repaired := make(map[string]any, len(partial))
	for k, v := range partial {
		repaired[k] = v
	}

	var warnings []string
	for _, fe := range errs {
		if sv, ok := synthesized[fe.Path]; ok {
			repaired[fe.Path] = sv
			warnings = append(warnings, "field "+fe.Path+" was repaired ("+string(fe.Code)+")")
		}
	}

	// Re-validate: repair must never emit an invalid payload. If the
	// synthesizer could not cover a field, fall back wholesale.
	res := task.Validate(desc.Output, repaired)
	if !res.OK {
		n.logger.Warn("repair left payload invalid, using synthetic output",
			"task", desc.Kind, "remaining_errors", len(res.Errors))
		return Result{
			Output:      synthesized,
			Confidence:  ConfidenceRepaired,
			NeedsReview: true,
			Warnings:    append(warnings, "model output replaced with a synthetic draft"),
		}
	}

	n.logger.Debug("repaired model output", "task", desc.Kind, "repaired_fields", len(warnings))
	return Result{
		Output:      res.Value,
		Confidence:  ConfidenceRepaired,
		NeedsReview: true,
		Warnings:    warnings,
	}
}

// textualFallback wraps unusable model text in a synthesized payload.
// The raw text is preserved under "raw_text" so nothing the model
// said is lost, but the structured fields are placeholders.
func (n *Normalizer) textualFallback(desc *task.Descriptor, raw string, input map[string]any, reason string) Result {
	n.logger.Warn("model output not normalizable", "task", desc.Kind, "reason", reason)

	output := desc.Synthesize(input)
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		output["raw_text"] = trimmed
	}

	return Result{
		Output:      output,
		Confidence:  ConfidenceTextual,
		NeedsReview: true,
		Warnings:    []string{reason},
	}
}

// ExtractJSONBlock returns the largest balanced JSON object embedded
// in text. The boolean reports whether one was found; an empty text or
// one without braces yields false rather than an empty string the
// caller might mistake for data.
//
// Balancing respects string literals and escapes, so braces inside
// values do not confuse the scanner. Code fences need no special
// casing: the object inside them is found by the same scan.
func ExtractJSONBlock(text string) (string, bool) {
	best := ""
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue // stray closer
			}
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if len(candidate) > len(best) {
					best = candidate
				}
			}
		}
	}

	if best == "" {
		return "", false
	}
	return best, true
}
