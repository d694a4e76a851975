// Package task defines the fixed set of document-generation task kinds,
// their input/output shapes, and the generic shape validator.
//
// A Descriptor is immutable: the registry builds every descriptor once at
// process start and hands out read-only pointers. Outputs are handled as
// a tagged variant — {Kind, payload} — where the payload's concrete shape
// is always looked up from the registry by Kind, so validation stays
// exhaustive and a payload can never silently satisfy another task's
// shape.
package task

// Kind identifies one of the supported document-generation operations.
type Kind string

// Supported task kinds. The set is fixed at compile time.
const (
	KindCompanyResearch     Kind = "company-research"
	KindSOPGenerator        Kind = "sop-generator"
	KindExcelHelper         Kind = "excel-helper"
	KindPresentationOutline Kind = "presentation-outline"
	KindProjectBrief        Kind = "project-brief"
	KindEmailComposer       Kind = "email-composer"
)

// Determinism classifies how much sampling variation a task tolerates.
// The prompt composer maps each class to fixed temperature/top-p values.
type Determinism string

const (
	// DeterminismFactual is for tasks whose output must be reproducible
	// and grounded (temperature 0).
	DeterminismFactual Determinism = "factual"

	// DeterminismStructured is for tasks producing strict structured
	// data (temperature 0).
	DeterminismStructured Determinism = "structured"

	// DeterminismBalanced allows mild variation.
	DeterminismBalanced Determinism = "balanced"

	// DeterminismCreative allows the widest (still bounded) variation.
	DeterminismCreative Determinism = "creative"
)

// FieldType enumerates the value types a shape field may declare.
type FieldType string

const (
	FieldString     FieldType = "string"
	FieldNumber     FieldType = "number"
	FieldBool       FieldType = "bool"
	FieldStringList FieldType = "string_list"
)

// FieldSpec declares the constraints for one field of a shape.
type FieldSpec struct {
	Type     FieldType
	Required bool

	// Enum restricts a string field to the listed values. Empty = any.
	Enum []string

	// Min/Max bound a number field when non-nil.
	Min *float64
	Max *float64
}

// Shape maps field names to their specs. Input and output shapes use the
// same representation so one validator serves both directions.
type Shape map[string]FieldSpec

// Descriptor is the immutable per-task definition: shapes, prompt
// template, token budget, sampling class, and retrieval flag.
type Descriptor struct {
	Kind  Kind
	Title string

	Input  Shape
	Output Shape

	// SystemPrompt is the fixed system instruction for this task.
	SystemPrompt string

	// Template is the user-prompt template; {{field}} placeholders are
	// substituted with input values by the prompt composer.
	Template string

	// MaxTokens is the output token budget for provider calls; the
	// composer also uses it to bound retrieved-context size.
	MaxTokens int

	Determinism Determinism

	// NeedsRetrieval marks tasks whose prompts are augmented with
	// knowledge-base context before dispatch.
	NeedsRetrieval bool

	// Synthesize builds a deterministic, schema-valid output payload
	// purely from validated input. Used by the dispatcher's fallback
	// state and by the normalizer's repair path. Must not perform I/O.
	Synthesize func(input map[string]any) map[string]any
}

// number is a convenience for building Min/Max pointers in shape literals.
func number(v float64) *float64 { return &v }
