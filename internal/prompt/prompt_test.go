package prompt

import (
	"strings"
	"testing"

	"github.com/formpilot/formpilot/internal/retrieval"
	"github.com/formpilot/formpilot/internal/task"
)

func testDescriptor() task.Descriptor {
	return task.Descriptor{
		Kind:         task.KindExcelHelper,
		SystemPrompt: "You are a spreadsheet expert.",
		Template:     "Question: {{question}}\nSheet: {{sheet_name}}",
		MaxTokens:    1024,
		Determinism:  task.DeterminismStructured,
	}
}

func TestCompose_RendersTemplate(t *testing.T) {
	p := Compose(testDescriptor(), map[string]any{
		"question":   "how do I sum column B?",
		"sheet_name": "Budget",
	}, nil)

	if p.System != "You are a spreadsheet expert." {
		t.Errorf("system prompt not carried: %q", p.System)
	}
	if !strings.Contains(p.User, "Question: how do I sum column B?") {
		t.Errorf("question not rendered: %q", p.User)
	}
	if !strings.Contains(p.User, "Sheet: Budget") {
		t.Errorf("sheet not rendered: %q", p.User)
	}
	if p.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", p.MaxTokens)
	}
}

func TestCompose_IsPure(t *testing.T) {
	input := map[string]any{"question": "q", "sheet_name": "s"}
	snippets := []retrieval.Snippet{{Text: "ctx", Source: retrieval.SourceKnowledge}}

	a := Compose(testDescriptor(), input, snippets)
	b := Compose(testDescriptor(), input, snippets)
	if a != b {
		t.Errorf("composition must be deterministic:\n%+v\n%+v", a, b)
	}
}

func TestCompose_MissingPlaceholderRendersEmpty(t *testing.T) {
	p := Compose(testDescriptor(), map[string]any{"question": "q"}, nil)

	if strings.Contains(p.User, "{{") || strings.Contains(p.User, "}}") {
		t.Errorf("template syntax leaked into prompt: %q", p.User)
	}
	if !strings.Contains(p.User, "Sheet: \n") && !strings.HasSuffix(p.User, "Sheet: ") {
		t.Errorf("missing field should render empty: %q", p.User)
	}
}

func TestCompose_ContextBlock(t *testing.T) {
	snippets := []retrieval.Snippet{
		{Text: "first snippet", Source: retrieval.SourceKnowledge, Similarity: 0.9},
		{Text: "second snippet", Source: retrieval.SourceResearch, Similarity: 0.8},
	}
	p := Compose(testDescriptor(), map[string]any{"question": "q"}, snippets)

	if !strings.Contains(p.User, "--- CONTEXT ---") || !strings.Contains(p.User, "--- END CONTEXT ---") {
		t.Fatalf("context block not delimited: %q", p.User)
	}
	if !strings.Contains(p.User, "[knowledge] first snippet") {
		t.Errorf("knowledge snippet missing source tag: %q", p.User)
	}
	if !strings.Contains(p.User, "[research] second snippet") {
		t.Errorf("research snippet missing source tag: %q", p.User)
	}
	if strings.Index(p.User, "first snippet") > strings.Index(p.User, "second snippet") {
		t.Error("snippets must keep their ranked order")
	}
}

func TestCompose_NoSnippetsNoBlock(t *testing.T) {
	p := Compose(testDescriptor(), map[string]any{"question": "q"}, nil)
	if strings.Contains(p.User, "CONTEXT") {
		t.Errorf("empty retrieval should not add a context block: %q", p.User)
	}
}

func TestContextBlock_BudgetDropsTail(t *testing.T) {
	big := strings.Repeat("x", 4*ContextTokenBudget) // alone exceeds the budget
	snippets := []retrieval.Snippet{
		{Text: "small but top ranked", Source: retrieval.SourceKnowledge},
		{Text: big, Source: retrieval.SourceKnowledge},
		{Text: "tail", Source: retrieval.SourceKnowledge},
	}

	block := contextBlock(snippets, ContextTokenBudget)
	if !strings.Contains(block, "small but top ranked") {
		t.Error("top-ranked snippet must survive truncation")
	}
	if strings.Contains(block, big) {
		t.Error("over-budget snippet must be dropped")
	}
	// Truncation cuts from the first snippet that overflows onward,
	// preserving rank order rather than packing greedily.
	if strings.Contains(block, "tail") {
		t.Error("snippets after the cut must be dropped")
	}
}

func TestCompose_ContextBoundedByTaskBudget(t *testing.T) {
	desc := testDescriptor()
	desc.MaxTokens = 100

	// ~1900 tokens: far under the package cap, far over the task budget.
	big := []retrieval.Snippet{
		{Text: strings.Repeat("x", 4*1900), Source: retrieval.SourceKnowledge, Similarity: 0.9},
	}
	p := Compose(desc, map[string]any{"question": "q"}, big)
	if strings.Contains(p.User, "CONTEXT") {
		t.Errorf("context exceeding the task's token budget must be dropped: %d chars", len(p.User))
	}

	small := []retrieval.Snippet{
		{Text: strings.Repeat("y", 200), Source: retrieval.SourceKnowledge, Similarity: 0.9},
	}
	p = Compose(desc, map[string]any{"question": "q"}, small)
	if !strings.Contains(p.User, "CONTEXT") {
		t.Error("context within the task's token budget must be included")
	}
}

func TestContextBudget(t *testing.T) {
	tests := []struct {
		maxTokens int
		want      int
	}{
		{100, 100},
		{ContextTokenBudget + 1000, ContextTokenBudget},
		{0, ContextTokenBudget}, // descriptor without a budget keeps the cap
	}
	for _, tt := range tests {
		if got := contextBudget(tt.maxTokens); got != tt.want {
			t.Errorf("contextBudget(%d) = %d, want %d", tt.maxTokens, got, tt.want)
		}
	}
}

func TestPolicyFor(t *testing.T) {
	tests := []struct {
		class    task.Determinism
		wantTemp float64
	}{
		{task.DeterminismFactual, 0},
		{task.DeterminismStructured, 0},
		{task.DeterminismBalanced, 0.4},
		{task.DeterminismCreative, 0.8},
		{task.Determinism("bogus"), 0.4}, // falls back to balanced
	}
	for _, tt := range tests {
		if got := PolicyFor(tt.class); got.Temperature != tt.wantTemp {
			t.Errorf("PolicyFor(%s).Temperature = %g, want %g", tt.class, got.Temperature, tt.wantTemp)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "hello", "hello"},
		{"whole float", 3.0, "3"},
		{"fraction", 2.5, "2.5"},
		{"bool", true, "true"},
		{"string slice", []string{"a", "b"}, "a, b"},
		{"any slice", []any{"a", 2.0}, "a, 2"},
		{"map sorted", map[string]any{"b": "2", "a": "1"}, "a: 1; b: 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.input); got != tt.want {
				t.Errorf("formatValue(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
