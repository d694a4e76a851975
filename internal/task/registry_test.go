package task

import "testing"

func TestNewRegistry_AllKindsPresent(t *testing.T) {
	r := NewRegistry()

	kinds := []Kind{
		KindCompanyResearch,
		KindSOPGenerator,
		KindExcelHelper,
		KindPresentationOutline,
		KindProjectBrief,
		KindEmailComposer,
	}

	for _, k := range kinds {
		d, ok := r.Get(k)
		if !ok {
			t.Errorf("kind %q not registered", k)
			continue
		}
		if d.Kind != k {
			t.Errorf("descriptor kind mismatch: got %q, want %q", d.Kind, k)
		}
		if len(d.Input) == 0 || len(d.Output) == 0 {
			t.Errorf("kind %q has empty shapes", k)
		}
		if d.MaxTokens <= 0 {
			t.Errorf("kind %q has no token budget", k)
		}
		if d.Synthesize == nil {
			t.Errorf("kind %q has no synthesizer", k)
		}
	}

	if len(r.Kinds()) != len(kinds) {
		t.Errorf("expected %d kinds, got %d", len(kinds), len(r.Kinds()))
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("no-such-task"); ok {
		t.Error("unknown kind should not resolve")
	}
}

// Every synthesizer must produce output that validates against its own
// task's output shape — the dispatcher's fallback state depends on it.
func TestSynthesize_SatisfiesOutputShape(t *testing.T) {
	r := NewRegistry()

	inputs := map[Kind]map[string]any{
		KindCompanyResearch:     {"companyName": "Acme Corp"},
		KindSOPGenerator:        {"processName": "onboarding"},
		KindExcelHelper:         {"question": "How do I sum with multiple conditions?"},
		KindPresentationOutline: {"topic": "Q3 results"},
		KindProjectBrief:        {"projectName": "Atlas", "description": "rebuild billing"},
		KindEmailComposer:       {"purpose": "schedule a review"},
	}

	for _, kind := range r.Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			d, _ := r.Get(kind)
			out := d.Synthesize(inputs[kind])

			res := Validate(d.Output, out)
			if !res.OK {
				t.Errorf("synthesized output fails own shape: %v", res.Errors)
			}
		})
	}
}

// Synthesizers are deterministic: identical input, identical output.
func TestSynthesize_Deterministic(t *testing.T) {
	r := NewRegistry()
	d, _ := r.Get(KindExcelHelper)

	in := map[string]any{"question": "vlookup vs index match?"}
	a := d.Synthesize(in)
	b := d.Synthesize(in)

	if a["answer"] != b["answer"] {
		t.Error("synthesizer output varies across calls with identical input")
	}
}

func TestKinds_Sorted(t *testing.T) {
	r := NewRegistry()
	kinds := r.Kinds()
	for i := 1; i < len(kinds); i++ {
		if kinds[i-1] >= kinds[i] {
			t.Fatalf("kinds not sorted: %v", kinds)
		}
	}
}
