package task

import (
	"fmt"
	"sort"
)

// Registry holds every task Descriptor, built once at process start and
// never mutated afterwards. Safe for concurrent reads.
type Registry struct {
	byKind map[Kind]*Descriptor
}

// NewRegistry builds the registry with the full fixed set of task kinds.
func NewRegistry() *Registry {
	r := &Registry{byKind: make(map[Kind]*Descriptor)}
	for _, d := range buildDescriptors() {
		r.byKind[d.Kind] = d
	}
	return r
}

// Get returns the descriptor for kind, or false if the kind is unknown.
func (r *Registry) Get(kind Kind) (*Descriptor, bool) {
	d, ok := r.byKind[kind]
	return d, ok
}

// Kinds returns all registered kinds in stable sorted order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.byKind))
	for k := range r.byKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// str reads a string input field, returning fallback when absent.
func str(input map[string]any, key, fallback string) string {
	if s, ok := input[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func buildDescriptors() []*Descriptor {
	return []*Descriptor{
		{
			Kind:  KindCompanyResearch,
			Title: "Company Research",
			Input: Shape{
				"companyName": {Type: FieldString, Required: true},
				"industry":    {Type: FieldString},
				"region":      {Type: FieldString},
			},
			Output: Shape{
				"overview":    {Type: FieldString, Required: true},
				"industry":    {Type: FieldString, Required: true},
				"products":    {Type: FieldStringList},
				"competitors": {Type: FieldStringList},
				"risks":       {Type: FieldStringList},
				"summary":     {Type: FieldString, Required: true},
			},
			SystemPrompt: "You are a business research analyst. Answer only with " +
				"verifiable, current information about the requested company. " +
				"Respond with a single JSON object matching the requested fields.",
			Template: "Research the company {{companyName}}." +
				" Industry hint: {{industry}}. Region: {{region}}." +
				" Return JSON with fields: overview, industry, products, competitors, risks, summary.",
			MaxTokens:      2048,
			Determinism:    DeterminismFactual,
			NeedsRetrieval: true,
			Synthesize: func(input map[string]any) map[string]any {
				name := str(input, "companyName", "the company")
				industry := str(input, "industry", "unknown")
				return map[string]any{
					"overview": fmt.Sprintf("%s is a company operating in the %s sector. "+
						"Detailed research data was not available.", name, industry),
					"industry":    industry,
					"products":    []string{},
					"competitors": []string{},
					"risks":       []string{},
					"summary":     fmt.Sprintf("Placeholder research summary for %s.", name),
				}
			},
		},
		{
			Kind:  KindSOPGenerator,
			Title: "Standard Operating Procedure",
			Input: Shape{
				"processName": {Type: FieldString, Required: true},
				"department":  {Type: FieldString},
				"detailLevel": {Type: FieldString, Enum: []string{"brief", "standard", "detailed"}},
			},
			Output: Shape{
				"title":    {Type: FieldString, Required: true},
				"purpose":  {Type: FieldString, Required: true},
				"scope":    {Type: FieldString},
				"steps":    {Type: FieldStringList, Required: true},
				"cautions": {Type: FieldStringList},
			},
			SystemPrompt: "You are a quality-management specialist writing standard " +
				"operating procedures. Respond with a single JSON object matching the " +
				"requested fields.",
			Template: "Write an SOP for the process {{processName}} in the " +
				"{{department}} department at {{detailLevel}} detail. Return JSON with " +
				"fields: title, purpose, scope, steps, cautions.",
			MaxTokens:      2048,
			Determinism:    DeterminismStructured,
			NeedsRetrieval: true,
			Synthesize: func(input map[string]any) map[string]any {
				name := str(input, "processName", "the process")
				return map[string]any{
					"title":   fmt.Sprintf("SOP: %s", name),
					"purpose": fmt.Sprintf("Define a repeatable procedure for %s.", name),
					"steps": []string{
						fmt.Sprintf("Document the current workflow for %s.", name),
						"Identify responsible roles for each step.",
						"Review and approve the procedure with the process owner.",
					},
					"cautions": []string{},
				}
			},
		},
		{
			Kind:  KindExcelHelper,
			Title: "Excel Helper",
			Input: Shape{
				"question": {Type: FieldString, Required: true},
			},
			Output: Shape{
				"answer":  {Type: FieldString, Required: true},
				"formula": {Type: FieldString},
				"steps":   {Type: FieldStringList},
			},
			SystemPrompt: "You are a spreadsheet expert. Give precise, tested Excel " +
				"guidance. Respond with a single JSON object matching the requested fields.",
			Template: "Answer this Excel question: {{question}}. Return JSON with " +
				"fields: answer, formula (if one applies), steps.",
			MaxTokens:   1024,
			Determinism: DeterminismFactual,
			Synthesize: func(input map[string]any) map[string]any {
				q := str(input, "question", "your question")
				return map[string]any{
					"answer": fmt.Sprintf("A generated answer for %q is not available right now. "+
						"Consult Excel's built-in function reference for this topic.", q),
					"steps": []string{},
				}
			},
		},
		{
			Kind:  KindPresentationOutline,
			Title: "Presentation Outline",
			Input: Shape{
				"topic":      {Type: FieldString, Required: true},
				"audience":   {Type: FieldString},
				"slideCount": {Type: FieldNumber, Min: number(3), Max: number(30)},
			},
			Output: Shape{
				"title":         {Type: FieldString, Required: true},
				"sections":      {Type: FieldStringList, Required: true},
				"talkingPoints": {Type: FieldStringList},
			},
			SystemPrompt: "You are a presentation coach. Build clear, audience-fit " +
				"outlines. Respond with a single JSON object matching the requested fields.",
			Template: "Outline a presentation on {{topic}} for {{audience}} with about " +
				"{{slideCount}} slides. Return JSON with fields: title, sections, talkingPoints.",
			MaxTokens:   1536,
			Determinism: DeterminismBalanced,
			Synthesize: func(input map[string]any) map[string]any {
				topic := str(input, "topic", "the topic")
				return map[string]any{
					"title": fmt.Sprintf("Presentation: %s", topic),
					"sections": []string{
						"Introduction",
						fmt.Sprintf("Overview of %s", topic),
						"Key findings",
						"Next steps",
					},
					"talkingPoints": []string{},
				}
			},
		},
		{
			Kind:  KindProjectBrief,
			Title: "Project Brief",
			Input: Shape{
				"projectName": {Type: FieldString, Required: true},
				"description": {Type: FieldString, Required: true},
				"deadline":    {Type: FieldString},
			},
			Output: Shape{
				"objective":    {Type: FieldString, Required: true},
				"deliverables": {Type: FieldStringList, Required: true},
				"milestones":   {Type: FieldStringList},
				"risks":        {Type: FieldStringList},
			},
			SystemPrompt: "You are a project manager drafting concise project briefs. " +
				"Respond with a single JSON object matching the requested fields.",
			Template: "Draft a project brief for {{projectName}}: {{description}}. " +
				"Deadline: {{deadline}}. Return JSON with fields: objective, deliverables, " +
				"milestones, risks.",
			MaxTokens:      1536,
			Determinism:    DeterminismStructured,
			NeedsRetrieval: true,
			Synthesize: func(input map[string]any) map[string]any {
				name := str(input, "projectName", "the project")
				desc := str(input, "description", "")
				return map[string]any{
					"objective":    fmt.Sprintf("Deliver %s. %s", name, desc),
					"deliverables": []string{fmt.Sprintf("Initial scope document for %s", name)},
					"milestones":   []string{},
					"risks":        []string{},
				}
			},
		},
		{
			Kind:  KindEmailComposer,
			Title: "Email Composer",
			Input: Shape{
				"purpose":   {Type: FieldString, Required: true},
				"recipient": {Type: FieldString},
				"tone":      {Type: FieldString, Enum: []string{"formal", "friendly", "direct"}},
			},
			Output: Shape{
				"subject": {Type: FieldString, Required: true},
				"body":    {Type: FieldString, Required: true},
			},
			SystemPrompt: "You are a professional communications writer. Respond with " +
				"a single JSON object matching the requested fields.",
			Template: "Compose an email. Purpose: {{purpose}}. Recipient: {{recipient}}. " +
				"Tone: {{tone}}. Return JSON with fields: subject, body.",
			MaxTokens:   1024,
			Determinism: DeterminismCreative,
			Synthesize: func(input map[string]any) map[string]any {
				purpose := str(input, "purpose", "our conversation")
				return map[string]any{
					"subject": fmt.Sprintf("Regarding: %s", purpose),
					"body": fmt.Sprintf("Hello,\n\nI am writing regarding %s. "+
						"I will follow up with details shortly.\n\nBest regards", purpose),
				}
			},
		},
	}
}
