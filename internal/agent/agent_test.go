package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/formpilot/formpilot/internal/cache"
	"github.com/formpilot/formpilot/internal/clock"
	"github.com/formpilot/formpilot/internal/normalize"
	"github.com/formpilot/formpilot/internal/prompt"
	"github.com/formpilot/formpilot/internal/provider"
	"github.com/formpilot/formpilot/internal/research"
	"github.com/formpilot/formpilot/internal/retrieval"
	"github.com/formpilot/formpilot/internal/task"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Mocks
// =============================================================================

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   int
	outcome provider.Outcome
	err     error
	block   chan struct{} // when non-nil, Dispatch waits for close
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ *task.Descriptor, _ prompt.Prompt, _ map[string]any) (provider.Outcome, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.outcome, f.err
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRetriever struct {
	snippets []retrieval.Snippet
	err      error
	calls    int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _, _ string) ([]retrieval.Snippet, error) {
	f.calls++
	return f.snippets, f.err
}

type fakeResearchStore struct {
	rec     research.Record
	getErr  error
	stale   bool
	upserts []research.Record
	upErr   error
}

func (f *fakeResearchStore) Get(_ context.Context, _ string) (research.Record, error) {
	return f.rec, f.getErr
}

func (f *fakeResearchStore) IsStale(_ research.Record) bool { return f.stale }

func (f *fakeResearchStore) Upsert(_ context.Context, rec research.Record) (research.Record, error) {
	f.upserts = append(f.upserts, rec)
	return rec, f.upErr
}

func newTestAgent(d Dispatcher, r Retriever, rs ResearchStore) (*Agent, *cache.ResponseCache[Response]) {
	clk := clock.NewFake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	respCache := cache.NewResponseCache[Response](10, 5*time.Minute, clk)
	a := New(task.NewRegistry(), r, d, normalize.New(nil), rs, respCache, clk, nil)
	return a, respCache
}

func emailRequest() Request {
	return Request{
		Kind:  task.KindEmailComposer,
		Input: map[string]any{"purpose": "schedule a demo", "tone": "formal"},
	}
}

const emailJSON = `{"subject":"Demo","body":"Shall we meet?"}`

// =============================================================================
// Validation
// =============================================================================

func TestProcess_ValidationFailure(t *testing.T) {
	d := &fakeDispatcher{}
	a, _ := newTestAgent(d, nil, nil)

	resp, err := a.Process(context.Background(), Request{
		Kind:  task.KindEmailComposer,
		Input: map[string]any{"tone": "formal"}, // purpose missing
	})
	if err != nil {
		t.Fatalf("validation failure must come back in the envelope: %v", err)
	}
	if resp.Success {
		t.Fatal("Success must be false")
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Path != "purpose" || resp.Errors[0].Code != task.CodeMissing {
		t.Errorf("expected a MISSING error for purpose, got %+v", resp.Errors)
	}
	if d.callCount() != 0 {
		t.Error("invalid input must never reach the dispatcher")
	}
	if resp.RequestID == "" {
		t.Error("request ID should be assigned")
	}
}

func TestProcess_UnknownKind(t *testing.T) {
	a, _ := newTestAgent(&fakeDispatcher{}, nil, nil)
	if _, err := a.Process(context.Background(), Request{Kind: task.Kind("bogus")}); err == nil {
		t.Fatal("unknown kind must be an error")
	}
}

// =============================================================================
// Pipeline
// =============================================================================

func TestProcess_HappyPath(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{Provider: provider.NamePrimary, Text: emailJSON}}
	a, _ := newTestAgent(d, nil, nil)

	resp, err := a.Process(context.Background(), emailRequest())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !resp.Success || resp.NeedsReview || resp.Synthetic {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if resp.Output["subject"] != "Demo" {
		t.Errorf("output not normalized: %+v", resp.Output)
	}
	if resp.Confidence != normalize.ConfidenceClean {
		t.Errorf("Confidence = %g", resp.Confidence)
	}
	if resp.Provider != provider.NamePrimary || resp.Cached {
		t.Errorf("provenance wrong: %+v", resp)
	}
}

func TestProcess_CacheHitSkipsDispatch(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{Provider: provider.NamePrimary, Text: emailJSON}}
	a, _ := newTestAgent(d, nil, nil)

	first, err := a.Process(context.Background(), emailRequest())
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Process(context.Background(), emailRequest())
	if err != nil {
		t.Fatal(err)
	}

	if d.callCount() != 1 {
		t.Errorf("identical input must dispatch once, got %d calls", d.callCount())
	}
	if !second.Cached || first.Cached {
		t.Errorf("second response should be cached: first=%v second=%v", first.Cached, second.Cached)
	}
	if second.Output["subject"] != first.Output["subject"] {
		t.Error("cached response must match the original")
	}
	if second.RequestID == first.RequestID {
		t.Error("each caller gets its own request ID")
	}
}

func TestProcess_DifferentInputsDoNotShareCache(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{Provider: provider.NamePrimary, Text: emailJSON}}
	a, _ := newTestAgent(d, nil, nil)

	if _, err := a.Process(context.Background(), emailRequest()); err != nil {
		t.Fatal(err)
	}
	other := emailRequest()
	other.Input["purpose"] = "cancel the demo"
	if _, err := a.Process(context.Background(), other); err != nil {
		t.Fatal(err)
	}

	if d.callCount() != 2 {
		t.Errorf("distinct inputs must dispatch separately, got %d calls", d.callCount())
	}
}

func TestProcess_SyntheticFallback(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{
		Provider:  provider.NameFallback,
		Synthetic: true,
		Output:    map[string]any{"subject": "Regarding: schedule a demo", "body": "placeholder"},
		Warnings:  []string{"provider gemini unavailable (TIMEOUT)"},
	}}
	a, _ := newTestAgent(d, nil, nil)

	resp, err := a.Process(context.Background(), emailRequest())
	if err != nil {
		t.Fatalf("fallback must not error: %v", err)
	}
	if !resp.Success || !resp.Synthetic || !resp.NeedsReview {
		t.Errorf("synthetic envelope wrong: %+v", resp)
	}
	if resp.Confidence > 0.5 {
		t.Errorf("synthetic confidence must not exceed 0.5, got %g", resp.Confidence)
	}
	if len(resp.Warnings) == 0 {
		t.Error("degradation warnings must be carried")
	}
}

func TestProcess_RetrievalFailureDegrades(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{Provider: provider.NamePrimary, Text: sopJSON}}
	r := &fakeRetriever{err: errors.New("pg down")}
	a, _ := newTestAgent(d, r, nil)

	resp, err := a.Process(context.Background(), Request{
		Kind:  task.KindSOPGenerator,
		Input: map[string]any{"processName": "invoice approval"},
	})
	if err != nil {
		t.Fatalf("retrieval failure must not fail the request: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success")
	}
	if len(resp.Warnings) == 0 {
		t.Error("context loss should be warned about")
	}
	if d.callCount() != 1 {
		t.Error("dispatch should still run")
	}
}

const sopJSON = `{"title":"SOP: invoice approval","purpose":"p","steps":["a","b"]}`

func TestProcess_SourcesFromRetrieval(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{Provider: provider.NamePrimary, Text: sopJSON}}
	r := &fakeRetriever{snippets: []retrieval.Snippet{
		{Text: "ctx", Source: retrieval.SourceKnowledge, Ref: "k1", Similarity: 0.8},
	}}
	a, _ := newTestAgent(d, r, nil)

	resp, err := a.Process(context.Background(), Request{
		Kind:  task.KindSOPGenerator,
		Input: map[string]any{"processName": "invoice approval"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Ref != "k1" || resp.Sources[0].Type != retrieval.SourceKnowledge {
		t.Errorf("sources not carried: %+v", resp.Sources)
	}
	if r.calls != 1 {
		t.Errorf("retriever calls = %d", r.calls)
	}
}

// =============================================================================
// Coalescing
// =============================================================================

func TestProcess_CoalescesConcurrentIdenticalRequests(t *testing.T) {
	block := make(chan struct{})
	d := &fakeDispatcher{
		outcome: provider.Outcome{Provider: provider.NamePrimary, Text: emailJSON},
		block:   block,
	}
	a, _ := newTestAgent(d, nil, nil)

	const callers = 5
	var wg sync.WaitGroup
	responses := make([]Response, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i], errs[i] = a.Process(context.Background(), emailRequest())
		}(i)
	}

	// Let every caller reach the singleflight barrier, then release.
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if responses[i].Output["subject"] != "Demo" {
			t.Errorf("caller %d got wrong output: %+v", i, responses[i].Output)
		}
	}
	if got := d.callCount(); got != 1 {
		t.Errorf("expected exactly one dispatch for %d concurrent callers, got %d", callers, got)
	}
}

func TestProcess_CancelledCallerDoesNotAbortExecution(t *testing.T) {
	block := make(chan struct{})
	d := &fakeDispatcher{
		outcome: provider.Outcome{Provider: provider.NamePrimary, Text: emailJSON},
		block:   block,
	}
	a, respCache := newTestAgent(d, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := a.Process(ctx, emailRequest())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("abandoned caller should get its context error, got %v", err)
	}

	// The detached execution still completes and populates the cache.
	close(block)
	deadline := time.After(2 * time.Second)
	for respCache.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("background execution never populated the cache")
		case <-time.After(10 * time.Millisecond):
		}
	}

	resp, err := a.Process(context.Background(), emailRequest())
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Cached {
		t.Error("follow-up request should hit the cache populated in the background")
	}
	if d.callCount() != 1 {
		t.Errorf("expected 1 dispatch total, got %d", d.callCount())
	}
}

func TestProcess_ReadyResultNotDeliveredToCancelledCaller(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{Provider: provider.NamePrimary, Text: emailJSON}}
	a, respCache := newTestAgent(d, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// With a pre-cancelled context and an instant dispatcher the result
	// channel and Done can both be ready; either way the caller must
	// get its context error, never the response.
	const attempts = 8
	for i := 0; i < attempts; i++ {
		req := emailRequest()
		req.Input["purpose"] = fmt.Sprintf("request variant %d", i)
		resp, err := a.Process(ctx, req)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("attempt %d: want context.Canceled, got resp=%+v err=%v", i, resp, err)
		}
	}

	// The detached executions still complete and populate the cache.
	deadline := time.After(2 * time.Second)
	for respCache.Len() < attempts {
		select {
		case <-deadline:
			t.Fatalf("background executions cached %d of %d entries", respCache.Len(), attempts)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// =============================================================================
// Company research flow
// =============================================================================

func researchRequest() Request {
	return Request{
		Kind:  task.KindCompanyResearch,
		Input: map[string]any{"companyName": "Acme Corp"},
	}
}

func freshRecord() research.Record {
	return research.Record{
		SubjectKey: "acme corp",
		Subject:    "Acme Corp",
		Summary:    "Acme makes anvils.",
		Facts: map[string]any{
			"overview": "Acme is an anvil manufacturer.",
			"industry": "manufacturing",
		},
		UpdatedAt: time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestProcess_FreshResearchShortCircuits(t *testing.T) {
	d := &fakeDispatcher{}
	rs := &fakeResearchStore{rec: freshRecord()}
	a, _ := newTestAgent(d, nil, rs)

	resp, err := a.Process(context.Background(), researchRequest())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !resp.Success || resp.Output["summary"] != "Acme makes anvils." {
		t.Errorf("record not served: %+v", resp)
	}
	if resp.Provider != retrieval.SourceResearch {
		t.Errorf("Provider = %q", resp.Provider)
	}
	if d.callCount() != 0 {
		t.Error("fresh record must not dispatch")
	}
	if len(rs.upserts) != 0 {
		t.Error("serving a fresh record must not rewrite it")
	}
}

const researchJSON = `{"overview":"Acme is an anvil maker.","industry":"manufacturing","summary":"Anvils."}`

func TestProcess_StaleResearchRerunsAndPersists(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{Provider: provider.NamePrimary, Text: researchJSON}}
	rs := &fakeResearchStore{rec: freshRecord(), stale: true}
	a, _ := newTestAgent(d, nil, rs)

	resp, err := a.Process(context.Background(), researchRequest())
	if err != nil {
		t.Fatal(err)
	}
	if d.callCount() != 1 {
		t.Error("stale record must re-run the pipeline")
	}
	if len(rs.upserts) != 1 {
		t.Fatalf("refreshed result must be persisted, got %d upserts", len(rs.upserts))
	}
	if rs.upserts[0].Subject != "Acme Corp" || rs.upserts[0].Summary != "Anvils." {
		t.Errorf("persisted record wrong: %+v", rs.upserts[0])
	}
	if resp.Output["summary"] != "Anvils." {
		t.Errorf("response output wrong: %+v", resp.Output)
	}
}

func TestProcess_MissingResearchRunsPipeline(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{Provider: provider.NamePrimary, Text: researchJSON}}
	rs := &fakeResearchStore{getErr: research.ErrNotFound}
	a, _ := newTestAgent(d, nil, rs)

	if _, err := a.Process(context.Background(), researchRequest()); err != nil {
		t.Fatal(err)
	}
	if d.callCount() != 1 || len(rs.upserts) != 1 {
		t.Errorf("missing record should run and persist: calls=%d upserts=%d", d.callCount(), len(rs.upserts))
	}
}

func TestProcess_ResearchPersistFailureIsNonFatal(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{Provider: provider.NamePrimary, Text: researchJSON}}
	rs := &fakeResearchStore{getErr: research.ErrNotFound, upErr: errors.New("pg down")}
	a, _ := newTestAgent(d, nil, rs)

	resp, err := a.Process(context.Background(), researchRequest())
	if err != nil {
		t.Fatalf("persist failure must not fail the request: %v", err)
	}
	if !resp.Success {
		t.Error("caller still gets their answer")
	}
}

func TestProcess_SyntheticResearchIsNotPersisted(t *testing.T) {
	d := &fakeDispatcher{outcome: provider.Outcome{
		Provider:  provider.NameFallback,
		Synthetic: true,
		Output:    map[string]any{"overview": "o", "industry": "i", "summary": "s"},
	}}
	rs := &fakeResearchStore{getErr: research.ErrNotFound}
	a, _ := newTestAgent(d, nil, rs)

	if _, err := a.Process(context.Background(), researchRequest()); err != nil {
		t.Fatal(err)
	}
	if len(rs.upserts) != 0 {
		t.Error("placeholder research must never be persisted as fact")
	}
}
