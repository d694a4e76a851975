// Package agent orchestrates the request pipeline: validate, check
// the response cache, retrieve context, compose the prompt, dispatch
// through the provider chain, normalize, and cache the result.
//
// Concurrent identical requests are coalesced with singleflight: one
// execution runs, everyone waiting shares its result. Execution is
// detached from any single caller's context, so a caller hanging up
// does not abort work other callers (or the cache) still want.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/formpilot/formpilot/internal/cache"
	"github.com/formpilot/formpilot/internal/clock"
	"github.com/formpilot/formpilot/internal/log"
	"github.com/formpilot/formpilot/internal/normalize"
	"github.com/formpilot/formpilot/internal/prompt"
	"github.com/formpilot/formpilot/internal/provider"
	"github.com/formpilot/formpilot/internal/research"
	"github.com/formpilot/formpilot/internal/retrieval"
	"github.com/formpilot/formpilot/internal/task"
)

// syntheticConfidence is assigned to responses served by the
// dispatcher's synthetic fallback. Kept at or below 0.5 so synthetic
// drafts always read as low-trust.
const syntheticConfidence = 0.4

// freshResearchConfidence is assigned when a fresh persisted research
// record short-circuits the pipeline.
const freshResearchConfidence = 0.85

// Retriever is the slice of retrieval.Engine the agent uses.
type Retriever interface {
	Retrieve(ctx context.Context, query, taskKind string) ([]retrieval.Snippet, error)
}

// Dispatcher is the slice of provider.Dispatcher the agent uses.
type Dispatcher interface {
	Dispatch(ctx context.Context, desc *task.Descriptor, pr prompt.Prompt, input map[string]any) (provider.Outcome, error)
}

// ResearchStore is the slice of research.Store the agent uses for the
// company-research flow.
type ResearchStore interface {
	Get(ctx context.Context, subject string) (research.Record, error)
	IsStale(rec research.Record) bool
	Upsert(ctx context.Context, rec research.Record) (research.Record, error)
}

// Agent runs the request pipeline.
// Safe for concurrent use by multiple goroutines.
type Agent struct {
	registry   *task.Registry
	retriever  Retriever
	dispatcher Dispatcher
	normalizer *normalize.Normalizer
	research   ResearchStore
	respCache  *cache.ResponseCache[Response]
	clock      clock.Clock
	tracer     trace.Tracer
	logger     log.Logger
	group      singleflight.Group
}

// New creates an Agent. retriever and researchStore may be nil when
// the corresponding backends are unavailable; the pipeline degrades
// to generation without context.
func New(
	registry *task.Registry,
	retriever Retriever,
	dispatcher Dispatcher,
	normalizer *normalize.Normalizer,
	researchStore ResearchStore,
	respCache *cache.ResponseCache[Response],
	clk clock.Clock,
	logger log.Logger,
) *Agent {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Agent{
		registry:   registry,
		retriever:  retriever,
		dispatcher: dispatcher,
		normalizer: normalizer,
		research:   researchStore,
		respCache:  respCache,
		clock:      clk,
		tracer:     otel.Tracer("formpilot/agent"),
		logger:     logger,
	}
}

// Process handles one request end to end. The returned error is
// reserved for infrastructure failure (unknown kind, abandoned
// context); everything else, including provider exhaustion and
// validation failure, comes back inside the Response envelope.
func (a *Agent) Process(ctx context.Context, req Request) (Response, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ctx, span := a.tracer.Start(ctx, "agent.process",
		trace.WithAttributes(
			attribute.String("task.kind", string(req.Kind)),
			attribute.String("request.id", req.RequestID),
		))
	defer span.End()

	desc, ok := a.registry.Get(req.Kind)
	if !ok {
		return Response{}, fmt.Errorf("unknown task kind %q", req.Kind)
	}

	vres := task.Validate(desc.Input, req.Input)
	if !vres.OK {
		a.logger.Info("request rejected by validation",
			"request_id", req.RequestID, "task", req.Kind, "errors", len(vres.Errors))
		return a.stamp(Response{
			Kind:    req.Kind,
			Success: false,
			Errors:  vres.Errors,
		}, req.RequestID), nil
	}
	input := vres.Value

	key := cache.Key(string(req.Kind), input)

	if cached, ok := a.respCache.Get(key); ok {
		a.logger.Debug("response cache hit", "request_id", req.RequestID, "task", req.Kind)
		cached.Cached = true
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return a.stamp(cached, req.RequestID), nil
	}

	// Coalesce concurrent identical requests. Execution runs on a
	// context detached from this caller, so the winner finishing (and
	// the cache being populated) does not depend on any one caller
	// staying around.
	ch := a.group.DoChan(key, func() (any, error) {
		return a.execute(context.WithoutCancel(ctx), desc, key, input)
	})

	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("request %s abandoned: %w", req.RequestID, ctx.Err())
	case res := <-ch:
		// Both channels can be ready at once; a caller that already
		// cancelled never receives the result, even a finished one.
		if err := ctx.Err(); err != nil {
			return Response{}, fmt.Errorf("request %s abandoned: %w", req.RequestID, err)
		}
		if res.Err != nil {
			return Response{}, res.Err
		}
		resp := res.Val.(Response)
		resp.Coalesced = res.Shared
		return a.stamp(resp, req.RequestID), nil
	}
}

// stamp finalizes per-caller envelope fields on a possibly shared
// response value.
func (a *Agent) stamp(resp Response, requestID string) Response {
	resp.RequestID = requestID
	resp.Timestamp = a.clock.Now()
	return resp
}

// execute runs the uncached pipeline for one input and writes the
// result into the response cache.
func (a *Agent) execute(ctx context.Context, desc *task.Descriptor, key string, input map[string]any) (Response, error) {
	ctx, span := a.tracer.Start(ctx, "agent.execute",
		trace.WithAttributes(attribute.String("task.kind", string(desc.Kind))))
	defer span.End()

	if desc.Kind == task.KindCompanyResearch && a.research != nil {
		if resp, ok := a.freshResearch(ctx, desc, input); ok {
			a.respCache.Set(key, resp)
			return resp, nil
		}
	}

	var snippets []retrieval.Snippet
	var warnings []string
	if desc.NeedsRetrieval && a.retriever != nil {
		var err error
		snippets, err = a.retriever.Retrieve(ctx, retrievalQuery(desc, input), string(desc.Kind))
		if err != nil {
			// Retrieval failing entirely degrades to generation
			// without context rather than failing the request.
			a.logger.Warn("retrieval failed, continuing without context",
				"task", desc.Kind, "error", err)
			warnings = append(warnings, "reference context unavailable")
		}
	}
	span.SetAttributes(attribute.Int("retrieval.snippets", len(snippets)))

	pr := prompt.Compose(*desc, input, snippets)

	outcome, err := a.dispatcher.Dispatch(ctx, desc, pr, input)
	if err != nil {
		return Response{}, err
	}
	span.SetAttributes(
		attribute.String("provider", outcome.Provider),
		attribute.Bool("synthetic", outcome.Synthetic),
	)

	resp := Response{
		Kind:     desc.Kind,
		Success:  true,
		Provider: outcome.Provider,
		Warnings: append(warnings, outcome.Warnings...),
		Sources:  sourcesFrom(snippets),
	}

	if outcome.Synthetic {
		resp.Output = outcome.Output
		resp.Confidence = syntheticConfidence
		resp.NeedsReview = true
		resp.Synthetic = true
	} else {
		nres := a.normalizer.Normalize(desc, outcome.Text, input)
		resp.Output = nres.Output
		resp.Confidence = nres.Confidence
		resp.NeedsReview = nres.NeedsReview
		resp.Warnings = append(resp.Warnings, nres.Warnings...)
	}

	if desc.Kind == task.KindCompanyResearch && a.research != nil && !resp.Synthetic {
		a.persistResearch(ctx, input, resp)
	}

	a.respCache.Set(key, resp)
	return resp, nil
}

// freshResearch serves a company-research request from a persisted
// record when one exists and is inside the staleness window. A stale
// or missing record returns false and the full pipeline runs.
func (a *Agent) freshResearch(ctx context.Context, desc *task.Descriptor, input map[string]any) (Response, bool) {
	subject, _ := input["companyName"].(string)
	if subject == "" {
		return Response{}, false
	}

	rec, err := a.research.Get(ctx, subject)
	if err != nil {
		if !errors.Is(err, research.ErrNotFound) {
			a.logger.Warn("research lookup failed", "subject", subject, "error", err)
		}
		return Response{}, false
	}
	if a.research.IsStale(rec) {
		a.logger.Debug("research record stale, re-running",
			"subject_key", rec.SubjectKey, "updated_at", rec.UpdatedAt)
		return Response{}, false
	}

	output := make(map[string]any, len(rec.Facts)+1)
	for k, v := range rec.Facts {
		output[k] = v
	}
	output["summary"] = rec.Summary

	// A persisted record predating a shape change may no longer
	// validate; treat that as a miss.
	if vres := task.Validate(desc.Output, output); !vres.OK {
		a.logger.Warn("persisted research record no longer matches output shape",
			"subject_key", rec.SubjectKey)
		return Response{}, false
	}

	a.logger.Debug("served fresh research record", "subject_key", rec.SubjectKey)
	return Response{
		Kind:       desc.Kind,
		Success:    true,
		Output:     output,
		Confidence: freshResearchConfidence,
		Provider:   retrieval.SourceResearch,
		Sources:    []Source{{Type: retrieval.SourceResearch, Ref: rec.SubjectKey}},
	}, true
}

// persistResearch upserts the research record for a completed
// company-research response. Persistence failure is logged and
// swallowed: the caller already has their answer.
func (a *Agent) persistResearch(ctx context.Context, input map[string]any, resp Response) {
	subject, _ := input["companyName"].(string)
	if subject == "" {
		return
	}
	summary, _ := resp.Output["summary"].(string)
	if summary == "" {
		return
	}

	if _, err := a.research.Upsert(ctx, research.Record{
		Subject: subject,
		Summary: summary,
		Facts:   resp.Output,
	}); err != nil {
		a.logger.Warn("failed to persist research record", "subject", subject, "error", err)
	}
}

// retrievalQuery builds the retrieval query from the task title and
// the request's string inputs, in field-name order so identical
// inputs always query identically.
func retrievalQuery(desc *task.Descriptor, input map[string]any) string {
	keys := make([]string, 0, len(input))
	for k := range input {
		if _, ok := input[k].(string); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, desc.Title)
	for _, k := range keys {
		parts = append(parts, input[k].(string))
	}
	return strings.Join(parts, " ")
}

func sourcesFrom(snippets []retrieval.Snippet) []Source {
	if len(snippets) == 0 {
		return nil
	}
	sources := make([]Source, 0, len(snippets))
	for _, s := range snippets {
		sources = append(sources, Source{Type: s.Source, Ref: s.Ref})
	}
	return sources
}
