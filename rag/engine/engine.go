package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/docsage/docsage/graph"
	"github.com/docsage/docsage/history"
	"github.com/docsage/docsage/llm"
	"github.com/docsage/docsage/pkg/logging"
)

const sessionStateKey = "__engine_session"

// retrieveConcurrency caps how many sub-queries are searched in parallel
// within one round.
const retrieveConcurrency = 4

// Clients groups the generation clients used by the engine stages. Stage
// clients fall back to Default when unset.
type Clients struct {
	Default     llm.Client
	Planner     llm.Client
	Synthesizer llm.Client
	Reflector   llm.Client
}

// Engine answers questions against a document corpus by looping
// plan -> retrieve -> synthesize -> reflect until the draft is judged good
// enough or the round cap is reached. One Ask call is one session; sessions
// share no mutable state and may run concurrently.
type Engine struct {
	cfg       *Config
	planner   *planner
	writer    *synthesizer
	reflector *reflector
	retriever Retriever
	graph     *graph.Graph
	logger    *slog.Logger
	tracer    trace.Tracer
}

// session carries the per-question state threaded through the graph. It is
// owned by exactly one Ask call and released when that call returns.
type session struct {
	id         string
	question   string
	round      int
	pending    []SubQuery
	pool       *evidencePool
	draft      *Draft
	assessment *Assessment
}

// New creates a fully wired answering engine.
func New(clients Clients, retriever Retriever, opts ...Option) (*Engine, error) {
	cfg := applyOptions(nil, opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}

	writerLLM := pickClient(clients.Synthesizer, clients.Default)
	if writerLLM == nil {
		return nil, fmt.Errorf("synthesizer client is required")
	}

	logger := logging.WithComponent("engine").With("engine", cfg.Name)
	e := &Engine{
		cfg:       cfg,
		planner:   newPlanner(pickClient(clients.Planner, clients.Default), cfg, logger),
		writer:    newSynthesizer(writerLLM, cfg, logger),
		reflector: newReflector(pickClient(clients.Reflector, clients.Default), cfg, logger),
		retriever: retriever,
		logger:    logger,
		tracer:    otel.Tracer("docsage/rag/engine"),
	}

	maxVisits := cfg.GraphMaxVisits
	if maxVisits <= 0 {
		// retrieve/synthesize/reflect each run once per round
		maxVisits = cfg.MaxRounds + 2
	}

	e.graph = graph.NewBuilder().
		AddNode("start", graph.NodeTypeStart, e.startNode).
		AddNode("plan", graph.NodeTypeLLM, e.planNode).
		AddNode("retrieve", graph.NodeTypeTool, e.retrieveNode).
		AddNode("synthesize", graph.NodeTypeLLM, e.synthesizeNode).
		AddNode("reflect", graph.NodeTypeLLM, e.reflectNode).
		AddConditionNode("refine_gate", e.refineGate, map[string]string{
			"refine": "refine",
			"done":   "end",
		}).
		AddNode("refine", graph.NodeTypeCustom, e.refineNode).
		AddNode("end", graph.NodeTypeEnd, e.endNode).
		AddEdge("start", "plan").
		AddEdge("plan", "retrieve").
		AddEdge("retrieve", "synthesize").
		AddEdge("synthesize", "reflect").
		AddEdge("reflect", "refine_gate").
		AddEdge("refine", "retrieve").
		SetStart("start").
		SetMaxVisits(maxVisits).
		Build()

	e.logger.Info("engine initialised",
		"max_rounds", cfg.MaxRounds,
		"confidence_threshold", cfg.ConfidenceThreshold,
		"retrieval_k", cfg.RetrievalK,
		"context_chunk_budget", cfg.ContextChunkBudget,
	)
	return e, nil
}

func pickClient(primary, fallback llm.Client) llm.Client {
	if primary != nil {
		return primary
	}
	return fallback
}

// Ask runs one full answering session for the question.
func (e *Engine) Ask(ctx context.Context, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	ctx, span := e.tracer.Start(ctx, "engine.ask",
		trace.WithAttributes(attribute.String("engine.name", e.cfg.Name)))
	defer span.End()

	sess := &session{
		id:       uuid.NewString(),
		question: question,
		pool:     newEvidencePool(),
	}
	e.logger.Info("session started", "session", sess.id, "question", trimForLog(question, 120))

	if _, err := e.graph.Execute(ctx, graph.State{sessionStateKey: sess}); err != nil {
		span.RecordError(err)
		e.logger.Error("session failed", "session", sess.id, "error", err)
		return nil, err
	}

	confidence := 0.0
	if sess.assessment != nil {
		confidence = sess.assessment.Confidence
	}
	result := &Result{
		Answer:          sess.draft.Text,
		Sources:         sess.pool.sources(),
		RoundsUsed:      sess.round,
		FinalConfidence: confidence,
	}
	span.SetAttributes(
		attribute.Int("engine.rounds_used", result.RoundsUsed),
		attribute.Int("engine.sources", len(result.Sources)),
		attribute.Float64("engine.confidence", result.FinalConfidence),
	)
	e.logger.Info("session completed",
		"session", sess.id,
		"rounds_used", result.RoundsUsed,
		"sources", len(result.Sources),
		"confidence", result.FinalConfidence,
	)

	e.archive(ctx, sess, result)
	return result, nil
}

// archive saves the completed session when a history store is configured.
// Failures are logged and never surface to the caller.
func (e *Engine) archive(ctx context.Context, sess *session, result *Result) {
	if e.cfg.history == nil {
		return
	}
	rec := &history.Record{
		ID:         sess.id,
		Question:   sess.question,
		Answer:     result.Answer,
		Sources:    result.Sources,
		RoundsUsed: result.RoundsUsed,
		Confidence: result.FinalConfidence,
		CreatedAt:  time.Now(),
	}
	if err := e.cfg.history.Save(ctx, rec); err != nil {
		e.logger.Warn("session archive failed", "session", sess.id, "error", err)
	}
}

func (e *Engine) startNode(ctx context.Context, state graph.State) (graph.State, error) {
	_, err := getSession(state)
	return state, err
}

func (e *Engine) planNode(ctx context.Context, state graph.State) (graph.State, error) {
	sess, err := getSession(state)
	if err != nil {
		return state, err
	}
	sess.pending = e.planner.Plan(ctx, sess.question)
	e.logger.Debug("plan ready", "session", sess.id, "sub_queries", len(sess.pending))
	return state, nil
}

func (e *Engine) retrieveNode(ctx context.Context, state graph.State) (graph.State, error) {
	sess, err := getSession(state)
	if err != nil {
		return state, err
	}

	queries := sess.pending
	sess.pending = nil

	// Sub-queries are independent read-only searches, so they fan out
	// concurrently; results land in per-query slots and merge in query
	// order to keep the pool deterministic. A failed sub-query leaves its
	// slot empty without cancelling siblings.
	results := make([][]SearchHit, len(queries))
	var g errgroup.Group
	g.SetLimit(retrieveConcurrency)
	for i, sq := range queries {
		g.Go(func() error {
			hits, err := e.searchWithRetry(ctx, sq.Text)
			if err != nil {
				e.logger.Warn("sub-query retrieval failed",
					"session", sess.id,
					"query", trimForLog(sq.Text, 80),
					"error", err,
				)
				return nil
			}
			results[i] = hits
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return state, err
	}

	added := 0
	for i, hits := range results {
		for _, hit := range hits {
			chunk := RetrievedChunk{
				Text:   hit.Text,
				Source: hit.Source,
				Score:  hit.Score,
				Round:  sess.round,
				Query:  queries[i].Text,
			}
			if sess.pool.add(chunk) {
				added++
			}
		}
	}
	e.logger.Debug("retrieval merged",
		"session", sess.id,
		"round", sess.round,
		"new_chunks", added,
		"pool_size", sess.pool.size(),
	)
	return state, nil
}

// searchWithRetry retries a failed search once. Empty results are valid and
// never retried.
func (e *Engine) searchWithRetry(ctx context.Context, query string) ([]SearchHit, error) {
	hits, err := e.retriever.Search(ctx, query, e.cfg.RetrievalK)
	if err == nil {
		return hits, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return e.retriever.Search(ctx, query, e.cfg.RetrievalK)
}

func (e *Engine) synthesizeNode(ctx context.Context, state graph.State) (graph.State, error) {
	sess, err := getSession(state)
	if err != nil {
		return state, err
	}

	if sess.pool.size() == 0 {
		sess.draft = &Draft{Text: e.cfg.NoAnswerMessage, Round: sess.round}
		e.logger.Warn("no evidence pooled, emitting fallback answer", "session", sess.id, "round", sess.round)
		return state, nil
	}

	draft, err := e.writer.Compose(ctx, sess.question, sess.pool.snapshot(), sess.round)
	if err != nil {
		return state, err
	}
	sess.draft = draft
	e.logger.Debug("draft composed",
		"session", sess.id,
		"round", sess.round,
		"draft_length", len(draft.Text),
		"cited_sources", len(draft.Sources),
	)
	return state, nil
}

func (e *Engine) reflectNode(ctx context.Context, state graph.State) (graph.State, error) {
	sess, err := getSession(state)
	if err != nil {
		return state, err
	}

	if sess.pool.size() == 0 {
		// Nothing retrieved in any round so far; reflection cannot spawn
		// useful follow-up searches, so the session completes with the
		// fallback answer.
		sess.assessment = &Assessment{Complete: true, Confidence: 0}
		return state, nil
	}

	sess.assessment = e.reflector.Assess(ctx, sess.question, sess.draft)
	e.logger.Debug("draft assessed",
		"session", sess.id,
		"round", sess.round,
		"complete", sess.assessment.Complete,
		"confidence", sess.assessment.Confidence,
		"missing_aspects", len(sess.assessment.MissingAspects),
	)
	return state, nil
}

func (e *Engine) refineGate(ctx context.Context, state graph.State) (string, error) {
	sess, err := getSession(state)
	if err != nil {
		return "", err
	}
	if sess.assessment != nil && sess.assessment.NeedsRefinement && sess.round < e.cfg.MaxRounds {
		return "refine", nil
	}
	return "done", nil
}

func (e *Engine) refineNode(ctx context.Context, state graph.State) (graph.State, error) {
	sess, err := getSession(state)
	if err != nil {
		return state, err
	}

	sess.round++
	aspects := sess.assessment.MissingAspects
	if len(aspects) == 0 {
		// Low confidence without named gaps: retry the original question.
		sess.pending = []SubQuery{{Text: sess.question, Rationale: "low-confidence draft"}}
	} else {
		sess.pending = make([]SubQuery, 0, len(aspects))
		for _, aspect := range aspects {
			sess.pending = append(sess.pending, SubQuery{
				Text:      aspect,
				Rationale: "missing aspect flagged during reflection",
			})
		}
	}
	e.logger.Info("refinement round started",
		"session", sess.id,
		"round", sess.round,
		"sub_queries", len(sess.pending),
	)
	return state, nil
}

func (e *Engine) endNode(ctx context.Context, state graph.State) (graph.State, error) {
	_, err := getSession(state)
	return state, err
}

func getSession(state graph.State) (*session, error) {
	raw, ok := state[sessionStateKey]
	if !ok {
		return nil, fmt.Errorf("session missing in graph state")
	}
	sess, ok := raw.(*session)
	if !ok {
		return nil, fmt.Errorf("invalid session state type")
	}
	return sess, nil
}
