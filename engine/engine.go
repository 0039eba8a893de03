// Package engine answers one query end to end: rank, assemble, then run
// the tool-use loop over the provider chain.
//
// Information Hiding:
// - Stage ordering and the overall deadline
// - Conversation turn construction
// - Best-effort recording of completed turns
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/richinex/querygate/agent"
	"github.com/richinex/querygate/failover"
	"github.com/richinex/querygate/model"
	"github.com/richinex/querygate/retrieval"
)

// ErrInvalidInput is returned for a blank query, before any provider call.
var ErrInvalidInput = errors.New("invalid input: query text is required")

var tracer = otel.Tracer("github.com/richinex/querygate/engine")

// Recorder persists completed turns.
type Recorder interface {
	Record(ctx context.Context, turn model.ConversationTurn) error
}

// Chain reports the worst-case duration of one provider chain walk.
// *failover.Controller implements it.
type Chain interface {
	ChainTimeout() (time.Duration, bool)
}

// Result is a successful answer.
type Result struct {
	Answer  string                 `json:"answer"`
	Turn    model.ConversationTurn `json:"turn"`
	Trace   model.Trace            `json:"trace"`
	Context model.AssembledContext `json:"-"`
	Calls   []model.ToolCall       `json:"tool_calls,omitempty"`
}

// Engine is stateless between requests and safe for concurrent use.
type Engine struct {
	loop      *agent.Coordinator
	chain     Chain
	ranker    *retrieval.Ranker
	assembler *retrieval.Assembler
	recorder  Recorder
	deadline  time.Duration
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder sets the turn recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithRanker overrides the ranking options.
func WithRanker(r *retrieval.Ranker) Option {
	return func(e *Engine) {
		e.ranker = r
	}
}

// WithAssembler overrides the assembly options.
func WithAssembler(a *retrieval.Assembler) Option {
	return func(e *Engine) {
		e.assembler = a
	}
}

// WithDeadline replaces the computed overall deadline. Zero disables it.
func WithDeadline(d time.Duration) Option {
	return func(e *Engine) {
		e.deadline = d
	}
}

// New creates an engine. chain may be nil, in which case no overall
// deadline is derived.
func New(loop *agent.Coordinator, chain Chain, opts ...Option) *Engine {
	e := &Engine{
		loop:      loop,
		chain:     chain,
		ranker:    retrieval.NewRanker(retrieval.DefaultRankerOptions()),
		assembler: retrieval.NewAssembler(retrieval.AssemblerOptions{}),
		now:       time.Now,
		deadline:  -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.deadline < 0 {
		e.deadline = OverallDeadline(chain, loop.MaxIterations(), loop.ToolTimeout())
	}
	return e
}

// OverallDeadline is (maxIterations+1) chain walks plus maxIterations tool
// calls. It returns zero, meaning no deadline, when any provider timeout
// is unbounded.
func OverallDeadline(chain Chain, maxIterations int, toolTimeout time.Duration) time.Duration {
	if chain == nil {
		return 0
	}
	walk, bounded := chain.ChainTimeout()
	if !bounded {
		return 0
	}
	return time.Duration(maxIterations+1)*walk + time.Duration(maxIterations)*toolTimeout
}

// Deadline returns the overall deadline applied to Handle, or zero.
func (e *Engine) Deadline() time.Duration {
	return e.deadline
}

// Handle answers req. Provider exhaustion is returned wrapping
// failover.ErrProviderExhausted with the full attempt trace in Result.
func (e *Engine) Handle(ctx context.Context, req model.QueryRequest) (Result, error) {
	if req.Blank() {
		return Result{}, ErrInvalidInput
	}

	ctx, span := tracer.Start(ctx, "engine.handle")
	defer span.End()

	if e.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.deadline)
		defer cancel()
	}

	start := e.now()
	ranked := e.ranker.Rank(req.Text, req.CandidateDocuments)
	assembled := e.assembler.Assemble(ranked, req.Budget())
	span.SetAttributes(
		attribute.Int("querygate.candidates", len(req.CandidateDocuments)),
		attribute.Int("querygate.documents_used", len(assembled.Selected)),
		attribute.Int("querygate.context_tokens", assembled.EstimatedTokens),
	)

	out, err := e.loop.Run(ctx, agent.Input{
		Question:       req.Text,
		Context:        assembled.SerializedText,
		History:        req.History,
		AllowWebSearch: req.AllowWebSearch,
	})
	if err != nil {
		log.Error().Str("conversation_id", req.ConversationID).Int("attempts", len(out.Trace)).Err(err).Msg("query failed")
		return Result{Trace: out.Trace, Context: assembled}, fmt.Errorf("handle query: %w", err)
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	turn := model.ConversationTurn{
		ConversationID:     conversationID,
		Query:              req.Text,
		FinalAnswer:        out.FinalAnswer,
		DocumentsUsedCount: len(assembled.Selected),
		ProviderUsed:       out.ProviderUsed,
		WebSearchUsed:      out.WebSearchUsed,
		ToolCallCount:      out.ToolCallCount,
		CreatedAt:          e.now().UTC(),
	}

	if e.recorder != nil {
		if err := e.recorder.Record(ctx, turn); err != nil {
			log.Warn().Str("conversation_id", conversationID).Err(err).Msg("failed to record turn")
		}
	}

	log.Info().
		Str("conversation_id", conversationID).
		Str("provider", out.ProviderUsed).
		Int("documents_used", turn.DocumentsUsedCount).
		Int("tool_calls", out.ToolCallCount).
		Int("attempts", len(out.Trace)).
		Dur("elapsed", e.now().Sub(start)).
		Msg("query answered")

	return Result{
		Answer:  out.FinalAnswer,
		Turn:    turn,
		Trace:   out.Trace,
		Context: assembled,
		Calls:   out.Calls,
	}, nil
}

var _ Chain = (*failover.Controller)(nil)
