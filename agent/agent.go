// Tool-use loop implementation.
//
// Information Hiding:
// - Loop states and transitions hidden
// - Provider chain communication hidden
// - Tool execution coordination hidden
// - Forced final call and answer synthesis hidden

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/model"
	"github.com/richinex/querygate/tools"
)

// Coordinator runs the Requesting / ToolPending loop for one query at a
// time. It holds no per-run state and is safe for concurrent use.
type Coordinator struct {
	config   Config
	invoker  Invoker
	registry *tools.Registry
	executor *tools.Executor
}

// New creates a coordinator. registry may be nil when no tools exist.
func New(config Config, invoker Invoker, registry *tools.Registry) *Coordinator {
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return &Coordinator{
		config:   config.withDefaults(),
		invoker:  invoker,
		registry: registry,
		executor: tools.NewDefaultExecutor(),
	}
}

// WithToolConfig overrides the tool execution configuration.
func (c *Coordinator) WithToolConfig(config tools.ToolConfig) *Coordinator {
	c.executor = tools.NewExecutor(config)
	return c
}

// MaxIterations returns the tool call bound.
func (c *Coordinator) MaxIterations() int {
	return c.config.MaxIterations
}

// ToolTimeout returns the bound on a single tool execution.
func (c *Coordinator) ToolTimeout() time.Duration {
	return c.executor.Timeout()
}

// Run drives the loop to Done or Failed. Any provider chain failure is
// returned as an error; tool failures are fed back to the model.
func (c *Coordinator) Run(ctx context.Context, in Input) (Output, error) {
	var out Output
	maxIterations := c.config.MaxIterations

	basePrompt := c.systemPrompt(in.Context)
	conversation := make([]llm.ChatMessage, 0, len(in.History)+2*maxIterations+1)
	conversation = append(conversation, in.History...)
	conversation = append(conversation, llm.UserMessage(in.Question))

	var defs []llm.ToolDefinition
	if in.AllowWebSearch {
		defs = c.registry.Definitions()
	}

	state := StateRequesting
	var pending llm.ToolRequest

	for {
		switch state {
		case StateRequesting:
			forced := out.ToolCallCount >= maxIterations
			prompt, history, offered := basePrompt, conversation, defs
			if forced {
				out.Forced = true
				prompt = basePrompt + "\n\n" + c.config.ClosingInstruction
				history = flattenToolTurns(conversation)
				offered = nil
			}

			res, err := c.invoker.Invoke(ctx, prompt, history, offered)
			out.Trace = append(out.Trace, res.Trace...)
			if err != nil {
				state = StateFailed
				log.Warn().Int("tool_calls", out.ToolCallCount).Err(err).Msg("tool loop failed")
				return out, fmt.Errorf("tool loop: %w", err)
			}
			out.LLMCalls++
			out.ProviderUsed = res.Provider

			switch r := res.Response.(type) {
			case llm.Answer:
				out.addUsage(r.Usage)
				out.FinalAnswer = r.Text
				state = StateDone
			case llm.ToolRequest:
				out.addUsage(r.Usage)
				if forced {
					log.Debug().Str("provider", res.Provider).Msg("tool requested after tools were withdrawn, synthesizing answer")
					out.FinalAnswer = synthesizeAnswer(out.Results)
					state = StateDone
					break
				}
				pending = r
				state = StateToolPending
			default:
				state = StateFailed
				return out, fmt.Errorf("tool loop: unexpected response type %T", res.Response)
			}
			log.Debug().Str("state", state.String()).Str("provider", res.Provider).Int("tool_calls", out.ToolCallCount).Msg("loop transition")

		case StateToolPending:
			call, result, content := c.executeTool(ctx, pending, in.AllowWebSearch, out.ToolCallCount+1)
			conversation = append(conversation,
				llm.ToolCallMessage(llm.ToolRequest{ID: call.ID, Name: pending.Name, Args: pending.Args, Text: pending.Text}),
				llm.ToolResultMessage(call.ID, pending.Name, content),
			)
			out.Calls = append(out.Calls, call)
			out.Results = append(out.Results, result)
			out.ToolCallCount++
			state = StateRequesting

		case StateDone:
			out.WebSearchUsed = out.ToolCallCount > 0
			return out, nil

		default:
			return out, fmt.Errorf("tool loop: invalid state %s", state)
		}
	}
}

// executeTool runs a requested tool and returns the call record, the
// result, and the content shown to the model.
func (c *Coordinator) executeTool(ctx context.Context, req llm.ToolRequest, allowed bool, iteration int) (model.ToolCall, model.ToolResult, string) {
	id := req.ID
	if id == "" {
		id = fmt.Sprintf("call_%d", iteration)
	}
	query, parseErr := tools.ParseQuery(req.Args)
	call := model.ToolCall{ID: id, Name: req.Name, Query: query, Iteration: iteration}
	result := model.ToolResult{CallID: id, Results: []model.SearchResult{}}

	tool, exists := c.registry.Get(req.Name)
	switch {
	case !allowed:
		result.Error = "web search is not allowed for this query"
	case !exists || req.Name != model.WebSearchToolName:
		result.Error = fmt.Sprintf("tool '%s' not found", req.Name)
	case parseErr != nil:
		result.Error = parseErr.Error()
	}
	if result.Failed() {
		toolCallsTotal.WithLabelValues("rejected").Inc()
		log.Warn().Str("tool", req.Name).Str("reason", result.Error).Msg("tool request rejected")
		return call, result, errorContent(result.Error)
	}

	start := time.Now()
	tr := c.executor.Run(ctx, tool, req.Args)
	elapsed := time.Since(start)

	if !tr.Success() {
		result.Error = tr.Error.Error()
		toolCallsTotal.WithLabelValues("error").Inc()
		log.Warn().Str("tool", req.Name).Str("query", query).Dur("elapsed", elapsed).Err(tr.Error).Msg("tool call failed")
		return call, result, errorContent(result.Error)
	}

	if tr.Results != nil {
		result.Results = tr.Results
	}
	toolCallsTotal.WithLabelValues("success").Inc()
	log.Info().Str("tool", req.Name).Str("query", query).Int("results", len(result.Results)).Dur("elapsed", elapsed).Msg("tool call completed")
	return call, result, tr.Output
}

func (c *Coordinator) systemPrompt(documents string) string {
	var sb strings.Builder
	sb.WriteString(c.config.SystemPrompt)
	if strings.TrimSpace(documents) == "" {
		sb.WriteString("\n\nNo documents were provided.")
		return sb.String()
	}
	sb.WriteString("\n\nDocuments:\n\n")
	sb.WriteString(documents)
	return sb.String()
}

func errorContent(msg string) string {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return string(out)
}

// flattenToolTurns rewrites tool calls and tool results as plain text so
// the history can be sent without tool definitions.
func flattenToolTurns(history []llm.ChatMessage) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		switch {
		case m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0:
			var sb strings.Builder
			if m.Content != "" {
				sb.WriteString(m.Content)
				sb.WriteString("\n")
			}
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&sb, "[called %s with %s]", tc.Name, string(tc.Arguments))
			}
			out = append(out, llm.AssistantMessage(sb.String()))
		case m.Role == llm.RoleTool:
			out = append(out, llm.UserMessage(fmt.Sprintf("[result of %s]\n%s", m.ToolName, m.Content)))
		default:
			out = append(out, m)
		}
	}
	return out
}

// synthesizeAnswer builds a non-empty answer from gathered search
// results when the model will not stop calling tools.
func synthesizeAnswer(results []model.ToolResult) string {
	var sb strings.Builder
	n := 0
	for _, r := range results {
		for _, hit := range r.Results {
			if n == 0 {
				sb.WriteString("I could not compose a final answer. These search results were gathered:\n")
			}
			n++
			fmt.Fprintf(&sb, "\n%d. %s (%s)", n, hit.Title, hit.URL)
			if hit.Snippet != "" {
				fmt.Fprintf(&sb, "\n   %s", hit.Snippet)
			}
		}
	}
	if n == 0 {
		return fmt.Sprintf("I could not find an answer after %d searches.", len(results))
	}
	return sb.String()
}
