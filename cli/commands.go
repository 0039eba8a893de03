// Command execution for CLI commands.
//
// Information Hiding:
// - Request assembly from flags and stored documents
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/phuslu/log"

	"github.com/richinex/querygate/config"
	"github.com/richinex/querygate/llm"
	"github.com/richinex/querygate/mcpserver"
	"github.com/richinex/querygate/model"
	"github.com/richinex/querygate/server"
	"github.com/richinex/querygate/storage"
)

// AskOptions holds the flags of a one-shot query.
type AskOptions struct {
	ConversationID string
	Scope          string
	DocumentIDs    []string
	DocumentsFile  string
	AllowWebSearch bool
	TokenBudget    int
	ShowTrace      bool
}

// Serve runs the HTTP API until ctx is done.
func Serve(ctx context.Context, app *App) error {
	sc := app.Settings.Server
	srv := server.New(app.Engine,
		server.WithDocuments(app.Documents),
		server.WithHistory(app.History),
		server.WithAllowedOrigins(sc.AllowedOrigins),
	)
	return srv.Run(ctx, sc.Addr, sc.ShutdownTimeout.Duration)
}

// ServeMCP serves the MCP tools over stdio until the client disconnects.
func ServeMCP(app *App, scope string) error {
	log.Info().Str("scope", scope).Msg("serving mcp over stdio")
	return mcpserver.New(app.Documents, app.Engine,
		mcpserver.WithScope(scope),
		mcpserver.WithHistory(app.History),
	).ServeStdio()
}

// Ask answers one query and writes the answer to out.
func Ask(ctx context.Context, app *App, query string, opts AskOptions, out io.Writer) error {
	docs := []model.Document{}
	if opts.DocumentsFile != "" {
		loaded, err := readDocuments(opts.DocumentsFile)
		if err != nil {
			return err
		}
		docs = append(docs, loaded...)
	}
	if opts.Scope != "" || len(opts.DocumentIDs) > 0 {
		stored, err := app.Documents.FetchCandidates(ctx, opts.Scope, opts.DocumentIDs)
		if err != nil {
			return fmt.Errorf("failed to fetch documents: %w", err)
		}
		docs = append(docs, stored...)
	}

	var history []llm.ChatMessage
	if opts.ConversationID != "" {
		var err error
		history, err = app.History.Load(ctx, opts.ConversationID)
		if err != nil {
			return fmt.Errorf("failed to load history: %w", err)
		}
	}

	res, err := app.Engine.Handle(ctx, model.QueryRequest{
		Text:               query,
		CandidateDocuments: docs,
		ConversationID:     opts.ConversationID,
		AllowWebSearch:     opts.AllowWebSearch,
		TokenBudget:        opts.TokenBudget,
		History:            history,
	})
	if opts.ShowTrace {
		printTrace(out, res.Trace)
	}
	if err != nil {
		return err
	}

	if err := storage.AppendExchange(ctx, app.History, res.Turn.ConversationID, query, res.Answer); err != nil {
		log.Warn().Str("conversation_id", res.Turn.ConversationID).Err(err).Msg("failed to save history")
	}

	fmt.Fprintf(out, "%s\n\n", res.Answer)
	fmt.Fprintf(out, "(provider %s, %d documents, %d tool calls, conversation %s)\n",
		res.Turn.ProviderUsed, res.Turn.DocumentsUsedCount, res.Turn.ToolCallCount, res.Turn.ConversationID)
	return nil
}

// Ingest stores the documents of a JSON file and returns how many were stored.
// scope, when set, overrides each document's owner scope.
func Ingest(ctx context.Context, store storage.DocumentStore, path, scope string) (int, error) {
	docs, err := readDocuments(path)
	if err != nil {
		return 0, err
	}
	for i, doc := range docs {
		if scope != "" {
			doc.OwnerScope = scope
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = time.Now().UTC()
		}
		if err := store.PutDocument(ctx, doc); err != nil {
			return i, fmt.Errorf("failed to store document %s: %w", doc.ID, err)
		}
	}
	return len(docs), nil
}

// ListProviders writes the configured chain in fallback order.
func ListProviders(settings config.Settings, out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tID\tTYPE\tMODEL\tTIMEOUT\tKEY")
	for i, pc := range settings.Providers {
		providerType, err := llm.ParseProviderType(pc.Type)
		if err != nil {
			fmt.Fprintf(w, "%d\t%s\t%s\t-\t-\tinvalid\n", i+1, pc.Name(), pc.Type)
			continue
		}
		modelName := pc.Model
		if modelName == "" {
			modelName = providerType.DefaultModel()
		}
		timeout := "none"
		if pc.Timeout.Duration > 0 {
			timeout = pc.Timeout.Duration.String()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, pc.Name(), providerType, modelName, timeout, keyStatus(providerType))
	}
	_ = w.Flush()
}

func keyStatus(p llm.ProviderType) string {
	if !p.NeedsAPIKey() {
		return "not required"
	}
	if os.Getenv(p.EnvVar()) == "" {
		return p.EnvVar() + " missing"
	}
	return "set"
}

func printTrace(out io.Writer, trace model.Trace) {
	if len(trace) == 0 {
		return
	}
	fmt.Fprintln(out, "--- Trace ---")
	for i, a := range trace {
		line := fmt.Sprintf("[%d] %s %s %dms", i+1, a.ProviderID, a.Outcome, a.LatencyMs)
		if a.Err != "" {
			line += ": " + truncateString(a.Err, maxTraceErrLen)
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, "-------------")
	fmt.Fprintln(out)
}

func readDocuments(path string) ([]model.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	var docs []model.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse documents %s: %w", path, err)
	}
	for i, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" {
			return nil, fmt.Errorf("document %d in %s has no id", i, path)
		}
	}
	return docs, nil
}

const maxTraceErrLen = 200

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
