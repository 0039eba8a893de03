package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/phuslu/log"

	"github.com/richinex/querygate/model"
	"github.com/richinex/querygate/storage"
	"github.com/richinex/querygate/tools"
)

// searchHit is one result of the search tool.
type searchHit struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
	URL   string `json:"url"`
}

type searchResults struct {
	Results []searchHit `json:"results"`
}

// fetchedDocument is the result of the fetch tool.
type fetchedDocument struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Text     string         `json:"text"`
	URL      string         `json:"url"`
	Metadata map[string]any `json:"metadata"`
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
	}, nil
}

func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf(format, args...))},
		IsError: true,
	}
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	empty := searchResults{Results: []searchHit{}}
	if strings.TrimSpace(query) == "" {
		return jsonResult(empty)
	}

	limit := request.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	docs, err := s.docs.FetchCandidates(ctx, s.scope, nil)
	if err != nil {
		log.Error().Str("scope", s.scope).Err(err).Msg("mcp search failed")
		return jsonResult(empty)
	}

	out := empty
	for _, rd := range s.ranker.Rank(query, docs) {
		if rd.Score <= 0 || len(out.Results) == limit {
			break
		}
		out.Results = append(out.Results, searchHit{
			ID:    rd.Document.ID,
			Title: rd.Document.Title,
			Text:  tools.Truncate(documentText(rd.Document), tools.SnippetLimit),
			URL:   s.urlFor(rd.Document.ID),
		})
	}
	log.Info().Str("query", query).Int("results", len(out.Results)).Msg("mcp search")
	return jsonResult(out)
}

func (s *Server) handleFetch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil || strings.TrimSpace(id) == "" {
		return errorResult("Error: id parameter is required"), nil
	}

	doc, err := s.docs.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && s.scope != "" && doc.OwnerScope != s.scope) {
		return errorResult("Document not found: %s", id), nil
	}
	if err != nil {
		log.Error().Str("doc_id", id).Err(err).Msg("mcp fetch failed")
		return errorResult("Error retrieving document %s: %v", id, err), nil
	}

	return jsonResult(fetchedDocument{
		ID:       doc.ID,
		Title:    doc.Title,
		Text:     documentText(doc),
		URL:      s.urlFor(doc.ID),
		Metadata: metadata(doc),
	})
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return errorResult("Error: query parameter is required"), nil
	}

	docs, err := s.docs.FetchCandidates(ctx, s.scope, nil)
	if err != nil {
		log.Error().Str("scope", s.scope).Err(err).Msg("mcp ask: fetch candidates failed")
		return errorResult("Error: document store unavailable"), nil
	}

	req := model.QueryRequest{
		Text:               query,
		CandidateDocuments: docs,
		ConversationID:     request.GetString("conversation_id", ""),
		AllowWebSearch:     request.GetBool("allow_web_search", false),
	}
	if s.history != nil && req.ConversationID != "" {
		req.History, err = s.history.Load(ctx, req.ConversationID)
		if err != nil {
			log.Error().Str("conversation_id", req.ConversationID).Err(err).Msg("mcp ask: load history failed")
			return errorResult("Error: conversation store unavailable"), nil
		}
	}

	res, err := s.querier.Handle(ctx, req)
	if err != nil {
		return errorResult("Error: %v", err), nil
	}
	if s.history != nil {
		if err := storage.AppendExchange(ctx, s.history, res.Turn.ConversationID, query, res.Answer); err != nil {
			log.Warn().Str("conversation_id", res.Turn.ConversationID).Err(err).Msg("mcp ask: save history failed")
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(res.Answer)},
	}, nil
}

// documentText is the body, falling back to the summary.
func documentText(doc model.Document) string {
	switch {
	case doc.Body != "":
		return doc.Body
	case doc.Summary != "":
		return doc.Summary
	default:
		return "No content available"
	}
}

func metadata(doc model.Document) map[string]any {
	md := map[string]any{}
	if doc.OwnerScope != "" {
		md["owner_scope"] = doc.OwnerScope
	}
	if len(doc.Tags) > 0 {
		md["tags"] = doc.Tags
	}
	if doc.Summary != "" {
		md["summary"] = doc.Summary
	}
	if !doc.CreatedAt.IsZero() {
		md["created_at"] = doc.CreatedAt.UTC().Format(time.RFC3339)
	}
	if len(md) == 0 {
		return nil
	}
	return md
}
