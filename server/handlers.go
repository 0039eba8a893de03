package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/phuslu/log"

	"github.com/richinex/querygate/engine"
	"github.com/richinex/querygate/failover"
	"github.com/richinex/querygate/model"
	"github.com/richinex/querygate/storage"
)

// maxBodyBytes bounds a query request body.
const maxBodyBytes = 1 << 20

// queryBody is the POST /api/query request.
type queryBody struct {
	Query          string           `json:"query"`
	ConversationID string           `json:"conversation_id"`
	OwnerScope     string           `json:"owner_scope"`
	DocumentIDs    []string         `json:"document_ids"`
	Documents      []model.Document `json:"documents"`
	AllowWebSearch bool             `json:"allow_web_search"`
	TokenBudget    int              `json:"token_budget"`
}

// usedDocument identifies a document that made it into the prompt.
type usedDocument struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

type queryResponse struct {
	Answer        string                 `json:"answer"`
	Turn          model.ConversationTurn `json:"turn"`
	Trace         model.Trace            `json:"trace"`
	DocumentsUsed []usedDocument         `json:"documents_used"`
	ToolCalls     []model.ToolCall       `json:"tool_calls,omitempty"`
}

type errorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message,omitempty"`
	Trace   model.Trace `json:"trace,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body queryBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "invalid request body"})
		return
	}

	req := model.QueryRequest{
		Text:               body.Query,
		CandidateDocuments: body.Documents,
		ConversationID:     body.ConversationID,
		AllowWebSearch:     body.AllowWebSearch,
		TokenBudget:        body.TokenBudget,
	}
	if req.Blank() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: engine.ErrInvalidInput.Error()})
		return
	}

	if s.docs != nil && (body.OwnerScope != "" || len(body.DocumentIDs) > 0) {
		stored, err := s.docs.FetchCandidates(ctx, body.OwnerScope, body.DocumentIDs)
		if err != nil {
			log.Error().Str("owner_scope", body.OwnerScope).Err(err).Msg("failed to fetch candidates")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "document store unavailable"})
			return
		}
		req.CandidateDocuments = append(append([]model.Document{}, req.CandidateDocuments...), stored...)
	}

	if s.history != nil && body.ConversationID != "" {
		history, err := s.history.Load(ctx, body.ConversationID)
		if err != nil {
			log.Error().Str("conversation_id", body.ConversationID).Err(err).Msg("failed to load history")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "conversation store unavailable"})
			return
		}
		req.History = history
	}

	res, err := s.querier.Handle(ctx, req)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_input", Message: err.Error()})
		return
	case errors.Is(err, failover.ErrProviderExhausted):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "provider_exhausted", Message: err.Error(), Trace: res.Trace})
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "deadline_exceeded", Message: err.Error(), Trace: res.Trace})
		return
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: err.Error(), Trace: res.Trace})
		return
	}

	if s.history != nil {
		if err := storage.AppendExchange(ctx, s.history, res.Turn.ConversationID, req.Text, res.Answer); err != nil {
			log.Warn().Str("conversation_id", res.Turn.ConversationID).Err(err).Msg("failed to save history")
		}
	}

	used := make([]usedDocument, 0, len(res.Context.Selected))
	for _, rd := range res.Context.Selected {
		used = append(used, usedDocument{ID: rd.Document.ID, Title: rd.Document.Title, Score: rd.Score, Rank: rd.Rank})
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:        res.Answer,
		Turn:          res.Turn,
		Trace:         res.Trace,
		DocumentsUsed: used,
		ToolCalls:     res.Calls,
	})
}
