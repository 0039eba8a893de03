package model

import (
	"strings"

	"github.com/richinex/querygate/llm"
)

// DefaultTokenBudget applies when a request leaves TokenBudget at zero.
const DefaultTokenBudget = 4000

// QueryRequest is one question to the engine.
type QueryRequest struct {
	Text               string            `json:"text"`
	CandidateDocuments []Document        `json:"candidate_documents,omitempty"`
	ConversationID     string            `json:"conversation_id,omitempty"`
	AllowWebSearch     bool              `json:"allow_web_search"`
	TokenBudget        int               `json:"token_budget,omitempty"`
	History            []llm.ChatMessage `json:"history,omitempty"`
}

// Blank reports whether the query text is empty after trimming.
func (r QueryRequest) Blank() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Budget returns the effective token budget.
func (r QueryRequest) Budget() int {
	if r.TokenBudget == 0 {
		return DefaultTokenBudget
	}
	return r.TokenBudget
}
