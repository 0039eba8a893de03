package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/richinex/querygate/model"
)

// Assembly defaults.
const (
	DefaultCharsPerToken = 4
	DefaultMaxDocuments  = 10
)

// AssemblerOptions tunes the budget heuristic.
type AssemblerOptions struct {
	CharsPerToken int
	MaxDocuments  int
}

// Assembler packs ranked documents into a token budget.
type Assembler struct {
	opts AssemblerOptions
}

// NewAssembler creates an assembler. Zero fields fall back to the defaults.
func NewAssembler(opts AssemblerOptions) *Assembler {
	if opts.CharsPerToken <= 0 {
		opts.CharsPerToken = DefaultCharsPerToken
	}
	if opts.MaxDocuments <= 0 {
		opts.MaxDocuments = DefaultMaxDocuments
	}
	return &Assembler{opts: opts}
}

// Assemble packs ranked into budget with the default options.
func Assemble(ranked []model.RankedDocument, budget int) model.AssembledContext {
	return NewAssembler(AssemblerOptions{}).Assemble(ranked, budget)
}

// Assemble walks ranked in order and stops at the first document that does
// not fit. The selection is always a prefix of ranked.
func (a *Assembler) Assemble(ranked []model.RankedDocument, budget int) model.AssembledContext {
	out := model.AssembledContext{Selected: []model.RankedDocument{}}
	if budget <= 0 {
		return out
	}

	var sb strings.Builder
	for _, rd := range ranked {
		if len(out.Selected) >= a.opts.MaxDocuments {
			break
		}
		cost := a.Cost(rd.Document)
		if out.EstimatedTokens+cost > budget {
			break
		}
		out.EstimatedTokens += cost
		out.Selected = append(out.Selected, rd)

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		writeBlock(&sb, len(out.Selected), rd.Document)
	}

	out.SerializedText = sb.String()
	return out
}

// Cost estimates the token cost of a document as
// ceil(runes(title+body+summary) / CharsPerToken).
func (a *Assembler) Cost(doc model.Document) int {
	n := utf8.RuneCountInString(doc.Title) +
		utf8.RuneCountInString(doc.Body) +
		utf8.RuneCountInString(doc.Summary)
	return (n + a.opts.CharsPerToken - 1) / a.opts.CharsPerToken
}

func writeBlock(sb *strings.Builder, n int, doc model.Document) {
	fmt.Fprintf(sb, "[Document %d] %s", n, doc.Title)
	if doc.Body != "" {
		sb.WriteString("\n")
		sb.WriteString(doc.Body)
	}
	if doc.Summary != "" {
		sb.WriteString("\nSummary: ")
		sb.WriteString(doc.Summary)
	}
}
