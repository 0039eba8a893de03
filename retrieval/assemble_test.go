package retrieval

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/querygate/model"
)

// docOfCost builds a document whose estimated cost is exactly tokens.
func docOfCost(id string, tokens int) model.RankedDocument {
	return model.RankedDocument{
		Document: model.Document{ID: id, Title: id, Body: strings.Repeat("x", tokens*4-len(id))},
	}
}

func TestAssembleBudgetScenario(t *testing.T) {
	ranked := []model.RankedDocument{docOfCost("d1", 30), docOfCost("d2", 30), docOfCost("d3", 30)}

	ctx := Assemble(ranked, 50)
	require.Len(t, ctx.Selected, 1)
	assert.Equal(t, "d1", ctx.Selected[0].Document.ID)
	assert.Equal(t, 30, ctx.EstimatedTokens)
}

func TestAssembleStopsAtFirstMisfit(t *testing.T) {
	ranked := []model.RankedDocument{docOfCost("big1", 40), docOfCost("big2", 40), docOfCost("tiny", 1)}

	ctx := Assemble(ranked, 50)
	require.Len(t, ctx.Selected, 1)
	assert.Equal(t, "big1", ctx.Selected[0].Document.ID)
	assert.Equal(t, 40, ctx.EstimatedTokens)
}

func TestAssembleCapsDocumentCount(t *testing.T) {
	var ranked []model.RankedDocument
	for i := 0; i < 15; i++ {
		ranked = append(ranked, docOfCost(fmt.Sprintf("d%02d", i), 5))
	}

	ctx := Assemble(ranked, 10000)
	assert.Len(t, ctx.Selected, DefaultMaxDocuments)
	assert.Equal(t, 50, ctx.EstimatedTokens)
}

func TestAssembleNonPositiveBudget(t *testing.T) {
	ranked := []model.RankedDocument{docOfCost("d1", 1)}
	for _, budget := range []int{0, -5} {
		ctx := Assemble(ranked, budget)
		assert.Empty(t, ctx.Selected)
		assert.Zero(t, ctx.EstimatedTokens)
		assert.Empty(t, ctx.SerializedText)
	}
}

func TestAssembleInvariants(t *testing.T) {
	var ranked []model.RankedDocument
	for i := 0; i < 12; i++ {
		ranked = append(ranked, docOfCost(fmt.Sprintf("d%02d", i), 3+i*7%11))
	}

	for budget := 1; budget <= 200; budget += 7 {
		ctx := Assemble(ranked, budget)
		require.LessOrEqual(t, ctx.EstimatedTokens, budget)
		require.LessOrEqual(t, len(ctx.Selected), DefaultMaxDocuments)
		for i, sel := range ctx.Selected {
			require.Equal(t, ranked[i].Document.ID, sel.Document.ID, "selection must be a prefix")
		}
	}
}

func TestAssembleSerialization(t *testing.T) {
	ranked := Rank("growth", []model.Document{
		{ID: "a", Title: "Growth Plan", Body: "Grow by 10%.", Summary: "Plan summary"},
		{ID: "b", Title: "Appendix", Body: "growth tables"},
	})

	ctx := Assemble(ranked, 1000)
	want := "[Document 1] Growth Plan\nGrow by 10%.\nSummary: Plan summary\n\n[Document 2] Appendix\ngrowth tables"
	assert.Equal(t, want, ctx.SerializedText)
}

func TestCostRoundsUp(t *testing.T) {
	a := NewAssembler(AssemblerOptions{})
	assert.Equal(t, 0, a.Cost(model.Document{}))
	assert.Equal(t, 1, a.Cost(model.Document{Title: "a"}))
	assert.Equal(t, 1, a.Cost(model.Document{Title: "abcd"}))
	assert.Equal(t, 2, a.Cost(model.Document{Title: "ab", Body: "cd", Summary: "e"}))
	// runes, not bytes
	assert.Equal(t, 1, a.Cost(model.Document{Title: "日本語の"}))

	custom := NewAssembler(AssemblerOptions{CharsPerToken: 2})
	assert.Equal(t, 3, custom.Cost(model.Document{Body: "abcde"}))
}
