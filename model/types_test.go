package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeJSON(t *testing.T) {
	for o := OutcomeSuccess; o <= OutcomeCircuitOpen; o++ {
		data, err := json.Marshal(o)
		require.NoError(t, err)

		var back Outcome
		require.NoError(t, json.Unmarshal(data, &back))
		assert.Equal(t, o, back, string(data))
	}

	var o Outcome
	assert.Error(t, json.Unmarshal([]byte(`"on_fire"`), &o))
}

func TestTraceLast(t *testing.T) {
	_, ok := Trace(nil).Last()
	assert.False(t, ok)

	last, ok := Trace{{ProviderID: "primary"}, {ProviderID: "offline"}}.Last()
	require.True(t, ok)
	assert.Equal(t, "offline", last.ProviderID)
}

func TestQueryRequestBudget(t *testing.T) {
	assert.Equal(t, DefaultTokenBudget, QueryRequest{}.Budget())
	assert.Equal(t, 50, QueryRequest{TokenBudget: 50}.Budget())
	assert.True(t, QueryRequest{Text: " \t\n"}.Blank())
	assert.False(t, QueryRequest{Text: "q"}.Blank())
}
