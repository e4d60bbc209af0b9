package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCost(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}

	cost := u.EstimateCost("claude-sonnet-4-5-20250929")
	assert.InDelta(t, 18.0, cost, 0.001)

	assert.Zero(t, u.EstimateCost("unknown-model"))
}

func TestToSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "handicap race 3"},
		{Role: "assistant", Content: "the favorite looks vulnerable"},
	})

	assert.Len(t, msgs, 2)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
}
