package commentary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/pkg/anthropic"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func results() []model.PredictionResult {
	return []model.PredictionResult{{
		RaceNumber: 1,
		Surface:    "Dirt",
		Distance:   "6 Furlongs",
		Rankings: []model.HorsePrediction{
			{Rank: 1, Program: "1", HorseName: "Fast Lane", CompositeScore: 82.5, WinProbability: 0.41},
			{Rank: 2, Program: "2", HorseName: "Sea Breeze", CompositeScore: 64.0, WinProbability: 0.29},
		},
		EnrichmentCoverage: 100,
	}}
}

func TestEnhance_FillsCommentary(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" && len(req.Messages) == 1
	})).Return(&anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "Fast Lane towers over this field."}},
	}, nil)

	e := NewEnhancer(mc, "claude-sonnet-4-5-20250929")
	rs := results()
	e.Enhance(context.Background(), rs)

	assert.Equal(t, "Fast Lane towers over this field.", rs[0].Commentary)
	mc.AssertExpectations(t)
}

func TestEnhance_FailureLeavesCommentaryEmpty(t *testing.T) {
	mc := new(mockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	e := NewEnhancer(mc, "claude-sonnet-4-5-20250929")
	rs := results()
	e.Enhance(context.Background(), rs)

	assert.Empty(t, rs[0].Commentary)
}

func TestEnhance_NilClientNoop(t *testing.T) {
	e := NewEnhancer(nil, "")
	rs := results()
	e.Enhance(context.Background(), rs)
	assert.Empty(t, rs[0].Commentary)
}

func TestDescribeRace(t *testing.T) {
	text := describeRace(&results()[0])
	require.Contains(t, text, "Race 1")
	assert.Contains(t, text, "#1 Fast Lane")
	assert.Contains(t, text, "Dirt")
}
