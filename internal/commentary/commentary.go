// Package commentary adds model-written handicapping notes to predictions.
package commentary

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/pkg/anthropic"
)

const systemPrompt = "You are a professional horse racing handicapper. " +
	"Given computed rankings for a race, write a concise plain-text summary " +
	"for a bettor: the shape of the race, why the top pick is preferred, and " +
	"the live threats. Three to five sentences, no markdown."

// Enhancer decorates prediction results with natural-language commentary.
// Commentary is best-effort: any failure leaves the result unchanged.
type Enhancer struct {
	client    anthropic.Client
	modelName string
}

// NewEnhancer builds an Enhancer. A nil client disables commentary.
func NewEnhancer(client anthropic.Client, modelName string) *Enhancer {
	return &Enhancer{client: client, modelName: modelName}
}

// Enhance fills the Commentary field of each result in place. Failures are
// logged at warn and the commentary left empty; predictions never fail on
// account of the commentary layer.
func (e *Enhancer) Enhance(ctx context.Context, results []model.PredictionResult) {
	if e == nil || e.client == nil {
		return
	}
	for i := range results {
		text, err := e.raceCommentary(ctx, &results[i])
		if err != nil {
			zap.L().Warn("commentary failed, continuing without it",
				zap.Int("race", results[i].RaceNumber), zap.Error(err))
			continue
		}
		results[i].Commentary = text
	}
}

func (e *Enhancer) raceCommentary(ctx context.Context, result *model.PredictionResult) (string, error) {
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.modelName,
		MaxTokens: 512,
		System:    []anthropic.SystemBlock{{Text: systemPrompt}},
		Messages: []anthropic.Message{
			{Role: "user", Content: describeRace(result)},
		},
	})
	if err != nil {
		return "", err
	}
	resp.Usage.LogCost(e.modelName, "commentary")

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// describeRace renders the rankings as a compact prompt.
func describeRace(result *model.PredictionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Race %d", result.RaceNumber)
	if result.Surface != "" {
		fmt.Fprintf(&b, ", %s", result.Surface)
	}
	if result.Distance != "" {
		fmt.Fprintf(&b, ", %s", result.Distance)
	}
	fmt.Fprintf(&b, ". Enrichment coverage %.0f%%.\n", result.EnrichmentCoverage)

	for _, p := range result.Rankings {
		fmt.Fprintf(&b, "%d. #%s %s score %.1f win %.1f%%",
			p.Rank, p.Program, p.HorseName, p.CompositeScore, p.WinProbability*100)
		if p.DataIncomplete {
			b.WriteString(" (partial data)")
		}
		b.WriteString("\n")
	}
	if result.Rationale != "" {
		fmt.Fprintf(&b, "Model rationale: %s\n", result.Rationale)
	}
	return b.String()
}
