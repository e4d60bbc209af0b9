package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusTerminal(t *testing.T) {
	terminal := []SessionStatus{StatusCompleted, StatusFailed, StatusInterrupted}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), string(s))
	}

	live := []SessionStatus{
		StatusPending,
		StatusScrapingOverview,
		StatusScrapingProfiles,
		StatusScrapingEnrichment,
		StatusAnalyzing,
	}
	for _, s := range live {
		assert.False(t, s.Terminal(), string(s))
	}
}
