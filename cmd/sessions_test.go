package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/paddock-labs/raceday-cli/internal/model"
)

func TestFormatSessionsList(t *testing.T) {
	now := time.Date(2025, 9, 5, 10, 30, 0, 0, time.UTC)
	done := now.Add(4 * time.Minute)
	sessions := []model.AnalysisSession{
		{
			ID:          "abc12345-6789-0000-0000-000000000000",
			Track:       "DMR",
			Date:        "09/05/2025",
			Status:      model.StatusCompleted,
			HorseCount:  72,
			CreatedAt:   now,
			UpdatedAt:   done,
			CompletedAt: &done,
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			Track:      "SAR",
			Date:       "09/05/2025",
			Status:     model.StatusScrapingProfiles,
			HorseCount: 48,
			CreatedAt:  now.Add(-1 * time.Hour),
			UpdatedAt:  now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatSessionsList(&buf, sessions)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "TRACK")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.Contains(t, output, "DMR")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "4m0s")
	assert.Contains(t, output, "SAR")
	assert.Contains(t, output, "scraping_profiles")
	assert.Contains(t, output, "2025-09-05 10:30")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc12345", shortID("abc12345-6789"))
	assert.Equal(t, "short", shortID("short"))
}
