// Package model defines the core domain types shared across packages.
package model

import "time"

// SessionStatus is the lifecycle state of an analysis session.
type SessionStatus string

const (
	StatusPending            SessionStatus = "pending"
	StatusScrapingOverview   SessionStatus = "scraping_overview"
	StatusScrapingProfiles   SessionStatus = "scraping_profiles"
	StatusScrapingEnrichment SessionStatus = "scraping_enrichment"
	StatusAnalyzing          SessionStatus = "analyzing"
	StatusCompleted          SessionStatus = "completed"
	StatusFailed             SessionStatus = "failed"
	StatusInterrupted        SessionStatus = "interrupted"
)

// Terminal reports whether the status is a final state. Terminal sessions
// are never transitioned again.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusInterrupted:
		return true
	}
	return false
}

// AnalysisSession is the persisted record of one analysis run. Progress
// fields are updated before each stage begins so a crash leaves an accurate
// trail for recovery.
type AnalysisSession struct {
	ID          string             `json:"id"`
	Track       string             `json:"track"`
	Date        string             `json:"date"`
	Model       string             `json:"model"`
	Status      SessionStatus      `json:"status"`
	Stage       string             `json:"stage"`
	Progress    int                `json:"progress"` // 0-100
	Message     string             `json:"message"`
	HorseCount  int                `json:"horse_count"`
	ErrorDetail string             `json:"error_detail,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Results     []PredictionResult `json:"results,omitempty"`
}
