package model

// HorsePrediction is the scored outcome for a single entry.
type HorsePrediction struct {
	HorseName      string             `json:"horse_name"`
	Program        string             `json:"program"`
	PostPosition   int                `json:"post_position,omitempty"`
	CompositeScore float64            `json:"composite_score"`
	WinProbability float64            `json:"win_probability"`
	Rank           int                `json:"rank"`
	Factors        map[string]float64 `json:"factors"`
	DataIncomplete bool               `json:"data_incomplete,omitempty"`
}

// ExoticSuggestions are wager structures derived from the top ranks.
type ExoticSuggestions struct {
	Win      string   `json:"win"`
	Exacta   []string `json:"exacta,omitempty"`
	Trifecta []string `json:"trifecta,omitempty"`
}

// PredictionResult is the per-race output of the engine.
type PredictionResult struct {
	RaceNumber         int               `json:"race_number"`
	Surface            string            `json:"surface,omitempty"`
	Distance           string            `json:"distance,omitempty"`
	Rankings           []HorsePrediction `json:"rankings"`
	Rationale          string            `json:"rationale,omitempty"`
	EnrichmentCoverage float64           `json:"enrichment_coverage"`
	Exotics            ExoticSuggestions `json:"exotics,omitempty"`
	Commentary         string            `json:"commentary,omitempty"`
}
