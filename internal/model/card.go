package model

// RaceCard is the full entry card for one track and date.
type RaceCard struct {
	Track string `json:"track"`
	Date  string `json:"date"` // MM/DD/YYYY
	Races []Race `json:"races"`
}

// Race is a single race on the card.
type Race struct {
	Number     int     `json:"number"`
	PostTime   string  `json:"post_time,omitempty"`
	RaceType   string  `json:"race_type,omitempty"`
	Conditions string  `json:"conditions,omitempty"`
	Surface    string  `json:"surface,omitempty"`
	Distance   string  `json:"distance,omitempty"`
	Purse      string  `json:"purse,omitempty"`
	Horses     []Horse `json:"horses"`
}

// Horse is one entry in a race. Identity is (Name, Program); everything
// else is layered on by the profile and enrichment stages.
type Horse struct {
	Name             string            `json:"name"`
	Program          string            `json:"program"`
	PostPosition     int               `json:"post_position,omitempty"`
	Jockey           string            `json:"jockey,omitempty"`
	Trainer          string            `json:"trainer,omitempty"`
	MorningLine      string            `json:"morning_line,omitempty"`
	Weight           string            `json:"weight,omitempty"`
	EquipmentChanges string            `json:"equipment_changes,omitempty"`
	Earnings         float64           `json:"earnings,omitempty"`
	ProfileURL       string            `json:"profile_url,omitempty"`
	Results          []PastPerformance `json:"results,omitempty"`
	Workouts         []Workout         `json:"workouts,omitempty"`
	Enrichment       *EnrichmentEntry  `json:"enrichment,omitempty"`
	DataIncomplete   bool              `json:"data_incomplete,omitempty"`
	ValidationFlag   bool              `json:"validation_flag,omitempty"`
}

// PastPerformance is one prior start from a horse profile page.
// SpeedScore is the provider's E-scale figure.
type PastPerformance struct {
	Date          string  `json:"date"`
	Track         string  `json:"track"`
	Distance      string  `json:"distance"`
	Surface       string  `json:"surface"`
	FinishPos     int     `json:"finish_pos"`
	SpeedScore    float64 `json:"speed_score"`
	FinalTime     string  `json:"final_time,omitempty"`
	BeatenLengths float64 `json:"beaten_lengths,omitempty"`
	Odds          string  `json:"odds,omitempty"`
	RaceType      string  `json:"race_type,omitempty"`
}

// Workout is one published workout line.
type Workout struct {
	Date           string `json:"date"`
	Track          string `json:"track"`
	Distance       string `json:"distance"`
	Time           string `json:"time"`
	TrackCondition string `json:"track_condition,omitempty"`
	WorkoutType    string `json:"workout_type,omitempty"`
}

// EnrichmentEntry is the per-horse record from the enrichment page for a
// race. Program may be empty when the page omits it.
type EnrichmentEntry struct {
	RaceNumber       int     `json:"race_number"`
	HorseName        string  `json:"horse_name"`
	Program          string  `json:"program,omitempty"`
	ComboWinPct      float64 `json:"combo_win_pct,omitempty"`
	SpeedFigure      float64 `json:"speed_figure,omitempty"`
	EarningsPerStart float64 `json:"earnings_per_start,omitempty"`
	QualityRating    float64 `json:"quality_rating,omitempty"`
	ProfileURL       string  `json:"profile_url,omitempty"`
}
