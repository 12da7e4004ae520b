package models

import "time"

type DifficultyLabel string

const (
	DifficultyEasy   DifficultyLabel = "easy"
	DifficultyMedium DifficultyLabel = "medium"
	DifficultyHard   DifficultyLabel = "hard"
)

var ValidDifficultyLabels = map[DifficultyLabel]bool{
	DifficultyEasy:   true,
	DifficultyMedium: true,
	DifficultyHard:   true,
}

// LabelDifficulty maps an authoring label to a starting IRT difficulty.
func LabelDifficulty(label DifficultyLabel) float64 {
	switch label {
	case DifficultyEasy:
		return -1.0
	case DifficultyHard:
		return 1.0
	default:
		return 0.0
	}
}

// LabelForDifficulty is the inverse bucketing used when reporting items.
func LabelForDifficulty(b float64) DifficultyLabel {
	switch {
	case b < -0.5:
		return DifficultyEasy
	case b > 0.5:
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

type ItemSource string

const (
	SourceManual    ItemSource = "manual"
	SourceGenerated ItemSource = "generated"
)

// SkillUnit is one learning outcome. Items and ability estimates hang off it.
type SkillUnit struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Title     string    `json:"title"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

type Item struct {
	ID              int64           `json:"id"`
	SkillUnitID     int64           `json:"skill_unit_id"`
	Prompt          string          `json:"prompt"`
	Choices         []string        `json:"choices,omitempty"`
	CorrectAnswer   string          `json:"correct_answer"`
	Explanation     string          `json:"explanation,omitempty"`
	Difficulty      float64         `json:"difficulty"`
	DifficultyLabel DifficultyLabel `json:"difficulty_label"`
	Source          ItemSource      `json:"source"`
	TimesServed     int             `json:"times_served"`
	TimesCorrect    int             `json:"times_correct"`
	CalibratedAt    *time.Time      `json:"calibrated_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// ── API Request/Response Types ────────────────────────────

type CreateSkillUnitRequest struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Outcome string `json:"outcome"`
}

type NewItem struct {
	Prompt          string          `json:"prompt"`
	Choices         []string        `json:"choices,omitempty"`
	CorrectAnswer   string          `json:"correct_answer"`
	Explanation     string          `json:"explanation,omitempty"`
	DifficultyLabel DifficultyLabel `json:"difficulty_label,omitempty"`
	Difficulty      *float64        `json:"difficulty,omitempty"`
}

type CreateItemsRequest struct {
	Items []NewItem `json:"items"`
}

type GenerateItemsRequest struct {
	Difficulty DifficultyLabel `json:"difficulty"`
	Count      int             `json:"count"`
}

type ItemListResponse struct {
	Items []Item `json:"items"`
	Total int    `json:"total"`
}

type ItemStats struct {
	ItemID       int64   `json:"item_id"`
	SkillUnitID  int64   `json:"skill_unit_id"`
	Difficulty   float64 `json:"difficulty"`
	TimesServed  int     `json:"times_served"`
	TimesCorrect int     `json:"times_correct"`
}

type RecalibrationCandidate struct {
	ItemID              int64   `json:"item_id"`
	TimesServed         int     `json:"times_served"`
	TimesCorrect        int     `json:"times_correct"`
	ActualAccuracy      float64 `json:"actual_accuracy"`
	CurrentDifficulty   float64 `json:"current_difficulty"`
	SuggestedDifficulty float64 `json:"suggested_difficulty"`
}

type RecalibrationReport struct {
	TotalEvaluated int                      `json:"total_evaluated"`
	Recalibrated   int                      `json:"recalibrated"`
	Details        []RecalibrationCandidate `json:"details"`
}
