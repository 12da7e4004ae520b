package models

import (
	"math"
	"time"
)

// StudentAbility is the persisted theta for one (student, skill unit) pair.
// A pair that has never been estimated reads as theta 0, zero attempts.
type StudentAbility struct {
	StudentID     int64     `json:"student_id"`
	SkillUnitID   int64     `json:"skill_unit_id"`
	Theta         float64   `json:"theta"`
	AttemptsCount int       `json:"attempts_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Attempt struct {
	ID            int64     `json:"id"`
	StudentID     int64     `json:"student_id"`
	SkillUnitID   int64     `json:"skill_unit_id"`
	ThetaBefore   float64   `json:"theta_before"`
	ThetaAfter    float64   `json:"theta_after"`
	StandardError *float64  `json:"standard_error"`
	CorrectCount  int       `json:"correct_count"`
	ItemCount     int       `json:"item_count"`
	CreatedAt     time.Time `json:"created_at"`
}

type AttemptResponse struct {
	ItemID     int64   `json:"item_id"`
	Answer     string  `json:"answer"`
	Correct    bool    `json:"correct"`
	Difficulty float64 `json:"difficulty"`
}

// FiniteOrNil drops +Inf standard errors, which JSON cannot carry. A nil
// standard error means "no measurement precision".
func FiniteOrNil(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// ── API Request/Response Types ────────────────────────────

type QuizRequest struct {
	Count    int   `json:"count"`
	Adaptive *bool `json:"adaptive,omitempty"`
}

type QuizItem struct {
	ID          int64    `json:"id"`
	Prompt      string   `json:"prompt"`
	Choices     []string `json:"choices,omitempty"`
	Difficulty  float64  `json:"difficulty"`
	Information float64  `json:"information"`
}

type QuizResponse struct {
	SkillUnitID   int64      `json:"skill_unit_id"`
	Theta         float64    `json:"theta"`
	Adaptive      bool       `json:"adaptive"`
	Items         []QuizItem `json:"items"`
	ExpectedScore float64    `json:"expected_score"`
	StandardError *float64   `json:"standard_error"`
}

type AnswerSubmission struct {
	ItemID int64  `json:"item_id"`
	Answer string `json:"answer"`
}

type SubmitAttemptRequest struct {
	Answers []AnswerSubmission `json:"answers"`
}

type AttemptResult struct {
	AttemptID     int64             `json:"attempt_id"`
	SkillUnitID   int64             `json:"skill_unit_id"`
	ThetaBefore   float64           `json:"theta_before"`
	ThetaAfter    float64           `json:"theta_after"`
	AttemptsCount int               `json:"attempts_count"`
	CorrectCount  int               `json:"correct_count"`
	ItemCount     int               `json:"item_count"`
	StandardError *float64          `json:"standard_error"`
	Responses     []AttemptResponse `json:"responses"`
}
