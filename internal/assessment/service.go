package assessment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/quizlab/adaptive-backend/internal/config"
	"github.com/quizlab/adaptive-backend/internal/generator"
	"github.com/quizlab/adaptive-backend/internal/irt"
	"github.com/quizlab/adaptive-backend/internal/logger"
	"github.com/quizlab/adaptive-backend/internal/models"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyPool    = errors.New("skill unit has no items")
	ErrConflict     = errors.New("conflict")
)

const (
	defaultGenerateCount = 5
	maxGenerateCount     = 20
	defaultHistoryLimit  = 20
	maxHistoryLimit      = 100
)

// AttemptRecord is a graded attempt ready to persist.
type AttemptRecord struct {
	StudentID   int64
	SkillUnitID int64
	Responses   []models.AttemptResponse
}

// EstimateFunc maps the locked current ability to the new theta and the
// standard error at that theta.
type EstimateFunc func(current models.StudentAbility) (theta, standardError float64)

type Repository interface {
	CreateSkillUnit(ctx context.Context, req models.CreateSkillUnitRequest) (*models.SkillUnit, error)
	GetSkillUnit(ctx context.Context, id int64) (*models.SkillUnit, error)
	ListSkillUnits(ctx context.Context) ([]models.SkillUnit, error)

	CreateItems(ctx context.Context, skillUnitID int64, items []models.Item) ([]models.Item, error)
	ListItems(ctx context.Context, skillUnitID int64) ([]models.Item, error)
	GetItems(ctx context.Context, ids []int64) ([]models.Item, error)
	ListItemStats(ctx context.Context, minResponses int) ([]models.ItemStats, error)
	UpdateItemDifficulty(ctx context.Context, itemID int64, difficulty float64) error

	GetAbility(ctx context.Context, studentID, skillUnitID int64) (*models.StudentAbility, error)
	SubmitAttempt(ctx context.Context, rec AttemptRecord, estimate EstimateFunc) (*models.Attempt, *models.StudentAbility, error)
	ListAttempts(ctx context.Context, studentID, skillUnitID int64, limit int) ([]models.Attempt, error)
}

// PoolCache is the optional item-pool cache (Redis in production).
type PoolCache interface {
	GetPool(ctx context.Context, skillUnitID int64) ([]models.Item, bool, error)
	SetPool(ctx context.Context, skillUnitID int64, items []models.Item) error
	InvalidatePool(ctx context.Context, skillUnitID int64) error
}

type ItemGenerator interface {
	GenerateItems(ctx context.Context, req generator.Request) ([]models.Item, *generator.LLMResponse, error)
}

type Service struct {
	repo      Repository
	generator ItemGenerator
	cfg       config.AssessmentConfig
	log       *logger.Logger
	pools     PoolCache

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(repo Repository, gen ItemGenerator, cfg config.AssessmentConfig, log *logger.Logger) *Service {
	log.Info("assessment service configured",
		"default_quiz_size", cfg.DefaultQuizSize,
		"max_quiz_size", cfg.MaxQuizSize,
		"adaptive_default", cfg.AdaptiveByDefault,
		"min_calibration_responses", cfg.MinCalibrationResponses)

	return &Service{
		repo:      repo,
		generator: gen,
		cfg:       cfg,
		log:       log.With("component", "assessment"),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetPoolCache injects the item-pool cache.
func (s *Service) SetPoolCache(c PoolCache) {
	s.pools = c
}

// ── Skill Units & Items ─────────────────────────────────

func (s *Service) CreateSkillUnit(ctx context.Context, req models.CreateSkillUnitRequest) (*models.SkillUnit, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Title = strings.TrimSpace(req.Title)
	req.Outcome = strings.TrimSpace(req.Outcome)
	if req.Code == "" || req.Title == "" {
		return nil, fmt.Errorf("%w: code and title are required", ErrInvalidInput)
	}
	return s.repo.CreateSkillUnit(ctx, req)
}

func (s *Service) ListSkillUnits(ctx context.Context) ([]models.SkillUnit, error) {
	units, err := s.repo.ListSkillUnits(ctx)
	if err != nil {
		return nil, err
	}
	if units == nil {
		units = []models.SkillUnit{}
	}
	return units, nil
}

func (s *Service) ListItems(ctx context.Context, skillUnitID int64) (*models.ItemListResponse, error) {
	if _, err := s.repo.GetSkillUnit(ctx, skillUnitID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, skillUnitID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Item{}
	}
	return &models.ItemListResponse{Items: items, Total: len(items)}, nil
}

// CreateItems stores hand-authored items. An item without an explicit
// difficulty starts at its label's nominal value.
func (s *Service) CreateItems(ctx context.Context, skillUnitID int64, req models.CreateItemsRequest) ([]models.Item, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidInput)
	}
	if _, err := s.repo.GetSkillUnit(ctx, skillUnitID); err != nil {
		return nil, err
	}

	items := make([]models.Item, 0, len(req.Items))
	for i, ni := range req.Items {
		it, err := buildItem(ni)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidInput, i+1, err)
		}
		items = append(items, it)
	}

	created, err := s.repo.CreateItems(ctx, skillUnitID, items)
	if err != nil {
		return nil, err
	}
	s.invalidatePool(ctx, skillUnitID)
	s.log.Info("items created", "skill_unit_id", skillUnitID, "count", len(created))
	return created, nil
}

func buildItem(ni models.NewItem) (models.Item, error) {
	prompt := strings.TrimSpace(ni.Prompt)
	answer := strings.TrimSpace(ni.CorrectAnswer)
	if prompt == "" {
		return models.Item{}, errors.New("prompt is required")
	}
	if answer == "" {
		return models.Item{}, errors.New("correct_answer is required")
	}
	if len(ni.Choices) > 0 && !containsAnswer(ni.Choices, answer) {
		return models.Item{}, errors.New("correct_answer must be one of the choices")
	}
	if ni.DifficultyLabel != "" && !models.ValidDifficultyLabels[ni.DifficultyLabel] {
		return models.Item{}, fmt.Errorf("invalid difficulty_label %q", ni.DifficultyLabel)
	}

	label := ni.DifficultyLabel
	var b float64
	switch {
	case ni.Difficulty != nil:
		if err := irt.ValidateDifficulty(*ni.Difficulty); err != nil {
			return models.Item{}, err
		}
		b = *ni.Difficulty
		if label == "" {
			label = models.LabelForDifficulty(b)
		}
	default:
		if label == "" {
			label = models.DifficultyMedium
		}
		b = models.LabelDifficulty(label)
	}

	return models.Item{
		Prompt:          prompt,
		Choices:         ni.Choices,
		CorrectAnswer:   answer,
		Explanation:     strings.TrimSpace(ni.Explanation),
		Difficulty:      b,
		DifficultyLabel: label,
		Source:          models.SourceManual,
	}, nil
}

// GenerateItems asks the LLM generator for new items and stores them.
func (s *Service) GenerateItems(ctx context.Context, skillUnitID int64, req models.GenerateItemsRequest) ([]models.Item, error) {
	if req.Count <= 0 {
		req.Count = defaultGenerateCount
	}
	if req.Count > maxGenerateCount {
		return nil, fmt.Errorf("%w: count must be at most %d", ErrInvalidInput, maxGenerateCount)
	}
	if req.Difficulty == "" {
		req.Difficulty = models.DifficultyMedium
	}
	if !models.ValidDifficultyLabels[req.Difficulty] {
		return nil, fmt.Errorf("%w: difficulty must be 'easy', 'medium', or 'hard'", ErrInvalidInput)
	}

	su, err := s.repo.GetSkillUnit(ctx, skillUnitID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	items, llmResp, err := s.generator.GenerateItems(ctx, generator.Request{
		SkillUnit:  su.Title,
		Outcome:    su.Outcome,
		Difficulty: req.Difficulty,
		Count:      req.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	created, err := s.repo.CreateItems(ctx, skillUnitID, items)
	if err != nil {
		return nil, err
	}
	s.invalidatePool(ctx, skillUnitID)

	kv := []interface{}{
		"skill_unit_id", skillUnitID,
		"difficulty", req.Difficulty,
		"count", len(created),
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if llmResp != nil {
		kv = append(kv, "prompt_tokens", llmResp.PromptTokens, "output_tokens", llmResp.OutputTokens)
	}
	s.log.Info("items generated", kv...)
	return created, nil
}

// ── Ability & Quizzes ───────────────────────────────────

func (s *Service) GetAbility(ctx context.Context, studentID, skillUnitID int64) (*models.StudentAbility, error) {
	if _, err := s.repo.GetSkillUnit(ctx, skillUnitID); err != nil {
		return nil, err
	}
	return s.repo.GetAbility(ctx, studentID, skillUnitID)
}

// AssembleQuiz picks items for the student's next quiz. Adaptive quizzes take
// the items most informative at the current theta; otherwise a uniform random
// sample is drawn. A pool smaller than the request yields the whole pool.
func (s *Service) AssembleQuiz(ctx context.Context, studentID, skillUnitID int64, req models.QuizRequest) (*models.QuizResponse, error) {
	count := req.Count
	if count == 0 {
		count = s.cfg.DefaultQuizSize
	}
	if count < 0 || count > s.cfg.MaxQuizSize {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidInput, s.cfg.MaxQuizSize)
	}
	adaptive := s.cfg.AdaptiveByDefault
	if req.Adaptive != nil {
		adaptive = *req.Adaptive
	}

	if _, err := s.repo.GetSkillUnit(ctx, skillUnitID); err != nil {
		return nil, err
	}
	pool, err := s.loadPool(ctx, skillUnitID)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}

	ability, err := s.repo.GetAbility(ctx, studentID, skillUnitID)
	if err != nil {
		return nil, err
	}
	theta := ability.Theta

	var chosen []models.Item
	if adaptive {
		chosen, err = selectAdaptive(theta, pool, count)
		if err != nil {
			return nil, err
		}
	} else {
		chosen = s.sample(pool, count)
	}

	resp := &models.QuizResponse{
		SkillUnitID: skillUnitID,
		Theta:       theta,
		Adaptive:    adaptive,
		Items:       make([]models.QuizItem, 0, len(chosen)),
	}
	difficulties := make([]float64, 0, len(chosen))
	for _, it := range chosen {
		resp.Items = append(resp.Items, models.QuizItem{
			ID:          it.ID,
			Prompt:      it.Prompt,
			Choices:     it.Choices,
			Difficulty:  it.Difficulty,
			Information: irt.Information(theta, it.Difficulty),
		})
		difficulties = append(difficulties, it.Difficulty)
	}
	resp.ExpectedScore = irt.ExpectedScore(theta, difficulties)
	resp.StandardError = models.FiniteOrNil(irt.StandardError(theta, difficulties))

	s.log.Debug("quiz assembled",
		"student_id", studentID, "skill_unit_id", skillUnitID,
		"adaptive", adaptive, "theta", theta, "items", len(chosen))
	return resp, nil
}

func selectAdaptive(theta float64, pool []models.Item, count int) ([]models.Item, error) {
	byID := make(map[int64]models.Item, len(pool))
	candidates := make([]irt.Item[int64], len(pool))
	for i, it := range pool {
		byID[it.ID] = it
		candidates[i] = irt.Item[int64]{ID: it.ID, Difficulty: it.Difficulty}
	}
	if err := irt.ValidateItems(candidates); err != nil {
		return nil, fmt.Errorf("item pool: %w", err)
	}

	ids := irt.SelectAdaptiveItems(theta, candidates, count)
	chosen := make([]models.Item, len(ids))
	for i, id := range ids {
		chosen[i] = byID[id]
	}
	return chosen, nil
}

func (s *Service) sample(pool []models.Item, count int) []models.Item {
	if count > len(pool) {
		count = len(pool)
	}
	s.mu.Lock()
	perm := s.rng.Perm(len(pool))
	s.mu.Unlock()

	chosen := make([]models.Item, count)
	for i := 0; i < count; i++ {
		chosen[i] = pool[perm[i]]
	}
	return chosen
}

func (s *Service) loadPool(ctx context.Context, skillUnitID int64) ([]models.Item, error) {
	if s.pools != nil {
		items, ok, err := s.pools.GetPool(ctx, skillUnitID)
		if err != nil {
			s.log.Warn("pool cache read failed", "skill_unit_id", skillUnitID, "error", err)
		} else if ok {
			return items, nil
		}
	}

	items, err := s.repo.ListItems(ctx, skillUnitID)
	if err != nil {
		return nil, err
	}

	if s.pools != nil && len(items) > 0 {
		if err := s.pools.SetPool(ctx, skillUnitID, items); err != nil {
			s.log.Warn("pool cache write failed", "skill_unit_id", skillUnitID, "error", err)
		}
	}
	return items, nil
}

func (s *Service) invalidatePool(ctx context.Context, skillUnitID int64) {
	if s.pools == nil {
		return
	}
	if err := s.pools.InvalidatePool(ctx, skillUnitID); err != nil {
		s.log.Warn("pool cache invalidate failed", "skill_unit_id", skillUnitID, "error", err)
	}
}

// ── Attempts ────────────────────────────────────────────

// SubmitAttempt grades the answers, re-estimates theta from this attempt's
// responses starting at the stored theta, and records everything atomically.
func (s *Service) SubmitAttempt(ctx context.Context, studentID, skillUnitID int64, req models.SubmitAttemptRequest) (*models.AttemptResult, error) {
	if len(req.Answers) == 0 {
		return nil, fmt.Errorf("%w: at least one answer is required", ErrInvalidInput)
	}
	if len(req.Answers) > s.cfg.MaxQuizSize {
		return nil, fmt.Errorf("%w: at most %d answers per attempt", ErrInvalidInput, s.cfg.MaxQuizSize)
	}

	ids := make([]int64, 0, len(req.Answers))
	seen := make(map[int64]bool, len(req.Answers))
	for _, a := range req.Answers {
		if seen[a.ItemID] {
			return nil, fmt.Errorf("%w: item %d answered twice", ErrInvalidInput, a.ItemID)
		}
		seen[a.ItemID] = true
		ids = append(ids, a.ItemID)
	}

	if _, err := s.repo.GetSkillUnit(ctx, skillUnitID); err != nil {
		return nil, err
	}

	items, err := s.repo.GetItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	responses := make([]models.AttemptResponse, 0, len(req.Answers))
	irtResponses := make([]irt.Response, 0, len(req.Answers))
	difficulties := make([]float64, 0, len(req.Answers))
	for _, a := range req.Answers {
		it, ok := byID[a.ItemID]
		if !ok || it.SkillUnitID != skillUnitID {
			return nil, fmt.Errorf("%w: item %d does not belong to skill unit %d", ErrInvalidInput, a.ItemID, skillUnitID)
		}
		correct := gradeAnswer(a.Answer, it.CorrectAnswer)
		responses = append(responses, models.AttemptResponse{
			ItemID:     it.ID,
			Answer:     a.Answer,
			Correct:    correct,
			Difficulty: it.Difficulty,
		})
		irtResponses = append(irtResponses, irt.Response{Difficulty: it.Difficulty, Correct: correct})
		difficulties = append(difficulties, it.Difficulty)
	}
	if err := irt.ValidateResponses(irtResponses); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	estimate := func(current models.StudentAbility) (float64, float64) {
		theta := irt.EstimateAbility(irt.ClampTheta(current.Theta), irtResponses)
		return theta, irt.StandardError(theta, difficulties)
	}

	attempt, ability, err := s.repo.SubmitAttempt(ctx, AttemptRecord{
		StudentID:   studentID,
		SkillUnitID: skillUnitID,
		Responses:   responses,
	}, estimate)
	if err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}

	s.log.Info("attempt recorded",
		"student_id", studentID,
		"skill_unit_id", skillUnitID,
		"theta_before", attempt.ThetaBefore,
		"theta_after", attempt.ThetaAfter,
		"correct", attempt.CorrectCount,
		"items", attempt.ItemCount)

	return &models.AttemptResult{
		AttemptID:     attempt.ID,
		SkillUnitID:   skillUnitID,
		ThetaBefore:   attempt.ThetaBefore,
		ThetaAfter:    attempt.ThetaAfter,
		AttemptsCount: ability.AttemptsCount,
		CorrectCount:  attempt.CorrectCount,
		ItemCount:     attempt.ItemCount,
		StandardError: attempt.StandardError,
		Responses:     responses,
	}, nil
}

func (s *Service) ListAttempts(ctx context.Context, studentID, skillUnitID int64, limit int) ([]models.Attempt, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)
	if _, err := s.repo.GetSkillUnit(ctx, skillUnitID); err != nil {
		return nil, err
	}
	attempts, err := s.repo.ListAttempts(ctx, studentID, skillUnitID, limit)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []models.Attempt{}
	}
	return attempts, nil
}

func gradeAnswer(given, correct string) bool {
	return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(correct))
}

func containsAnswer(choices []string, answer string) bool {
	for _, c := range choices {
		if gradeAnswer(c, answer) {
			return true
		}
	}
	return false
}

// ── Recalibration ───────────────────────────────────────

// RecalibrateDifficulty re-estimates b for every item served at least
// minResponses times and writes back those that moved by more than the
// configured threshold. minResponses <= 0 uses the configured minimum.
func (s *Service) RecalibrateDifficulty(ctx context.Context, minResponses int) (*models.RecalibrationReport, error) {
	if minResponses <= 0 {
		minResponses = s.cfg.MinCalibrationResponses
	}

	stats, err := s.repo.ListItemStats(ctx, minResponses)
	if err != nil {
		return nil, err
	}

	report := &models.RecalibrationReport{
		TotalEvaluated: len(stats),
		Details:        []models.RecalibrationCandidate{},
	}
	touched := map[int64]bool{}

	for _, st := range stats {
		if st.TimesServed <= 0 {
			continue
		}
		suggested := irt.DifficultyFromCounts(st.TimesCorrect, st.TimesServed)
		delta := suggested - st.Difficulty
		if delta < 0 {
			delta = -delta
		}
		if delta <= s.cfg.RecalibrationThreshold {
			continue
		}

		if err := s.repo.UpdateItemDifficulty(ctx, st.ItemID, suggested); err != nil {
			s.log.Error("recalibration write failed", "item_id", st.ItemID, "error", err)
			continue
		}
		touched[st.SkillUnitID] = true
		report.Recalibrated++
		report.Details = append(report.Details, models.RecalibrationCandidate{
			ItemID:              st.ItemID,
			TimesServed:         st.TimesServed,
			TimesCorrect:        st.TimesCorrect,
			ActualAccuracy:      float64(st.TimesCorrect) / float64(st.TimesServed),
			CurrentDifficulty:   st.Difficulty,
			SuggestedDifficulty: suggested,
		})
	}

	for id := range touched {
		s.invalidatePool(ctx, id)
	}

	s.log.Info("recalibration complete",
		"evaluated", report.TotalEvaluated,
		"recalibrated", report.Recalibrated,
		"min_responses", minResponses)
	return report, nil
}
