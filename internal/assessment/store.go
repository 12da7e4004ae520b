package assessment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/quizlab/adaptive-backend/internal/models"
)

// Store is the Postgres Repository.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Skill Units ─────────────────────────────────────────

func (s *Store) CreateSkillUnit(ctx context.Context, req models.CreateSkillUnitRequest) (*models.SkillUnit, error) {
	var su models.SkillUnit
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO skill_units (code, title, outcome)
		 VALUES ($1, $2, $3)
		 RETURNING id, code, title, outcome, created_at`,
		req.Code, req.Title, req.Outcome,
	).Scan(&su.ID, &su.Code, &su.Title, &su.Outcome, &su.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, fmt.Errorf("%w: skill unit code %q already exists", ErrConflict, req.Code)
		}
		return nil, fmt.Errorf("create skill unit: %w", err)
	}
	return &su, nil
}

func (s *Store) GetSkillUnit(ctx context.Context, id int64) (*models.SkillUnit, error) {
	var su models.SkillUnit
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, title, outcome, created_at FROM skill_units WHERE id = $1`,
		id,
	).Scan(&su.ID, &su.Code, &su.Title, &su.Outcome, &su.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get skill unit: %w", err)
	}
	return &su, nil
}

func (s *Store) ListSkillUnits(ctx context.Context) ([]models.SkillUnit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, title, outcome, created_at FROM skill_units ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list skill units: %w", err)
	}
	defer rows.Close()

	var units []models.SkillUnit
	for rows.Next() {
		var su models.SkillUnit
		if err := rows.Scan(&su.ID, &su.Code, &su.Title, &su.Outcome, &su.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan skill unit: %w", err)
		}
		units = append(units, su)
	}
	return units, rows.Err()
}

// ── Items ───────────────────────────────────────────────

const itemColumns = `id, skill_unit_id, prompt, choices, correct_answer, explanation,
	difficulty, difficulty_label, source, times_served, times_correct, calibrated_at, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var it models.Item
	var calibratedAt sql.NullTime
	err := row.Scan(&it.ID, &it.SkillUnitID, &it.Prompt, pq.Array(&it.Choices), &it.CorrectAnswer,
		&it.Explanation, &it.Difficulty, &it.DifficultyLabel, &it.Source,
		&it.TimesServed, &it.TimesCorrect, &calibratedAt, &it.CreatedAt)
	if err != nil {
		return it, err
	}
	if calibratedAt.Valid {
		t := calibratedAt.Time
		it.CalibratedAt = &t
	}
	return it, nil
}

func (s *Store) CreateItems(ctx context.Context, skillUnitID int64, items []models.Item) ([]models.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	created := make([]models.Item, 0, len(items))
	for _, it := range items {
		choices := it.Choices
		if choices == nil {
			choices = []string{}
		}
		row := tx.QueryRowContext(ctx,
			`INSERT INTO items (skill_unit_id, prompt, choices, correct_answer, explanation,
			                    difficulty, difficulty_label, source)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING `+itemColumns,
			skillUnitID, it.Prompt, pq.Array(choices), it.CorrectAnswer, it.Explanation,
			it.Difficulty, it.DifficultyLabel, it.Source,
		)
		saved, err := scanItem(row)
		if err != nil {
			return nil, fmt.Errorf("insert item: %w", err)
		}
		created = append(created, saved)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit items: %w", err)
	}
	return created, nil
}

func (s *Store) ListItems(ctx context.Context, skillUnitID int64) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE skill_unit_id = $1 ORDER BY id`,
		skillUnitID,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *Store) GetItems(ctx context.Context, ids []int64) ([]models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ANY($1) ORDER BY id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]models.Item, error) {
	var items []models.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) ListItemStats(ctx context.Context, minResponses int) ([]models.ItemStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, skill_unit_id, difficulty, times_served, times_correct
		 FROM items WHERE times_served >= $1 ORDER BY id`,
		minResponses,
	)
	if err != nil {
		return nil, fmt.Errorf("list item stats: %w", err)
	}
	defer rows.Close()

	var stats []models.ItemStats
	for rows.Next() {
		var st models.ItemStats
		if err := rows.Scan(&st.ItemID, &st.SkillUnitID, &st.Difficulty, &st.TimesServed, &st.TimesCorrect); err != nil {
			return nil, fmt.Errorf("scan item stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *Store) UpdateItemDifficulty(ctx context.Context, itemID int64, difficulty float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET difficulty = $2, difficulty_label = $3, calibrated_at = NOW() WHERE id = $1`,
		itemID, difficulty, models.LabelForDifficulty(difficulty),
	)
	if err != nil {
		return fmt.Errorf("update item difficulty: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update item difficulty: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ── Abilities & Attempts ────────────────────────────────

// GetAbility returns the stored estimate, or theta 0 with no attempts when
// the pair has never been estimated. It does not create a row.
func (s *Store) GetAbility(ctx context.Context, studentID, skillUnitID int64) (*models.StudentAbility, error) {
	ab := models.StudentAbility{StudentID: studentID, SkillUnitID: skillUnitID}
	err := s.db.QueryRowContext(ctx,
		`SELECT theta, attempts_count, updated_at FROM student_abilities
		 WHERE student_id = $1 AND skill_unit_id = $2`,
		studentID, skillUnitID,
	).Scan(&ab.Theta, &ab.AttemptsCount, &ab.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &ab, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ability: %w", err)
	}
	return &ab, nil
}

// SubmitAttempt records one graded attempt in a single transaction. The
// ability row is created if missing and locked with SELECT ... FOR UPDATE
// before estimate runs, so concurrent attempts for the same student and
// skill unit apply one after the other.
func (s *Store) SubmitAttempt(ctx context.Context, rec AttemptRecord, estimate EstimateFunc) (*models.Attempt, *models.StudentAbility, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO student_abilities (student_id, skill_unit_id, theta, attempts_count)
		 VALUES ($1, $2, 0, 0)
		 ON CONFLICT (student_id, skill_unit_id) DO NOTHING`,
		rec.StudentID, rec.SkillUnitID,
	); err != nil {
		return nil, nil, fmt.Errorf("init ability: %w", err)
	}

	current := models.StudentAbility{StudentID: rec.StudentID, SkillUnitID: rec.SkillUnitID}
	if err := tx.QueryRowContext(ctx,
		`SELECT theta, attempts_count, updated_at FROM student_abilities
		 WHERE student_id = $1 AND skill_unit_id = $2
		 FOR UPDATE`,
		rec.StudentID, rec.SkillUnitID,
	).Scan(&current.Theta, &current.AttemptsCount, &current.UpdatedAt); err != nil {
		return nil, nil, fmt.Errorf("lock ability: %w", err)
	}

	theta, se := estimate(current)

	next := current
	next.Theta = theta
	if err := tx.QueryRowContext(ctx,
		`UPDATE student_abilities
		 SET theta = $3, attempts_count = attempts_count + 1, updated_at = NOW()
		 WHERE student_id = $1 AND skill_unit_id = $2
		 RETURNING attempts_count, updated_at`,
		rec.StudentID, rec.SkillUnitID, theta,
	).Scan(&next.AttemptsCount, &next.UpdatedAt); err != nil {
		return nil, nil, fmt.Errorf("update ability: %w", err)
	}

	attempt := models.Attempt{
		StudentID:     rec.StudentID,
		SkillUnitID:   rec.SkillUnitID,
		ThetaBefore:   current.Theta,
		ThetaAfter:    theta,
		StandardError: models.FiniteOrNil(se),
		ItemCount:     len(rec.Responses),
	}
	itemIDs := make([]int64, len(rec.Responses))
	answers := make([]string, len(rec.Responses))
	correct := make([]bool, len(rec.Responses))
	difficulties := make([]float64, len(rec.Responses))
	for i, r := range rec.Responses {
		itemIDs[i] = r.ItemID
		answers[i] = r.Answer
		correct[i] = r.Correct
		difficulties[i] = r.Difficulty
		if r.Correct {
			attempt.CorrectCount++
		}
	}

	if err := tx.QueryRowContext(ctx,
		`INSERT INTO attempts (student_id, skill_unit_id, theta_before, theta_after,
		                       standard_error, correct_count, item_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		attempt.StudentID, attempt.SkillUnitID, attempt.ThetaBefore, attempt.ThetaAfter,
		nullFloat(attempt.StandardError), attempt.CorrectCount, attempt.ItemCount,
	).Scan(&attempt.ID, &attempt.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("insert attempt: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attempt_responses (attempt_id, item_id, answer, correct, difficulty)
		 SELECT $1, r.item_id, r.answer, r.correct, r.difficulty
		 FROM unnest($2::bigint[], $3::text[], $4::boolean[], $5::double precision[])
		      AS r(item_id, answer, correct, difficulty)`,
		attempt.ID, pq.Array(itemIDs), pq.Array(answers), pq.Array(correct), pq.Array(difficulties),
	); err != nil {
		return nil, nil, fmt.Errorf("insert attempt responses: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE items
		 SET times_served = items.times_served + 1,
		     times_correct = items.times_correct + CASE WHEN r.correct THEN 1 ELSE 0 END
		 FROM unnest($1::bigint[], $2::boolean[]) AS r(item_id, correct)
		 WHERE items.id = r.item_id`,
		pq.Array(itemIDs), pq.Array(correct),
	); err != nil {
		return nil, nil, fmt.Errorf("update item counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit attempt: %w", err)
	}
	return &attempt, &next, nil
}

func (s *Store) ListAttempts(ctx context.Context, studentID, skillUnitID int64, limit int) ([]models.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, skill_unit_id, theta_before, theta_after, standard_error,
		        correct_count, item_count, created_at
		 FROM attempts
		 WHERE student_id = $1 AND skill_unit_id = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3`,
		studentID, skillUnitID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var a models.Attempt
		var se sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.StudentID, &a.SkillUnitID, &a.ThetaBefore, &a.ThetaAfter, &se,
			&a.CorrectCount, &a.ItemCount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if se.Valid {
			v := se.Float64
			a.StandardError = &v
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

var _ Repository = (*Store)(nil)
