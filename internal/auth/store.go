package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/quizlab/adaptive-backend/internal/models"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrStudentNotFound = errors.New("student not found")
)

// Store persists student accounts.
type Store interface {
	CreateStudent(ctx context.Context, email, name, passwordHash string) (*models.Student, error)
	GetStudentByEmail(ctx context.Context, email string) (*models.Student, error)
	GetStudentByID(ctx context.Context, id int64) (*models.Student, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateStudent(ctx context.Context, email, name, passwordHash string) (*models.Student, error) {
	var st models.Student
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO students (email, name, password)
		 VALUES ($1, $2, $3)
		 RETURNING id, email, name, created_at, updated_at`,
		email, name, passwordHash,
	).Scan(&st.ID, &st.Email, &st.Name, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert student: %w", err)
	}
	return &st, nil
}

// GetStudentByEmail includes the password hash for login checks.
func (s *PostgresStore) GetStudentByEmail(ctx context.Context, email string) (*models.Student, error) {
	var st models.Student
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password, created_at, updated_at FROM students WHERE email = $1`,
		email,
	).Scan(&st.ID, &st.Email, &st.Name, &st.Password, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student by email: %w", err)
	}
	return &st, nil
}

func (s *PostgresStore) GetStudentByID(ctx context.Context, id int64) (*models.Student, error) {
	var st models.Student
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, created_at, updated_at FROM students WHERE id = $1`,
		id,
	).Scan(&st.ID, &st.Email, &st.Name, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get student by id: %w", err)
	}
	return &st, nil
}
