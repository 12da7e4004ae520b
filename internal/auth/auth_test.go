package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/quizlab/adaptive-backend/internal/logger"
	"github.com/quizlab/adaptive-backend/internal/middleware"
	"github.com/quizlab/adaptive-backend/internal/models"
)

type memStore struct {
	mu       sync.Mutex
	nextID   int64
	students map[string]*models.Student
}

func newMemStore() *memStore {
	return &memStore{students: map[string]*models.Student{}}
}

func (m *memStore) CreateStudent(_ context.Context, email, name, hash string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[email]; ok {
		return nil, ErrEmailTaken
	}
	m.nextID++
	st := &models.Student{ID: m.nextID, Email: email, Name: name, Password: hash, CreatedAt: time.Now()}
	m.students[email] = st
	cp := *st
	cp.Password = ""
	return &cp, nil
}

func (m *memStore) GetStudentByEmail(_ context.Context, email string) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[email]
	if !ok {
		return nil, ErrStudentNotFound
	}
	cp := *st
	return &cp, nil
}

func (m *memStore) GetStudentByID(_ context.Context, id int64) (*models.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.students {
		if st.ID == id {
			cp := *st
			cp.Password = ""
			return &cp, nil
		}
	}
	return nil, ErrStudentNotFound
}

func newTestHandler() (*Handler, *Issuer) {
	issuer := NewIssuer("test-secret", time.Hour)
	h := NewHandler(newMemStore(), issuer, logger.NewNop())
	h.cost = bcrypt.MinCost
	return h, issuer
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	tok, err := iss.Issue(42)
	require.NoError(t, err)

	id, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = NewIssuer("other", time.Hour).Parse(tok)
	assert.Error(t, err, "wrong secret")

	_, err = iss.Parse("garbage")
	assert.Error(t, err)
}

func TestIssuer_Expired(t *testing.T) {
	iss := NewIssuer("secret", time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, err := iss.Issue(1)
	require.NoError(t, err)

	iss.now = time.Now
	_, err = iss.Parse(tok)
	assert.Error(t, err)
}

func TestRegisterAndLogin(t *testing.T) {
	h, issuer := newTestHandler()

	rec := post(h.Register, `{"email":" Ada@Example.com ","name":"Ada Lovelace","password":"analytical"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var reg models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, "ada@example.com", reg.Student.Email)
	assert.NotContains(t, rec.Body.String(), "password")
	id, err := issuer.Parse(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.Student.ID, id)

	rec = post(h.Register, `{"email":"ada@example.com","name":"Ada","password":"analytical"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post(h.Login, `{"email":"ADA@example.com","password":"analytical"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post(h.Login, `{"email":"ada@example.com","password":"wrong-one"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h.Login, `{"email":"nobody@example.com","password":"whatever1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_Validation(t *testing.T) {
	h, _ := newTestHandler()

	for _, body := range []string{
		`{`,
		`{"email":"a@b.c","name":"","password":"longenough"}`,
		`{"email":"a@b.c","name":"A","password":"short"}`,
	} {
		assert.Equal(t, http.StatusBadRequest, post(h.Register, body).Code, body)
	}
}

func TestGetCurrentStudent(t *testing.T) {
	h, _ := newTestHandler()
	rec := post(h.Register, `{"email":"a@b.c","name":"Alan Turing","password":"enigma123"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var reg models.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(middleware.WithStudentID(req.Context(), reg.Student.ID))
	rec = httptest.NewRecorder()
	h.GetCurrentStudent(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alan Turing")

	rec = httptest.NewRecorder()
	h.GetCurrentStudent(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
