package assessment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizlab/adaptive-backend/internal/logger"
	"github.com/quizlab/adaptive-backend/internal/middleware"
	"github.com/quizlab/adaptive-backend/internal/models"
)

const testAdminKey = "admin-key"

type testServer struct {
	t      *testing.T
	router *mux.Router
	repo   *memRepo
}

// withStudent plays the JWT middleware: the X-Student header becomes the
// authenticated student id.
func withStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id int64
		if _, err := fmt.Sscan(r.Header.Get("X-Student"), &id); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(middleware.WithStudentID(r.Context(), id)))
	})
}

func newTestServer(t *testing.T) *testServer {
	svc, repo := newTestService(t)
	h := NewHandler(svc, logger.NewNop())

	r := mux.NewRouter()
	admin := r.PathPrefix("/api/v1/admin").Subrouter()
	admin.Use(middleware.RequireAdminKey(testAdminKey))
	protected := r.PathPrefix("/api/v1").Subrouter()
	protected.Use(withStudent)
	h.RegisterRoutes(protected, admin)

	return &testServer{t: t, router: r, repo: repo}
}

func (s *testServer) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) admin(method, path string, body interface{}) *httptest.ResponseRecorder {
	return s.do(method, "/api/v1/admin"+path, body, map[string]string{middleware.AdminKeyHeader: testAdminKey})
}

func (s *testServer) student(method, path string, body interface{}) *httptest.ResponseRecorder {
	return s.do(method, "/api/v1"+path, body, map[string]string{"X-Student": "77"})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandler_QuizFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.admin("POST", "/skill-units", models.CreateSkillUnitRequest{Code: "ALG-1", Title: "Linear equations"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	su := decode[models.SkillUnit](t, rec)

	rec = s.admin("POST", "/skill-units", models.CreateSkillUnitRequest{Code: "ALG-1", Title: "Again"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	easy, hard := -1.0, 1.0
	rec = s.admin("POST", fmt.Sprintf("/skill-units/%d/items", su.ID), models.CreateItemsRequest{Items: []models.NewItem{
		{Prompt: "x+1=2", Choices: []string{"1", "2"}, CorrectAnswer: "1", Difficulty: &easy},
		{Prompt: "2x+3=11", Choices: []string{"4", "5"}, CorrectAnswer: "4", Difficulty: &hard},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.ItemListResponse](t, rec)
	require.Equal(t, 2, created.Total)

	rec = s.student("GET", fmt.Sprintf("/skill-units/%d/ability", su.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, decode[models.StudentAbility](t, rec).Theta)

	rec = s.student("POST", fmt.Sprintf("/skill-units/%d/quiz", su.ID), models.QuizRequest{Count: 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quiz := decode[models.QuizResponse](t, rec)
	require.Len(t, quiz.Items, 2)
	assert.NotContains(t, rec.Body.String(), "correct_answer", "quiz must not leak answers")

	answers := models.SubmitAttemptRequest{Answers: []models.AnswerSubmission{
		{ItemID: created.Items[0].ID, Answer: "1"},
		{ItemID: created.Items[1].ID, Answer: "5"},
	}}
	rec = s.student("POST", fmt.Sprintf("/skill-units/%d/attempts", su.ID), answers)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[models.AttemptResult](t, rec)
	assert.Equal(t, 1, result.AttemptsCount)
	assert.Equal(t, 1, result.CorrectCount)
	assert.InDelta(t, 0.0, result.ThetaAfter, 0.01)

	rec = s.student("GET", fmt.Sprintf("/skill-units/%d/attempts?limit=5", su.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Attempt](t, rec), 1)

	rec = s.student("GET", "/skill-units", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.SkillUnit](t, rec), 1)
}

func TestHandler_QuizWithoutBody(t *testing.T) {
	s := newTestServer(t)
	rec := s.admin("POST", "/skill-units", models.CreateSkillUnitRequest{Code: "C", Title: "T"})
	su := decode[models.SkillUnit](t, rec)
	b := 0.0
	s.admin("POST", fmt.Sprintf("/skill-units/%d/items", su.ID), models.CreateItemsRequest{Items: []models.NewItem{{Prompt: "p", CorrectAnswer: "a", Difficulty: &b}}})

	rec = s.student("POST", fmt.Sprintf("/skill-units/%d/quiz", su.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[models.QuizResponse](t, rec).Adaptive)
}

func TestHandler_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		rec  func() *httptest.ResponseRecorder
		want int
	}{
		{"bad id", func() *httptest.ResponseRecorder { return s.student("GET", "/skill-units/abc/ability", nil) }, http.StatusBadRequest},
		{"unknown unit", func() *httptest.ResponseRecorder { return s.student("GET", "/skill-units/404/ability", nil) }, http.StatusNotFound},
		{"empty attempt", func() *httptest.ResponseRecorder {
			return s.student("POST", "/skill-units/1/attempts", models.SubmitAttemptRequest{})
		}, http.StatusBadRequest},
		{"missing admin key", func() *httptest.ResponseRecorder {
			return s.do("POST", "/api/v1/admin/skill-units", models.CreateSkillUnitRequest{Code: "X", Title: "Y"}, nil)
		}, http.StatusForbidden},
		{"no student", func() *httptest.ResponseRecorder { return s.do("GET", "/api/v1/skill-units", nil, nil) }, http.StatusUnauthorized},
		{"bad body", func() *httptest.ResponseRecorder {
			req := httptest.NewRequest("POST", "/api/v1/admin/skill-units", bytes.NewBufferString("{"))
			req.Header.Set(middleware.AdminKeyHeader, testAdminKey)
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)
			return rec
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec().Code)
		})
	}
}

func TestHandler_EmptyPool(t *testing.T) {
	s := newTestServer(t)
	su := decode[models.SkillUnit](t, s.admin("POST", "/skill-units", models.CreateSkillUnitRequest{Code: "E", Title: "Empty"}))

	rec := s.student("POST", fmt.Sprintf("/skill-units/%d/quiz", su.ID), models.QuizRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_GenerateAndRecalibrate(t *testing.T) {
	s := newTestServer(t)
	su := decode[models.SkillUnit](t, s.admin("POST", "/skill-units", models.CreateSkillUnitRequest{Code: "G", Title: "Gen"}))

	rec := s.admin("POST", fmt.Sprintf("/skill-units/%d/items/generate", su.ID), models.GenerateItemsRequest{Difficulty: models.DifficultyHard, Count: 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[models.ItemListResponse](t, rec).Total)

	rec = s.admin("GET", fmt.Sprintf("/skill-units/%d/items", su.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[models.ItemListResponse](t, rec).Total)

	rec = s.admin("POST", "/recalibrate?min_responses=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[models.RecalibrationReport](t, rec)
	assert.Equal(t, 0, report.TotalEvaluated)
	assert.NotNil(t, report.Details)
}
