package assessment

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/quizlab/adaptive-backend/internal/logger"
	"github.com/quizlab/adaptive-backend/internal/middleware"
	"github.com/quizlab/adaptive-backend/internal/models"
)

type Handler struct {
	service *Service
	log     *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// RegisterRoutes mounts student routes on protected (JWT) and item-bank
// routes on admin (admin key).
func (h *Handler) RegisterRoutes(protected, admin *mux.Router) {
	protected.HandleFunc("/skill-units", h.ListSkillUnits).Methods("GET")
	protected.HandleFunc("/skill-units/{id}/ability", h.GetAbility).Methods("GET")
	protected.HandleFunc("/skill-units/{id}/quiz", h.AssembleQuiz).Methods("POST")
	protected.HandleFunc("/skill-units/{id}/attempts", h.SubmitAttempt).Methods("POST")
	protected.HandleFunc("/skill-units/{id}/attempts", h.ListAttempts).Methods("GET")

	admin.HandleFunc("/skill-units", h.CreateSkillUnit).Methods("POST")
	admin.HandleFunc("/skill-units/{id}/items", h.ListItems).Methods("GET")
	admin.HandleFunc("/skill-units/{id}/items", h.CreateItems).Methods("POST")
	admin.HandleFunc("/skill-units/{id}/items/generate", h.GenerateItems).Methods("POST")
	admin.HandleFunc("/recalibrate", h.Recalibrate).Methods("POST")
}

func (h *Handler) CreateSkillUnit(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSkillUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	su, err := h.service.CreateSkillUnit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, su)
}

func (h *Handler) ListSkillUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.service.ListSkillUnits(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	skillUnitID, ok := skillUnitParam(w, r)
	if !ok {
		return
	}

	resp, err := h.service.ListItems(r.Context(), skillUnitID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CreateItems(w http.ResponseWriter, r *http.Request) {
	skillUnitID, ok := skillUnitParam(w, r)
	if !ok {
		return
	}

	var req models.CreateItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	items, err := h.service.CreateItems(r.Context(), skillUnitID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.ItemListResponse{Items: items, Total: len(items)})
}

func (h *Handler) GenerateItems(w http.ResponseWriter, r *http.Request) {
	skillUnitID, ok := skillUnitParam(w, r)
	if !ok {
		return
	}

	var req models.GenerateItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	items, err := h.service.GenerateItems(r.Context(), skillUnitID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.ItemListResponse{Items: items, Total: len(items)})
}

func (h *Handler) GetAbility(w http.ResponseWriter, r *http.Request) {
	studentID, ok := requireStudent(w, r)
	if !ok {
		return
	}
	skillUnitID, ok := skillUnitParam(w, r)
	if !ok {
		return
	}

	ability, err := h.service.GetAbility(r.Context(), studentID, skillUnitID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ability)
}

func (h *Handler) AssembleQuiz(w http.ResponseWriter, r *http.Request) {
	studentID, ok := requireStudent(w, r)
	if !ok {
		return
	}
	skillUnitID, ok := skillUnitParam(w, r)
	if !ok {
		return
	}

	var req models.QuizRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
			return
		}
	}

	quiz, err := h.service.AssembleQuiz(r.Context(), studentID, skillUnitID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *Handler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	studentID, ok := requireStudent(w, r)
	if !ok {
		return
	}
	skillUnitID, ok := skillUnitParam(w, r)
	if !ok {
		return
	}

	var req models.SubmitAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := h.service.SubmitAttempt(r.Context(), studentID, skillUnitID, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	studentID, ok := requireStudent(w, r)
	if !ok {
		return
	}
	skillUnitID, ok := skillUnitParam(w, r)
	if !ok {
		return
	}

	limit := intQueryParam(r.URL.Query(), "limit", defaultHistoryLimit)
	attempts, err := h.service.ListAttempts(r.Context(), studentID, skillUnitID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (h *Handler) Recalibrate(w http.ResponseWriter, r *http.Request) {
	minResponses := intQueryParam(r.URL.Query(), "min_responses", 0)

	report, err := h.service.RecalibrateDifficulty(r.Context(), minResponses)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ── Helpers ─────────────────────────────────────────────

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Skill unit not found"})
	case errors.Is(err, ErrEmptyPool):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, ErrConflict):
		writeJSON(w, http.StatusConflict, models.ErrorResponse{Error: err.Error()})
	default:
		h.log.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Internal server error"})
	}
}

func requireStudent(w http.ResponseWriter, r *http.Request) (int64, bool) {
	studentID, ok := middleware.StudentID(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Unauthorized"})
	}
	return studentID, ok
}

func skillUnitParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid skill unit ID"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func intQueryParam(query url.Values, key string, defaultVal int) int {
	s := query.Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	return v
}
