// admin_students.go — административные обработчики справочника студентов.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/service"
)

// StudentHandler — обработчики справочника студентов.
type StudentHandler struct {
	students *service.StudentService
	logger   *slog.Logger
}

// NewStudentHandler создаёт обработчик справочника студентов.
func NewStudentHandler(students *service.StudentService, logger *slog.Logger) *StudentHandler {
	return &StudentHandler{
		students: students,
		logger:   logger.With(slog.String("component", "student_handler")),
	}
}

// studentResponse — представление студента в ответах API.
type studentResponse struct {
	StudentID string    `json:"student_id"`
	FullName  string    `json:"full_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func toStudentResponse(s *model.Student) studentResponse {
	return studentResponse{
		StudentID: s.StudentID,
		FullName:  s.FullName,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
	}
}

// Create — POST /api/v1/admin/students.
func (h *StudentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentID string `json:"student_id"`
		FullName  string `json:"full_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	student, err := h.students.Create(r.Context(), req.StudentID, req.FullName)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStudentResponse(student))
}

// List — GET /api/v1/admin/students?status=.
func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r)

	var status *string
	if v := r.URL.Query().Get("status"); v != "" {
		status = &v
	}

	students, total, err := h.students.List(r.Context(), status, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]studentResponse, 0, len(students))
	for _, s := range students {
		items = append(items, toStudentResponse(s))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Get — GET /api/v1/admin/student/{id}.
func (h *StudentHandler) Get(w http.ResponseWriter, r *http.Request) {
	student, err := h.students.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentResponse(student))
}

// SetStatus — PUT /api/v1/admin/student/{id}/status.
// Блокировка студента немедленно закрывает ему проход через КПП.
func (h *StudentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	student, err := h.students.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentResponse(student))
}

// Delete — DELETE /api/v1/admin/student/{id}.
func (h *StudentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.students.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
