// auth.go — обработчики аутентификации операторов.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/dbu/eacs/gate-module/internal/api/errors"
	"github.com/dbu/eacs/gate-module/internal/api/middleware"
	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/domain/rbac"
	"github.com/dbu/eacs/gate-module/internal/service"
)

// AuthHandler — обработчики входа и регистрации операторов.
type AuthHandler struct {
	operators *service.OperatorService
	logger    *slog.Logger
}

// NewAuthHandler создаёт обработчик аутентификации.
func NewAuthHandler(operators *service.OperatorService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		operators: operators,
		logger:    logger.With(slog.String("component", "auth_handler")),
	}
}

// operatorResponse — представление оператора в ответах API.
type operatorResponse struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toOperatorResponse(op *model.Operator) operatorResponse {
	return operatorResponse{
		UserID:    op.UserID,
		Username:  op.Username,
		Role:      op.Role,
		CreatedAt: op.CreatedAt,
	}
}

// Login — POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		apierrors.ValidationError(w, "Требуются username и password")
		return
	}

	tok, op, err := h.operators.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": tok,
		"token_type":   "Bearer",
		"operator":     toOperatorResponse(op),
	})
}

// Register — POST /api/v1/auth/register.
// Допуск: администратор, bootstrap-токен первой учётной записи
// (заголовок X-Bootstrap-Token) или флаг самостоятельной регистрации.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	authz := service.RegisterAuthz{
		IsAdmin:        claims != nil && rbac.CanAdminister(claims.Role),
		BootstrapToken: r.Header.Get("X-Bootstrap-Token"),
	}

	op, err := h.operators.Register(r.Context(), req.Username, req.Password, req.Role, authz)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOperatorResponse(op))
}

// Me — GET /api/v1/auth/me. Возвращает claims текущего оператора.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  claims.OperatorID,
		"username": claims.Username,
		"role":     claims.Role,
	})
}
