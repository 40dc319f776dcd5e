// operators.go — учётные записи операторов: вход и регистрация.
//
// Пароли хранятся как bcrypt-хеши. Успешный вход выдаёт HS256 JWT
// с идентификатором и ролью оператора. Регистрация закрыта по умолчанию:
// её открывает либо администратор, либо bootstrap-токен для создания
// первой учётной записи, либо явный флаг самостоятельной регистрации.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/dbu/eacs/gate-module/internal/config"
	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/domain/rbac"
	"github.com/dbu/eacs/gate-module/internal/repository"
)

// OperatorService — сервис учётных записей операторов.
type OperatorService struct {
	operators repository.OperatorRepository
	cfg       *config.Config
	now       func() time.Time
	logger    *slog.Logger
}

// NewOperatorService создаёт сервис учётных записей операторов.
func NewOperatorService(operators repository.OperatorRepository, cfg *config.Config, logger *slog.Logger) *OperatorService {
	return &OperatorService{
		operators: operators,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "operator_service")),
	}
}

// Login проверяет учётные данные и выдаёт JWT.
// Несуществующее имя и неверный пароль неразличимы для вызывающего.
func (s *OperatorService) Login(ctx context.Context, username, password string) (string, *model.Operator, error) {
	op, err := s.operators.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("поиск оператора: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	tok, err := s.issueJWT(op)
	if err != nil {
		return "", nil, fmt.Errorf("выпуск JWT: %w", err)
	}

	s.logger.Info("Оператор вошёл в систему",
		slog.Int64("user_id", op.UserID),
		slog.String("username", op.Username),
		slog.String("role", op.Role),
	)

	return tok, op, nil
}

// issueJWT подписывает access-токен оператора (HS256).
func (s *OperatorService) issueJWT(op *model.Operator) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":      strconv.FormatInt(op.UserID, 10),
		"username": op.Username,
		"role":     op.Role,
		"iss":      s.cfg.JWTIssuer,
		"iat":      now.Unix(),
		"exp":      now.Add(s.cfg.JWTAccessTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

// RegisterAuthz — контекст авторизации запроса регистрации.
type RegisterAuthz struct {
	// Вызывающий аутентифицирован как администратор
	IsAdmin bool
	// Значение заголовка X-Bootstrap-Token (для первой учётной записи)
	BootstrapToken string
}

// Register создаёт учётную запись оператора.
//
// Порядок проверки допуска:
//  1. администратор может создавать любые учётные записи;
//  2. bootstrap-токен допускает создание ПЕРВОЙ учётной записи
//     (в том числе администратора), пока операторов нет;
//  3. флаг самостоятельной регистрации допускает создание
//     только gate_operator.
func (s *OperatorService) Register(ctx context.Context, username, password, role string, authz RegisterAuthz) (*model.Operator, error) {
	if len(username) < 3 {
		return nil, fmt.Errorf("%w: имя пользователя короче 3 символов", ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: пароль короче 8 символов", ErrValidation)
	}
	if role == "" {
		role = rbac.RoleGateOperator
	}
	if !rbac.IsValidRole(role) {
		return nil, ErrInvalidRole
	}

	if !authz.IsAdmin {
		allowed := false

		if s.cfg.BootstrapAdminToken != "" && authz.BootstrapToken != "" {
			count, err := s.operators.Count(ctx)
			if err != nil {
				return nil, fmt.Errorf("подсчёт операторов: %w", err)
			}
			if count == 0 && subtle.ConstantTimeCompare(
				[]byte(authz.BootstrapToken), []byte(s.cfg.BootstrapAdminToken)) == 1 {
				allowed = true
			}
		}

		if !allowed && s.cfg.AllowSelfRegistration {
			// Самостоятельная регистрация не раздаёт административные роли
			if role != rbac.RoleGateOperator {
				return nil, ErrInvalidRole
			}
			allowed = true
		}

		if !allowed {
			return nil, ErrRegistrationClosed
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("хеширование пароля: %w", err)
	}

	op := &model.Operator{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.operators.Create(ctx, op); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: имя пользователя %q занято", ErrConflict, username)
		}
		return nil, fmt.Errorf("создание оператора: %w", err)
	}

	s.logger.Info("Оператор зарегистрирован",
		slog.Int64("user_id", op.UserID),
		slog.String("username", op.Username),
		slog.String("role", op.Role),
	)

	return op, nil
}

// List возвращает список операторов.
func (s *OperatorService) List(ctx context.Context, limit, offset int) ([]*model.Operator, int, error) {
	ops, err := s.operators.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка операторов: %w", err)
	}
	total, err := s.operators.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт операторов: %w", err)
	}
	return ops, total, nil
}

// Delete удаляет учётную запись оператора.
func (s *OperatorService) Delete(ctx context.Context, userID int64) error {
	if err := s.operators.Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: на оператора есть записи в журнале", ErrConflict)
		}
		return fmt.Errorf("удаление оператора: %w", err)
	}

	s.logger.Info("Оператор удалён", slog.Int64("user_id", userID))
	return nil
}
