package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
)

// OperatorRepository — интерфейс CRUD для таблицы operator.
type OperatorRepository interface {
	// Create создаёт учётную запись оператора.
	Create(ctx context.Context, op *model.Operator) error
	// GetByID возвращает оператора по числовому идентификатору.
	GetByID(ctx context.Context, userID int64) (*model.Operator, error)
	// GetByUsername возвращает оператора по имени пользователя.
	GetByUsername(ctx context.Context, username string) (*model.Operator, error)
	// List возвращает список операторов.
	List(ctx context.Context, limit, offset int) ([]*model.Operator, error)
	// Count возвращает общее количество операторов.
	Count(ctx context.Context) (int, error)
	// Delete удаляет учётную запись оператора.
	Delete(ctx context.Context, userID int64) error
}

// operatorRepo — реализация OperatorRepository.
type operatorRepo struct {
	db DBTX
}

// NewOperatorRepository создаёт репозиторий операторов.
func NewOperatorRepository(db DBTX) OperatorRepository {
	return &operatorRepo{db: db}
}

func (r *operatorRepo) Create(ctx context.Context, op *model.Operator) error {
	query := `
		INSERT INTO operator (username, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING user_id, created_at`

	err := r.db.QueryRow(ctx, query, op.Username, op.PasswordHash, op.Role).
		Scan(&op.UserID, &op.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: имя пользователя занято", ErrConflict)
		}
		return fmt.Errorf("ошибка создания оператора: %w", err)
	}
	return nil
}

func (r *operatorRepo) GetByID(ctx context.Context, userID int64) (*model.Operator, error) {
	query := `
		SELECT user_id, username, password_hash, role, created_at
		FROM operator
		WHERE user_id = $1`

	op := &model.Operator{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&op.UserID, &op.Username, &op.PasswordHash, &op.Role, &op.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения оператора: %w", err)
	}
	return op, nil
}

func (r *operatorRepo) GetByUsername(ctx context.Context, username string) (*model.Operator, error) {
	query := `
		SELECT user_id, username, password_hash, role, created_at
		FROM operator
		WHERE username = $1`

	op := &model.Operator{}
	err := r.db.QueryRow(ctx, query, username).Scan(
		&op.UserID, &op.Username, &op.PasswordHash, &op.Role, &op.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения оператора по имени: %w", err)
	}
	return op, nil
}

func (r *operatorRepo) List(ctx context.Context, limit, offset int) ([]*model.Operator, error) {
	query := `
		SELECT user_id, username, password_hash, role, created_at
		FROM operator
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка операторов: %w", err)
	}
	defer rows.Close()

	var result []*model.Operator
	for rows.Next() {
		op := &model.Operator{}
		if err := rows.Scan(&op.UserID, &op.Username, &op.PasswordHash, &op.Role, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования оператора: %w", err)
		}
		result = append(result, op)
	}
	return result, rows.Err()
}

func (r *operatorRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM operator`).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта операторов: %w", err)
	}
	return count, nil
}

func (r *operatorRepo) Delete(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM operator WHERE user_id = $1`, userID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: на оператора есть записи в журнале", ErrConflict)
		}
		return fmt.Errorf("ошибка удаления оператора: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
