package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
)

// StudentRepository — интерфейс CRUD для таблицы student.
type StudentRepository interface {
	// Create создаёт нового студента.
	Create(ctx context.Context, s *model.Student) error
	// GetByID возвращает студента по номеру студенческого билета.
	GetByID(ctx context.Context, studentID string) (*model.Student, error)
	// List возвращает список студентов с фильтрацией по статусу.
	List(ctx context.Context, status *string, limit, offset int) ([]*model.Student, error)
	// Update обновляет имя и статус студента.
	Update(ctx context.Context, s *model.Student) error
	// Delete удаляет студента из справочника.
	Delete(ctx context.Context, studentID string) error
	// Count возвращает количество студентов с фильтрацией по статусу.
	Count(ctx context.Context, status *string) (int, error)
}

// studentRepo — реализация StudentRepository.
type studentRepo struct {
	db DBTX
}

// NewStudentRepository создаёт репозиторий студентов.
func NewStudentRepository(db DBTX) StudentRepository {
	return &studentRepo{db: db}
}

func (r *studentRepo) Create(ctx context.Context, s *model.Student) error {
	query := `
		INSERT INTO student (student_id, full_name, status)
		VALUES ($1, $2, $3)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query, s.StudentID, s.FullName, s.Status).
		Scan(&s.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: студент с таким student_id уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка создания студента: %w", err)
	}
	return nil
}

func (r *studentRepo) GetByID(ctx context.Context, studentID string) (*model.Student, error) {
	query := `
		SELECT student_id, full_name, status, created_at
		FROM student
		WHERE student_id = $1`

	s := &model.Student{}
	err := r.db.QueryRow(ctx, query, studentID).Scan(
		&s.StudentID, &s.FullName, &s.Status, &s.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения студента: %w", err)
	}
	return s, nil
}

func (r *studentRepo) List(ctx context.Context, status *string, limit, offset int) ([]*model.Student, error) {
	query := `
		SELECT student_id, full_name, status, created_at
		FROM student
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка студентов: %w", err)
	}
	defer rows.Close()

	var result []*model.Student
	for rows.Next() {
		s := &model.Student{}
		if err := rows.Scan(&s.StudentID, &s.FullName, &s.Status, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования студента: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *studentRepo) Update(ctx context.Context, s *model.Student) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE student
		SET full_name = $2, status = $3
		WHERE student_id = $1`,
		s.StudentID, s.FullName, s.Status,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления студента: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *studentRepo) Delete(ctx context.Context, studentID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM student WHERE student_id = $1`, studentID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: у студента есть зарегистрированные активы", ErrConflict)
		}
		return fmt.Errorf("ошибка удаления студента: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *studentRepo) Count(ctx context.Context, status *string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM student WHERE ($1::text IS NULL OR status = $1)`,
		status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта студентов: %w", err)
	}
	return count, nil
}
