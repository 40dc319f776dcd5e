// students.go — сервис справочника студентов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/repository"
)

// StudentService — сервис справочника студентов.
type StudentService struct {
	students repository.StudentRepository
	logger   *slog.Logger
}

// NewStudentService создаёт сервис справочника студентов.
func NewStudentService(students repository.StudentRepository, logger *slog.Logger) *StudentService {
	return &StudentService{
		students: students,
		logger:   logger.With(slog.String("component", "student_service")),
	}
}

// Create добавляет студента в справочник.
func (s *StudentService) Create(ctx context.Context, studentID, fullName string) (*model.Student, error) {
	if len(studentID) < 3 {
		return nil, fmt.Errorf("%w: идентификатор студента короче 3 символов", ErrValidation)
	}
	if fullName == "" {
		return nil, fmt.Errorf("%w: имя студента не задано", ErrValidation)
	}

	student := &model.Student{
		StudentID: studentID,
		FullName:  fullName,
		Status:    model.StudentStatusActive,
	}
	if err := s.students.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: студент %q уже зарегистрирован", ErrConflict, studentID)
		}
		return nil, fmt.Errorf("создание студента: %w", err)
	}

	s.logger.Info("Студент добавлен в справочник", slog.String("student_id", studentID))
	return student, nil
}

// Get возвращает студента по идентификатору.
func (s *StudentService) Get(ctx context.Context, studentID string) (*model.Student, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение студента: %w", err)
	}
	return student, nil
}

// List возвращает список студентов с фильтрацией по статусу.
func (s *StudentService) List(ctx context.Context, status *string, limit, offset int) ([]*model.Student, int, error) {
	students, err := s.students.List(ctx, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка студентов: %w", err)
	}
	total, err := s.students.Count(ctx, status)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт студентов: %w", err)
	}
	return students, total, nil
}

// SetStatus меняет статус студента (active/blocked).
// Блокировка немедленно отражается на КПП: студент перепроверяется
// на каждом шаге прохода.
func (s *StudentService) SetStatus(ctx context.Context, studentID, status string) (*model.Student, error) {
	if status != model.StudentStatusActive && status != model.StudentStatusBlocked {
		return nil, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, status)
	}

	student, err := s.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}

	student.Status = status
	if err := s.students.Update(ctx, student); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("обновление студента: %w", err)
	}

	s.logger.Info("Статус студента изменён",
		slog.String("student_id", studentID),
		slog.String("status", status),
	)
	return student, nil
}

// Delete удаляет студента из справочника.
func (s *StudentService) Delete(ctx context.Context, studentID string) error {
	if err := s.students.Delete(ctx, studentID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: у студента есть зарегистрированные активы", ErrConflict)
		}
		return fmt.Errorf("удаление студента: %w", err)
	}

	s.logger.Info("Студент удалён из справочника", slog.String("student_id", studentID))
	return nil
}
