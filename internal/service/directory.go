// directory.go — адаптер справочников над репозиториями для GateService.
package service

import (
	"context"
	"errors"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/repository"
)

// repoDirectory — реализация Directory поверх репозиториев PostgreSQL.
type repoDirectory struct {
	students repository.StudentRepository
	assets   repository.AssetRepository
}

// NewDirectory создаёт справочник студентов и активов для КПП.
func NewDirectory(students repository.StudentRepository, assets repository.AssetRepository) Directory {
	return &repoDirectory{students: students, assets: assets}
}

// StudentByID возвращает студента либо (nil, nil), если он не найден.
// Репозиторная ErrNotFound здесь не ошибка: отсутствие студента —
// штатное решение КПП.
func (d *repoDirectory) StudentByID(ctx context.Context, studentID string) (*model.Student, error) {
	s, err := d.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (d *repoDirectory) AssetByID(ctx context.Context, assetID int64) (*model.Asset, error) {
	return d.assets.GetByID(ctx, assetID)
}

func (d *repoDirectory) ActiveAssetsOwnedBy(ctx context.Context, studentID string) ([]*model.Asset, error) {
	return d.assets.ListActiveOwnedBy(ctx, studentID)
}
