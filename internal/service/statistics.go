// statistics.go — сводная статистика для административной панели.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/repository"
)

// Statistics — сводные показатели системы.
type Statistics struct {
	TotalStudents   int            `json:"total_students"`
	ActiveStudents  int            `json:"active_students"`
	TotalAssets     int            `json:"total_assets"`
	AssetsByStatus  map[string]int `json:"assets_by_status"`
	TotalExits      int            `json:"total_exits"`
	ExitsLast24h    int            `json:"exits_last_24h"`
	AllowedLast24h  int            `json:"allowed_last_24h"`
	BlockedLast24h  int            `json:"blocked_last_24h"`
}

// StatisticsService — сервис сводной статистики.
type StatisticsService struct {
	students repository.StudentRepository
	assets   repository.AssetRepository
	exitLog  repository.ExitLogRepository
	now      func() time.Time
}

// NewStatisticsService создаёт сервис статистики.
func NewStatisticsService(
	students repository.StudentRepository,
	assets repository.AssetRepository,
	exitLog repository.ExitLogRepository,
) *StatisticsService {
	return &StatisticsService{
		students: students,
		assets:   assets,
		exitLog:  exitLog,
		now:      time.Now,
	}
}

// Collect собирает сводные показатели.
func (s *StatisticsService) Collect(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}
	var err error

	stats.TotalStudents, err = s.students.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("подсчёт студентов: %w", err)
	}

	active := model.StudentStatusActive
	stats.ActiveStudents, err = s.students.Count(ctx, &active)
	if err != nil {
		return nil, fmt.Errorf("подсчёт активных студентов: %w", err)
	}

	stats.TotalAssets, err = s.assets.Count(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("подсчёт активов: %w", err)
	}

	stats.AssetsByStatus, err = s.assets.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт активов по статусам: %w", err)
	}

	stats.TotalExits, err = s.exitLog.Count(ctx, repository.ExitLogFilters{})
	if err != nil {
		return nil, fmt.Errorf("подсчёт записей журнала: %w", err)
	}

	dayAgo := s.now().Add(-24 * time.Hour)
	byResult, err := s.exitLog.CountByResult(ctx, &dayAgo, nil)
	if err != nil {
		return nil, fmt.Errorf("статистика решений за сутки: %w", err)
	}
	stats.AllowedLast24h = byResult[model.ResultAllowed]
	stats.BlockedLast24h = byResult[model.ResultBlocked]
	stats.ExitsLast24h = stats.AllowedLast24h + stats.BlockedLast24h

	return stats, nil
}
