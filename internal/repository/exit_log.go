package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
)

// ExitLogFilters — фильтры выборки журнала решений КПП.
type ExitLogFilters struct {
	StudentID *string
	Result    *string
	From      *time.Time
	To        *time.Time
}

// ExitLogRepository — интерфейс append-only журнала решений КПП.
// Записи только добавляются и читаются: Update и Delete отсутствуют намеренно.
type ExitLogRepository interface {
	// Append добавляет запись в журнал.
	Append(ctx context.Context, entry *model.ExitLog) error
	// List возвращает записи журнала, свежие первыми.
	List(ctx context.Context, filters ExitLogFilters, limit, offset int) ([]*model.ExitLog, error)
	// Count возвращает количество записей с фильтрацией.
	Count(ctx context.Context, filters ExitLogFilters) (int, error)
	// CountByResult возвращает распределение решений за период.
	CountByResult(ctx context.Context, from, to *time.Time) (map[string]int, error)
}

// exitLogRepo — реализация ExitLogRepository.
type exitLogRepo struct {
	db DBTX
}

// NewExitLogRepository создаёт репозиторий журнала КПП.
func NewExitLogRepository(db DBTX) ExitLogRepository {
	return &exitLogRepo{db: db}
}

func (r *exitLogRepo) Append(ctx context.Context, entry *model.ExitLog) error {
	query := `
		INSERT INTO exit_log (student_id, asset_id, operator_id, result, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING log_id, timestamp`

	err := r.db.QueryRow(ctx, query,
		entry.StudentID, entry.AssetID, entry.OperatorID, entry.Result, entry.Reason,
	).Scan(&entry.LogID, &entry.Timestamp)
	if err != nil {
		return fmt.Errorf("ошибка записи в журнал КПП: %w", err)
	}
	return nil
}

// buildWhere собирает WHERE-условия из фильтров.
func (f ExitLogFilters) buildWhere() (string, []any) {
	var conditions []string
	var args []any
	argNum := 1

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argNum))
		args = append(args, val)
		argNum++
	}

	if f.StudentID != nil {
		add("student_id = $%d", *f.StudentID)
	}
	if f.Result != nil {
		add("result = $%d", *f.Result)
	}
	if f.From != nil {
		add("timestamp >= $%d", *f.From)
	}
	if f.To != nil {
		add("timestamp <= $%d", *f.To)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *exitLogRepo) List(ctx context.Context, filters ExitLogFilters, limit, offset int) ([]*model.ExitLog, error) {
	where, args := filters.buildWhere()

	query := fmt.Sprintf(`
		SELECT log_id, timestamp, student_id, asset_id, operator_id, result, reason
		FROM exit_log
		%s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала КПП: %w", err)
	}
	defer rows.Close()

	var result []*model.ExitLog
	for rows.Next() {
		e := &model.ExitLog{}
		if err := rows.Scan(
			&e.LogID, &e.Timestamp, &e.StudentID, &e.AssetID,
			&e.OperatorID, &e.Result, &e.Reason,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи журнала: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *exitLogRepo) Count(ctx context.Context, filters ExitLogFilters) (int, error) {
	where, args := filters.buildWhere()

	var count int
	err := r.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM exit_log %s`, where), args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей журнала: %w", err)
	}
	return count, nil
}

func (r *exitLogRepo) CountByResult(ctx context.Context, from, to *time.Time) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT result, COUNT(*)
		FROM exit_log
		WHERE ($1::timestamptz IS NULL OR timestamp >= $1)
		  AND ($2::timestamptz IS NULL OR timestamp <= $2)
		GROUP BY result`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта решений журнала: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var res string
		var count int
		if err := rows.Scan(&res, &count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики журнала: %w", err)
		}
		result[res] = count
	}
	return result, rows.Err()
}
