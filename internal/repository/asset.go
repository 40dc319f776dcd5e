package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
)

// AssetRepository — интерфейс CRUD для таблицы asset.
type AssetRepository interface {
	// Create создаёт новый актив. QR-подпись записывается отдельно
	// через SetQRSignature после генерации.
	Create(ctx context.Context, a *model.Asset) error
	// GetByID возвращает актив по идентификатору.
	// Возвращает (nil, nil), если актив не найден — так удобнее
	// проверять подписи: «неизвестный актив» не является ошибкой БД.
	GetByID(ctx context.Context, assetID int64) (*model.Asset, error)
	// GetBySerialNumber возвращает актив по серийному номеру.
	GetBySerialNumber(ctx context.Context, serial string) (*model.Asset, error)
	// List возвращает список активов с фильтрацией по владельцу и статусу.
	List(ctx context.Context, ownerStudentID, status *string, limit, offset int) ([]*model.Asset, error)
	// ListActiveOwnedBy возвращает активные активы студента.
	ListActiveOwnedBy(ctx context.Context, studentID string) ([]*model.Asset, error)
	// Update обновляет данные актива.
	Update(ctx context.Context, a *model.Asset) error
	// SetQRSignature записывает QR-подпись актива.
	SetQRSignature(ctx context.Context, assetID int64, signature string) error
	// Delete удаляет актив из реестра.
	Delete(ctx context.Context, assetID int64) error
	// Count возвращает количество активов с фильтрацией.
	Count(ctx context.Context, ownerStudentID, status *string) (int, error)
	// CountByStatus возвращает распределение активов по статусам.
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// assetRepo — реализация AssetRepository.
type assetRepo struct {
	db DBTX
}

// NewAssetRepository создаёт репозиторий активов.
func NewAssetRepository(db DBTX) AssetRepository {
	return &assetRepo{db: db}
}

const assetColumns = `asset_id, owner_student_id, qr_signature, serial_number,
	brand, color, visible_specs, status, registered_at`

func (r *assetRepo) scanAsset(row pgx.Row) (*model.Asset, error) {
	a := &model.Asset{}
	err := row.Scan(
		&a.AssetID, &a.OwnerStudentID, &a.QRSignature, &a.SerialNumber,
		&a.Brand, &a.Color, &a.VisibleSpecs, &a.Status, &a.RegisteredAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *assetRepo) Create(ctx context.Context, a *model.Asset) error {
	query := `
		INSERT INTO asset (owner_student_id, serial_number, brand, color, visible_specs, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING asset_id, registered_at`

	err := r.db.QueryRow(ctx, query,
		a.OwnerStudentID, a.SerialNumber, a.Brand, a.Color, a.VisibleSpecs, a.Status,
	).Scan(&a.AssetID, &a.RegisteredAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: актив с таким серийным номером уже зарегистрирован", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: студент-владелец не найден", ErrNotFound)
		}
		return fmt.Errorf("ошибка создания актива: %w", err)
	}
	return nil
}

func (r *assetRepo) GetByID(ctx context.Context, assetID int64) (*model.Asset, error) {
	query := fmt.Sprintf(`SELECT %s FROM asset WHERE asset_id = $1`, assetColumns)

	a, err := r.scanAsset(r.db.QueryRow(ctx, query, assetID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения актива: %w", err)
	}
	return a, nil
}

func (r *assetRepo) GetBySerialNumber(ctx context.Context, serial string) (*model.Asset, error) {
	query := fmt.Sprintf(`SELECT %s FROM asset WHERE serial_number = $1`, assetColumns)

	a, err := r.scanAsset(r.db.QueryRow(ctx, query, serial))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения актива по серийному номеру: %w", err)
	}
	return a, nil
}

func (r *assetRepo) List(ctx context.Context, ownerStudentID, status *string, limit, offset int) ([]*model.Asset, error) {
	// Динамическое построение WHERE
	var conditions []string
	var args []any
	argNum := 1

	if ownerStudentID != nil {
		conditions = append(conditions, fmt.Sprintf("owner_student_id = $%d", argNum))
		args = append(args, *ownerStudentID)
		argNum++
	}
	if status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *status)
		argNum++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM asset
		%s
		ORDER BY registered_at DESC
		LIMIT $%d OFFSET $%d`, assetColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка активов: %w", err)
	}
	defer rows.Close()

	var result []*model.Asset
	for rows.Next() {
		a, err := r.scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования актива: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *assetRepo) ListActiveOwnedBy(ctx context.Context, studentID string) ([]*model.Asset, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM asset
		WHERE owner_student_id = $1 AND status = $2
		ORDER BY registered_at DESC`, assetColumns)

	rows, err := r.db.Query(ctx, query, studentID, model.AssetStatusActive)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения активов студента: %w", err)
	}
	defer rows.Close()

	var result []*model.Asset
	for rows.Next() {
		a, err := r.scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования актива: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *assetRepo) Update(ctx context.Context, a *model.Asset) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE asset
		SET owner_student_id = $2, serial_number = $3, brand = $4,
			color = $5, visible_specs = $6, status = $7
		WHERE asset_id = $1`,
		a.AssetID, a.OwnerStudentID, a.SerialNumber,
		a.Brand, a.Color, a.VisibleSpecs, a.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: актив с таким серийным номером уже зарегистрирован", ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: студент-владелец не найден", ErrNotFound)
		}
		return fmt.Errorf("ошибка обновления актива: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *assetRepo) SetQRSignature(ctx context.Context, assetID int64, signature string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE asset SET qr_signature = $2 WHERE asset_id = $1`,
		assetID, signature,
	)
	if err != nil {
		return fmt.Errorf("ошибка записи QR-подписи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *assetRepo) Delete(ctx context.Context, assetID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM asset WHERE asset_id = $1`, assetID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: на актив есть записи в журнале", ErrConflict)
		}
		return fmt.Errorf("ошибка удаления актива: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *assetRepo) Count(ctx context.Context, ownerStudentID, status *string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM asset
		WHERE ($1::text IS NULL OR owner_student_id = $1)
		  AND ($2::text IS NULL OR status = $2)`,
		ownerStudentID, status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта активов: %w", err)
	}
	return count, nil
}

func (r *assetRepo) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM asset GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта активов по статусам: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики активов: %w", err)
		}
		result[status] = count
	}
	return result, rows.Err()
}
