// assets.go — сервис управления реестром активов.
//
// Регистрация актива двухфазная: сначала строка в БД (чтобы получить
// asset_id для полей подписи), затем выпуск и сохранение QR-подписи.
// Обе фазы идут в одной транзакции — актив без подписи в реестре
// не появляется. Смена владельца перевыпускает подпись — старая
// наклейка становится недействительной проверкой владельца.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
	"github.com/dbu/eacs/gate-module/internal/repository"
	"github.com/dbu/eacs/gate-module/internal/token"
)

// AssetService — сервис реестра активов.
type AssetService struct {
	assets   repository.AssetRepository
	students repository.StudentRepository
	tx       *repository.TxRunner
	qr       *token.QRSigner
	logger   *slog.Logger
}

// NewAssetService создаёт сервис реестра активов.
func NewAssetService(
	assets repository.AssetRepository,
	students repository.StudentRepository,
	tx *repository.TxRunner,
	qr *token.QRSigner,
	logger *slog.Logger,
) *AssetService {
	return &AssetService{
		assets:   assets,
		students: students,
		tx:       tx,
		qr:       qr,
		logger:   logger.With(slog.String("component", "asset_service")),
	}
}

// RegisterAssetInput — входные данные регистрации актива.
type RegisterAssetInput struct {
	OwnerStudentID string
	SerialNumber   string
	Brand          *string
	Color          *string
	VisibleSpecs   *string
}

// validateOwner проверяет, что студент-владелец существует и активен.
func (s *AssetService) validateOwner(ctx context.Context, studentID string) error {
	owner, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: студент-владелец не найден", ErrValidation)
		}
		return fmt.Errorf("проверка владельца: %w", err)
	}
	if !owner.IsActive() {
		return fmt.Errorf("%w: студент-владелец заблокирован", ErrValidation)
	}
	return nil
}

// Register регистрирует актив и выпускает его QR-подпись.
func (s *AssetService) Register(ctx context.Context, in RegisterAssetInput) (*model.Asset, error) {
	if len(in.SerialNumber) < 3 {
		return nil, fmt.Errorf("%w: серийный номер короче 3 символов", ErrValidation)
	}
	if err := s.validateOwner(ctx, in.OwnerStudentID); err != nil {
		return nil, err
	}

	asset := &model.Asset{
		OwnerStudentID: in.OwnerStudentID,
		SerialNumber:   in.SerialNumber,
		Brand:          in.Brand,
		Color:          in.Color,
		VisibleSpecs:   in.VisibleSpecs,
		Status:         model.AssetStatusActive,
	}

	// Обе фазы в одной транзакции: при сбое сохранения подписи
	// строка актива откатывается.
	var signature string
	err := s.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		assets := repository.NewAssetRepository(tx)

		// Фаза 1: строка в БД — подписи нужен asset_id.
		if err := assets.Create(ctx, asset); err != nil {
			return err
		}

		// Фаза 2: выпуск и сохранение QR-подписи.
		signature = s.qr.Issue(asset)
		return assets.SetQRSignature(ctx, asset.AssetID, signature)
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: актив с серийным номером %q уже зарегистрирован", ErrConflict, in.SerialNumber)
		}
		return nil, fmt.Errorf("регистрация актива: %w", err)
	}
	asset.QRSignature = &signature

	s.logger.Info("Актив зарегистрирован",
		slog.Int64("asset_id", asset.AssetID),
		slog.String("owner_student_id", asset.OwnerStudentID),
		slog.String("serial_number", asset.SerialNumber),
	)

	return asset, nil
}

// Get возвращает актив по идентификатору.
func (s *AssetService) Get(ctx context.Context, assetID int64) (*model.Asset, error) {
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("получение актива: %w", err)
	}
	if asset == nil {
		return nil, ErrNotFound
	}
	return asset, nil
}

// GetBySerial возвращает актив по серийному номеру.
// Используется для сверки устройства без читаемой QR-наклейки.
func (s *AssetService) GetBySerial(ctx context.Context, serialNumber string) (*model.Asset, error) {
	asset, err := s.assets.GetBySerialNumber(ctx, serialNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("поиск актива по серийному номеру: %w", err)
	}
	return asset, nil
}

// List возвращает список активов с фильтрацией и пагинацией.
func (s *AssetService) List(ctx context.Context, ownerStudentID, status *string, limit, offset int) ([]*model.Asset, int, error) {
	assets, err := s.assets.List(ctx, ownerStudentID, status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("получение списка активов: %w", err)
	}
	total, err := s.assets.Count(ctx, ownerStudentID, status)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт активов: %w", err)
	}
	return assets, total, nil
}

// UpdateAssetInput — изменяемые поля актива. nil — поле не меняется.
type UpdateAssetInput struct {
	OwnerStudentID *string
	Status         *string
	Brand          *string
	Color          *string
	VisibleSpecs   *string
}

// Update обновляет актив. Смена владельца перевыпускает QR-подпись.
func (s *AssetService) Update(ctx context.Context, assetID int64, in UpdateAssetInput) (*model.Asset, error) {
	asset, err := s.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}

	ownerChanged := false
	if in.OwnerStudentID != nil && *in.OwnerStudentID != asset.OwnerStudentID {
		if err := s.validateOwner(ctx, *in.OwnerStudentID); err != nil {
			return nil, err
		}
		asset.OwnerStudentID = *in.OwnerStudentID
		ownerChanged = true
	}
	if in.Status != nil {
		switch *in.Status {
		case model.AssetStatusActive, model.AssetStatusRevoked, model.AssetStatusStolen:
			asset.Status = *in.Status
		default:
			return nil, fmt.Errorf("%w: недопустимый статус %q", ErrValidation, *in.Status)
		}
	}
	if in.Brand != nil {
		asset.Brand = in.Brand
	}
	if in.Color != nil {
		asset.Color = in.Color
	}
	if in.VisibleSpecs != nil {
		asset.VisibleSpecs = in.VisibleSpecs
	}

	if err := s.assets.Update(ctx, asset); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("обновление актива: %w", err)
	}

	// Подпись привязана к владельцу: после переоформления старая
	// наклейка не пройдёт проверку, выпускаем новую.
	if ownerChanged {
		signature := s.qr.Issue(asset)
		if err := s.assets.SetQRSignature(ctx, asset.AssetID, signature); err != nil {
			return nil, fmt.Errorf("перевыпуск QR-подписи: %w", err)
		}
		asset.QRSignature = &signature
		s.logger.Info("QR-подпись перевыпущена после смены владельца",
			slog.Int64("asset_id", asset.AssetID),
			slog.String("owner_student_id", asset.OwnerStudentID),
		)
	}

	return asset, nil
}

// Delete удаляет актив из реестра.
func (s *AssetService) Delete(ctx context.Context, assetID int64) error {
	if err := s.assets.Delete(ctx, assetID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%w: на актив есть записи в журнале", ErrConflict)
		}
		return fmt.Errorf("удаление актива: %w", err)
	}

	s.logger.Info("Актив удалён из реестра", slog.Int64("asset_id", assetID))
	return nil
}
