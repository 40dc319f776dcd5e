package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dbu/eacs/gate-module/internal/domain/model"
)

// Ошибки проверки QR-подписи актива.
var (
	// ErrUnknownAsset — актив из токена отсутствует в справочнике.
	ErrUnknownAsset = errors.New("актив не найден")
	// ErrFieldMismatch — серийный номер в токене не совпадает с текущим
	// (номер изменён после выпуска — устаревшая или поддельная наклейка).
	ErrFieldMismatch = errors.New("серийный номер не совпадает с текущим")
	// ErrOwnershipMismatch — владелец в токене не совпадает с текущим
	// (актив переоформлен после выпуска подписи).
	ErrOwnershipMismatch = errors.New("владелец актива изменился после выпуска подписи")
)

// qrFieldCount — число полей QR-подписи без учёта подписи:
// assetID, ownerStudentID, serialNumber, nonce, issuedAt.
const qrFieldCount = 5

// QRClaims — декодированные поля QR-подписи актива.
type QRClaims struct {
	AssetID        int64
	OwnerStudentID string
	SerialNumber   string
	Nonce          string
	IssuedAt       int64
}

// AssetResolver — доступ к справочнику активов для проверки QR-подписи.
// Реализуется repository.AssetRepository. Для отсутствующего актива
// возвращает (nil, nil), а не ошибку.
type AssetResolver interface {
	AssetByID(ctx context.Context, assetID int64) (*model.Asset, error)
}

// QRSigner — выпуск и проверка долгоживущих QR-подписей активов.
// Подпись связывает идентичность актива (id, владелец, серийный номер)
// и защищает наклейку от подделки и изменения.
type QRSigner struct {
	codec    *Codec
	validity time.Duration
	now      func() time.Time
	nonce    func() string
}

// NewQRSigner создаёт подписанта QR с указанным секретом и окном валидности.
// Окно отсчитывается от момента выпуска подписи, не от регистрации актива.
func NewQRSigner(secret []byte, validity time.Duration) *QRSigner {
	return &QRSigner{
		codec:    NewCodec(secret),
		validity: validity,
		now:      time.Now,
		nonce:    NewNonce,
	}
}

// Issue выпускает QR-подпись для актива.
// Вызывается при регистрации актива и при каждой смене владельца.
func (s *QRSigner) Issue(asset *model.Asset) string {
	fields := []string{
		strconv.FormatInt(asset.AssetID, 10),
		asset.OwnerStudentID,
		asset.SerialNumber,
		s.nonce(),
		strconv.FormatInt(s.now().Unix(), 10),
	}
	return s.codec.Sign(fields)
}

// Decode проверяет подпись и срок действия токена, возвращает поля.
// Граница окна включительна: ровно validity секунд после выпуска токен
// ещё действителен, на секунду позже — уже нет.
func (s *QRSigner) Decode(tok string) (*QRClaims, error) {
	fields, err := s.codec.Verify(tok, qrFieldCount)
	if err != nil {
		return nil, err
	}

	assetID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, ErrMalformedToken
	}
	issuedAt, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, ErrMalformedToken
	}

	if s.now().Unix()-issuedAt > int64(s.validity.Seconds()) {
		return nil, ErrExpired
	}

	return &QRClaims{
		AssetID:        assetID,
		OwnerStudentID: fields[1],
		SerialNumber:   fields[2],
		Nonce:          fields[3],
		IssuedAt:       issuedAt,
	}, nil
}

// VerifyAndResolve проверяет токен и сверяет его с текущим состоянием актива
// в справочнике: существование, серийный номер, владелец.
// Статус актива (active/revoked/stolen) здесь НЕ проверяется — это забота
// вызывающего: подлинность подписи и актуальность актива — разные вопросы.
func (s *QRSigner) VerifyAndResolve(ctx context.Context, tok string, resolver AssetResolver) (*model.Asset, error) {
	claims, err := s.Decode(tok)
	if err != nil {
		return nil, err
	}

	asset, err := resolver.AssetByID(ctx, claims.AssetID)
	if err != nil {
		return nil, fmt.Errorf("поиск актива: %w", err)
	}
	if asset == nil {
		return nil, ErrUnknownAsset
	}

	if asset.SerialNumber != claims.SerialNumber {
		return nil, ErrFieldMismatch
	}
	if asset.OwnerStudentID != claims.OwnerStudentID {
		return nil, ErrOwnershipMismatch
	}

	return asset, nil
}
