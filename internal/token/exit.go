package token

import (
	"errors"
	"strconv"
	"time"
)

// Ошибки проверки exit-токена.
var (
	// ErrIdentityMismatch — токен выпущен для другой пары студент/оператор.
	// Запрещает использование токена другим оператором или для другого студента.
	ErrIdentityMismatch = errors.New("токен выпущен для другой пары студент/оператор")
	// ErrFlagMismatch — признак наличия активов не совпадает с ожидаемым.
	// Запрещает студенту с активами уходить через ветку «без активов» и наоборот.
	ErrFlagMismatch = errors.New("признак наличия активов не совпадает")
)

// exitFieldCount — число полей exit-токена без учёта подписи:
// studentID, operatorID, hasAssets, nonce, issuedAt.
const exitFieldCount = 5

// ExitClaims — декодированные поля exit-токена.
type ExitClaims struct {
	StudentID  string
	OperatorID string
	HasAssets  bool
	Nonce      string
	IssuedAt   int64
}

// ExitSigner — выпуск и проверка короткоживущих exit-токенов.
//
// Exit-токен — «память» конечного автомата КПП между двумя HTTP-вызовами:
// сервер не хранит состояние, токен и есть сессия. Выпускается на шаге
// сканирования студента, предъявляется на шаге сканирования актива либо
// выхода без активов. TTL намеренно короткий: токен лишь связывает два
// последовательных вызова одной операторской сессии.
//
// Одноразовость НЕ обеспечивается: в пределах TTL токен валиден повторно
// для той же пары студент/оператор. Опциональная защита от повторов —
// на уровне сервиса (replay guard).
type ExitSigner struct {
	codec *Codec
	ttl   time.Duration
	now   func() time.Time
	nonce func() string
}

// NewExitSigner создаёт подписанта exit-токенов.
func NewExitSigner(secret []byte, ttl time.Duration) *ExitSigner {
	return &ExitSigner{
		codec: NewCodec(secret),
		ttl:   ttl,
		now:   time.Now,
		nonce: NewNonce,
	}
}

// Issue выпускает exit-токен, привязанный к студенту, оператору
// и факту наличия у студента активных активов.
func (s *ExitSigner) Issue(studentID, operatorID string, hasAssets bool) string {
	flag := "0"
	if hasAssets {
		flag = "1"
	}
	fields := []string{
		studentID,
		operatorID,
		flag,
		s.nonce(),
		strconv.FormatInt(s.now().Unix(), 10),
	}
	return s.codec.Sign(fields)
}

// Verify проверяет exit-токен: подпись, срок действия, привязку к паре
// студент/оператор и (если expectHasAssets задан) признак наличия активов.
// Граница TTL включительна.
func (s *ExitSigner) Verify(tok, studentID, operatorID string, expectHasAssets *bool) (*ExitClaims, error) {
	fields, err := s.codec.Verify(tok, exitFieldCount)
	if err != nil {
		return nil, err
	}

	if fields[2] != "0" && fields[2] != "1" {
		return nil, ErrMalformedToken
	}
	issuedAt, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, ErrMalformedToken
	}

	if s.now().Unix()-issuedAt > int64(s.ttl.Seconds()) {
		return nil, ErrExpired
	}

	claims := &ExitClaims{
		StudentID:  fields[0],
		OperatorID: fields[1],
		HasAssets:  fields[2] == "1",
		Nonce:      fields[3],
		IssuedAt:   issuedAt,
	}

	if claims.StudentID != studentID || claims.OperatorID != operatorID {
		return nil, ErrIdentityMismatch
	}
	if expectHasAssets != nil && claims.HasAssets != *expectHasAssets {
		return nil, ErrFlagMismatch
	}

	return claims, nil
}
