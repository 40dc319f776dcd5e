package token

import (
	"errors"
	"testing"
	"time"
)

// frozenExitSigner возвращает подписанта с фиксированными часами и nonce.
func frozenExitSigner(ttl time.Duration, now time.Time) *ExitSigner {
	s := NewExitSigner([]byte("exit-secret"), ttl)
	s.now = func() time.Time { return now }
	s.nonce = func() string { return "cafebabecafebabe" }
	return s
}

// boolPtr — указатель на bool для expectHasAssets.
func boolPtr(b bool) *bool { return &b }

// TestExitSigner_RoundTrip проверяет выпуск и проверку exit-токена.
func TestExitSigner_RoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := frozenExitSigner(300*time.Second, now)

	tok := s.Issue("ST-1001", "7", true)

	claims, err := s.Verify(tok, "ST-1001", "7", boolPtr(true))
	if err != nil {
		t.Fatalf("Verify: неожиданная ошибка: %v", err)
	}
	if claims.StudentID != "ST-1001" || claims.OperatorID != "7" || !claims.HasAssets {
		t.Errorf("неверные claims: %+v", claims)
	}

	// Без проверки признака — тоже успех
	if _, err := s.Verify(tok, "ST-1001", "7", nil); err != nil {
		t.Errorf("Verify без expectHasAssets: неожиданная ошибка: %v", err)
	}
}

// TestExitSigner_IdentityMismatch проверяет привязку к паре студент/оператор.
func TestExitSigner_IdentityMismatch(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := frozenExitSigner(300*time.Second, now)

	tok := s.Issue("ST-1001", "7", true)

	tests := []struct {
		name       string
		studentID  string
		operatorID string
	}{
		{"другой студент", "ST-2002", "7"},
		{"другой оператор", "ST-1001", "8"},
		{"оба другие", "ST-2002", "8"},
	}

	for _, tt := range tests {
		_, err := s.Verify(tok, tt.studentID, tt.operatorID, nil)
		if !errors.Is(err, ErrIdentityMismatch) {
			t.Errorf("%s: ожидалась ErrIdentityMismatch, получено %v", tt.name, err)
		}
	}
}

// TestExitSigner_FlagMismatch проверяет сверку признака наличия активов:
// токен hasAssets=true не проходит проверку с ожиданием false и наоборот.
func TestExitSigner_FlagMismatch(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := frozenExitSigner(300*time.Second, now)

	withAssets := s.Issue("ST-1001", "7", true)
	if _, err := s.Verify(withAssets, "ST-1001", "7", boolPtr(false)); !errors.Is(err, ErrFlagMismatch) {
		t.Errorf("hasAssets=true против ожидания false: ожидалась ErrFlagMismatch, получено %v", err)
	}

	withoutAssets := s.Issue("ST-2002", "7", false)
	if _, err := s.Verify(withoutAssets, "ST-2002", "7", boolPtr(true)); !errors.Is(err, ErrFlagMismatch) {
		t.Errorf("hasAssets=false против ожидания true: ожидалась ErrFlagMismatch, получено %v", err)
	}
}

// TestExitSigner_TTLBoundary проверяет включительную границу TTL.
func TestExitSigner_TTLBoundary(t *testing.T) {
	issued := time.Unix(1700000000, 0)
	ttl := 300 * time.Second

	s := frozenExitSigner(ttl, issued)
	tok := s.Issue("ST-1001", "7", false)

	s.now = func() time.Time { return issued.Add(ttl) }
	if _, err := s.Verify(tok, "ST-1001", "7", nil); err != nil {
		t.Errorf("на границе TTL: неожиданная ошибка: %v", err)
	}

	s.now = func() time.Time { return issued.Add(ttl + time.Second) }
	if _, err := s.Verify(tok, "ST-1001", "7", nil); !errors.Is(err, ErrExpired) {
		t.Errorf("за границей TTL: ожидалась ErrExpired, получено %v", err)
	}
}

// TestExitSigner_ReuseWithinTTL фиксирует текущее поведение: одноразовость
// не обеспечивается, повторная проверка того же токена в пределах TTL успешна.
func TestExitSigner_ReuseWithinTTL(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := frozenExitSigner(300*time.Second, now)

	tok := s.Issue("ST-1001", "7", true)

	for i := 0; i < 2; i++ {
		if _, err := s.Verify(tok, "ST-1001", "7", boolPtr(true)); err != nil {
			t.Fatalf("повтор %d: неожиданная ошибка: %v", i+1, err)
		}
	}
}

// TestExitSigner_MalformedFlag проверяет отклонение токена с некорректным
// признаком наличия активов.
func TestExitSigner_MalformedFlag(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := frozenExitSigner(300*time.Second, now)

	// Подписываем напрямую через кодек поля с мусорным флагом
	tok := s.codec.Sign([]string{"ST-1001", "7", "2", "cafebabecafebabe", "1700000000"})

	if _, err := s.Verify(tok, "ST-1001", "7", nil); !errors.Is(err, ErrMalformedToken) {
		t.Errorf("ожидалась ErrMalformedToken, получено %v", err)
	}
}
