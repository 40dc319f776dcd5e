package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

// TestCodec_RoundTrip проверяет, что Verify(Sign(fields)) возвращает исходные поля.
func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec([]byte("test-secret"))

	tests := [][]string{
		{"a"},
		{"42", "ST-1001", "SN-001", "deadbeefdeadbeef", "1700000000"},
		{"", "пустое", "поле"},
	}

	for _, fields := range tests {
		tok := codec.Sign(fields)
		got, err := codec.Verify(tok, len(fields))
		if err != nil {
			t.Fatalf("Verify(%v): неожиданная ошибка: %v", fields, err)
		}
		if len(got) != len(fields) {
			t.Fatalf("ожидалось %d полей, получено %d", len(fields), len(got))
		}
		for i := range fields {
			if got[i] != fields[i] {
				t.Errorf("поле %d: ожидалось %q, получено %q", i, fields[i], got[i])
			}
		}
	}
}

// TestCodec_WrongSecret проверяет, что токен с чужим секретом отклоняется.
func TestCodec_WrongSecret(t *testing.T) {
	tok := NewCodec([]byte("secret-a")).Sign([]string{"x", "y"})

	_, err := NewCodec([]byte("secret-b")).Verify(tok, 2)
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("ожидалась ErrBadSignature, получено %v", err)
	}
}

// TestCodec_SignatureFlip проверяет, что изменение любого символа подписи
// приводит к ErrBadSignature.
func TestCodec_SignatureFlip(t *testing.T) {
	codec := NewCodec([]byte("test-secret"))
	tok := codec.Sign([]string{"42", "ST-1001", "SN-001"})

	decoded, err := base64.URLEncoding.DecodeString(tok)
	if err != nil {
		t.Fatal(err)
	}
	payload := string(decoded)
	sigStart := strings.LastIndex(payload, delimiter) + 1

	for i := sigStart; i < len(payload); i++ {
		mutated := []byte(payload)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		forged := base64.URLEncoding.EncodeToString(mutated)

		_, err := codec.Verify(forged, 3)
		if !errors.Is(err, ErrBadSignature) {
			t.Fatalf("подмена символа %d: ожидалась ErrBadSignature, получено %v", i, err)
		}
	}
}

// TestCodec_Malformed проверяет отклонение некорректных токенов.
func TestCodec_Malformed(t *testing.T) {
	codec := NewCodec([]byte("test-secret"))

	tests := []struct {
		name string
		tok  string
	}{
		{"не base64", "%%%не-base64%%%"},
		{"пустой токен", ""},
		{"нет разделителей", base64.URLEncoding.EncodeToString([]byte("abc"))},
		{"лишнее поле", codec.Sign([]string{"a", "b", "c", "d"})},
		{"недостающее поле", codec.Sign([]string{"a", "b"})},
	}

	for _, tt := range tests {
		_, err := codec.Verify(tt.tok, 3)
		if !errors.Is(err, ErrMalformedToken) {
			t.Errorf("%s: ожидалась ErrMalformedToken, получено %v", tt.name, err)
		}
	}
}

// TestNewNonce проверяет длину и уникальность nonce.
func TestNewNonce(t *testing.T) {
	a := NewNonce()
	b := NewNonce()

	if len(a) < 16 {
		t.Errorf("nonce короче 16 hex-символов: %q", a)
	}
	if a == b {
		t.Error("два последовательных nonce совпали")
	}
}
