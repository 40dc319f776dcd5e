// auth.go — JWT middleware аутентификации операторов.
//
// Основной режим — локальные HS256-токены, выпускаемые сервисом операторов
// при входе. Опционально принимаются RS256-токены внешнего IdP: при заданном
// GM_JWT_JWKS_URL ключи подписи подтягиваются с JWKS endpoint с фоновым
// обновлением. Роль субъекта берётся из claim "role" и проверяется один раз
// на границе API — дальше по коду доверие не перевычисляется.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/dbu/eacs/gate-module/internal/api/errors"
	"github.com/dbu/eacs/gate-module/internal/domain/rbac"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// AuthClaims — извлечённые claims оператора.
// Помещаются в контекст запроса для downstream handlers.
type AuthClaims struct {
	// OperatorID — числовой идентификатор оператора (sub).
	OperatorID int64
	// Username — имя пользователя.
	Username string
	// Role — роль оператора (admin, gate_operator).
	Role string
}

// HasAnyRole проверяет, совпадает ли роль с одной из указанных.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// operatorClaims — raw claims из JWT для парсинга.
type operatorClaims struct {
	jwt.RegisteredClaims
	// Username — имя пользователя.
	Username string `json:"username"`
	// Role — роль оператора.
	Role string `json:"role"`
}

// JWTAuth — middleware JWT-аутентификации операторов.
type JWTAuth struct {
	secret    []byte
	issuer    string
	jwks      keyfunc.Keyfunc // nil — внешний IdP не настроен
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
// secret — ключ HS256 локальных токенов.
// jwksURL — JWKS endpoint внешнего IdP; пустая строка отключает RS256.
func NewJWTAuth(secret, issuer, jwksURL string, logger *slog.Logger) (*JWTAuth, error) {
	auth := &JWTAuth{
		secret:    []byte(secret),
		issuer:    issuer,
		jwtLeeway: 30 * time.Second,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}

	if jwksURL != "" {
		// JWKS Storage с фоновым обновлением.
		// NoErrorReturnFirstHTTPReq — стартуем даже если IdP ещё недоступен.
		storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
			NoErrorReturnFirstHTTPReq: true,
			RefreshInterval:           time.Hour,
			RefreshErrorHandler: func(_ context.Context, err error) {
				logger.Error("Ошибка обновления JWKS",
					slog.String("error", err.Error()),
					slog.String("url", jwksURL),
				)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("создание JWKS storage: %w", err)
		}

		k, err := keyfunc.New(keyfunc.Options{Storage: storage})
		if err != nil {
			return nil, fmt.Errorf("создание keyfunc: %w", err)
		}
		auth.jwks = k

		logger.Info("RS256-валидация через внешний IdP включена",
			slog.String("jwks_url", jwksURL),
		)
	}

	return auth, nil
}

// keyfuncFor выбирает ключ проверки подписи по алгоритму токена:
// HS256 — локальный секрет, RS256 — JWKS внешнего IdP.
func (j *JWTAuth) keyfuncFor(ctx context.Context) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		switch t.Method.Alg() {
		case jwt.SigningMethodHS256.Alg():
			return j.secret, nil
		case jwt.SigningMethodRS256.Alg():
			if j.jwks == nil {
				return nil, errors.New("RS256-токены не принимаются: внешний IdP не настроен")
			}
			return j.jwks.KeyfuncCtx(ctx)(t)
		default:
			return nil, fmt.Errorf("неподдерживаемый алгоритм подписи: %s", t.Method.Alg())
		}
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись и срок действия,
// помещает AuthClaims в контекст запроса.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := parts[1]
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			rawClaims := &operatorClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256", "RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			tok, err := jwt.ParseWithClaims(tokenString, rawClaims, j.keyfuncFor(r.Context()), parserOpts...)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}
			if !tok.Valid {
				apierrors.Unauthorized(w, "Невалидный токен")
				return
			}

			subject, err := rawClaims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}
			operatorID, err := strconv.ParseInt(subject, 10, 64)
			if err != nil {
				apierrors.Unauthorized(w, "Некорректный sub в токене")
				return
			}

			claims := &AuthClaims{
				OperatorID: operatorID,
				Username:   rawClaims.Username,
				Role:       rawClaims.Role,
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole возвращает middleware, требующий одну из указанных ролей.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			if !claims.HasAnyRole(roles...) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(roles, " или ")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireGateAccess возвращает middleware, допускающий роли с правом
// операций КПП. Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireGateAccess() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			if !rbac.CanOperateGate(claims.Role) {
				apierrors.Forbidden(w, "Недостаточно прав для операций КПП")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// OperatorIDFromContext извлекает идентификатор оператора из контекста.
// Возвращает 0, если claims не найдены.
func OperatorIDFromContext(ctx context.Context) int64 {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return 0
	}
	return claims.OperatorID
}
