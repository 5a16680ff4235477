// auth.go — JWT middleware для маршрутов владельца файлов.
// Поддерживает два источника ключей: общий секрет (HS256) и JWKS (RS256).
// sub из токена — числовой идентификатор пользователя, он кладётся в контекст.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/datashare/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyOwnerID — идентификатор аутентифицированного пользователя.
	ContextKeyOwnerID contextKey = "owner_id"
)

// JWTAuth — middleware для JWT-аутентификации.
type JWTAuth struct {
	keyFunc jwt.Keyfunc
	methods []string
	issuer  string
	leeway  time.Duration
	logger  *slog.Logger
}

// NewJWTAuthHS256 создаёт middleware, проверяющий подпись общим секретом.
func NewJWTAuthHS256(secret, issuer string, leeway time.Duration, logger *slog.Logger) *JWTAuth {
	key := []byte(secret)
	return &JWTAuth{
		keyFunc: func(*jwt.Token) (any, error) { return key, nil },
		methods: []string{jwt.SigningMethodHS256.Alg()},
		issuer:  issuer,
		leeway:  leeway,
		logger:  logger.With(slog.String("component", "jwt_auth")),
	}
}

// NewJWTAuthJWKS создаёт middleware с ключами из JWKS endpoint.
// Ключи обновляются в фоне; недоступность endpoint при старте не фатальна.
func NewJWTAuthJWKS(
	ctx context.Context,
	jwksURL, issuer string,
	clientTimeout, refreshInterval, leeway time.Duration,
	logger *slog.Logger,
) (*JWTAuth, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: clientTimeout},
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
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

	k, err := keyfunc.New(keyfunc.Options{
		Ctx:     ctx,
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}

	return NewJWTAuthWithKeyfunc(k, issuer, leeway, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт RS256 middleware с готовым keyfunc.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, issuer string, leeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		keyFunc: kf.Keyfunc,
		methods: []string{jwt.SigningMethodRS256.Alg()},
		issuer:  issuer,
		leeway:  leeway,
		logger:  logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware: Bearer token → проверка подписи,
// exp и issuer → sub как положительный int64 в контексте.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}
			tokenString = strings.TrimSpace(tokenString)
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			claims := &jwt.RegisteredClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods(j.methods),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.leeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, claims, j.keyFunc, parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			ownerID, err := parseOwnerID(claims.Subject)
			if err != nil {
				j.logger.Debug("Некорректный sub в токене",
					slog.String("sub", claims.Subject),
				)
				apierrors.Unauthorized(w, "Некорректный sub в токене")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyOwnerID, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// parseOwnerID разбирает sub как положительный int64.
func parseOwnerID(sub string) (int64, error) {
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("sub должен быть положительным: %d", id)
	}
	return id, nil
}

// --- Context helpers ---

// OwnerIDFromContext извлекает идентификатор пользователя из контекста.
func OwnerIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ContextKeyOwnerID).(int64)
	return id, ok
}

// WithOwnerID кладёт идентификатор пользователя в контекст.
func WithOwnerID(ctx context.Context, ownerID int64) context.Context {
	return context.WithValue(ctx, ContextKeyOwnerID, ownerID)
}
