// Точка входа datashare — сервиса временного обмена файлами.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// собирает сервисный слой, запускает фоновую очистку и topologymetrics,
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/afero"

	"github.com/bigkaa/datashare/internal/api/handlers"
	"github.com/bigkaa/datashare/internal/api/middleware"
	"github.com/bigkaa/datashare/internal/config"
	"github.com/bigkaa/datashare/internal/database"
	"github.com/bigkaa/datashare/internal/repository"
	"github.com/bigkaa/datashare/internal/server"
	"github.com/bigkaa/datashare/internal/service"
	"github.com/bigkaa/datashare/internal/storage/filestore"
)

func main() {
	// 1. .env (для локального запуска) и конфигурация
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("Ошибка чтения .env", slog.String("error", err.Error()))
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Логгер
	logger := config.SetupLogger(cfg)
	logger.Info("datashare запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("upload_dir", cfg.UploadDir),
	)

	if os.Getenv("DS_DEPHEALTH_GROUP") == "" {
		logger.Warn("DS_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Миграции
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. PostgreSQL
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Хранилище байтов
	store, err := filestore.New(afero.NewOsFs(), cfg.UploadDir)
	if err != nil {
		logger.Error("Ошибка инициализации каталога загрузок",
			slog.String("dir", cfg.UploadDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 6. Репозиторий и сервисы
	fileRepo := repository.NewFileRepository(pool)
	cache := service.NewTokenCache(cfg.CacheSize, cfg.CacheTTL)
	hasher := service.NewPasswordHasher(cfg.BcryptCost, cfg.HashConcurrency)

	policy := service.NewPolicyValidator(fileRepo, service.PolicyConfig{
		MaxFileSize:         cfg.MaxFileSize,
		MaxFilesPerUser:     cfg.MaxFilesPerUser,
		ForbiddenExtensions: cfg.ForbiddenExtensions,
	})
	uploadSvc := service.NewUploadService(fileRepo, store, policy, hasher, service.UploadConfig{
		MaxExpirationDays:     cfg.MaxExpirationDays,
		DefaultExpirationDays: cfg.DefaultExpirationDays,
		MinPasswordLength:     cfg.MinPasswordLength,
		PublicBaseURL:         cfg.PublicBaseURL,
	}, logger)
	accessSvc := service.NewAccessService(fileRepo, store, hasher, cache, logger)
	filesSvc := service.NewFilesService(fileRepo, store, cache, cfg.PublicBaseURL, logger)

	// 7. Фоновая очистка
	sweeper := service.NewSweeper(fileRepo, store, cache, cfg.SweepInterval, cfg.SweepBatchSize, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 8. topologymetrics
	dephealthSvc, err := service.NewDephealthService(
		"datashare",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
	} else {
		defer dephealthSvc.Stop()
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 9. JWT middleware
	authMiddleware, err := newAuth(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 10. Handlers и сервер
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		filestore.NewReadinessChecker(store),
	)
	srv := server.New(cfg, logger, server.Handlers{
		Health:   healthHandler,
		Files:    handlers.NewFilesHandler(uploadSvc, filesSvc, cfg.MaxFileSize, logger),
		Download: handlers.NewDownloadHandler(accessSvc, logger),
		Auth:     authMiddleware,
	},
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1) //nolint:gocritic // defer не нужен при аварийном завершении
	}

	logger.Info("datashare остановлен")
}

// newAuth выбирает проверку JWT: общий секрет HS256 или JWKS (RS256).
func newAuth(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(http.Handler) http.Handler, error) {
	if cfg.JWTSecret != "" {
		logger.Info("JWT: HS256 с общим секретом")
		return middleware.NewJWTAuthHS256(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTLeeway, logger).Middleware(), nil
	}

	auth, err := middleware.NewJWTAuthJWKS(ctx, cfg.JWKSURL, cfg.JWTIssuer,
		cfg.JWKSClientTimeout, cfg.JWKSRefreshInterval, cfg.JWTLeeway, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("JWT: RS256 через JWKS",
		slog.String("jwks_url", cfg.JWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)
	return auth.Middleware(), nil
}
