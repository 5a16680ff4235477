// Пакет config — загрузка и валидация конфигурации datashare
// из переменных окружения (с опциональным .env файлом).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// minBcryptCost — нижняя граница DS_BCRYPT_COST.
const minBcryptCost = 10

// DefaultForbiddenExtensions — расширения, запрещённые к загрузке по умолчанию.
var DefaultForbiddenExtensions = []string{
	".exe", ".bat", ".cmd", ".sh", ".msi", ".com", ".scr", ".pif", ".cpl",
}

// Config содержит все параметры конфигурации datashare.
// Загружается один раз при старте и дальше только читается.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Публичный базовый URL для ссылок на скачивание (без завершающего /)
	PublicBaseURL string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// --- Хранилище и политика загрузки ---

	// Корневая директория загруженных файлов
	UploadDir string
	// Максимальный размер файла в байтах (по умолчанию 1 GiB)
	MaxFileSize int64
	// Максимальное количество активных файлов у пользователя
	MaxFilesPerUser int
	// Максимальный срок хранения файла в днях
	MaxExpirationDays int
	// Срок хранения по умолчанию в днях
	DefaultExpirationDays int
	// Запрещённые расширения (в нижнем регистре, с точкой)
	ForbiddenExtensions []string
	// Минимальная длина пароля на файл
	MinPasswordLength int

	// --- Хэширование паролей ---

	// Стоимость bcrypt
	BcryptCost int
	// Максимум параллельных bcrypt-операций
	HashConcurrency int

	// --- Фоновая очистка ---

	// Интервал запуска очистки просроченных файлов
	SweepInterval time.Duration
	// Размер пачки записей за один проход очистки
	SweepBatchSize int

	// --- Кэш токенов ---

	CacheSize int
	CacheTTL  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- JWT ---

	// Общий секрет HS256 (взаимоисключающий с JWKSURL)
	JWTSecret string
	// URL JWKS endpoint для RS256
	JWKSURL string
	// Ожидаемый issuer (пусто — не проверяется)
	JWTIssuer string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления ключей JWKS
	JWKSRefreshInterval time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// LoadDotEnv подгружает переменные из .env файла, не перетирая уже заданные.
// Отсутствие файла ошибкой не считается.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("загрузка %s: %w", path, err)
	}
	return nil
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
//
//nolint:cyclop,funlen // линейный разбор переменных окружения
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("DS_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("DS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DS_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DS_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("DS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DS_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	cfg.PublicBaseURL = strings.TrimRight(getEnvDefault("DS_PUBLIC_BASE_URL", ""), "/")

	cfg.HTTPReadTimeout, err = getEnvDuration("DS_HTTP_READ_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("DS_HTTP_WRITE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("DS_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("DS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Хранилище и политика загрузки ---

	cfg.UploadDir = getEnvDefault("DS_UPLOAD_DIR", "./uploads")

	cfg.MaxFileSize, err = getEnvInt64("DS_MAX_FILE_SIZE", 1<<30)
	if err != nil {
		return nil, fmt.Errorf("DS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("DS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	cfg.MaxFilesPerUser, err = getEnvInt("DS_MAX_FILES_PER_USER", 10)
	if err != nil {
		return nil, fmt.Errorf("DS_MAX_FILES_PER_USER: %w", err)
	}
	if cfg.MaxFilesPerUser < 1 {
		return nil, fmt.Errorf("DS_MAX_FILES_PER_USER: значение должно быть >= 1")
	}

	cfg.MaxExpirationDays, err = getEnvInt("DS_MAX_EXPIRATION_DAYS", 7)
	if err != nil {
		return nil, fmt.Errorf("DS_MAX_EXPIRATION_DAYS: %w", err)
	}
	if cfg.MaxExpirationDays < 1 {
		return nil, fmt.Errorf("DS_MAX_EXPIRATION_DAYS: значение должно быть >= 1")
	}

	cfg.DefaultExpirationDays, err = getEnvInt("DS_DEFAULT_EXPIRATION_DAYS", cfg.MaxExpirationDays)
	if err != nil {
		return nil, fmt.Errorf("DS_DEFAULT_EXPIRATION_DAYS: %w", err)
	}
	if cfg.DefaultExpirationDays < 1 || cfg.DefaultExpirationDays > cfg.MaxExpirationDays {
		return nil, fmt.Errorf("DS_DEFAULT_EXPIRATION_DAYS: значение %d вне диапазона 1-%d",
			cfg.DefaultExpirationDays, cfg.MaxExpirationDays)
	}

	cfg.ForbiddenExtensions = DefaultForbiddenExtensions
	if raw := os.Getenv("DS_FORBIDDEN_EXTENSIONS"); raw != "" {
		cfg.ForbiddenExtensions = normalizeExtensions(parseCSV(raw))
	}

	cfg.MinPasswordLength, err = getEnvInt("DS_MIN_PASSWORD_LENGTH", 6)
	if err != nil {
		return nil, fmt.Errorf("DS_MIN_PASSWORD_LENGTH: %w", err)
	}

	// --- Хэширование паролей ---

	cfg.BcryptCost, err = getEnvInt("DS_BCRYPT_COST", 10)
	if err != nil {
		return nil, fmt.Errorf("DS_BCRYPT_COST: %w", err)
	}
	if cfg.BcryptCost < minBcryptCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("DS_BCRYPT_COST: значение %d вне диапазона %d-%d",
			cfg.BcryptCost, minBcryptCost, bcrypt.MaxCost)
	}

	cfg.HashConcurrency, err = getEnvInt("DS_HASH_CONCURRENCY", runtime.GOMAXPROCS(0))
	if err != nil {
		return nil, fmt.Errorf("DS_HASH_CONCURRENCY: %w", err)
	}
	if cfg.HashConcurrency < 1 {
		return nil, fmt.Errorf("DS_HASH_CONCURRENCY: значение должно быть >= 1")
	}

	// --- Фоновая очистка ---

	cfg.SweepInterval, err = getEnvDuration("DS_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("DS_SWEEP_INTERVAL: %w", err)
	}
	cfg.SweepBatchSize, err = getEnvInt("DS_SWEEP_BATCH_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("DS_SWEEP_BATCH_SIZE: %w", err)
	}
	if cfg.SweepBatchSize < 1 {
		return nil, fmt.Errorf("DS_SWEEP_BATCH_SIZE: значение должно быть >= 1")
	}

	// --- Кэш токенов ---

	cfg.CacheSize, err = getEnvInt("DS_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("DS_CACHE_SIZE: %w", err)
	}
	cfg.CacheTTL, err = getEnvDuration("DS_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_CACHE_TTL: %w", err)
	}

	// --- PostgreSQL ---

	cfg.DBHost = getEnvDefault("DS_DB_HOST", "localhost")
	cfg.DBPort, err = getEnvInt("DS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DS_DB_PORT: %w", err)
	}
	cfg.DBName = getEnvDefault("DS_DB_NAME", "datashare")
	cfg.DBUser = getEnvDefault("DS_DB_USER", "datashare")
	cfg.DBPassword, err = getEnvRequired("DS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("DS_DB_SSL_MODE", "disable")
	switch cfg.DBSSLMode {
	case "disable", "require", "verify-ca", "verify-full":
	default:
		return nil, fmt.Errorf("DS_DB_SSL_MODE: недопустимое значение %q", cfg.DBSSLMode)
	}

	// --- JWT ---

	cfg.JWTSecret = os.Getenv("DS_JWT_SECRET")
	cfg.JWKSURL = os.Getenv("DS_JWKS_URL")
	if cfg.JWTSecret == "" && cfg.JWKSURL == "" {
		return nil, fmt.Errorf("DS_JWT_SECRET или DS_JWKS_URL: необходимо задать один из источников ключей JWT")
	}
	if cfg.JWTSecret != "" && cfg.JWKSURL != "" {
		return nil, fmt.Errorf("DS_JWT_SECRET и DS_JWKS_URL заданы одновременно, допустим только один")
	}
	cfg.JWTIssuer = os.Getenv("DS_JWT_ISSUER")
	cfg.JWTLeeway, err = getEnvDuration("DS_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("DS_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("DS_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("DS_DEPHEALTH_GROUP", "datashare")
	cfg.DephealthCheckInterval, err = getEnvDuration("DS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// normalizeExtensions приводит расширения к виду ".ext" в нижнем регистре.
func normalizeExtensions(exts []string) []string {
	result := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		result = append(result, e)
	}
	return result
}
