// upload.go — сервис загрузки файлов.
// Проверка политики → срок хранения → хэш пароля → токен →
// запись байтов → запись метаданных. Повторов нет.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/datashare/internal/domain/model"
	"github.com/bigkaa/datashare/internal/repository"
	"github.com/bigkaa/datashare/internal/storage/filestore"
)

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ds_uploads_total",
		Help: "Общее количество попыток загрузки по результату.",
	}, []string{"result"})

	uploadedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_uploaded_bytes_total",
		Help: "Общий объём успешно загруженных данных в байтах.",
	})
)

const (
	// sniffLen — сколько байтов смотреть при определении MIME-типа
	sniffLen = 512
	// octetStream — MIME-тип «неизвестные двоичные данные»
	octetStream = "application/octet-stream"
)

// UploadOptions — необязательные параметры загрузки.
type UploadOptions struct {
	// Password — пароль на скачивание (nil — без пароля)
	Password *string
	// ExpirationDays — срок хранения в днях (nil — по умолчанию)
	ExpirationDays *int
}

// UploadConfig — параметры сервиса загрузки.
type UploadConfig struct {
	MaxExpirationDays     int
	DefaultExpirationDays int
	MinPasswordLength     int
	// PublicBaseURL — префикс ссылок на скачивание
	PublicBaseURL string
}

// UploadService — оркестратор загрузки файла.
type UploadService struct {
	repo     repository.FileRepository
	store    *filestore.Store
	policy   *PolicyValidator
	hasher   *PasswordHasher
	cfg      UploadConfig
	logger   *slog.Logger
	now      func() time.Time
	newToken func() (string, error)
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	repo repository.FileRepository,
	store *filestore.Store,
	policy *PolicyValidator,
	hasher *PasswordHasher,
	cfg UploadConfig,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		repo:     repo,
		store:    store,
		policy:   policy,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "upload_service")),
		now:      time.Now,
		newToken: newAccessToken,
	}
}

// Upload проверяет и сохраняет файл владельца.
// Если метаданные не записались после записи байтов, байты удаляются
// (best effort) и возвращается StorageInconsistency.
func (s *UploadService) Upload(ctx context.Context, ownerID int64, file *FileInput, opts UploadOptions) (*model.FileSummary, error) {
	summary, err := s.upload(ctx, ownerID, file, opts)
	if err != nil {
		uploadsTotal.WithLabelValues(KindOf(err).Code()).Inc()
		return nil, err
	}
	uploadsTotal.WithLabelValues("ok").Inc()
	uploadedBytesTotal.Add(float64(summary.Size))
	return summary, nil
}

//nolint:funlen // последовательные шаги загрузки
func (s *UploadService) upload(ctx context.Context, ownerID int64, file *FileInput, opts UploadOptions) (*model.FileSummary, error) {
	// Размер берём из источника, а не со слов клиента
	if file != nil && file.Source.Kind != 0 {
		size, err := s.store.Size(file.Source)
		if err != nil {
			return nil, internalError("ошибка чтения загруженного файла", err)
		}
		file.Size = size
	}

	// 1. Политика
	if err := s.policy.Validate(ctx, file, ownerID); err != nil {
		return nil, err
	}

	// 2. Срок хранения
	days := s.cfg.DefaultExpirationDays
	if opts.ExpirationDays != nil {
		days = *opts.ExpirationDays
	}
	if days < 1 || days > s.cfg.MaxExpirationDays {
		return nil, newError(KindInvalidExpiration,
			"Срок хранения должен быть от 1 до %d дней", s.cfg.MaxExpirationDays)
	}
	now := s.now().UTC()
	expiresAt := now.Add(time.Duration(days) * 24 * time.Hour)

	// 3. Пароль
	var passwordHash *string
	if opts.Password != nil {
		if utf8.RuneCountInString(*opts.Password) < s.cfg.MinPasswordLength {
			return nil, newError(KindPasswordTooShort,
				"Пароль должен содержать не менее %d символов", s.cfg.MinPasswordLength)
		}
		hash, err := s.hasher.Hash(ctx, *opts.Password)
		if err != nil {
			if KindOf(err) != KindInternal {
				return nil, err
			}
			return nil, internalError("ошибка хэширования пароля", err)
		}
		passwordHash = &hash
	}

	// 4. Токен
	token, err := s.newToken()
	if err != nil {
		return nil, internalError("ошибка генерации токена", err)
	}

	mimeType := s.detectMimeType(file)

	// 5. Байты
	put, err := s.store.Persist(file.Source, file.Name)
	if err != nil {
		return nil, internalError("ошибка сохранения файла", err)
	}

	// 6. Метаданные
	rec := &model.FileRecord{
		OwnerID:       ownerID,
		OriginalName:  file.Name,
		MimeType:      mimeType,
		SizeBytes:     put.Size,
		StoragePath:   put.StoragePath,
		DownloadToken: token,
		PasswordHash:  passwordHash,
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
	}
	if err := s.repo.Insert(ctx, rec); err != nil {
		if delErr := s.store.Delete(put.StoragePath); delErr != nil {
			s.logger.Error("Не удалось удалить байты после ошибки записи метаданных",
				slog.String("storage_path", put.StoragePath),
				slog.String("error", delErr.Error()),
			)
		}
		s.logger.Error("Ошибка записи метаданных файла",
			slog.Int64("owner_id", ownerID),
			slog.String("storage_path", put.StoragePath),
			slog.String("error", err.Error()),
		)
		return nil, &Error{
			Kind:    KindStorageInconsistency,
			Message: "Не удалось сохранить метаданные файла",
			Err:     err,
		}
	}

	s.logger.Info("Файл загружен",
		slog.Int64("file_id", rec.ID),
		slog.Int64("owner_id", ownerID),
		slog.Int64("size", rec.SizeBytes),
		slog.Bool("protected", passwordHash != nil),
		slog.Time("expires_at", expiresAt),
	)

	// 7. Результат
	return &model.FileSummary{
		ID:                rec.ID,
		OriginalName:      rec.OriginalName,
		MimeType:          rec.MimeType,
		Size:              rec.SizeBytes,
		StoragePath:       rec.StoragePath,
		DownloadToken:     rec.DownloadToken,
		DownloadURL:       s.cfg.PublicBaseURL + model.DownloadPath(rec.DownloadToken),
		ExpiresAt:         rec.ExpiresAt,
		CreatedAt:         rec.CreatedAt,
		PasswordProtected: passwordHash != nil,
	}, nil
}

// detectMimeType возвращает заявленный тип либо определяет его по содержимому,
// если клиент тип не указал или прислал application/octet-stream.
func (s *UploadService) detectMimeType(file *FileInput) string {
	if file.DeclaredType != "" && file.DeclaredType != octetStream {
		return file.DeclaredType
	}
	head, err := s.store.Head(file.Source, sniffLen)
	if err != nil {
		s.logger.Warn("Не удалось определить MIME-тип",
			slog.String("error", err.Error()),
		)
		return octetStream
	}
	return mimetype.Detect(head).String()
}

// newAccessToken генерирует UUID v4 на основе crypto/rand.
func newAccessToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("uuid: %w", err)
	}
	return id.String(), nil
}
