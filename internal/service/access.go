// access.go — публичный доступ к файлу по токену.
// Проверки в фиксированном порядке: формат токена → запись →
// удалён → истёк → пароль → путь внутри корня → файл на диске.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/datashare/internal/domain/model"
	"github.com/bigkaa/datashare/internal/repository"
	"github.com/bigkaa/datashare/internal/storage/filestore"
)

// downloadsTotal — количество попыток скачивания по результату.
var downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ds_downloads_total",
	Help: "Общее количество попыток скачивания по результату.",
}, []string{"result"})

// tokenLen — длина канонического UUID.
const tokenLen = 36

// Сообщения, одинаковые для всех подслучаев, чтобы не раскрывать причину.
const (
	msgNotFound     = "Файл не найден"
	msgGone         = "Файл больше недоступен"
	msgBadPassword  = "Требуется корректный пароль"
	fallbackName    = "download"
	attachmentToken = "attachment"
)

// StreamDescriptor — всё, что нужно HTTP-слою для отдачи содержимого.
// Вызывающий код обязан закрыть Body.
type StreamDescriptor struct {
	Body               io.ReadSeekCloser
	MimeType           string
	SizeBytes          int64
	ContentDisposition string
	OriginalName       string
	ModTime            time.Time
}

// AccessService — выдача файлов по публичному токену.
type AccessService struct {
	repo   repository.FileRepository
	store  *filestore.Store
	hasher *PasswordHasher
	cache  *TokenCache
	logger *slog.Logger
	now    func() time.Time
}

// NewAccessService создаёт сервис доступа. cache может быть nil.
func NewAccessService(
	repo repository.FileRepository,
	store *filestore.Store,
	hasher *PasswordHasher,
	cache *TokenCache,
	logger *slog.Logger,
) *AccessService {
	return &AccessService{
		repo:   repo,
		store:  store,
		hasher: hasher,
		cache:  cache,
		logger: logger.With(slog.String("component", "access_service")),
		now:    time.Now,
	}
}

// ResolveMeta возвращает публичные метаданные без проверки пароля.
func (s *AccessService) ResolveMeta(ctx context.Context, token string) (*model.PublicMeta, error) {
	rec, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return &model.PublicMeta{
		Token:        rec.DownloadToken,
		OriginalName: rec.OriginalName,
		MimeType:     rec.MimeType,
		SizeBytes:    rec.SizeBytes,
		ExpiresAt:    rec.ExpiresAt,
		IsProtected:  rec.IsProtected(),
	}, nil
}

// PrepareDownload проходит все проверки и открывает файл на чтение.
func (s *AccessService) PrepareDownload(ctx context.Context, token string, password *string) (*StreamDescriptor, error) {
	desc, err := s.prepareDownload(ctx, token, password)
	if err != nil {
		downloadsTotal.WithLabelValues(KindOf(err).Code()).Inc()
		return nil, err
	}
	downloadsTotal.WithLabelValues("ok").Inc()
	return desc, nil
}

func (s *AccessService) prepareDownload(ctx context.Context, token string, password *string) (*StreamDescriptor, error) {
	rec, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if rec.IsProtected() {
		if password == nil || *password == "" {
			return nil, newError(KindUnauthorized, msgBadPassword)
		}
		ok, err := s.hasher.Compare(ctx, *rec.PasswordHash, *password)
		if err != nil {
			return nil, internalError("ошибка проверки пароля", err)
		}
		if !ok {
			return nil, newError(KindUnauthorized, msgBadPassword)
		}
	}

	if !s.store.Contains(rec.StoragePath) {
		s.logger.Error("Путь файла выходит за пределы корня загрузок",
			slog.Int64("file_id", rec.ID),
		)
		return nil, newError(KindGone, msgGone)
	}

	f, err := s.store.Open(rec.StoragePath)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			s.logger.Warn("Файл отсутствует на диске",
				slog.Int64("file_id", rec.ID),
				slog.String("storage_path", rec.StoragePath),
			)
			return nil, newError(KindGone, msgGone)
		}
		return nil, internalError("ошибка открытия файла", err)
	}

	return &StreamDescriptor{
		Body:               f,
		MimeType:           rec.MimeType,
		SizeBytes:          rec.SizeBytes,
		ContentDisposition: ContentDisposition(rec.OriginalName),
		OriginalName:       rec.OriginalName,
		ModTime:            rec.CreatedAt,
	}, nil
}

// resolve применяет первые четыре проверки: формат, наличие, удаление, срок.
func (s *AccessService) resolve(ctx context.Context, token string) (*model.FileRecord, error) {
	if !ValidToken(token) {
		return nil, newError(KindNotFound, msgNotFound)
	}

	rec, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	switch rec.StatusAt(s.now()) {
	case model.StatusDeleted, model.StatusExpired:
		return nil, newError(KindGone, msgGone)
	default:
		return rec, nil
	}
}

// lookup ищет запись сначала в кэше, затем в БД.
func (s *AccessService) lookup(ctx context.Context, token string) (*model.FileRecord, error) {
	if rec, ok := s.cache.Get(token); ok {
		return rec, nil
	}

	rec, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, msgNotFound)
		}
		return nil, internalError("ошибка получения файла", err)
	}
	s.cache.Set(rec)
	return rec, nil
}

// ValidToken проверяет, что строка — канонический UUID из 36 символов.
func ValidToken(token string) bool {
	if len(token) != tokenLen {
		return false
	}
	_, err := uuid.Parse(token)
	return err == nil
}

// ContentDisposition формирует заголовок attachment для имени файла.
// Имя очищается через CleanName; для имён
// с не-ASCII символами добавляется filename* (RFC 5987), а в filename
// такие символы заменяются на '_'.
func ContentDisposition(name string) string {
	clean := CleanName(name)
	if clean == "" {
		clean = fallbackName
	}

	ascii := true
	fallback := strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			ascii = false
			return '_'
		}
		return r
	}, clean)

	header := attachmentToken + `; filename="` + fallback + `"`
	if !ascii {
		header += "; filename*=UTF-8''" + encodeRFC5987(clean)
	}
	return header
}

// encodeRFC5987 кодирует значение ext-value: всё, кроме attr-char, — в %XX.
func encodeRFC5987(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0F])
	}
	return b.String()
}

// isAttrChar — символы, допустимые без кодирования (RFC 5987, attr-char).
func isAttrChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
