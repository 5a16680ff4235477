// files.go — операции владельца: листинг и удаление своих файлов.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bigkaa/datashare/internal/domain/model"
	"github.com/bigkaa/datashare/internal/repository"
	"github.com/bigkaa/datashare/internal/storage/filestore"
)

// Значения пагинации по умолчанию.
const (
	DefaultPage     = 1
	DefaultPageSize = 20
)

// ListQuery — параметры листинга. nil — значение по умолчанию.
type ListQuery struct {
	Status   string
	Page     *int
	PageSize *int
}

// FilesService — операции владельца над своими файлами.
type FilesService struct {
	repo          repository.FileRepository
	store         *filestore.Store
	cache         *TokenCache
	publicBaseURL string
	logger        *slog.Logger
	now           func() time.Time
}

// NewFilesService создаёт сервис операций владельца.
func NewFilesService(
	repo repository.FileRepository,
	store *filestore.Store,
	cache *TokenCache,
	publicBaseURL string,
	logger *slog.Logger,
) *FilesService {
	return &FilesService{
		repo:          repo,
		store:         store,
		cache:         cache,
		publicBaseURL: publicBaseURL,
		logger:        logger.With(slog.String("component", "files_service")),
		now:           time.Now,
	}
}

// ListFiles возвращает страницу файлов владельца, новые первыми.
func (s *FilesService) ListFiles(ctx context.Context, ownerID int64, q ListQuery) (*model.FileList, error) {
	status, ok := model.ParseStatusFilter(q.Status)
	if !ok {
		return nil, newError(KindValidation, "Недопустимый статус %q: all, active, expired, deleted", q.Status)
	}

	page := DefaultPage
	if q.Page != nil {
		if *q.Page < 1 {
			return nil, newError(KindValidation, "page должен быть >= 1")
		}
		page = *q.Page
	}

	pageSize := DefaultPageSize
	if q.PageSize != nil {
		if *q.PageSize < 1 || *q.PageSize > repository.MaxPageSize {
			return nil, newError(KindValidation, "pageSize должен быть от 1 до %d", repository.MaxPageSize)
		}
		pageSize = *q.PageSize
	}

	now := s.now().UTC()
	records, total, err := s.repo.ListByOwner(ctx, repository.ListParams{
		OwnerID:  ownerID,
		Status:   status,
		Page:     page,
		PageSize: pageSize,
		Now:      now,
	})
	if err != nil {
		return nil, internalError("ошибка получения списка файлов", err)
	}

	items := make([]model.FileListItem, 0, len(records))
	for _, r := range records {
		items = append(items, model.FileListItem{
			ID:           r.ID,
			OriginalName: r.OriginalName,
			SizeBytes:    r.SizeBytes,
			MimeType:     r.MimeType,
			CreatedAt:    r.CreatedAt,
			ExpiresAt:    r.ExpiresAt,
			Token:        r.DownloadToken,
			DownloadURL:  s.publicBaseURL + model.DownloadPath(r.DownloadToken),
			IsProtected:  r.IsProtected(),
			Status:       r.StatusAt(now),
		})
	}

	return &model.FileList{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}

// DeleteFile удаляет файл владельца: сначала байты, затем пометка в БД.
// Чужой или несуществующий файл — NotFound, без раскрытия владельца.
func (s *FilesService) DeleteFile(ctx context.Context, ownerID, fileID int64) error {
	if fileID <= 0 {
		return newError(KindValidation, "Некорректный идентификатор файла")
	}

	rec, err := s.repo.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, msgNotFound)
		}
		return internalError("ошибка получения файла", err)
	}
	if rec.OwnerID != ownerID {
		return newError(KindNotFound, msgNotFound)
	}
	if rec.DeletedAt != nil {
		return newError(KindNotFound, "Файл уже удалён")
	}

	if err := s.store.Delete(rec.StoragePath); err != nil {
		if errors.Is(err, filestore.ErrOutsideRoot) {
			s.logger.Error("Путь файла выходит за пределы корня загрузок, байты не удаляются",
				slog.Int64("file_id", rec.ID),
			)
		} else {
			return internalError("ошибка удаления файла с диска", err)
		}
	}

	if err := s.repo.MarkDeletedByOwner(ctx, rec.ID, ownerID, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Параллельное удаление успело раньше
			s.cache.Invalidate(rec.DownloadToken)
			return newError(KindNotFound, "Файл уже удалён")
		}
		return internalError("ошибка пометки файла как удалённого", err)
	}
	s.cache.Invalidate(rec.DownloadToken)

	s.logger.Info("Файл удалён владельцем",
		slog.Int64("file_id", rec.ID),
		slog.Int64("owner_id", ownerID),
	)
	return nil
}
