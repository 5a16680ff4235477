// handler.go — общие типы HTTP-обработчиков datashare:
// интерфейсы сервисного слоя и вспомогательные функции ответа.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/datashare/internal/api/errors"
	"github.com/bigkaa/datashare/internal/domain/model"
	"github.com/bigkaa/datashare/internal/service"
)

// Uploader — загрузка файла владельцем.
type Uploader interface {
	Upload(ctx context.Context, ownerID int64, file *service.FileInput, opts service.UploadOptions) (*model.FileSummary, error)
}

// FileManager — операции владельца над своими файлами.
type FileManager interface {
	ListFiles(ctx context.Context, ownerID int64, q service.ListQuery) (*model.FileList, error)
	DeleteFile(ctx context.Context, ownerID, fileID int64) error
}

// Downloader — публичный доступ по токену.
type Downloader interface {
	ResolveMeta(ctx context.Context, token string) (*model.PublicMeta, error)
	PrepareDownload(ctx context.Context, token string, password *string) (*service.StreamDescriptor, error)
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError отвечает на ошибку сервиса; 5xx дополнительно логируются.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if status := apierrors.FromService(w, err); status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Ошибка обработки запроса",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	}
}
