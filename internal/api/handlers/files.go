// files.go — обработчики маршрутов владельца:
// POST /api/files/upload, GET /api/files, DELETE /api/files/{id}.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/datashare/internal/api/errors"
	"github.com/bigkaa/datashare/internal/api/middleware"
	"github.com/bigkaa/datashare/internal/domain/model"
	"github.com/bigkaa/datashare/internal/service"
	"github.com/bigkaa/datashare/internal/storage/filestore"
)

const (
	// multipartMemory — часть multipart, которая держится в памяти;
	// остальное net/http сбрасывает во временные файлы.
	multipartMemory = 32 << 20
	// multipartOverhead — запас на заголовки частей и текстовые поля.
	multipartOverhead = 1 << 20
)

// FilesHandler — обработчик файловых endpoints владельца.
type FilesHandler struct {
	uploader    Uploader
	files       FileManager
	maxFileSize int64
	logger      *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(uploader Uploader, files FileManager, maxFileSize int64, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		uploader:    uploader,
		files:       files,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// uploadResponse — ответ на успешную загрузку.
type uploadResponse struct {
	File *model.FileSummary `json:"file"`
}

// UploadFile обрабатывает POST /api/files/upload.
// Multipart form: file (обязательно), password, expiration_days (опционально).
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.WriteError(w, http.StatusRequestEntityTooLarge, service.KindTooLarge.Code(),
				"Файл превышает допустимый размер")
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка разбора multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	opts, err := parseUploadOptions(r)
	if err != nil {
		writeServiceError(w, r, h.logger, "upload", err)
		return
	}

	var input *service.FileInput
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// Пустой ввод отклонит политика
	case err != nil:
		apierrors.ValidationError(w, "Некорректное поле file")
		return
	default:
		defer file.Close()
		input, err = fileInput(file, header)
		if err != nil {
			h.logger.Error("Ошибка чтения загруженной части",
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Ошибка чтения загруженного файла")
			return
		}
	}

	summary, err := h.uploader.Upload(r.Context(), ownerID, input, opts)
	if err != nil {
		writeServiceError(w, r, h.logger, "upload", err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{File: summary})
}

// parseUploadOptions читает password и expiration_days из формы.
// Переданное поле password, даже пустое, задаёт пароль: длину проверит сервис.
// Пустое expiration_days означает срок по умолчанию.
func parseUploadOptions(r *http.Request) (service.UploadOptions, error) {
	var opts service.UploadOptions

	if vals, ok := r.PostForm["password"]; ok && len(vals) > 0 {
		pw := vals[0]
		opts.Password = &pw
	}

	if raw := strings.TrimSpace(r.PostFormValue("expiration_days")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return opts, &service.Error{
				Kind:    service.KindInvalidExpiration,
				Message: fmt.Sprintf("Некорректное значение expiration_days: %q", raw),
			}
		}
		opts.ExpirationDays = &days
	}

	return opts, nil
}

// fileInput строит вход сервиса из части multipart. Часть, сброшенная
// net/http на диск, передаётся путём, чтобы не копировать её в память.
func fileInput(file multipart.File, header *multipart.FileHeader) (*service.FileInput, error) {
	input := &service.FileInput{
		Name:         originalName(header),
		DeclaredType: header.Header.Get("Content-Type"),
		Size:         header.Size,
	}

	if f, ok := file.(*os.File); ok {
		input.Source = filestore.PathSource(f.Name())
		return input, nil
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	input.Source = filestore.BytesSource(data)
	return input, nil
}

// originalName возвращает имя файла так, как его прислал клиент.
// FileHeader.Filename уже сокращён mime/multipart до базового имени.
func originalName(header *multipart.FileHeader) string {
	_, params, err := mime.ParseMediaType(header.Header.Get("Content-Disposition"))
	if err == nil && params["filename"] != "" {
		return params["filename"]
	}
	return header.Filename
}

// ListFilesParams — параметры запроса GET /api/files.
type ListFilesParams struct {
	Status   *string `form:"status,omitempty" json:"status,omitempty"`
	Page     *int    `form:"page,omitempty" json:"page,omitempty"`
	PageSize *int    `form:"pageSize,omitempty" json:"pageSize,omitempty"`
}

// ListFiles обрабатывает GET /api/files?status=&page=&pageSize=.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var params ListFilesParams
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "status", query, &params.Status); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр status: %s", err.Error()))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "page", query, &params.Page); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр page: %s", err.Error()))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "pageSize", query, &params.PageSize); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр pageSize: %s", err.Error()))
		return
	}

	q := service.ListQuery{Page: params.Page, PageSize: params.PageSize}
	if params.Status != nil {
		q.Status = *params.Status
	}

	list, err := h.files.ListFiles(r.Context(), ownerID, q)
	if err != nil {
		writeServiceError(w, r, h.logger, "list", err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// DeleteFile обрабатывает DELETE /api/files/{id}.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var fileID int64
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &fileID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationError(w, "Некорректный идентификатор файла")
		return
	}

	if err := h.files.DeleteFile(r.Context(), ownerID, fileID); err != nil {
		writeServiceError(w, r, h.logger, "delete", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
