// download.go — публичные обработчики скачивания по токену:
// GET {prefix}/{token}/meta, GET и POST {prefix}/{token}.
// Пароль передаётся только в теле POST (JSON или форма), не в URL.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/datashare/internal/api/errors"
)

// maxPasswordBody — предел тела POST с паролем.
const maxPasswordBody = 64 << 10

// DownloadHandler — обработчик публичного доступа к файлам.
type DownloadHandler struct {
	access Downloader
	logger *slog.Logger
}

// NewDownloadHandler создаёт обработчик публичного доступа.
func NewDownloadHandler(access Downloader, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		access: access,
		logger: logger.With(slog.String("component", "download_handler")),
	}
}

// passwordRequest — тело POST запроса скачивания.
type passwordRequest struct {
	Password *string `json:"password"`
}

// GetMeta обрабатывает GET {prefix}/{token}/meta.
func (h *DownloadHandler) GetMeta(w http.ResponseWriter, r *http.Request) {
	meta, err := h.access.ResolveMeta(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, h.logger, "meta", err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// Download обрабатывает GET {prefix}/{token} — скачивание без пароля.
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, nil)
}

// DownloadWithPassword обрабатывает POST {prefix}/{token}.
func (h *DownloadHandler) DownloadWithPassword(w http.ResponseWriter, r *http.Request) {
	password, err := readPassword(w, r)
	if err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}
	h.serve(w, r, password)
}

// serve проходит проверки доступа и отдаёт содержимое через http.ServeContent
// (Range, If-Modified-Since, Content-Length).
func (h *DownloadHandler) serve(w http.ResponseWriter, r *http.Request, password *string) {
	desc, err := h.access.PrepareDownload(r.Context(), chi.URLParam(r, "token"), password)
	if err != nil {
		writeServiceError(w, r, h.logger, "download", err)
		return
	}
	defer desc.Body.Close()

	contentType := desc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", desc.ContentDisposition)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, no-store")

	http.ServeContent(w, r, desc.OriginalName, desc.ModTime, desc.Body)
}

// readPassword читает пароль из JSON или из полей формы.
// Отсутствие пароля — не ошибка, решение принимает сервис.
func readPassword(w http.ResponseWriter, r *http.Request) (*string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPasswordBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var req passwordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, err
		}
		return req.Password, nil
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxPasswordBody); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return nil, err
		}
		if _, ok := r.PostForm["password"]; !ok {
			return nil, nil
		}
		pw := r.PostFormValue("password")
		return &pw, nil
	default:
		return nil, nil
	}
}
