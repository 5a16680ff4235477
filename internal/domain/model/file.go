// Пакет model — доменные модели datashare.
// FileRecord — маппинг таблицы files.
package model

import "time"

// Status — вычисляемый статус файла. В БД не хранится.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusDeleted Status = "deleted"
)

// StatusFilter — фильтр статуса при листинге файлов владельца.
type StatusFilter string

const (
	FilterAll     StatusFilter = "all"
	FilterActive  StatusFilter = "active"
	FilterExpired StatusFilter = "expired"
	FilterDeleted StatusFilter = "deleted"
)

// ParseStatusFilter разбирает строковое значение фильтра.
// Пустая строка трактуется как all.
func ParseStatusFilter(s string) (StatusFilter, bool) {
	switch StatusFilter(s) {
	case "":
		return FilterAll, true
	case FilterAll, FilterActive, FilterExpired, FilterDeleted:
		return StatusFilter(s), true
	default:
		return "", false
	}
}

// FileRecord — запись загруженного файла.
type FileRecord struct {
	// ID — суррогатный ключ
	ID int64
	// OwnerID — владелец (users.id, sub из JWT)
	OwnerID int64
	// OriginalName — имя файла от клиента. Только для отображения.
	OriginalName string
	// MimeType — MIME-тип, заявленный клиентом (или определённый по содержимому)
	MimeType string
	// SizeBytes — фактический размер, записанный хранилищем
	SizeBytes int64
	// StoragePath — путь относительно корня загрузок
	StoragePath string
	// DownloadToken — UUID v4, публичный токен доступа
	DownloadToken string
	// PasswordHash — bcrypt-хэш пароля (nil — файл не защищён)
	PasswordHash *string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// ExpiresAt — время истечения, задаётся только при вставке
	ExpiresAt time.Time
	// DeletedAt — время мягкого удаления
	DeletedAt *time.Time
}

// StatusAt вычисляет статус на момент now.
// DELETED имеет приоритет над EXPIRED, граница expiresAt == now считается истёкшей.
func (f *FileRecord) StatusAt(now time.Time) Status {
	if f.DeletedAt != nil {
		return StatusDeleted
	}
	if !f.ExpiresAt.After(now) {
		return StatusExpired
	}
	return StatusActive
}

// IsProtected сообщает, защищён ли файл паролем.
func (f *FileRecord) IsProtected() bool {
	return f.PasswordHash != nil && *f.PasswordHash != ""
}

// FileSummary — результат загрузки, возвращаемый владельцу.
type FileSummary struct {
	ID                int64     `json:"id"`
	OriginalName      string    `json:"originalName"`
	MimeType          string    `json:"mimeType"`
	Size              int64     `json:"size"`
	StoragePath       string    `json:"storagePath"`
	DownloadToken     string    `json:"downloadToken"`
	DownloadURL       string    `json:"downloadUrl"`
	ExpiresAt         time.Time `json:"expiresAt"`
	CreatedAt         time.Time `json:"createdAt"`
	PasswordProtected bool      `json:"passwordProtected"`
}

// PublicMeta — метаданные, доступные по публичному токену без пароля.
type PublicMeta struct {
	Token        string    `json:"token"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	ExpiresAt    time.Time `json:"expiresAt"`
	IsProtected  bool      `json:"isProtected"`
}

// FileListItem — элемент листинга файлов владельца.
type FileListItem struct {
	ID           int64     `json:"id"`
	OriginalName string    `json:"originalName"`
	SizeBytes    int64     `json:"sizeBytes"`
	MimeType     string    `json:"mimeType"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Token        string    `json:"token"`
	DownloadURL  string    `json:"downloadUrl"`
	IsProtected  bool      `json:"isProtected"`
	Status       Status    `json:"status"`
}

// FileList — страница листинга.
type FileList struct {
	Items    []FileListItem `json:"items"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Total    int64          `json:"total"`
}

// DownloadPath возвращает относительный путь публичной ссылки для токена.
func DownloadPath(token string) string {
	return "/download/" + token
}
