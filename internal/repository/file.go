package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/datashare/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
const fileColumns = `id, user_id, original_name, mime_type, size_bytes, storage_path,
	download_token, password_hash, created_at, expires_at, deleted_at`

// MaxPageSize — верхняя граница размера страницы листинга.
const MaxPageSize = 100

// ListParams — параметры листинга файлов владельца.
type ListParams struct {
	OwnerID  int64
	Status   model.StatusFilter
	Page     int
	PageSize int
	// Now — момент, на который вычисляется статус
	Now time.Time
}

// FileRepository — интерфейс доступа к таблице files.
type FileRepository interface {
	// Insert сохраняет новую запись. ID заполняется из БД.
	Insert(ctx context.Context, f *model.FileRecord) error
	// GetByToken возвращает запись по публичному токену.
	GetByToken(ctx context.Context, token string) (*model.FileRecord, error)
	// GetByID возвращает запись по идентификатору.
	GetByID(ctx context.Context, id int64) (*model.FileRecord, error)
	// CountActive считает активные файлы владельца на момент now.
	CountActive(ctx context.Context, ownerID int64, now time.Time) (int, error)
	// ExistsActiveName проверяет наличие активного файла владельца с тем же именем.
	ExistsActiveName(ctx context.Context, ownerID int64, name string, now time.Time) (bool, error)
	// ListByOwner возвращает страницу файлов владельца и общее количество.
	ListByOwner(ctx context.Context, params ListParams) ([]*model.FileRecord, int64, error)
	// MarkDeleted проставляет deleted_at, если запись ещё не удалена.
	MarkDeleted(ctx context.Context, id int64, now time.Time) error
	// MarkDeletedByOwner — то же, но только для записи указанного владельца.
	MarkDeletedByOwner(ctx context.Context, id, ownerID int64, now time.Time) error
	// ListExpired возвращает до limit просроченных и ещё не удалённых записей.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.FileRecord, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Insert вставляет запись. created_at берётся из f.CreatedAt,
// чтобы срок хранения и время создания шли от одних часов.
func (r *fileRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	query := `
		INSERT INTO files (user_id, original_name, mime_type, size_bytes, storage_path,
			download_token, password_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		f.OwnerID, f.OriginalName, f.MimeType, f.SizeBytes, f.StoragePath,
		f.DownloadToken, f.PasswordHash, f.CreatedAt, f.ExpiresAt,
	).Scan(&f.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: токен %s уже существует", ErrConflict, f.DownloadToken)
		}
		return fmt.Errorf("ошибка вставки файла: %w", err)
	}
	return nil
}

// GetByToken возвращает запись по токену или ErrNotFound.
func (r *fileRepo) GetByToken(ctx context.Context, token string) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE download_token = $1`, fileColumns)
	return r.getOne(ctx, query, token)
}

// GetByID возвращает запись по id или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, id int64) (*model.FileRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, fileColumns)
	return r.getOne(ctx, query, id)
}

func (r *fileRepo) getOne(ctx context.Context, query string, arg any) (*model.FileRecord, error) {
	f, err := scanFile(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// CountActive считает активные файлы владельца.
func (r *fileRepo) CountActive(ctx context.Context, ownerID int64, now time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM files
		WHERE user_id = $1 AND deleted_at IS NULL AND expires_at > $2`

	var n int
	if err := r.db.QueryRow(ctx, query, ownerID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта активных файлов: %w", err)
	}
	return n, nil
}

// ExistsActiveName проверяет дубликат имени среди активных файлов владельца.
// Сравнение точное, с учётом регистра.
func (r *fileRepo) ExistsActiveName(ctx context.Context, ownerID int64, name string, now time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM files
			WHERE user_id = $1 AND original_name = $2
				AND deleted_at IS NULL AND expires_at > $3
		)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, ownerID, name, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("ошибка проверки дубликата имени: %w", err)
	}
	return exists, nil
}

// ListByOwner возвращает страницу файлов владельца, новые первыми.
func (r *fileRepo) ListByOwner(ctx context.Context, params ListParams) ([]*model.FileRecord, int64, error) {
	page, pageSize := normalizePage(params.Page, params.PageSize)

	where, args := buildListWhere(params.OwnerID, params.Status, params.Now)
	argNum := len(args) + 1

	dataQuery := fmt.Sprintf(
		`SELECT %s FROM files %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		fileColumns, where, argNum, argNum+1,
	)
	dataArgs := append(append([]any{}, args...), pageSize, (page-1)*pageSize)

	rows, err := r.db.Query(ctx, dataQuery, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка листинга файлов: %w", err)
	}
	result, err := collectFiles(rows)
	if err != nil {
		return nil, 0, err
	}

	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM files %s`, where)
	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}

	return result, total, nil
}

// MarkDeleted проставляет deleted_at. Повторная пометка возвращает ErrNotFound.
func (r *fileRepo) MarkDeleted(ctx context.Context, id int64, now time.Time) error {
	query := `UPDATE files SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("ошибка пометки файла как удалённого: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDeletedByOwner проставляет deleted_at только для записи владельца.
func (r *fileRepo) MarkDeletedByOwner(ctx context.Context, id, ownerID int64, now time.Time) error {
	query := `UPDATE files SET deleted_at = $3 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, ownerID, now)
	if err != nil {
		return fmt.Errorf("ошибка удаления файла владельцем: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpired возвращает просроченные неудалённые записи, старые первыми.
func (r *fileRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM files
		WHERE deleted_at IS NULL AND expires_at <= $1
		ORDER BY expires_at ASC, id ASC
		LIMIT $2`, fileColumns)

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения просроченных файлов: %w", err)
	}
	return collectFiles(rows)
}

// buildListWhere строит WHERE-условие листинга владельца со статусным фильтром.
// Статус вычисляется по deleted_at и expires_at относительно now.
func buildListWhere(ownerID int64, status model.StatusFilter, now time.Time) (whereClause string, args []any) {
	whereClause = "WHERE user_id = $1"
	args = []any{ownerID}

	switch status {
	case model.FilterActive:
		whereClause += " AND deleted_at IS NULL AND expires_at > $2"
		args = append(args, now)
	case model.FilterExpired:
		whereClause += " AND deleted_at IS NULL AND expires_at <= $2"
		args = append(args, now)
	case model.FilterDeleted:
		whereClause += " AND deleted_at IS NOT NULL"
	}
	return whereClause, args
}

// normalizePage приводит параметры пагинации к допустимым значениям.
func normalizePage(page, pageSize int) (pageVal, pageSizeVal int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// scanFile сканирует одну строку в FileRecord.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	err := row.Scan(
		&f.ID, &f.OwnerID, &f.OriginalName, &f.MimeType, &f.SizeBytes, &f.StoragePath,
		&f.DownloadToken, &f.PasswordHash, &f.CreatedAt, &f.ExpiresAt, &f.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// collectFiles читает все строки результата и закрывает rows.
func collectFiles(rows pgx.Rows) ([]*model.FileRecord, error) {
	defer rows.Close()

	var result []*model.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}
