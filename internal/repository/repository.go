// Пакет repository — слой доступа к данным PostgreSQL для datashare.
// Все запросы — чистый SQL через pgx, без ORM.
// Текущее время передаётся параметром: статус файла вычисляется
// на момент запроса, а не хранится.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена (или не подошла под условие обновления).
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — нарушено ограничение уникальности.
	ErrConflict = errors.New("конфликт уникальности")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// uniqueViolation — код ошибки PostgreSQL unique_violation.
const uniqueViolation = "23505"

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
