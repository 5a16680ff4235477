// password.go — хэширование паролей файлов через bcrypt
// с ограничением числа одновременных операций.
package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// PasswordHasher выполняет bcrypt-операции не более чем в concurrency
// горутинах одновременно. Остальные ждут слота или отмены контекста.
type PasswordHasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewPasswordHasher создаёт хэшер с указанной стоимостью bcrypt.
func NewPasswordHasher(cost, concurrency int) *PasswordHasher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &PasswordHasher{cost: cost, sem: semaphore.NewWeighted(int64(concurrency))}
}

// Hash возвращает bcrypt-хэш пароля.
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("ожидание слота хэширования: %w", err)
	}
	defer h.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", newError(KindValidation, "Пароль слишком длинный (максимум 72 байта)")
		}
		return "", fmt.Errorf("ошибка bcrypt: %w", err)
	}
	return string(hash), nil
}

// Compare сравнивает пароль с хэшем. Несовпадение — (false, nil).
func (h *PasswordHasher) Compare(ctx context.Context, hash, password string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("ожидание слота хэширования: %w", err)
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("ошибка сравнения bcrypt: %w", err)
	}
}
