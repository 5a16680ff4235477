// Пакет service — бизнес-логика datashare: политика загрузки,
// загрузка, публичный доступ по токену, операции владельца и очистка.
package service

import (
	"errors"
	"fmt"
)

// Kind — вид отказа операции.
type Kind int

const (
	KindInternal Kind = iota
	KindEmpty
	KindTooLarge
	KindNoExtension
	KindForbiddenType
	KindQuotaExceeded
	KindDuplicateActiveName
	KindInvalidExpiration
	KindPasswordTooShort
	KindValidation
	KindNotFound
	KindGone
	KindUnauthorized
	KindStorageInconsistency
)

var kindNames = map[Kind]string{
	KindInternal:             "INTERNAL_ERROR",
	KindEmpty:                "FILE_REQUIRED",
	KindTooLarge:             "FILE_TOO_LARGE",
	KindNoExtension:          "NO_EXTENSION",
	KindForbiddenType:        "FORBIDDEN_TYPE",
	KindQuotaExceeded:        "QUOTA_EXCEEDED",
	KindDuplicateActiveName:  "DUPLICATE_NAME",
	KindInvalidExpiration:    "INVALID_EXPIRATION",
	KindPasswordTooShort:     "PASSWORD_TOO_SHORT",
	KindValidation:           "VALIDATION_ERROR",
	KindNotFound:             "NOT_FOUND",
	KindGone:                 "GONE",
	KindUnauthorized:         "UNAUTHORIZED",
	KindStorageInconsistency: "STORAGE_INCONSISTENCY",
}

// Code возвращает машиночитаемый код для ответа API.
func (k Kind) Code() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInternal]
}

// String реализует fmt.Stringer.
func (k Kind) String() string {
	return k.Code()
}

// Category — группа видов отказа, определяющая HTTP-статус.
type Category int

const (
	CategoryInternal Category = iota
	CategoryClientInput
	CategoryPolicy
	CategoryNotFound
	CategoryGone
	CategoryUnauthorized
)

// Category возвращает категорию вида отказа.
// StorageInconsistency — серверная ошибка, как и Internal.
func (k Kind) Category() Category {
	switch k {
	case KindEmpty, KindNoExtension, KindInvalidExpiration, KindPasswordTooShort, KindValidation:
		return CategoryClientInput
	case KindTooLarge, KindForbiddenType, KindQuotaExceeded, KindDuplicateActiveName:
		return CategoryPolicy
	case KindNotFound:
		return CategoryNotFound
	case KindGone:
		return CategoryGone
	case KindUnauthorized:
		return CategoryUnauthorized
	default:
		return CategoryInternal
	}
}

// Error — типизированная ошибка сервисного слоя.
type Error struct {
	Kind    Kind
	Message string
	// Err — исходная ошибка инфраструктуры (не показывается клиенту)
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError создаёт ошибку указанного вида.
func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// internalError оборачивает ошибку инфраструктуры.
func internalError(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf возвращает вид ошибки. Нетипизированные ошибки считаются Internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsKind проверяет вид ошибки.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
