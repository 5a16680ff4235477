// policy.go — проверка загружаемого файла по политике: размер,
// расширение, квота активных файлов, дубликат имени.
package service

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"

	"github.com/bigkaa/datashare/internal/repository"
	"github.com/bigkaa/datashare/internal/storage/filestore"
)

// FileInput — загружаемый файл в том виде, в каком его передал клиент.
type FileInput struct {
	// Name — имя файла от клиента (не доверенное)
	Name string
	// DeclaredType — MIME-тип из заголовка части multipart
	DeclaredType string
	// Size — размер содержимого в байтах
	Size int64
	// Source — где лежат байты
	Source filestore.Source
}

// PolicyConfig — параметры политики загрузки.
type PolicyConfig struct {
	MaxFileSize         int64
	MaxFilesPerUser     int
	ForbiddenExtensions []string
}

// PolicyValidator проверяет файл перед загрузкой.
// Побочных эффектов нет, первая же нарушенная проверка завершает разбор.
type PolicyValidator struct {
	repo repository.FileRepository
	cfg  PolicyConfig
	now  func() time.Time
}

// NewPolicyValidator создаёт валидатор политики.
func NewPolicyValidator(repo repository.FileRepository, cfg PolicyConfig) *PolicyValidator {
	return &PolicyValidator{repo: repo, cfg: cfg, now: time.Now}
}

// Validate проверяет файл владельца. nil — файл допущен.
// Порядок: наличие, размер, расширение (без обращения к БД), затем квота и дубликат.
func (p *PolicyValidator) Validate(ctx context.Context, file *FileInput, ownerID int64) error {
	if file == nil || file.Name == "" {
		return newError(KindEmpty, "Файл не передан")
	}

	if file.Size > p.cfg.MaxFileSize {
		return newError(KindTooLarge, "Файл слишком большой: %s, максимум %s",
			humanize.IBytes(uint64(file.Size)), humanize.IBytes(uint64(p.cfg.MaxFileSize)))
	}

	ext := Extension(file.Name)
	if ext == "" {
		return newError(KindNoExtension, "У файла нет расширения")
	}
	if slices.Contains(p.cfg.ForbiddenExtensions, ext) {
		return newError(KindForbiddenType, "Тип файла %s запрещён", ext)
	}

	now := p.now()
	count, err := p.repo.CountActive(ctx, ownerID, now)
	if err != nil {
		return internalError("ошибка проверки квоты", err)
	}
	if count >= p.cfg.MaxFilesPerUser {
		return newError(KindQuotaExceeded, "Достигнут лимит активных файлов (%d)", p.cfg.MaxFilesPerUser)
	}

	exists, err := p.repo.ExistsActiveName(ctx, ownerID, file.Name, now)
	if err != nil {
		return internalError("ошибка проверки дубликата", err)
	}
	if exists {
		return newError(KindDuplicateActiveName, "Активный файл с именем %q уже существует", file.Name)
	}

	return nil
}

// Extension возвращает расширение имени файла в нижнем регистре с точкой.
// Пустая строка — расширения нет: "README", "archive", ".env".
// Имя предварительно очищается через CleanName, как и в Content-Disposition.
func Extension(name string) string {
	base := filepath.Base(CleanName(strings.ReplaceAll(name, "\\", "/")))
	ext := filepath.Ext(base)
	if len(ext) < 2 || ext == base {
		return ""
	}
	return strings.ToLower(ext)
}

// CleanName приводит имя файла к виду, в котором его увидит клиент при
// скачивании: без управляющих и форматирующих символов, кавычек и обратных
// слэшей, без пробелов по краям и точек в конце. Пустая строка — имени нет.
func CleanName(name string) string {
	clean := strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || unicode.In(r, unicode.Cc, unicode.Cf) {
			return -1
		}
		return r
	}, name)
	clean = strings.TrimLeftFunc(clean, unicode.IsSpace)
	return strings.TrimRightFunc(clean, func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
}
