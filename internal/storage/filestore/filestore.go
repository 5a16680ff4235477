// Пакет filestore — размещение байтов загруженных файлов на носителе.
// Работает поверх afero.Fs: в продакшене это ОС, в тестах — память.
// Запись идёт через временный файл с fsync и атомарным rename.
package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrNotFound — файла по указанному пути нет.
var ErrNotFound = errors.New("файл не найден")

// ErrOutsideRoot — путь выходит за пределы корня загрузок.
var ErrOutsideRoot = errors.New("путь вне корневой директории")

const (
	// maxFragmentLen — максимальная длина фрагмента оригинального имени (в рунах)
	maxFragmentLen = 50
	// maxExtLen — максимальная длина расширения вместе с точкой
	maxExtLen = 16
	// tmpSuffix — суффикс временных файлов при записи
	tmpSuffix = ".tmp"
)

// SourceKind — вид источника байтов для Persist.
type SourceKind int

const (
	// SourceBytes — содержимое уже в памяти.
	SourceBytes SourceKind = iota + 1
	// SourcePath — содержимое лежит во временном файле на том же носителе.
	SourcePath
)

// Source — источник байтов загружаемого файла.
type Source struct {
	Kind SourceKind
	Data []byte
	Path string
}

// BytesSource создаёт источник из среза байтов.
func BytesSource(data []byte) Source {
	return Source{Kind: SourceBytes, Data: data}
}

// PathSource создаёт источник из существующего файла.
func PathSource(path string) Source {
	return Source{Kind: SourcePath, Path: path}
}

// PutResult — результат размещения файла.
type PutResult struct {
	// StoragePath — путь относительно корня загрузок
	StoragePath string
	// Size — количество записанных байтов
	Size int64
}

// Store — хранилище файлов в корневой директории.
type Store struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// New создаёт Store и корневую директорию, если её нет.
func New(fsys afero.Fs, root string) (*Store, error) {
	root = filepath.Clean(root)
	if err := fsys.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", root, err)
	}
	return &Store{fs: fsys, root: root, now: time.Now}, nil
}

// Root возвращает корневую директорию.
func (s *Store) Root() string {
	return s.root
}

// Put записывает данные из reader под сгенерированным именем.
// Паттерн: temp файл → запись → fsync → rename. При ошибке temp файл удаляется.
func (s *Store) Put(r io.Reader, originalName string) (*PutResult, error) {
	storageName := s.generateStorageName(originalName)
	fullPath := filepath.Join(s.root, storageName)
	tmpPath := fullPath + tmpSuffix

	f, err := s.fs.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := s.fs.Rename(tmpPath, fullPath); err != nil {
		s.fs.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &PutResult{StoragePath: storageName, Size: size}, nil
}

// Persist размещает байты из источника.
// Файл-источник перемещается в корень rename'ом, а если это невозможно
// (другой носитель) — копируется и удаляется.
func (s *Store) Persist(src Source, originalName string) (*PutResult, error) {
	switch src.Kind {
	case SourceBytes:
		return s.Put(bytes.NewReader(src.Data), originalName)
	case SourcePath:
		return s.persistPath(src.Path, originalName)
	default:
		return nil, fmt.Errorf("неизвестный вид источника: %d", src.Kind)
	}
}

func (s *Store) persistPath(path, originalName string) (*PutResult, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("источник %s недоступен: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("источник %s является директорией", path)
	}

	storageName := s.generateStorageName(originalName)
	fullPath := filepath.Join(s.root, storageName)
	if err := s.fs.Rename(path, fullPath); err == nil {
		return &PutResult{StoragePath: storageName, Size: info.Size()}, nil
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия источника %s: %w", path, err)
	}
	res, err := s.Put(f, originalName)
	f.Close()
	if err != nil {
		return nil, err
	}
	s.fs.Remove(path)
	return res, nil
}

// Head возвращает первые n байтов источника (для определения MIME-типа).
func (s *Store) Head(src Source, n int) ([]byte, error) {
	switch src.Kind {
	case SourceBytes:
		if len(src.Data) < n {
			return src.Data, nil
		}
		return src.Data[:n], nil
	case SourcePath:
		f, err := s.fs.Open(src.Path)
		if err != nil {
			return nil, fmt.Errorf("ошибка открытия источника %s: %w", src.Path, err)
		}
		defer f.Close()
		buf := make([]byte, n)
		read, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("ошибка чтения источника %s: %w", src.Path, err)
		}
		return buf[:read], nil
	default:
		return nil, fmt.Errorf("неизвестный вид источника: %d", src.Kind)
	}
}

// Size возвращает размер источника без чтения содержимого.
func (s *Store) Size(src Source) (int64, error) {
	switch src.Kind {
	case SourceBytes:
		return int64(len(src.Data)), nil
	case SourcePath:
		info, err := s.fs.Stat(src.Path)
		if err != nil {
			return 0, fmt.Errorf("источник %s недоступен: %w", src.Path, err)
		}
		return info.Size(), nil
	default:
		return 0, fmt.Errorf("неизвестный вид источника: %d", src.Kind)
	}
}

// Open открывает файл для чтения. Вызывающий код обязан закрыть файл.
func (s *Store) Open(storagePath string) (afero.File, error) {
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}
	return f, nil
}

// Delete удаляет файл. Отсутствующий файл ошибкой не считается.
func (s *Store) Delete(storagePath string) error {
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return err
	}

	if err := s.fs.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// Exists проверяет наличие файла.
func (s *Store) Exists(storagePath string) bool {
	fullPath, err := s.resolve(storagePath)
	if err != nil {
		return false
	}
	info, err := s.fs.Stat(fullPath)
	return err == nil && !info.IsDir()
}

// Contains сообщает, остаётся ли путь внутри корня загрузок.
func (s *Store) Contains(storagePath string) bool {
	_, err := s.resolve(storagePath)
	return err == nil
}

// CheckWritable проверяет, что в корень можно писать (для readiness).
func (s *Store) CheckWritable() error {
	f, err := afero.TempFile(s.fs, s.root, ".probe-")
	if err != nil {
		return fmt.Errorf("директория %s недоступна для записи: %w", s.root, err)
	}
	name := f.Name()
	f.Close()
	return s.fs.Remove(name)
}

// resolve превращает относительный путь в полный, отбрасывая всё,
// что указывает за пределы корня.
func (s *Store) resolve(storagePath string) (string, error) {
	if storagePath == "" || filepath.IsAbs(storagePath) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, storagePath)
	}
	fullPath := filepath.Join(s.root, storagePath)
	rel, err := filepath.Rel(s.root, fullPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, storagePath)
	}
	return fullPath, nil
}

// generateStorageName генерирует физическое имя файла.
// Формат: {UTC timestamp}_{8 hex}_{фрагмент имени}{ext}
// Пример: 20260221T150405Z_a1b2c3d4_report.pdf
func (s *Store) generateStorageName(originalName string) string {
	base := filepath.Base(strings.ReplaceAll(originalName, "\\", "/"))
	ext := sanitizeExt(filepath.Ext(base))
	name := sanitize(strings.TrimSuffix(base, filepath.Ext(base)))

	ts := s.now().UTC().Format("20060102T150405Z")
	uid := uuid.New().String()[:8]

	return fmt.Sprintf("%s_%s_%s%s", ts, uid, name, ext)
}

// sanitize оставляет в имени только буквы, цифры, дефис и подчёркивание.
// Разделители путей, управляющие символы и точки отбрасываются.
func sanitize(s string) string {
	var result strings.Builder
	n := 0
	for _, r := range s {
		if n >= maxFragmentLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			result.WriteRune(r)
			n++
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}

// sanitizeExt возвращает расширение в нижнем регистре из ASCII букв и цифр.
func sanitizeExt(ext string) string {
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	ext = strings.ToLower(ext)
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
