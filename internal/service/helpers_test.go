package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/datashare/internal/domain/model"
	"github.com/bigkaa/datashare/internal/repository"
	"github.com/bigkaa/datashare/internal/storage/filestore"
)

// --- In-memory репозиторий ---

// memRepo — реализация repository.FileRepository в памяти.
// Поля *Err позволяют подменить ответ отдельных методов.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	files  map[int64]*model.FileRecord

	insertErr      error
	getByTokenErr  error
	listExpiredErr error
	markDeletedErr map[int64]error

	countActiveCalls int
	getByTokenCalls  int
}

func newMemRepo() *memRepo {
	return &memRepo{files: make(map[int64]*model.FileRecord), markDeletedErr: make(map[int64]error)}
}

func (r *memRepo) Insert(_ context.Context, f *model.FileRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, existing := range r.files {
		if existing.DownloadToken == f.DownloadToken {
			return repository.ErrConflict
		}
	}
	r.nextID++
	f.ID = r.nextID
	cp := *f
	r.files[f.ID] = &cp
	return nil
}

func (r *memRepo) GetByToken(_ context.Context, token string) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getByTokenCalls++
	if r.getByTokenErr != nil {
		return nil, r.getByTokenErr
	}
	for _, f := range r.files {
		if f.DownloadToken == token {
			cp := *f
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) GetByID(_ context.Context, id int64) (*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *memRepo) CountActive(_ context.Context, ownerID int64, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countActiveCalls++
	n := 0
	for _, f := range r.files {
		if f.OwnerID == ownerID && f.StatusAt(now) == model.StatusActive {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) ExistsActiveName(_ context.Context, ownerID int64, name string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.OwnerID == ownerID && f.OriginalName == name && f.StatusAt(now) == model.StatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepo) ListByOwner(_ context.Context, p repository.ListParams) ([]*model.FileRecord, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.FileRecord
	for _, f := range r.files {
		if f.OwnerID != p.OwnerID {
			continue
		}
		if p.Status != model.FilterAll && string(f.StatusAt(p.Now)) != string(p.Status) {
			continue
		}
		cp := *f
		all = append(all, &cp)
	}
	slices.SortFunc(all, func(a, b *model.FileRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	total := int64(len(all))
	from := (p.Page - 1) * p.PageSize
	if from > len(all) {
		from = len(all)
	}
	to := min(from+p.PageSize, len(all))
	return all[from:to], total, nil
}

func (r *memRepo) MarkDeleted(_ context.Context, id int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.markDeletedErr[id]; err != nil {
		return err
	}
	f, ok := r.files[id]
	if !ok || f.DeletedAt != nil {
		return repository.ErrNotFound
	}
	f.DeletedAt = &now
	return nil
}

func (r *memRepo) MarkDeletedByOwner(_ context.Context, id, ownerID int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || f.OwnerID != ownerID || f.DeletedAt != nil {
		return repository.ErrNotFound
	}
	f.DeletedAt = &now
	return nil
}

func (r *memRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]*model.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listExpiredErr != nil {
		return nil, r.listExpiredErr
	}
	var out []*model.FileRecord
	for _, f := range r.files {
		if f.DeletedAt == nil && !f.ExpiresAt.After(now) {
			cp := *f
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *model.FileRecord) int { return int(a.ID - b.ID) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// record возвращает текущую копию записи.
func (r *memRepo) record(id int64) *model.FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.files[id]
	return &cp
}

// count возвращает количество записей.
func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// --- Часы ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- Тестовое окружение ---

const testOwner int64 = 1

type testEnv struct {
	repo    *memRepo
	fs      afero.Fs
	store   *filestore.Store
	clock   *fakeClock
	cache   *TokenCache
	policy  *PolicyValidator
	hasher  *PasswordHasher
	upload  *UploadService
	access  *AccessService
	files   *FilesService
	sweeper *Sweeper
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv собирает сервисы поверх memRepo и afero.MemMapFs.
// Лимит размера — 1 KiB, чтобы проверять TooLarge без гигабайтных буферов.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	store, err := filestore.New(fs, "/uploads")
	if err != nil {
		t.Fatalf("Ошибка создания Store: %v", err)
	}

	env := &testEnv{
		repo:  newMemRepo(),
		fs:    fs,
		store: store,
		clock: &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		cache: NewTokenCache(100, time.Minute),
	}
	logger := testLogger()

	env.policy = NewPolicyValidator(env.repo, PolicyConfig{
		MaxFileSize:         1024,
		MaxFilesPerUser:     10,
		ForbiddenExtensions: []string{".exe", ".bat", ".cmd", ".sh", ".msi", ".com", ".scr", ".pif", ".cpl"},
	})
	env.policy.now = env.clock.Now

	env.hasher = NewPasswordHasher(bcrypt.MinCost, 2)

	env.upload = NewUploadService(env.repo, store, env.policy, env.hasher, UploadConfig{
		MaxExpirationDays:     7,
		DefaultExpirationDays: 7,
		MinPasswordLength:     6,
		PublicBaseURL:         "https://share.example.com",
	}, logger)
	env.upload.now = env.clock.Now

	env.access = NewAccessService(env.repo, store, env.hasher, env.cache, logger)
	env.access.now = env.clock.Now

	env.files = NewFilesService(env.repo, store, env.cache, "https://share.example.com", logger)
	env.files.now = env.clock.Now

	env.sweeper = NewSweeper(env.repo, store, env.cache, time.Hour, 100, logger)
	env.sweeper.now = env.clock.Now

	return env
}

// uploadBytes загружает содержимое из памяти.
func (e *testEnv) uploadBytes(t *testing.T, owner int64, name string, data []byte, opts UploadOptions) *model.FileSummary {
	t.Helper()
	sum, err := e.upload.Upload(context.Background(), owner, &FileInput{
		Name:         name,
		DeclaredType: "text/plain",
		Source:       filestore.BytesSource(data),
	}, opts)
	if err != nil {
		t.Fatalf("Upload(%q) вернул ошибку: %v", name, err)
	}
	return sum
}

// readAll читает поток дескриптора и закрывает его.
func readAll(t *testing.T, d *StreamDescriptor) []byte {
	t.Helper()
	defer d.Body.Close()
	data, err := io.ReadAll(d.Body)
	if err != nil {
		t.Fatalf("ошибка чтения потока: %v", err)
	}
	return data
}

func bytesSource(s string) filestore.Source { return filestore.BytesSource([]byte(s)) }

func ptr[T any](v T) *T { return &v }

// wantKind проверяет вид ошибки сервиса.
func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("ожидалась ошибка %s, получен nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("вид ошибки = %s, ожидался %s (%v)", got, kind, err)
	}
}
