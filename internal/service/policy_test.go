package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bigkaa/datashare/internal/domain/model"
)

func TestValidate_Empty(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	wantKind(t, env.policy.Validate(ctx, nil, testOwner), KindEmpty)
	wantKind(t, env.policy.Validate(ctx, &FileInput{Name: ""}, testOwner), KindEmpty)
}

func TestValidate_SizeCeiling(t *testing.T) {
	v := NewPolicyValidator(newMemRepo(), PolicyConfig{
		MaxFileSize:     1 << 30,
		MaxFilesPerUser: 10,
	})
	ctx := context.Background()

	err := v.Validate(ctx, &FileInput{Name: "big.iso", Size: 1<<30 + 1}, testOwner)
	wantKind(t, err, KindTooLarge)

	if err := v.Validate(ctx, &FileInput{Name: "big.iso", Size: 1 << 30}, testOwner); err != nil {
		t.Errorf("файл ровно 1 GiB должен проходить: %v", err)
	}
}

func TestValidate_Extension(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"README", "archive.", ".env", "dir/noext"} {
		err := env.policy.Validate(ctx, &FileInput{Name: name, Size: 1}, testOwner)
		if KindOf(err) != KindNoExtension {
			t.Errorf("Validate(%q) = %v, ожидался NO_EXTENSION", name, err)
		}
	}

	for _, name := range []string{"x.exe", "SETUP.EXE", "run.Sh", "a.b.bat"} {
		err := env.policy.Validate(ctx, &FileInput{Name: name, Size: 1}, testOwner)
		if KindOf(err) != KindForbiddenType {
			t.Errorf("Validate(%q) = %v, ожидался FORBIDDEN_TYPE", name, err)
		}
	}

	if err := env.policy.Validate(ctx, &FileInput{Name: "photo.JPG", Size: 1}, testOwner); err != nil {
		t.Errorf("Validate(photo.JPG) вернул ошибку: %v", err)
	}
}

// TestValidate_ForbiddenExtensionDisguised — пробелы, управляющие символы
// и точки в конце имени не обходят запрет: при скачивании они удаляются.
func TestValidate_ForbiddenExtensionDisguised(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	names := []string{
		"x.exe ", "x.EXE\t", "x.exe\x00", "x.sh ",
		"x.exe.", "x.exe. . ", "x.ex\u200be", "x.exe\u202e", "dir\\x.exe\r\n",
	}
	for _, name := range names {
		err := env.policy.Validate(ctx, &FileInput{Name: name, Size: 1}, testOwner)
		if KindOf(err) != KindForbiddenType {
			t.Errorf("Validate(%q) = %v, ожидался FORBIDDEN_TYPE", name, err)
		}
	}
}

// TestValidate_CheapChecksBeforeDB проверяет, что первые три проверки
// не обращаются к репозиторию.
func TestValidate_CheapChecksBeforeDB(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_ = env.policy.Validate(ctx, nil, testOwner)
	_ = env.policy.Validate(ctx, &FileInput{Name: "a.txt", Size: 4096}, testOwner)
	_ = env.policy.Validate(ctx, &FileInput{Name: "README", Size: 1}, testOwner)
	_ = env.policy.Validate(ctx, &FileInput{Name: "x.exe", Size: 1}, testOwner)

	if env.repo.countActiveCalls != 0 {
		t.Errorf("CountActive вызван %d раз, ожидалось 0", env.repo.countActiveCalls)
	}
}

func TestValidate_Quota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := range 10 {
		env.uploadBytes(t, testOwner, fmt.Sprintf("f%d.txt", i), []byte("x"), UploadOptions{})
	}

	wantKind(t, env.policy.Validate(ctx, &FileInput{Name: "f10.txt", Size: 1}, testOwner), KindQuotaExceeded)

	// Квота у другого владельца не затронута
	if err := env.policy.Validate(ctx, &FileInput{Name: "f10.txt", Size: 1}, testOwner+1); err != nil {
		t.Errorf("другой владелец: %v", err)
	}

	// Истёкшие файлы в квоту не входят
	env.clock.Advance(8 * 24 * time.Hour)
	if err := env.policy.Validate(ctx, &FileInput{Name: "f10.txt", Size: 1}, testOwner); err != nil {
		t.Errorf("после истечения срока квота должна освободиться: %v", err)
	}
}

func TestValidate_DuplicateActiveName(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sum := env.uploadBytes(t, testOwner, "report.pdf", []byte("x"), UploadOptions{})

	wantKind(t, env.policy.Validate(ctx, &FileInput{Name: "report.pdf", Size: 1}, testOwner), KindDuplicateActiveName)

	// Сравнение с учётом регистра
	if err := env.policy.Validate(ctx, &FileInput{Name: "Report.pdf", Size: 1}, testOwner); err != nil {
		t.Errorf("Report.pdf не дубликат: %v", err)
	}

	// После удаления имя снова доступно
	if err := env.files.DeleteFile(ctx, testOwner, sum.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if err := env.policy.Validate(ctx, &FileInput{Name: "report.pdf", Size: 1}, testOwner); err != nil {
		t.Errorf("после удаления имя должно быть свободно: %v", err)
	}
}

// TestValidate_OrderExtensionBeforeQuota проверяет порядок правил.
func TestValidate_OrderExtensionBeforeQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := range 10 {
		env.uploadBytes(t, testOwner, fmt.Sprintf("f%d.txt", i), []byte("x"), UploadOptions{})
	}

	wantKind(t, env.policy.Validate(ctx, &FileInput{Name: "x.exe", Size: 1}, testOwner), KindForbiddenType)
	wantKind(t, env.policy.Validate(ctx, &FileInput{Name: "f1.txt", Size: 1}, testOwner), KindQuotaExceeded)
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"report.PDF":       ".pdf",
		"archive.tar.gz":   ".gz",
		"README":           "",
		"archive.":         "",
		".env":             "",
		`C:\dir\file.Doc`:  ".doc",
		"../etc/passwd.sh": ".sh",
		"payload.exe ":     ".exe",
		"payload.EXE\x00":  ".exe",
		"payload.exe...":   ".exe",
		"archive. ":        "",
		" .env ":           "",
	}
	for name, want := range tests {
		if got := Extension(name); got != want {
			t.Errorf("Extension(%q) = %q, ожидалось %q", name, got, want)
		}
	}
}

func TestStatusFilterValuesMatchStatus(t *testing.T) {
	// memRepo сравнивает строки фильтра и статуса
	if string(model.FilterActive) != string(model.StatusActive) ||
		string(model.FilterExpired) != string(model.StatusExpired) ||
		string(model.FilterDeleted) != string(model.StatusDeleted) {
		t.Error("значения фильтров должны совпадать со статусами")
	}
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":          "report.pdf",
		"  report.pdf \t":     "report.pdf",
		"report.pdf...":       "report.pdf",
		"re\x00port.pdf":      "report.pdf",
		`evil"name\.txt`:      "evilname.txt",
		"a\u202eexe.txt":      "aexe.txt",
		"отчёт 2026.pdf":      "отчёт 2026.pdf",
		" . ":                 "",
	}
	for name, want := range tests {
		if got := CleanName(name); got != want {
			t.Errorf("CleanName(%q) = %q, ожидалось %q", name, got, want)
		}
	}
}
