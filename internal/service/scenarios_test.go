package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/bigkaa/datashare/internal/storage/filestore"
)

// Сквозные сценарии: загрузка → метаданные → скачивание → очистка.

func TestScenario_PublicDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	data := []byte("%PDF-1.7 report body")

	sum := env.uploadBytes(t, testOwner, "report.pdf", data, UploadOptions{ExpirationDays: ptr(3)})
	if len(sum.DownloadToken) != 36 {
		t.Fatalf("token = %q", sum.DownloadToken)
	}

	meta, err := env.access.ResolveMeta(ctx, sum.DownloadToken)
	if err != nil {
		t.Fatalf("ResolveMeta: %v", err)
	}
	if meta.IsProtected {
		t.Error("isProtected = true")
	}

	d, err := env.access.PrepareDownload(ctx, sum.DownloadToken, nil)
	if err != nil {
		t.Fatalf("PrepareDownload: %v", err)
	}
	if got := readAll(t, d); !bytes.Equal(got, data) {
		t.Error("содержимое отличается от загруженного")
	}
}

func TestScenario_ProtectedDownload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	data := []byte("secret contents")

	sum := env.uploadBytes(t, testOwner, "secret.txt", data, UploadOptions{Password: ptr("abcdef")})

	meta, err := env.access.ResolveMeta(ctx, sum.DownloadToken)
	if err != nil || !meta.IsProtected {
		t.Fatalf("ResolveMeta = %+v, %v", meta, err)
	}

	_, err = env.access.PrepareDownload(ctx, sum.DownloadToken, nil)
	wantKind(t, err, KindUnauthorized)
	_, err = env.access.PrepareDownload(ctx, sum.DownloadToken, ptr("abcdeg"))
	wantKind(t, err, KindUnauthorized)

	d, err := env.access.PrepareDownload(ctx, sum.DownloadToken, ptr("abcdef"))
	if err != nil {
		t.Fatalf("PrepareDownload: %v", err)
	}
	if got := readAll(t, d); !bytes.Equal(got, data) {
		t.Error("содержимое отличается от загруженного")
	}
}

func TestScenario_ForbiddenType(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.upload.Upload(context.Background(), testOwner, &FileInput{
		Name: "x.exe", Source: filestore.BytesSource([]byte("MZ\x90\x00")),
	}, UploadOptions{})
	wantKind(t, err, KindForbiddenType)

	if env.repo.count() != 0 {
		t.Error("запись в БД создана")
	}
	if entries, _ := afero.ReadDir(env.fs, "/uploads"); len(entries) != 0 {
		t.Error("файл записан на диск")
	}
}

func TestScenario_Retention(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	sum := env.uploadBytes(t, testOwner, "temp.txt", []byte("x"), UploadOptions{ExpirationDays: ptr(1)})
	env.clock.Advance(24*time.Hour + time.Minute)

	res := env.sweeper.RunOnce(ctx)
	if res.Processed != 1 {
		t.Fatalf("Processed = %d", res.Processed)
	}

	_, err := env.access.ResolveMeta(ctx, sum.DownloadToken)
	wantKind(t, err, KindGone)

	list, err := env.files.ListFiles(ctx, testOwner, ListQuery{Status: "deleted"})
	if err != nil || list.Total != 1 {
		t.Fatalf("ListFiles(deleted) = %+v, %v", list, err)
	}

	if res := env.sweeper.RunOnce(ctx); res.Processed != 0 || res.Errors != 0 {
		t.Errorf("повторный проход = %+v", res)
	}
}
