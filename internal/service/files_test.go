package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/bigkaa/datashare/internal/domain/model"
)

func TestListFiles_Defaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := range 3 {
		env.uploadBytes(t, testOwner, fmt.Sprintf("f%d.txt", i), []byte("x"), UploadOptions{})
		env.clock.Advance(time.Minute)
	}
	env.uploadBytes(t, testOwner+1, "foreign.txt", []byte("x"), UploadOptions{})

	list, err := env.files.ListFiles(ctx, testOwner, ListQuery{})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if list.Page != DefaultPage || list.PageSize != DefaultPageSize {
		t.Errorf("page=%d pageSize=%d, ожидались значения по умолчанию", list.Page, list.PageSize)
	}
	if list.Total != 3 || len(list.Items) != 3 {
		t.Fatalf("total=%d items=%d, ожидалось 3", list.Total, len(list.Items))
	}
	// Новые первыми
	if list.Items[0].OriginalName != "f2.txt" || list.Items[2].OriginalName != "f0.txt" {
		t.Errorf("порядок: %s, %s, %s", list.Items[0].OriginalName, list.Items[1].OriginalName, list.Items[2].OriginalName)
	}
	item := list.Items[0]
	if item.Status != model.StatusActive || item.IsProtected {
		t.Errorf("элемент = %+v", item)
	}
	if item.DownloadURL != "https://share.example.com/download/"+item.Token {
		t.Errorf("DownloadURL = %q", item.DownloadURL)
	}
}

func TestListFiles_Pagination(t *testing.T) {
	env := newTestEnv(t)
	for i := range 5 {
		env.uploadBytes(t, testOwner, fmt.Sprintf("f%d.txt", i), []byte("x"), UploadOptions{})
		env.clock.Advance(time.Second)
	}

	list, err := env.files.ListFiles(context.Background(), testOwner, ListQuery{Page: ptr(2), PageSize: ptr(2)})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if list.Total != 5 || len(list.Items) != 2 {
		t.Fatalf("total=%d items=%d", list.Total, len(list.Items))
	}
	if list.Items[0].OriginalName != "f2.txt" || list.Items[1].OriginalName != "f1.txt" {
		t.Errorf("вторая страница: %s, %s", list.Items[0].OriginalName, list.Items[1].OriginalName)
	}

	// Страница за пределами — пустой список, total прежний
	list, err = env.files.ListFiles(context.Background(), testOwner, ListQuery{Page: ptr(10), PageSize: ptr(2)})
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if list.Total != 5 || len(list.Items) != 0 {
		t.Errorf("total=%d items=%d", list.Total, len(list.Items))
	}
}

func TestListFiles_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []ListQuery{
		{Status: "archived"},
		{Page: ptr(0)},
		{Page: ptr(-1)},
		{PageSize: ptr(0)},
		{PageSize: ptr(101)},
	}
	for _, q := range tests {
		_, err := env.files.ListFiles(ctx, testOwner, q)
		if KindOf(err) != KindValidation {
			t.Errorf("ListFiles(%+v) = %v, ожидался VALIDATION_ERROR", q, err)
		}
	}

	if _, err := env.files.ListFiles(ctx, testOwner, ListQuery{PageSize: ptr(100)}); err != nil {
		t.Errorf("pageSize=100 допустим: %v", err)
	}
}

func TestListFiles_StatusFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	short := env.uploadBytes(t, testOwner, "short.txt", []byte("x"), UploadOptions{ExpirationDays: ptr(1)})
	gone := env.uploadBytes(t, testOwner, "gone.txt", []byte("x"), UploadOptions{})
	env.uploadBytes(t, testOwner, "live.txt", []byte("x"), UploadOptions{})
	if err := env.files.DeleteFile(ctx, testOwner, gone.ID); err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(25 * time.Hour)

	tests := map[string][]string{
		"":        {"live.txt", "gone.txt", "short.txt"},
		"all":     {"live.txt", "gone.txt", "short.txt"},
		"active":  {"live.txt"},
		"expired": {"short.txt"},
		"deleted": {"gone.txt"},
	}
	for status, want := range tests {
		list, err := env.files.ListFiles(ctx, testOwner, ListQuery{Status: status})
		if err != nil {
			t.Fatalf("ListFiles(%q): %v", status, err)
		}
		var got []string
		for _, it := range list.Items {
			got = append(got, it.OriginalName)
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("status=%q: %v, ожидалось %v", status, got, want)
		}
	}

	list, _ := env.files.ListFiles(ctx, testOwner, ListQuery{Status: "expired"})
	if list.Items[0].ID != short.ID || list.Items[0].Status != model.StatusExpired {
		t.Errorf("истёкший элемент = %+v", list.Items[0])
	}
}

func TestDeleteFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sum := env.uploadBytes(t, testOwner, "a.txt", []byte("x"), UploadOptions{})

	if err := env.files.DeleteFile(ctx, testOwner, sum.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	rec := env.repo.record(sum.ID)
	if rec.DeletedAt == nil || !rec.DeletedAt.Equal(env.clock.Now()) {
		t.Errorf("DeletedAt = %v", rec.DeletedAt)
	}
	if ok, _ := afero.Exists(env.fs, "/uploads/"+sum.StoragePath); ok {
		t.Error("байты не удалены")
	}

	// Повторное удаление
	wantKind(t, env.files.DeleteFile(ctx, testOwner, sum.ID), KindNotFound)
}

func TestDeleteFile_NotOwned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sum := env.uploadBytes(t, testOwner, "a.txt", []byte("x"), UploadOptions{})

	wantKind(t, env.files.DeleteFile(ctx, testOwner+1, sum.ID), KindNotFound)
	wantKind(t, env.files.DeleteFile(ctx, testOwner, 999), KindNotFound)
	wantKind(t, env.files.DeleteFile(ctx, testOwner, 0), KindValidation)

	if env.repo.record(sum.ID).DeletedAt != nil {
		t.Error("чужой запрос не должен удалять файл")
	}
	if ok, _ := afero.Exists(env.fs, "/uploads/"+sum.StoragePath); !ok {
		t.Error("байты чужого файла удалены")
	}
}

// TestDeleteFile_MissingBytes — отсутствие байтов на диске не мешает удалению.
func TestDeleteFile_MissingBytes(t *testing.T) {
	env := newTestEnv(t)
	sum := env.uploadBytes(t, testOwner, "a.txt", []byte("x"), UploadOptions{})
	if err := env.fs.Remove("/uploads/" + sum.StoragePath); err != nil {
		t.Fatal(err)
	}

	if err := env.files.DeleteFile(context.Background(), testOwner, sum.ID); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if env.repo.record(sum.ID).DeletedAt == nil {
		t.Error("запись не помечена")
	}
}

func TestDeleteFile_FreesQuota(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var first *model.FileSummary
	for i := range 10 {
		s := env.uploadBytes(t, testOwner, fmt.Sprintf("f%d.txt", i), []byte("x"), UploadOptions{})
		if first == nil {
			first = s
		}
	}
	_, err := env.upload.Upload(ctx, testOwner, &FileInput{Name: "extra.txt", Source: bytesSource("x")}, UploadOptions{})
	wantKind(t, err, KindQuotaExceeded)

	if err := env.files.DeleteFile(ctx, testOwner, first.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.upload.Upload(ctx, testOwner, &FileInput{Name: "extra.txt", Source: bytesSource("x")}, UploadOptions{}); err != nil {
		t.Errorf("после удаления квота должна освободиться: %v", err)
	}
}
