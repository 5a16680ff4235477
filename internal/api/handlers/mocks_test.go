package handlers

import (
	"context"
	"io"
	"log/slog"

	"github.com/bigkaa/datashare/internal/domain/model"
	"github.com/bigkaa/datashare/internal/service"
)

// --- Mock-реализации сервисов ---

type mockUploader struct {
	uploadFn func(ctx context.Context, ownerID int64, file *service.FileInput, opts service.UploadOptions) (*model.FileSummary, error)
}

func (m *mockUploader) Upload(ctx context.Context, ownerID int64, file *service.FileInput, opts service.UploadOptions) (*model.FileSummary, error) {
	return m.uploadFn(ctx, ownerID, file, opts)
}

type mockFileManager struct {
	listFn   func(ctx context.Context, ownerID int64, q service.ListQuery) (*model.FileList, error)
	deleteFn func(ctx context.Context, ownerID, fileID int64) error
}

func (m *mockFileManager) ListFiles(ctx context.Context, ownerID int64, q service.ListQuery) (*model.FileList, error) {
	return m.listFn(ctx, ownerID, q)
}

func (m *mockFileManager) DeleteFile(ctx context.Context, ownerID, fileID int64) error {
	return m.deleteFn(ctx, ownerID, fileID)
}

type mockDownloader struct {
	metaFn     func(ctx context.Context, token string) (*model.PublicMeta, error)
	downloadFn func(ctx context.Context, token string, password *string) (*service.StreamDescriptor, error)
}

func (m *mockDownloader) ResolveMeta(ctx context.Context, token string) (*model.PublicMeta, error) {
	return m.metaFn(ctx, token)
}

func (m *mockDownloader) PrepareDownload(ctx context.Context, token string, password *string) (*service.StreamDescriptor, error) {
	return m.downloadFn(ctx, token, password)
}

type mockChecker struct {
	status, message string
}

func (m mockChecker) CheckReady() (string, string) { return m.status, m.message }

// nopSeekCloser — io.ReadSeekCloser поверх io.ReadSeeker.
type nopSeekCloser struct {
	io.ReadSeeker
	closed bool
}

func (n *nopSeekCloser) Close() error {
	n.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
