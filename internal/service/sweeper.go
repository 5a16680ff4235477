// sweeper.go — фоновая очистка просроченных файлов.
//
// Для каждой записи с expires_at <= now и deleted_at IS NULL:
//  1. удаляются байты (отсутствующий файл — уже очищен);
//  2. проставляется deleted_at (WHERE deleted_at IS NULL).
//
// Оба шага идемпотентны, поэтому параллельные проходы безопасны.
// Запускается как горутина с периодическим тикером (DS_SWEEP_INTERVAL).
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/datashare/internal/domain/model"
	"github.com/bigkaa/datashare/internal/repository"
	"github.com/bigkaa/datashare/internal/storage/filestore"
)

// Prometheus-метрики очистки.
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_sweep_runs_total",
		Help: "Общее количество проходов очистки.",
	})

	sweepFilesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_sweep_files_deleted_total",
		Help: "Общее количество файлов, удалённых очисткой.",
	})

	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ds_sweep_errors_total",
		Help: "Общее количество ошибок при обработке файлов очисткой.",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ds_sweep_duration_seconds",
		Help:    "Длительность прохода очистки в секундах.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult — результат одного прохода.
type SweepResult struct {
	// Processed — количество записей, помеченных как удалённые
	Processed int
	// Errors — количество записей, обработка которых не удалась
	Errors int
	// Duration — длительность прохода
	Duration time.Duration
}

// Sweeper — сервис очистки просроченных файлов.
type Sweeper struct {
	repo      repository.FileRepository
	store     byteRemover
	cache     *TokenCache
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// byteRemover — удаление байтов по пути хранения.
type byteRemover interface {
	Delete(storagePath string) error
}

// NewSweeper создаёт сервис очистки.
func NewSweeper(
	repo repository.FileRepository,
	store byteRemover,
	cache *TokenCache,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *Sweeper {
	if batchSize < 1 {
		batchSize = 100
	}
	return &Sweeper{
		repo:      repo,
		store:     store,
		cache:     cache,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "sweeper")),
		now:       time.Now,
	}
}

// Start запускает фоновую горутину очистки.
func (s *Sweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(sweepCtx)

	s.logger.Info("Очистка запущена",
		slog.String("interval", s.interval.String()),
		slog.Int("batch_size", s.batchSize),
	)
}

// Stop останавливает фоновую очистку и ждёт завершения текущего прохода.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.logger.Info("Очистка остановлена")
}

// run — основной цикл фоновой горутины.
func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	// Первый проход — сразу после старта
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один проход очистки пачками по batchSize.
// Ошибки по отдельным записям логируются и считаются, но не прерывают проход.
func (s *Sweeper) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}
	now := s.now().UTC()
	// Записи, на которых уже была ошибка, повторно в этом проходе не берём
	failed := make(map[int64]struct{})

	for ctx.Err() == nil {
		limit := s.batchSize + len(failed)
		batch, err := s.repo.ListExpired(ctx, now, limit)
		if err != nil {
			s.logger.Error("Ошибка получения просроченных файлов",
				slog.String("error", err.Error()),
			)
			result.Errors++
			break
		}

		fresh := 0
		for _, rec := range batch {
			if _, skip := failed[rec.ID]; skip {
				continue
			}
			fresh++
			if err := s.sweepOne(ctx, rec); err != nil {
				s.logger.Error("Ошибка очистки файла",
					slog.Int64("file_id", rec.ID),
					slog.String("storage_path", rec.StoragePath),
					slog.String("error", err.Error()),
				)
				failed[rec.ID] = struct{}{}
				result.Errors++
				continue
			}
			result.Processed++
		}

		if fresh == 0 || len(batch) < limit {
			break
		}
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepFilesDeletedTotal.Add(float64(result.Processed))
	sweepErrorsTotal.Add(float64(result.Errors))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Очистка завершена",
		slog.Int("processed", result.Processed),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// sweepOne удаляет байты и помечает запись.
// ErrNotFound от MarkDeleted значит, что запись уже пометил кто-то другой.
// Путь вне корня не удаляется, но запись всё равно помечается.
func (s *Sweeper) sweepOne(ctx context.Context, rec *model.FileRecord) error {
	if err := s.store.Delete(rec.StoragePath); err != nil {
		if !errors.Is(err, filestore.ErrOutsideRoot) {
			return err
		}
		s.logger.Warn("Путь файла вне корня загрузок, байты не удаляются",
			slog.Int64("file_id", rec.ID),
		)
	}
	if err := s.repo.MarkDeleted(ctx, rec.ID, s.now().UTC()); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	s.cache.Invalidate(rec.DownloadToken)
	return nil
}
