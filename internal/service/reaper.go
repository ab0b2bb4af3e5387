// reaper.go — фоновая очистка истёкших ссылок.
//
// Каждый цикл: выборка ссылок с expires_at <= now, удаление файлов с
// диска (отсутствующий файл — не ошибка), затем удаление записей files
// одной транзакцией (links удаляются каскадно).
//
// Запускается как горутина с периодическим тикером (SB_REAPER_INTERVAL).
// Повторный запуск по уже очищенным ссылкам — no-op.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/sharebox/internal/repository"
	"github.com/bigkaa/sharebox/internal/storage/filestore"
)

// Prometheus метрики reaper.
var (
	// reaperRunsTotal — количество запусков reaper.
	reaperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_reaper_runs_total",
		Help: "Общее количество запусков reaper",
	})

	// reaperLinksDeletedTotal — количество удалённых ссылок.
	reaperLinksDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_reaper_links_deleted_total",
		Help: "Общее количество ссылок, удалённых reaper'ом",
	})

	// reaperErrorsTotal — количество ошибок при очистке.
	reaperErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_reaper_errors_total",
		Help: "Общее количество ошибок reaper",
	})

	// reaperDurationSeconds — длительность выполнения очистки.
	reaperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sb_reaper_duration_seconds",
		Help:    "Длительность выполнения reaper в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ReaperResult — результат одного запуска reaper.
type ReaperResult struct {
	// DeletedCount — количество удалённых пар Link/File
	DeletedCount int
	// Errors — количество ошибок при обработке
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// ReaperService — фоновая очистка истёкших ссылок и их файлов.
type ReaperService struct {
	db       DB
	store    *filestore.FileStore
	linkSvc  *LinkService
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewReaperService создаёт сервис очистки.
// linkSvc нужен для инвалидации кэша ссылок; допускает nil (в тестах).
func NewReaperService(
	db DB,
	store *filestore.FileStore,
	linkSvc *LinkService,
	interval time.Duration,
	logger *slog.Logger,
) *ReaperService {
	return &ReaperService{
		db:       db,
		store:    store,
		linkSvc:  linkSvc,
		interval: interval,
		logger:   logger.With(slog.String("component", "reaper")),
	}
}

// Start запускает фоновую горутину reaper с периодическим тикером.
// Вызывается один раз при старте приложения.
func (rs *ReaperService) Start(ctx context.Context) {
	reaperCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel

	go rs.run(reaperCtx)

	rs.logger.Info("Reaper запущен",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает фоновый процесс reaper.
func (rs *ReaperService) Stop() {
	if rs.cancel != nil {
		rs.cancel()
	}
	rs.logger.Info("Reaper остановлен")
}

// run — основной цикл фоновой горутины.
func (rs *ReaperService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	rs.RunOnce(ctx)

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: mutex защищает от параллельного запуска.
// Идемпотентен: повторный запуск без новых истечений ничего не находит
// и не ошибается.
func (rs *ReaperService) RunOnce(ctx context.Context) *ReaperResult {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	start := time.Now()
	result := &ReaperResult{}

	rs.logger.Debug("Очистка начата")

	now := time.Now().UTC()
	expired, err := repository.NewLinkRepository(rs.db).FindExpired(ctx, now)
	if err != nil {
		reaperErrorsTotal.Inc()
		rs.logger.Error("Ошибка выборки истёкших ссылок",
			slog.String("error", err.Error()),
		)
		result.Errors++
		return result
	}

	if len(expired) == 0 {
		reaperRunsTotal.Inc()
		result.Duration = time.Since(start)
		reaperDurationSeconds.Observe(result.Duration.Seconds())
		rs.logger.Debug("Истёкших ссылок нет")
		return result
	}

	// Удаляем файлы с диска. Отсутствующий файл — пропуск, не ошибка:
	// предыдущая прерванная очистка могла удалить файл, но не записи.
	var fileIDs, linkIDs []string
	for _, link := range expired {
		file, err := repository.NewFileRepository(rs.db).GetByID(ctx, link.FileID)
		if err != nil {
			// Записи файла нет — ссылку удаляем явно, каскад не сработает
			rs.logger.Warn("Запись файла не найдена для истёкшей ссылки",
				slog.String("link_id", link.ID),
			)
		} else {
			if err := rs.store.Delete(file.FilePath); err != nil {
				reaperErrorsTotal.Inc()
				rs.logger.Error("Ошибка удаления файла с диска",
					slog.String("file_id", file.ID),
					slog.String("error", err.Error()),
				)
				result.Errors++
				// Файл не удалён — записи оставляем, заберём в следующем цикле
				continue
			}
		}
		fileIDs = append(fileIDs, link.FileID)
		linkIDs = append(linkIDs, link.ID)
	}

	// Удаляем записи одной транзакцией: files (+ каскадные links) и
	// явная зачистка links на случай осиротевших ссылок
	if len(linkIDs) > 0 {
		if err := rs.deleteRecords(ctx, fileIDs, linkIDs); err != nil {
			reaperErrorsTotal.Inc()
			rs.logger.Error("Ошибка удаления записей",
				slog.String("error", err.Error()),
			)
			result.Errors++
		} else {
			result.DeletedCount = len(linkIDs)
		}
	}

	// Инвалидация кэша ссылок
	if rs.linkSvc != nil {
		for _, link := range expired {
			rs.linkSvc.Invalidate(link.Token)
		}
	}

	result.Duration = time.Since(start)

	reaperRunsTotal.Inc()
	reaperLinksDeletedTotal.Add(float64(result.DeletedCount))
	reaperDurationSeconds.Observe(result.Duration.Seconds())

	rs.logger.Info("Очистка завершена",
		slog.Int("deleted", result.DeletedCount),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// deleteRecords удаляет записи files и links в одной транзакции.
// Links в основном удаляются каскадом от files; явный DeleteBatch
// зачищает осиротевшие ссылки без записи файла.
func (rs *ReaperService) deleteRecords(ctx context.Context, fileIDs, linkIDs []string) error {
	tx, err := rs.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback после commit — no-op

	if err := repository.NewLinkRepository(tx).DeleteBatch(ctx, linkIDs); err != nil {
		return err
	}
	if err := repository.NewFileRepository(tx).DeleteBatch(ctx, fileIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
