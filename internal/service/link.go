// link.go — резолвинг токенов, парольный доступ и выдача файлов.
// Перед репозиторием стоит LRU-кэш ссылок с TTL
// (hashicorp/golang-lru/v2/expirable).
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/sharebox/internal/domain/model"
	"github.com/bigkaa/sharebox/internal/repository"
	"github.com/bigkaa/sharebox/internal/storage/filestore"
)

// Prometheus-метрики резолвинга и выдачи.
var (
	resolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sb_link_resolves_total",
		Help: "Количество резолвингов токенов по результату",
	}, []string{"result"})

	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_downloads_total",
		Help: "Общее количество выдач файлов",
	})

	linkCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_link_cache_hits_total",
		Help: "Попадания в LRU-кэш ссылок",
	})

	linkCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_link_cache_misses_total",
		Help: "Промахи LRU-кэша ссылок",
	})
)

// VerifiedTokens — множество токенов, для которых сессия прошла проверку
// пароля. Передаётся явным параметром: core не знает о cookie и HTTP.
type VerifiedTokens map[string]struct{}

// Contains проверяет, верифицирован ли токен в этой сессии.
func (v VerifiedTokens) Contains(token string) bool {
	_, ok := v[token]
	return ok
}

// Add добавляет токен в множество верифицированных.
func (v VerifiedTokens) Add(token string) {
	v[token] = struct{}{}
}

// ViewResult — данные страницы файла для выдачи вызывающему коду.
type ViewResult struct {
	// Token — токен ссылки
	Token string
	// FileName — отображаемое имя файла
	FileName string
	// MimeType — MIME-тип из записи
	MimeType string
	// FileSize — размер в байтах
	FileSize int64
	// DownloadCount — текущее значение счётчика скачиваний
	DownloadCount int64
	// AbsolutePath — абсолютный путь файла на диске
	AbsolutePath string
	// ArchiveEntries — имена элементов архива; nil для не-архивов
	ArchiveEntries []string
	// ArchiveUnreadable — архив не удалось открыть, страница отдаётся
	// без списка содержимого (degrade, не ошибка запроса)
	ArchiveUnreadable bool
}

// ServeResult — данные для отдачи байтов файла.
type ServeResult struct {
	// AbsolutePath — абсолютный путь файла на диске
	AbsolutePath string
	// FileName — отображаемое имя для Content-Disposition
	FileName string
	// MimeType — MIME-тип для Content-Type
	MimeType string
}

// LinkService — резолвинг ссылок, парольный доступ и выдача файлов.
type LinkService struct {
	links  repository.LinkRepository
	files  repository.FileRepository
	store  *filestore.FileStore
	cache  *expirable.LRU[string, *model.Link]
	logger *slog.Logger
}

// NewLinkService создаёт сервис ссылок.
// cacheSize и cacheTTL задают параметры LRU-кэша ссылок.
func NewLinkService(
	links repository.LinkRepository,
	files repository.FileRepository,
	store *filestore.FileStore,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *LinkService {
	return &LinkService{
		links:  links,
		files:  files,
		store:  store,
		cache:  expirable.NewLRU[string, *model.Link](cacheSize, nil, cacheTTL),
		logger: logger.With(slog.String("component", "link_service")),
	}
}

// Resolve возвращает ссылку по токену.
// Истёкшая, но ещё не удалённая reaper'ом ссылка резолвится как NotFound:
// проверка expiry выполняется здесь явно, не полагаясь на фоновую очистку.
func (s *LinkService) Resolve(ctx context.Context, token string) (*model.Link, error) {
	link, ok := s.cache.Get(token)
	if ok {
		linkCacheHitsTotal.Inc()
	} else {
		linkCacheMissesTotal.Inc()

		var err error
		link, err = s.links.GetByToken(ctx, token)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				resolvesTotal.WithLabelValues("not_found").Inc()
				return nil, ErrNotFound
			}
			return nil, err
		}
		s.cache.Add(token, link)
	}

	if link.IsExpired(time.Now().UTC()) {
		s.cache.Remove(token)
		resolvesTotal.WithLabelValues("expired").Inc()
		return nil, ErrNotFound
	}

	resolvesTotal.WithLabelValues("ok").Inc()
	return link, nil
}

// View возвращает данные страницы файла по токену.
// Для защищённой паролем ссылки без верификации в сессии — ErrPasswordRequired.
// Для архивов добавляется список содержимого; неоткрываемый архив не
// ломает ответ (ArchiveUnreadable).
func (s *LinkService) View(ctx context.Context, token string, verified VerifiedTokens) (*ViewResult, error) {
	link, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if link.HasPassword() && !verified.Contains(token) {
		return nil, ErrPasswordRequired
	}

	file, absPath, err := s.fileOnDisk(ctx, link)
	if err != nil {
		return nil, err
	}

	result := &ViewResult{
		Token:         token,
		FileName:      file.FileName,
		MimeType:      file.MimeType,
		FileSize:      file.FileSize,
		DownloadCount: file.DownloadCount,
		AbsolutePath:  absPath,
	}

	if SupportsListing(file.FileName) {
		entries, listErr := ListArchiveEntries(absPath)
		if listErr != nil {
			// Degrade: страница отдаётся без списка содержимого
			result.ArchiveUnreadable = true
			s.logger.Warn("Не удалось открыть архив",
				slog.String("file_id", file.ID),
				slog.String("error", listErr.Error()),
			)
		} else {
			result.ArchiveEntries = entries
		}
	}

	return result, nil
}

// CheckPassword проверяет пароль ссылки.
// Совпадение — nil, вызывающий код добавляет токен в верифицированное
// множество сессии. Несовпадение — ErrAccessDenied, без блокировок и
// ограничения попыток.
func (s *LinkService) CheckPassword(ctx context.Context, token, plaintext string) error {
	link, err := s.Resolve(ctx, token)
	if err != nil {
		return err
	}

	// Публичная ссылка — проверять нечего
	if !link.HasPassword() {
		return nil
	}

	if bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(plaintext)) != nil {
		return ErrAccessDenied
	}
	return nil
}

// Serve возвращает путь и тип файла для отдачи байтов.
// incrementCount — увеличить счётчик скачиваний (at-least-once: ошибка
// инкремента логируется, но выдачу не срывает).
func (s *LinkService) Serve(ctx context.Context, token string, verified VerifiedTokens, incrementCount bool) (*ServeResult, error) {
	link, err := s.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if link.HasPassword() && !verified.Contains(token) {
		return nil, ErrPasswordRequired
	}

	file, absPath, err := s.fileOnDisk(ctx, link)
	if err != nil {
		return nil, err
	}

	if incrementCount {
		if err := s.files.IncrementDownloadCount(ctx, file.ID); err != nil {
			s.logger.Warn("Ошибка инкремента счётчика скачиваний",
				slog.String("file_id", file.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	downloadsTotal.Inc()
	return &ServeResult{
		AbsolutePath: absPath,
		FileName:     file.FileName,
		MimeType:     file.MimeType,
	}, nil
}

// Invalidate удаляет токен из кэша. Используется reaper'ом после удаления.
func (s *LinkService) Invalidate(token string) {
	s.cache.Remove(token)
}

// fileOnDisk загружает запись файла и строит абсолютный путь.
// Отсутствие файла на диске — NotFound: обнаруживаем расхождение БД и
// хранилища, внутренние пути наружу не отдаём.
func (s *LinkService) fileOnDisk(ctx context.Context, link *model.Link) (*model.File, string, error) {
	file, err := s.files.GetByID(ctx, link.FileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}

	if !s.store.Exists(file.FilePath) {
		s.logger.Warn("Файл отсутствует на диске при наличии записи в БД",
			slog.String("file_id", file.ID),
		)
		return nil, "", ErrNotFound
	}

	return file, s.store.FullPath(file.FilePath), nil
}
