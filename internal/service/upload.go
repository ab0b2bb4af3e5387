// Пакет service — бизнес-логика Sharebox.
// upload.go — загрузка файла: валидация, запись на диск, создание
// записи File и выдача ссылки Link в одной транзакции.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/sharebox/internal/config"
	"github.com/bigkaa/sharebox/internal/domain/model"
	"github.com/bigkaa/sharebox/internal/repository"
	"github.com/bigkaa/sharebox/internal/storage/filestore"
)

// allowedMimeTypes — фиксированный allow-list типов загрузки:
// изображения, видео, аудио, архивы и generic binary.
var allowedMimeTypes = map[string]bool{
	// изображения
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,

	// видео
	"video/mp4":       true,
	"video/mpeg":      true,
	"video/quicktime": true,

	// аудио
	"audio/mpeg": true,
	"audio/wav":  true,
	"audio/ogg":  true,

	// прочее
	"application/zip":              true,
	"application/x-zip-compressed": true,
	"application/octet-stream":     true,
}

// tokenMaxAttempts — число попыток генерации токена при коллизии
// unique constraint в БД.
const tokenMaxAttempts = 3

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sb_uploads_total",
		Help: "Общее количество загрузок по результату",
	}, []string{"status"})

	uploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sb_upload_bytes",
		Help:    "Размер загруженных файлов в байтах",
		Buckets: prometheus.ExponentialBuckets(1024, 8, 8),
	})

	tokenRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sb_token_retries_total",
		Help: "Количество перегенераций токена из-за коллизии уникальности",
	})
)

// DB — пул подключений, умеющий открывать транзакции.
// Реализуется *pgxpool.Pool.
type DB interface {
	repository.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalName — оригинальное имя файла от клиента
	OriginalName string
	// DeclaredSize — заявленный размер (из multipart), проверяется до записи
	DeclaredSize int64
	// RawPassword — пароль ссылки; пустой — публичная ссылка
	RawPassword string
}

// UploadResult — результат загрузки: токен ссылки и имя сохранённого файла.
type UploadResult struct {
	Token    string
	FileName string
}

// UploadService — сервис загрузки файлов и выдачи ссылок.
type UploadService struct {
	cfg    *config.Config
	db     DB
	store  *filestore.FileStore
	logger *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(cfg *config.Config, db DB, store *filestore.FileStore, logger *slog.Logger) *UploadService {
	return &UploadService{
		cfg:    cfg,
		db:     db,
		store:  store,
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Upload загружает файл и выдаёт на него ссылку.
//
// Поток:
//  1. Проверка заявленного размера
//  2. Определение MIME-типа по содержимому (заголовку клиента не доверяем)
//  3. Проверка allow-list
//  4. Запись на диск (последний шаг перед транзакцией БД)
//  5. Транзакция: INSERT files + INSERT links (с retry токена)
//
// При ошибке БД после записи на диск выполняется компенсирующее
// удаление файла — осиротевших файлов не остаётся.
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*UploadResult, error) {
	// 1. Заявленный размер — fail fast до чтения потока
	if params.DeclaredSize > s.cfg.MaxFileSize {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %d байт при максимуме %d", ErrFileTooLarge, params.DeclaredSize, s.cfg.MaxFileSize)
	}

	// 2. Sniffing MIME-типа по первым байтам содержимого
	header := make([]byte, 3072)
	n, err := io.ReadFull(params.Reader, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: ошибка чтения потока: %s", ErrStorage, err)
	}
	header = header[:n]
	mtype := mimetype.Detect(header)
	mime := mtype.String()
	if idx := bytes.IndexByte([]byte(mime), ';'); idx != -1 {
		mime = mime[:idx] // убираем параметры (charset и т.д.)
	}

	// 3. Allow-list
	if !allowedMimeTypes[mime] {
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: недопустимый тип %s", ErrValidation, mime)
	}

	// 4. Запись на диск: прочитанный заголовок + остаток потока
	full := io.MultiReader(bytes.NewReader(header), params.Reader)
	saved, err := s.store.Save(full, params.OriginalName, mtype.Extension())
	if err != nil {
		uploadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("Ошибка записи файла на диск",
			slog.String("filename", params.OriginalName),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %s", ErrStorage, err)
	}

	// Заявленный размер мог лгать — проверяем фактический
	if saved.Size > s.cfg.MaxFileSize {
		_ = s.store.Delete(saved.RelPath)
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %d байт при максимуме %d", ErrFileTooLarge, saved.Size, s.cfg.MaxFileSize)
	}

	// 5. File + Link в одной транзакции
	link, file, err := s.persist(ctx, saved, mime, params.RawPassword)
	if err != nil {
		// Компенсирующее удаление: БД не приняла — файл не остаётся на диске
		if delErr := s.store.Delete(saved.RelPath); delErr != nil {
			s.logger.Error("Ошибка компенсирующего удаления файла",
				slog.String("rel_path", saved.RelPath),
				slog.String("error", delErr.Error()),
			)
		}
		uploadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	uploadsTotal.WithLabelValues("success").Inc()
	uploadBytes.Observe(float64(saved.Size))

	s.logger.Info("Файл загружен",
		slog.String("file_id", file.ID),
		slog.String("file_name", file.FileName),
		slog.Int64("size", file.FileSize),
		slog.String("mime_type", file.MimeType),
		slog.Bool("password_protected", link.HasPassword()),
		slog.Time("expires_at", link.ExpiresAt),
	)

	return &UploadResult{
		Token:    link.Token,
		FileName: file.FileName,
	}, nil
}

// persist создаёт записи File и Link в одной транзакции.
// При коллизии токена регенерирует его до tokenMaxAttempts раз.
func (s *UploadService) persist(ctx context.Context, saved *filestore.SaveResult, mime, rawPassword string) (*model.Link, *model.File, error) {
	var passwordHash *string
	if rawPassword != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(rawPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка хэширования пароля: %w", err)
		}
		h := string(hashed)
		passwordHash = &h
	}

	now := time.Now().UTC()
	file := &model.File{
		ID:         uuid.NewString(),
		FileName:   saved.StoredName,
		FilePath:   saved.RelPath,
		FileSize:   saved.Size,
		UploadDate: now,
		MimeType:   mime,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка открытия транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback после commit — no-op

	fileRepo := repository.NewFileRepository(tx)
	if err := fileRepo.Create(ctx, file); err != nil {
		return nil, nil, err
	}

	link := &model.Link{
		ID:           uuid.NewString(),
		FileID:       file.ID,
		ExpiresAt:    now.Add(s.cfg.LinkTTL),
		PasswordHash: passwordHash,
	}

	// Уникальность токена гарантирует unique constraint БД;
	// при коллизии — перегенерация с ограниченным числом попыток.
	// Вставка внутри savepoint (вложенный Begin у pgx.Tx): неудачный
	// INSERT не абортирует внешнюю транзакцию.
	created := false
	for attempt := 0; attempt < tokenMaxAttempts; attempt++ {
		link.Token = uuid.NewString()
		err = insertLink(ctx, tx, link)
		if err == nil {
			created = true
			break
		}
		if !errors.Is(err, repository.ErrTokenExists) {
			return nil, nil, err
		}
		tokenRetriesTotal.Inc()
		s.logger.Warn("Коллизия токена, перегенерация",
			slog.Int("attempt", attempt+1),
		)
	}
	if !created {
		return nil, nil, ErrTokenGeneration
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("ошибка коммита транзакции: %w", err)
	}
	return link, file, nil
}

// insertLink вставляет ссылку внутри savepoint внешней транзакции.
func insertLink(ctx context.Context, tx pgx.Tx, link *model.Link) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка создания savepoint: %w", err)
	}

	if err := repository.NewLinkRepository(sp).Create(ctx, link); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}
