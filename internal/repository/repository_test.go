package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/sharebox/internal/config"
	"github.com/bigkaa/sharebox/internal/database"
	"github.com/bigkaa/sharebox/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool; очистка через t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("sharebox_test"),
		postgres.WithUsername("sharebox"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("SB_DB_HOST", host)
	os.Setenv("SB_DB_PORT", port.Port())
	os.Setenv("SB_DB_NAME", "sharebox_test")
	os.Setenv("SB_DB_USER", "sharebox")
	os.Setenv("SB_DB_PASSWORD", "test-password")
	os.Setenv("SB_DB_SSL_MODE", "disable")
	os.Setenv("SB_DATA_DIR", t.TempDir())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// newTestFile вставляет запись файла и возвращает её.
func newTestFile(t *testing.T, ctx context.Context, repo FileRepository) *model.File {
	t.Helper()

	f := &model.File{
		ID:         uuid.NewString(),
		FileName:   "report-20260829120000-abcd1234.pdf",
		FilePath:   "uploads/report-20260829120000-abcd1234.pdf",
		FileSize:   2048,
		UploadDate: time.Now().UTC().Truncate(time.Microsecond),
		MimeType:   "application/pdf",
	}
	if err := repo.Create(ctx, f); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	return f
}

// --- Тесты FileRepository ---

func TestFileCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileRepository(pool)

	f := newTestFile(t, ctx, repo)

	// GetByID
	got, err := repo.GetByID(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.FileName != f.FileName {
		t.Errorf("FileName: ожидалось %q, получено %q", f.FileName, got.FileName)
	}
	if got.DownloadCount != 0 {
		t.Errorf("DownloadCount нового файла должен быть 0, получено %d", got.DownloadCount)
	}

	// Update
	newName := "renamed.pdf"
	updated, err := repo.Update(ctx, f.ID, UpdateParams{FileName: &newName})
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if updated.FileName != newName {
		t.Errorf("Update не применил имя: %q", updated.FileName)
	}

	// DeleteBatch
	if err := repo.DeleteBatch(ctx, []string{f.ID}); err != nil {
		t.Fatalf("DeleteBatch() ошибка: %v", err)
	}
	if _, err := repo.GetByID(ctx, f.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("после удаления ожидался ErrNotFound, получено: %v", err)
	}
}

func TestFileGetByID_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewFileRepository(pool)

	_, err := repo.GetByID(context.Background(), uuid.NewString())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидался ErrNotFound, получено: %v", err)
	}
}

func TestIncrementDownloadCount_Monotonic(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewFileRepository(pool)

	f := newTestFile(t, ctx, repo)

	for i := 1; i <= 5; i++ {
		if err := repo.IncrementDownloadCount(ctx, f.ID); err != nil {
			t.Fatalf("IncrementDownloadCount() ошибка: %v", err)
		}
		got, err := repo.GetByID(ctx, f.ID)
		if err != nil {
			t.Fatalf("GetByID() ошибка: %v", err)
		}
		if got.DownloadCount != int64(i) {
			t.Errorf("счётчик после %d инкрементов: %d", i, got.DownloadCount)
		}
	}

	// Инкремент несуществующего файла — ErrNotFound
	if err := repo.IncrementDownloadCount(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено: %v", err)
	}
}

// --- Тесты LinkRepository ---

func TestLinkLifecycle(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	files := NewFileRepository(pool)
	links := NewLinkRepository(pool)

	f := newTestFile(t, ctx, files)

	link := &model.Link{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		FileID:    f.ID,
		ExpiresAt: time.Now().UTC().Add(24 * time.Hour).Truncate(time.Microsecond),
	}
	if err := links.Create(ctx, link); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// GetByToken
	got, err := links.GetByToken(ctx, link.Token)
	if err != nil {
		t.Fatalf("GetByToken() ошибка: %v", err)
	}
	if got.FileID != f.ID {
		t.Errorf("FileID: ожидалось %q, получено %q", f.ID, got.FileID)
	}
	if got.PasswordHash != nil {
		t.Error("публичная ссылка не должна иметь пароля")
	}

	// Несуществующий токен
	if _, err := links.GetByToken(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено: %v", err)
	}
}

func TestLinkCreate_TokenCollision(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	files := NewFileRepository(pool)
	links := NewLinkRepository(pool)

	f1 := newTestFile(t, ctx, files)
	f2 := newTestFile(t, ctx, files)

	token := uuid.NewString()
	first := &model.Link{
		ID:        uuid.NewString(),
		Token:     token,
		FileID:    f1.ID,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := links.Create(ctx, first); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// Повторный токен — нарушение unique constraint
	dup := &model.Link{
		ID:        uuid.NewString(),
		Token:     token,
		FileID:    f2.ID,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := links.Create(ctx, dup); !errors.Is(err, ErrTokenExists) {
		t.Fatalf("ожидался ErrTokenExists, получено: %v", err)
	}
}

func TestLinkFindExpired(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	files := NewFileRepository(pool)
	links := NewLinkRepository(pool)

	now := time.Now().UTC()

	// Истёкшая ссылка
	fOld := newTestFile(t, ctx, files)
	expired := &model.Link{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		FileID:    fOld.ID,
		ExpiresAt: now.Add(-time.Minute),
	}
	if err := links.Create(ctx, expired); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// Живая ссылка
	fNew := newTestFile(t, ctx, files)
	alive := &model.Link{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		FileID:    fNew.ID,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := links.Create(ctx, alive); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	found, err := links.FindExpired(ctx, now)
	if err != nil {
		t.Fatalf("FindExpired() ошибка: %v", err)
	}

	var hasExpired, hasAlive bool
	for _, l := range found {
		if l.ID == expired.ID {
			hasExpired = true
		}
		if l.ID == alive.ID {
			hasAlive = true
		}
	}
	if !hasExpired {
		t.Error("истёкшая ссылка не попала в выборку")
	}
	if hasAlive {
		t.Error("живая ссылка не должна попадать в выборку")
	}
}

func TestLinkCascadeDelete(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	files := NewFileRepository(pool)
	links := NewLinkRepository(pool)

	f := newTestFile(t, ctx, files)
	link := &model.Link{
		ID:        uuid.NewString(),
		Token:     uuid.NewString(),
		FileID:    f.ID,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	if err := links.Create(ctx, link); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// Удаление файла каскадно удаляет ссылку
	if err := files.DeleteBatch(ctx, []string{f.ID}); err != nil {
		t.Fatalf("DeleteBatch() ошибка: %v", err)
	}
	if _, err := links.GetByToken(ctx, link.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("ссылка должна удаляться каскадом, получено: %v", err)
	}
}
