// Точка входа Sharebox — сервиса обмена файлами по временным ссылкам.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/sharebox/internal/api/handlers"
	"github.com/bigkaa/sharebox/internal/api/middleware"
	"github.com/bigkaa/sharebox/internal/config"
	"github.com/bigkaa/sharebox/internal/database"
	"github.com/bigkaa/sharebox/internal/repository"
	"github.com/bigkaa/sharebox/internal/server"
	"github.com/bigkaa/sharebox/internal/service"
	"github.com/bigkaa/sharebox/internal/session"
	"github.com/bigkaa/sharebox/internal/storage/filestore"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Sharebox запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
	)

	// --- Инициализация компонентов ---

	// 1. Миграции схемы
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграции БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Пул подключений PostgreSQL
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 3. Файловое хранилище
	store, err := filestore.New(cfg.DataDir, cfg.UploadDir)
	if err != nil {
		logger.Error("Ошибка инициализации FileStore", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Репозитории и сервисы
	fileRepo := repository.NewFileRepository(pool)
	linkRepo := repository.NewLinkRepository(pool)

	uploadSvc := service.NewUploadService(cfg, pool, store, logger)
	linkSvc := service.NewLinkService(linkRepo, fileRepo, store,
		cfg.CacheSize, cfg.CacheTTL, logger)

	// 5. Сессии (проверенные пароли ссылок)
	sessions, err := session.NewManager(cfg.SessionKey, cfg.LinkTTL, false)
	if err != nil {
		logger.Error("Ошибка инициализации сессий", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cfg.SessionKey == "" {
		logger.Warn("SB_SESSION_KEY не задан, сгенерирован случайный ключ сессий: " +
			"сессии не переживут рестарт")
	}

	// 6. Фоновая очистка истёкших ссылок
	reaper := service.NewReaperService(pool, store, linkSvc, cfg.ReaperInterval, logger)
	reaper.Start(ctx)
	defer reaper.Stop()

	// 7. HTTP handlers
	uploadHandler := handlers.NewUploadHandler(uploadSvc, cfg)
	linkHandler := handlers.NewLinkHandler(linkSvc, sessions)
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool))

	// 8. HTTP-сервер: metrics до logging, чтобы метрики считали все запросы
	srv := server.New(cfg, logger,
		uploadHandler, linkHandler, healthHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
