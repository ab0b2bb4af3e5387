// Пакет config — загрузка и валидация конфигурации Sharebox
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Sharebox.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Корневая директория хранилища
	DataDir string
	// Поддиректория загрузок внутри DataDir
	UploadDir string
	// Максимальный размер загружаемого файла в байтах
	MaxFileSize int64
	// Время жизни ссылки с момента выдачи
	LinkTTL time.Duration
	// Интервал запуска reaper истёкших ссылок
	ReaperInterval time.Duration

	// Параметры подключения к PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Ключ шифрования сессионного cookie (base64 или произвольная строка)
	SessionKey string

	// Размер LRU-кэша ссылок и TTL записей
	CacheSize int
	CacheTTL  time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// SB_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("SB_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SB_PORT: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SB_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// SB_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("SB_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// SB_UPLOAD_DIR — поддиректория загрузок (по умолчанию "uploads")
	cfg.UploadDir = getEnvDefault("SB_UPLOAD_DIR", "uploads")
	if strings.Contains(cfg.UploadDir, "..") {
		return nil, fmt.Errorf("SB_UPLOAD_DIR: путь не должен содержать '..'")
	}

	// SB_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 1.5 GB)
	cfg.MaxFileSize, err = getEnvInt64("SB_MAX_FILE_SIZE", 1_500_000_000)
	if err != nil {
		return nil, fmt.Errorf("SB_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("SB_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// SB_LINK_TTL — время жизни ссылки (по умолчанию 24h)
	cfg.LinkTTL, err = getEnvDuration("SB_LINK_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SB_LINK_TTL: %w", err)
	}
	if cfg.LinkTTL <= 0 {
		return nil, fmt.Errorf("SB_LINK_TTL: значение должно быть положительным")
	}

	// SB_REAPER_INTERVAL — интервал очистки истёкших ссылок (по умолчанию 1h)
	cfg.ReaperInterval, err = getEnvDuration("SB_REAPER_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SB_REAPER_INTERVAL: %w", err)
	}
	if cfg.ReaperInterval <= 0 {
		return nil, fmt.Errorf("SB_REAPER_INTERVAL: значение должно быть положительным")
	}

	// Параметры PostgreSQL
	cfg.DBHost, err = getEnvRequired("SB_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("SB_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SB_DB_PORT: %w", err)
	}
	cfg.DBName, err = getEnvRequired("SB_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBUser, err = getEnvRequired("SB_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("SB_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("SB_DB_SSLMODE", "disable")

	// SB_SESSION_KEY — ключ шифрования cookie (пустой — ключ генерируется
	// при старте и сессии не переживают рестарт)
	cfg.SessionKey = getEnvDefault("SB_SESSION_KEY", "")

	// SB_CACHE_SIZE — размер LRU-кэша ссылок (по умолчанию 1024)
	cfg.CacheSize, err = getEnvInt("SB_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("SB_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("SB_CACHE_SIZE: значение должно быть положительным")
	}

	// SB_CACHE_TTL — TTL записей кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("SB_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SB_CACHE_TTL: %w", err)
	}
	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("SB_CACHE_TTL: значение должно быть положительным")
	}

	// SB_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SB_LOG_LEVEL: %w", err)
	}

	// SB_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// Таймауты HTTP-сервера. Write timeout большой: скачивание крупных
	// файлов не должно обрываться сервером.
	cfg.HTTPReadTimeout, err = getEnvDuration("SB_HTTP_READ_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SB_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("SB_HTTP_WRITE_TIMEOUT", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SB_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("SB_HTTP_IDLE_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SB_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// SB_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("SB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SB_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает DSN подключения к PostgreSQL для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 24h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
