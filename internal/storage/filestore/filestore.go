// Пакет filestore — операции с физическими файлами на диске.
// Обеспечивает streaming-запись загрузок в управляемую директорию,
// генерацию безопасных имён и удаление файлов.
package filestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileStore — управление физическими файлами в директории загрузок.
type FileStore struct {
	// dataDir — корневая директория хранилища (SB_DATA_DIR)
	dataDir string
	// uploadDir — поддиректория загрузок внутри dataDir (SB_UPLOAD_DIR)
	uploadDir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoredName — сгенерированное имя файла
	StoredName string
	// RelPath — путь файла относительно dataDir (uploadDir/StoredName)
	RelPath string
	// FullPath — абсолютный путь файла на диске
	FullPath string
	// Size — размер записанных данных в байтах
	Size int64
}

// New создаёт новый FileStore. Проверяет и создаёт директорию загрузок,
// если она не существует.
func New(dataDir, uploadDir string) (*FileStore, error) {
	full := filepath.Join(dataDir, uploadDir)
	if err := os.MkdirAll(full, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", full, err)
	}

	return &FileStore{dataDir: dataDir, uploadDir: uploadDir}, nil
}

// Save записывает данные из reader в директорию загрузок.
// Имя файла: {slug}-{timestamp}-{uuid8}{ext}, где slug — безопасная форма
// оригинального имени, а ext передаётся вызывающим кодом (определён по
// содержимому, клиентскому расширению не доверяем).
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// Коллизия имени — ошибка, перезаписи не происходит.
// При ошибке temp файл удаляется.
func (fs *FileStore) Save(reader io.Reader, originalName, ext string) (*SaveResult, error) {
	storedName := generateStoredName(originalName, ext)
	relPath := filepath.Join(fs.uploadDir, storedName)
	fullPath := filepath.Join(fs.dataDir, relPath)
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	size, err := io.Copy(f, reader)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// Коллизия имени астрономически маловероятна, но перезапись недопустима
	if _, err := os.Lstat(fullPath); err == nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("файл %s уже существует", storedName)
	}

	// Атомарный rename — move как последний шаг перед коммитом
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{
		StoredName: storedName,
		RelPath:    relPath,
		FullPath:   fullPath,
		Size:       size,
	}, nil
}

// FullPath возвращает абсолютный путь к файлу на диске.
// relPath — путь относительно dataDir.
func (fs *FileStore) FullPath(relPath string) string {
	return filepath.Join(fs.dataDir, relPath)
}

// Exists проверяет существование файла на диске.
func (fs *FileStore) Exists(relPath string) bool {
	_, err := os.Stat(filepath.Join(fs.dataDir, relPath))
	return err == nil
}

// Delete удаляет файл с диска.
// Возвращает nil если файл уже не существует.
func (fs *FileStore) Delete(relPath string) error {
	err := os.Remove(filepath.Join(fs.dataDir, relPath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", relPath, err)
	}
	return nil
}

// DataDir возвращает корневую директорию хранилища.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// generateStoredName генерирует имя файла для хранения на диске.
// Формат: {slug}-{timestamp}-{uuid8}{ext}
// Пример: quarterly-report-20260829150405-a1b2c3d4.png
func generateStoredName(originalName, ext string) string {
	base := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	slug := slugify(base)

	ts := time.Now().UTC().Format("20060102150405")
	uid := uuid.New().String()[:8] // Короткий UUID для уникальности

	return fmt.Sprintf("%s-%s-%s%s", slug, ts, uid, ext)
}

// slugify приводит строку к безопасной форме для имени файла:
// строчные латинские буквы, цифры и дефисы. Закрывает вектор
// path traversal: разделители путей и точки не проходят.
func slugify(s string) string {
	var b strings.Builder
	prevHyphen := false
	for _, r := range strings.ToLower(s) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevHyphen = false
		case !prevHyphen && b.Len() > 0:
			// Любой другой символ схлопывается в одиночный дефис
			b.WriteByte('-')
			prevHyphen = true
		}
	}

	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "file"
	}
	if len(slug) > 64 {
		slug = strings.TrimRight(slug[:64], "-")
	}
	return slug
}
