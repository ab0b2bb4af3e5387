// archive.go — просмотр содержимого загруженных архивов.
// Архив открывается только на чтение, содержимое не распаковывается.
package service

import (
	"archive/zip"
	"fmt"
	"path/filepath"
	"strings"
)

// SupportsListing сообщает, поддерживается ли просмотр содержимого
// для файла с данным именем. Проверка по расширению, без учёта регистра.
// Единая точка расширения для будущих инспектируемых форматов.
func SupportsListing(fileName string) bool {
	return strings.ToLower(filepath.Ext(fileName)) == ".zip"
}

// ListArchiveEntries возвращает имена элементов zip-архива по абсолютному
// пути, не извлекая их содержимое. Дескриптор закрывается на любом пути
// выполнения.
func ListArchiveEntries(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть архив: %w", err)
	}
	defer r.Close()

	entries := make([]string, 0, len(r.File))
	for _, f := range r.File {
		entries = append(entries, f.Name)
	}
	return entries, nil
}
