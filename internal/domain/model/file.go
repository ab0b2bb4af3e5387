// Пакет model — доменные модели Sharebox: файлы и ссылки на них.
package model

import "time"

// File — запись о загруженном файле в таблице files.
// Все поля, кроме DownloadCount, неизменяемы после создания.
type File struct {
	// ID — UUID файла, генерируется при создании
	ID string
	// FileName — отображаемое имя файла (после слагификации + суффикс уникальности)
	FileName string
	// FilePath — путь относительно корня хранилища; наружу не отдаётся
	FilePath string
	// FileSize — размер файла в байтах, фиксируется при загрузке
	FileSize int64
	// UploadDate — время загрузки
	UploadDate time.Time
	// DownloadCount — счётчик скачиваний, монотонно растёт
	DownloadCount int64
	// MimeType — MIME-тип, определённый сервером по содержимому
	MimeType string
}
