package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/sharebox/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const fileColumns = `id, file_name, file_path, file_size, upload_date,
	download_count, mime_type`

// UpdateParams — параметры частичного обновления файла.
// Все поля — указатели, nil = поле не изменяется.
type UpdateParams struct {
	// FileName — новое отображаемое имя
	FileName *string
	// FilePath — новый относительный путь
	FilePath *string
	// FileSize — новый размер
	FileSize *int64
	// UploadDate — новое время загрузки
	UploadDate *time.Time
	// MimeType — новый MIME-тип
	MimeType *string
	// DownloadCount — новое значение счётчика скачиваний
	DownloadCount *int64
}

// FileRepository — интерфейс доступа к таблице files.
type FileRepository interface {
	// Create вставляет новую запись о файле.
	Create(ctx context.Context, f *model.File) error
	// GetByID возвращает файл по UUID или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.File, error)
	// Update выполняет частичное обновление: изменяются только ненулевые
	// поля params. Возвращает обновлённую запись или ErrNotFound.
	Update(ctx context.Context, id string, params UpdateParams) (*model.File, error)
	// IncrementDownloadCount атомарно увеличивает счётчик скачиваний на 1.
	IncrementDownloadCount(ctx context.Context, id string) error
	// DeleteBatch удаляет записи по списку UUID. Отсутствующие id не ошибка.
	DeleteBatch(ctx context.Context, ids []string) error
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// Create вставляет новую запись о файле.
func (r *fileRepo) Create(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (id, file_name, file_path, file_size, upload_date,
			download_count, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		f.ID, f.FileName, f.FilePath, f.FileSize, f.UploadDate,
		f.DownloadCount, f.MimeType,
	)
	if err != nil {
		return fmt.Errorf("ошибка вставки файла: %w", err)
	}
	return nil
}

// GetByID возвращает файл по UUID или ErrNotFound.
func (r *fileRepo) GetByID(ctx context.Context, id string) (*model.File, error) {
	query := fmt.Sprintf(`SELECT %s FROM files WHERE id = $1`, fileColumns)

	f := &model.File{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.FileName, &f.FilePath, &f.FileSize, &f.UploadDate,
		&f.DownloadCount, &f.MimeType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// Update выполняет частичное обновление записи: только ненулевые поля params.
// На практике используется для счётчика скачиваний.
func (r *fileRepo) Update(ctx context.Context, id string, params UpdateParams) (*model.File, error) {
	var sets []string
	var args []any
	argNum := 1

	if params.FileName != nil {
		sets = append(sets, fmt.Sprintf("file_name = $%d", argNum))
		args = append(args, *params.FileName)
		argNum++
	}
	if params.FilePath != nil {
		sets = append(sets, fmt.Sprintf("file_path = $%d", argNum))
		args = append(args, *params.FilePath)
		argNum++
	}
	if params.FileSize != nil {
		sets = append(sets, fmt.Sprintf("file_size = $%d", argNum))
		args = append(args, *params.FileSize)
		argNum++
	}
	if params.UploadDate != nil {
		sets = append(sets, fmt.Sprintf("upload_date = $%d", argNum))
		args = append(args, *params.UploadDate)
		argNum++
	}
	if params.MimeType != nil {
		sets = append(sets, fmt.Sprintf("mime_type = $%d", argNum))
		args = append(args, *params.MimeType)
		argNum++
	}
	if params.DownloadCount != nil {
		sets = append(sets, fmt.Sprintf("download_count = $%d", argNum))
		args = append(args, *params.DownloadCount)
		argNum++
	}

	// Нечего обновлять — возвращаем текущее состояние
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}

	query := fmt.Sprintf(
		`UPDATE files SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), argNum, fileColumns,
	)
	args = append(args, id)

	f := &model.File{}
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&f.ID, &f.FileName, &f.FilePath, &f.FileSize, &f.UploadDate,
		&f.DownloadCount, &f.MimeType,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления файла: %w", err)
	}
	return f, nil
}

// IncrementDownloadCount атомарно увеличивает счётчик скачиваний.
// Инкремент на стороне БД: параллельные скачивания не теряют обновления.
func (r *fileRepo) IncrementDownloadCount(ctx context.Context, id string) error {
	query := `UPDATE files SET download_count = download_count + 1 WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка инкремента счётчика скачиваний: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBatch удаляет записи о файлах по списку UUID.
// Связанные ссылки удаляются каскадно (FK ON DELETE CASCADE).
// Повторный вызов для уже удалённых id — no-op.
func (r *fileRepo) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `DELETE FROM files WHERE id = ANY($1)`
	if _, err := r.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("ошибка пакетного удаления файлов: %w", err)
	}
	return nil
}
