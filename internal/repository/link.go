package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/sharebox/internal/domain/model"
)

// linkColumns — список столбцов таблицы links для SELECT-запросов.
const linkColumns = `id, token, file_id, expires_at, password`

// LinkRepository — интерфейс доступа к таблице links.
type LinkRepository interface {
	// Create вставляет новую ссылку. При нарушении уникальности токена
	// возвращает ErrTokenExists — вызывающий код перегенерирует токен.
	Create(ctx context.Context, l *model.Link) error
	// GetByToken возвращает ссылку по точному совпадению токена или ErrNotFound.
	// Фильтрации по expires_at нет: проверка истечения — отдельный явный шаг.
	GetByToken(ctx context.Context, token string) (*model.Link, error)
	// FindExpired возвращает все ссылки с expires_at <= now.
	FindExpired(ctx context.Context, now time.Time) ([]*model.Link, error)
	// DeleteBatch удаляет ссылки по списку UUID.
	DeleteBatch(ctx context.Context, ids []string) error
}

// linkRepo — реализация LinkRepository через pgx.
type linkRepo struct {
	db DBTX
}

// NewLinkRepository создаёт репозиторий ссылок.
func NewLinkRepository(db DBTX) LinkRepository {
	return &linkRepo{db: db}
}

// Create вставляет новую ссылку.
func (r *linkRepo) Create(ctx context.Context, l *model.Link) error {
	query := `
		INSERT INTO links (id, token, file_id, expires_at, password)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		l.ID, l.Token, l.FileID, l.ExpiresAt, l.PasswordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTokenExists
		}
		return fmt.Errorf("ошибка вставки ссылки: %w", err)
	}
	return nil
}

// GetByToken возвращает ссылку по токену или ErrNotFound.
func (r *linkRepo) GetByToken(ctx context.Context, token string) (*model.Link, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE token = $1`, linkColumns)

	l := &model.Link{}
	err := r.db.QueryRow(ctx, query, token).Scan(
		&l.ID, &l.Token, &l.FileID, &l.ExpiresAt, &l.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения ссылки: %w", err)
	}
	return l, nil
}

// FindExpired возвращает все ссылки, истёкшие на момент now.
// Используется reaper'ом; индекс idx_links_expires_at.
func (r *linkRepo) FindExpired(ctx context.Context, now time.Time) ([]*model.Link, error) {
	query := fmt.Sprintf(`SELECT %s FROM links WHERE expires_at <= $1`, linkColumns)

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска истёкших ссылок: %w", err)
	}
	defer rows.Close()

	var result []*model.Link
	for rows.Next() {
		l := &model.Link{}
		if err := rows.Scan(
			&l.ID, &l.Token, &l.FileID, &l.ExpiresAt, &l.PasswordHash,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования ссылки: %w", err)
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}

	return result, nil
}

// DeleteBatch удаляет ссылки по списку UUID.
// Повторный вызов для уже удалённых id — no-op.
func (r *linkRepo) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `DELETE FROM links WHERE id = ANY($1)`
	if _, err := r.db.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("ошибка пакетного удаления ссылок: %w", err)
	}
	return nil
}
