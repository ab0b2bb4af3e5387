package model

import "time"

// Link — временная ссылка на файл в таблице links.
// Токен — единственный внешний идентификатор файла.
type Link struct {
	// ID — UUID ссылки
	ID string
	// Token — уникальный неугадываемый токен (uuid v4)
	Token string
	// FileID — UUID файла (1:1, каскадное удаление)
	FileID string
	// ExpiresAt — момент истечения ссылки
	ExpiresAt time.Time
	// PasswordHash — bcrypt-хэш пароля; nil — публичная ссылка
	PasswordHash *string
}

// HasPassword сообщает, защищена ли ссылка паролем.
func (l *Link) HasPassword() bool {
	return l.PasswordHash != nil && *l.PasswordHash != ""
}

// IsExpired проверяет, истекла ли ссылка на момент now.
func (l *Link) IsExpired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}
