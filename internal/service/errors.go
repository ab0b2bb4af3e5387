// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ссылка или файл не найдены (либо ссылка истекла).
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — файл не прошёл проверку (тип или размер).
	ErrValidation = errors.New("ошибка валидации файла")
	// ErrFileTooLarge — файл превышает максимальный размер.
	ErrFileTooLarge = errors.New("файл превышает максимальный размер")
	// ErrPasswordRequired — ссылка защищена паролем, сессия не верифицирована.
	ErrPasswordRequired = errors.New("требуется пароль")
	// ErrAccessDenied — неверный пароль.
	ErrAccessDenied = errors.New("неверный пароль")
	// ErrStorage — ошибка записи файла на диск.
	ErrStorage = errors.New("ошибка файлового хранилища")
	// ErrTokenGeneration — не удалось сгенерировать уникальный токен
	// за отведённое число попыток.
	ErrTokenGeneration = errors.New("не удалось сгенерировать уникальный токен")
)
