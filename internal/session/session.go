// Пакет session — сессионное состояние посетителя в зашифрованном cookie.
// Хранит множество токенов, для которых пройдена проверка пароля.
// Шифрование AES-256-GCM, данные не персистентны на сервере.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Имя cookie зашифрованной сессии.
const CookieName = "sharebox_session"

// Data — данные сессии посетителя.
type Data struct {
	// VerifiedTokens — токены ссылок с пройденной проверкой пароля.
	VerifiedTokens []string `json:"verified_tokens,omitempty"`
}

// HasToken проверяет наличие токена в верифицированном множестве.
func (d *Data) HasToken(token string) bool {
	for _, t := range d.VerifiedTokens {
		if t == token {
			return true
		}
	}
	return false
}

// AddToken добавляет токен в верифицированное множество (без дубликатов).
func (d *Data) AddToken(token string) {
	if !d.HasToken(token) {
		d.VerifiedTokens = append(d.VerifiedTokens, token)
	}
}

// Manager — менеджер сессионных cookie.
// Шифрует/дешифрует Data через AES-256-GCM.
type Manager struct {
	// gcm — AEAD cipher для шифрования/дешифрования.
	gcm cipher.AEAD
	// maxAge — время жизни cookie в секундах, равно TTL ссылки:
	// верифицированная сессия не должна переживать саму ссылку.
	maxAge int
	// secure — Secure flag для cookie (true для HTTPS).
	secure bool
}

// NewManager создаёт менеджер сессий.
// key — ключ AES-256 (base64 от 32 байт или произвольная строка,
// хешируемая SHA-256 до 32 байт). Пустой key — случайный ключ,
// непостоянный между рестартами.
// ttl — время жизни cookie, обычно равно TTL ссылки.
func NewManager(key string, ttl time.Duration, secure bool) (*Manager, error) {
	var keyBytes []byte

	if key == "" {
		// Автогенерация ключа (32 bytes = AES-256)
		keyBytes = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
			return nil, fmt.Errorf("ошибка генерации ключа сессии: %w", err)
		}
	} else {
		var err error
		keyBytes, err = base64.StdEncoding.DecodeString(key)
		if err != nil || len(keyBytes) != 32 {
			// Не base64 — хешируем строку до 32 bytes через SHA-256
			// (для удобства конфигурации)
			keyBytes = sha256Key(key)
		}
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания GCM: %w", err)
	}

	return &Manager{
		gcm:    gcm,
		maxAge: int(ttl.Seconds()),
		secure: secure,
	}, nil
}

// Encrypt шифрует Data и возвращает base64-строку.
func (m *Manager) Encrypt(data *Data) (string, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	// Уникальный nonce для каждого шифрования
	nonce := make([]byte, m.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("ошибка генерации nonce: %w", err)
	}

	// Шифрование с аутентификацией (nonce prepended к ciphertext)
	ciphertext := m.gcm.Seal(nonce, nonce, plaintext, nil)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt дешифрует base64-строку обратно в Data.
func (m *Manager) Decrypt(encrypted string) (*Data, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("ошибка декодирования base64: %w", err)
	}

	nonceSize := m.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, errors.New("зашифрованные данные слишком короткие")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := m.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка дешифрования сессии: %w", err)
	}

	var data Data
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, fmt.Errorf("ошибка десериализации сессии: %w", err)
	}

	return &data, nil
}

// SetCookie устанавливает зашифрованный session cookie в ответ.
func (m *Manager) SetCookie(w http.ResponseWriter, data *Data) error {
	encrypted, err := m.Encrypt(data)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encrypted,
		Path:     "/",
		MaxAge:   m.maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// FromRequest извлекает и дешифрует Data из cookie запроса.
// Отсутствующий или нечитаемый cookie — пустая сессия: битый cookie
// не должен ломать запрос, посетитель просто не верифицирован.
func (m *Manager) FromRequest(r *http.Request) *Data {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return &Data{}
	}

	data, err := m.Decrypt(cookie.Value)
	if err != nil {
		return &Data{}
	}
	return data
}

// sha256Key хеширует строковый ключ в 32 bytes через SHA-256.
func sha256Key(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return h[:]
}
