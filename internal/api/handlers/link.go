// link.go — HTTP handlers страницы ссылки, проверки пароля и скачивания.
// GET /link/{token}, POST /link/{token}/password, GET /link/{token}/download.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/sharebox/internal/api/errors"
	"github.com/bigkaa/sharebox/internal/service"
	"github.com/bigkaa/sharebox/internal/session"
)

// LinkHandler — обработчик endpoints ссылок.
type LinkHandler struct {
	linkSvc  *service.LinkService
	sessions *session.Manager
}

// NewLinkHandler создаёт обработчик ссылок.
func NewLinkHandler(linkSvc *service.LinkService, sessions *session.Manager) *LinkHandler {
	return &LinkHandler{
		linkSvc:  linkSvc,
		sessions: sessions,
	}
}

// viewResponse — тело ответа страницы файла.
type viewResponse struct {
	Token            string   `json:"token"`
	FileName         string   `json:"file_name"`
	MimeType         string   `json:"mime_type"`
	FileSize         int64    `json:"file_size"`
	DownloadCount    int64    `json:"download_count"`
	DownloadURL      string   `json:"download_url"`
	PasswordRequired bool     `json:"password_required"`
	ZipContents      []string `json:"zip_contents,omitempty"`
	ArchiveError     bool     `json:"archive_error,omitempty"`
}

// passwordRequest — тело запроса проверки пароля (JSON-вариант).
type passwordRequest struct {
	Password string `json:"password"`
}

// ViewLink обрабатывает GET /link/{token}.
// Для защищённой ссылки без верифицированной сессии возвращает 200
// с password_required: true и без метаданных файла.
func (h *LinkHandler) ViewLink(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	verified := h.verifiedTokens(r)
	view, err := h.linkSvc.View(r.Context(), token, verified)
	if err != nil {
		if errors.Is(err, service.ErrPasswordRequired) {
			// Состояние запроса пароля, не ошибка
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(viewResponse{
				Token:            token,
				PasswordRequired: true,
			})
			return
		}
		writeLinkError(w, err)
		return
	}

	resp := viewResponse{
		Token:         view.Token,
		FileName:      view.FileName,
		MimeType:      view.MimeType,
		FileSize:      view.FileSize,
		DownloadCount: view.DownloadCount,
		DownloadURL:   "/link/" + view.Token + "/download",
		ZipContents:   view.ArchiveEntries,
		ArchiveError:  view.ArchiveUnreadable,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// CheckPassword обрабатывает POST /link/{token}/password.
// Принимает пароль из form поля или JSON тела. При успехе добавляет
// токен в зашифрованную сессию и возвращает 204.
func (h *LinkHandler) CheckPassword(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	password, ok := extractPassword(r)
	if !ok {
		apierrors.ValidationError(w, "Поле 'password' обязательно")
		return
	}

	if err := h.linkSvc.CheckPassword(r.Context(), token, password); err != nil {
		writeLinkError(w, err)
		return
	}

	// Пароль верный — запоминаем токен в сессии
	data := h.sessions.FromRequest(r)
	data.AddToken(token)
	if err := h.sessions.SetCookie(w, data); err != nil {
		apierrors.InternalError(w, "Ошибка сохранения сессии")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DownloadFile обрабатывает GET /link/{token}/download.
// Query параметр count=false отключает инкремент счётчика скачиваний.
func (h *LinkHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	// Счётчик инкрементируется по умолчанию
	incrementCount := r.URL.Query().Get("count") != "false"

	verified := h.verifiedTokens(r)
	result, err := h.linkSvc.Serve(r.Context(), token, verified, incrementCount)
	if err != nil {
		writeLinkError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `inline; filename="`+sanitizeFilename(result.FileName)+`"`)
	http.ServeFile(w, r, result.AbsolutePath)
}

// verifiedTokens строит множество верифицированных токенов из сессии запроса.
func (h *LinkHandler) verifiedTokens(r *http.Request) service.VerifiedTokens {
	data := h.sessions.FromRequest(r)
	verified := make(service.VerifiedTokens, len(data.VerifiedTokens))
	for _, t := range data.VerifiedTokens {
		verified.Add(t)
	}
	return verified
}

// extractPassword извлекает пароль из form или JSON тела запроса.
func extractPassword(r *http.Request) (string, bool) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var req passwordRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", false
		}
		return req.Password, req.Password != ""
	}

	password := r.PostFormValue("password")
	return password, password != ""
}

// sanitizeFilename убирает символы, ломающие заголовок Content-Disposition.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(`"`, "", "\r", "", "\n", "")
	return replacer.Replace(name)
}

// writeLinkError преобразует ошибку сервиса ссылок в HTTP-ответ.
func writeLinkError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Ссылка не найдена или истекла")
	case errors.Is(err, service.ErrAccessDenied):
		apierrors.AccessDenied(w, "Неверный пароль")
	case errors.Is(err, service.ErrPasswordRequired):
		apierrors.PasswordRequired(w, "Ссылка защищена паролем")
	default:
		apierrors.InternalError(w, "Внутренняя ошибка")
	}
}
