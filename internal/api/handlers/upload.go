// upload.go — HTTP handler загрузки файлов.
// POST /api/v1/files/upload: multipart form с полями file и password.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/sharebox/internal/api/errors"
	"github.com/bigkaa/sharebox/internal/config"
	"github.com/bigkaa/sharebox/internal/service"
)

// UploadHandler — обработчик endpoint загрузки.
type UploadHandler struct {
	uploadSvc *service.UploadService
	cfg       *config.Config
}

// NewUploadHandler создаёт обработчик загрузки.
func NewUploadHandler(uploadSvc *service.UploadService, cfg *config.Config) *UploadHandler {
	return &UploadHandler{
		uploadSvc: uploadSvc,
		cfg:       cfg,
	}
}

// uploadResponse — тело ответа успешной загрузки.
type uploadResponse struct {
	Token    string `json:"token"`
	FileName string `json:"file_name"`
	ShareURL string `json:"share_url"`
}

// UploadFile обрабатывает POST /api/v1/files/upload.
// Multipart form: file (обязательно), password (опционально — защита ссылки).
func (h *UploadHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	// Жёсткий лимит тела запроса: файл + запас на заголовки multipart
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxFileSize+(1<<20))

	// Парсим multipart form (32 MB буфер в памяти, остальное на диск)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w,
				fmt.Sprintf("Размер запроса превышает лимит %d байт", h.cfg.MaxFileSize))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	// Извлекаем файл
	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	password := r.FormValue("password")

	// Вызываем сервис загрузки
	result, err := h.uploadSvc.Upload(r.Context(), service.UploadParams{
		Reader:       file,
		OriginalName: header.Filename,
		DeclaredSize: header.Size,
		RawPassword:  password,
	})
	if err != nil {
		writeUploadError(w, err)
		return
	}

	resp := uploadResponse{
		Token:    result.Token,
		FileName: result.FileName,
		ShareURL: "/link/" + result.Token,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeUploadError преобразует ошибку сервиса загрузки в HTTP-ответ.
func writeUploadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrFileTooLarge):
		apierrors.FileTooLarge(w, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	default:
		apierrors.InternalError(w, "Ошибка сохранения файла")
	}
}
