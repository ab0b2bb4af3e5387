package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"
)

// logLine — разобранная JSON-запись access-лога.
type logLine struct {
	Level  string `json:"level"`
	Msg    string `json:"msg"`
	Method string `json:"method"`
	Route  string `json:"route"`
	Status int    `json:"status"`
	Bytes  int64  `json:"bytes"`
}

// captureRequest пропускает запрос через RequestLogger и возвращает запись лога.
func captureRequest(t *testing.T, path string, handler http.HandlerFunc) logLine {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mw := RequestLogger(logger)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)

	var line logLine
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("ошибка разбора записи лога %q: %v", buf.String(), err)
	}
	return line
}

func TestRequestLogger_TokenNotLogged(t *testing.T) {
	token := "a1b2c3d4-e5f6-7890-abcd-ef1234567890"

	line := captureRequest(t, "/link/"+token+"/download", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if line.Route != "/link/{token}/download" {
		t.Errorf("route: ожидалось \"/link/{token}/download\", получено %q", line.Route)
	}
	if strings.Contains(line.Route, token) {
		t.Error("токен ссылки не должен попадать в лог")
	}
	if line.Method != http.MethodGet {
		t.Errorf("method: получено %q", line.Method)
	}
	if line.Status != http.StatusOK {
		t.Errorf("status: получено %d", line.Status)
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"успех", http.StatusOK, "INFO"},
		{"клиентская ошибка", http.StatusNotFound, "WARN"},
		{"серверная ошибка", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := captureRequest(t, "/health/live", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			if line.Level != tt.wantLevel {
				t.Errorf("уровень для статуса %d: ожидалось %s, получено %s",
					tt.status, tt.wantLevel, line.Level)
			}
		})
	}
}

func TestRequestLogger_ResponseBytes(t *testing.T) {
	body := "тело ответа"
	line := captureRequest(t, "/metrics", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	})

	if line.Bytes != int64(len(body)) {
		t.Errorf("bytes: ожидалось %d, получено %d", len(body), line.Bytes)
	}
}
