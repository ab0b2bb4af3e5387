package middleware

import "testing"

func TestNormalizePath(t *testing.T) {
	token := "a1b2c3d4-e5f6-7890-abcd-ef1234567890"

	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/health/ready", "/health/ready"},
		{"/metrics", "/metrics"},
		{"/api/v1/files/upload", "/api/v1/files/upload"},
		{"/link/" + token, "/link/{token}"},
		{"/link/" + token + "/download", "/link/{token}/download"},
		{"/link/" + token + "/password", "/link/{token}/password"},
		{"/unknown/path", "/unknown/path"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, ожидалось %q", tt.path, got, tt.want)
		}
	}
}
