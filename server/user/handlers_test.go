package user

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/drnu/drnu-downloader/server/config"
	middlewares "github.com/drnu/drnu-downloader/server/middleware"
)

func TestLogin(t *testing.T) {
	auth := &config.Instance().Authentication
	auth.Username = "admin"
	auth.Password = "hunter2"
	auth.JWTSecret = "s3cret"

	tests := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"username":"admin","password":"hunter2"}`, http.StatusOK},
		{"wrong password", `{"username":"admin","password":"nope"}`, http.StatusUnauthorized},
		{"wrong user", `{"username":"root","password":"hunter2"}`, http.StatusUnauthorized},
		{"malformed", `{`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			Login(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want != http.StatusOK {
				return
			}

			var res map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
				t.Fatal(err)
			}
			if err := middlewares.ValidateToken(res["token"]); err != nil {
				t.Fatalf("issued token invalid: %v", err)
			}

			cookies := rec.Result().Cookies()
			if len(cookies) != 1 || cookies[0].Name != middlewares.TOKEN_COOKIE_NAME || cookies[0].Value != res["token"] {
				t.Fatalf("unexpected cookies %+v", cookies)
			}
		})
	}
}

func TestLogoutExpiresCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	Logout(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("cookie not expired: %+v", cookies)
	}
}
