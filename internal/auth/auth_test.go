package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newEngine(apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(apiKey), CallerMiddleware())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, Caller(c))
	})
	return r
}

func TestMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		apiKey   string
		target   string
		header   map[string]string
		wantCode int
		wantBody string
	}{
		{"auth disabled", "", "/whoami", map[string]string{"X-User-ID": "alice"}, http.StatusOK, "alice"},
		{"header key", "k", "/whoami", map[string]string{"X-API-Key": "k", "X-User-ID": "bob"}, http.StatusOK, "bob"},
		{"query key", "k", "/whoami?api_key=k", map[string]string{"X-User-ID": "carol"}, http.StatusOK, "carol"},
		{"missing key", "k", "/whoami", map[string]string{"X-User-ID": "bob"}, http.StatusUnauthorized, ""},
		{"wrong key", "k", "/whoami", map[string]string{"X-API-Key": "nope", "X-User-ID": "bob"}, http.StatusForbidden, ""},
		{"missing caller", "k", "/whoami", map[string]string{"X-API-Key": "k"}, http.StatusUnauthorized, ""},
		{"blank caller", "", "/whoami", map[string]string{"X-User-ID": "   "}, http.StatusUnauthorized, ""},
		{"query caller", "k", "/whoami?api_key=k&user_id=dave", nil, http.StatusOK, "dave"},
		{"header caller wins", "", "/whoami?user_id=dave", map[string]string{"X-User-ID": "erin"}, http.StatusOK, "erin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			newEngine(tt.apiKey).ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}
