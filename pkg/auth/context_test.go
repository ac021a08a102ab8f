package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func TestHeaderResolver(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		vars     map[string]string
		expected RequestContext
	}{
		{
			name: "keystone headers",
			headers: map[string]string{
				"X-Project-Id": "p1",
				"X-User-Id":    "u1",
				"X-Auth-Token": "tok",
			},
			vars:     map[string]string{"project": "other"},
			expected: RequestContext{ProjectID: "p1", UserID: "u1", AuthToken: "tok"},
		},
		{
			name:     "project from path",
			headers:  map[string]string{},
			vars:     map[string]string{"project": "demo"},
			expected: RequestContext{ProjectID: "demo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}
			req = mux.SetURLVars(req, tt.vars)

			result := HeaderResolver{}.Resolve(req)
			if result != tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, result)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	var got RequestContext
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-User-Id", "admin")
	Middleware(HeaderResolver{})(next).ServeHTTP(httptest.NewRecorder(), req)

	if !ok {
		t.Fatal("expected request context to be set")
	}
	if got.UserID != "admin" {
		t.Errorf("expected user admin, got %s", got.UserID)
	}
}
