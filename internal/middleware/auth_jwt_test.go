package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"carousel/internal/domain"
)

func authedHandler(t *testing.T, wantUser string) http.Handler {
	return AuthJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := domain.UserIDFromContext(r.Context()); got != wantUser {
			t.Fatalf("user id = %q, want %q", got, wantUser)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestAuthJWTAcceptsValidToken(t *testing.T) {
	token, err := SignJWT("secret", "user-1", time.Hour)
	if err != nil {
		t.Fatalf("SignJWT returned error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authedHandler(t, "user-1").ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthJWTAcceptsQueryToken(t *testing.T) {
	token, _ := SignJWT("secret", "user-1", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/v1/events?access_token="+token, nil)
	rec := httptest.NewRecorder()
	authedHandler(t, "user-1").ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthJWTRejects(t *testing.T) {
	expired, _ := SignJWT("secret", "user-1", -time.Minute)
	forged, _ := SignJWT("other", "user-1", time.Hour)
	noSubject, _ := SignJWT("secret", "", time.Hour)
	cases := map[string]string{
		"missing":    "",
		"malformed":  "Bearer abc",
		"expired":    "Bearer " + expired,
		"forged":     "Bearer " + forged,
		"no subject": "Bearer " + noSubject,
		"basic":      "Basic dXNlcjpwYXNz",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		AuthJWT("secret")(http.NotFoundHandler()).ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", name, rec.Code)
		}
	}
}

func TestServiceToken(t *testing.T) {
	h := ServiceToken("worker-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/functions/generate-images", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", rec.Code)
	}

	req.Header.Set("Authorization", "Bearer worker-secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status with token = %d", rec.Code)
	}
}
