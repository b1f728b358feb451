package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// testKeyID — идентификатор ключа для тестов.
	testKeyID = "test-key-cc"
	// testIssuer — issuer, которому доверяет middleware в тестах.
	testIssuer = "https://idp.test/realms/config"
)

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestJWTAuth создаёт JWTAuth для тестов с локальным JWKS.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}

	return NewJWTAuthWithKeyfunc(kf, testIssuer, RoleGroups{
		Admin:    []string{"config-admins"},
		Editor:   []string{"config-editors"},
		Readonly: []string{"config-viewers"},
	}, testLogger())
}

// signToken подписывает произвольный набор claims тестовым ключом.
func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tokenStr
}

// generateUserToken генерирует JWT пользователя.
func generateUserToken(t *testing.T, key *rsa.PrivateKey, sub string, roles, groups []string, expired bool) string {
	t.Helper()

	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}

	claims := jwt.MapClaims{
		"sub":                sub,
		"preferred_username": "operator",
		"email":              "operator@test.com",
		"iss":                testIssuer,
		"exp":                jwt.NewNumericDate(exp),
		"nbf":                jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}
	if len(roles) > 0 {
		claims["realm_access"] = map[string]any{"roles": roles}
	}
	if len(groups) > 0 {
		claims["groups"] = groups
	}
	return signToken(t, key, claims)
}

// serveWithToken пропускает запрос с токеном через middleware и возвращает
// код ответа и claims, увиденные обработчиком.
func serveWithToken(t *testing.T, auth *JWTAuth, header string) (int, *AuthClaims) {
	t.Helper()
	var seen *AuthClaims
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/apps/billing/entries", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code, seen
}

// --- Тесты JWT Middleware ---

func TestJWTAuth_ValidUserToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	tokenStr := generateUserToken(t, key, "user-123", nil, []string{"config-admins"}, false)
	code, claims := serveWithToken(t, auth, "Bearer "+tokenStr)

	if code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d", code)
	}
	if claims == nil {
		t.Fatal("claims не найдены в контексте")
	}
	if claims.Subject != "user-123" {
		t.Errorf("ожидался sub=user-123, получен %s", claims.Subject)
	}
	if claims.PreferredUsername != "operator" {
		t.Errorf("ожидался username=operator, получен %s", claims.PreferredUsername)
	}
	if claims.Email != "operator@test.com" {
		t.Errorf("ожидался email=operator@test.com, получен %s", claims.Email)
	}
	if claims.Role != "admin" {
		t.Errorf("ожидалась роль admin, получена %s", claims.Role)
	}
}

func TestJWTAuth_MissingToken(t *testing.T) {
	auth := newTestJWTAuth(t, generateTestKey(t))

	if code, _ := serveWithToken(t, auth, ""); code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", code)
	}
}

func TestJWTAuth_ExpiredToken(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	tokenStr := generateUserToken(t, key, "user-123", nil, []string{"config-admins"}, true)
	if code, _ := serveWithToken(t, auth, "Bearer "+tokenStr); code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", code)
	}
}

func TestJWTAuth_InvalidFormat(t *testing.T) {
	auth := newTestJWTAuth(t, generateTestKey(t))

	tests := []struct {
		name   string
		header string
	}{
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"no bearer prefix", "token123"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _ := serveWithToken(t, auth, tt.header); code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", code)
			}
		})
	}
}

func TestJWTAuth_ForeignKey(t *testing.T) {
	auth := newTestJWTAuth(t, generateTestKey(t))

	tokenStr := generateUserToken(t, generateTestKey(t), "user-123", nil, []string{"config-admins"}, false)
	if code, _ := serveWithToken(t, auth, "Bearer "+tokenStr); code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", code)
	}
}

func TestJWTAuth_WrongIssuer(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	tokenStr := signToken(t, key, jwt.MapClaims{
		"sub": "user-123",
		"iss": "https://other-idp.test/realms/other",
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
		"iat": jwt.NewNumericDate(time.Now()),
	})
	if code, _ := serveWithToken(t, auth, "Bearer "+tokenStr); code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", code)
	}
}

func TestJWTAuth_MissingSubject(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	tokenStr := signToken(t, key, jwt.MapClaims{
		"iss": testIssuer,
		"exp": jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if code, _ := serveWithToken(t, auth, "Bearer "+tokenStr); code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", code)
	}
}

func TestJWTAuth_RoleResolution(t *testing.T) {
	key := generateTestKey(t)
	auth := newTestJWTAuth(t, key)

	tests := []struct {
		name     string
		roles    []string
		groups   []string
		expected string
	}{
		{"editor group", nil, []string{"config-editors"}, "editor"},
		{"viewer group", nil, []string{"config-viewers"}, "readonly"},
		{"highest group wins", nil, []string{"config-viewers", "config-admins"}, "admin"},
		{"realm roles fallback", []string{"editor", "default-roles-config"}, nil, "editor"},
		{"groups take precedence", []string{"admin"}, []string{"config-viewers"}, "readonly"},
		{"unknown groups", []string{"offline_access"}, []string{"other"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenStr := generateUserToken(t, key, "user-123", tt.roles, tt.groups, false)
			code, claims := serveWithToken(t, auth, "Bearer "+tokenStr)
			if code != http.StatusOK {
				t.Fatalf("ожидался статус 200, получен %d", code)
			}
			if claims.Role != tt.expected {
				t.Errorf("Role = %q, ожидается %q", claims.Role, tt.expected)
			}
		})
	}
}

// --- Тесты RBAC middleware ---

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		required string
		expected int
	}{
		{"admin passes editor", "admin", "editor", http.StatusOK},
		{"editor passes editor", "editor", "editor", http.StatusOK},
		{"readonly fails editor", "readonly", "editor", http.StatusForbidden},
		{"editor fails admin", "editor", "admin", http.StatusForbidden},
		{"no role fails readonly", "", "readonly", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireRole(tt.required)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			ctx := context.WithValue(context.Background(), ContextKeyClaims, &AuthClaims{Role: tt.role})
			req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expected {
				t.Errorf("ожидался статус %d, получен %d", tt.expected, rec.Code)
			}
		})
	}
}

func TestRequireRole_NoClaims(t *testing.T) {
	handler := RequireRole("readonly")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("handler не должен быть вызван")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("ожидался статус 401, получен %d", rec.Code)
	}
}

// --- Тесты context helpers ---

func TestClaimsFromContext_Empty(t *testing.T) {
	if claims := ClaimsFromContext(context.Background()); claims != nil {
		t.Errorf("ожидался nil, получено %+v", claims)
	}
}

func TestSubjectFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), ContextKeyClaims, &AuthClaims{Subject: "user-123"})

	if sub := SubjectFromContext(ctx); sub != "user-123" {
		t.Errorf("ожидался user-123, получен %q", sub)
	}
	if sub := SubjectFromContext(context.Background()); sub != "" {
		t.Errorf("ожидалась пустая строка, получено %q", sub)
	}
}

// --- Тесты JWKSReadinessChecker ---

func TestJWKSReadinessChecker(t *testing.T) {
	key := generateTestKey(t)

	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{"ok", http.StatusOK, string(buildJWKSetJSON(&key.PublicKey, testKeyID)), "ok"},
		{"no keys", http.StatusOK, `{"keys":[]}`, "degraded"},
		{"invalid json", http.StatusOK, `{`, "degraded"},
		{"server error", http.StatusInternalServerError, ``, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			checker, err := NewJWKSReadinessChecker(srv.URL, "", time.Second)
			if err != nil {
				t.Fatalf("NewJWKSReadinessChecker: %v", err)
			}
			if status, msg := checker.CheckReady(); status != tt.expected {
				t.Errorf("CheckReady() = %s (%s), ожидается %s", status, msg, tt.expected)
			}
		})
	}
}

func TestJWKSReadinessChecker_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	checker, err := NewJWKSReadinessChecker(url, "", time.Second)
	if err != nil {
		t.Fatalf("NewJWKSReadinessChecker: %v", err)
	}
	if status, _ := checker.CheckReady(); status != "fail" {
		t.Errorf("CheckReady() = %s, ожидается fail", status)
	}
}
