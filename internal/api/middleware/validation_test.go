package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bigkaa/goartstore/config-console/internal/api/openapi"
)

// newTestValidator оборачивает обработчик, отвечающий 200, валидатором контракта.
func newTestValidator(t *testing.T) http.Handler {
	t.Helper()
	doc, err := openapi.Load(context.Background())
	if err != nil {
		t.Fatalf("openapi.Load: %v", err)
	}
	v, err := NewRequestValidator(doc, testLogger())
	if err != nil {
		t.Fatalf("NewRequestValidator: %v", err)
	}
	return v.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequestValidator(t *testing.T) {
	handler := newTestValidator(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		expected int
	}{
		{"valid create", http.MethodPost, "/api/v1/applications/billing/entries",
			`{"profile":"default","label":"latest","key":"db.host","value":"pg"}`, http.StatusOK},
		{"label as list", http.MethodPost, "/api/v1/applications/billing/entries",
			`{"profile":"default","label":["latest","candidate"],"key":"db.host","value":"pg"}`, http.StatusOK},
		{"missing key", http.MethodPost, "/api/v1/applications/billing/entries",
			`{"profile":"default","label":"latest","value":"pg"}`, http.StatusBadRequest},
		{"unknown status", http.MethodPost, "/api/v1/applications/billing/entries",
			`{"profile":"default","label":"latest","key":"k","value":"v","status":"archived"}`, http.StatusBadRequest},
		{"not json", http.MethodPost, "/api/v1/applications/billing/entries",
			`key=value`, http.StatusBadRequest},
		{"deploy without clusters", http.MethodPost, "/api/v1/applications/billing/entries/7/deploy",
			`{"type":"immediate","targetClusters":[],"environment":"prod"}`, http.StatusBadRequest},
		{"deploy valid", http.MethodPost, "/api/v1/applications/billing/entries/7/deploy",
			`{"type":"immediate","targetClusters":["k8s-prod-1"],"environment":"prod"}`, http.StatusOK},
		{"promotion without target", http.MethodPost, "/api/v1/applications/billing/promotions",
			`{"source":"latest"}`, http.StatusBadRequest},
		{"plan id not uuid", http.MethodPost, "/api/v1/applications/billing/promotions/abc/confirm",
			``, http.StatusBadRequest},
		{"bad status filter", http.MethodGet, "/api/v1/applications/billing/entries?status=gone",
			``, http.StatusBadRequest},
		{"valid filter", http.MethodGet, "/api/v1/applications/billing/entries?status=active&refresh=true",
			``, http.StatusOK},
		{"outside contract", http.MethodGet, "/health/live", ``, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.expected {
				t.Fatalf("статус = %d, ожидается %d, тело: %s", rec.Code, tt.expected, rec.Body.String())
			}
			if rec.Code == http.StatusBadRequest {
				var body struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("тело ошибки не JSON: %v", err)
				}
				if body.Error.Code != "VALIDATION_ERROR" {
					t.Errorf("code = %q, ожидается VALIDATION_ERROR", body.Error.Code)
				}
			}
		})
	}
}
