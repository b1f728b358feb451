package recordstore

import (
	"net/http"
	"strings"
	"testing"
)

func TestReadinessChecker(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
	}{
		{"ok", http.StatusOK, `[{"id":"1"}]`, "ok"},
		{"empty collection", http.StatusOK, `[]`, "ok"},
		{"server error", http.StatusServiceUnavailable, `down`, "fail"},
		{"not a list", http.StatusOK, `{"id":"1"}`, "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupMockStore(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/configs" || r.URL.Query().Get("_limit") != "1" {
					t.Errorf("запрос %s, ожидается /configs?_limit=1", r.URL.String())
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			checker := NewReadinessChecker(newTestClient(t, server.URL), "configs")
			status, msg := checker.CheckReady()
			if status != tt.expected {
				t.Errorf("CheckReady() = %s (%s), ожидается %s", status, msg, tt.expected)
			}
			if status == "fail" && !strings.Contains(msg, "Record Store") {
				t.Errorf("сообщение %q не упоминает Record Store", msg)
			}
		})
	}
}
