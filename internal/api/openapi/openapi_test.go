package openapi

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	for _, path := range []string{
		"/api/v1/applications",
		"/api/v1/clusters",
		"/api/v1/applications/{app}/entries",
		"/api/v1/applications/{app}/entries/{id}",
		"/api/v1/applications/{app}/entries/{id}/deploy",
		"/api/v1/applications/{app}/stats",
		"/api/v1/applications/{app}/promotions",
		"/api/v1/applications/{app}/promotions/{planId}/confirm",
		"/api/v1/applications/{app}/promotions/{planId}/decline",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("путь %s отсутствует в контракте", path)
		}
	}
}

func TestLoad_PlanIDFormat(t *testing.T) {
	doc, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	param, ok := doc.Components.Parameters["PlanID"]
	if !ok || param.Value == nil || param.Value.Schema == nil {
		t.Fatal("параметр PlanID отсутствует в контракте")
	}
	schema := param.Value.Schema.Value

	if err := schema.VisitJSON(uuid.NewString()); err != nil {
		t.Errorf("VisitJSON(uuid) вернул ошибку: %v", err)
	}
	for _, bad := range []string{"plan-1", "12345", "00000000-0000-0000-0000"} {
		if err := schema.VisitJSON(bad); err == nil {
			t.Errorf("VisitJSON(%q) не вернул ошибку", bad)
		}
	}
}

func TestDocument(t *testing.T) {
	if len(Document()) == 0 {
		t.Fatal("Document() вернул пустой контракт")
	}
}
