// Пакет openapi — встроенный OpenAPI 3 контракт API Config Console.
package openapi

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var document []byte

// Document возвращает исходный YAML контракта.
func Document() []byte {
	return document
}

var registerFormats sync.Once

// Load разбирает и проверяет встроенный контракт.
// Форматы строк kin-openapi не проверяет без регистрации, поэтому uuid
// регистрируется до загрузки.
func Load(ctx context.Context) (*openapi3.T, error) {
	registerFormats.Do(func() {
		openapi3.DefineStringFormatValidator("uuid",
			openapi3.NewRegexpFormatValidator(openapi3.FormatOfStringForUUIDOfRFC4122))
	})

	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("разбор OpenAPI контракта: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("проверка OpenAPI контракта: %w", err)
	}
	return doc, nil
}
