// Пакет recordstore — HTTP-клиент внешнего Record Store:
// обобщённой REST-коллекции записей с ключом id.
// Поддерживает TLS с кастомным CA (CC_RECORD_STORE_CA_CERT_PATH).
// Операции: List (GET /<res>?...), Create (POST /<res>),
// Replace (PUT /<res>/:id), Delete (DELETE /<res>/:id).
package recordstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// maxErrorBody — сколько байт тела ответа сохранять в StatusError.
const maxErrorBody = 512

// StatusError — Record Store ответил не-2xx статусом.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("Record Store %s %s вернул статус %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("Record Store %s %s вернул статус %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsNotFound — true, если ошибка — ответ 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Options — параметры клиента.
type Options struct {
	// BaseURL — адрес Record Store (http://localhost:3000)
	BaseURL string
	// Timeout — таймаут одного HTTP-запроса
	Timeout time.Duration
	// CACertPath — путь к CA-сертификату (пустая строка — стандартный пул)
	CACertPath string
	// HTTPClient — готовый клиент (используется в тестах; перекрывает Timeout и CACertPath)
	HTTPClient *http.Client
}

// Client — HTTP-клиент Record Store.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент Record Store.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("не задан адрес Record Store")
	}
	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("некорректный адрес Record Store %q: %w", opts.BaseURL, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}

		if opts.CACertPath != "" {
			tlsConfig, err := buildTLSConfig(opts.CACertPath)
			if err != nil {
				return nil, fmt.Errorf("загрузка CA-сертификата Record Store: %w", err)
			}
			httpClient.Transport = &http.Transport{
				TLSClientConfig: tlsConfig,
			}
			logger.Info("CA-сертификат Record Store добавлен в пул доверия",
				slog.String("ca_cert", opts.CACertPath),
			)
		}
	}

	return &Client{
		baseURL:    normalizeURL(opts.BaseURL),
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "record_store_client")),
	}, nil
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// BaseURL возвращает адрес Record Store без завершающего слэша.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// List запрашивает коллекцию resource с фильтром query и декодирует ответ в out.
// GET /<resource>?<query>
func (c *Client) List(ctx context.Context, resource string, query url.Values, out any) error {
	reqURL := c.resourceURL(resource, "")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, reqURL, nil, out)
}

// Create создаёт запись. Идентификатор назначает Record Store.
// POST /<resource>
func (c *Client) Create(ctx context.Context, resource string, body, out any) error {
	return c.do(ctx, http.MethodPost, c.resourceURL(resource, ""), body, out)
}

// Replace полностью заменяет запись id.
// PUT /<resource>/:id
func (c *Client) Replace(ctx context.Context, resource, id string, body, out any) error {
	return c.do(ctx, http.MethodPut, c.resourceURL(resource, id), body, out)
}

// Delete удаляет запись id. Тело ответа игнорируется.
// DELETE /<resource>/:id
func (c *Client) Delete(ctx context.Context, resource, id string) error {
	return c.do(ctx, http.MethodDelete, c.resourceURL(resource, id), nil, nil)
}

// do выполняет запрос, проверяет статус и декодирует JSON-ответ в out (если out != nil).
func (c *Client) do(ctx context.Context, method, reqURL string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("сериализация тела %s %s: %w", method, reqURL, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("создание запроса %s %s: %w", method, reqURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:gosec // URL из конфигурации Record Store
	if err != nil {
		return fmt.Errorf("запрос %s %s: %w", method, reqURL, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("Запрос к Record Store выполнен",
		slog.String("method", method),
		slog.String("url", reqURL),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("декодирование ответа %s %s: %w", method, reqURL, err)
	}
	return nil
}

// resourceURL собирает URL коллекции или элемента коллекции.
func (c *Client) resourceURL(resource, id string) string {
	u := c.baseURL + "/" + strings.Trim(resource, "/")
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

// normalizeURL убирает trailing slash из URL.
func normalizeURL(rawURL string) string {
	return strings.TrimRight(rawURL, "/")
}
