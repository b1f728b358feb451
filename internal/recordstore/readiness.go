package recordstore

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// readinessTimeout — таймаут проверки готовности.
const readinessTimeout = 5 * time.Second

// ReadinessChecker проверяет, что коллекция Record Store отвечает на чтение.
type ReadinessChecker struct {
	client   *Client
	resource string
}

// NewReadinessChecker создаёт проверку готовности для коллекции resource.
func NewReadinessChecker(client *Client, resource string) *ReadinessChecker {
	return &ReadinessChecker{client: client, resource: resource}
}

// CheckReady запрашивает одну запись коллекции (json-server: _limit=1).
func (c *ReadinessChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()

	var probe []json.RawMessage
	if err := c.client.List(ctx, c.resource, url.Values{"_limit": []string{"1"}}, &probe); err != nil {
		return "fail", "Record Store недоступен: " + err.Error()
	}
	return "ok", "Record Store доступен"
}
