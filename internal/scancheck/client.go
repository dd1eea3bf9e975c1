// Package scancheck предоставляет клиент внешнего сервиса проверки
// лотерейных штрих-кодов на кражу и подделку.
package scancheck

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Client инкапсулирует HTTP-взаимодействие с сервисом проверки штрих-кодов.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Result описывает вердикт сервиса проверки по одному штрих-коду.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

type verifyRequest struct {
	Serial         string `json:"serial"`
	ScanDurationMS int64  `json:"scan_duration_ms,omitempty"`
}

// NewClient создаёт клиент проверки штрих-кодов по указанному адресу.
// Сетевые сбои и ответы 5xx прозрачно повторяются с экспоненциальной паузой.
func NewClient(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: rc.StandardClient(),
	}
}

// Verify запрашивает вердикт по отсканированному штрих-коду.
// scanDuration задаёт длительность физического сканирования, ноль допустим.
func (c *Client) Verify(ctx context.Context, serial string, scanDuration time.Duration) (*Result, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("scan check client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(verifyRequest{
		Serial:         serial,
		ScanDurationMS: scanDuration.Milliseconds(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	url := base + "/api/scan/verify"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}
