package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pos/internal/domain/model"
)

// リモートAPIが返すエラー
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote api %d: %s", e.Status, e.Message)
}

// 販売・仕入れAPIのHTTPクライアント（再試行はしない）
type SalesClient struct {
	baseURL string
	http    *http.Client
}

func NewSalesClient(baseURL string, timeout time.Duration) *SalesClient {
	return &SalesClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *SalesClient) CreateSale(ctx context.Context, req model.SaleRequest) (model.SaleReceipt, error) {
	var out model.SaleReceipt
	if err := c.postJSON(ctx, "/ventas", req, &out); err != nil {
		return model.SaleReceipt{}, fmt.Errorf("create sale: %w", err)
	}
	return out, nil
}

func (c *SalesClient) CreatePurchase(ctx context.Context, req model.PurchaseRequest) (model.PurchaseReceipt, error) {
	var out model.PurchaseReceipt
	if err := c.postJSON(ctx, "/compras", req, &out); err != nil {
		return model.PurchaseReceipt{}, fmt.Errorf("create purchase: %w", err)
	}
	return out, nil
}

func (c *SalesClient) postJSON(ctx context.Context, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}

	//2xx以外はエラー
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil {
			if e.Error != "" {
				msg = e.Error
			} else if e.Message != "" {
				msg = e.Message
			}
		}
		return &StatusError{Status: res.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
