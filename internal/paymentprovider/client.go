// Package paymentprovider содержит клиент платёжного провайдера для
// подтверждения платежей перед начислением доступа.
package paymentprovider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrPaymentNotConfirmed — провайдер не подтвердил платёж.
var ErrPaymentNotConfirmed = errors.New("payment not confirmed")

// PaymentVerifier подтверждает, что платёж прошёл на указанную сумму.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, paymentID string, amount float64) error
}

// Client реализует PaymentVerifier поверх HTTP API провайдера.
type Client struct {
	shopID     string
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

// NewClient создаёт новый клиент платёжного провайдера.
func NewClient(shopID, secretKey, apiURL string) *Client {
	return &Client{
		shopID:     shopID,
		secretKey:  secretKey,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// paymentStatus — ответ провайдера по одному платежу.
type paymentStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

// VerifyPayment запрашивает платёж у провайдера и сверяет статус и сумму.
func (c *Client) VerifyPayment(ctx context.Context, paymentID string, amount float64) error {
	const op = "paymentprovider.VerifyPayment"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/payments/"+paymentID, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	auth := base64.StdEncoding.EncodeToString([]byte(c.shopID + ":" + c.secretKey))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status: %s", op, resp.Status)
	}

	var status paymentStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status.Status != "succeeded" {
		return fmt.Errorf("%s: %w: status %s", op, ErrPaymentNotConfirmed, status.Status)
	}
	if status.Amount.Value != fmt.Sprintf("%.2f", amount) {
		return fmt.Errorf("%s: %w: amount mismatch", op, ErrPaymentNotConfirmed)
	}
	return nil
}
