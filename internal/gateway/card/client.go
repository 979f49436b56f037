// Package card проверяет карточные платежи через API в стиле Paystack.
package card

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/orderdesk-backend/internal/gateway"
)

const gatewayName = "card"

// SignatureHeader - заголовок с HMAC-SHA512 подписью webhook.
const SignatureHeader = "x-paystack-signature"

// Config - параметры доступа к карточному шлюзу.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client проверяет транзакции и подписи webhook.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient создаёт экземпляр клиента.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		secretKey: cfg.SecretKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Configured сообщает, задан ли секретный ключ.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.secretKey != ""
}

type transaction struct {
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	Amount          int64           `json:"amount"`
	GatewayResponse string          `json:"gateway_response"`
	Channel         string          `json:"channel"`
	PaidAt          string          `json:"paid_at"`
	Metadata        json.RawMessage `json:"metadata"`
}

type verifyResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    transaction `json:"data"`
}

type webhookEvent struct {
	Event string      `json:"event"`
	Data  transaction `json:"data"`
}

// Verify запрашивает у шлюза состояние транзакции по reference.
func (c *Client) Verify(ctx context.Context, reference string) (*gateway.PaymentOutcome, error) {
	if !c.Configured() {
		return nil, gateway.ErrNotConfigured
	}

	endpoint := c.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("card: verify: %w", err)
	}
	defer resp.Body.Close()

	var body verifyResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode >= 400 {
		return nil, &gateway.APIError{Gateway: gatewayName, HTTPStatus: resp.StatusCode, Message: body.Message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("card: разбор ответа verify: %w", decodeErr)
	}
	if !body.Status {
		return nil, &gateway.APIError{Gateway: gatewayName, HTTPStatus: resp.StatusCode, Message: body.Message}
	}

	if body.Data.Reference == "" {
		body.Data.Reference = reference
	}
	return toOutcome(body.Data), nil
}

// VerifySignature сверяет hex(HMAC-SHA512(body, secret)) с заголовком.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c.secretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// ParseWebhook разбирает событие шлюза. Интересны только charge.success и charge.failed.
func (c *Client) ParseWebhook(body []byte) (*gateway.PaymentOutcome, error) {
	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("card: не удалось разобрать webhook: %w", err)
	}
	if event.Event != "charge.success" && event.Event != "charge.failed" {
		return nil, gateway.ErrIgnoredEvent
	}
	if event.Data.Reference == "" {
		return nil, fmt.Errorf("card: webhook без reference")
	}
	return toOutcome(event.Data), nil
}

func toOutcome(tx transaction) *gateway.PaymentOutcome {
	amount, _ := decimal.New(tx.Amount, -2).Float64()
	outcome := &gateway.PaymentOutcome{
		Reference:     tx.Reference,
		Amount:        amount,
		ReceiptNumber: tx.Reference,
		Metadata:      metadata(tx.Metadata),
	}
	if tx.Channel != "" {
		outcome.Metadata["channel"] = tx.Channel
	}

	switch tx.Status {
	case "success":
		outcome.State = gateway.StateSucceeded
	case "failed", "abandoned", "reversed":
		outcome.State = gateway.StateFailed
		outcome.FailureReason = tx.GatewayResponse
		if outcome.FailureReason == "" {
			outcome.FailureReason = "Card payment " + tx.Status
		}
	default:
		outcome.State = gateway.StatePending
	}
	return outcome
}

// metadata оставляет только строковые поля metadata транзакции.
func metadata(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 {
		return out
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out
	}
	for k, v := range fields {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
