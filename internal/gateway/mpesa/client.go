// Package mpesa реализует клиент Safaricom Daraja для оплаты через STK push.
package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ignatzorin/orderdesk-backend/internal/gateway"
)

const (
	gatewayName = "mpesa"

	// Коды результата Daraja.
	resultSuccess   = "0"
	resultCancelled = "1032"
	resultTimeout   = "1037"

	// errorCode запроса статуса, пока транзакция ещё обрабатывается.
	stillProcessing = "500.001.1001"
)

// Config - параметры доступа к Daraja.
type Config struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// Client вызывает OAuth, STK push и запрос статуса Daraja.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient создаёт экземпляр клиента.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now: time.Now,
	}
}

// Configured сообщает, заданы ли все учётные данные.
func (c *Client) Configured() bool {
	return c.cfg.BaseURL != "" && c.cfg.ConsumerKey != "" && c.cfg.ConsumerSecret != "" &&
		c.cfg.ShortCode != "" && c.cfg.Passkey != "" && c.cfg.CallbackURL != ""
}

type pushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type pushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// InitiatePush отправляет клиенту запрос на оплату на телефон.
func (c *Client) InitiatePush(ctx context.Context, phone string, amount float64, accountRef, description string) (*gateway.PushResult, error) {
	if !c.Configured() {
		return nil, gateway.ErrNotConfigured
	}

	msisdn, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	// Daraja принимает только целые суммы.
	whole := decimal.NewFromFloat(amount).Ceil().IntPart()
	if whole <= 0 {
		return nil, fmt.Errorf("mpesa: некорректная сумма %v", amount)
	}

	timestamp := c.now().Format("20060102150405")
	if description == "" {
		description = "Order payment"
	}

	payload := pushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            whole,
		PartyA:            msisdn,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       msisdn,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  truncate(accountRef, 12),
		TransactionDesc:   truncate(description, 13),
	}

	var resp pushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", payload, &resp); err != nil {
		return nil, err
	}
	if resp.ResponseCode != resultSuccess {
		return nil, &gateway.APIError{Gateway: gatewayName, HTTPStatus: http.StatusOK, Code: resp.ResponseCode, Message: resp.ResponseDescription}
	}

	return &gateway.PushResult{
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

type queryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type queryResponse struct {
	ResponseCode      string     `json:"ResponseCode"`
	CheckoutRequestID string     `json:"CheckoutRequestID"`
	ResultCode        resultCode `json:"ResultCode"`
	ResultDesc        string     `json:"ResultDesc"`
}

// QueryStatus опрашивает Daraja о судьбе STK push.
// Пока транзакция обрабатывается, возвращается исход в состоянии pending.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*gateway.PaymentOutcome, error) {
	if !c.Configured() {
		return nil, gateway.ErrNotConfigured
	}

	timestamp := c.now().Format("20060102150405")
	payload := queryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var resp queryResponse
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", payload, &resp); err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Code == stillProcessing {
			return &gateway.PaymentOutcome{Reference: checkoutRequestID, State: gateway.StatePending}, nil
		}
		return nil, err
	}

	return outcomeFromResult(checkoutRequestID, string(resp.ResultCode), resp.ResultDesc), nil
}

type callbackEnvelope struct {
	Body struct {
		StkCallback *struct {
			MerchantRequestID string     `json:"MerchantRequestID"`
			CheckoutRequestID string     `json:"CheckoutRequestID"`
			ResultCode        resultCode `json:"ResultCode"`
			ResultDesc        string     `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback разбирает тело callback Daraja.
func (c *Client) ParseCallback(body []byte) (*gateway.PaymentOutcome, error) {
	return ParseCallback(body)
}

// ParseCallback разбирает тело callback Daraja.
func ParseCallback(body []byte) (*gateway.PaymentOutcome, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("mpesa: не удалось разобрать callback: %w", err)
	}
	cb := env.Body.StkCallback
	if cb == nil || cb.CheckoutRequestID == "" {
		return nil, errors.New("mpesa: callback без CheckoutRequestID")
	}

	outcome := outcomeFromResult(cb.CheckoutRequestID, string(cb.ResultCode), cb.ResultDesc)
	outcome.Metadata = map[string]string{"merchant_request_id": cb.MerchantRequestID}

	for _, item := range cb.CallbackMetadata.Item {
		value := stringify(item.Value)
		switch item.Name {
		case "Amount":
			outcome.Amount, _ = strconv.ParseFloat(value, 64)
		case "MpesaReceiptNumber":
			outcome.ReceiptNumber = value
		case "PhoneNumber":
			outcome.Phone = value
		case "TransactionDate":
			outcome.Metadata["transaction_date"] = value
		}
	}

	return outcome, nil
}

// Password = base64(shortcode + passkey + timestamp).
func Password(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// NormalizePhone приводит кенийский номер к формату 2547XXXXXXXX.
func NormalizePhone(phone string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	switch {
	case strings.HasPrefix(digits, "254") && len(digits) == 12:
	case strings.HasPrefix(digits, "0") && len(digits) == 10:
		digits = "254" + digits[1:]
	case (strings.HasPrefix(digits, "7") || strings.HasPrefix(digits, "1")) && len(digits) == 9:
		digits = "254" + digits
	default:
		return "", fmt.Errorf("mpesa: некорректный номер телефона %q", phone)
	}
	return digits, nil
}

func outcomeFromResult(reference, code, desc string) *gateway.PaymentOutcome {
	outcome := &gateway.PaymentOutcome{Reference: reference}
	switch code {
	case resultSuccess:
		outcome.State = gateway.StateSucceeded
	case resultCancelled:
		outcome.State = gateway.StateFailed
		outcome.FailureReason = "Payment was cancelled on the phone"
	case resultTimeout:
		outcome.State = gateway.StateFailed
		outcome.FailureReason = "The phone could not be reached in time"
	default:
		outcome.State = gateway.StateFailed
		outcome.FailureReason = desc
	}
	if outcome.FailureReason == "" && outcome.State == gateway.StateFailed {
		outcome.FailureReason = "Payment failed with result code " + code
	}
	return outcome
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// accessToken возвращает OAuth токен, обновляя его за минуту до истечения.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa: запрос токена: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &gateway.APIError{Gateway: gatewayName, HTTPStatus: resp.StatusCode, Message: "oauth rejected"}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("mpesa: разбор токена: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("mpesa: пустой токен")
	}

	ttl, err := strconv.Atoi(tok.ExpiresIn)
	if err != nil || ttl <= 0 {
		ttl = 3599
	}
	c.token = tok.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(ttl)*time.Second - time.Minute)
	return c.token, nil
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mpesa: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errBody errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &gateway.APIError{Gateway: gatewayName, HTTPStatus: resp.StatusCode, Code: errBody.ErrorCode, Message: errBody.ErrorMessage}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mpesa: разбор ответа %s: %w", path, err)
	}
	return nil
}

// resultCode принимает ResultCode и строкой (query), и числом (callback).
type resultCode string

func (r *resultCode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = resultCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = resultCode(n.String())
	return nil
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
