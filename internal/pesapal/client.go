// Package pesapal はPesapal v3 APIのHTTPクライアントを提供する。
// トークン認証、IPN URL登録、注文送信、取引ステータス照会を含む。
package pesapal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	// tokenLifetime はPesapalが発行するBearerトークンの有効期間。
	// 公称5分のため、余裕をもって4分でキャッシュを破棄する。
	tokenLifetime = 4 * time.Minute
)

// Config はPesapalクライアントの設定。
type Config struct {
	ConsumerKey    string
	ConsumerSecret string

	// BaseURL はAPIのベースURL（サンドボックスまたは本番）。
	// テスト用にオーバーライド可能。
	BaseURL string
}

// Client はPesapal v3 APIのクライアント。
// Bearerトークンをキャッシュし、期限切れ時に自動再取得する。
type Client struct {
	config     Config
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient はClientを生成する。
// httpClientにはSSRF防止機能付きのクライアントを渡すことを想定している。
func NewClient(config Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
	}
}

// tokenResponse はAuth/RequestTokenのレスポンス。
type tokenResponse struct {
	Token      string `json:"token"`
	ExpiryDate string `json:"expiryDate"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// IPNRegistrationResult はURLSetup/RegisterIPNのレスポンス。
type IPNRegistrationResult struct {
	URL              string `json:"url"`
	IPNID            string `json:"ipn_id"`
	NotificationType string `json:"ipn_notification_type_description"`
	Status           string `json:"status"`
}

// OrderRequest はTransactions/SubmitOrderRequestのリクエスト。
type OrderRequest struct {
	ID             string         `json:"id"`
	Currency       string         `json:"currency"`
	Amount         float64        `json:"amount"`
	Description    string         `json:"description"`
	CallbackURL    string         `json:"callback_url"`
	NotificationID string         `json:"notification_id"`
	BillingAddress BillingAddress `json:"billing_address"`
}

// BillingAddress は注文の請求先情報。
type BillingAddress struct {
	EmailAddress string `json:"email_address"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

// OrderResult はSubmitOrderRequestのレスポンス。
type OrderResult struct {
	OrderTrackingID   string `json:"order_tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
	Status            string `json:"status"`
}

// TransactionStatus はGetTransactionStatusのレスポンス。
// StatusCodeは 0=INVALID, 1=COMPLETED, 2=FAILED, 3=REVERSED。
type TransactionStatus struct {
	PaymentMethod            string  `json:"payment_method"`
	Amount                   float64 `json:"amount"`
	ConfirmationCode         string  `json:"confirmation_code"`
	PaymentStatusDescription string  `json:"payment_status_description"`
	MerchantReference        string  `json:"merchant_reference"`
	Currency                 string  `json:"currency"`
	StatusCode               int     `json:"status_code"`
}

// 取引ステータスコード。
const (
	StatusCodeInvalid   = 0
	StatusCodeCompleted = 1
	StatusCodeFailed    = 2
	StatusCodeReversed  = 3
)

// RegisterIPN はIPNコールバックURLをゲートウェイに登録する。
// 登録済みURLの再登録は同じipn_idを返すため冪等。
func (c *Client) RegisterIPN(ctx context.Context, ipnURL string) (*IPNRegistrationResult, error) {
	body := map[string]string{
		"url":                   ipnURL,
		"ipn_notification_type": "GET",
	}

	var result IPNRegistrationResult
	if err := c.postJSON(ctx, "/api/URLSetup/RegisterIPN", body, &result); err != nil {
		return nil, fmt.Errorf("failed to register IPN: %w", err)
	}

	if result.IPNID == "" {
		return nil, fmt.Errorf("empty ipn_id in register IPN response")
	}

	return &result, nil
}

// SubmitOrder は注文をゲートウェイに送信し、決済ページへのリダイレクトURLを取得する。
func (c *Client) SubmitOrder(ctx context.Context, order *OrderRequest) (*OrderResult, error) {
	var result OrderResult
	if err := c.postJSON(ctx, "/api/Transactions/SubmitOrderRequest", order, &result); err != nil {
		return nil, fmt.Errorf("failed to submit order: %w", err)
	}

	if result.OrderTrackingID == "" {
		return nil, fmt.Errorf("empty order_tracking_id in submit order response")
	}

	return &result, nil
}

// GetTransactionStatus は注文追跡IDで取引ステータスを照会する。
// IPN通知の受信時に必ずこの照会で真のステータスを確認する
// （通知自体は認証されていないため、通知内容を信用しない）。
func (c *Client) GetTransactionStatus(ctx context.Context, orderTrackingID string) (*TransactionStatus, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.config.BaseURL + "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(orderTrackingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("transaction status query failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var status TransactionStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	return &status, nil
}

// getToken はキャッシュ済みBearerトークンを返す。期限切れの場合は再取得する。
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	body := map[string]string{
		"consumer_key":    c.config.ConsumerKey,
		"consumer_secret": c.config.ConsumerSecret,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/Auth/RequestToken", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}

	if tokenResp.Token == "" {
		return "", fmt.Errorf("empty token in response: %s", tokenResp.Message)
	}

	c.token = tokenResp.Token
	c.tokenExpiry = time.Now().Add(tokenLifetime)

	return c.token, nil
}

// postJSON はBearerトークン付きでJSONをPOSTし、レスポンスをデコードする。
func (c *Client) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	token, err := c.getToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request to %s failed with status %d: %s", path, resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}
