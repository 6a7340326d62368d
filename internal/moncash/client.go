package moncash

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rbeauvoir/transfer-backend/internal/secrets"
)

const redirectPath = "/Moncash-middleware/Payment/Redirect"

// AuthError means the token endpoint rejected the client credentials or was
// unreachable. Non-retryable within a request.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return "moncash auth: " + e.Message }

// RequestError is a non-2xx answer from the payment-creation endpoint. The
// provider's own status code and body are preserved for the caller.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("moncash request failed: status %d", e.StatusCode)
}

// ShapeError is a 2xx answer missing the fields the contract promises. It is
// an integration mismatch, not a provider-reported failure.
type ShapeError struct{}

func (e *ShapeError) Error() string { return "Invalid MonCash response structure" }

// Payment is the provider-side result of a successful CreatePayment call.
type Payment struct {
	Token         string
	TransactionID string
}

// Client talks to the MonCash gateway: an OAuth2 client-credentials token
// request followed by payment creation. Tokens are fetched fresh per payment,
// never cached.
type Client struct {
	apiBase    string
	webBase    string
	creds      secrets.MoncashCredentials
	httpClient *http.Client
}

func NewClient(apiBase, webBase string, creds secrets.MoncashCredentials, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiBase:    strings.TrimRight(apiBase, "/"),
		webBase:    strings.TrimRight(webBase, "/"),
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Error       string `json:"error"`
	Message     string `json:"message"`
}

// Token performs the client-credentials grant and returns the bearer token.
func (c *Client) Token(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "read,write")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.creds.ClientID + ":" + c.creds.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Message: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var tr tokenResponse
	_ = json.Unmarshal(body, &tr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := tr.Error
		if msg == "" {
			msg = tr.Message
		}
		if msg == "" {
			msg = "MonCash authentication failed"
		}
		return "", &AuthError{Message: msg}
	}
	if tr.AccessToken == "" {
		return "", &AuthError{Message: "MonCash authentication failed"}
	}
	return tr.AccessToken, nil
}

type createPaymentResponse struct {
	PaymentToken struct {
		Token string `json:"token"`
	} `json:"payment_token"`
	TransactionID string `json:"transaction_id"`
}

// CreatePayment asks the gateway for a payment instance bound to an
// amount/order-id pair.
func (c *Client) CreatePayment(ctx context.Context, token string, amount float64, orderID string) (*Payment, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":  amount,
		"orderId": orderID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/v1/CreatePayment", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{StatusCode: http.StatusBadGateway, Body: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var cp createPaymentResponse
	if err := json.Unmarshal(body, &cp); err != nil {
		return nil, &ShapeError{}
	}
	if cp.PaymentToken.Token == "" {
		return nil, &ShapeError{}
	}
	return &Payment{Token: cp.PaymentToken.Token, TransactionID: cp.TransactionID}, nil
}

// RedirectURL builds the hosted payment page URL for a payment token.
func (c *Client) RedirectURL(token string) string {
	return c.webBase + redirectPath + "?token=" + url.QueryEscape(token)
}
