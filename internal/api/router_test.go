package api

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbeauvoir/transfer-backend/internal/auth"
	"github.com/rbeauvoir/transfer-backend/internal/config"
	"github.com/rbeauvoir/transfer-backend/internal/moncash"
	"github.com/rbeauvoir/transfer-backend/internal/repository/memory"
	"github.com/rbeauvoir/transfer-backend/internal/secrets"
	"github.com/rbeauvoir/transfer-backend/internal/services"
)

const callbackSecret = "test-callback-secret"

type testEnv struct {
	router  http.Handler
	trx     *memory.TransactionsRepo
	gateway *httptest.Server
	token   string
}

// fakeMoncash serves both the oauth token and payment creation endpoints the
// way the sandbox gateway does.
func fakeMoncash() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "gw-token"})
	})
	mux.HandleFunc("/v1/CreatePayment", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment_token":  map[string]string{"token": "redirect-tok"},
			"transaction_id": "mc-1",
		})
	})
	return mux
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithGateway(t, fakeMoncash())
}

func newTestEnvWithGateway(t *testing.T, gwHandler http.Handler) *testEnv {
	t.Helper()

	gwSrv := httptest.NewServer(gwHandler)
	t.Cleanup(gwSrv.Close)

	cfg := config.Config{
		Env:            "dev",
		RateRPS:        0,
		CheckoutURL:    "/checkout/payment",
		CallbackSecret: callbackSecret,
	}

	tm := auth.NewTokenManager("access-secret", "refresh-secret", time.Hour, 24*time.Hour)
	trx := memory.NewTransactionsRepo()
	gw := moncash.NewClient(gwSrv.URL, gwSrv.URL, secrets.MoncashCredentials{ClientID: "id", ClientSecret: "secret"}, 5*time.Second)

	userSvc := services.NewUserService(memory.NewUsersRepo(), tm)
	paySvc := services.NewPaymentService(trx, memory.NewAuditLogsRepo(), gw, nil, nil, cfg.CheckoutURL, 24*time.Hour)

	access, _, _, err := tm.GeneratePair("user-1", "user")
	require.NoError(t, err)

	return &testEnv{
		router:  NewRouter(cfg, tm, userSvc, paySvc),
		trx:     trx,
		gateway: gwSrv,
		token:   access,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) authed() map[string]string {
	return map[string]string{"Authorization": "Bearer " + e.token}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCreatePaymentRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/create-payment",
		map[string]any{"amount": 50, "currency": "USD", "paymentMethod": "paypal"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreatePaymentValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		wantMsg string
	}{
		{"amount missing", map[string]any{"currency": "USD", "paymentMethod": "paypal"}, "Invalid amount"},
		{"amount zero", map[string]any{"amount": 0, "currency": "USD", "paymentMethod": "paypal"}, "Invalid amount"},
		{"amount non-numeric string", map[string]any{"amount": "abc", "currency": "USD", "paymentMethod": "paypal"}, "Invalid amount"},
		{"bad currency", map[string]any{"amount": 50, "currency": "EUR", "paymentMethod": "paypal"}, "Invalid currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(t, http.MethodPost, "/create-payment", tt.body, env.authed())
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, decode(t, rec)["error"])
			assert.Zero(t, env.trx.Len())
		})
	}
}

func TestCreatePaymentEnvelope(t *testing.T) {
	env := newTestEnv(t)

	// string amounts are accepted alongside numbers
	rec := env.do(t, http.MethodPost, "/create-payment",
		map[string]any{"amount": "120.50", "currency": "HTG", "paymentMethod": "moncash"}, env.authed())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.Equal(t, true, out["success"])

	tx := out["transaction"].(map[string]any)
	assert.Equal(t, "pending", tx["status"])
	assert.Equal(t, "user-1", tx["user_id"])
	assert.Equal(t, 120.50, tx["amount"])

	details := tx["payment_details"].(map[string]any)
	assert.Equal(t, "redirect-tok", details["moncash_token"])
	assert.Equal(t, "mc-1", details["moncash_transaction_id"])

	steps := out["nextSteps"].(map[string]any)
	assert.Equal(t, "redirect", steps["action"])
	assert.Equal(t, "moncash", steps["paymentMethod"])
	assert.Contains(t, steps["redirectUrl"], "token=redirect-tok")
}

func TestCreatePaymentUnknownMethodRedirect(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/create-payment",
		map[string]any{"amount": 20, "currency": "USD", "paymentMethod": "bank-transfer"}, env.authed())
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	txID := out["transaction"].(map[string]any)["id"].(string)
	steps := out["nextSteps"].(map[string]any)
	assert.Equal(t, "/transfer/confirm/"+txID, steps["redirectUrl"])
}

func TestCreatePaymentProviderFailures(t *testing.T) {
	body := map[string]any{"amount": 100, "currency": "HTG", "paymentMethod": "moncash"}

	t.Run("token rejection maps to bad gateway", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid credentials"})
		})
		env := newTestEnvWithGateway(t, mux)

		rec := env.do(t, http.MethodPost, "/create-payment", body, env.authed())
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, "invalid credentials", out["error"])
		assert.Equal(t, "provider_auth_failed", out["code"])
		assert.Zero(t, env.trx.Len())
	})

	t.Run("payment rejection forwards the provider status", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "gw-token"})
		})
		mux.HandleFunc("/v1/CreatePayment", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "amount below minimum"})
		})
		env := newTestEnvWithGateway(t, mux)

		rec := env.do(t, http.MethodPost, "/create-payment", body, env.authed())
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, "MonCash payment creation failed", out["error"])
		assert.Contains(t, out["details"], "amount below minimum")
		assert.Zero(t, env.trx.Len())
	})

	t.Run("malformed success body maps to server error", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "gw-token"})
		})
		mux.HandleFunc("/v1/CreatePayment", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"transaction_id": "mc-1"})
		})
		env := newTestEnvWithGateway(t, mux)

		rec := env.do(t, http.MethodPost, "/create-payment", body, env.authed())
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Invalid MonCash response structure", decode(t, rec)["error"])
		assert.Zero(t, env.trx.Len())
	})
}

func TestCreatePaymentIdempotencyHeader(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"amount": 10, "currency": "USD", "paymentMethod": "paypal"}
	headers := env.authed()
	headers["Idempotency-Key"] = "retry-9"

	first := env.do(t, http.MethodPost, "/create-payment", body, headers)
	require.Equal(t, http.StatusOK, first.Code)
	second := env.do(t, http.MethodPost, "/create-payment", body, headers)
	require.Equal(t, http.StatusOK, second.Code)

	id1 := decode(t, first)["transaction"].(map[string]any)["id"]
	id2 := decode(t, second)["transaction"].(map[string]any)["id"]
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, env.trx.Len())
}

func TestStatusLookup(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/create-payment",
		map[string]any{"amount": 42, "currency": "USD", "paymentMethod": "credit-card"}, env.authed())
	require.Equal(t, http.StatusOK, created.Code)
	tx := decode(t, created)["transaction"].(map[string]any)

	rec := env.do(t, http.MethodGet, "/status/"+tx["id"].(string), nil, env.authed())
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)["transaction"].(map[string]any)
	assert.Equal(t, tx["id"], got["id"])
	assert.Equal(t, tx["order_id"], got["order_id"])
	assert.Equal(t, tx["order_id"], got["payment_details"].(map[string]any)["paypal_order_id"])

	missing := env.do(t, http.MethodGet, "/status/00000000-0000-0000-0000-000000000000", nil, env.authed())
	assert.Equal(t, http.StatusNotFound, missing.Code)
	assert.Equal(t, "Transaction not found", decode(t, missing)["error"])
}

func signCallback(body []byte, ts string) string {
	mac := hmac.New(sha256.New, []byte(callbackSecret))
	mac.Write(body)
	mac.Write([]byte("." + ts))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestMoncashCallback(t *testing.T) {
	env := newTestEnv(t)

	created := env.do(t, http.MethodPost, "/create-payment",
		map[string]any{"amount": 10, "currency": "HTG", "paymentMethod": "moncash"}, env.authed())
	require.Equal(t, http.StatusOK, created.Code)
	orderID := decode(t, created)["transaction"].(map[string]any)["order_id"].(string)

	payload, err := json.Marshal(map[string]string{"orderId": orderID, "status": "completed"})
	require.NoError(t, err)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	t.Run("rejects missing signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/callback/moncash", bytes.NewReader(payload))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("rejects bad signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/callback/moncash", bytes.NewReader(payload))
		req.Header.Set("X-Timestamp", ts)
		req.Header.Set("X-Signature", "deadbeef")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("settles the transaction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/callback/moncash", bytes.NewReader(payload))
		req.Header.Set("X-Timestamp", ts)
		req.Header.Set("X-Signature", signCallback(payload, ts))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "completed", decode(t, rec)["transaction"].(map[string]any)["status"])
	})

	t.Run("second settle conflicts", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/callback/moncash", bytes.NewReader(payload))
		req.Header.Set("X-Timestamp", ts)
		req.Header.Set("X-Signature", signCallback(payload, ts))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestListTransactions(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/create-payment",
			map[string]any{"amount": 5, "currency": "USD", "paymentMethod": "paypal"}, env.authed())
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/transactions?limit=2", nil, env.authed())
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Len(t, out["transactions"], 2)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	reg := env.do(t, http.MethodPost, "/auth/register",
		map[string]string{"username": "marie", "email": "marie@example.com", "password": "s3cret-pass"}, nil)
	require.Equal(t, http.StatusCreated, reg.Code)

	login := env.do(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "marie@example.com", "password": "s3cret-pass"}, nil)
	require.Equal(t, http.StatusOK, login.Code)
	tokens := decode(t, login)
	assert.NotEmpty(t, tokens["access_token"])
	assert.NotEmpty(t, tokens["refresh_token"])

	bad := env.do(t, http.MethodPost, "/auth/login",
		map[string]string{"email": "marie@example.com", "password": "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	refresh := env.do(t, http.MethodPost, "/auth/refresh",
		map[string]string{"refresh_token": tokens["refresh_token"].(string)}, nil)
	assert.Equal(t, http.StatusOK, refresh.Code)

	// the issued token works against the payment surface
	pay := env.do(t, http.MethodPost, "/create-payment",
		map[string]any{"amount": 5, "currency": "USD", "paymentMethod": "paypal"},
		map[string]string{"Authorization": "Bearer " + tokens["access_token"].(string)})
	assert.Equal(t, http.StatusOK, pay.Code)
}
