package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rbeauvoir/transfer-backend/internal/api/httpx"
	"github.com/rbeauvoir/transfer-backend/internal/middleware"
	"github.com/rbeauvoir/transfer-backend/internal/models"
	"github.com/rbeauvoir/transfer-backend/internal/moncash"
	repo "github.com/rbeauvoir/transfer-backend/internal/repository"
	"github.com/rbeauvoir/transfer-backend/internal/services"
)

type PaymentHandler struct {
	Svc *services.PaymentService
}

func NewPaymentHandler(svc *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{Svc: svc}
}

// jsonAmount accepts the amount as either a JSON string or a JSON number; the
// orchestrator does the actual numeric validation.
type jsonAmount string

func (a *jsonAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = jsonAmount(s)
		return nil
	}
	*a = jsonAmount(b)
	return nil
}

type createPaymentRequest struct {
	Amount        jsonAmount `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"paymentMethod"`
}

type nextSteps struct {
	Action        string `json:"action"`
	PaymentMethod string `json:"paymentMethod"`
	RedirectURL   string `json:"redirectUrl"`
}

type createPaymentResponse struct {
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	Transaction models.Transaction `json:"transaction"`
	NextSteps   nextSteps          `json:"nextSteps"`
}

// CreatePayment handles POST /create-payment.
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}

	res, err := h.Svc.CreatePayment(r.Context(), userID, services.CreatePaymentInput{
		Amount:         string(req.Amount),
		Currency:       req.Currency,
		PaymentMethod:  req.PaymentMethod,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writePaymentError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, createPaymentResponse{
		Success:     true,
		Message:     res.Message,
		Transaction: res.Transaction,
		NextSteps: nextSteps{
			Action:        "redirect",
			PaymentMethod: string(res.Transaction.PaymentMethod),
			RedirectURL:   res.RedirectURL,
		},
	})
}

type transactionResponse struct {
	Success     bool               `json:"success"`
	Transaction models.Transaction `json:"transaction"`
}

// GetStatus handles GET /status/{id}.
func (h *PaymentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tx, err := h.Svc.GetPaymentStatus(r.Context(), id)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, transactionResponse{Success: true, Transaction: tx})
}

// ListTransactions handles GET /transactions for the authenticated caller.
func (h *PaymentHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
		return
	}

	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	txs, err := h.Svc.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		writePaymentError(w, err)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "transactions": txs})
}

type callbackRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// Callback handles POST /callback/moncash, the signed gateway notification
// that settles a pending transaction.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body", nil)
		return
	}

	tx, err := h.Svc.HandleCallback(r.Context(), req.OrderID, models.TransactionStatus(req.Status))
	if err != nil {
		writePaymentError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, transactionResponse{Success: true, Transaction: tx})
}

// writePaymentError maps the error taxonomy onto HTTP statuses: validation
// 400, provider auth 502, provider-reported failures keep the provider's
// status, contract mismatches 500, unknown ids 404.
func writePaymentError(w http.ResponseWriter, err error) {
	var (
		validation *services.ValidationError
		authErr    *moncash.AuthError
		reqErr     *moncash.RequestError
		shapeErr   *moncash.ShapeError
	)
	switch {
	case errors.As(err, &validation):
		httpx.WriteError(w, http.StatusBadRequest, "validation_failed", validation.Message, nil)
	case errors.As(err, &authErr):
		httpx.WriteError(w, http.StatusBadGateway, "provider_auth_failed", authErr.Message, nil)
	case errors.As(err, &reqErr):
		httpx.WriteError(w, reqErr.StatusCode, "provider_request_failed", "MonCash payment creation failed", reqErr.Body)
	case errors.As(err, &shapeErr):
		httpx.WriteError(w, http.StatusInternalServerError, "provider_response_invalid", "Invalid MonCash response structure", nil)
	case errors.Is(err, repo.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "Transaction not found", nil)
	case errors.Is(err, repo.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "status_conflict", "Transaction already settled", nil)
	default:
		slog.Error("payment handler", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}
}
