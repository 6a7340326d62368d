package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rbeauvoir/transfer-backend/internal/api/httpx"
)

type SigConfig struct {
	Secret        string
	MaxAgeSeconds int64
}

// Signature verifies gateway callbacks: HMAC-SHA256 over body + "." + timestamp,
// carried in X-Signature / X-Timestamp. Stale timestamps are rejected to block
// replays.
func Signature(cfg SigConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ts := r.Header.Get("X-Timestamp")
			sig := r.Header.Get("X-Signature")
			if ts == "" || sig == "" {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing signature headers", nil)
				return
			}

			tsInt, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid timestamp", nil)
				return
			}
			if cfg.MaxAgeSeconds > 0 && time.Now().Unix()-tsInt > cfg.MaxAgeSeconds {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "signature expired", nil)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, "bad_request", "read body error", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			mac := hmac.New(sha256.New, []byte(cfg.Secret))
			mac.Write(body)
			mac.Write([]byte("." + ts))
			expected := hex.EncodeToString(mac.Sum(nil))
			if !hmac.Equal([]byte(expected), []byte(sig)) {
				httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid signature", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
