package handler

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tableside/internal/domain/auth"
)

const apiKeyHeader = "X-API-Key"

var (
	errUnauthorized = errors.New("unauthorized")
	errForbidden    = errors.New("forbidden")
)

// requireAPIKey authenticates staff requests by the HMAC-SHA256 of their API
// key and checks that the key carries scope.
func (h *Handler) requireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(apiKeyHeader)
			if key == "" {
				if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					key = strings.TrimSpace(v)
				}
			}
			if key == "" {
				writeError(w, r, errUnauthorized)
				return
			}

			info, err := h.authenticate(r, key)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !info.HasScope(scope) {
				zctx.From(r.Context()).Info("API key lacks scope",
					zap.String("key_id", info.ID),
					zap.String("scope", scope),
				)
				writeError(w, r, errForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), info)))
		})
	}
}

func (h *Handler) authenticate(r *http.Request, key string) (*auth.APIKeyInfo, error) {
	hash := auth.HashKey(h.pepper, key)

	info, err := h.APIKeys.FindByHash(r.Context(), hex.EncodeToString(hash))
	if errors.Is(err, auth.ErrNotFound) {
		return nil, errUnauthorized
	}
	if err != nil {
		return nil, errors.Wrap(err, "find api key")
	}

	// The lookup matched on the hex string; compare the raw bytes in
	// constant time as well.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, errUnauthorized
	}
	return info, nil
}
