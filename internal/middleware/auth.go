package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/shourk/messaging/backend/internal/auth"
	"github.com/shourk/messaging/backend/internal/model/chat"
	"github.com/shourk/messaging/backend/pkg/utils"
)

type contextKey string

const callerKey contextKey = "caller"

const maxTokenBodyBytes = 1 << 20

// TokenVerifier resolves a raw access token into a caller.
type TokenVerifier interface {
	Verify(raw string) (chat.Caller, error)
}

// WithCaller stores caller on ctx.
func WithCaller(ctx context.Context, caller chat.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFrom returns the caller Authenticate attached to ctx.
func CallerFrom(ctx context.Context) (chat.Caller, bool) {
	caller, ok := ctx.Value(callerKey).(chat.Caller)
	return caller, ok
}

// Authenticate rejects requests without a valid access token. The token is
// read from "Authorization: Bearer" first, then from a JSON body "token" field.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := tokenFromRequest(r)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, err.Error())
				return
			}

			caller, err := verifier.Verify(raw)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// RequireRole lets through only callers holding role.
func RequireRole(role chat.Role, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFrom(r.Context())
			if !ok || caller.Role != role {
				utils.RespondError(w, http.StatusUnauthorized, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func tokenFromRequest(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := BearerToken(header)
		if !ok {
			return "", auth.ErrMalformedToken
		}
		return token, nil
	}

	if r.Body == nil || r.Body == http.NoBody {
		return "", auth.ErrMissingToken
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return "", auth.ErrMissingToken
	}

	// the body is restored so handlers can decode it again
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxTokenBodyBytes))
	_ = r.Body.Close()
	if err != nil {
		return "", auth.ErrMissingToken
	}
	r.Body = io.NopCloser(bytes.NewReader(buf))

	var body struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(buf, &body); err != nil && !errors.Is(err, io.EOF) {
		return "", auth.ErrMissingToken
	}
	if body.Token == "" {
		return "", auth.ErrMissingToken
	}
	return body.Token, nil
}
