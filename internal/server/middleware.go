package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"tailscale.com/client/tailscale/apitype"
)

type contextKey int

const (
	userIDKey contextKey = iota
	userInfoKey
)

// UserInfo is the identity shown by /api/v1/me.
type UserInfo struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

var devUser = UserInfo{Login: "local", DisplayName: "Local Dev User"}

// APIKeyAuth returns middleware that validates the X-API-Key header.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
				return
			}
			if key != apiKey {
				http.Error(w, `{"error":"invalid API key"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// DevIdentity attributes every request to user 1. Used when the server is
// not behind Tailscale.
func DevIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), userIDKey, 1)
		ctx = context.WithValue(ctx, userInfoKey, devUser)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WhoIsClient resolves a tailnet peer address to its user. Satisfied by
// *local.Client from tsnet.
type WhoIsClient interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// userProvisioner maps a login to a local user id, creating it on first sight.
type userProvisioner interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
}

// TailscaleIdentity resolves the caller through Tailscale WhoIs and maps the
// login to a local user, creating one on first contact.
func TailscaleIdentity(wc WhoIsClient, users userProvisioner, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, err := wc.WhoIs(r.Context(), r.RemoteAddr)
			if err != nil || who.UserProfile == nil {
				log.Warn("whois failed", "remote", r.RemoteAddr, "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown tailnet peer"})
				return
			}
			info := UserInfo{Login: who.UserProfile.LoginName, DisplayName: who.UserProfile.DisplayName}
			uid, err := users.GetOrCreateUser(r.Context(), info.Login, info.DisplayName)
			if err != nil {
				log.Error("resolving user", "login", info.Login, "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolving user"})
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, uid)
			ctx = context.WithValue(ctx, userInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userIDFromContext returns the caller's user id, or 1 when no identity
// middleware ran.
func userIDFromContext(r *http.Request) int {
	if id, ok := r.Context().Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// UserID returns the caller's user id as resolved by the identity
// middleware. Handlers mounted with SetMCP use it to scope their context.
func UserID(r *http.Request) int {
	return userIDFromContext(r)
}

// userInfoFromContext returns the caller's identity, or the dev user.
func userInfoFromContext(r *http.Request) UserInfo {
	if info, ok := r.Context().Value(userInfoKey).(UserInfo); ok {
		return info
	}
	return devUser
}

// mustUserID returns the caller's user id, writing a 401 if it is invalid.
func mustUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	uid := userIDFromContext(r)
	if uid <= 0 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no user identity"})
		return 0, false
	}
	return uid, true
}

// RequestLogging returns middleware that logs each request.
func RequestLogging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
			)
		})
	}
}

// CORS adds permissive CORS headers for local development.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush passes through to the underlying writer so SSE works behind
// RequestLogging.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
