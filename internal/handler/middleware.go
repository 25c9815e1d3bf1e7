package handler

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

const contentSecurityPolicy = "default-src 'self'; " +
	"img-src 'self' data: https:; " +
	"script-src 'self' 'unsafe-inline' https://cdn.tailwindcss.com https://unpkg.com; " +
	"style-src 'self' 'unsafe-inline'; " +
	"connect-src 'self'; " +
	"font-src 'self' data:; " +
	"object-src 'none';"

// SecurityHeaders adds security response headers. Headers already set by the
// wrapped handler are left alone. HSTS is only sent outside debug mode.
func SecurityHeaders(debug bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			setDefault(h, "X-Content-Type-Options", "nosniff")
			setDefault(h, "X-Frame-Options", "DENY")
			setDefault(h, "Referrer-Policy", "strict-origin-when-cross-origin")
			setDefault(h, "Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			setDefault(h, "Content-Security-Policy", contentSecurityPolicy)
			if !debug {
				setDefault(h, "Strict-Transport-Security", "max-age=63072000; includeSubDomains; preload")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setDefault(h http.Header, key, value string) {
	if h.Get(key) == "" {
		h.Set(key, value)
	}
}

// CORS allows the frontend origin to call the API.
func CORS(frontendURL string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{frontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Retry-After", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// ClientIPResolver extracts the client address of a request.
type ClientIPResolver struct {
	trustedProxyCount int
}

// NewClientIPResolver creates a resolver that trusts X-Forwarded-For entries
// appended by trustedProxyCount reverse proxies. Zero means RemoteAddr only.
func NewClientIPResolver(trustedProxyCount int) *ClientIPResolver {
	if trustedProxyCount < 0 {
		trustedProxyCount = 0
	}
	return &ClientIPResolver{trustedProxyCount: trustedProxyCount}
}

// ClientIP reads the rightmost trusted position in X-Forwarded-For to prevent
// spoofing, falling back to the RemoteAddr host.
func (c *ClientIPResolver) ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" && c.trustedProxyCount > 0 {
		parts := strings.Split(xff, ",")
		idx := len(parts) - c.trustedProxyCount
		if idx >= 0 && idx < len(parts) {
			if ip := strings.TrimSpace(parts[idx]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type clientIPKey struct{}

// Middleware stores the resolved client address in the request context.
func (c *ClientIPResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPKey{}, c.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromContext returns the address stored by ClientIPResolver.Middleware.
func ClientIPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey{}).(string)
	return ip, ok
}

func (c *ClientIPResolver) fromRequest(r *http.Request) string {
	if ip, ok := ClientIPFromContext(r.Context()); ok {
		return ip
	}
	return c.ClientIP(r)
}

// APIRateLimit limits every client to maxPerMinute API requests. A
// non-positive limit disables it.
func APIRateLimit(maxPerMinute int, ips *ClientIPResolver) func(http.Handler) http.Handler {
	if maxPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		maxPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return ips.fromRequest(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "rate limit exceeded",
			})
		}),
	)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if d > time.Duration(secs)*time.Second {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
