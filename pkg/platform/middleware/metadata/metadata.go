package metadata

import (
	"fmt"
	"net/http"
	"strings"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mssola/useragent"

	"warden/pkg/requestcontext"
)

const unknownDevice = "Unknown Device"

// ClientMetadata extracts request ID, client IP, User-Agent and a device label
// from the request and stores them via requestcontext for handlers and the
// audit recorder. Apply it after chi's RequestID middleware.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userAgent := r.Header.Get("User-Agent")

		ctx = requestcontext.WithClientMetadata(ctx, ClientIPFromRequest(r), userAgent)
		ctx = requestcontext.WithDevice(ctx, DeviceLabel(userAgent))
		if reqID := requestIDFromRequest(r); reqID != "" {
			ctx = requestcontext.WithRequestID(ctx, reqID)
			w.Header().Set(chimw.RequestIDHeader, reqID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromRequest(r *http.Request) string {
	if id := chimw.GetReqID(r.Context()); id != "" {
		return id
	}
	return strings.TrimSpace(r.Header.Get(chimw.RequestIDHeader))
}

// DeviceLabel renders a short "Browser on Platform" description of a User-Agent.
func DeviceLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return unknownDevice
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "Bot"
	}

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	platform := ua.Platform()
	if platform == "" {
		platform = ua.OSInfo().Name
	}
	if platform == "" {
		platform = "Unknown Platform"
	}
	return strings.TrimSpace(fmt.Sprintf("%s on %s", browser, platform))
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" or "[::1]:port"
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
