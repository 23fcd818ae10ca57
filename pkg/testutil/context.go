package testutil

import (
	"context"
	"net/http"
	"time"

	"warden/pkg/domain"
	"warden/pkg/requestcontext"
)

// WithIdentity attaches an authenticated principal to the request context.
// This simulates what the auth gate does for authenticated requests.
func WithIdentity(req *http.Request, subject string) *http.Request {
	ctx := requestcontext.WithIdentity(req.Context(), domain.Identity{Subject: subject})
	return req.WithContext(ctx)
}

// WithRequestMetadata sets the request id and a fixed request time, which
// the audit recorder copies onto every record.
func WithRequestMetadata(req *http.Request, requestID string, now time.Time) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	ctx = requestcontext.WithTime(ctx, now)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
