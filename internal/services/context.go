package services

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	postIDKey    contextKey = "post_id"
	videoIDKey   contextKey = "video_id"
)

// WithSessionID annotates context with the feed session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the feed session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, sessionIDKey)
}

// WithPostID annotates context with the post identifier.
func WithPostID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, postIDKey, id)
}

// PostIDFromContext returns the post identifier if present.
func PostIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, postIDKey)
}

// WithVideoID annotates context with the video identifier.
func WithVideoID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, videoIDKey, id)
}

// VideoIDFromContext returns the video identifier if present.
func VideoIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, videoIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
