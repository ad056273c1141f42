// Package logging provides structured logging for the application.
//
// Loggers travel in the request context. Besides the request id, a context
// can carry the token under analysis, so every line logged while analyzing
// it is tagged with the token address and chain id without each call site
// repeating them.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	loggerKey    contextKey = "logger"
	tokenKey     contextKey = "token"
)

// Attribute keys shared by every package that logs about a token.
const (
	KeyRequestID = "request_id"
	KeyToken     = "token"
	KeyChainID   = "chain_id"
)

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a structured logger writing to w (stdout when nil). format is
// "json" or anything else for text.
func New(w io.Writer, level string, format string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return New(io.Discard, "error", "text")
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID extracts the request ID from context
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// tokenRef is the token an analysis is about.
type tokenRef struct {
	address string
	chainID int64
}

// WithToken records the token under analysis. Later calls replace earlier ones.
func WithToken(ctx context.Context, address string, chainID int64) context.Context {
	return context.WithValue(ctx, tokenKey, tokenRef{address: address, chainID: chainID})
}

// Token returns the token recorded by WithToken.
func Token(ctx context.Context) (address string, chainID int64, ok bool) {
	ref, ok := ctx.Value(tokenKey).(tokenRef)
	return ref.address, ref.chainID, ok
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from context, or returns the default
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// L returns the context logger tagged with the request id and the token
// under analysis, when present.
func L(ctx context.Context) *slog.Logger {
	logger := FromContext(ctx)
	var attrs []any
	if reqID := RequestID(ctx); reqID != "" {
		attrs = append(attrs, KeyRequestID, reqID)
	}
	if addr, chainID, ok := Token(ctx); ok {
		attrs = append(attrs, KeyToken, addr, KeyChainID, chainID)
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
