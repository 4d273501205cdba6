package rpc

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func interceptors(o serverOptions) []grpc.UnaryServerInterceptor {
	chain := []grpc.UnaryServerInterceptor{
		recovery.UnaryServerInterceptor(recovery.WithRecoveryHandlerContext(recoveryHandler(o.log))),
		NewLogging(o.log).HandleGRPC,
	}
	if o.token != "" {
		chain = append(chain, auth.UnaryServerInterceptor(NewTokenAuth(o.token).AuthFunc))
	}
	return chain
}

func recoveryHandler(log *zap.Logger) recovery.RecoveryHandlerFuncContext {
	return func(ctx context.Context, p any) error {
		log.Error("panic in keystore handler", zap.Any("panic", p))
		return status.Error(codes.Internal, "internal error")
	}
}

// Logging is a unary interceptor that logs method, request ID, duration and
// outcome. Request and response payloads are never logged.
type Logging struct {
	log *zap.Logger
}

// NewLogging creates a new Logging middleware.
func NewLogging(log *zap.Logger) *Logging {
	return &Logging{log: log}
}

// HandleGRPC logs each unary request after it completes.
func (l *Logging) HandleGRPC(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("duration", time.Since(start)),
	}
	if r, ok := req.(request); ok {
		fields = append(fields, zap.String("request_id", r.requestID()))
	}

	if err != nil {
		fields = append(fields, zap.String("status", status.Code(err).String()))
		l.log.Warn("keystore request failed", fields...)
		return resp, err
	}

	if r, ok := resp.(response); ok && r.result().Error != nil {
		fields = append(fields, zap.String("error_kind", string(r.result().Error.Kind)))
	}
	l.log.Info("keystore request completed", fields...)
	return resp, nil
}

// TokenAuth checks a static bearer token.
type TokenAuth struct {
	token []byte
}

// NewTokenAuth creates a TokenAuth accepting token.
func NewTokenAuth(token string) *TokenAuth {
	return &TokenAuth{token: []byte(token)}
}

// AuthFunc validates the authorization metadata of an incoming call.
func (a *TokenAuth) AuthFunc(ctx context.Context) (context.Context, error) {
	token, err := auth.AuthFromMD(ctx, "bearer")
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(token), a.token) != 1 {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	return ctx, nil
}
