package rpc

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"playersync/pkg/logger"
	"playersync/pkg/metrics"
)

// SecretHeader is the metadata key carrying the shared secret
const SecretHeader = "secret-key"

const healthServicePrefix = "/grpc.health.v1.Health/"

var errNoSecret = errors.New("no secret key configured")

// AuthInterceptor rejects calls whose secret-key metadata does not match secret.
// Standard health probes pass without a key.
func AuthInterceptor(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return next(ctx, req)
		}
		if err := authorize(ctx, secret); err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return next(ctx, req)
	}
}

func authorize(ctx context.Context, secret string) error {
	if secret == "" {
		return errNoSecret
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return errors.New("missing metadata")
	}
	values := md.Get(SecretHeader)
	if len(values) == 0 {
		return errors.New("missing secret key")
	}
	if subtle.ConstantTimeCompare([]byte(values[0]), []byte(secret)) != 1 {
		return errors.New("invalid secret key")
	}
	return nil
}

// ObserveInterceptor counts calls by outcome and logs transport failures
func ObserveInterceptor(l *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		resp, err := next(ctx, req)
		name := info.FullMethod[strings.LastIndex(info.FullMethod, "/")+1:]
		metrics.RPCRequestsTotal.WithLabelValues(name, outcome(resp, err)).Inc()
		if err != nil {
			l.Warn("rpc failed", zap.String("method", info.FullMethod), zap.Error(err))
		}
		return resp, err
	}
}

type settled interface {
	Failure() string
}

func outcome(resp any, err error) string {
	if err != nil {
		return status.Code(err).String()
	}
	if r, ok := resp.(settled); ok && r.Failure() != "" {
		return "failed"
	}
	return "ok"
}
