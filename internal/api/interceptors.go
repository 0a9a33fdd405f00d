package api

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const requestIDMetadataKey = "x-request-id"

// ChainUnaryInterceptors runs interceptors in the given order, outermost first.
func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		chained := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			current := interceptors[i]
			next := chained
			chained = func(currentCtx context.Context, currentReq any) (any, error) {
				return current(currentCtx, currentReq, info, next)
			}
		}
		return chained(ctx, req)
	}
}

// RecoveryUnaryInterceptor turns a handler panic into codes.Internal.
func RecoveryUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				if logger != nil {
					logger.Error().
						Interface("panic", r).
						Str("method", info.FullMethod).
						Bytes("stack", debug.Stack()).
						Msg("grpc handler panicked")
				}
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// requestTags collects what inner interceptors learn about a call so the
// access log line can carry it.
type requestTags struct {
	mu     sync.Mutex
	client string
}

type requestTagsKey struct{}

func tagClient(ctx context.Context, name string) {
	if t, ok := ctx.Value(requestTagsKey{}).(*requestTags); ok {
		t.mu.Lock()
		t.client = name
		t.mu.Unlock()
	}
}

func (t *requestTags) clientName() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == "" {
		return "anonymous"
	}
	return t.client
}

// LoggingUnaryInterceptor writes one access line per call and echoes the
// request id back in the response header.
func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		tags := &requestTags{}
		ctx = context.WithValue(ctx, requestTagsKey{}, tags)

		start := time.Now()
		resp, err := handler(ctx, req)

		ev := base.Info()
		if err != nil && status.Code(err) == codes.Internal {
			ev = base.Error()
		}
		ev.Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("peer", peerHost(ctx)).
			Str("client", tags.clientName()).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("grpc request")

		return resp, err
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if id := first(md.Get(requestIDMetadataKey)); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
