package server

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/energywebfoundation/worker-contract-sub000/logging"
)

var handlingSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "greenproof",
	Subsystem: "grpc",
	Name:      "server_handling_seconds",
	Help:      "Duration of unary GRPC calls by method and code",
	Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
}, []string{"method", "code"})

// loggerInterceptor returns UnaryServerInterceptor handler to log all RPC server incoming requests.
func loggerInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		logger := logger.Named(info.FullMethod).With(zap.Stringer("request_id", uuid.New()))
		ctx = logging.NewContext(ctx, logger)

		if p, ok := peer.FromContext(ctx); ok {
			logger.Debug("new GRPC", zap.Stringer("from", p.Addr))
		}

		resp, err := handler(ctx, req)
		if err != nil {
			logger.Info("FAILURE", zap.Error(err))
		}
		return resp, err
	}
}

func streamLoggerInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		logger := logger.Named(info.FullMethod).With(zap.Stringer("request_id", uuid.New()))
		logger.Debug("stream opened")
		err := handler(srv, &loggedStream{ServerStream: ss, ctx: logging.NewContext(ss.Context(), logger)})
		if err != nil {
			logger.Info("FAILURE", zap.Error(err))
		}
		return err
	}
}

type loggedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *loggedStream) Context() context.Context {
	return s.ctx
}

func metricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		handlingSeconds.WithLabelValues(info.FullMethod, status.Code(err).String()).Observe(time.Since(start).Seconds())
		return resp, err
	}
}
