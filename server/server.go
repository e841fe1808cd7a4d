package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/energywebfoundation/worker-contract-sub000/broadcaster"
	"github.com/energywebfoundation/worker-contract-sub000/config"
	"github.com/energywebfoundation/worker-contract-sub000/db"
	"github.com/energywebfoundation/worker-contract-sub000/greenproof"
	"github.com/energywebfoundation/worker-contract-sub000/logging"
	"github.com/energywebfoundation/worker-contract-sub000/migrations"
	"github.com/energywebfoundation/worker-contract-sub000/rewards"
	"github.com/energywebfoundation/worker-contract-sub000/roles"
	"github.com/energywebfoundation/worker-contract-sub000/rpc"
)

type Server struct {
	cfg config.Config

	ledgerDB    *db.DB
	book        *rewards.AccountBook
	ledger      *greenproof.Ledger
	broadcaster *broadcaster.Broadcaster

	rpcListener     net.Listener
	restListener    net.Listener
	metricsListener net.Listener
}

func listen(raw string) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", raw)
	if err != nil {
		return nil, err
	}
	l, err := net.Listen(addr.Network(), addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %v", err)
	}
	return l, nil
}

// New opens the stores and the ledger and binds the listeners.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger := logging.FromContext(ctx)

	if err := migrations.Migrate(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("migrating stores: %w", err)
	}

	var oracle roles.Oracle
	if cfg.ClaimsFile != "" {
		fileOracle, err := roles.NewFileOracle(cfg.ClaimsFile)
		if err != nil {
			return nil, fmt.Errorf("loading role claims: %w", err)
		}
		oracle = fileOracle
	} else {
		logger.Warn("no claims file configured, no account holds a role")
		oracle = roles.NewMemoryOracle()
	}

	sinks := make([]broadcaster.Sink, 0, len(cfg.Webhooks))
	for _, target := range cfg.Webhooks {
		hook, err := broadcaster.NewWebhook(target)
		if err != nil {
			return nil, fmt.Errorf("creating webhook: %w", err)
		}
		sinks = append(sinks, hook)
	}
	b, err := broadcaster.New(sinks, false, cfg.BroadcastTimeout, cfg.BroadcastAcks)
	if err != nil {
		return nil, fmt.Errorf("creating broadcaster: %w", err)
	}

	s := &Server{cfg: cfg, broadcaster: b}
	if err := s.open(ctx, oracle); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

func (s *Server) open(ctx context.Context, oracle roles.Oracle) error {
	var err error
	if s.ledgerDB, err = db.Open(s.cfg.LedgerDbDir()); err != nil {
		return err
	}
	if err := migrations.Upgrade(ctx, s.ledgerDB); err != nil {
		return err
	}
	if s.book, err = rewards.OpenAccountBook(s.cfg.AccountsDbDir()); err != nil {
		return err
	}
	s.ledger, err = greenproof.New(ctx, s.ledgerDB, oracle, s.book,
		greenproof.WithConfig(s.cfg.Ledger),
		greenproof.WithBroadcaster(s.broadcaster),
	)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}

	if s.rpcListener, err = listen(s.cfg.RawRPCListener); err != nil {
		return err
	}
	if s.restListener, err = listen(s.cfg.RawRESTListener); err != nil {
		return err
	}
	if s.cfg.MetricsPort != nil {
		if s.metricsListener, err = listen(fmt.Sprintf(":%d", *s.cfg.MetricsPort)); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the listeners and the stores. It is safe to call on a
// partially constructed server.
func (s *Server) Close() error {
	var result *multierror.Error
	for _, l := range []net.Listener{s.rpcListener, s.restListener, s.metricsListener} {
		if l != nil {
			if err := l.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				result = multierror.Append(result, err)
			}
		}
	}
	if s.book != nil {
		if err := s.book.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing account book: %w", err))
		}
	}
	if s.ledgerDB != nil {
		if err := s.ledgerDB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing ledger store: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// Ledger is the ledger the server exposes.
func (s *Server) Ledger() *greenproof.Ledger {
	return s.ledger
}

// GrpcAddr returns the address that server is listening on for GRPC.
func (s *Server) GrpcAddr() net.Addr {
	return s.rpcListener.Addr()
}

// RestAddr returns the address the JSON endpoint is listening on.
func (s *Server) RestAddr() net.Addr {
	return s.restListener.Addr()
}

// Start serves the ledger until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	serverGroup, ctx := errgroup.WithContext(ctx)

	logger := logging.FromContext(ctx)

	// one authenticator for both transports so a request replays on neither
	auth, err := rpc.NewAuthenticator(s.cfg.MaxRequestAge)
	if err != nil {
		return err
	}
	restHandler, err := rpc.NewHandler(s.ledger, auth, s.cfg.CORSOrigins)
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggerInterceptor(logger),
			metricsInterceptor(),
		),
		grpc.ChainStreamInterceptor(streamLoggerInterceptor(logger)),
		// XXX: this is done to prevent routers from cleaning up our connections (e.g aws load balances..)
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     time.Minute * 120,
			MaxConnectionAge:      time.Minute * 180,
			MaxConnectionAgeGrace: time.Minute * 10,
			Time:                  time.Minute,
			Timeout:               time.Minute * 3,
		}),
	)
	rpc.RegisterLedgerServer(grpcServer, rpc.NewServer(s.ledger, s.broadcaster, auth))

	// Start the gRPC server listening for HTTP/2 connections.
	serverGroup.Go(func() error {
		logger.Sugar().Infof("GRPC server listening on %s", s.rpcListener.Addr())
		return grpcServer.Serve(s.rpcListener)
	})

	restServer := &http.Server{
		Handler:           withLogger(logger, restHandler),
		ReadHeaderTimeout: time.Second * 5,
	}
	serverGroup.Go(func() error {
		logger.Sugar().Infof("REST server listening on %s", s.restListener.Addr())
		return ignoreClosed(restServer.Serve(s.restListener))
	})

	var metricsServer *http.Server
	if s.metricsListener != nil {
		metricsServer = &http.Server{Handler: promhttp.Handler(), ReadHeaderTimeout: time.Second * 5}
		serverGroup.Go(func() error {
			logger.Sugar().Infof("metrics exposed on %s", s.metricsListener.Addr())
			return ignoreClosed(metricsServer.Serve(s.metricsListener))
		})
	}

	if s.cfg.SweepInterval > 0 {
		sweeper := newSweeper(s.ledger, s.cfg.SweepInterval, s.cfg.SweepPageSize)
		serverGroup.Go(func() error {
			return sweeper.Run(ctx)
		})
	}

	// Wait for the server to shut down gracefully
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	grpcServer.GracefulStop()
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		logger.Sugar().Errorf("failed to shutdown REST server: %s", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Sugar().Errorf("failed to shutdown metrics server: %s", err)
		}
	}
	if err := serverGroup.Wait(); err != nil {
		logger.Sugar().Errorf("error when waiting to shutdown servers: %s", err)
	}
	s.ledgerDB.Compact(logging.NewContext(shutdownCtx, logger))
	return nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func withLogger(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.NewContext(r.Context(), logger.Named(r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
