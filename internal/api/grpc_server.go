package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"

	"urbanharvest/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCServer exposes the read-only ledger to back-office integrations,
// next to the standard health service so load balancers can drain it.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	log      zerolog.Logger
}

func NewGRPCServer(cfg *config.APIConfig, ledger LedgerServer, logger *zerolog.Logger) (*GRPCServer, error) {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "grpc").Logger()
	}

	opts, err := ledgerServerOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf(":%d", cfg.GRPC.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("grpc listen %s: %w", addr, err)
	}

	s := &GRPCServer{
		server:   grpc.NewServer(opts...),
		health:   health.NewServer(),
		listener: lis,
		log:      log,
	}
	RegisterLedgerServer(s.server, ledger)
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus(ledgerServiceName, healthpb.HealthCheckResponse_SERVING)
	if cfg.GRPC.Reflection {
		reflection.Register(s.server)
	}
	return s, nil
}

// ledgerServerOptions orders the interceptors so every call is logged,
// panics are recovered, and the caller is checked before the handler runs.
func ledgerServerOptions(cfg *config.APIConfig, logger *zerolog.Logger) ([]grpc.ServerOption, error) {
	opts := []grpc.ServerOption{grpc.UnaryInterceptor(ChainUnaryInterceptors(
		LoggingUnaryInterceptor(logger),
		RecoveryUnaryInterceptor(logger),
		NewAuthInterceptor(cfg).Unary(),
	))}
	if !cfg.GRPC.TLS.Enabled {
		return opts, nil
	}
	tlsCfg, err := buildTLSConfig(cfg.GRPC.TLS)
	if err != nil {
		return nil, err
	}
	return append(opts, grpc.Creds(credentials.NewTLS(tlsCfg))), nil
}

// buildTLSConfig verifies client certificates against client_ca_file when
// one is given, and insists on them only with require_client_cert.
func buildTLSConfig(cfg config.APITLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, errors.New("grpc tls needs cert_file and key_file")
	}
	if cfg.RequireClientCert && cfg.ClientCAFile == "" {
		return nil, errors.New("grpc tls require_client_cert needs client_ca_file")
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load grpc tls keypair: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if cfg.ClientCAFile == "" {
		return tlsCfg, nil
	}

	caPEM, err := os.ReadFile(cfg.ClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("read client_ca_file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errors.New("client_ca_file holds no PEM certificates")
	}
	tlsCfg.ClientCAs = pool
	tlsCfg.ClientAuth = tls.VerifyClientCertIfGiven
	if cfg.RequireClientCert {
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsCfg, nil
}

func (s *GRPCServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *GRPCServer) Serve() error {
	s.log.Info().Str("addr", s.Addr()).Msg("gRPC ledger listening")
	return s.server.Serve(s.listener)
}

// Shutdown reports NOT_SERVING first so health checks stop routing new calls,
// then drains in-flight ones until ctx expires.
func (s *GRPCServer) Shutdown(ctx context.Context) {
	if s.server == nil {
		return
	}
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("gRPC drain timed out, forcing stop")
		s.server.Stop()
	}
}
