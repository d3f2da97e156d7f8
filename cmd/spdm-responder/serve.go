package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openspdm/spdm-go/audit"
	"github.com/openspdm/spdm-go/config"
	_ "github.com/openspdm/spdm-go/internal/cryptoinit"
	"github.com/openspdm/spdm-go/internal/healthsrv"
	"github.com/openspdm/spdm-go/internal/logger"
	"github.com/openspdm/spdm-go/internal/metrics"
	"github.com/openspdm/spdm-go/protocol"
	"github.com/openspdm/spdm-go/responder"
	"github.com/openspdm/spdm-go/session"
	"github.com/openspdm/spdm-go/transport/wstransport"
)

// defaultAlgorithms is the single algorithm set this binary supports
// during NEGOTIATE_ALGORITHMS. It is fixed in code and is not read from
// configuration.
var defaultAlgorithms = protocol.Algorithms{
	BaseHash:        protocol.HashSHA256,
	MeasurementHash: protocol.HashSHA256,
	BaseAsym:        protocol.AsymECDSAP256,
	DHE:             protocol.DHESECP256R1,
	AEAD:            protocol.AEADAES128GCM,
	KeySchedule:     protocol.KeyScheduleSPDM,
	MeasurementSpec: protocol.MeasurementSpecDMTF,
}

func runServe(cmd *cobra.Command, args []string) error {
	opts := config.DefaultLoaderOptions()
	if configPath != "" {
		opts.ConfigDir = configPath
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}

	log := logger.GetDefaultLogger().WithFields(logger.String("component", "spdm-responder"))

	caps, err := parseCapabilities(cfg.Responder.Capabilities)
	if err != nil {
		return err
	}
	slots, err := buildSlots(cfg.Responder.Slots, defaultAlgorithms.BaseAsym, defaultAlgorithms.BaseHash)
	if err != nil {
		return err
	}

	psks := make(map[string][]byte, len(cfg.Responder.PSKs))
	for _, p := range cfg.Responder.PSKs {
		secret := os.Getenv(p.SecretEnv)
		if secret == "" {
			log.Warn("PSK hint configured with empty secret", logger.String("hint_id", p.HintID), logger.String("secret_env", p.SecretEnv))
			continue
		}
		psks[p.HintID] = []byte(secret)
	}

	engineCfg := responder.Config{
		Versions:            []protocol.Version{protocol.Version12},
		Capabilities:        caps,
		SupportedAlgorithms: defaultAlgorithms,
		Slots:               slots,
		PSKs:                psks,
		SessionConfig:       session.DefaultConfig(),
	}

	var auditSink audit.Sink = audit.NoopSink{}
	if cfg.Audit.Enabled {
		dsn := os.Getenv(cfg.Audit.DSNEnv)
		if dsn == "" {
			log.Warn("audit enabled but DSN env var is empty, falling back to no-op sink", logger.String("dsn_env", cfg.Audit.DSNEnv))
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Audit.Timeout)
			sink, err := audit.NewPostgresSink(ctx, dsn, 256)
			cancel()
			if err != nil {
				return err
			}
			auditSink = sink
			defer sink.Close()
		}
	}

	checker := healthsrv.New(5 * time.Second)
	checker.Register("sessions", func(context.Context) error { return nil })

	group, ctx := errgroup.WithContext(signalContext())

	group.Go(func() error {
		wsSrv := wstransport.NewServer(func(_ context.Context, t *wstransport.Transport) {
			engine := responder.New(engineCfg)
			engine.Audit = auditSink
			runConn(engine, t)
		})
		mux := http.NewServeMux()
		mux.Handle("/", wsSrv.Handler())
		srv := &http.Server{Addr: cfg.Responder.ListenAddr, Handler: mux}
		log.Info("SPDM listener starting", logger.String("addr", cfg.Responder.ListenAddr))
		return serveUntilDone(ctx, srv)
	})

	if cfg.Metrics.Enabled {
		group.Go(func() error {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, metricsHandler(cfg))
			srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
			log.Info("metrics listener starting", logger.String("addr", cfg.Metrics.Addr))
			return serveUntilDone(ctx, srv)
		})
	}

	if cfg.Health.Enabled {
		group.Go(func() error {
			mux := http.NewServeMux()
			handler := checker.Handler()
			if secret := os.Getenv(cfg.Health.JWTSecretEnv); secret != "" {
				handler = healthsrv.RequireBearer([]byte(secret), handler)
			}
			mux.Handle(cfg.Health.Path, handler)
			srv := &http.Server{Addr: cfg.Health.Addr, Handler: mux}
			log.Info("health listener starting", logger.String("addr", cfg.Health.Addr))
			return serveUntilDone(ctx, srv)
		})
	}

	return group.Wait()
}

// metricsHandler gates /metrics behind the same bearer token as /healthz
// when a secret is configured, per SPEC_FULL.md §9's narrowed admin-token
// model.
func metricsHandler(cfg *config.Config) http.Handler {
	h := metrics.Handler()
	if secret := os.Getenv(cfg.Health.JWTSecretEnv); secret != "" {
		return healthsrv.RequireBearer([]byte(secret), h)
	}
	return h
}

// runConn drives one accepted connection's full SPDM exchange: read a
// frame, dispatch it, write the response, until the transport errors.
func runConn(e *responder.Engine, t *wstransport.Transport) {
	buf := make([]byte, protocol.MaxMessageBufferSize)
	for {
		n, err := t.Receive(buf)
		if err != nil {
			return
		}
		resp := e.Dispatch(append([]byte(nil), buf[:n]...))
		if t.Send(resp) != nil {
			return
		}
	}
}

// serveUntilDone runs srv until ctx is canceled, then shuts it down
// gracefully.
func serveUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func signalContext() context.Context {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx
}
