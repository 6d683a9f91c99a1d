package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	actmetrics "credence/internal/activity/metrics"
	actservice "credence/internal/activity/service"
	"credence/internal/credential"
	cmetrics "credence/internal/credential/metrics"
	"credence/internal/delivery"
	dmetrics "credence/internal/delivery/metrics"
	"credence/internal/events"
	"credence/internal/events/outbox"
	"credence/internal/integration"
	inthandler "credence/internal/integration/handler"
	intmetrics "credence/internal/integration/metrics"
	jwttoken "credence/internal/jwt_token"
	"credence/internal/ledger"
	"credence/internal/notification"
	nmetrics "credence/internal/notification/metrics"
	"credence/internal/platform/config"
	"credence/internal/platform/httpserver"
	"credence/internal/platform/logger"
	"credence/internal/platform/metrics"
	"credence/internal/platform/natsconn"
	"credence/internal/proof"
	"credence/internal/ratelimit"
	rlmetrics "credence/internal/ratelimit/metrics"
	ratemw "credence/internal/ratelimit/middleware"
	httptransport "credence/internal/transport/http"
	"credence/internal/verification"
	vmetrics "credence/internal/verification/metrics"
	"credence/pkg/domain"
	"credence/pkg/platform/audit/publishers/compliance"
	"credence/pkg/platform/audit/publishers/security"
)

func main() {
	fs := pflag.NewFlagSet("credence", pflag.ExitOnError)
	config.RegisterFlags(fs)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// run wires every component and supervises the long-running ones. The first
// component to fail cancels the rest.
func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	reg := prometheus.DefaultRegisterer
	compliancePub := compliance.New(st.audit,
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)

	bus, err := openBus(ctx, cfg, compliancePub, log)
	if err != nil {
		return err
	}
	defer bus.Close()

	securityPub := security.New(st.audit, security.WithLogger(log))

	proofs := proof.NewInMemoryStore(proof.AlgSHA256)
	proofVerifier := proof.NewVerifier(proofs)

	activities := actservice.New(st.activities, st.records, st.outbox, proofVerifier,
		actservice.WithLogger(log),
		actservice.WithMetrics(actmetrics.New(reg)),
		actservice.WithTxRunner(st.tx),
		actservice.WithUploader(proof.NewUploader(proofs, cfg.Server.MaxUploadBytes)),
	)
	engine := verification.New(st.activities, st.records, st.outbox, proofVerifier,
		verification.WithLogger(log),
		verification.WithMetrics(vmetrics.New(reg)),
		verification.WithTxRunner(st.tx),
		verification.WithSecurityEmitter(securityPub),
		verification.WithTimeout(cfg.Verify.TransitionTimeout),
		verification.WithBulkLimits(cfg.Verify.BulkParallelism, cfg.Verify.BulkMaxItems),
	)
	ledgerSvc := ledger.NewService(st.records, st.activities, ledger.WithLogger(log))
	scanner := ledger.NewScanner(ledgerSvc, st.activities,
		ledger.WithScanInterval(cfg.Ledger.ScanInterval),
		ledger.WithScannerLogger(log),
		ledger.WithComplianceEmitter(compliancePub),
		ledger.WithRegisterer(reg),
	)

	keyring, err := newKeyring(cfg.Issuer)
	if err != nil {
		return err
	}
	if cfg.Issuer.MasterSecret == "" {
		log.Warn("issuer master secret not set, credential issuance is disabled")
	}
	issuer := credential.NewIssuer(st.credentials, st.activities, proofVerifier, keyring, st.outbox,
		credential.WithLogger(log),
		credential.WithMetrics(cmetrics.New(reg)),
		credential.WithTxRunner(st.tx),
		credential.WithComplianceEmitter(compliancePub),
		credential.WithSecurityEmitter(securityPub),
	)

	manager := delivery.NewManager(st.deadLetters, st.processed,
		delivery.WithLogger(log),
		delivery.WithMetrics(dmetrics.New(reg)),
		delivery.WithComplianceEmitter(compliancePub),
		delivery.WithRetryPolicy(delivery.RetryPolicy{
			MaxAttempts:    cfg.Delivery.MaxAttempts,
			InitialBackoff: cfg.Delivery.InitialBackoff,
			MaxBackoff:     cfg.Delivery.MaxBackoff,
		}),
	)

	issuerRoutes := events.NewRouter(log, nil)
	issuerRoutes.Register(events.TypeActivityVerified, issuer)
	issuerRoutes.Register(events.TypeActivityWithdrawn, issuer)
	issuerConsumer := manager.Wrap(cfg.Kafka.IssuerGroup, issuerRoutes)

	notifier, closeNotifier, err := newNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()
	notificationConsumer := manager.Wrap(cfg.Kafka.NotificationGroup, notification.NewConsumer(notifier, log))

	relay := outbox.NewRelay(st.outbox, bus.publisher,
		outbox.WithLogger(log),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
	)

	inbound, err := newInbound(cfg, activities, securityPub, log)
	if err != nil {
		return err
	}

	signingKey := cfg.Auth.JWTSigningKey
	if signingKey == "" {
		// Development only; config rejects an empty key elsewhere.
		signingKey = uuid.NewString()
		log.Warn("jwt signing key not set, using an ephemeral key")
	}
	tokens := jwttoken.NewMiddlewareValidator(
		jwttoken.NewJWTService(signingKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience),
	)

	handler := httptransport.New(activities, engine, ledgerSvc, issuer, manager, log,
		httptransport.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
	)
	limiter := ratemw.New(st.limits, log, ratemw.WithMetrics(rlmetrics.New(reg)))
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Handler:      handler,
		Validator:    tokens,
		Integration:  inbound,
		Gatherer:     prometheus.DefaultGatherer,
		Metrics:      metrics.New(),
		Logger:       log,
		Ready:        st.ready,
		InboundLimit: limiter.PerTenant(perMinute(cfg.Limits.InboundPerMinute)),
		ActorLimit:   limiter.PerActor(perMinute(cfg.Limits.ActorPerMinute)),
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return securityPub.Run(gctx) })
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return scanner.Run(gctx) })
	g.Go(func() error {
		return bus.subscriber.Subscribe(gctx, cfg.Kafka.IssuerGroup, issuerConsumer)
	})
	g.Go(func() error {
		return bus.subscriber.Subscribe(gctx, cfg.Kafka.NotificationGroup, notificationConsumer)
	})
	g.Go(func() error {
		log.Info("starting credence", "addr", cfg.Server.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func perMinute(n int) ratelimit.Limit {
	return ratelimit.Limit{Requests: n, Window: time.Minute}
}

func newKeyring(cfg config.Issuer) (*credential.Keyring, error) {
	disabled := make([]domain.TenantID, 0, len(cfg.DisabledTenants))
	for _, raw := range cfg.DisabledTenants {
		id, err := domain.ParseTenantID(raw)
		if err != nil {
			return nil, fmt.Errorf("issuer.disabled_tenants: %w", err)
		}
		disabled = append(disabled, id)
	}
	return credential.NewKeyring(cfg.MasterSecret, cfg.KeyID, disabled...), nil
}

// newNotifier publishes to NATS when configured and logs otherwise. The log
// notifier also serves as the fallback while NATS is unavailable.
func newNotifier(cfg config.Config, log *slog.Logger) (notification.Notifier, func(), error) {
	logNotifier := notification.NewLogNotifier(log)
	conn, err := natsconn.Connect(cfg.NATS, log)
	if err != nil {
		return nil, nil, err
	}
	if conn == nil {
		return logNotifier, func() {}, nil
	}
	notifier := notification.NewNATSNotifier(conn, logNotifier, log,
		notification.WithMetrics(nmetrics.New(prometheus.DefaultRegisterer)),
	)
	return notifier, func() { _ = conn.Drain() }, nil
}

func newInbound(cfg config.Config, activities integration.ActivityCreator, emitter integration.SecurityEmitter, log *slog.Logger) (*inthandler.Handler, error) {
	verifier, err := integration.NewSignatureVerifier(cfg.Inbound.Secrets, cfg.Inbound.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("inbound secrets: %w", err)
	}
	svc, err := integration.NewService(verifier, activities,
		integration.WithLogger(log),
		integration.WithMetrics(intmetrics.New(prometheus.DefaultRegisterer)),
		integration.WithSecurityEmitter(emitter),
	)
	if err != nil {
		return nil, err
	}
	return inthandler.New(svc, log), nil
}
