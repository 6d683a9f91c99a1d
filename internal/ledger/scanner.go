package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	actstore "credence/internal/activity/store"
	"credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	audit "credence/pkg/platform/audit"
)

const (
	defaultScanInterval = 15 * time.Minute
	scanBatchSize       = 200
)

// KeyLister pages through activities across all tenants.
type KeyLister interface {
	ListKeys(ctx context.Context, afterID domain.ActivityID, limit int) ([]actstore.Key, error)
}

type ComplianceEmitter interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// ScanResult summarises one pass.
type ScanResult struct {
	Checked      int
	Inconsistent []actstore.Key
}

// Scanner periodically re-verifies every activity's ledger.
type Scanner struct {
	ledger     *Service
	keys       KeyLister
	compliance ComplianceEmitter
	interval   time.Duration
	logger     *slog.Logger
	checked    prometheus.Counter
	violations prometheus.Counter
}

type ScannerOption func(*Scanner)

func WithScanInterval(d time.Duration) ScannerOption {
	return func(s *Scanner) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithScannerLogger(logger *slog.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = logger }
}

func WithComplianceEmitter(e ComplianceEmitter) ScannerOption {
	return func(s *Scanner) { s.compliance = e }
}

// WithRegisterer registers scan counters with reg.
func WithRegisterer(reg prometheus.Registerer) ScannerOption {
	return func(s *Scanner) {
		f := promauto.With(reg)
		s.checked = f.NewCounter(prometheus.CounterOpts{
			Name: "credence_ledger_activities_scanned_total",
			Help: "Activities checked by the ledger integrity scanner",
		})
		s.violations = f.NewCounter(prometheus.CounterOpts{
			Name: "credence_ledger_inconsistencies_total",
			Help: "Ledger inconsistencies detected by the integrity scanner",
		})
	}
}

func NewScanner(ledger *Service, keys KeyLister, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		ledger:   ledger,
		keys:     keys,
		interval: defaultScanInterval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans on every tick until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.ErrorContext(ctx, "ledger integrity scan failed", "error", err)
			}
		}
	}
}

// ScanOnce checks every activity once. Inconsistent activities are reported
// and left untouched.
func (s *Scanner) ScanOnce(ctx context.Context) (ScanResult, error) {
	var (
		result ScanResult
		after  domain.ActivityID
	)
	for {
		keys, err := s.keys.ListKeys(ctx, after, scanBatchSize)
		if err != nil {
			return result, err
		}
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			result.Checked++
			if s.checked != nil {
				s.checked.Inc()
			}
			err := s.ledger.VerifyConsistency(ctx, key.TenantID, key.ActivityID)
			switch {
			case err == nil:
			case dErrors.HasCode(err, dErrors.CodeLedgerInconsistency):
				result.Inconsistent = append(result.Inconsistent, key)
				s.report(ctx, key, err)
			default:
				s.logger.WarnContext(ctx, "ledger check failed",
					"tenant_id", key.TenantID,
					"activity_id", key.ActivityID,
					"error", err,
				)
			}
		}
		if len(keys) < scanBatchSize {
			break
		}
		after = keys[len(keys)-1].ActivityID
	}

	s.logger.InfoContext(ctx, "ledger integrity scan completed",
		"checked", result.Checked,
		"inconsistent", len(result.Inconsistent),
	)
	return result, nil
}

func (s *Scanner) report(ctx context.Context, key actstore.Key, cause error) {
	if s.violations != nil {
		s.violations.Inc()
	}
	s.logger.ErrorContext(ctx, "CRITICAL: ledger inconsistency detected",
		"tenant_id", key.TenantID,
		"activity_id", key.ActivityID,
		"error", cause,
	)
	if s.compliance == nil {
		return
	}
	if err := s.compliance.Emit(ctx, audit.ComplianceEvent{
		TenantID: key.TenantID,
		Subject:  key.ActivityID.String(),
		Action:   audit.EventLedgerInconsistency,
		Decision: "flagged",
		Reason:   dErrors.MessageOf(cause),
		ActorID:  "integrity-scanner",
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to record ledger inconsistency", "error", err)
	}
}
