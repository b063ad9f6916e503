package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"wallet-settlement/internal/domain/model"
	"wallet-settlement/internal/domain/ports/repository"
	"wallet-settlement/internal/infra/worker"
	"wallet-settlement/internal/usecase"
)

// PaymentReconciler periodically scans for stale pending payments and tries
// to finalize them by re-running verification. This covers cases where the
// webhook was lost or the process crashed mid-settlement. Pending payments
// never expire on their own; this worker is the only thing that moves them.
type PaymentReconciler struct {
	uc         usecase.SettlementUseCase
	payments   repository.PaymentRepository
	pool       *worker.Pool
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to retry
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.SettlementUseCase, payments repository.PaymentRepository, pool *worker.Pool, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	rl := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, payments: payments, pool: pool, interval: interval, staleAfter: staleAfter, log: &rl}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting payment reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale pending payments failed")
		return
	}
	for _, p := range pending {
		if p.ProviderRef == "" {
			continue
		}
		p := p
		task := func(ctx context.Context) error {
			out, err := w.uc.Verify(ctx, p.Provider, p.ProviderRef)
			if err != nil {
				return err
			}
			if out.Status != model.PaymentStatusPending {
				w.log.Info().Str("payment_id", p.ID).Str("status", string(out.Status)).Msg("stale payment reconciled")
			}
			return nil
		}
		if w.pool != nil {
			if err := w.pool.Submit(task); err != nil {
				// Queue full; the next cycle picks the payment up again.
				w.log.Debug().Str("payment_id", p.ID).Msg("reconcile deferred, worker queue full")
			}
			continue
		}
		if err := task(ctx); err != nil {
			w.log.Warn().Err(err).Str("payment_id", p.ID).Str("provider", p.Provider).Msg("reconcile attempt failed")
		}
	}
}
