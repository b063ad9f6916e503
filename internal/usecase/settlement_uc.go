// File: internal/usecase/settlement_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"wallet-settlement/internal/domain"
	"wallet-settlement/internal/domain/model"
	"wallet-settlement/internal/domain/ports/adapter"
	"wallet-settlement/internal/domain/ports/repository"
	"wallet-settlement/internal/infra/metrics"
)

// Compile-time check
var _ SettlementUseCase = (*settlementUC)(nil)

// InitiateRequest starts a purchase. PlanID empty means a one-time coin
// top-up; otherwise amount and currency come from the plan.
type InitiateRequest struct {
	UserID      string
	Provider    string
	AmountMinor int64
	Currency    string
	PlanID      string
	Meta        map[string]interface{}
}

// InitiateResult carries the persisted payment plus the raw initiation
// answer; callers need RedirectURL/ClientSecret to complete checkout.
type InitiateResult struct {
	Payment    *model.Payment
	Initiation *adapter.InitiationResult
}

// VerifyOutcome is the caller-facing result of a reconciliation attempt.
type VerifyOutcome struct {
	Status  model.PaymentStatus
	Payment *model.Payment
	Message string
}

type SettlementUseCase interface {
	// Initiate resolves the driver, starts the payment with the provider and
	// persists a pending Payment. No row exists when initiation fails.
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	// Verify is the client-polled confirmation path: it asks the provider for
	// the current status and reconciles it against the ledger.
	Verify(ctx context.Context, provider, providerRef string) (*VerifyOutcome, error)
	// HandleWebhook is the provider-push confirmation path. It validates the
	// callback's signature, parses it, and runs the same reconciliation.
	HandleWebhook(ctx context.Context, provider string, rawBody []byte, signature string) (*VerifyOutcome, error)

	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	ListPayments(ctx context.Context, userID string, offset, limit int) ([]*model.Payment, error)
	// ListPlans returns the purchasable plan catalog.
	ListPlans(ctx context.Context) ([]*model.Plan, error)
}

type settlementUC struct {
	payments  repository.PaymentRepository
	wallets   repository.WalletRepository
	walletTxs repository.WalletTransactionRepository
	plans     repository.PlanRepository
	subs      repository.SubscriptionRepository
	registry  adapter.GatewayRegistry
	tm        repository.TransactionManager
	cache     repository.PaymentStatusCache // optional; nil disables the cache

	coinsPerUnit int64
	txTimeout    time.Duration
	log          *zerolog.Logger
}

func NewSettlementUseCase(
	payments repository.PaymentRepository,
	wallets repository.WalletRepository,
	walletTxs repository.WalletTransactionRepository,
	plans repository.PlanRepository,
	subs repository.SubscriptionRepository,
	registry adapter.GatewayRegistry,
	tm repository.TransactionManager,
	cache repository.PaymentStatusCache,
	coinsPerUnit int64,
	txTimeout time.Duration,
	logger *zerolog.Logger,
) *settlementUC {
	if coinsPerUnit <= 0 {
		coinsPerUnit = 10
	}
	if txTimeout <= 0 {
		txTimeout = 30 * time.Second
	}
	return &settlementUC{
		payments:     payments,
		wallets:      wallets,
		walletTxs:    walletTxs,
		plans:        plans,
		subs:         subs,
		registry:     registry,
		tm:           tm,
		cache:        cache,
		coinsPerUnit: coinsPerUnit,
		txTimeout:    txTimeout,
		log:          logger,
	}
}

func (u *settlementUC) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	gw, err := u.registry.Resolve(req.Provider)
	if err != nil {
		return nil, err
	}

	amount := req.AmountMinor
	currency := req.Currency
	var plan *model.Plan
	if req.PlanID != "" {
		plan, err = u.plans.FindByID(ctx, nil, req.PlanID)
		if err != nil {
			return nil, fmt.Errorf("initiate: plan %s: %w", req.PlanID, err)
		}
		amount = plan.PriceMinor
		currency = plan.Currency
	}
	if amount <= 0 {
		return nil, fmt.Errorf("initiate: non-positive amount %d: %w", amount, domain.ErrInvalidAmount)
	}

	// Provider call happens before any row exists, so a failure here leaves
	// nothing to clean up.
	init, err := gw.InitiatePayment(ctx, adapter.InitiationRequest{
		UserID:      req.UserID,
		AmountMinor: amount,
		Currency:    currency,
		Meta:        req.Meta,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	meta := make(map[string]interface{}, len(req.Meta)+1)
	for k, v := range req.Meta {
		meta[k] = v
	}
	meta["initiation"] = init.Meta

	p := &model.Payment{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Provider:    gw.Name(),
		ProviderRef: init.ProviderRef,
		AmountMinor: amount,
		Currency:    currency,
		Status:      model.PaymentStatusPending,
		Meta:        meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if plan != nil {
		// Subscription purchases persist the pending subscription and the
		// payment in one transaction so neither exists without the other.
		sub := &model.UserSubscription{
			ID:        uuid.NewString(),
			UserID:    req.UserID,
			PlanID:    plan.ID,
			Status:    model.SubscriptionStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		p.SubscriptionID = &sub.ID
		err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := u.subs.Save(ctx, tx, sub); err != nil {
				return err
			}
			return u.payments.Save(ctx, tx, p)
		})
	} else {
		err = u.payments.Save(ctx, nil, p)
	}
	if err != nil {
		return nil, fmt.Errorf("initiate: persist payment: %w", err)
	}

	metrics.IncPayment(p.Provider, string(p.Status))
	u.log.Info().Str("payment_id", p.ID).Str("provider", p.Provider).
		Str("provider_ref", p.ProviderRef).Int64("amount_minor", amount).
		Bool("subscription", plan != nil).Msg("payment initiated")
	return &InitiateResult{Payment: p, Initiation: init}, nil
}

func (u *settlementUC) Verify(ctx context.Context, provider, providerRef string) (*VerifyOutcome, error) {
	gw, err := u.registry.Resolve(provider)
	if err != nil {
		return nil, err
	}
	p, err := u.payments.FindByProviderRef(ctx, nil, gw.Name(), providerRef)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return terminalOutcome(p), nil
	}

	// External I/O strictly before the transaction: a provider hanging for
	// seconds must not hold a row lock while it does.
	vr, err := gw.VerifyPayment(ctx, providerRef)
	if err != nil {
		// Ambiguity is never a failure: leave the row untouched so a retry
		// can succeed, and tell the caller to wait.
		u.log.Warn().Err(err).Str("provider", provider).Str("provider_ref", providerRef).
			Msg("gateway verify failed; reporting pending")
		return &VerifyOutcome{
			Status:  model.PaymentStatusPending,
			Payment: p,
			Message: "payment status could not be confirmed yet; please retry shortly",
		}, nil
	}

	return u.reconcile(ctx, gw.Name(), providerRef, vr.Status, vr.Meta)
}

func (u *settlementUC) HandleWebhook(ctx context.Context, provider string, rawBody []byte, signature string) (*VerifyOutcome, error) {
	gw, err := u.registry.Resolve(provider)
	if err != nil {
		return nil, err
	}
	if !gw.VerifyWebhookSignature(rawBody, signature) {
		metrics.WebhookSignatureFailures.WithLabelValues(gw.Name()).Inc()
		u.log.Warn().Str("provider", gw.Name()).Msg("webhook rejected: bad signature")
		return nil, domain.ErrInvalidSignature
	}
	evt, err := gw.ParseWebhook(rawBody)
	if err != nil {
		return nil, err
	}
	return u.reconcile(ctx, gw.Name(), evt.ProviderRef, evt.Status, evt.Meta)
}

// reconcile is the single idempotent entry point shared by the client-polled
// and webhook paths. The payments row is the only durable lock: the
// processing status claim plus row-level isolation guarantee at most one
// writer observes the pre-processing state.
func (u *settlementUC) reconcile(ctx context.Context, provider, providerRef string, driverStatus model.PaymentStatus, driverMeta map[string]interface{}) (*VerifyOutcome, error) {
	// Fast path, no lock: the overwhelming majority of duplicate and racing
	// calls end here.
	if u.cache != nil {
		if s, ok := u.cache.GetTerminal(ctx, provider, providerRef); ok && s == model.PaymentStatusSuccess {
			if p, err := u.payments.FindByProviderRef(ctx, nil, provider, providerRef); err == nil {
				return terminalOutcome(p), nil
			}
		}
	}
	p, err := u.payments.FindByProviderRef(ctx, nil, provider, providerRef)
	if err != nil {
		return nil, err
	}
	if p.Status == model.PaymentStatusSuccess {
		return terminalOutcome(p), nil
	}

	var (
		outcome       *VerifyOutcome
		activateSubID string
	)
	txCtx, cancel := context.WithTimeout(ctx, u.txTimeout)
	defer cancel()
	err = u.tm.WithTx(txCtx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// Re-read under lock; closes the race window behind the fast path.
		cur, err := u.payments.FindByProviderRef(ctx, tx, provider, providerRef)
		if err != nil {
			return err
		}
		switch cur.Status {
		case model.PaymentStatusSuccess:
			// Another concurrent caller finished first.
			outcome = terminalOutcome(cur)
			return nil
		case model.PaymentStatusFailed:
			// Terminal states only move forward.
			if driverStatus == model.PaymentStatusSuccess {
				u.log.Warn().Str("payment_id", cur.ID).Msg("provider reports success for a payment already marked failed")
			}
			outcome = terminalOutcome(cur)
			return nil
		case model.PaymentStatusProcessing:
			// A caller in flight will complete it; change nothing.
			outcome = &VerifyOutcome{Status: model.PaymentStatusPending, Payment: cur, Message: "payment is being processed"}
			return nil
		}

		claimed, err := u.payments.ClaimProcessing(ctx, tx, cur.ID)
		if err != nil {
			return err
		}
		if !claimed {
			outcome = &VerifyOutcome{Status: model.PaymentStatusPending, Payment: cur, Message: "payment is being processed"}
			return nil
		}

		now := time.Now()
		switch driverStatus {
		case model.PaymentStatusSuccess:
			coins, source, err := u.coinsFor(ctx, tx, cur)
			if err != nil {
				return err
			}
			// Double-credit guard: a prior attempt may have crashed between
			// writing the ledger entry and flipping the status.
			n, err := u.walletTxs.CountByPaymentID(ctx, tx, cur.ID)
			if err != nil {
				return err
			}
			if n == 0 {
				if err := u.credit(ctx, tx, cur, coins, source, now); err != nil {
					return err
				}
			} else {
				metrics.IncDuplicateCreditSuppressed()
				u.log.Info().Str("payment_id", cur.ID).Msg("ledger entry already exists; skipping credit")
			}
			if err := u.payments.MarkSuccess(ctx, tx, cur.ID, coins, driverMeta, now); err != nil {
				return err
			}
			cur.Status = model.PaymentStatusSuccess
			cur.CoinsGranted = &coins
			cur.UpdatedAt = now
			if cur.IsSubscription() {
				activateSubID = *cur.SubscriptionID
			}
			outcome = terminalOutcome(cur)
			return nil

		case model.PaymentStatusFailed:
			if err := u.payments.MarkFailed(ctx, tx, cur.ID, driverMeta, now); err != nil {
				return err
			}
			cur.Status = model.PaymentStatusFailed
			cur.UpdatedAt = now
			outcome = terminalOutcome(cur)
			return nil

		default:
			// Provider still pending: undo the processing claim so a later
			// call is not stuck behind a stale marker.
			if err := u.payments.ReleaseProcessing(ctx, tx, cur.ID); err != nil {
				return err
			}
			cur.Status = model.PaymentStatusPending
			outcome = &VerifyOutcome{Status: model.PaymentStatusPending, Payment: cur, Message: "payment is still pending"}
			return nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s/%s: %w", provider, providerRef, err)
	}

	if outcome.Status.Terminal() {
		metrics.IncPayment(provider, string(outcome.Status))
		if outcome.Status == model.PaymentStatusSuccess {
			metrics.AddPaymentRevenue(outcome.Payment.Currency, outcome.Payment.AmountMinor)
		}
		if u.cache != nil {
			u.cache.SetTerminal(ctx, provider, providerRef, outcome.Status)
		}
	}

	// Subscription activation is decoupled from the crediting transaction:
	// the payment is already proven successful, so a failure here must not
	// undo the credit. It is logged and left to out-of-band reconciliation.
	if activateSubID != "" {
		if err := u.activateSubscription(ctx, activateSubID); err != nil {
			u.log.Error().Err(err).Str("subscription_id", activateSubID).
				Str("payment_id", outcome.Payment.ID).
				Msg("subscription activation failed after successful payment")
		}
	}
	return outcome, nil
}

// coinsFor computes the coins a successful payment grants: Plan.Coins for a
// subscription purchase, amount x coinsPerCurrencyUnit otherwise.
func (u *settlementUC) coinsFor(ctx context.Context, tx repository.Tx, p *model.Payment) (int64, model.TransactionSource, error) {
	if p.IsSubscription() {
		sub, err := u.subs.FindByID(ctx, tx, *p.SubscriptionID)
		if err != nil {
			return 0, "", fmt.Errorf("subscription %s: %w", *p.SubscriptionID, err)
		}
		plan, err := u.plans.FindByID(ctx, tx, sub.PlanID)
		if err != nil {
			return 0, "", fmt.Errorf("plan %s: %w", sub.PlanID, err)
		}
		return plan.Coins, model.SourceSubscription, nil
	}
	return p.AmountMinor * u.coinsPerUnit / 100, model.SourceOneTimePurchase, nil
}

// credit upserts-and-increments the wallet and appends the ledger entry in
// the same transaction that flips the payment to success.
func (u *settlementUC) credit(ctx context.Context, tx repository.Tx, p *model.Payment, coins int64, source model.TransactionSource, now time.Time) error {
	w, err := u.wallets.CreditUpsert(ctx, tx, p.UserID, coins)
	if err != nil {
		return fmt.Errorf("credit wallet: %w", err)
	}
	entry := &model.WalletTransaction{
		ID:          ulid.Make().String(),
		WalletID:    w.ID,
		UserID:      p.UserID,
		Amount:      coins,
		Type:        model.TransactionTypeCredit,
		Source:      source,
		Description: fmt.Sprintf("%d coins via %s", coins, p.Provider),
		Meta: map[string]interface{}{
			"payment_id":      p.ID,
			"idempotency_key": p.ProviderRef,
			"provider":        p.Provider,
			"processed_at":    now.Format(time.RFC3339),
		},
		CreatedAt: now,
	}
	if err := u.walletTxs.Insert(ctx, tx, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	metrics.AddCoinsCredited(string(source), coins)
	return nil
}

func (u *settlementUC) activateSubscription(ctx context.Context, subID string) error {
	sub, err := u.subs.FindByID(ctx, nil, subID)
	if err != nil {
		return err
	}
	plan, err := u.plans.FindByID(ctx, nil, sub.PlanID)
	if err != nil {
		return err
	}
	start := time.Now()
	return u.subs.Activate(ctx, nil, subID, start, plan.PeriodEnd(start))
}

func (u *settlementUC) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	return u.payments.FindByID(ctx, nil, id)
}

func (u *settlementUC) ListPayments(ctx context.Context, userID string, offset, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return u.payments.ListByUser(ctx, nil, userID, offset, limit)
}

func (u *settlementUC) ListPlans(ctx context.Context) ([]*model.Plan, error) {
	return u.plans.ListActive(ctx, nil)
}

func terminalOutcome(p *model.Payment) *VerifyOutcome {
	switch p.Status {
	case model.PaymentStatusSuccess:
		return &VerifyOutcome{Status: p.Status, Payment: p, Message: "payment verified and wallet credited"}
	case model.PaymentStatusFailed:
		return &VerifyOutcome{Status: p.Status, Payment: p, Message: "payment failed, please try again"}
	default:
		return &VerifyOutcome{Status: p.Status, Payment: p, Message: "payment is still pending"}
	}
}
