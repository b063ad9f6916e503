//go:build !integration

package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wallet-settlement/internal/domain"
	"wallet-settlement/internal/domain/model"
	"wallet-settlement/internal/domain/ports/adapter"
	"wallet-settlement/internal/domain/ports/repository"
	payadapters "wallet-settlement/internal/infra/adapters/payment"
)

func successGateway(name string) *mockGateway {
	gw := newMockGateway(name)
	gw.VerifyFunc = func(ctx context.Context, providerRef string) (*adapter.VerificationResult, error) {
		return &adapter.VerificationResult{Status: model.PaymentStatusSuccess}, nil
	}
	return gw
}

func seedPending(t *testing.T, f *fixture, amountMinor int64) *model.Payment {
	t.Helper()
	res, err := f.uc.Initiate(context.Background(), InitiateRequest{
		UserID:      "user-1",
		Provider:    f.gw.Name(),
		AmountMinor: amountMinor,
		Currency:    "USD",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return res.Payment
}

func TestInitiate(t *testing.T) {
	t.Run("unknown provider is rejected and no row is written", func(t *testing.T) {
		// --- Arrange ---
		gw := newMockGateway("teststack")
		f := newFixture(t, payadapters.NewRegistry(gw), gw)

		// --- Act ---
		_, err := f.uc.Initiate(context.Background(), InitiateRequest{
			UserID:      "user-1",
			Provider:    "PAYPAL",
			AmountMinor: 2000,
			Currency:    "USD",
		})

		// --- Assert ---
		if !errors.Is(err, domain.ErrUnsupportedProvider) {
			t.Fatalf("want ErrUnsupportedProvider, got %v", err)
		}
		if len(f.payments.byID) != 0 {
			t.Fatalf("no payment row should exist, got %d", len(f.payments.byID))
		}
	})

	t.Run("provider name is matched case-insensitively", func(t *testing.T) {
		gw := newMockGateway("teststack")
		f := newFixture(t, payadapters.NewRegistry(gw), gw)

		res, err := f.uc.Initiate(context.Background(), InitiateRequest{
			UserID:      "user-1",
			Provider:    "TestStack",
			AmountMinor: 2000,
			Currency:    "USD",
		})
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		if res.Payment.Provider != "teststack" {
			t.Fatalf("provider should be normalized, got %q", res.Payment.Provider)
		}
		if res.Payment.Status != model.PaymentStatusPending {
			t.Fatalf("new payment must be pending, got %q", res.Payment.Status)
		}
	})

	t.Run("gateway failure leaves no payment row", func(t *testing.T) {
		gw := newMockGateway("teststack")
		gw.InitiateFunc = func(ctx context.Context, req adapter.InitiationRequest) (*adapter.InitiationResult, error) {
			return nil, domain.ErrProviderUnavailable
		}
		f := newFixture(t, payadapters.NewRegistry(gw), gw)

		_, err := f.uc.Initiate(context.Background(), InitiateRequest{
			UserID: "user-1", Provider: "teststack", AmountMinor: 2000, Currency: "USD",
		})
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			t.Fatalf("want ErrProviderUnavailable, got %v", err)
		}
		if len(f.payments.byID) != 0 {
			t.Fatalf("no payment row should exist after failed initiation")
		}
	})

	t.Run("non-positive amount is rejected", func(t *testing.T) {
		gw := newMockGateway("teststack")
		f := newFixture(t, payadapters.NewRegistry(gw), gw)

		_, err := f.uc.Initiate(context.Background(), InitiateRequest{
			UserID: "user-1", Provider: "teststack", AmountMinor: 0, Currency: "USD",
		})
		if !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("want ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("plan purchase persists pending subscription with payment", func(t *testing.T) {
		gw := newMockGateway("teststack")
		f := newFixture(t, payadapters.NewRegistry(gw), gw)
		f.plans.Save(context.Background(), nil, &model.Plan{
			ID: "plan-1", Name: "Pro", Coins: 500, Interval: model.IntervalMonthly,
			PriceMinor: 999, Currency: "USD", Active: true,
		})

		res, err := f.uc.Initiate(context.Background(), InitiateRequest{
			UserID: "user-1", Provider: "teststack", PlanID: "plan-1",
		})
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		if res.Payment.AmountMinor != 999 {
			t.Fatalf("amount must come from the plan, got %d", res.Payment.AmountMinor)
		}
		if res.Payment.SubscriptionID == nil {
			t.Fatal("payment must link the subscription")
		}
		sub := f.subs.get(*res.Payment.SubscriptionID)
		if sub == nil || sub.Status != model.SubscriptionStatusPending {
			t.Fatalf("subscription must exist in pending state, got %+v", sub)
		}
	})
}

func TestVerify_SuccessfulSettlement(t *testing.T) {
	// --- Arrange: $20.00 at 10 coins per unit ---
	gw := successGateway("teststack")
	f := newFixture(t, payadapters.NewRegistry(gw), gw)
	p := seedPending(t, f, 2000)

	// --- Act ---
	out, err := f.uc.Verify(context.Background(), "teststack", p.ProviderRef)

	// --- Assert ---
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if out.Status != model.PaymentStatusSuccess {
		t.Fatalf("want success, got %q (%s)", out.Status, out.Message)
	}
	if out.Payment.CoinsGranted == nil || *out.Payment.CoinsGranted != 200 {
		t.Fatalf("2000 minor units at 10 coins/unit must grant 200 coins, got %v", out.Payment.CoinsGranted)
	}
	w, err := f.wallets.FindByUser(context.Background(), nil, "user-1")
	if err != nil || w.Balance != 200 {
		t.Fatalf("wallet balance want 200, got %+v (err %v)", w, err)
	}
	if f.ledger.count() != 1 {
		t.Fatalf("want exactly one ledger entry, got %d", f.ledger.count())
	}
	sum, _ := f.ledger.SumByUser(context.Background(), nil, "user-1")
	if sum != w.Balance {
		t.Fatalf("balance must equal ledger sum: balance=%d sum=%d", w.Balance, sum)
	}
}

func TestVerify_FailedPayment(t *testing.T) {
	gw := newMockGateway("teststack")
	gw.VerifyFunc = func(ctx context.Context, providerRef string) (*adapter.VerificationResult, error) {
		return &adapter.VerificationResult{Status: model.PaymentStatusFailed}, nil
	}
	f := newFixture(t, payadapters.NewRegistry(gw), gw)
	p := seedPending(t, f, 2000)

	out, err := f.uc.Verify(context.Background(), "teststack", p.ProviderRef)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if out.Status != model.PaymentStatusFailed {
		t.Fatalf("want failed, got %q", out.Status)
	}
	if f.ledger.count() != 0 {
		t.Fatalf("failed payment must not credit, ledger has %d entries", f.ledger.count())
	}
	if _, err := f.wallets.FindByUser(context.Background(), nil, "user-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("no wallet should have been created, got err %v", err)
	}
}

func TestVerify_ProviderStillPending(t *testing.T) {
	gw := newMockGateway("teststack") // default verify answer is pending
	f := newFixture(t, payadapters.NewRegistry(gw), gw)
	p := seedPending(t, f, 2000)

	out, err := f.uc.Verify(context.Background(), "teststack", p.ProviderRef)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if out.Status != model.PaymentStatusPending {
		t.Fatalf("want pending, got %q", out.Status)
	}
	// The processing claim must have been released so later calls can settle.
	if got := f.payments.get(p.ID); got.Status != model.PaymentStatusPending {
		t.Fatalf("row must be back to pending, got %q", got.Status)
	}
}

func TestVerify_GatewayErrorReportsPending(t *testing.T) {
	gw := newMockGateway("teststack")
	gw.VerifyFunc = func(ctx context.Context, providerRef string) (*adapter.VerificationResult, error) {
		return nil, errors.New("connection reset")
	}
	f := newFixture(t, payadapters.NewRegistry(gw), gw)
	p := seedPending(t, f, 2000)

	out, err := f.uc.Verify(context.Background(), "teststack", p.ProviderRef)
	if err != nil {
		t.Fatalf("gateway ambiguity must not surface as an error, got %v", err)
	}
	if out.Status != model.PaymentStatusPending {
		t.Fatalf("want pending, got %q", out.Status)
	}
	if got := f.payments.get(p.ID); got.Status != model.PaymentStatusPending {
		t.Fatalf("row must stay pending, got %q", got.Status)
	}
}

func TestVerify_UnknownReference(t *testing.T) {
	gw := successGateway("teststack")
	f := newFixture(t, payadapters.NewRegistry(gw), gw)

	_, err := f.uc.Verify(context.Background(), "teststack", "no-such-ref")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestVerify_IdempotentAfterSuccess(t *testing.T) {
	gw := successGateway("teststack")
	f := newFixture(t, payadapters.NewRegistry(gw), gw)
	p := seedPending(t, f, 2000)

	for i := 0; i < 3; i++ {
		out, err := f.uc.Verify(context.Background(), "teststack", p.ProviderRef)
		if err != nil {
			t.Fatalf("verify #%d: %v", i+1, err)
		}
		if out.Status != model.PaymentStatusSuccess {
			t.Fatalf("verify #%d: want success, got %q", i+1, out.Status)
		}
	}
	if f.ledger.count() != 1 {
		t.Fatalf("repeated verification must credit once, ledger has %d entries", f.ledger.count())
	}
}

func TestVerify_ConcurrentCallersCreditOnce(t *testing.T) {
	gw := successGateway("teststack")
	f := newFixture(t, payadapters.NewRegistry(gw), gw)
	p := seedPending(t, f, 2000)

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.uc.Verify(context.Background(), "teststack", p.ProviderRef)
			if err != nil {
				errs <- err
				return
			}
			// Callers racing the settler may legitimately see pending.
			if out.Status != model.PaymentStatusSuccess && out.Status != model.PaymentStatusPending {
				errs <- errors.New("unexpected status " + string(out.Status))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent verify: %v", err)
	}

	if f.ledger.count() != 1 {
		t.Fatalf("want exactly one ledger entry after %d concurrent callers, got %d", callers, f.ledger.count())
	}
	w, _ := f.wallets.FindByUser(context.Background(), nil, "user-1")
	if w.Balance != 200 {
		t.Fatalf("balance want 200, got %d", w.Balance)
	}
}

func TestHandleWebhook(t *testing.T) {
	t.Run("valid webhook settles the payment", func(t *testing.T) {
		gw := newMockGateway("teststack")
		f := newFixture(t, payadapters.NewRegistry(gw), gw)
		p := seedPending(t, f, 2000)
		gw.ParseFunc = func(body []byte) (*adapter.WebhookEvent, error) {
			return &adapter.WebhookEvent{ProviderRef: p.ProviderRef, Status: model.PaymentStatusSuccess}, nil
		}

		out, err := f.uc.HandleWebhook(context.Background(), "teststack", []byte(`{}`), "sig")
		if err != nil {
			t.Fatalf("webhook: %v", err)
		}
		if out.Status != model.PaymentStatusSuccess {
			t.Fatalf("want success, got %q", out.Status)
		}
		if f.ledger.count() != 1 {
			t.Fatalf("want one ledger entry, got %d", f.ledger.count())
		}
	})

	t.Run("bad signature is rejected before parsing", func(t *testing.T) {
		gw := newMockGateway("teststack")
		f := newFixture(t, payadapters.NewRegistry(gw), gw)
		seedPending(t, f, 2000)
		gw.SignatureOK = false
		gw.ParseFunc = func(body []byte) (*adapter.WebhookEvent, error) {
			t.Fatal("ParseWebhook must not run on a bad signature")
			return nil, nil
		}

		_, err := f.uc.HandleWebhook(context.Background(), "teststack", []byte(`{}`), "bad")
		if !errors.Is(err, domain.ErrInvalidSignature) {
			t.Fatalf("want ErrInvalidSignature, got %v", err)
		}
		if f.ledger.count() != 0 {
			t.Fatal("rejected webhook must not credit")
		}
	})

	t.Run("duplicate deliveries credit once", func(t *testing.T) {
		gw := newMockGateway("teststack")
		f := newFixture(t, payadapters.NewRegistry(gw), gw)
		p := seedPending(t, f, 2000)
		gw.ParseFunc = func(body []byte) (*adapter.WebhookEvent, error) {
			return &adapter.WebhookEvent{ProviderRef: p.ProviderRef, Status: model.PaymentStatusSuccess}, nil
		}

		for i := 0; i < 5; i++ {
			out, err := f.uc.HandleWebhook(context.Background(), "teststack", []byte(`{}`), "sig")
			if err != nil {
				t.Fatalf("delivery #%d: %v", i+1, err)
			}
			if out.Status != model.PaymentStatusSuccess {
				t.Fatalf("delivery #%d: want success, got %q", i+1, out.Status)
			}
		}
		if f.ledger.count() != 1 {
			t.Fatalf("want one ledger entry after 5 deliveries, got %d", f.ledger.count())
		}
	})

	t.Run("webhook and verify racing credit once", func(t *testing.T) {
		gw := successGateway("teststack")
		f := newFixture(t, payadapters.NewRegistry(gw), gw)
		p := seedPending(t, f, 2000)
		gw.ParseFunc = func(body []byte) (*adapter.WebhookEvent, error) {
			return &adapter.WebhookEvent{ProviderRef: p.ProviderRef, Status: model.PaymentStatusSuccess}, nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = f.uc.Verify(context.Background(), "teststack", p.ProviderRef)
			}()
			go func() {
				defer wg.Done()
				_, _ = f.uc.HandleWebhook(context.Background(), "teststack", []byte(`{}`), "sig")
			}()
		}
		wg.Wait()

		if f.ledger.count() != 1 {
			t.Fatalf("want exactly one ledger entry, got %d", f.ledger.count())
		}
	})

	t.Run("failure webhook after success does not regress the payment", func(t *testing.T) {
		gw := successGateway("teststack")
		f := newFixture(t, payadapters.NewRegistry(gw), gw)
		p := seedPending(t, f, 2000)
		if _, err := f.uc.Verify(context.Background(), "teststack", p.ProviderRef); err != nil {
			t.Fatalf("verify: %v", err)
		}
		gw.ParseFunc = func(body []byte) (*adapter.WebhookEvent, error) {
			return &adapter.WebhookEvent{ProviderRef: p.ProviderRef, Status: model.PaymentStatusFailed}, nil
		}

		out, err := f.uc.HandleWebhook(context.Background(), "teststack", []byte(`{}`), "sig")
		if err != nil {
			t.Fatalf("webhook: %v", err)
		}
		if out.Status != model.PaymentStatusSuccess {
			t.Fatalf("terminal states only move forward, got %q", out.Status)
		}
		if got := f.payments.get(p.ID); got.Status != model.PaymentStatusSuccess {
			t.Fatalf("row must stay success, got %q", got.Status)
		}
	})
}

func TestSubscriptionSettlement(t *testing.T) {
	newSubFixture := func(t *testing.T) (*fixture, *model.Payment) {
		gw := successGateway("teststack")
		f := newFixture(t, payadapters.NewRegistry(gw), gw)
		f.plans.Save(context.Background(), nil, &model.Plan{
			ID: "plan-1", Name: "Pro", Coins: 500, Interval: model.IntervalMonthly,
			PriceMinor: 999, Currency: "USD", Active: true,
		})
		res, err := f.uc.Initiate(context.Background(), InitiateRequest{
			UserID: "user-1", Provider: "teststack", PlanID: "plan-1",
		})
		if err != nil {
			t.Fatalf("initiate: %v", err)
		}
		return f, res.Payment
	}

	t.Run("success grants plan coins and activates the subscription", func(t *testing.T) {
		f, p := newSubFixture(t)

		out, err := f.uc.Verify(context.Background(), "teststack", p.ProviderRef)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if out.Status != model.PaymentStatusSuccess {
			t.Fatalf("want success, got %q", out.Status)
		}
		if out.Payment.CoinsGranted == nil || *out.Payment.CoinsGranted != 500 {
			t.Fatalf("subscription grants Plan.Coins (500), got %v", out.Payment.CoinsGranted)
		}

		sub := f.subs.get(*p.SubscriptionID)
		if sub.Status != model.SubscriptionStatusActive {
			t.Fatalf("subscription must be active, got %q", sub.Status)
		}
		if sub.CurrentPeriodStart == nil || sub.CurrentPeriodEnd == nil {
			t.Fatal("period bounds must be set on activation")
		}
		if got := sub.CurrentPeriodStart.AddDate(0, 1, 0); !got.Equal(*sub.CurrentPeriodEnd) {
			t.Fatalf("monthly period end mismatch: start=%v end=%v", sub.CurrentPeriodStart, sub.CurrentPeriodEnd)
		}

		entries, _ := f.ledger.ListByUser(context.Background(), nil, "user-1")
		if len(entries) != 1 || entries[0].Source != model.SourceSubscription {
			t.Fatalf("want one subscription-sourced ledger entry, got %+v", entries)
		}
	})

	t.Run("activation failure does not undo the credit", func(t *testing.T) {
		f, p := newSubFixture(t)
		f.subs.ActivateFunc = func(ctx context.Context, tx repository.Tx, id string, periodStart, periodEnd time.Time) error {
			return domain.ErrOperationFailed
		}

		out, err := f.uc.Verify(context.Background(), "teststack", p.ProviderRef)
		if err != nil {
			t.Fatalf("activation failure must not fail settlement, got %v", err)
		}
		if out.Status != model.PaymentStatusSuccess {
			t.Fatalf("want success, got %q", out.Status)
		}
		w, _ := f.wallets.FindByUser(context.Background(), nil, "user-1")
		if w == nil || w.Balance != 500 {
			t.Fatalf("credit must survive activation failure, got %+v", w)
		}
		sub := f.subs.get(*p.SubscriptionID)
		if sub.Status != model.SubscriptionStatusPending {
			t.Fatalf("subscription stays pending for out-of-band reconciliation, got %q", sub.Status)
		}
	})
}

func TestGetAndListPayments(t *testing.T) {
	gw := successGateway("teststack")
	f := newFixture(t, payadapters.NewRegistry(gw), gw)
	p := seedPending(t, f, 2000)

	got, err := f.uc.GetPayment(context.Background(), p.ID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("get payment: %v %+v", err, got)
	}
	if _, err := f.uc.GetPayment(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	list, err := f.uc.ListPayments(context.Background(), "user-1", 0, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("list payments: %v %d", err, len(list))
	}
}
