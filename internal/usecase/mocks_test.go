//go:build !integration

package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"wallet-settlement/internal/domain"
	"wallet-settlement/internal/domain/model"
	"wallet-settlement/internal/domain/ports/adapter"
	"wallet-settlement/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

//
// ---------------- tx manager ----------------
//

type noTx struct{}

// mockTxManager serializes transactions with a mutex, which is how the row
// lock behaves for callers contending on the same payment.
type mockTxManager struct {
	mu sync.Mutex

	BeginErr error
	FnErr    error // injected as the callback result
}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.BeginErr != nil {
		return m.BeginErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FnErr != nil {
		return m.FnErr
	}
	return fn(ctx, noTx{})
}

//
// ---------------- payment repo ----------------
//

type memPaymentRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Payment

	SaveFunc        func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	MarkSuccessFunc func(ctx context.Context, tx repository.Tx, id string, coins int64, meta map[string]interface{}, at time.Time) error
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{byID: map[string]*model.Payment{}}
}

func (m *memPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) FindByProviderRef(ctx context.Context, tx repository.Tx, provider, providerRef string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Provider == provider && p.ProviderRef == providerRef {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.byID {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPaymentRepo) ClaimProcessing(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = model.PaymentStatusProcessing
	p.UpdatedAt = time.Now()
	return true, nil
}

func (m *memPaymentRepo) ReleaseProcessing(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok && p.Status == model.PaymentStatusProcessing {
		p.Status = model.PaymentStatusPending
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (m *memPaymentRepo) MarkSuccess(ctx context.Context, tx repository.Tx, id string, coins int64, meta map[string]interface{}, at time.Time) error {
	if m.MarkSuccessFunc != nil {
		return m.MarkSuccessFunc(ctx, tx, id, coins, meta, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = model.PaymentStatusSuccess
	p.CoinsGranted = &coins
	p.UpdatedAt = at
	return nil
}

func (m *memPaymentRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, meta map[string]interface{}, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = model.PaymentStatusFailed
	p.UpdatedAt = at
	return nil
}

func (m *memPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.byID {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPaymentRepo) get(id string) *model.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.byID[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

//
// ---------------- wallet + ledger repos ----------------
//

type memWalletRepo struct {
	mu     sync.Mutex
	byUser map[string]*model.Wallet
	seq    int

	CreditUpsertFunc func(ctx context.Context, tx repository.Tx, userID string, amount int64) (*model.Wallet, error)
}

func newMemWalletRepo() *memWalletRepo {
	return &memWalletRepo{byUser: map[string]*model.Wallet{}}
}

func (m *memWalletRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (m *memWalletRepo) CreditUpsert(ctx context.Context, tx repository.Tx, userID string, amount int64) (*model.Wallet, error) {
	if m.CreditUpsertFunc != nil {
		return m.CreditUpsertFunc(ctx, tx, userID, amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byUser[userID]
	if !ok {
		m.seq++
		w = &model.Wallet{ID: "w-" + userID, UserID: userID, CreatedAt: time.Now()}
		m.byUser[userID] = w
	}
	w.Balance += amount
	w.UpdatedAt = time.Now()
	cp := *w
	return &cp, nil
}

type memWalletTxRepo struct {
	mu      sync.Mutex
	entries []*model.WalletTransaction

	InsertFunc func(ctx context.Context, tx repository.Tx, wt *model.WalletTransaction) error
}

func newMemWalletTxRepo() *memWalletTxRepo { return &memWalletTxRepo{} }

func (m *memWalletTxRepo) Insert(ctx context.Context, tx repository.Tx, wt *model.WalletTransaction) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, tx, wt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *wt
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memWalletTxRepo) CountByPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.Meta["payment_id"] == paymentID {
			n++
		}
	}
	return n, nil
}

func (m *memWalletTxRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.WalletTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WalletTransaction
	for _, e := range m.entries {
		if e.UserID == userID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memWalletTxRepo) SumByUser(ctx context.Context, tx repository.Tx, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, e := range m.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (m *memWalletTxRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

//
// ---------------- plan + subscription repos ----------------
//

type memPlanRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Plan
}

func newMemPlanRepo() *memPlanRepo { return &memPlanRepo{byID: map[string]*model.Plan{}} }

func (m *memPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *memPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Plan
	for _, p := range m.byID {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memSubRepo struct {
	mu   sync.Mutex
	byID map[string]*model.UserSubscription

	ActivateFunc func(ctx context.Context, tx repository.Tx, id string, periodStart, periodEnd time.Time) error
}

func newMemSubRepo() *memSubRepo { return &memSubRepo{byID: map[string]*model.UserSubscription{}} }

func (m *memSubRepo) Save(ctx context.Context, tx repository.Tx, s *model.UserSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byID[s.ID] = &cp
	return nil
}

func (m *memSubRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubRepo) Activate(ctx context.Context, tx repository.Tx, id string, periodStart, periodEnd time.Time) error {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, tx, id, periodStart, periodEnd)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok || s.Status != model.SubscriptionStatusPending {
		return domain.ErrNotFound
	}
	s.Status = model.SubscriptionStatusActive
	s.CurrentPeriodStart = &periodStart
	s.CurrentPeriodEnd = &periodEnd
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memSubRepo) get(id string) *model.UserSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byID[id]; ok {
		cp := *s
		return &cp
	}
	return nil
}

//
// ---------------- gateway mock ----------------
//

type mockGateway struct {
	name string

	InitiateFunc  func(ctx context.Context, req adapter.InitiationRequest) (*adapter.InitiationResult, error)
	VerifyFunc    func(ctx context.Context, providerRef string) (*adapter.VerificationResult, error)
	SignatureOK   bool
	ParseFunc     func(body []byte) (*adapter.WebhookEvent, error)
	initiateCalls int
	mu            sync.Mutex
}

func newMockGateway(name string) *mockGateway {
	return &mockGateway{name: name, SignatureOK: true}
}

func (g *mockGateway) Name() string { return g.name }

func (g *mockGateway) InitiatePayment(ctx context.Context, req adapter.InitiationRequest) (*adapter.InitiationResult, error) {
	g.mu.Lock()
	g.initiateCalls++
	n := g.initiateCalls
	g.mu.Unlock()
	if g.InitiateFunc != nil {
		return g.InitiateFunc(ctx, req)
	}
	return &adapter.InitiationResult{
		Provider:    g.name,
		ProviderRef: g.name + "-ref-" + time.Now().Format("150405.000000000") + "-" + string(rune('a'+n%26)),
		RedirectURL: "https://checkout.example/" + g.name,
	}, nil
}

func (g *mockGateway) VerifyPayment(ctx context.Context, providerRef string) (*adapter.VerificationResult, error) {
	if g.VerifyFunc != nil {
		return g.VerifyFunc(ctx, providerRef)
	}
	return &adapter.VerificationResult{Status: model.PaymentStatusPending}, nil
}

func (g *mockGateway) SignatureHeader() string { return "x-test-signature" }

func (g *mockGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return g.SignatureOK
}

func (g *mockGateway) ParseWebhook(body []byte) (*adapter.WebhookEvent, error) {
	if g.ParseFunc != nil {
		return g.ParseFunc(body)
	}
	return nil, domain.ErrMissingReference
}

//
// ---------------- fixture ----------------
//

type fixture struct {
	payments *memPaymentRepo
	wallets  *memWalletRepo
	ledger   *memWalletTxRepo
	plans    *memPlanRepo
	subs     *memSubRepo
	tm       *mockTxManager
	gw       *mockGateway
	uc       SettlementUseCase
}

func newFixture(t *testing.T, registry adapter.GatewayRegistry, gw *mockGateway) *fixture {
	t.Helper()
	f := &fixture{
		payments: newMemPaymentRepo(),
		wallets:  newMemWalletRepo(),
		ledger:   newMemWalletTxRepo(),
		plans:    newMemPlanRepo(),
		subs:     newMemSubRepo(),
		tm:       &mockTxManager{},
		gw:       gw,
	}
	f.uc = NewSettlementUseCase(
		f.payments, f.wallets, f.ledger, f.plans, f.subs,
		registry, f.tm, nil,
		10, 5*time.Second, newTestLogger(),
	)
	return f
}
