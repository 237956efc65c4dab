package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/beridzemate00/codereview/internal/core/domain"
	"github.com/beridzemate00/codereview/internal/infra/security"
	"github.com/beridzemate00/codereview/internal/repository"
)

type memoryAccounts struct {
	mu          sync.Mutex
	byID        map[string]domain.Account
	getErr      error
	updateErr   error
	updateCalls int
	// afterUpdate runs once a password write has been applied.
	afterUpdate func(ctx context.Context)
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{byID: map[string]domain.Account{}}
}

func (m *memoryAccounts) Create(_ context.Context, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == account.Email {
			return repository.ErrConflict
		}
	}
	m.byID[account.ID] = account
	return nil
}

func (m *memoryAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	account, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (m *memoryAccounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, account := range m.byID {
		if account.Email == email {
			copied := account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryAccounts) UpdatePassword(ctx context.Context, id string, hash string, changedAt time.Time) error {
	if err := m.applyPassword(id, hash, changedAt); err != nil {
		return err
	}
	if hook := m.afterUpdate; hook != nil {
		hook(ctx)
	}
	return nil
}

func (m *memoryAccounts) applyPassword(id string, hash string, changedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	account, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.PasswordHash = hash
	account.PasswordChangedAt = &changedAt
	m.byID[id] = account
	return nil
}

func (m *memoryAccounts) remove(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, account := range m.byID {
		if account.Email == email {
			delete(m.byID, id)
		}
	}
}

type memoryResets struct {
	mu         sync.Mutex
	byID       map[string]*domain.ResetRequest
	consumeErr error
	consumes   int
	releases   int
}

func newMemoryResets() *memoryResets {
	return &memoryResets{byID: map[string]*domain.ResetRequest{}}
}

func (m *memoryResets) Replace(_ context.Context, req domain.ResetRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.byID {
		if existing.Email == req.Email {
			delete(m.byID, id)
		}
	}
	copied := req
	m.byID[req.ID] = &copied
	return nil
}

func (m *memoryResets) FindByFingerprint(_ context.Context, fingerprint string) (*domain.ResetRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.byID {
		if req.Fingerprint == fingerprint {
			copied := *req
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryResets) Reserve(_ context.Context, id, holder string, now, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.byID[id]
	if !ok || !req.IsLive(now) {
		return false, nil
	}
	if req.ReservedUntil != nil && req.ReservedUntil.After(now) {
		return false, nil
	}
	req.ReservedBy = holder
	req.ReservedUntil = &until
	return true, nil
}

func (m *memoryResets) Release(_ context.Context, id, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	req, ok := m.byID[id]
	if ok && req.ReservedBy == holder && !req.Consumed {
		req.ReservedBy = ""
		req.ReservedUntil = nil
	}
	return nil
}

func (m *memoryResets) Consume(_ context.Context, id, holder string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumes++
	if m.consumeErr != nil {
		return m.consumeErr
	}
	req, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if req.ReservedBy != holder {
		return repository.ErrConflict
	}
	req.Consumed = true
	if req.ConsumedAt == nil {
		req.ConsumedAt = &at
	}
	req.ReservedUntil = nil
	return nil
}

func (m *memoryResets) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, req := range m.byID {
		if req.ExpiresAt.Before(before) {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

func (m *memoryResets) all() []domain.ResetRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ResetRequest, 0, len(m.byID))
	for _, req := range m.byID {
		out = append(out, *req)
	}
	return out
}

type fakeNotifier struct {
	mu         sync.Mutex
	configured bool
	delivered  bool
	resetErr   error
	block      chan struct{}
	resets     []domain.PasswordResetNotification
	welcomes   []domain.WelcomeNotification
	changes    []domain.PasswordChangedNotification
}

func (f *fakeNotifier) SendPasswordReset(ctx context.Context, n domain.PasswordResetNotification) (bool, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, n)
	return f.delivered, f.resetErr
}

func (f *fakeNotifier) SendWelcome(_ context.Context, n domain.WelcomeNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.welcomes = append(f.welcomes, n)
	return nil
}

func (f *fakeNotifier) SendPasswordChanged(_ context.Context, n domain.PasswordChangedNotification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, n)
	return nil
}

func (f *fakeNotifier) IsConfigured() bool {
	return f.configured
}

func (f *fakeNotifier) lastReset(t *testing.T) domain.PasswordResetNotification {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.resets) == 0 {
		t.Fatal("expected a reset notification")
	}
	return f.resets[len(f.resets)-1]
}

// syncRunner runs submitted jobs inline so tests can assert on their effects.
type syncRunner struct {
	mu     sync.Mutex
	names  []string
	reject bool
}

func (r *syncRunner) Submit(name string, job func(ctx context.Context) error) bool {
	if r.reject {
		return false
	}
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	_ = job(context.Background())
	return true
}

type authFixture struct {
	svc      *AuthService
	accounts *memoryAccounts
	resets   *memoryResets
	store    *ResetTokenStore
	notifier *fakeNotifier
	runner   *syncRunner
	sessions *security.SessionIssuer
	clock    *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixtureOption func(*AuthSettings, *fakeNotifier)

func withDevMode() fixtureOption {
	return func(s *AuthSettings, _ *fakeNotifier) { s.DevMode = true }
}

func withConfiguredNotifier() fixtureOption {
	return func(_ *AuthSettings, n *fakeNotifier) {
		n.configured = true
		n.delivered = true
	}
}

func newAuthFixture(t *testing.T, opts ...fixtureOption) *authFixture {
	t.Helper()

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}

	secrets, err := security.NewSecretGenerator(security.DefaultSecretBytes)
	if err != nil {
		t.Fatalf("NewSecretGenerator returned error: %v", err)
	}

	sessions, err := security.NewSessionIssuer("0123456789abcdef0123456789abcdef", "codereview-test", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionIssuer returned error: %v", err)
	}

	clock := &testClock{now: time.Now().UTC()}
	accounts := newMemoryAccounts()
	resets := newMemoryResets()
	store := NewResetTokenStore(resets, secrets, zap.NewNop(), WithClock(clock.Now))
	notifier := &fakeNotifier{}
	runner := &syncRunner{}

	settings := AuthSettings{
		FrontendBaseURL: "https://review.example.com/",
		NotifyTimeout:   200 * time.Millisecond,
		ConsumeRetries:  2,
		ConsumeBackoff:  time.Millisecond,
	}
	for _, opt := range opts {
		opt(&settings, notifier)
	}

	svc, err := NewAuthService(AuthDependencies{
		Accounts:   accounts,
		Resets:     store,
		Hasher:     hasher,
		Sessions:   sessions,
		Notifier:   notifier,
		Background: runner,
		Logger:     zap.NewNop(),
	}, settings)
	if err != nil {
		t.Fatalf("NewAuthService returned error: %v", err)
	}
	svc.now = clock.Now

	return &authFixture{
		svc:      svc,
		accounts: accounts,
		resets:   resets,
		store:    store,
		notifier: notifier,
		runner:   runner,
		sessions: sessions,
		clock:    clock,
	}
}

// register creates a@x.com / secret1 and returns the account id.
func (f *authFixture) register(t *testing.T) string {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{Email: "a@x.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return res.Account.ID
}

// issueSecret runs forgot-password for email and returns the delivered raw secret.
func (f *authFixture) issueSecret(t *testing.T, email string) string {
	t.Helper()
	if _, err := f.svc.ForgotPassword(context.Background(), email); err != nil {
		t.Fatalf("ForgotPassword returned error: %v", err)
	}
	link := f.notifier.lastReset(t).Link
	const marker = "token="
	idx := len(link) - 64
	if idx < 0 || link[idx-len(marker):idx] != marker {
		t.Fatalf("unexpected reset link %q", link)
	}
	return link[idx:]
}

var errBackend = errors.New("backend down")
