package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	retry "github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/beridzemate00/codereview/internal/core/domain"
	"github.com/beridzemate00/codereview/internal/core/port"
	"github.com/beridzemate00/codereview/internal/infra/logger"
	"github.com/beridzemate00/codereview/internal/infra/security"
	"github.com/beridzemate00/codereview/internal/infra/telemetry"
	"github.com/beridzemate00/codereview/internal/repository"
)

// ForgotPasswordMessage is the only response a forgot-password caller sees.
const ForgotPasswordMessage = "If an account exists for that email, a reset link has been sent."

const (
	defaultNotifyTimeout  = 5 * time.Second
	defaultConsumeRetries = 3
	defaultConsumeBackoff = 50 * time.Millisecond

	decoyPassword = "codereview-decoy-password"

	// leaseConsumeShare is the fraction (1/n) of a reservation lease kept
	// back from the credential update for consuming the token.
	leaseConsumeShare = 5
)

// AuthDependencies groups the collaborators of AuthService.
type AuthDependencies struct {
	Accounts   port.AccountRepository
	Resets     *ResetTokenStore
	Hasher     port.PasswordHasher
	Sessions   port.SessionIssuer
	Notifier   port.Notifier
	Background port.BackgroundRunner
	Passwords  *security.PasswordValidator
	Logger     *zap.Logger
	Metrics    *telemetry.AuthMetrics
	Tracer     trace.Tracer
}

// AuthSettings carries the process-wide knobs of AuthService.
type AuthSettings struct {
	FrontendBaseURL string
	// DevMode allows the reset link to be returned to the caller when no
	// notification channel is configured.
	DevMode        bool
	NotifyTimeout  time.Duration
	ConsumeRetries uint64
	ConsumeBackoff time.Duration
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput is the login payload.
type LoginInput struct {
	Email    string
	Password string
}

// ResetPasswordInput is the reset payload.
type ResetPasswordInput struct {
	Token    string
	Password string
}

// AuthResult is returned by successful registration and login.
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	Account   domain.PublicAccount
}

// ForgotPasswordResult is identical for known and unknown emails, except
// for ResetLink which is only set in development without a notifier.
type ForgotPasswordResult struct {
	Message   string
	ResetLink string
}

// VerifyResetResult describes a redeemable reset secret.
type VerifyResetResult struct {
	Email string
}

// AuthService runs registration, login and the password reset flows.
type AuthService struct {
	accounts   port.AccountRepository
	resets     *ResetTokenStore
	hasher     port.PasswordHasher
	sessions   port.SessionIssuer
	notifier   port.Notifier
	background port.BackgroundRunner
	passwords  *security.PasswordValidator
	logger     *zap.Logger
	metrics    *telemetry.AuthMetrics
	tracer     trace.Tracer
	settings   AuthSettings
	now        func() time.Time
	// decoyHash is verified against when the account does not exist.
	decoyHash  string
}

// NewAuthService validates deps and fills in setting defaults.
func NewAuthService(deps AuthDependencies, settings AuthSettings) (*AuthService, error) {
	switch {
	case deps.Accounts == nil:
		return nil, errors.New("auth service: account repository is required")
	case deps.Resets == nil:
		return nil, errors.New("auth service: reset token store is required")
	case deps.Hasher == nil:
		return nil, errors.New("auth service: password hasher is required")
	case deps.Sessions == nil:
		return nil, errors.New("auth service: session issuer is required")
	case deps.Notifier == nil:
		return nil, errors.New("auth service: notifier is required")
	case deps.Background == nil:
		return nil, errors.New("auth service: background runner is required")
	}

	if _, err := url.ParseRequestURI(settings.FrontendBaseURL); err != nil {
		return nil, fmt.Errorf("auth service: frontend base url: %w", err)
	}
	settings.FrontendBaseURL = strings.TrimRight(settings.FrontendBaseURL, "/")

	if settings.NotifyTimeout <= 0 {
		settings.NotifyTimeout = defaultNotifyTimeout
	}
	if settings.ConsumeRetries == 0 {
		settings.ConsumeRetries = defaultConsumeRetries
	}
	if settings.ConsumeBackoff <= 0 {
		settings.ConsumeBackoff = defaultConsumeBackoff
	}

	if deps.Passwords == nil {
		deps.Passwords = security.DefaultPasswordValidator()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(telemetry.TracerName)
	}

	decoyHash, err := deps.Hasher.Hash(decoyPassword)
	if err != nil {
		return nil, fmt.Errorf("auth service: compute decoy hash: %w", err)
	}

	return &AuthService{
		accounts:   deps.Accounts,
		resets:     deps.Resets,
		hasher:     deps.Hasher,
		sessions:   deps.Sessions,
		notifier:   deps.Notifier,
		background: deps.Background,
		passwords:  deps.Passwords,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		settings:   settings,
		now:        time.Now,
		decoyHash:  decoyHash,
	}, nil
}

// Register creates an account and signs the caller in.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (_ *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Register")
	defer func() { endSpan(span, err) }()

	email := domain.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, validationErr("email and password are required")
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = domain.DisplayNameFromEmail(email)
	}

	if err := s.checkPassword(in.Password, email, name); err != nil {
		return nil, err
	}

	log := logger.WithRequest(ctx, s.logger).With(zap.String("email", logger.MaskEmail(email)))

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		log.Error("lookup account failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		log.Error("hash password failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         domain.RoleUser,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		log.Error("create account failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.metrics.Registered()
	log.Info("account registered", zap.String("account_id", account.ID))

	welcome := domain.WelcomeNotification{Email: account.Email, Name: account.Name}
	if !s.background.Submit(domain.EventAccountRegistered, func(ctx context.Context) error {
		return s.notifier.SendWelcome(ctx, welcome)
	}) {
		log.Warn("welcome notification dropped")
	}

	return s.issueSession(ctx, account)
}

// Login verifies credentials. Unknown emails and wrong passwords produce
// the same error after the same amount of hashing work.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (_ *AuthResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.Login")
	defer func() { endSpan(span, err) }()

	email := domain.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, validationErr("email and password are required")
	}

	log := logger.WithRequest(ctx, s.logger).With(zap.String("email", logger.MaskEmail(email)))

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Error("lookup account failed", zap.Error(err))
			s.metrics.Login(telemetry.LoginFailed)
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		_, _ = s.hasher.Verify(in.Password, s.decoyHash)
		s.metrics.Login(telemetry.LoginInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(in.Password, account.PasswordHash)
	if err != nil {
		log.Error("verify password failed", zap.String("account_id", account.ID), zap.Error(err))
		s.metrics.Login(telemetry.LoginInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		s.metrics.Login(telemetry.LoginInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	s.metrics.Login(telemetry.LoginSucceeded)
	return s.issueSession(ctx, *account)
}

// ForgotPassword issues and delivers a reset link when the account exists.
// The result never reveals whether it did.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (_ *ForgotPasswordResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ForgotPassword")
	defer func() { endSpan(span, err) }()

	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, validationErr("email is required")
	}

	s.metrics.ResetRequested()
	result := &ForgotPasswordResult{Message: ForgotPasswordMessage}
	log := logger.WithRequest(ctx, s.logger).With(zap.String("email", logger.MaskEmail(email)))

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Error("lookup account for reset failed", zap.Error(err))
		}
		return result, nil
	}

	issued, err := s.resets.Issue(ctx, account.Email)
	if err != nil {
		log.Error("issue reset token failed", zap.Error(err))
		return result, nil
	}

	link := s.resetLink(issued.Secret)
	s.deliverResetLink(ctx, log, domain.PasswordResetNotification{
		Email:     account.Email,
		Link:      link,
		ExpiresAt: issued.ExpiresAt,
	})

	if s.settings.DevMode && !s.notifier.IsConfigured() {
		result.ResetLink = link
	}

	return result, nil
}

// deliverResetLink waits for the notifier at most NotifyTimeout.
func (s *AuthService) deliverResetLink(ctx context.Context, log *zap.Logger, n domain.PasswordResetNotification) {
	ctx, cancel := context.WithTimeout(ctx, s.settings.NotifyTimeout)
	defer cancel()

	type outcome struct {
		delivered bool
		err       error
	}
	done := make(chan outcome, 1)

	go func() {
		delivered, err := s.notifier.SendPasswordReset(ctx, n)
		done <- outcome{delivered: delivered, err: err}
	}()

	select {
	case res := <-done:
		switch {
		case res.err != nil:
			s.metrics.ResetDelivery("failed")
			log.Error("reset link delivery failed", zap.Error(res.err))
		case !res.delivered:
			s.metrics.ResetDelivery("undelivered")
			log.Warn("reset link not delivered")
		default:
			s.metrics.ResetDelivery("delivered")
		}
	case <-ctx.Done():
		s.metrics.ResetDelivery("timeout")
		log.Warn("reset link delivery timed out", zap.Duration("timeout", s.settings.NotifyTimeout))
	}
}

// VerifyResetToken reports the email behind a redeemable secret.
func (s *AuthService) VerifyResetToken(ctx context.Context, secret string) (_ *VerifyResetResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.VerifyResetToken")
	defer func() { endSpan(span, err) }()

	lookup, err := s.resets.Lookup(ctx, secret)
	if err != nil {
		logger.WithRequest(ctx, s.logger).Error("lookup reset token failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	found, ok := lookup.(domain.ResetFound)
	if !ok {
		return nil, ErrResetTokenInvalid
	}

	return &VerifyResetResult{Email: found.Request.Email}, nil
}

// ResetPassword redeems secret and replaces the account password. The
// credential update and the token consumption behave as one step: a failed
// update leaves the token usable, a failed consumption after a successful
// update is reported as success and alerted on.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.ResetPassword")
	defer func() {
		s.metrics.Reset(resetOutcome(err))
		endSpan(span, err)
	}()

	if in.Token == "" {
		return ErrResetTokenInvalid
	}
	if err := s.checkPassword(in.Password); err != nil {
		return err
	}

	log := logger.WithRequest(ctx, s.logger)

	lookup, err := s.resets.Lookup(ctx, in.Token)
	if err != nil {
		log.Error("lookup reset token failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	found, ok := lookup.(domain.ResetFound)
	if !ok {
		return ErrResetTokenInvalid
	}
	req := found.Request
	log = log.With(zap.String("reset_request_id", req.ID), zap.String("email", logger.MaskEmail(req.Email)))

	account, err := s.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		log.Error("lookup account for reset failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		log.Error("hash password failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	reservation, ok, err := s.resets.Reserve(ctx, req.ID)
	if err != nil {
		log.Error("reserve reset token failed", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !ok {
		return ErrResetTokenInvalid
	}

	// Past this point the request context may be cancelled without
	// leaving the token half-retired.
	detached := context.WithoutCancel(ctx)
	changedAt := s.now().UTC()

	leaseLeft := s.resets.Remaining(reservation)
	updateCtx, cancelUpdate := context.WithTimeout(ctx, leaseLeft-leaseLeft/leaseConsumeShare)
	updateErr := s.accounts.UpdatePassword(updateCtx, account.ID, hash, changedAt)
	cancelUpdate()
	if updateErr != nil {
		log.Error("update password failed", zap.Error(updateErr))
		if relErr := s.resets.Release(detached, reservation); relErr != nil {
			log.Warn("release reset reservation failed", zap.Error(relErr))
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, updateErr)
	}

	backoff := retry.WithMaxRetries(s.settings.ConsumeRetries, retry.NewExponential(s.settings.ConsumeBackoff))
	consumeErr := retry.Do(detached, backoff, func(ctx context.Context) error {
		err := s.resets.Consume(ctx, reservation)
		if err == nil || errors.Is(err, ErrReservationLost) {
			return err
		}
		return retry.RetryableError(err)
	})
	switch {
	case errors.Is(consumeErr, ErrReservationLost):
		// Another caller redeemed the secret after this lease lapsed; its
		// password write is the later one.
		log.Error("reset reservation lapsed before the token was consumed",
			zap.String("account_id", account.ID),
			zap.Time("reserved_until", reservation.Until),
		)
		return ErrResetTokenInvalid
	case consumeErr != nil:
		s.metrics.ConsumeFailed()
		log.Error("password changed but reset token was not consumed",
			zap.String("account_id", account.ID),
			zap.Error(consumeErr),
		)
	}

	log.Info("password reset completed", zap.String("account_id", account.ID))

	changed := domain.PasswordChangedNotification{Email: account.Email, ChangedAt: changedAt}
	if !s.background.Submit(domain.EventPasswordChanged, func(ctx context.Context) error {
		return s.notifier.SendPasswordChanged(ctx, changed)
	}) {
		log.Warn("password changed notification dropped")
	}

	return nil
}

// CurrentAccount returns the public view of accountID.
func (s *AuthService) CurrentAccount(ctx context.Context, accountID string) (_ *domain.PublicAccount, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.CurrentAccount")
	defer func() { endSpan(span, err) }()

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		logger.WithRequest(ctx, s.logger).Error("load account failed", zap.String("account_id", accountID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	public := account.Public()
	return &public, nil
}

// Authenticate resolves a session credential to an account id.
func (s *AuthService) Authenticate(_ context.Context, credential string) (string, error) {
	if credential == "" {
		return "", ErrInvalidSession
	}
	accountID, err := s.sessions.Verify(credential)
	if err != nil {
		return "", ErrInvalidSession
	}
	return accountID, nil
}

func (s *AuthService) issueSession(ctx context.Context, account domain.Account) (*AuthResult, error) {
	token, expiresAt, err := s.sessions.Issue(account.ID)
	if err != nil {
		logger.WithRequest(ctx, s.logger).Error("issue session failed", zap.String("account_id", account.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	return &AuthResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Account:   account.Public(),
	}, nil
}

func (s *AuthService) checkPassword(password string, userInputs ...string) error {
	err := s.passwords.Validate(password, userInputs...)
	if err == nil {
		return nil
	}

	var pvErr *security.PasswordValidationError
	if errors.As(err, &pvErr) {
		return weakPasswordErr(pvErr.Message)
	}
	return weakPasswordErr(err.Error())
}

func (s *AuthService) resetLink(secret string) string {
	return s.settings.FrontendBaseURL + "/reset-password?token=" + url.QueryEscape(secret)
}

func resetOutcome(err error) string {
	switch {
	case err == nil:
		return telemetry.ResetSucceeded
	case errors.Is(err, ErrResetTokenInvalid):
		return telemetry.ResetInvalidToken
	case errors.Is(err, ErrWeakPassword):
		return telemetry.ResetWeakPassword
	default:
		return telemetry.ResetFailed
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("auth.failed", true))
	}
	span.End()
}
