package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	googleadapter "github.com/otklabs/otk-auth/internal/adapter/google"
	"github.com/otklabs/otk-auth/internal/adapter/mail"
	"github.com/otklabs/otk-auth/internal/config"
	"github.com/otklabs/otk-auth/internal/domain"
	"github.com/otklabs/otk-auth/internal/namespace"
	"github.com/otklabs/otk-auth/internal/otp"
	pw "github.com/otklabs/otk-auth/internal/password"
	"github.com/otklabs/otk-auth/internal/repository"
)

const minPasswordLength = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthService encapsulates the credential issuance flows: namespaced
// registration with OTP verification, password login, and Google sign-in.
type AuthService struct {
	users     repository.UserRepository
	otp       *otp.Issuer
	mailer    mail.Sender
	google    googleadapter.Verifier
	snowflake *snowflake.Node
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(users repository.UserRepository, issuer *otp.Issuer, mailer mail.Sender, verifier googleadapter.Verifier, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		otp:       issuer,
		mailer:    mailer,
		google:    verifier,
		snowflake: node,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/otklabs/otk-auth/internal/service"),
	}
}

// Register creates a local-provider account and issues a verification code.
// The code is emailed best-effort; delivery failures never fail the request.
func (s *AuthService) Register(ctx context.Context, nsCtx *namespace.Context, email, password, name string) (RegisterResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	if strings.TrimSpace(email) == "" {
		return RegisterResult{}, newValidationError("email is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return RegisterResult{}, newValidationError("email must be valid")
	}
	if len(strings.TrimSpace(password)) < minPasswordLength {
		return RegisterResult{}, newValidationError("password must be at least 8 characters")
	}
	fullName := strings.TrimSpace(name)
	if fullName == "" {
		return RegisterResult{}, newValidationError("fullname is required")
	}

	normalized := normalizeEmail(email)
	salt, hash, err := pw.Hash(password)
	if err != nil {
		span.RecordError(err)
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           s.snowflake.Generate().String(),
		Namespace:    nsCtx.Tag,
		Email:        normalized,
		Name:         fullName,
		Provider:     domain.ProviderLocal,
		PasswordHash: hash,
		Salt:         salt,
		CreatedAt:    time.Now().UTC(),
	}

	// The duplicate check happens inside Create so two concurrent
	// registrations for one email cannot both succeed.
	created, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return RegisterResult{}, newConflictError("User already exists")
		}
		span.RecordError(err)
		return RegisterResult{}, fmt.Errorf("create user: %w", err)
	}

	code, err := s.otp.Issue(ctx, nsCtx.Tag, normalized)
	if err != nil {
		span.RecordError(err)
		return RegisterResult{}, fmt.Errorf("issue otp: %w", err)
	}
	s.dispatchOTPEmail(normalized, code)

	s.audit("register.success", "namespace", nsCtx.Tag, "user_id", created.ID)
	return RegisterResult{
		Message:             fmt.Sprintf("Registered successfully (%s). Check your email for the verification code.", nsCtx.Tag),
		User:                newUserViewModel(created),
		PendingVerification: true,
	}, nil
}

// Login authenticates a local account. Accounts with a pending OTP entry
// cannot log in regardless of password correctness.
func (s *AuthService) Login(ctx context.Context, nsCtx *namespace.Context, email, password string) (SessionResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	if strings.TrimSpace(email) == "" {
		return SessionResult{}, newValidationError("email is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return SessionResult{}, newValidationError("email must be valid")
	}
	if strings.TrimSpace(password) == "" {
		return SessionResult{}, newValidationError("password is required")
	}

	normalized := normalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, nsCtx.Tag, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return SessionResult{}, newNotFoundError("User not found")
		}
		span.RecordError(err)
		return SessionResult{}, fmt.Errorf("load user: %w", err)
	}
	if user.Provider != domain.ProviderLocal {
		return SessionResult{}, newNotFoundError("User not found")
	}

	if !pw.Verify(password, user.Salt, user.PasswordHash) {
		s.audit("login.invalid_credentials", "namespace", nsCtx.Tag, "user_id", user.ID)
		return SessionResult{}, newUnauthorizedError("Invalid credentials")
	}

	pending, err := s.otp.Pending(ctx, nsCtx.Tag, normalized)
	if err != nil {
		span.RecordError(err)
		return SessionResult{}, fmt.Errorf("check pending otp: %w", err)
	}
	if pending {
		return SessionResult{}, newForbiddenError("Account not verified. Please confirm OTP.")
	}

	s.audit("login.success", "namespace", nsCtx.Tag, "user_id", user.ID)
	return SessionResult{
		Message: fmt.Sprintf("Logged in successfully (%s)", nsCtx.Tag),
		User:    newUserViewModel(user),
		Token:   s.newSessionToken(),
	}, nil
}

// Logout acknowledges the request. Session tokens are opaque and stateless;
// there is nothing server-side to revoke.
func (s *AuthService) Logout(ctx context.Context, nsCtx *namespace.Context) string {
	s.audit("logout", "namespace", nsCtx.Tag)
	return fmt.Sprintf("Logged out (%s)", nsCtx.Tag)
}

// VerifyOTP consumes a pending verification code and activates the account,
// minting its first session token.
func (s *AuthService) VerifyOTP(ctx context.Context, nsCtx *namespace.Context, email, code string) (SessionResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.VerifyOTP")
	defer span.End()

	if strings.TrimSpace(email) == "" {
		return SessionResult{}, newValidationError("email is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return SessionResult{}, newValidationError("email must be valid")
	}
	trimmedCode := strings.TrimSpace(code)
	if len(trimmedCode) != otp.CodeDigits {
		return SessionResult{}, newValidationError("code must be a 6-digit string")
	}

	normalized := normalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, nsCtx.Tag, normalized)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return SessionResult{}, newNotFoundError("User not found")
		}
		span.RecordError(err)
		return SessionResult{}, fmt.Errorf("load user: %w", err)
	}

	if err := s.otp.Verify(ctx, nsCtx.Tag, normalized, trimmedCode); err != nil {
		switch {
		case errors.Is(err, otp.ErrCodeExpired):
			return SessionResult{}, newValidationError("Code expired. Request a new one.")
		case errors.Is(err, otp.ErrInvalidCode):
			return SessionResult{}, newValidationError("Invalid code")
		default:
			span.RecordError(err)
			return SessionResult{}, fmt.Errorf("verify otp: %w", err)
		}
	}

	s.audit("verify_otp.success", "namespace", nsCtx.Tag, "user_id", user.ID)
	return SessionResult{
		Message: fmt.Sprintf("Account verified (%s)", nsCtx.Tag),
		User:    newUserViewModel(user),
		Token:   s.newSessionToken(),
	}, nil
}

// ResendOTP issues a fresh verification code, invalidating the prior one.
func (s *AuthService) ResendOTP(ctx context.Context, nsCtx *namespace.Context, email string) (string, error) {
	ctx, span := s.startSpan(ctx, "AuthService.ResendOTP")
	defer span.End()

	if strings.TrimSpace(email) == "" {
		return "", newValidationError("email is required")
	}
	if !emailPattern.MatchString(strings.TrimSpace(email)) {
		return "", newValidationError("email must be valid")
	}

	normalized := normalizeEmail(email)
	if _, err := s.users.GetByEmail(ctx, nsCtx.Tag, normalized); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", newNotFoundError("User not found")
		}
		span.RecordError(err)
		return "", fmt.Errorf("load user: %w", err)
	}

	code, err := s.otp.Issue(ctx, nsCtx.Tag, normalized)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("issue otp: %w", err)
	}
	s.dispatchOTPEmail(normalized, code)

	s.audit("resend_otp.success", "namespace", nsCtx.Tag)
	return fmt.Sprintf("Verification code resent (%s)", nsCtx.Tag), nil
}

// GoogleSignIn creates or reuses a google-provider account. Verified token
// claims take precedence over the self-asserted fields, which are honored
// only when the unverified fallback is enabled.
func (s *AuthService) GoogleSignIn(ctx context.Context, nsCtx *namespace.Context, input GoogleSignInInput) (GoogleSignInResult, error) {
	ctx, span := s.startSpan(ctx, "AuthService.GoogleSignIn")
	defer span.End()

	var claims *googleadapter.Claims
	if strings.TrimSpace(input.IDToken) != "" {
		verified, err := s.google.Verify(ctx, input.IDToken)
		if err != nil {
			span.RecordError(err)
			if errors.Is(err, googleadapter.ErrNotConfigured) {
				return GoogleSignInResult{}, newConfigurationError("Google sign-in is not configured")
			}
			s.audit("google.invalid_token", "namespace", nsCtx.Tag)
			return GoogleSignInResult{}, newUnauthorizedError("Invalid Google sign-in")
		}
		claims = verified
	} else if !s.cfg.AllowUnverifiedGoogle {
		return GoogleSignInResult{}, newUnauthorizedError("Google sign-in requires an ID token")
	}

	email := strings.TrimSpace(input.Email)
	if claims != nil && claims.Email != "" {
		email = claims.Email
	}
	if email == "" {
		return GoogleSignInResult{}, newValidationError("email from Google profile is required")
	}
	normalized := normalizeEmail(email)

	displayName := strings.TrimSpace(input.Name)
	if claims != nil && strings.TrimSpace(claims.Name) != "" {
		displayName = strings.TrimSpace(claims.Name)
	}
	if displayName == "" {
		displayName = "Google User"
	}

	identifier := googleIdentifier(claims, input)

	user, err := s.users.GetByEmail(ctx, nsCtx.Tag, normalized)
	switch {
	case err == nil:
		if user.Provider != domain.ProviderGoogle {
			return GoogleSignInResult{}, newValidationError("Account exists with a different sign-in method")
		}
		if user.GoogleID == "" && identifier != "" {
			user.GoogleID = identifier
			if err := s.users.Update(ctx, user); err != nil {
				span.RecordError(err)
				return GoogleSignInResult{}, fmt.Errorf("backfill google id: %w", err)
			}
		}
	case errors.Is(err, domain.ErrUserNotFound):
		user = domain.User{
			ID:        s.snowflake.Generate().String(),
			Namespace: nsCtx.Tag,
			Email:     normalized,
			Name:      displayName,
			Provider:  domain.ProviderGoogle,
			GoogleID:  identifier,
			CreatedAt: time.Now().UTC(),
		}
		if user, err = s.users.Create(ctx, user); err != nil {
			span.RecordError(err)
			return GoogleSignInResult{}, fmt.Errorf("create google user: %w", err)
		}
	default:
		span.RecordError(err)
		return GoogleSignInResult{}, fmt.Errorf("load user: %w", err)
	}

	s.audit("google.signin.success", "namespace", nsCtx.Tag, "user_id", user.ID, "verified", claims != nil)
	return GoogleSignInResult{
		Message:        fmt.Sprintf("Google sign-in accepted (%s)", nsCtx.Tag),
		User:           newUserViewModel(user),
		Token:          s.newSessionToken(),
		GoogleVerified: claims != nil || identifier != "",
	}, nil
}

// dispatchOTPEmail delivers the code on a detached goroutine; failures are
// logged and swallowed so registration never blocks on the relay.
func (s *AuthService) dispatchOTPEmail(email, code string) {
	minutes := int(s.cfg.OTPTTL.Minutes())
	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.mailer.Send(ctx, email, "Your verification code", body); err != nil {
			s.log().Warn("failed to send otp email", zap.String("email", email), zap.Error(err))
		}
	}()
}

func (s *AuthService) newSessionToken() string {
	return randomString(s.cfg.SessionTokenBytes)
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) audit(event string, attrs ...any) {
	logger := s.log()
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, len(attrs)/2+2)
	fields = append(fields, zap.String("event", event), zap.Time("timestamp", time.Now().UTC()))
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, attrs[i+1]))
	}
	logger.Info("audit", fields...)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func googleIdentifier(claims *googleadapter.Claims, input GoogleSignInInput) string {
	if claims != nil && claims.Subject != "" {
		return claims.Subject
	}
	if id := strings.TrimSpace(input.GoogleID); id != "" {
		return id
	}
	if token := strings.TrimSpace(input.IDToken); token != "" {
		return token
	}
	if claims != nil {
		return claims.Email
	}
	return ""
}

func randomString(n int) string {
	if n <= 0 {
		n = 24
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
