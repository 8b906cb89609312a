package service_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	googleadapter "github.com/otklabs/otk-auth/internal/adapter/google"
	"github.com/otklabs/otk-auth/internal/config"
	"github.com/otklabs/otk-auth/internal/domain"
	"github.com/otklabs/otk-auth/internal/namespace"
	"github.com/otklabs/otk-auth/internal/otp"
	"github.com/otklabs/otk-auth/internal/repository"
	"github.com/otklabs/otk-auth/internal/service"
)

type fakeMailer struct {
	mu    sync.Mutex
	sends []string
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, to)
	return nil
}

type fakeVerifier struct {
	claims *googleadapter.Claims
	err    error
}

func (v *fakeVerifier) Verify(ctx context.Context, idToken string) (*googleadapter.Claims, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.claims, nil
}

type fixture struct {
	svc    *service.AuthService
	users  *repository.MemoryUserRepo
	otps   *repository.MemoryOTPRepo
	issuer *otp.Issuer
	mailer *fakeMailer
	google *fakeVerifier
	hiring *namespace.Context
	work   *namespace.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := repository.NewMemoryUserRepo()
	otps := repository.NewMemoryOTPRepo(0, zap.NewNop())
	t.Cleanup(otps.Stop)

	issuer := otp.NewIssuer(otps, 10*time.Minute)
	mailer := &fakeMailer{}
	google := &fakeVerifier{}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		OTPTTL:                10 * time.Minute,
		SessionTokenBytes:     24,
		AllowUnverifiedGoogle: true,
	}
	svc := service.NewAuthService(users, issuer, mailer, google, node, cfg, zap.NewNop())

	return &fixture{
		svc:    svc,
		users:  users,
		otps:   otps,
		issuer: issuer,
		mailer: mailer,
		google: google,
		hiring: &namespace.Context{Tag: "hiring", DisplayName: "Hiring"},
		work:   &namespace.Context{Tag: "work", DisplayName: "Work"},
	}
}

func (f *fixture) pendingCode(t *testing.T, ns, email string) string {
	t.Helper()
	entry, err := f.otps.Get(context.Background(), ns, email)
	require.NoError(t, err)
	return entry.Code
}

func requireAuthError(t *testing.T, err error, status int) *service.AuthError {
	t.Helper()
	var authErr *service.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, status, authErr.Status)
	return authErr
}

func TestRegisterThenVerifyThenLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reg, err := f.svc.Register(ctx, f.hiring, "a@b.com", "Secret123!", "A B")
	require.NoError(t, err)
	require.True(t, reg.PendingVerification)
	require.Equal(t, "local", reg.User.Provider)
	require.NotEmpty(t, reg.User.ID)

	// Login is blocked while the OTP is pending, even with the right password.
	_, err = f.svc.Login(ctx, f.hiring, "a@b.com", "Secret123!")
	requireAuthError(t, err, http.StatusForbidden)

	code := f.pendingCode(t, "hiring", "a@b.com")
	verified, err := f.svc.VerifyOTP(ctx, f.hiring, "a@b.com", code)
	require.NoError(t, err)
	require.NotEmpty(t, verified.Token)

	session, err := f.svc.Login(ctx, f.hiring, "a@b.com", "Secret123!")
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.NotEqual(t, verified.Token, session.Token)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, f.hiring, "a@b.com", "Secret123!", "A B")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, f.hiring, "a@b.com", "Secret123!", "A B")
	requireAuthError(t, err, http.StatusConflict)
}

func TestRegisterSameEmailAcrossNamespaces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, f.hiring, "a@b.com", "Secret123!", "A B")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, f.work, "a@b.com", "Secret123!", "A B")
	require.NoError(t, err)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		name     string
		email    string
		password string
		fullName string
	}{
		{"missing email", "", "Secret123!", "A B"},
		{"malformed email", "not-an-email", "Secret123!", "A B"},
		{"short password", "a@b.com", "short", "A B"},
		{"missing name", "a@b.com", "Secret123!", "  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, f.hiring, tc.email, tc.password, tc.fullName)
			requireAuthError(t, err, http.StatusBadRequest)
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, f.hiring, "a@b.com", "Secret123!", "A B")
	require.NoError(t, err)
	code := f.pendingCode(t, "hiring", "a@b.com")
	_, err = f.svc.VerifyOTP(ctx, f.hiring, "a@b.com", code)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, f.hiring, "a@b.com", "WrongPass1!")
	requireAuthError(t, err, http.StatusUnauthorized)
}

func TestLoginUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Login(context.Background(), f.hiring, "nobody@b.com", "Secret123!")
	requireAuthError(t, err, http.StatusNotFound)
}

func TestLoginGoogleAccountReadsAsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.GoogleSignIn(ctx, f.hiring, service.GoogleSignInInput{Email: "g@b.com", GoogleID: "sub-1"})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, f.hiring, "g@b.com", "whatever1")
	requireAuthError(t, err, http.StatusNotFound)
}

func TestVerifyOTPCannotBeReused(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, f.hiring, "a@b.com", "Secret123!", "A B")
	require.NoError(t, err)
	code := f.pendingCode(t, "hiring", "a@b.com")

	_, err = f.svc.VerifyOTP(ctx, f.hiring, "a@b.com", code)
	require.NoError(t, err)

	_, err = f.svc.VerifyOTP(ctx, f.hiring, "a@b.com", code)
	authErr := requireAuthError(t, err, http.StatusBadRequest)
	require.Equal(t, "Invalid code", authErr.Message)
}

func TestVerifyOTPExpiredCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, f.hiring, "a@b.com", "Secret123!", "A B")
	require.NoError(t, err)
	code := f.pendingCode(t, "hiring", "a@b.com")

	f.issuer.WithClock(func() time.Time { return time.Now().Add(11 * time.Minute) })

	_, err = f.svc.VerifyOTP(ctx, f.hiring, "a@b.com", code)
	authErr := requireAuthError(t, err, http.StatusBadRequest)
	require.Equal(t, "Code expired. Request a new one.", authErr.Message)

	// The expired entry was removed; a resend issues a fresh code.
	f.issuer.WithClock(time.Now)
	_, err = f.svc.ResendOTP(ctx, f.hiring, "a@b.com")
	require.NoError(t, err)

	fresh := f.pendingCode(t, "hiring", "a@b.com")
	_, err = f.svc.VerifyOTP(ctx, f.hiring, "a@b.com", fresh)
	require.NoError(t, err)
}

func TestVerifyOTPBadInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.VerifyOTP(ctx, f.hiring, "a@b.com", "123")
	requireAuthError(t, err, http.StatusBadRequest)

	_, err = f.svc.VerifyOTP(ctx, f.hiring, "nobody@b.com", "123456")
	requireAuthError(t, err, http.StatusNotFound)
}

func TestResendOTPUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ResendOTP(context.Background(), f.hiring, "nobody@b.com")
	requireAuthError(t, err, http.StatusNotFound)
}

func TestGoogleSignInCreatesAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	result, err := f.svc.GoogleSignIn(ctx, f.hiring, service.GoogleSignInInput{
		Email:    "g@b.com",
		Name:     "G User",
		GoogleID: "sub-1",
	})
	require.NoError(t, err)
	require.Equal(t, "google", result.User.Provider)
	require.True(t, result.GoogleVerified)
	require.NotEmpty(t, result.Token)

	user, err := f.users.GetByEmail(ctx, "hiring", "g@b.com")
	require.NoError(t, err)
	require.Equal(t, domain.ProviderGoogle, user.Provider)
	require.Empty(t, user.PasswordHash)
	require.Empty(t, user.Salt)
	require.Equal(t, "sub-1", user.GoogleID)
}

func TestGoogleSignInRejectsLocalAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, f.hiring, "a@b.com", "Secret123!", "A B")
	require.NoError(t, err)

	_, err = f.svc.GoogleSignIn(ctx, f.hiring, service.GoogleSignInInput{Email: "a@b.com", GoogleID: "sub-1"})
	authErr := requireAuthError(t, err, http.StatusBadRequest)
	require.Equal(t, "Account exists with a different sign-in method", authErr.Message)
}

func TestGoogleSignInVerifiedClaimsTakePrecedence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.google.claims = &googleadapter.Claims{
		Subject: "verified-sub",
		Email:   "Verified@B.com",
		Name:    "Verified Name",
	}

	result, err := f.svc.GoogleSignIn(ctx, f.hiring, service.GoogleSignInInput{
		Email:   "asserted@b.com",
		Name:    "Asserted Name",
		IDToken: "token",
	})
	require.NoError(t, err)
	require.Equal(t, "verified@b.com", result.User.Email)
	require.Equal(t, "Verified Name", result.User.Name)
	require.True(t, result.GoogleVerified)

	user, err := f.users.GetByEmail(ctx, "hiring", "verified@b.com")
	require.NoError(t, err)
	require.Equal(t, "verified-sub", user.GoogleID)
}

func TestGoogleSignInInvalidToken(t *testing.T) {
	f := newFixture(t)
	f.google.err = googleadapter.ErrInvalidToken

	_, err := f.svc.GoogleSignIn(context.Background(), f.hiring, service.GoogleSignInInput{IDToken: "bad"})
	requireAuthError(t, err, http.StatusUnauthorized)
}

func TestGoogleSignInNotConfigured(t *testing.T) {
	f := newFixture(t)
	f.google.err = googleadapter.ErrNotConfigured

	_, err := f.svc.GoogleSignIn(context.Background(), f.hiring, service.GoogleSignInInput{IDToken: "token"})
	requireAuthError(t, err, http.StatusInternalServerError)
}

func TestGoogleSignInMissingEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GoogleSignIn(context.Background(), f.hiring, service.GoogleSignInInput{Name: "No Email"})
	requireAuthError(t, err, http.StatusBadRequest)
}

func TestGoogleSignInBackfillsGoogleID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.GoogleSignIn(ctx, f.hiring, service.GoogleSignInInput{Email: "g@b.com"})
	require.NoError(t, err)

	user, err := f.users.GetByEmail(ctx, "hiring", "g@b.com")
	require.NoError(t, err)
	require.Empty(t, user.GoogleID)

	_, err = f.svc.GoogleSignIn(ctx, f.hiring, service.GoogleSignInInput{Email: "g@b.com", GoogleID: "sub-1"})
	require.NoError(t, err)

	user, err = f.users.GetByEmail(ctx, "hiring", "g@b.com")
	require.NoError(t, err)
	require.Equal(t, "sub-1", user.GoogleID)
}

func TestGoogleSignInRequiresTokenWhenFallbackDisabled(t *testing.T) {
	users := repository.NewMemoryUserRepo()
	otps := repository.NewMemoryOTPRepo(0, zap.NewNop())
	defer otps.Stop()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{OTPTTL: 10 * time.Minute, SessionTokenBytes: 24, AllowUnverifiedGoogle: false}
	svc := service.NewAuthService(users, otp.NewIssuer(otps, cfg.OTPTTL), &fakeMailer{}, &fakeVerifier{}, node, cfg, zap.NewNop())

	_, err = svc.GoogleSignIn(context.Background(), &namespace.Context{Tag: "hiring"}, service.GoogleSignInInput{Email: "g@b.com", GoogleID: "sub-1"})
	requireAuthError(t, err, http.StatusUnauthorized)
}

func TestNormalizedEmailStorage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, f.hiring, "  A@B.Com ", "Secret123!", "A B")
	require.NoError(t, err)

	user, err := f.users.GetByEmail(ctx, "hiring", "a@b.com")
	require.NoError(t, err)
	require.Equal(t, "a@b.com", user.Email)

	// Mixed-case lookups hit the same record.
	code := f.pendingCode(t, "hiring", "a@b.com")
	_, err = f.svc.VerifyOTP(ctx, f.hiring, "A@B.COM", code)
	require.NoError(t, err)
}

func TestGoogleSignInUnverifiedIdentifierFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.google.err = errors.New("unused")

	// No token, no googleId: accepted but flagged unverified.
	result, err := f.svc.GoogleSignIn(ctx, f.hiring, service.GoogleSignInInput{Email: "g@b.com"})
	require.NoError(t, err)
	require.False(t, result.GoogleVerified)
}
