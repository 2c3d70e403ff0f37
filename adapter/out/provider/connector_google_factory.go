// Package provider implements the Google Workspace provider adapters.
package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/rish231294/pipeshub-ai/core/port/out"
	"github.com/rish231294/pipeshub-ai/pkg/logger"
	"github.com/rish231294/pipeshub-ai/pkg/ratelimit"
)

// =============================================================================
// Scopes
// =============================================================================

// adminScopes are requested when impersonating the tenant admin for
// directory listings.
var adminScopes = []string{
	admin.AdminDirectoryUserReadonlyScope,
	admin.AdminDirectoryGroupReadonlyScope,
	admin.AdminDirectoryGroupMemberReadonlyScope,
	admin.AdminDirectoryDomainReadonlyScope,
}

// userScopes are requested when impersonating an individual principal.
var userScopes = []string{
	gmail.GmailReadonlyScope,
	drive.DriveReadonlyScope,
}

// =============================================================================
// Google Factory
// =============================================================================

// GoogleFactory implements out.ProviderFactory for Google Workspace. It loads
// the tenant's service-account credential, decrypts the private key and mints
// domain-wide-delegation token sources per impersonated principal. One circuit
// breaker per API family is shared by every surface the factory builds.
type GoogleFactory struct {
	credentials out.CredentialStore
	guard       *ratelimit.QuotaGuard
	cfg         *GoogleConfig
	log         *logger.Logger

	adminCB *gobreaker.CircuitBreaker
	gmailCB *gobreaker.CircuitBreaker
	driveCB *gobreaker.CircuitBreaker
}

// GoogleConfig holds Google Workspace configuration.
type GoogleConfig struct {
	// WebhookURL is the address registered for drive change notifications.
	WebhookURL string
}

// NewGoogleFactory creates a new Google Workspace factory.
func NewGoogleFactory(credentials out.CredentialStore, guard *ratelimit.QuotaGuard, cfg *GoogleConfig, log *logger.Logger) *GoogleFactory {
	if cfg == nil {
		cfg = &GoogleConfig{}
	}
	if log == nil {
		log = logger.Default()
	}

	return &GoogleFactory{
		credentials: credentials,
		guard:       guard,
		cfg:         cfg,
		log:         log,
		adminCB:     newCircuitBreaker("admin-directory-api", log),
		gmailCB:     newCircuitBreaker("gmail-api", log),
		driveCB:     newCircuitBreaker("drive-api", log),
	}
}

var _ out.ProviderFactory = (*GoogleFactory)(nil)

// AdminFor builds the directory surface for a tenant, impersonating the admin
// recorded alongside its service-account credential.
func (f *GoogleFactory) AdminFor(ctx context.Context, orgID string) (out.AdminSurface, error) {
	cred, err := f.credentials.GetByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential for org %s: %w", orgID, err)
	}
	if cred == nil {
		return nil, fmt.Errorf("no service credential configured for org %s", orgID)
	}

	ts := f.delegatedTokenSource(ctx, cred.ClientEmail, cred.PrivateKey, cred.AdminEmail, adminScopes)
	svc, err := admin.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create directory service: %w", err)
	}

	return &adminSurface{
		factory:    f,
		svc:        svc,
		adminEmail: cred.AdminEmail,
		cred:       cred,
		call:       f.newCall("admin", f.adminCB),
	}, nil
}

// delegateUser builds the per-principal mail and drive surfaces through
// domain-wide delegation.
func (f *GoogleFactory) delegateUser(ctx context.Context, cred *out.ServiceCredentialEntity, email string) (out.UserSurface, error) {
	ts := f.delegatedTokenSource(ctx, cred.ClientEmail, cred.PrivateKey, email, userScopes)

	gmailSvc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service for %s: %w", email, err)
	}

	driveSvc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service for %s: %w", email, err)
	}

	return &userSurface{
		mail:  newGmailSurface(gmailSvc, email, f.newCall("gmail", f.gmailCB)),
		drive: newDriveSurface(driveSvc, email, f.cfg.WebhookURL, f.newCall("drive", f.driveCB)),
	}, nil
}

// delegatedTokenSource mints tokens for one impersonated principal. Fresh
// tokens pass through the delegated-token cache so a worker restart does not
// re-authorize every mailbox at once.
func (f *GoogleFactory) delegatedTokenSource(ctx context.Context, clientEmail, privateKey, subject string, scopes []string) oauth2.TokenSource {
	conf := &jwt.Config{
		Email:      clientEmail,
		PrivateKey: []byte(privateKey),
		Scopes:     scopes,
		TokenURL:   google.JWTTokenURL,
		Subject:    subject,
	}

	src := &cachedTokenSource{
		ctx:       ctx,
		inner:     conf.TokenSource(ctx),
		store:     f.credentials,
		email:     subject,
		scopeHash: hashScopes(scopes),
	}
	return oauth2.ReuseTokenSource(nil, src)
}

func (f *GoogleFactory) newCall(provider string, cb *gobreaker.CircuitBreaker) *apiCall {
	return &apiCall{
		provider: provider,
		guard:    f.guard,
		cb:       cb,
		log:      f.log,
	}
}

func newCircuitBreaker(name string, log *logger.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// =============================================================================
// User Surface
// =============================================================================

type userSurface struct {
	mail  out.MailSurface
	drive out.DriveSurface
}

var _ out.UserSurface = (*userSurface)(nil)

func (s *userSurface) Mail() out.MailSurface   { return s.mail }
func (s *userSurface) Drive() out.DriveSurface { return s.drive }

// =============================================================================
// Delegated Token Cache
// =============================================================================

// tokenExpiryMargin is how close to expiry a cached token may be before it is
// considered stale.
const tokenExpiryMargin = 2 * time.Minute

// cachedTokenSource checks the credential store before minting a new
// delegated token, and writes fresh tokens back best-effort.
type cachedTokenSource struct {
	ctx       context.Context
	inner     oauth2.TokenSource
	store     out.CredentialStore
	email     string
	scopeHash string
}

func (s *cachedTokenSource) Token() (*oauth2.Token, error) {
	cached, err := s.store.GetDelegatedToken(s.ctx, s.email, s.scopeHash)
	if err == nil && cached != nil && time.Until(cached.ExpiresAt) > tokenExpiryMargin {
		return &oauth2.Token{
			AccessToken: cached.AccessToken,
			TokenType:   "Bearer",
			Expiry:      cached.ExpiresAt,
		}, nil
	}

	token, err := s.inner.Token()
	if err != nil {
		return nil, err
	}

	if cacheErr := s.store.CacheDelegatedToken(s.ctx, s.email, s.scopeHash, token.AccessToken, token.Expiry); cacheErr != nil {
		logger.Warn("[cachedTokenSource] failed to cache delegated token for %s: %v", s.email, cacheErr)
	}
	return token, nil
}

func hashScopes(scopes []string) string {
	sum := sha256.Sum256([]byte(strings.Join(scopes, " ")))
	return hex.EncodeToString(sum[:8])
}

// =============================================================================
// Guarded API Call
// =============================================================================

const (
	maxCallAttempts = 3
	retryBaseDelay  = 500 * time.Millisecond
	maxQuotaWait    = 2 * time.Second
)

// apiCall wraps one outbound Google API call with the quota guard, the
// provider circuit breaker and retry with backoff on retryable failures.
type apiCall struct {
	provider string
	guard    *ratelimit.QuotaGuard
	cb       *gobreaker.CircuitBreaker
	log      *logger.Logger
}

// run executes fn under quota and circuit protection. quotaKey is the
// impersonated principal so one mailbox cannot starve another. operation
// names the call for error messages ("list threads").
func (c *apiCall) run(ctx context.Context, quotaKey, operation string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= maxCallAttempts; attempt++ {
		if attempt > 1 {
			backoff := retryBaseDelay << (attempt - 2)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return out.NewProviderError(c.provider, out.ProviderErrNetwork, "request cancelled", ctx.Err(), false)
			}
		}

		result, release := c.guard.AcquireWithWait(ctx, quotaKey, maxQuotaWait)
		if !result.Allowed {
			lastErr = out.NewProviderError(c.provider, out.ProviderErrRateLimit, result.Reason, nil, true)
			continue
		}

		err := c.executeWithCircuitBreaker(operation, fn)
		release()
		if err == nil {
			return nil
		}

		perr := wrapGoogleError(c.provider, err, "failed to "+operation)
		if !perr.Retryable {
			return perr
		}
		lastErr = perr
	}

	return lastErr
}

// executeWithCircuitBreaker wraps an API call with circuit breaker protection.
// Client errors must not trip the circuit: only server-side failures say
// anything about the provider's health.
func (c *apiCall) executeWithCircuitBreaker(operation string, fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				default:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	// Unwrap non-circuit errors
	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}

	if err != nil {
		c.log.Warn("[%s] circuit breaker error for %s: state=%s, err=%v",
			c.provider, operation, c.cb.State().String(), err)
	}
	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// wrapGoogleError maps a raw API failure to an out.ProviderError.
func wrapGoogleError(provider string, err error, defaultMsg string) *out.ProviderError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return out.NewProviderError(provider, out.ProviderErrServer, "Circuit breaker open", err, true)
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 400:
			return out.NewProviderError(provider, out.ProviderErrInvalidInput, defaultMsg, err, false)
		case 401:
			return out.NewProviderError(provider, out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError(provider, out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError(provider, out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError(provider, out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError(provider, out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError(provider, out.ProviderErrServer, "Server error", err, true)
		}
	}

	return out.NewProviderError(provider, out.ProviderErrServer, defaultMsg, err, true)
}
