package services

import (
	"context"
	"errors"
	"log"
	"strings"

	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/config"
	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/jwt"
	"propdesk/internal/pkg/password"
	"propdesk/internal/pkg/safelog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// Auth errors
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountInactive = errors.New("account is not active")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenExpired    = errors.New("token expired")
	ErrSessionRevoked  = errors.New("session revoked")
)

// AuthService issues and rotates portal credentials
type AuthService struct {
	accountRepo repositories.AccountRepository
	sessionRepo repositories.PortalSessionRepository
	denylist    TokenDenylist
	cfg         *config.Config
	clock       clockwork.Clock
}

// NewAuthService creates a new auth service
func NewAuthService(
	accountRepo repositories.AccountRepository,
	sessionRepo repositories.PortalSessionRepository,
	denylist TokenDenylist,
	cfg *config.Config,
	clock clockwork.Clock,
) *AuthService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AuthService{
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		denylist:    denylist,
		cfg:         cfg,
		clock:       clock,
	}
}

// LoginInput represents login input
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an account and opens a portal session
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*domain.LoginResult, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" {
		return nil, domain.NewValidationError("email", "email is required")
	}
	if input.Password == "" {
		return nil, domain.NewValidationError("password", "password is required")
	}

	// 1. Find account by email
	account, err := s.accountRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	// 2. Verify password before revealing account state
	if !password.Verify(input.Password, account.Password) {
		return nil, domain.ErrInvalidCredentials
	}

	// 3. Check if account may use the portal
	if !account.IsActive() {
		return nil, ErrAccountInactive
	}

	// 4. Issue credential and record the session
	issued, err := s.issue(ctx, account)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ Portal login: %s", safelog.MaskEmail(account.Email))

	return &domain.LoginResult{
		AccessToken: issued.Token,
		ExpiresIn:   int(issued.ExpiresAt.Sub(issued.IssuedAt).Seconds()),
		ExpiresAt:   issued.ExpiresAt,
		Account:     account.ToIdentity(),
	}, nil
}

// Refresh rotates the credential identified by claims. The old credential
// stops working immediately.
func (s *AuthService) Refresh(ctx context.Context, claims *jwt.Claims) (*domain.RefreshResult, error) {
	// 1. Find the session behind the presented credential
	session, err := s.sessionRepo.GetByTokenID(ctx, claims.TokenID())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	now := s.clock.Now()
	if session.IsRevoked() {
		return nil, ErrSessionRevoked
	}
	if session.IsExpired(now) {
		return nil, ErrTokenExpired
	}

	// 2. Account must still be allowed in
	account, err := s.accountRepo.GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if !account.IsActive() {
		return nil, ErrAccountInactive
	}

	// 3. Issue the replacement first so a failure leaves the old one usable
	issued, err := s.issue(ctx, account)
	if err != nil {
		return nil, err
	}

	// 4. Revoke the old one (rotation)
	if err := s.revoke(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("✅ Portal credential refreshed for account ID: %d", account.ID)

	return &domain.RefreshResult{
		AccessToken: issued.Token,
		ExpiresIn:   int(issued.ExpiresAt.Sub(issued.IssuedAt).Seconds()),
		ExpiresAt:   issued.ExpiresAt,
	}, nil
}

// Logout revokes the credential identified by claims
func (s *AuthService) Logout(ctx context.Context, claims *jwt.Claims) error {
	session, err := s.sessionRepo.GetByTokenID(ctx, claims.TokenID())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if err := s.revoke(ctx, session); err != nil {
		return err
	}

	log.Printf("✅ Portal logout for account ID: %d", session.AccountID)
	return nil
}

// LogoutAll revokes every session of an account
func (s *AuthService) LogoutAll(ctx context.Context, accountID uint) error {
	if err := s.sessionRepo.RevokeAllByAccountID(ctx, accountID, s.clock.Now()); err != nil {
		return err
	}

	log.Printf("✅ All portal sessions revoked for account ID: %d", accountID)
	return nil
}

// Me returns the identity of the signed-in account
func (s *AuthService) Me(ctx context.Context, accountID uint) (*domain.AccountIdentity, error) {
	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account.ToIdentity(), nil
}

// ValidateAccessToken checks signature, lifetime and revocation
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (*jwt.Claims, error) {
	claims, err := jwt.ValidatePortalToken(accessToken, s.cfg.JWT.Secret, s.clock.Now())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.TokenID())
		if err != nil {
			// Fall back to the session ledger when the denylist is unreachable
			log.Printf("⚠️ Denylist lookup failed: %v", err)
			session, lerr := s.sessionRepo.GetByTokenID(ctx, claims.TokenID())
			if lerr != nil || session.IsRevoked() {
				return nil, ErrSessionRevoked
			}
			return claims, nil
		}
		if revoked {
			return nil, ErrSessionRevoked
		}
	}

	return claims, nil
}

// issue signs a credential and records its session row
func (s *AuthService) issue(ctx context.Context, account *models.Account) (*jwt.Issued, error) {
	issued, err := jwt.GeneratePortalToken(
		account.ID,
		account.Email,
		account.AccountType,
		uuid.New().String(),
		s.cfg.JWT.Secret,
		s.clock.Now(),
		s.cfg.PortalTokenLifetime(),
	)
	if err != nil {
		return nil, err
	}

	session := &models.PortalSession{
		AccountID: account.ID,
		TokenID:   issued.TokenID,
		ExpiresAt: issued.ExpiresAt,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	return issued, nil
}

// revoke marks the session revoked and denylists its jti until expiry
func (s *AuthService) revoke(ctx context.Context, session *models.PortalSession) error {
	now := s.clock.Now()
	if err := s.sessionRepo.Revoke(ctx, session.ID, now); err != nil {
		return err
	}

	if s.denylist != nil {
		if ttl := session.ExpiresAt.Sub(now); ttl > 0 {
			if err := s.denylist.Revoke(ctx, session.TokenID, ttl); err != nil {
				log.Printf("⚠️ Failed to denylist credential %s: %v", safelog.MaskToken(session.TokenID), err)
			}
		}
	}
	return nil
}
