package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mukund1606/taxmann-project/internal/auth"
	"github.com/mukund1606/taxmann-project/internal/domain"
	"github.com/mukund1606/taxmann-project/internal/observability"
	"github.com/mukund1606/taxmann-project/internal/repository"
	apperrors "github.com/mukund1606/taxmann-project/pkg/util/errorutil"
)

// SignInInput is the credential triple submitted at sign-in.
type SignInInput struct {
	Email    string      `json:"email" validate:"min=3,max=255"`
	Password string      `json:"password" validate:"min=8,max=255"`
	Role     domain.Role `json:"role" validate:"oneof=ADMIN USER"`
}

// RegisterInput describes a new USER account.
type RegisterInput struct {
	Name     string `json:"name" validate:"min=3,max=255"`
	Email    string `json:"email" validate:"min=3,max=255"`
	Password string `json:"password" validate:"min=8,max=255"`
}

// AuthService coordinates registration, credential checks and session issuance.
type AuthService struct {
	stores   repository.AccountStores
	cipher   auth.PasswordCipher
	tokenMgr *auth.TokenManager
	validate *validator.Validate
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// AuthDependencies encapsulates requirements for auth service.
type AuthDependencies struct {
	Accounts repository.AccountStores
	Cipher   auth.PasswordCipher
	Tokens   *auth.TokenManager
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		stores:   deps.Accounts,
		cipher:   deps.Cipher,
		tokenMgr: deps.Tokens,
		validate: newValidator(),
		metrics:  deps.Metrics,
		logger:   logger,
	}
}

// Authenticate checks the credentials against the store selected by the
// claimed role. Every rejection yields the same opaque error; only store I/O
// failures surface as internal errors.
func (s *AuthService) Authenticate(ctx context.Context, input SignInInput) (domain.Identity, error) {
	if err := s.validate.Struct(input); err != nil {
		return domain.Identity{}, apperrors.NewAuthenticationFailed()
	}

	store, err := s.stores.ForRole(input.Role)
	if err != nil || store == nil {
		return domain.Identity{}, apperrors.NewAuthenticationFailed()
	}

	account, err := store.FindByEmail(ctx, input.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Identity{}, apperrors.NewAuthenticationFailed()
	}
	if err != nil {
		return domain.Identity{}, apperrors.NewInternalError(err)
	}

	plaintext, err := s.cipher.Decrypt(account.EncryptedPassword)
	if err != nil {
		s.logger.Warn("stored password could not be decrypted",
			zap.String("account_id", account.ID),
			zap.String("role", string(input.Role)),
			zap.Error(err))
		return domain.Identity{}, apperrors.NewAuthenticationFailed()
	}
	if subtle.ConstantTimeCompare([]byte(plaintext), []byte(input.Password)) != 1 {
		return domain.Identity{}, apperrors.NewAuthenticationFailed()
	}

	return account.Identity(), nil
}

// SignIn authenticates and wraps the identity into a signed session.
func (s *AuthService) SignIn(ctx context.Context, input SignInInput) (domain.Session, error) {
	identity, err := s.Authenticate(ctx, input)
	if err != nil {
		if apperrors.Is(err, apperrors.CodeInvalidCredentials) {
			s.metrics.RecordSignIn(observability.SignInRejected)
		} else {
			s.metrics.RecordSignIn(observability.SignInError)
		}
		return domain.Session{}, err
	}

	token, exp, err := s.tokenMgr.GenerateToken(identity)
	if err != nil {
		s.metrics.RecordSignIn(observability.SignInError)
		return domain.Session{}, apperrors.NewInternalError(err)
	}
	s.metrics.RecordSignIn(observability.SignInSuccess)
	s.logger.Info("signed in", zap.String("account_id", identity.ID), zap.String("role", string(identity.Role)))
	return domain.Session{Identity: identity, Token: token, ExpiresAt: exp}, nil
}

// Register creates a new USER account with its password encrypted.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}

	encrypted, err := s.cipher.Encrypt(input.Password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	account := &domain.Account{
		Name:              input.Name,
		Email:             input.Email,
		EncryptedPassword: encrypted,
	}
	if err := s.stores.Users.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("account registered", zap.String("account_id", account.ID))
	return account, nil
}

// EnsureAdmin creates an ADMIN account unless one with the email already
// exists. Admin accounts have no registration endpoint; this is how the first
// one gets into the store.
func (s *AuthService) EnsureAdmin(ctx context.Context, input RegisterInput) (*domain.Account, bool, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, false, err
	}
	existing, err := s.stores.Admins.FindByEmail(ctx, input.Email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, apperrors.NewInternalError(err)
	}

	encrypted, err := s.cipher.Encrypt(input.Password)
	if err != nil {
		return nil, false, apperrors.NewInternalError(err)
	}
	account := &domain.Account{Name: input.Name, Email: input.Email, EncryptedPassword: encrypted}
	if err := s.stores.Admins.Create(ctx, account); err != nil {
		return nil, false, apperrors.NewInternalError(err)
	}
	s.logger.Info("admin account bootstrapped", zap.String("account_id", account.ID))
	return account, true, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
