package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iho/gobank/internal/domain"
)

// UserUseCase handles registration and sessions
type UserUseCase struct {
	userRepo   UserRepository
	tokenStore TokenStore
	idGen      IDGenerator
}

// NewUserUseCase creates a new user use case. tokenStore may be nil, in which
// case logout is a no-op.
func NewUserUseCase(userRepo UserRepository, tokenStore TokenStore, idGen IDGenerator) *UserUseCase {
	return &UserUseCase{
		userRepo:   userRepo,
		tokenStore: tokenStore,
		idGen:      idGen,
	}
}

// RegisterInput represents input for registering a customer
type RegisterInput struct {
	Username string
	Email    string
	Name     string
	Password string
	Profile  domain.Profile
}

// Register creates a customer with a bcrypt hashed password
func (uc *UserUseCase) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if err := domain.ValidateUsername(input.Username); err != nil {
		return nil, err
	}

	if err := domain.ValidateEmail(input.Email); err != nil {
		return nil, err
	}

	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := domain.ValidateProfile(input.Profile, now); err != nil {
		return nil, err
	}

	exists, err := uc.userRepo.ExistsByUsernameOrEmail(ctx, input.Username, input.Email)
	if err != nil {
		return nil, storageError(err)
	}
	if exists {
		return nil, domain.ErrUserExists
	}

	hashedPassword, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:             uc.idGen.Generate(),
		Username:       input.Username,
		Email:          input.Email,
		Name:           strings.TrimSpace(input.Name),
		HashedPassword: hashedPassword,
		Role:           domain.RoleCustomer,
		Profile:        input.Profile,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := uc.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			return nil, err
		}
		return nil, storageError(err)
	}

	// Don't return hashed password
	user.HashedPassword = ""
	return user, nil
}

// AuthenticateInput represents authentication input
type AuthenticateInput struct {
	Username string
	Password string
}

// Authenticate verifies user credentials
func (uc *UserUseCase) Authenticate(ctx context.Context, input AuthenticateInput) (*domain.User, error) {
	user, err := uc.userRepo.GetByUsername(ctx, strings.TrimSpace(input.Username))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, storageError(err)
	}

	// Verify password
	if err := verifyPassword(user.HashedPassword, input.Password); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	if !user.Active {
		return nil, domain.ErrUserInactive
	}

	// Don't return hashed password
	user.HashedPassword = ""
	return user, nil
}

// Logout revokes a token until it would have expired anyway
func (uc *UserUseCase) Logout(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if uc.tokenStore == nil || tokenID == "" {
		return nil
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	return uc.tokenStore.Revoke(ctx, tokenID, ttl)
}

// GetUser retrieves a user by ID
func (uc *UserUseCase) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := uc.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}

	user.HashedPassword = ""
	return user, nil
}

// hashPassword hashes a password using bcrypt
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword verifies a password against a hash
func verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}
