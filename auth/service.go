package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"rfqflow/notification"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrValidation signals a malformed registration request.
	ErrValidation = errors.New("auth: invalid registration")
	// ErrNotSupplier blocks verification of accounts that are not suppliers.
	ErrNotSupplier = errors.New("auth: user is not a supplier")
)

const defaultTokenTTL = 24 * time.Hour

// Notifier delivers best-effort notifications.
type Notifier interface {
	Dispatch(ctx context.Context, e notification.Event)
}

// Service handles registration, login, token verification and supplier
// verification.
type Service struct {
	repo     Repository
	secret   []byte
	tokenTTL time.Duration
	notifier Notifier
	now      func() time.Time
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token string
	User  User
}

func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:     repo,
		secret:   []byte(jwtSecret),
		tokenTTL: defaultTokenTTL,
		now:      time.Now,
	}
}

// WithNotifier enables supplier-verified notifications.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithTokenTTL overrides the default 24h token lifetime.
func (s *Service) WithTokenTTL(ttl time.Duration) *Service {
	s.tokenTTL = ttl
	return s
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new user account. The email is normalized to lower case
// so lookups are case-insensitive. An empty role defaults to buyer.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	fullName := strings.TrimSpace(req.FullName)
	if email == "" || fullName == "" {
		return nil, fmt.Errorf("%w: email and full_name are required", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: malformed email %q", ErrValidation, email)
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleBuyer
	}
	if !isValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        email,
		FullName:     fullName,
		CompanyName:  strings.TrimSpace(req.CompanyName),
		PasswordHash: string(passwordHash),
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates a user and returns a signed token alongside the user.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.signToken(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: sign token: %w", err)
	}

	return LoginResult{Token: token, User: user}, nil
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifySupplier marks a supplier account as verified and notifies the
// supplier. Verifying an already verified supplier is a no-op.
func (s *Service) VerifySupplier(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role != RoleSupplier {
		return nil, ErrNotSupplier
	}
	if user.Verified {
		return &user, nil
	}

	user, err = s.repo.MarkVerified(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notification.Event{
			UserID:  user.ID,
			Type:    notification.TypeSupplierVerified,
			Title:   "Account verified",
			Message: "Your supplier account has been verified",
		})
	}

	return &user, nil
}

// VerifyToken validates a signed token and returns the embedded identity.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", "", fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("auth: invalid token")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", "", fmt.Errorf("auth: missing user_id claim")
	}
	roleStr, _ := claims["role"].(string)
	role := Role(roleStr)
	if !isValidRole(role) {
		return "", "", fmt.Errorf("auth: invalid role claim %q", roleStr)
	}
	return userID, role, nil
}

func (s *Service) signToken(userID string, role Role) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(s.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func isValidRole(role Role) bool {
	switch role {
	case RoleBuyer, RoleSupplier, RoleAdmin:
		return true
	default:
		return false
	}
}
