package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"rfqflow/notification"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, "test-secret")

	req := RegisterRequest{
		Email:    "Alice@Example.com",
		Password: "supersafe",
		FullName: "Alice Buyer",
	}

	ctx := context.Background()
	user, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}

	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Role != RoleBuyer {
		t.Fatalf("register: expected default role %s got %s", RoleBuyer, user.Role)
	}

	// mixed-case login must resolve the same account
	resp, err := svc.Login(ctx, LoginRequest{Email: "ALICE@example.com", Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.User.ID != user.ID {
		t.Fatalf("login: expected user id %q got %q", user.ID, resp.User.ID)
	}

	tokenUserID, tokenRole, err := svc.VerifyToken(resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if tokenUserID != user.ID {
		t.Fatalf("verify token: expected %q got %q", user.ID, tokenUserID)
	}
	if tokenRole != RoleBuyer {
		t.Fatalf("verify token: expected role %s got %s", RoleBuyer, tokenRole)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")
	ctx := context.Background()

	cases := []struct {
		name string
		req  RegisterRequest
		want error
	}{
		{"short password", RegisterRequest{Email: "a@b.com", Password: "short", FullName: "A"}, ErrWeakPassword},
		{"missing fields", RegisterRequest{Password: "strongpassword"}, ErrValidation},
		{"malformed email", RegisterRequest{Email: "not-an-email", Password: "strongpassword", FullName: "A"}, ErrValidation},
		{"unknown role", RegisterRequest{Email: "a@b.com", Password: "strongpassword", FullName: "A", Role: "wizard"}, ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestService_DuplicateEmail(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")

	req := RegisterRequest{
		Email:    "alice@example.com",
		Password: "strongpassword",
		FullName: "Alice Buyer",
	}
	if _, err := svc.Register(context.Background(), req); err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	svc := NewService(newFakeRepository(), "test-secret")

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestService_ExpiredTokenRejected(t *testing.T) {
	repo := newFakeRepository()
	past := time.Now().Add(-48 * time.Hour)
	svc := NewService(repo, "test-secret").
		WithTokenTTL(time.Hour).
		WithClock(func() time.Time { return past })

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email: "bob@example.com", Password: "strongpassword", FullName: "Bob",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	resp, err := svc.Login(context.Background(), LoginRequest{Email: "bob@example.com", Password: "strongpassword"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, _, err := svc.VerifyToken(resp.Token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestService_VerifySupplier(t *testing.T) {
	repo := newFakeRepository()
	notifier := &captureNotifier{}
	svc := NewService(repo, "test-secret").WithNotifier(notifier)
	ctx := context.Background()

	supplier, err := svc.Register(ctx, RegisterRequest{
		Email: "s@example.com", Password: "strongpassword", FullName: "Supplier", Role: RoleSupplier,
	})
	if err != nil {
		t.Fatalf("register supplier: %v", err)
	}

	verified, err := svc.VerifySupplier(ctx, supplier.ID)
	if err != nil {
		t.Fatalf("verify supplier: %v", err)
	}
	if !verified.Verified {
		t.Fatal("expected verified flag set")
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != notification.TypeSupplierVerified {
		t.Fatalf("expected one supplier_verified notification, got %+v", notifier.events)
	}

	// replay is a no-op and does not re-notify
	if _, err := svc.VerifySupplier(ctx, supplier.ID); err != nil {
		t.Fatalf("verify replay: %v", err)
	}
	if len(notifier.events) != 1 {
		t.Fatalf("expected no second notification, got %d", len(notifier.events))
	}

	buyer, err := svc.Register(ctx, RegisterRequest{
		Email: "b@example.com", Password: "strongpassword", FullName: "Buyer",
	})
	if err != nil {
		t.Fatalf("register buyer: %v", err)
	}
	if _, err := svc.VerifySupplier(ctx, buyer.ID); !errors.Is(err, ErrNotSupplier) {
		t.Fatalf("expected ErrNotSupplier, got %v", err)
	}
}

type captureNotifier struct {
	events []notification.Event
}

func (c *captureNotifier) Dispatch(_ context.Context, e notification.Event) {
	c.events = append(c.events, e)
}

type fakeRepository struct {
	usersByEmail map[string]User
	usersByID    map[string]User
	nextID       int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		usersByEmail: make(map[string]User),
		usersByID:    make(map[string]User),
		nextID:       1,
	}
}

func (f *fakeRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	if _, exists := f.usersByEmail[strings.ToLower(params.Email)]; exists {
		return User{}, ErrDuplicateEmail
	}

	id := fmt.Sprintf("user-%d", f.nextID)
	f.nextID++

	user := User{
		ID:           id,
		Email:        params.Email,
		FullName:     params.FullName,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	f.usersByEmail[strings.ToLower(user.Email)] = user
	f.usersByID[user.ID] = user

	return user, nil
}

func (f *fakeRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (f *fakeRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, ok := f.usersByID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (f *fakeRepository) MarkVerified(ctx context.Context, userID string) (User, error) {
	user, ok := f.usersByID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	user.Verified = true
	user.UpdatedAt = time.Now().UTC()
	f.usersByID[userID] = user
	f.usersByEmail[strings.ToLower(user.Email)] = user
	return user, nil
}
