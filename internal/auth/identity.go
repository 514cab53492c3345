package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gymflow/server/internal/model"
	"github.com/gymflow/server/internal/repo"
)

var (
	// ErrInvalidLogin is returned by an IdentityProvider when email and password do not match a user
	ErrInvalidLogin = errors.New("invalid login credentials")
	// ErrUserExists is returned by an IdentityProvider when creating a user whose email is taken
	ErrUserExists = errors.New("identity user already exists")
)

// IdentityProvider is the backing user directory. Implementations return
// ErrInvalidLogin and ErrUserExists for the corresponding conditions.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (model.IdentityUser, error)
	CreateUser(ctx context.Context, email, password string) (model.IdentityUser, error)
	GetUserByEmail(ctx context.Context, email string) (model.IdentityUser, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, password string) error
}

// LocalIdentityProvider keeps identity users in Postgres with bcrypt hashes
type LocalIdentityProvider struct {
	users      repo.IdentityRepo
	bcryptCost int
}

// NewLocalIdentityProvider creates an identity provider over the identity_users table
func NewLocalIdentityProvider(users repo.IdentityRepo, bcryptCost int) *LocalIdentityProvider {
	return &LocalIdentityProvider{users: users, bcryptCost: bcryptCost}
}

func (p *LocalIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (model.IdentityUser, error) {
	u, err := p.users.GetByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return model.IdentityUser{}, ErrInvalidLogin
	}
	if err != nil {
		return model.IdentityUser{}, err
	}
	ok, err := CheckPassword(u.PasswordHash, password)
	if err != nil {
		return model.IdentityUser{}, err
	}
	if !ok {
		return model.IdentityUser{}, ErrInvalidLogin
	}
	if err := p.users.RecordSignIn(ctx, u.ID); err != nil {
		return model.IdentityUser{}, err
	}
	return u, nil
}

func (p *LocalIdentityProvider) CreateUser(ctx context.Context, email, password string) (model.IdentityUser, error) {
	hash, err := HashPassword(password, p.bcryptCost)
	if err != nil {
		return model.IdentityUser{}, err
	}
	u, err := p.users.Create(ctx, email, hash)
	if errors.Is(err, repo.ErrDuplicate) {
		return model.IdentityUser{}, ErrUserExists
	}
	return u, err
}

func (p *LocalIdentityProvider) GetUserByEmail(ctx context.Context, email string) (model.IdentityUser, error) {
	return p.users.GetByEmail(ctx, email)
}

func (p *LocalIdentityProvider) UpdatePassword(ctx context.Context, id uuid.UUID, password string) error {
	hash, err := HashPassword(password, p.bcryptCost)
	if err != nil {
		return err
	}
	return p.users.UpdatePasswordHash(ctx, id, hash)
}

// IdentityBridge makes sure a resolved account has a matching identity user
// that accepts the supplied password.
type IdentityBridge struct {
	provider IdentityProvider
	domain   string
	timeout  time.Duration
	log      *zap.Logger
}

// NewIdentityBridge creates a bridge; every provider call is bounded by timeout
func NewIdentityBridge(provider IdentityProvider, domain string, timeout time.Duration, log *zap.Logger) *IdentityBridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityBridge{
		provider: provider,
		domain:   strings.TrimPrefix(domain, "@"),
		timeout:  timeout,
		log:      log,
	}
}

// EmailFor returns the canonical identity email of username
func (b *IdentityBridge) EmailFor(username string) string {
	return strings.ToLower(strings.TrimSpace(username)) + "@" + b.domain
}

// Ensure signs the account in, creating the identity user or rotating its
// password when needed. Sign-in is retried exactly once.
func (b *IdentityBridge) Ensure(ctx context.Context, username, password string) (model.IdentityUser, error) {
	email := b.EmailFor(username)

	u, err := b.signIn(ctx, email, password)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrInvalidLogin) {
		return model.IdentityUser{}, b.fail("sign in", err)
	}

	if err := b.createOrRotate(ctx, email, password); err != nil {
		return model.IdentityUser{}, err
	}

	u, err = b.signIn(ctx, email, password)
	if err != nil {
		return model.IdentityUser{}, b.fail("retry sign in", err)
	}
	return u, nil
}

func (b *IdentityBridge) createOrRotate(ctx context.Context, email, password string) error {
	cctx, cancel := b.bounded(ctx)
	_, err := b.provider.CreateUser(cctx, email, password)
	cancel()
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserExists) {
		return b.fail("create user", err)
	}

	cctx, cancel = b.bounded(ctx)
	existing, err := b.provider.GetUserByEmail(cctx, email)
	cancel()
	if err != nil {
		return b.fail("lookup existing user", err)
	}

	cctx, cancel = b.bounded(ctx)
	defer cancel()
	if err := b.provider.UpdatePassword(cctx, existing.ID, password); err != nil {
		return b.fail("rotate password", err)
	}
	b.log.Info("identity password rotated", zap.String("identity_user_id", existing.ID.String()))
	return nil
}

func (b *IdentityBridge) signIn(ctx context.Context, email, password string) (model.IdentityUser, error) {
	cctx, cancel := b.bounded(ctx)
	defer cancel()
	return b.provider.SignInWithPassword(cctx, email, password)
}

func (b *IdentityBridge) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

func (b *IdentityBridge) fail(op string, err error) *Error {
	return newError(KindIdentityProvider, fmt.Errorf("identity %s: %w", op, err))
}
