package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasksched/tasksched/internal/domain"
	"github.com/tasksched/tasksched/internal/token"
)

// memStore is an in-memory UserStore with the same semantics as the
// Postgres repository: unique email, upsert that only refreshes provider
// fields on conflict.
type memStore struct {
	mu    sync.Mutex
	seq   int64
	users map[string]*domain.User // keyed by email
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*domain.User)}
}

func (m *memStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *memStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[email]
	return ok, nil
}

func (m *memStore) Save(_ context.Context, user domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == 0 {
		if _, ok := m.users[user.Email]; ok {
			return nil, domain.ErrConflict
		}
		m.seq++
		user.ID = m.seq
		user.CreatedAt = time.Now()
	}
	user.UpdatedAt = time.Now()
	copied := user
	m.users[user.Email] = &copied
	result := user
	return &result, nil
}

func (m *memStore) UpsertByEmail(_ context.Context, user domain.User) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[user.Email]; ok {
		existing.Provider = user.Provider
		existing.ProviderID = user.ProviderID
		existing.PictureURL = user.PictureURL
		existing.UpdatedAt = time.Now()
		copied := *existing
		return &copied, nil
	}
	m.seq++
	user.ID = m.seq
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	copied := user
	m.users[user.Email] = &copied
	result := user
	return &result, nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func newTestAuth(t *testing.T) (*AuthService, *memStore, *token.Codec) {
	t.Helper()
	store := newMemStore()
	codec := token.New("test-secret", time.Hour)
	return NewAuthService(store, codec), store, codec
}

func TestRegisterAndLogin(t *testing.T) {
	svc, store, codec := newTestAuth(t)
	ctx := context.Background()

	user, signed, err := svc.Register(ctx, "Ann", "Ann@X.com", "secret1", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", user.Email)
	assert.Equal(t, domain.AuthProviderLocal, user.Provider)
	require.True(t, codec.Validate(signed))

	claims, err := codec.Claims(signed)
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", claims.Subject)
	assert.Equal(t, user.ID, claims.UserID)

	// Stored hash is one-way, never the plaintext.
	stored, err := store.FindByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2"))

	loggedIn, signed2, err := svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.True(t, codec.Validate(signed2))
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		userName string
		email    string
		password string
		confirm  string
	}{
		{name: "mismatched confirmation", userName: "Ann", email: "ann@x.com", password: "secret1", confirm: "secret2"},
		{name: "blank name", userName: "  ", email: "ann@x.com", password: "secret1", confirm: "secret1"},
		{name: "blank email", userName: "Ann", email: "", password: "secret1", confirm: "secret1"},
		{name: "short password", userName: "Ann", email: "ann@x.com", password: "12345", confirm: "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestAuth(t)

			_, _, err := svc.Register(context.Background(), tt.userName, tt.email, tt.password, tt.confirm)

			var validationErr *domain.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Zero(t, store.count(), "no identity must be created on validation failure")
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, store, _ := newTestAuth(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1", "secret1")
	require.NoError(t, err)

	_, _, err = svc.Register(ctx, "Other Ann", "ANN@X.COM", "secret2", "secret2")
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "email", validationErr.Field)
	assert.Equal(t, 1, store.count())
}

func TestLoginFailures(t *testing.T) {
	svc, store, _ := newTestAuth(t)
	ctx := context.Background()

	_, _, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1", "secret1")
	require.NoError(t, err)

	t.Run("unknown email", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "nobody@x.com", "secret1")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, _, err := svc.Login(ctx, "ann@x.com", "wrong")
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})

	t.Run("oauth-only account", func(t *testing.T) {
		// The sentinel is not a bcrypt hash, so verification always fails.
		_, err := store.UpsertByEmail(ctx, domain.User{
			Name:         "Bea",
			Email:        "bea@x.com",
			PasswordHash: domain.OAuthPasswordSentinel,
			Provider:     domain.AuthProviderGoogle,
		})
		require.NoError(t, err)

		_, _, err = svc.Login(ctx, "bea@x.com", domain.OAuthPasswordSentinel)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})
}

func TestPrincipalFromToken(t *testing.T) {
	svc, _, codec := newTestAuth(t)
	ctx := context.Background()

	user, signed, err := svc.Register(ctx, "Ann", "ann@x.com", "secret1", "secret1")
	require.NoError(t, err)

	principal, err := svc.PrincipalFromToken(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, &domain.Principal{ID: user.ID, Name: "Ann", Email: "ann@x.com"}, principal)

	t.Run("expired token", func(t *testing.T) {
		expired, err := token.New("test-secret", -time.Hour).Issue("ann@x.com", user.ID)
		require.NoError(t, err)
		_, err = svc.PrincipalFromToken(ctx, expired)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("forged token", func(t *testing.T) {
		forged, err := token.New("other-secret", time.Hour).Issue("ann@x.com", user.ID)
		require.NoError(t, err)
		_, err = svc.PrincipalFromToken(ctx, forged)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("subject no longer exists", func(t *testing.T) {
		ghost, err := codec.Issue("gone@x.com", 999)
		require.NoError(t, err)
		_, err = svc.PrincipalFromToken(ctx, ghost)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}
