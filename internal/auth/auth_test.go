package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"boltalka/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	mu    sync.Mutex
	users map[string]Credentials
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]Credentials)}
}

func (m *memStore) CreateUser(c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Nickname == c.Nickname || (c.Email != "" && u.Email == c.Email) {
			return ErrUserExists
		}
	}
	m.users[c.ID] = c
	return nil
}

func (m *memStore) FindCredentials(login string) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Nickname == login || (u.Email != "" && u.Email == strings.ToLower(login)) {
			return u, nil
		}
	}
	return Credentials{}, models.ErrNotFound
}

func (m *memStore) GetUser(id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return u.User, nil
}

func (m *memStore) TouchUser(id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return models.ErrNotFound
	}
	u.LastSeen = at
	m.users[id] = u
	return nil
}

func TestAuthService(t *testing.T) {
	createService := func(t *testing.T) (*AuthService, *memStore, *time.Time) {
		store := newMemStore()
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)

		svc, err := NewAuthService(ctx, Config{Secret: "server-secret", TokenExpiry: time.Hour}, store)
		require.NoError(t, err)
		svc.bcryptCost = bcrypt.MinCost

		currentTime := time.Now()
		svc.now = func() time.Time {
			return currentTime
		}
		return svc, store, &currentTime
	}

	t.Run("Register", func(t *testing.T) {
		svc, _, _ := createService(t)

		resp, err := svc.Register(RegisterRequest{Nickname: "alice", Email: "Alice@example.com", Password: "secret1"})
		require.NoError(t, err)
		require.NotEmpty(t, resp.Token)
		require.Equal(t, "alice", resp.User.Nickname)
		require.Equal(t, "alice@example.com", resp.User.Email)
		require.Equal(t, models.DefaultMessageColor, resp.User.MessageColor)
		require.Equal(t, models.GenderMale, resp.User.Gender)

		_, err = svc.Register(RegisterRequest{Nickname: "alice", Password: "secret2"})
		require.ErrorIs(t, err, ErrUserExists)

		_, err = svc.Register(RegisterRequest{Nickname: "al", Password: "secret2"})
		require.Error(t, err)
		_, err = svc.Register(RegisterRequest{Nickname: "bobby", Password: "123"})
		require.Error(t, err)
		_, err = svc.Register(RegisterRequest{Nickname: "bobby", Password: "secret", MessageColor: "pink"})
		require.Error(t, err)
		_, err = svc.Register(RegisterRequest{Nickname: "bobby", Password: "secret", Gender: "robot"})
		require.Error(t, err)
	})

	t.Run("Login", func(t *testing.T) {
		svc, _, _ := createService(t)
		reg, err := svc.Register(RegisterRequest{Nickname: "alice", Email: "alice@example.com", Password: "secret1", Gender: "female"})
		require.NoError(t, err)

		resp, err := svc.Login(LoginRequest{Login: "alice", Password: "secret1"})
		require.NoError(t, err)
		require.Equal(t, reg.User.ID, resp.User.ID)

		resp, err = svc.Login(LoginRequest{Login: "ALICE@example.com", Password: "secret1"})
		require.NoError(t, err)
		require.Equal(t, models.GenderFemale, resp.User.Gender)

		_, err = svc.Login(LoginRequest{Login: "alice", Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = svc.Login(LoginRequest{Login: "nobody", Password: "secret1"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("Authenticate", func(t *testing.T) {
		svc, store, now := createService(t)
		reg, err := svc.Register(RegisterRequest{Nickname: "alice", Password: "secret1"})
		require.NoError(t, err)

		*now = now.Add(10 * time.Minute)
		user, err := svc.Authenticate(reg.Token)
		require.NoError(t, err)
		require.Equal(t, reg.User.ID, user.ID)
		stored, _ := store.GetUser(user.ID)
		require.True(t, stored.LastSeen.Equal(*now))

		id, err := svc.UserID(reg.Token)
		require.NoError(t, err)
		require.Equal(t, reg.User.ID, id)

		_, err = svc.Authenticate("")
		require.ErrorIs(t, err, ErrInvalidToken)
		_, err = svc.Authenticate("garbage")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Authenticate_Expired", func(t *testing.T) {
		svc, _, now := createService(t)
		reg, err := svc.Register(RegisterRequest{Nickname: "alice", Password: "secret1"})
		require.NoError(t, err)

		*now = now.Add(2 * time.Hour)
		_, err = svc.Authenticate(reg.Token)
		require.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("Authenticate_UnknownUser", func(t *testing.T) {
		svc, store, _ := createService(t)
		reg, err := svc.Register(RegisterRequest{Nickname: "alice", Password: "secret1"})
		require.NoError(t, err)

		store.mu.Lock()
		delete(store.users, reg.User.ID)
		store.mu.Unlock()

		_, err = svc.Authenticate(reg.Token)
		require.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("Authenticate_WrongSecret", func(t *testing.T) {
		svc, _, _ := createService(t)
		reg, err := svc.Register(RegisterRequest{Nickname: "alice", Password: "secret1"})
		require.NoError(t, err)

		other, _, _ := createService(t)
		other.Secret = "another-secret"
		_, err = other.Authenticate(reg.Token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Authenticate_RejectsNoneAlgorithm", func(t *testing.T) {
		svc, _, now := createService(t)
		claims := Claims{
			UserID: "someone",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    defaultIssuer,
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.UserID(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Logout", func(t *testing.T) {
		svc, _, _ := createService(t)
		reg, err := svc.Register(RegisterRequest{Nickname: "alice", Password: "secret1"})
		require.NoError(t, err)

		require.NoError(t, svc.Logout(reg.Token))
		_, err = svc.Authenticate(reg.Token)
		require.True(t, errors.Is(err, ErrInvalidToken))
		require.ErrorIs(t, svc.Logout(reg.Token), ErrInvalidToken)
	})
}

func TestConfig_Validate(t *testing.T) {
	c := Config{}
	require.Error(t, c.Validate())

	c = Config{Secret: "s"}
	require.NoError(t, c.Validate())
	require.Equal(t, DefaultTokenExpiry, c.TokenExpiry)
	require.Equal(t, defaultIssuer, c.Issuer)

	c = Config{Secret: "s", TokenExpiry: -time.Second}
	require.Error(t, c.Validate())
}
