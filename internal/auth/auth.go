package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"boltalka/internal/content"
	"boltalka/internal/models"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = 7 * 24 * time.Hour
	defaultIssuer      = "boltalka"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
	ErrUserNotFound       = errors.New("user not found")
)

type RegisterRequest struct {
	Nickname     string `json:"nickname"`
	Email        string `json:"email,omitempty"`
	Password     string `json:"password"`
	MessageColor string `json:"messageColor,omitempty"`
	Gender       string `json:"gender,omitempty"`
}

// LoginRequest accepts either a nickname or an email as Login.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token       string      `json:"token"`
	TokenExpiry int64       `json:"tokenExpiry"`
	User        models.User `json:"user"`
}

// Credentials is a user together with its password hash.
type Credentials struct {
	models.User
	PasswordHash string
}

type userStore interface {
	CreateUser(credentials Credentials) error
	FindCredentials(login string) (Credentials, error)
	GetUser(id string) (models.User, error)
	TouchUser(id string, at time.Time) error
}

type Config struct {
	Secret      string        `json:"secret"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
	Issuer      string        `json:"issuer"`
}

type Claims struct {
	UserID   string `json:"id"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

type AuthService struct {
	Config
	store userStore
	// Logged out tokens, kept until they would have expired anyway.
	revoked    geche.Geche[string, struct{}]
	bcryptCost int
	now        func() time.Time
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}
	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}
	if c.TokenExpiry < 0 {
		return errors.New("token expiry must be positive")
	}
	if c.Issuer == "" {
		c.Issuer = defaultIssuer
	}
	return nil
}

func NewAuthService(ctx context.Context, config Config, store userStore) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:     config,
		store:      store,
		revoked:    geche.NewMapTTLCache[string, struct{}](ctx, config.TokenExpiry, time.Minute),
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}, nil
}

func (as *AuthService) Register(req RegisterRequest) (AuthResponse, error) {
	nickname := strings.TrimSpace(req.Nickname)
	if err := content.ValidateNickname(nickname); err != nil {
		return AuthResponse{}, err
	}
	if err := content.ValidatePassword(req.Password); err != nil {
		return AuthResponse{}, err
	}
	email, err := content.NormalizeEmail(req.Email)
	if err != nil {
		return AuthResponse{}, err
	}

	color := req.MessageColor
	if color == "" {
		color = models.DefaultMessageColor
	}
	if err := content.ValidateMessageColor(color); err != nil {
		return AuthResponse{}, err
	}
	gender := models.Gender(req.Gender)
	if gender == "" {
		gender = models.GenderMale
	}
	if err := content.ValidateGender(gender); err != nil {
		return AuthResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), as.bcryptCost)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := as.now().UTC()
	user := models.User{
		ID:           uuid.NewString(),
		Nickname:     nickname,
		Email:        email,
		MessageColor: color,
		Gender:       gender,
		CreatedAt:    now,
		LastSeen:     now,
	}
	if err := as.store.CreateUser(Credentials{User: user, PasswordHash: string(hash)}); err != nil {
		return AuthResponse{}, err
	}

	slog.Info("user registered", "user_id", user.ID, "nickname", user.Nickname)
	return as.issue(user)
}

func (as *AuthService) Login(req LoginRequest) (AuthResponse, error) {
	creds, err := as.store.FindCredentials(strings.TrimSpace(req.Login))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return AuthResponse{}, ErrInvalidCredentials
		}
		return AuthResponse{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(req.Password)); err != nil {
		return AuthResponse{}, ErrInvalidCredentials
	}

	if err := as.store.TouchUser(creds.ID, as.now()); err != nil {
		slog.Warn("failed to update last seen", "user_id", creds.ID, "error", err)
	}
	return as.issue(creds.User)
}

// Logout revokes the token for the rest of its lifetime.
func (as *AuthService) Logout(token string) error {
	if _, err := as.verify(token); err != nil {
		return err
	}
	as.revoked.Set(token, struct{}{})
	return nil
}

// UserID verifies the token and returns the user id it was issued to.
func (as *AuthService) UserID(token string) (string, error) {
	claims, err := as.verify(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Authenticate verifies the token, loads the user it belongs to and records
// that the user was seen.
func (as *AuthService) Authenticate(token string) (models.User, error) {
	claims, err := as.verify(token)
	if err != nil {
		return models.User{}, err
	}

	user, err := as.store.GetUser(claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}

	now := as.now()
	if err := as.store.TouchUser(user.ID, now); err != nil {
		slog.Warn("failed to update last seen", "user_id", user.ID, "error", err)
	} else {
		user.LastSeen = now.UTC()
	}
	return user, nil
}

func (as *AuthService) issue(user models.User) (AuthResponse, error) {
	now := as.now()
	expiresAt := now.Add(as.TokenExpiry)
	claims := Claims{
		UserID:   user.ID,
		Nickname: user.Nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    as.Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(as.Secret))
	if err != nil {
		slog.Error("failed to sign token", "user_id", user.ID, "error", err)
		return AuthResponse{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return AuthResponse{
		Token:       token,
		TokenExpiry: expiresAt.Unix(),
		User:        user,
	}, nil
}

func (as *AuthService) verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	if _, err := as.revoked.Get(token); err == nil {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(as.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(as.Issuer),
		jwt.WithTimeFunc(as.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
