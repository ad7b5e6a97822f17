package tokenmanager

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
)

const (
	Issuer   = "refledger"
	Audience = "refledger-admin"
)

const (
	defaultAlg        = "HS256"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour
	refreshTokenBytes = 32
)

// Claims carried by an admin access token
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	AdminID uuid.UUID `json:"aid"`
}

type Config struct {
	// Required. HMAC key for access tokens
	SecretKey string

	// One of HS256, HS384, HS512. HS256 when empty
	Alg string

	// Zero means default: 15m access, 24h refresh
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Optional. Receives a warning when a used refresh token is replayed
	Logger logger.Logger
}

// TokenManager issues admin sessions: a short lived JWT plus an opaque single use refresh token.
// Refresh values never reach the database, only their sha256 digest does.
type TokenManager struct {
	key        []byte
	alg        jwt.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     logger.Logger

	refreshRepo repository.RefreshTokenRepo
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultAlg
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("signing method %q is not supported, use one of HS256, HS384, HS512", cfg.Alg)
	}

	m := &TokenManager{
		key:         []byte(cfg.SecretKey),
		alg:         alg,
		accessTTL:   cmpDuration(cfg.AccessTTL, defaultAccessTTL),
		refreshTTL:  cmpDuration(cfg.RefreshTTL, defaultRefreshTTL),
		logger:      cfg.Logger,
		refreshRepo: refreshRepo,
	}
	if m.logger == nil {
		m.logger = logger.NewNoOpLogger()
	}
	return m, nil
}

func cmpDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// HashRefresh returns the digest stored in place of a refresh token value
func HashRefresh(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func (m *TokenManager) GeneratePair(ctx context.Context, admin models.Admin) (models.TokenPair, error) {
	var pair models.TokenPair
	now := time.Now().Truncate(time.Second)

	access, err := m.signAccess(admin, now)
	if err != nil {
		return pair, err
	}

	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return pair, fmt.Errorf("generate refresh token: %w", err)
	}
	refresh := base64.RawURLEncoding.EncodeToString(b)

	err = m.refreshRepo.Save(ctx, models.RefreshToken{
		ID:        uuid.New(),
		AdminID:   admin.ID,
		TokenHash: HashRefresh(refresh),
		CreatedAt: now,
		ExpiresAt: now.Add(m.refreshTTL),
	})
	if err != nil {
		return pair, fmt.Errorf("save refresh token: %w", err)
	}

	pair.Access = models.IssuedToken{Value: access, ExpiresAt: now.Add(m.accessTTL)}
	pair.Refresh = models.IssuedToken{Value: refresh, ExpiresAt: now.Add(m.refreshTTL)}
	return pair, nil
}

func (m *TokenManager) signAccess(admin models.Admin, now time.Time) (string, error) {
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{Audience},
			Subject:   admin.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		AdminID: admin.ID,
	}

	signed, err := jwt.NewWithClaims(m.alg, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// UseRefresh consumes a refresh token.
// Presenting an already used token is treated as theft: every live token of that admin is revoked.
func (m *TokenManager) UseRefresh(ctx context.Context, refresh string) (models.RefreshToken, error) {
	token, err := m.refreshRepo.GetAndMarkUsed(ctx, HashRefresh(refresh))

	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenIsUsed):
		revoked, revokeErr := m.refreshRepo.RevokeAll(ctx, token.AdminID)
		if revokeErr != nil {
			return token, fmt.Errorf("revoke admin tokens: %w", errors.Join(err, revokeErr))
		}
		m.logger.Warn("Refresh token reused, admin sessions revoked",
			"admin_id", token.AdminID,
			"revoked", revoked,
		)
		return token, fmt.Errorf("use refresh token: %w", err)
	case err != nil:
		return token, fmt.Errorf("use refresh token: %w", err)
	case token.ExpiredAt(time.Now()):
		return token, fmt.Errorf("use refresh token: %w", apperrors.ErrRefreshTokenExpired)
	default:
		return token, nil
	}
}

// RevokeAll marks every live refresh token of the admin used. Returns count of revoked tokens
func (m *TokenManager) RevokeAll(ctx context.Context, adminID uuid.UUID) (int64, error) {
	n, err := m.refreshRepo.RevokeAll(ctx, adminID)
	if err != nil {
		return 0, fmt.Errorf("revoke admin tokens: %w", err)
	}
	return n, nil
}

// ParseAccess validates signature, issuer, audience and expiry and returns the admin id
func (m *TokenManager) ParseAccess(_ context.Context, access string) (uuid.UUID, error) {
	var claims AccessTokenClaims

	_, err := jwt.ParseWithClaims(
		access,
		&claims,
		func(*jwt.Token) (any, error) { return m.key, nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse access token: %w", err)
	}
	if claims.AdminID == uuid.Nil {
		return uuid.Nil, errors.New("parse access token: admin id claim is empty")
	}

	return claims.AdminID, nil
}
