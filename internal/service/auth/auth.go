package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
	"github.com/nkiryanov/refledger/internal/service/auth/tokenmanager"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshtoken"
)

type Config struct {
	// Hasher to use during admin registration or login process
	Hasher PasswordHasher

	// Where access token is sent and read from
	AccessHeaderName string
	AccessAuthScheme string

	// Cookie to keep refresh token in
	RefreshCookieName string
}

// Auth service issues token pairs for admins
type AuthService struct {
	// Manager to issue token pairs (access and refresh)
	tokenManager *tokenmanager.TokenManager

	hasher PasswordHasher

	// Compared against on unknown username, so login time does not reveal which admins exist
	dummyHash string

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string

	// Storage to access long term data
	storage repository.Storage
}

func NewService(cfg Config, tokenManager *tokenmanager.TokenManager, storage repository.Storage) (*AuthService, error) {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)

	// Set default bcrypt hasher if not provided
	if cfg.Hasher == nil {
		cfg.Hasher = BcryptHasher{}
	}

	dummyHash, err := cfg.Hasher.Hash("refledger-unknown-admin")
	if err != nil {
		return nil, fmt.Errorf("hasher is not usable: %w", err)
	}

	return &AuthService{
		tokenManager:      tokenManager,
		hasher:            cfg.Hasher,
		dummyHash:         dummyHash,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		storage:           storage,
	}, nil
}

// Bootstrap creates the first admin from configuration.
// Admin that exists already is left as is and false is returned.
func (s *AuthService) Bootstrap(ctx context.Context, username string, password string) (models.Admin, bool, error) {
	admin, err := s.storage.Admin().GetAdminByUsername(ctx, username)
	if err == nil {
		return admin, false, nil
	}
	if !errors.Is(err, apperrors.ErrAdminNotFound) {
		return admin, false, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.Admin{}, false, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	admin, err = s.storage.Admin().CreateAdmin(ctx, username, hash)
	if errors.Is(err, apperrors.ErrAdminAlreadyExists) {
		// Created by another instance starting at the same time
		admin, err = s.storage.Admin().GetAdminByUsername(ctx, username)
		return admin, false, err
	}
	if err != nil {
		return models.Admin{}, false, err
	}

	return admin, true, nil
}

// CreateAdmin registers another admin on behalf of the creator and records it in the audit trail
func (s *AuthService) CreateAdmin(ctx context.Context, creatorID uuid.UUID, username string, password string) (models.Admin, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.Admin{}, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	var admin models.Admin
	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error
		admin, err = storage.Admin().CreateAdmin(ctx, username, hash)
		if err != nil {
			return err
		}

		_, err = storage.Audit().Record(ctx, models.AdminAction{
			AdminID:    creatorID,
			Action:     models.AdminActionCreateAdmin,
			TargetType: models.AuditTargetAdmin,
			TargetID:   admin.ID.String(),
			Details:    map[string]string{"username": username},
			CreatedAt:  admin.CreatedAt,
		})
		return err
	})
	if err != nil {
		return models.Admin{}, err
	}

	return admin, nil
}

// Login returns apperrors.ErrAdminNotFound both if admin not exists and if password is wrong.
// Hash made with an outdated cost is replaced on successful login.
func (s *AuthService) Login(ctx context.Context, username string, password string) (models.TokenPair, error) {
	admin, err := s.storage.Admin().GetAdminByUsername(ctx, username)
	if errors.Is(err, apperrors.ErrAdminNotFound) {
		_ = s.hasher.Compare(s.dummyHash, password)
		return models.TokenPair{}, err
	}
	if err != nil {
		return models.TokenPair{}, err
	}

	if err := s.hasher.Compare(admin.HashedPassword, password); err != nil {
		return models.TokenPair{}, apperrors.ErrAdminNotFound
	}

	if s.hasher.NeedsRehash(admin.HashedPassword) {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return models.TokenPair{}, fmt.Errorf("rehash password: %w", err)
		}
		if err := s.storage.Admin().SetPasswordHash(ctx, admin.ID, hash); err != nil {
			return models.TokenPair{}, fmt.Errorf("rehash password: %w", err)
		}
	}

	return s.tokenManager.GeneratePair(ctx, admin)
}

// Exchange refresh token to the new pair. Every refresh token may be used once
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	token, err := s.tokenManager.UseRefresh(ctx, refresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	admin, err := s.storage.Admin().GetAdminByID(ctx, token.AdminID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return s.tokenManager.GeneratePair(ctx, admin)
}

// Logout ends every session of the admin by revoking refresh tokens.
// Access tokens already issued stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, adminID uuid.UUID) error {
	_, err := s.tokenManager.RevokeAll(ctx, adminID)
	return err
}

// Set access token to header and refresh token to http only cookie
func (s *AuthService) SetTokenPairToResponse(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)

	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    pair.Refresh.Value,
		Path:     "/",
		MaxAge:   pair.Refresh.MaxAge(time.Now()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearTokens asks the client to drop the refresh cookie
func (s *AuthService) ClearTokens(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *AuthService) GetRefreshString(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil {
		return "", apperrors.ErrRefreshTokenNotFound
	}

	return cookie.Value, nil
}

// Get admin authenticated by access token in request header
func (s *AuthService) GetAdminFromRequest(ctx context.Context, r *http.Request) (models.Admin, error) {
	header := r.Header.Get(s.accessHeaderName)
	access, ok := strings.CutPrefix(header, s.accessAuthScheme+" ")
	if !ok || access == "" {
		return models.Admin{}, apperrors.ErrAccessTokenInvalid
	}

	adminID, err := s.tokenManager.ParseAccess(ctx, access)
	if err != nil {
		return models.Admin{}, fmt.Errorf("%w: %w", apperrors.ErrAccessTokenInvalid, err)
	}

	// Token of deleted admin is no longer valid
	admin, err := s.storage.Admin().GetAdminByID(ctx, adminID)
	if errors.Is(err, apperrors.ErrAdminNotFound) {
		return admin, fmt.Errorf("%w: %w", apperrors.ErrAccessTokenInvalid, err)
	}
	return admin, err
}
