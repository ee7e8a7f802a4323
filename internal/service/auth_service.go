package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voyago/config"
	"voyago/internal/auth"
	"voyago/internal/domain"
	"voyago/internal/models"
	"voyago/internal/repository"
	"voyago/pkg/pinetwork"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailExists     = errors.New("email already registered")
	ErrUsernameExists  = errors.New("username already taken")
	ErrInvalidCreds    = errors.New("invalid email or password")
	ErrPiAuth          = errors.New("pi authentication failed")
	ErrPiAlreadyLinked = errors.New("pi account already linked to another user")
)

type AuthService struct {
	cfg      *config.Config
	userRepo *repository.UserRepository
	pi       *pinetwork.Client
}

func NewAuthService(cfg *config.Config, userRepo *repository.UserRepository, pi *pinetwork.Client) *AuthService {
	return &AuthService{cfg: cfg, userRepo: userRepo, pi: pi}
}

func (s *AuthService) Register(email, username, password string) (*models.User, string, string, error) {
	_, err := s.userRepo.GetByEmail(email)
	if err == nil {
		return nil, "", "", ErrEmailExists
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", "", err
	}
	_, err = s.userRepo.GetByUsername(username)
	if err == nil {
		return nil, "", "", ErrUsernameExists
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", "", err
	}
	u := &models.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		Tier:         domain.TierFree,
	}
	if err := s.userRepo.Create(u); err != nil {
		return nil, "", "", err
	}
	access, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role, u.Tier)
	if err != nil {
		return u, "", "", err
	}
	refresh, err := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	if err != nil {
		return u, access, "", err
	}
	return u, access, refresh, nil
}

func (s *AuthService) Login(email, password string) (*models.User, string, string, error) {
	u, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", "", ErrInvalidCreds
		}
		return nil, "", "", err
	}
	if u.PasswordHash == "" {
		return nil, "", "", ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", "", ErrInvalidCreds
	}
	access, _ := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role, u.Tier)
	refresh, _ := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	return u, access, refresh, nil
}

// LoginWithGoogle creates or finds a user by Google ID and returns user +
// tokens + isNew flag.
func (s *AuthService) LoginWithGoogle(googleID, email, name, avatarURL string) (*models.User, string, string, bool, error) {
	u, err := s.userRepo.GetByGoogleID(googleID)
	if err == nil {
		access, _ := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role, u.Tier)
		refresh, _ := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
		return u, access, refresh, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", "", false, err
	}
	// New Google identity: link to an existing account on email match.
	existing, _ := s.userRepo.GetByEmail(email)
	if existing != nil {
		gid := googleID
		existing.GoogleID = &gid
		if avatarURL != "" {
			existing.AvatarURL = avatarURL
		}
		if err := s.userRepo.Update(existing); err != nil {
			return nil, "", "", false, err
		}
		access, _ := auth.GenerateAccessToken(&s.cfg.JWT, existing.ID, existing.Email, existing.Role, existing.Tier)
		refresh, _ := auth.GenerateRefreshToken(&s.cfg.JWT, existing.ID)
		return existing, access, refresh, false, nil
	}
	gid := googleID
	username := strings.Split(email, "@")[0]
	if name != "" {
		username = strings.ReplaceAll(strings.ToLower(name), " ", "_")
	}
	if username == "" {
		username = fmt.Sprintf("user%d", time.Now().UnixNano()%100000)
	}
	u = &models.User{
		Email:     email,
		Username:  s.uniqueUsername(username),
		GoogleID:  &gid,
		Role:      domain.RoleUser,
		Tier:      domain.TierFree,
		AvatarURL: avatarURL,
	}
	if err := s.userRepo.Create(u); err != nil {
		return nil, "", "", false, err
	}
	access, _ := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role, u.Tier)
	refresh, _ := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	return u, access, refresh, true, nil
}

// LoginWithPi authenticates a Pi Network access token against the provider's
// /v2/me endpoint, then finds or creates the matching local account.
func (s *AuthService) LoginWithPi(ctx context.Context, piAccessToken string) (*models.User, string, string, bool, error) {
	profile, err := s.pi.Me(ctx, piAccessToken)
	if err != nil {
		return nil, "", "", false, ErrPiAuth
	}
	u, err := s.userRepo.GetByPiUID(profile.UID)
	if err == nil {
		access, _ := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role, u.Tier)
		refresh, _ := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
		return u, access, refresh, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", "", false, err
	}
	uid := profile.UID
	u = &models.User{
		// Pi accounts carry no email; synthesize a stable unique one.
		Email:      fmt.Sprintf("%s@pi.voyago.app", profile.UID),
		Username:   s.uniqueUsername(profile.Username),
		Role:       domain.RoleUser,
		Tier:       domain.TierFree,
		PiUID:      &uid,
		PiUsername: profile.Username,
	}
	if err := s.userRepo.Create(u); err != nil {
		return nil, "", "", false, err
	}
	access, _ := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role, u.Tier)
	refresh, _ := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	return u, access, refresh, true, nil
}

// LinkPi binds a Pi Network identity to an already-authenticated account.
// Payment approval requires the link.
func (s *AuthService) LinkPi(ctx context.Context, userID uint, piAccessToken string) (*models.User, error) {
	profile, err := s.pi.Me(ctx, piAccessToken)
	if err != nil {
		return nil, ErrPiAuth
	}
	other, err := s.userRepo.GetByPiUID(profile.UID)
	if err == nil && other.ID != userID {
		return nil, ErrPiAlreadyLinked
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	uid := profile.UID
	u.PiUID = &uid
	u.PiUsername = profile.Username
	if err := s.userRepo.Update(u); err != nil {
		return nil, err
	}
	return u, nil
}

// ChangePassword updates the user's password. Requires current password verification.
func (s *AuthService) ChangePassword(userID uint, currentPassword, newPassword string) error {
	u, err := s.userRepo.GetByID(userID)
	if err != nil || u == nil {
		return ErrInvalidCreds
	}
	if u.PasswordHash == "" {
		return errors.New("account uses social sign-in; set a password first")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCreds
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return s.userRepo.Update(u)
}

func (s *AuthService) RefreshToken(refreshToken string) (access, refresh string, err error) {
	token, err := jwt.ParseWithClaims(refreshToken, &jwt.RegisteredClaims{}, func(_ *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.RefreshSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", auth.ErrInvalidToken
	}
	claims := token.Claims.(*jwt.RegisteredClaims)
	var userID uint
	fmt.Sscanf(claims.Subject, "%d", &userID)
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return "", "", err
	}
	access, _ = auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role, u.Tier)
	refresh, _ = auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	return access, refresh, nil
}

// uniqueUsername appends a numeric suffix when the base name is taken.
func (s *AuthService) uniqueUsername(base string) string {
	if base == "" {
		base = "traveler"
	}
	if _, err := s.userRepo.GetByUsername(base); errors.Is(err, gorm.ErrRecordNotFound) {
		return base
	}
	return fmt.Sprintf("%s_%d", base, time.Now().UnixNano()%1000000)
}
