package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lightingmap.app/internal/ids"
	"lightingmap.app/internal/lighting"
	"lightingmap.app/internal/obs"
)

// Service authenticates users against the store and registers pending ones.
type Service struct {
	store  lighting.Store
	tokens *TokenIssuer
	now    func() time.Time
}

// NewService wires credentials checks to token issuance.
func NewService(store lighting.Store, tokens *TokenIssuer) *Service {
	return &Service{store: store, tokens: tokens, now: time.Now}
}

// Tokens exposes the issuer used by the bearer middleware.
func (s *Service) Tokens() *TokenIssuer { return s.tokens }

// Session is the result of a successful login.
type Session struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      lighting.User `json:"user"`
}

// Login verifies credentials and rejects users that are not approved yet.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = lighting.NormalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, lighting.Invalidf("email and password are required")
	}
	var u lighting.User
	err := s.store.View(ctx, func(ctx context.Context, tx lighting.Tx) error {
		var err error
		u, err = tx.GetUserByEmail(ctx, email)
		return err
	})
	if errors.Is(err, lighting.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if !u.IsApproved {
		return Session{}, ErrNotApproved
	}
	return s.Issue(u)
}

// Issue signs a token for an approved user.
func (s *Service) Issue(u lighting.User) (Session, error) {
	if !u.IsApproved {
		return Session{}, ErrNotApproved
	}
	token, exp, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// Registration is the self-service sign-up payload.
type Registration struct {
	Name     string   `json:"name"`
	Surname  string   `json:"surname"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	TownIDs  []string `json:"town_halls_list"`
}

// Register stores a DEFAULT_USER awaiting approval.
func (s *Service) Register(ctx context.Context, r Registration) (lighting.User, error) {
	r.Email = lighting.NormalizeEmail(r.Email)
	if r.Email == "" || !strings.Contains(r.Email, "@") {
		return lighting.User{}, lighting.Invalidf("a valid email is required")
	}
	if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Surname) == "" {
		return lighting.User{}, lighting.Invalidf("name and surname are required")
	}
	hash, err := HashPassword(r.Password)
	if err != nil {
		return lighting.User{}, err
	}
	u := lighting.User{
		ID:           ids.New(),
		Name:         strings.TrimSpace(r.Name),
		Surname:      strings.TrimSpace(r.Surname),
		Email:        r.Email,
		PasswordHash: hash,
		Role:         lighting.RoleDefaultUser,
		TownIDs:      r.TownIDs,
		CreatedAt:    s.now().UTC(),
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		for _, id := range u.TownIDs {
			if _, err := tx.GetTown(ctx, id); err != nil {
				return err
			}
		}
		return tx.CreateUser(ctx, &u)
	})
	if err != nil {
		obs.Logger().WithFields(logrus.Fields{"operation": "Register", "email": u.Email}).WithError(err).Warn("registration failed")
		return lighting.User{}, err
	}
	return u, nil
}

// Modification edits an account found by Email. Blank fields keep their
// current value; a non-blank Password is re-hashed.
type Modification struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
	Role     string `json:"user_type"`
	Password string `json:"password"`
}

// ModifyUser applies m to the stored account.
func (s *Service) ModifyUser(ctx context.Context, m Modification) (lighting.User, error) {
	email := lighting.NormalizeEmail(m.Email)
	if email == "" {
		return lighting.User{}, lighting.Invalidf("email is required")
	}
	var role lighting.Role
	if strings.TrimSpace(m.Role) != "" {
		r, err := lighting.ParseRole(m.Role)
		if err != nil {
			return lighting.User{}, err
		}
		role = r
	}
	var hash string
	if m.Password != "" {
		h, err := HashPassword(m.Password)
		if err != nil {
			return lighting.User{}, err
		}
		hash = h
	}

	var u lighting.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx lighting.Tx) error {
		var err error
		if u, err = tx.GetUserByEmail(ctx, email); err != nil {
			return err
		}
		if v := strings.TrimSpace(m.Name); v != "" {
			u.Name = v
		}
		if v := strings.TrimSpace(m.Surname); v != "" {
			u.Surname = v
		}
		if role != "" {
			u.Role = role
		}
		if hash != "" {
			u.PasswordHash = hash
		}
		return tx.UpdateUser(ctx, u)
	})
	if err != nil {
		obs.Logger().WithFields(logrus.Fields{"operation": "ModifyUser", "email": email}).WithError(err).Warn("user update failed")
		return lighting.User{}, err
	}
	return u, nil
}
