package httpapi

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/sonifoy/authsvc/internal/server/models"
	"github.com/sonifoy/authsvc/internal/server/services"
)

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	ProfileCategory string `json:"profileCategory"`
}

// Validate checks the payload shape. Category parsing is left to the
// service, which owns the set of known values.
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&r.Name, validation.Length(0, 200)),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshTokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r VerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Code, validation.Required, validation.Match(codePattern)),
	)
}

type ResendVerifyRequest struct {
	Email string `json:"email"`
}

func (r ResendVerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
	)
}

// IdentityResponse is the outward projection of an identity. It has no
// password hash and no verification code.
type IdentityResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	ProfileCategory string     `json:"profileCategory"`
	Verified        bool       `json:"verified"`
	Roles           []string   `json:"roles"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	LastLoginAt     *time.Time `json:"lastLoginAt,omitempty"`
}

func newIdentityResponse(i *models.Identity) *IdentityResponse {
	roles := i.Roles
	if roles == nil {
		roles = []string{}
	}
	return &IdentityResponse{
		ID:              i.ID,
		Email:           i.Email,
		Name:            i.Name,
		ProfileCategory: string(i.ProfileCategory),
		Verified:        i.Verified,
		Roles:           roles,
		CreatedAt:       i.CreatedAt,
		UpdatedAt:       i.UpdatedAt,
		LastLoginAt:     i.LastLoginAt,
	}
}

type AuthResponse struct {
	AccessToken  string            `json:"accessToken"`
	RefreshToken string            `json:"refreshToken"`
	SessionID    string            `json:"sessionId,omitempty"`
	User         *IdentityResponse `json:"user"`
}

func newLoginResponse(r *services.LoginResult) *AuthResponse {
	return &AuthResponse{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		SessionID:    r.SessionID,
		User:         newIdentityResponse(r.Identity),
	}
}

func newRefreshResponse(r *services.RefreshResult) *AuthResponse {
	return &AuthResponse{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		User:         newIdentityResponse(r.Identity),
	}
}

// ErrorResponse carries a stable machine-readable code next to a message.
type ErrorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}
