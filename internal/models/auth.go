package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// ClientMeta describes the caller of an auth endpoint.
type ClientMeta struct {
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RegisterRequest creates an account and opens its first session.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Email    string `json:"email" validate:"omitempty,email,max=255"`
	Nickname string `json:"nickname" validate:"omitempty,max=64"`
	ClientMeta
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	ClientMeta
}

// RotateRequest exchanges a refresh token for a new token pair.
type RotateRequest struct {
	Token string `json:"token"`
	ClientMeta
}

// LogoutRequest ends the session owning Token.
type LogoutRequest struct {
	Token string `json:"token" validate:"required"`
	ClientMeta
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=72,nefield=OldPassword"`
	ClientMeta
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Message      string `json:"message"`
}

// TokenPair is returned by rotation.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenClaims is the payload carried by both access and refresh tokens.
type TokenClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}
