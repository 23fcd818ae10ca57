package jwttoken

import (
	"time"

	"warden/pkg/domain"
)

// ToIdentity converts verified claims into the request principal.
// A token without iat yields a zero IssuedAt.
func ToIdentity(claims *Claims) (domain.Identity, error) {
	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	return domain.NewIdentity(claims.Subject, issuedAt)
}

// JWTServiceAdapter exposes JWTService as the auth gate's TokenVerifier.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

// Verify validates the raw token and returns the principal it names.
func (a *JWTServiceAdapter) Verify(tokenString string) (domain.Identity, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}
	return ToIdentity(claims)
}
