package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"warecollabgo/internal/collab"
)

var ErrUnauthenticated = errors.New("missing or invalid credentials")

// Claims carries the identity fields issued by the session service.
type Claims struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// ParseIdentity verifies an HS256 token and extracts the connection's
// identity. The subject claim is the user id and is mandatory.
func ParseIdentity(secret, tokenString string) (collab.Identity, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return collab.Identity{}, ErrUnauthenticated
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return collab.Identity{}, ErrUnauthenticated
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return collab.Identity{}, ErrUnauthenticated
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	return collab.Identity{
		UserID:     claims.Subject,
		UserName:   name,
		UserAvatar: claims.Avatar,
	}, nil
}
