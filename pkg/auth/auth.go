package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/gpubox/pkg/types"
	"github.com/golang-jwt/jwt/v4"
)

// Claims are the claims carried by a gpubox access token. The subject is
// the decimal user ID.
type Claims struct {
	jwt.RegisteredClaims

	Role types.Role `json:"role"`
}

// UserSource resolves the user named by a verified token
type UserSource interface {
	GetUser(id uint64) (*types.User, error)
}

// Authenticator mints and verifies HS256 access tokens
type Authenticator struct {
	secret []byte
	issuer string
	users  UserSource
	now    func() time.Time
}

// NewAuthenticator returns an Authenticator signing with secret. When users
// is not nil every verified token is checked against it and the stored role
// wins over the role in the token.
func NewAuthenticator(secret, issuer string, users UserSource) (*Authenticator, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth secret must be at least 16 bytes")
	}
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		users:  users,
		now:    time.Now,
	}, nil
}

// Mint issues a token for user valid for ttl
func (a *Authenticator) Mint(user *types.User, ttl time.Duration) (string, error) {
	if user == nil || user.ID == 0 {
		return "", types.Validationf("token subject must be a stored user")
	}
	if ttl <= 0 {
		return "", types.Validationf("token ttl must be positive")
	}

	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   strconv.FormatUint(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: user.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return a.secret, nil
}

// Verify checks the signature, validity window and issuer of raw and
// returns the actor it names. Every failure wraps types.ErrUnauthenticated.
func (a *Authenticator) Verify(raw string) (types.Actor, error) {
	claims := new(Claims)
	if _, err := jwt.ParseWithClaims(raw, claims, a.keyFunc); err != nil {
		return types.Actor{}, fmt.Errorf("%w: %v", types.ErrUnauthenticated, err)
	}
	if !claims.VerifyIssuer(a.issuer, true) {
		return types.Actor{}, fmt.Errorf("%w: bad issuer %q", types.ErrUnauthenticated, claims.Issuer)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return types.Actor{}, fmt.Errorf("%w: bad subject %q", types.ErrUnauthenticated, claims.Subject)
	}

	actor := types.Actor{UserID: id, Role: claims.Role}
	if a.users != nil {
		user, err := a.users.GetUser(id)
		if err != nil {
			if errors.Is(err, types.ErrNotFound) {
				return types.Actor{}, fmt.Errorf("%w: user %d no longer exists", types.ErrUnauthenticated, id)
			}
			return types.Actor{}, err
		}
		actor.Role = user.Role
	}
	if actor.Role != types.RoleAdmin {
		actor.Role = types.RoleUser
	}
	return actor, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
