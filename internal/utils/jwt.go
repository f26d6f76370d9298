package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand" // secure random number generation for activation codes
    "errors"      // sentinel errors for token parsing
    "fmt"         // formatting of activation codes
    "math/big"    // bounded random integers
    "strconv"     // subject <-> user id conversion
    "time"        // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

var (
    // ErrTokenExpired is returned when a token parsed fine but is past its exp claim.
    ErrTokenExpired = errors.New("token expired")
    // ErrTokenInvalid covers malformed tokens, bad signatures and unexpected algorithms.
    ErrTokenInvalid = errors.New("token invalid")
)

// SignedToken is a serialized JWT along with its expiry.
type SignedToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// SessionClaims identify a session subject.  Access and refresh tokens share
// the shape and differ only in secret and lifetime.
type SessionClaims struct {
    jwt.RegisteredClaims
}

// UserID returns the numeric user id carried in the subject claim.
func (c SessionClaims) UserID() (uint64, error) {
    id, err := strconv.ParseUint(c.Subject, 10, 64)
    if err != nil || id == 0 {
        return 0, ErrTokenInvalid
    }
    return id, nil
}

// NewSessionToken builds and signs an HS256 JWT whose subject is the user id.
// It returns the signed token and its expiration time.
func NewSessionToken(secret string, userID uint64, ttl time.Duration) (SignedToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
        Subject:   strconv.FormatUint(userID, 10),
        IssuedAt:  jwt.NewNumericDate(now),
        ExpiresAt: jwt.NewNumericDate(exp),
    }}
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return SignedToken{}, err
    }
    return SignedToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken verifies signature and expiry of a session token and
// returns its claims.  Errors are normalized to ErrTokenExpired or
// ErrTokenInvalid so callers do not depend on jwt internals.
func ParseSessionToken(secret, raw string) (SessionClaims, error) {
    var claims SessionClaims
    if err := parseHS256(secret, raw, &claims); err != nil {
        return SessionClaims{}, err
    }
    return claims, nil
}

// Sign signs arbitrary claims with HS256.  Used for activation tokens whose
// payload is defined by the caller.
func Sign(secret string, claims jwt.Claims) (string, error) {
    return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse verifies raw into claims, normalizing errors like ParseSessionToken.
func Parse(secret, raw string, claims jwt.Claims) error {
    return parseHS256(secret, raw, claims)
}

func parseHS256(secret, raw string, claims jwt.Claims) error {
    tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
        // Type assert the signing method to HMAC; reject others.
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrTokenInvalid
        }
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
    if err != nil {
        if errors.Is(err, jwt.ErrTokenExpired) {
            return ErrTokenExpired
        }
        return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
    }
    if !tok.Valid {
        return ErrTokenInvalid
    }
    return nil
}

// NewActivationCode returns a 4-digit numeric code in [1000, 9999].
func NewActivationCode() (string, error) {
    n, err := rand.Int(rand.Reader, big.NewInt(9000))
    if err != nil {
        return "", err
    }
    return strconv.FormatInt(n.Int64()+1000, 10), nil
}
