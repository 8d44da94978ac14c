package token

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Class selects which secret and TTL a token is issued and verified
// against. Access and refresh secrets are distinct so compromising one
// cannot forge the other class.
type Class int

const (
	Access Class = iota
	Refresh
)

var (
	// ErrTokenExpired means the signature verified but the token is past
	// its embedded expiry. Callers treat this differently from ErrTokenInvalid.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers malformed, wrong-signature and wrong-class tokens.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims carried by both token classes.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed, self-contained, time-bounded tokens.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewCodec fails fast on empty secrets or unparsable TTL strings.
func NewCodec(accessSecret, refreshSecret, accessTTL, refreshTTL string) (*Codec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("token: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("token: access and refresh secrets must differ")
	}

	accessDur, err := ParseExpiry(accessTTL)
	if err != nil {
		return nil, fmt.Errorf("token: invalid access TTL %q: %w", accessTTL, err)
	}
	refreshDur, err := ParseExpiry(refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("token: invalid refresh TTL %q: %w", refreshTTL, err)
	}

	return &Codec{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessDur,
		refreshTTL:    refreshDur,
	}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *Codec) secret(class Class) []byte {
	if class == Refresh {
		return c.refreshSecret
	}
	return c.accessSecret
}

func (c *Codec) ttl(class Class) time.Duration {
	if class == Refresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue signs a token of the given class for the subject.
func (c *Codec) Issue(userID, email string, class Class) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl(class))),
			// Unique per token: iat/exp have second resolution, and
			// refresh tokens must never collide in the session store.
			ID: uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret(class))
}

// IssuePair issues an access/refresh credential pair for the subject.
func (c *Codec) IssuePair(userID, email string) (accessToken, refreshToken string, err error) {
	accessToken, err = c.Issue(userID, email, Access)
	if err != nil {
		return "", "", err
	}
	refreshToken, err = c.Issue(userID, email, Refresh)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// Verify checks the token against the class secret and classifies the
// failure as ErrTokenExpired or ErrTokenInvalid.
func (c *Codec) Verify(tokenStr string, class Class) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return c.secret(class), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !tok.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

var expiryPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseExpiry parses a magnitude+unit duration string ("15m", "7d").
// time.ParseDuration has no day unit, and session expiry is computed
// from these strings independently of the token's embedded exp.
func ParseExpiry(s string) (time.Duration, error) {
	m := expiryPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("expected <number><s|m|h|d>, got %q", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid magnitude in %q", s)
	}
	switch m[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	default:
		return time.Duration(n) * 24 * time.Hour, nil
	}
}
