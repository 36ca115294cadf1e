package credentials

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// Token is a bearer token and its expiry.
type Token struct {
	Value  string
	Expiry time.Time
}

// TokenSource returns a token valid for the next connect attempt.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: Token should honor cancellation while fetching.
type TokenSource interface {
	Token(ctx context.Context) (Token, error)
}

// Invalidator is implemented by caching sources that can drop their
// cached token on demand.
type Invalidator interface {
	Invalidate()
}

// HMACConfig configures an HMACTokenSource.
type HMACConfig struct {
	// Key is the HMAC-SHA256 signing key shared with the broker.
	Key []byte

	// KeyID is placed in the kid header when set.
	KeyID string

	Issuer   string
	Subject  string
	Audience string

	// Scopes are joined into the scope claim.
	Scopes []string

	// TTL is the token lifetime.
	// Default: 1 hour
	TTL time.Duration

	// RefreshBefore is how long before expiry a cached token is replaced.
	// Default: 1 minute
	RefreshBefore time.Duration

	// Now is the clock. Default: time.Now
	Now func() time.Time
}

// HMACTokenSource mints HS256 tokens and caches each until shortly before
// it expires. Concurrent callers share one mint.
type HMACTokenSource struct {
	config HMACConfig

	mu     sync.RWMutex
	cached Token
	group  singleflight.Group
}

// NewHMACTokenSource creates a token source.
func NewHMACTokenSource(config HMACConfig) (*HMACTokenSource, error) {
	if len(config.Key) == 0 {
		return nil, ErrMissingKey
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}
	if config.RefreshBefore <= 0 {
		config.RefreshBefore = time.Minute
	}
	if config.RefreshBefore >= config.TTL {
		config.RefreshBefore = config.TTL / 2
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &HMACTokenSource{config: config}, nil
}

// Token returns the cached token, minting a new one when it is missing or
// about to expire.
func (s *HMACTokenSource) Token(ctx context.Context) (Token, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()
	if s.fresh(cached) {
		return cached, nil
	}

	ch := s.group.DoChan("mint", func() (any, error) {
		s.mu.RLock()
		cached := s.cached
		s.mu.RUnlock()
		if s.fresh(cached) {
			return cached, nil
		}

		tok, err := s.mint()
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cached = tok
		s.mu.Unlock()
		return tok, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Token{}, res.Err
		}
		return res.Val.(Token), nil
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
}

// Invalidate drops the cached token so the next call mints a new one.
func (s *HMACTokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = Token{}
}

func (s *HMACTokenSource) fresh(t Token) bool {
	return t.Value != "" && s.config.Now().Before(t.Expiry.Add(-s.config.RefreshBefore))
}

func (s *HMACTokenSource) mint() (Token, error) {
	now := s.config.Now()
	exp := now.Add(s.config.TTL)

	jti := make([]byte, 16)
	if _, err := rand.Read(jti); err != nil {
		return Token{}, fmt.Errorf("credentials: token id: %w", err)
	}

	claims := jwt.MapClaims{
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(exp),
		"jti": hex.EncodeToString(jti),
	}
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}
	if s.config.Subject != "" {
		claims["sub"] = s.config.Subject
	}
	if s.config.Audience != "" {
		claims["aud"] = s.config.Audience
	}
	if len(s.config.Scopes) > 0 {
		claims["scope"] = strings.Join(s.config.Scopes, " ")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if s.config.KeyID != "" {
		token.Header["kid"] = s.config.KeyID
	}
	signed, err := token.SignedString(s.config.Key)
	if err != nil {
		return Token{}, fmt.Errorf("credentials: sign token: %w", err)
	}

	// exp is encoded in whole seconds.
	return Token{Value: signed, Expiry: exp.Truncate(time.Second)}, nil
}

// StaticTokenSource always returns the same token, e.g. one issued by an
// external identity provider.
type StaticTokenSource struct {
	token Token
}

// NewStaticTokenSource wraps a raw JWT, reading its expiry from the exp claim.
func NewStaticTokenSource(raw string) (*StaticTokenSource, error) {
	exp, err := Expiry(raw)
	if err != nil {
		return nil, err
	}
	return &StaticTokenSource{token: Token{Value: raw, Expiry: exp}}, nil
}

func (s *StaticTokenSource) Token(context.Context) (Token, error) {
	return s.token, nil
}

// Expiry returns the exp claim of a JWT without verifying its signature.
func Expiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}
