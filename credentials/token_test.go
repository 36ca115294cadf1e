package credentials

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewHMACTokenSource_RequiresKey(t *testing.T) {
	if _, err := NewHMACTokenSource(HMACConfig{}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("error = %v, want ErrMissingKey", err)
	}
}

func TestHMACTokenSource_Claims(t *testing.T) {
	clock := newFakeClock()
	src, err := NewHMACTokenSource(HMACConfig{
		Key:      testKey,
		KeyID:    "k1",
		Issuer:   "brokerops",
		Subject:  "orders-service",
		Audience: "rabbitmq",
		Scopes:   []string{"rabbitmq.read:*/*", "rabbitmq.write:*/*"},
		TTL:      10 * time.Minute,
		Now:      clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}

	tok, err := src.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if want := clock.Now().Add(10 * time.Minute); !tok.Expiry.Equal(want) {
		t.Errorf("Expiry = %v, want %v", tok.Expiry, want)
	}

	parsed, err := jwt.Parse(tok.Value, func(*jwt.Token) (any, error) { return testKey, nil },
		jwt.WithTimeFunc(clock.Now),
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithAudience("rabbitmq"),
		jwt.WithIssuer("brokerops"),
	)
	if err != nil {
		t.Fatalf("minted token does not verify: %v", err)
	}
	claims := parsed.Claims.(jwt.MapClaims)
	if claims["sub"] != "orders-service" {
		t.Errorf("sub = %v", claims["sub"])
	}
	if claims["scope"] != "rabbitmq.read:*/* rabbitmq.write:*/*" {
		t.Errorf("scope = %v", claims["scope"])
	}
	if parsed.Header["kid"] != "k1" {
		t.Errorf("kid = %v", parsed.Header["kid"])
	}
}

func TestHMACTokenSource_CachesUntilRefresh(t *testing.T) {
	clock := newFakeClock()
	src, err := NewHMACTokenSource(HMACConfig{
		Key:           testKey,
		TTL:           10 * time.Minute,
		RefreshBefore: time.Minute,
		Now:           clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	first, _ := src.Token(ctx)
	clock.Advance(8 * time.Minute)
	second, _ := src.Token(ctx)
	if second.Value != first.Value {
		t.Error("token re-minted before the refresh window")
	}

	clock.Advance(90 * time.Second)
	third, _ := src.Token(ctx)
	if third.Value == first.Value {
		t.Error("token not re-minted inside the refresh window")
	}

	src.Invalidate()
	fourth, _ := src.Token(ctx)
	if fourth.Value == third.Value {
		t.Error("token not re-minted after Invalidate")
	}
}

func TestHMACTokenSource_ConcurrentCallersShareToken(t *testing.T) {
	src, err := NewHMACTokenSource(HMACConfig{Key: testKey})
	if err != nil {
		t.Fatal(err)
	}

	const n = 32
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := src.Token(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			tokens[i] = tok.Value
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if tokens[i] != tokens[0] {
			t.Fatalf("caller %d got a different token", i)
		}
	}
}

func TestExpiry(t *testing.T) {
	exp := time.Unix(1_700_003_600, 0)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": jwt.NewNumericDate(exp),
	}).SignedString(testKey)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Expiry(signed)
	if err != nil || !got.Equal(exp) {
		t.Errorf("Expiry() = (%v, %v), want %v", got, err, exp)
	}

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString(testKey)
	if _, err := Expiry(noExp); !errors.Is(err, ErrNoExpiry) {
		t.Errorf("no exp: error = %v, want ErrNoExpiry", err)
	}
	if _, err := Expiry("not-a-jwt"); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("garbage: error = %v, want ErrTokenMalformed", err)
	}
}

func TestStaticTokenSource(t *testing.T) {
	exp := time.Unix(1_700_003_600, 0)
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": jwt.NewNumericDate(exp),
	}).SignedString(testKey)

	src, err := NewStaticTokenSource(signed)
	if err != nil {
		t.Fatal(err)
	}
	tok, _ := src.Token(context.Background())
	if tok.Value != signed || !tok.Expiry.Equal(exp) {
		t.Errorf("Token() = %+v", tok)
	}
}
