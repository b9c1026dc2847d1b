// Package turncred issues ephemeral TURN credentials using the
// long-term-credential scheme: any relay holding the same static secret can
// verify them without a shared database.
package turncred

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/dkeye/Beam/internal/core"
	"github.com/dkeye/Beam/internal/domain"
)

const (
	DefaultTTL    = time.Hour
	DefaultPrefix = "user"

	randomBytes = 6
)

// Issuer derives short-lived username/password pairs from a static secret.
// Pure function of its inputs plus clock and randomness, both injectable.
type Issuer struct {
	secret string
	ttl    time.Duration
	prefix string

	now  func() time.Time
	rand io.Reader
}

func NewIssuer(secret string, defaultTTL time.Duration, prefix string) *Issuer {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Issuer{
		secret: secret,
		ttl:    defaultTTL,
		prefix: prefix,
		now:    time.Now,
		rand:   rand.Reader,
	}
}

// Configured reports whether a secret is present. Callers must check this
// before exposing the endpoint.
func (i *Issuer) Configured() bool { return i.secret != "" }

// Issue returns a credential valid for ttl, or the issuer default when ttl
// is non-positive. The username embeds the expiry so the relay can reject
// reuse past it; the password is HMAC-SHA1 over the username.
func (i *Issuer) Issue(ttl time.Duration) (domain.TurnCredential, error) {
	if i.secret == "" {
		return domain.TurnCredential{}, fmt.Errorf("TURN: %w", core.ErrNotConfigured)
	}
	if ttl <= 0 {
		ttl = i.ttl
	}

	buf := make([]byte, randomBytes)
	if _, err := io.ReadFull(i.rand, buf); err != nil {
		return domain.TurnCredential{}, fmt.Errorf("TURN random token: %w", err)
	}

	expiry := i.now().Add(ttl).Unix()
	username := fmt.Sprintf("%d:%s-%s", expiry, i.prefix, hex.EncodeToString(buf))

	return domain.TurnCredential{
		Username:   username,
		Password:   Password(i.secret, username),
		TTLSeconds: int(ttl / time.Second),
	}, nil
}

// Password computes base64(HMAC-SHA1(secret, username)), the password a
// standards-compliant relay derives on its side.
func Password(secret, username string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
