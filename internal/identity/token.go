// Package identity 校验身份提供方签发的 HS256 令牌。
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/forumpulse/internal/service"
)

var (
	// ErrInvalidToken 令牌无法解析、签名不符或已过期
	ErrInvalidToken = errors.New("invalid identity token")
	// ErrMissingSecret 未配置签名密钥
	ErrMissingSecret = errors.New("identity secret is not configured")
)

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.StandardClaims
}

// Verifier 校验并签发身份令牌。
type Verifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewVerifier 构造 Verifier；issuer 为空时不校验签发方。
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Verify 解析令牌并返回访问者；sub 为访问者 ID。
func (v *Verifier) Verify(raw string) (service.Actor, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "Bearer "))
	if raw == "" {
		return service.Actor{}, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(raw, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return service.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid || strings.TrimSpace(c.Subject) == "" {
		return service.Actor{}, ErrInvalidToken
	}
	if v.issuer != "" && !c.VerifyIssuer(v.issuer, true) {
		return service.Actor{}, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, c.Issuer)
	}

	return service.Actor{ID: c.Subject, Email: c.Email}, nil
}

// Issue 为 actor 签发有效期为 ttl 的令牌，供 CLI 与测试使用。
func (v *Verifier) Issue(actor service.Actor, ttl time.Duration) (string, error) {
	if strings.TrimSpace(actor.ID) == "" {
		return "", errors.New("actor id is required")
	}
	now := v.now()
	c := claims{
		Email: actor.Email,
		StandardClaims: jwt.StandardClaims{
			Subject:   actor.ID,
			Issuer:    v.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.secret)
}
