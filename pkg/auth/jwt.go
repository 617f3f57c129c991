package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/NicolasHaas/gocollab/pkg/model"
)

// JWT verifies HS256 tokens signed with a shared key. The subject is the
// username and the "rank" claim names the rank.
type JWT struct {
	Key      []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

var _ Verifier = JWT{}

type rankClaims struct {
	jwt.RegisteredClaims
	Rank string `json:"rank,omitempty"`
}

func (j JWT) now() time.Time {
	if j.Now == nil {
		return time.Now()
	}
	return j.Now()
}

func (j JWT) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	}
	if j.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.Issuer))
	}
	if j.Audience != "" {
		opts = append(opts, jwt.WithAudience(j.Audience))
	}
	return opts
}

func (j JWT) Verify(_ context.Context, token string) (Result, error) {
	if len(j.Key) == 0 {
		return Result{}, errors.New("auth: jwt verifier has no key")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Result{Message: "Token is required"}, nil
	}

	var claims rankClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return j.Key, nil
	}, j.parserOptions()...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Result{Message: "Token expired"}, nil
		}
		return Result{Message: "Invalid token"}, nil
	}

	if err := model.ValidateUsername(claims.Subject); err != nil {
		return Result{Message: "Invalid username in token"}, nil
	}
	rank := model.ParseRank(claims.Rank)
	if rank < model.RankRegistered {
		rank = model.RankRegistered
	}
	return Result{OK: true, Username: claims.Subject, Rank: rank}, nil
}

// Issue signs a token for username valid for ttl.
func (j JWT) Issue(username string, rank model.Rank, ttl time.Duration) (string, error) {
	now := j.now()
	claims := rankClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    j.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Rank: rank.String(),
	}
	if j.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Key)
	if err != nil {
		return "", fmt.Errorf("auth: sign jwt: %w", err)
	}
	return signed, nil
}
