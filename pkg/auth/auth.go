// Package auth verifies login tokens sent by clients. Three verifiers are
// available: a remote account service, signed JWTs and tokens stored in the
// local datastore.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/NicolasHaas/gocollab/pkg/crypto"
	"github.com/NicolasHaas/gocollab/pkg/datastore"
	"github.com/NicolasHaas/gocollab/pkg/model"
)

// Result is the outcome of a token check. A rejected token is a Result with
// OK unset, not an error; errors mean the verifier itself failed.
type Result struct {
	OK       bool
	Username string
	Rank     model.Rank
	Message  string
}

// Verifier checks a client login token.
type Verifier interface {
	Verify(ctx context.Context, token string) (Result, error)
}

// TokenValidator resolves a token hash to an account.
type TokenValidator interface {
	ValidateToken(ctx context.Context, hash string) (*model.Account, error)
}

// Tokens verifies tokens issued into the local datastore.
type Tokens struct {
	Store TokenValidator
}

var _ Verifier = Tokens{}

func (t Tokens) Verify(ctx context.Context, token string) (Result, error) {
	if token == "" {
		return Result{Message: "Token is required"}, nil
	}
	account, err := t.Store.ValidateToken(ctx, crypto.HashToken(token))
	switch {
	case errors.Is(err, datastore.ErrInvalidToken):
		return Result{Message: "Invalid token"}, nil
	case errors.Is(err, datastore.ErrTokenExpired):
		return Result{Message: "Token expired"}, nil
	case err != nil:
		return Result{}, fmt.Errorf("auth: validate token: %w", err)
	}
	rank := account.Rank
	if rank < model.RankRegistered {
		rank = model.RankRegistered
	}
	return Result{OK: true, Username: account.Username, Rank: rank}, nil
}

// IssueToken creates a login token for username, creating the account if
// needed, and returns the raw token.
func IssueToken(ctx context.Context, ds datastore.DataStore, username string, rank model.Rank) (string, error) {
	account, err := ds.GetAccountByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("auth: issue token: %w", err)
	}
	if account == nil {
		account, err = ds.CreateAccount(ctx, username, rank)
		if err != nil {
			return "", fmt.Errorf("auth: issue token: %w", err)
		}
	} else if account.Rank != rank {
		if err := ds.UpdateAccountRank(ctx, account.ID, rank); err != nil {
			return "", fmt.Errorf("auth: issue token: %w", err)
		}
	}

	raw, err := crypto.GenerateToken()
	if err != nil {
		return "", err
	}
	if err := ds.CreateToken(ctx, crypto.HashToken(raw), account.ID, ds.ZeroTime()); err != nil {
		return "", fmt.Errorf("auth: issue token: %w", err)
	}
	return raw, nil
}
