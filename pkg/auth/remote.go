package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/NicolasHaas/gocollab/pkg/model"
)

// Remote verifies tokens against an external account service.
//
// The service receives {"secretKey", "token", "ip"} as JSON and answers with
// {"success", "clientSuccess", "error", "username", "rank"}. Rank uses
// the same numbering as adduser messages.
type Remote struct {
	URL    string
	Secret string
	Client *http.Client
}

var _ Verifier = Remote{}

type remoteRequest struct {
	SecretKey string `json:"secretKey"`
	Token     string `json:"token"`
	IP        string `json:"ip,omitempty"`
}

type remoteResponse struct {
	Success       bool   `json:"success"`
	ClientSuccess bool   `json:"clientSuccess"`
	Error         string `json:"error"`
	Username      string `json:"username"`
	Rank          int    `json:"rank"`
}

type ipKey struct{}

// WithIP attaches the client address forwarded to the account service.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

func (r Remote) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (r Remote) Verify(ctx context.Context, token string) (Result, error) {
	ip, _ := ctx.Value(ipKey{}).(string)
	body, err := json.Marshal(remoteRequest{SecretKey: r.Secret, Token: token, IP: ip})
	if err != nil {
		return Result{}, fmt.Errorf("auth: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("auth: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client().Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("auth: remote verify: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("auth: remote verify: status %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("auth: decode response: %w", err)
	}
	if !out.Success {
		return Result{}, fmt.Errorf("auth: remote verify: %s", out.Error)
	}
	if !out.ClientSuccess {
		msg := out.Error
		if msg == "" {
			msg = "Invalid token"
		}
		return Result{Message: msg}, nil
	}

	if err := model.ValidateUsername(out.Username); err != nil {
		return Result{Message: "Invalid username"}, nil
	}
	rank := model.RankFromWire(out.Rank)
	if rank < model.RankRegistered {
		rank = model.RankRegistered
	}
	return Result{OK: true, Username: out.Username, Rank: rank}, nil
}
