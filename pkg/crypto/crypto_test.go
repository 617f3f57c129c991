package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	b, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64", len(a))
	}
	if a == b {
		t.Error("two generated tokens are equal")
	}
	if HashToken(a) != HashToken(a) || HashToken(a) == HashToken(b) {
		t.Error("HashToken is not a stable distinct digest")
	}
}

func TestVerifySecret(t *testing.T) {
	hashed, err := HashSecret("hunter2")
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if !strings.HasPrefix(hashed, SecretPrefix) {
		t.Fatalf("HashSecret = %q, missing prefix", hashed)
	}

	tests := []struct {
		name      string
		stored    string
		candidate string
		want      bool
	}{
		{"plain match", "hunter2", "hunter2", true},
		{"plain mismatch", "hunter2", "hunter3", false},
		{"hashed match", hashed, "hunter2", true},
		{"hashed mismatch", hashed, "hunter3", false},
		{"empty stored", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerifySecret(tt.stored, tt.candidate)
			if err != nil {
				t.Fatalf("VerifySecret: %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifySecret = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySecretRejectsCorruptHash(t *testing.T) {
	for _, stored := range []string{SecretPrefix + "nodollar", SecretPrefix + "!!$AAAA", SecretPrefix + "AAAA$!!"} {
		if _, err := VerifySecret(stored, "x"); !errors.Is(err, ErrInvalidSecretHash) {
			t.Errorf("VerifySecret(%q) error = %v, want ErrInvalidSecretHash", stored, err)
		}
	}
}
