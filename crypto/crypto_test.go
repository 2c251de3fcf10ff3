package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func newKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func TestNewTokenCipher(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		errorMsg  string
		wantError bool
	}{
		{name: "empty key", key: "", wantError: true, errorMsg: "encryption key is empty"},
		{name: "invalid base64", key: "not-valid-base64!@#$", wantError: true, errorMsg: "base64 decode failed"},
		{name: "key too short", key: base64.StdEncoding.EncodeToString(make([]byte, 16)), wantError: true, errorMsg: "must be 32 bytes"},
		{name: "key too long", key: base64.StdEncoding.EncodeToString(make([]byte, 64)), wantError: true, errorMsg: "must be 32 bytes"},
		{name: "valid 32-byte key", key: base64.StdEncoding.EncodeToString(make([]byte, 32))},
		{name: "surrounding whitespace", key: " " + base64.StdEncoding.EncodeToString(make([]byte, 32)) + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewTokenCipher(tt.key)
			if tt.wantError {
				if err == nil {
					t.Fatal("NewTokenCipher() expected error but got nil")
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("NewTokenCipher() error = %v, want error containing %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTokenCipher() unexpected error = %v", err)
			}
			if c == nil {
				t.Fatal("NewTokenCipher() returned nil cipher")
			}
		})
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	c, err := NewTokenCipher(newKey(t))
	if err != nil {
		t.Fatal(err)
	}
	for _, plain := range []string{"a", "oauth-access-token-123", strings.Repeat("x", 4096), "çãõ 🍪"} {
		sealed, err := c.Seal(plain)
		if err != nil {
			t.Fatalf("Seal(%q) error = %v", plain, err)
		}
		if !IsSealed(sealed) {
			t.Errorf("Seal(%q) = %q, missing prefix", plain, sealed)
		}
		if strings.Contains(sealed, plain) {
			t.Errorf("sealed value leaks plaintext %q", plain)
		}
		got, err := c.Open(sealed)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if got != plain {
			t.Errorf("Open() = %q, want %q", got, plain)
		}
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	c, _ := NewTokenCipher(newKey(t))
	a, _ := c.Seal("same")
	b, _ := c.Seal("same")
	if a == b {
		t.Error("two seals of the same value should differ")
	}
}

func TestSealEmpty(t *testing.T) {
	c, _ := NewTokenCipher(newKey(t))
	sealed, err := c.Seal("")
	if err != nil || sealed != "" {
		t.Errorf("Seal(\"\") = %q, %v; want empty, nil", sealed, err)
	}
}

func TestOpenPlaintextPassthrough(t *testing.T) {
	c, _ := NewTokenCipher(newKey(t))
	for _, v := range []string{"", "plain-token", "abc123"} {
		got, err := c.Open(v)
		if err != nil || got != v {
			t.Errorf("Open(%q) = %q, %v; want passthrough", v, got, err)
		}
	}
}

func TestOpenRejects(t *testing.T) {
	c, _ := NewTokenCipher(newKey(t))
	other, _ := NewTokenCipher(newKey(t))
	sealed, _ := c.Seal("secret")

	if _, err := other.Open(sealed); !errors.Is(err, ErrOpen) {
		t.Errorf("Open with wrong key error = %v, want ErrOpen", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	raw[len(raw)-1] ^= 0xff
	tampered := sealedPrefix + base64.StdEncoding.EncodeToString(raw)
	if _, err := c.Open(tampered); !errors.Is(err, ErrOpen) {
		t.Errorf("Open tampered error = %v, want ErrOpen", err)
	}

	if _, err := c.Open(sealedPrefix + "%%%"); err == nil {
		t.Error("Open invalid base64 should fail")
	}
	if _, err := c.Open(sealedPrefix + base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Error("Open short value should fail")
	}
}
