package lighter

import (
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/sjlee/txlog"
)

func TestCredentialsValidate(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
		ok    bool
	}{
		{"read-only token", Credentials{ReadOnlyToken: "ro:abc"}, true},
		{"private key", Credentials{PrivateKey: "0a0b0c"}, true},
		{"both supplied", Credentials{ReadOnlyToken: "ro:abc", PrivateKey: "0a0b0c"}, false},
		{"neither supplied", Credentials{}, false},
		{"token without prefix", Credentials{ReadOnlyToken: "abc"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.creds.validate()
			if tc.ok && err != nil {
				t.Errorf("rejected: %v", err)
			}
			if !tc.ok {
				var cfgErr *txlog.ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("got %v, want a configuration error", err)
				}
			}
		})
	}
}

func TestCredentialsToken(t *testing.T) {
	now := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)

	ro := Credentials{ReadOnlyToken: "ro:abc"}
	if tok, err := ro.token(now); err != nil || tok != "ro:abc" {
		t.Errorf("read-only token altered: %q, %v", tok, err)
	}

	pk := Credentials{PrivateKey: "0x0a0b0c0d", KeyIndex: 3, AccountIndex: 12}
	tok, err := pk.token(now)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.SplitN(tok, ":", 3)
	if len(parts) != 3 {
		t.Fatalf("token %q is not deadline:key:mac", tok)
	}
	deadline, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := deadline, now.Add(tokenLifetime).Unix(); got != want {
		t.Errorf("deadline %d, want %d", got, want)
	}
	if time.Unix(deadline, 0).Sub(now) > 8*time.Hour {
		t.Error("token outlives the allowed lifetime")
	}
	if parts[1] != "3" {
		t.Errorf("key index %q", parts[1])
	}
	if len(parts[2]) != 64 {
		t.Errorf("mac is %d chars, want 64 hex", len(parts[2]))
	}

	again, _ := pk.token(now)
	if again != tok {
		t.Error("minting is not deterministic for a fixed instant")
	}

	if _, err := (Credentials{PrivateKey: "not-hex"}).token(now); err == nil {
		t.Error("non-hex key accepted")
	}
}
