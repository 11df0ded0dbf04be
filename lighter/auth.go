package lighter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/sjlee/txlog"
)

// tokenLifetime bounds minted tokens; the API ceiling is eight hours.
const tokenLifetime = time.Hour

// Credentials configure access to one account. Exactly one of
// ReadOnlyToken and PrivateKey must be set: supplying both is treated
// as a misconfiguration rather than picking one silently.
type Credentials struct {
	ReadOnlyToken string
	PrivateKey    string
	KeyIndex      int
	AccountIndex  int
}

func (c Credentials) validate() error {
	switch {
	case c.ReadOnlyToken != "" && c.PrivateKey != "":
		return &txlog.ConfigError{Reason: "lighter: both a read-only token and a private key supplied, remove one"}
	case c.ReadOnlyToken == "" && c.PrivateKey == "":
		return &txlog.ConfigError{Reason: "lighter: a read-only token or a private key is required"}
	case c.ReadOnlyToken != "" && !strings.HasPrefix(c.ReadOnlyToken, "ro:"):
		return &txlog.ConfigError{Reason: "lighter: read-only token must start with ro:"}
	}
	return nil
}

// token returns the auth token for this run. Read-only tokens pass
// through unchanged. A private key mints a short-lived token binding
// the account index, the key index and a deadline; it is regenerated
// every run, held in memory only, and never logged or persisted.
func (c Credentials) token(now time.Time) (string, error) {
	if c.ReadOnlyToken != "" {
		return c.ReadOnlyToken, nil
	}
	key, err := hex.DecodeString(strings.TrimPrefix(c.PrivateKey, "0x"))
	if err != nil {
		return "", &txlog.ConfigError{Reason: "lighter: private key must be hex"}
	}
	deadline := now.Add(tokenLifetime).Unix()
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%d:%d:%d", c.AccountIndex, c.KeyIndex, deadline)
	return fmt.Sprintf("%d:%d:%s", deadline, c.KeyIndex, hex.EncodeToString(mac.Sum(nil))), nil
}
