package accounts

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/questd/internal/errors"
	"github.com/ggonzalez94/questd/internal/model"
	"github.com/ggonzalez94/questd/internal/wallet"
	"github.com/golang-jwt/jwt/v4"
)

const DefaultPath = "accounts.json"

var ipv4Pattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// Account is one entry of the accounts file.
type Account struct {
	Index                int             `json:"-"`
	WalletAddress        string          `json:"walletAddress"`
	SessionToken         string          `json:"sessionToken"`
	Proxy                string          `json:"proxy,omitempty"`
	ExpiresAt            model.Timestamp `json:"expiresAt,omitempty"`
	PrivateKey           string          `json:"privateKey,omitempty"`
	KeystorePath         string          `json:"keystorePath,omitempty"`
	KeystorePasswordFile string          `json:"keystorePasswordFile,omitempty"`

	// Invalid explains why the entry cannot be processed; empty when usable.
	Invalid string `json:"-"`
}

// Load reads and normalizes the accounts file at path.
func Load(path string) ([]Account, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "read accounts file", err)
	}
	list, err := Parse(buf)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, clierr.New(clierr.CodeUsage, "no accounts found in "+path)
	}
	return list, nil
}

// Parse decodes an accounts array. Entries without a usable wallet address
// are kept and marked Invalid so the orchestrator can report them.
func Parse(data []byte) ([]Account, error) {
	var list []Account
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "parse accounts file", err)
	}
	for i := range list {
		list[i].Index = i + 1
		list[i].normalize()
	}
	return list, nil
}

func (a *Account) normalize() {
	a.WalletAddress = strings.TrimSpace(a.WalletAddress)
	if a.WalletAddress == "" && strings.TrimSpace(a.PrivateKey) != "" {
		addr, err := wallet.AddressFromKey(a.PrivateKey)
		if err != nil {
			a.Invalid = "invalid private key"
			return
		}
		a.WalletAddress = addr
	}
	if a.WalletAddress == "" {
		a.Invalid = "invalid config: missing wallet address"
	}
}

// SignerConfig returns the account's key source for on-chain actions.
func (a Account) SignerConfig() wallet.LocalSignerConfig {
	return wallet.LocalSignerConfig{
		PrivateKeyHex:        a.PrivateKey,
		KeystorePath:         a.KeystorePath,
		KeystorePasswordFile: a.KeystorePasswordFile,
	}
}

// ID is the store key of the account.
func (a Account) ID() string {
	if a.WalletAddress != "" {
		return a.WalletAddress
	}
	return fmt.Sprintf("account_%d", a.Index-1)
}

// Short is the abbreviated address used in logs and summaries.
func (a Account) Short() string {
	if len(a.WalletAddress) <= 8 {
		return a.WalletAddress
	}
	return a.WalletAddress[:8] + "..."
}

// IP labels the account's egress: the proxy's IPv4 when visible, "Proxy"
// otherwise, and "Direct" without a proxy.
func (a Account) IP() string {
	if strings.TrimSpace(a.Proxy) == "" {
		return "Direct"
	}
	if ip := ipv4Pattern.FindString(a.Proxy); ip != "" {
		return ip
	}
	return "Proxy"
}

// TokenExpiry prefers the configured expiresAt and falls back to the
// session token's exp claim.
func (a Account) TokenExpiry() *time.Time {
	if !a.ExpiresAt.IsZero() {
		t := a.ExpiresAt.Time
		return &t
	}
	return JWTExpiry(a.SessionToken)
}

// JWTExpiry reads the exp claim without verifying the signature. It returns
// nil for opaque tokens.
func JWTExpiry(token string) *time.Time {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return nil
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	t := claims.ExpiresAt.Time
	return &t
}
