package accounts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v4"
)

func TestParseDerivesAddressAndMarksInvalid(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyHex := "0x" + common.Bytes2Hex(crypto.FromECDSA(key))
	want := crypto.PubkeyToAddress(key.PublicKey).Hex()

	data := []byte(`[
		{"walletAddress":"0x1111111111111111111111111111111111111111","sessionToken":"a","proxy":"http://user:pw@10.1.2.3:8080"},
		{"privateKey":"` + keyHex + `","sessionToken":"b","expiresAt":"2026-05-01T00:00:00Z"},
		{"privateKey":"zz","sessionToken":"c"},
		{"sessionToken":"d"}
	]`)
	list, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 4 accounts, got %d", len(list))
	}
	if list[0].Index != 1 || list[0].IP() != "10.1.2.3" || list[0].Invalid != "" {
		t.Fatalf("unexpected first account %+v", list[0])
	}
	if list[1].WalletAddress != want {
		t.Fatalf("expected derived address %s, got %s", want, list[1].WalletAddress)
	}
	if exp := list[1].TokenExpiry(); exp == nil || !exp.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected expiry %v", exp)
	}
	if list[2].Invalid == "" || list[3].Invalid == "" {
		t.Fatalf("expected invalid entries, got %q %q", list[2].Invalid, list[3].Invalid)
	}
	if list[3].ID() != "account_3" {
		t.Fatalf("unexpected fallback id %s", list[3].ID())
	}
}

func TestIPLabels(t *testing.T) {
	if got := (Account{}).IP(); got != "Direct" {
		t.Fatalf("expected Direct, got %s", got)
	}
	if got := (Account{Proxy: "socks5://proxy.example.com:1080"}).IP(); got != "Proxy" {
		t.Fatalf("expected Proxy, got %s", got)
	}
}

func TestJWTExpiry(t *testing.T) {
	exp := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	got := JWTExpiry(tok)
	if got == nil || !got.Equal(exp) {
		t.Fatalf("unexpected expiry %v", got)
	}
	if (Account{SessionToken: tok}).TokenExpiry() == nil {
		t.Fatal("expected fallback to jwt expiry")
	}
	if JWTExpiry("opaque-session-token") != nil {
		t.Fatal("opaque token must have no expiry")
	}
}

func TestTimestampAcceptsMillis(t *testing.T) {
	list, err := Parse([]byte(`[{"walletAddress":"0xabc","expiresAt":1767225600000}]`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if list[0].ExpiresAt.UnixMilli() != 1767225600000 {
		t.Fatalf("unexpected expiry %v", list[0].ExpiresAt)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected missing file error")
	}
	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`[]`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(empty); err == nil {
		t.Fatal("expected empty accounts error")
	}
}

func TestSignerConfigCarriesKeystore(t *testing.T) {
	list, err := Parse([]byte(`[{"walletAddress":"0xabc","sessionToken":"a","keystorePath":"/keys/a.json","keystorePasswordFile":"/keys/a.pass"}]`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cfg := list[0].SignerConfig()
	if !cfg.Configured() || cfg.KeystorePath != "/keys/a.json" || cfg.KeystorePasswordFile != "/keys/a.pass" {
		t.Fatalf("unexpected signer config %+v", cfg)
	}
	if (Account{WalletAddress: "0xabc"}).SignerConfig().Configured() {
		t.Fatal("expected no key source for a bare account")
	}
}
