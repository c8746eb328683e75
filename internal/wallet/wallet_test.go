package wallet

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type fakeBackend struct {
	balance *big.Int
	sent    []*types.Transaction
	sendErr error
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(8888), nil }

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return nil, errors.New("not supported")
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(7)}, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func newTestWallet(t *testing.T, backend Backend) *EVM {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: common.Bytes2Hex(crypto.FromECDSA(key))})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	return New(backend, signer)
}

func TestSendTransferSignsAndBroadcasts(t *testing.T) {
	backend := &fakeBackend{balance: big.NewInt(0)}
	w := newTestWallet(t, backend)

	target := "0x065f36D28d1a14b87809431d45726FEB18458c4a"
	hash, err := w.SendTransfer(context.Background(), target, "0.001")
	if err != nil {
		t.Fatalf("SendTransfer failed: %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.Hash().Hex() != hash {
		t.Fatalf("hash mismatch: %s vs %s", tx.Hash().Hex(), hash)
	}
	if tx.To().Hex() != common.HexToAddress(target).Hex() {
		t.Fatalf("unexpected recipient %s", tx.To().Hex())
	}
	if tx.Value().String() != "1000000000000000" || tx.Gas() != transferGasLimit {
		t.Fatalf("unexpected value/gas: %s %d", tx.Value(), tx.Gas())
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8888)), tx)
	if err != nil || from.Hex() != w.Address() {
		t.Fatalf("unexpected sender %s (%v)", from.Hex(), err)
	}
}

func TestSendTransferDefaultsToSelf(t *testing.T) {
	backend := &fakeBackend{}
	w := newTestWallet(t, backend)
	if _, err := w.SendTransfer(context.Background(), "", "0"); err != nil {
		t.Fatalf("SendTransfer failed: %v", err)
	}
	if backend.sent[0].To().Hex() != w.Address() {
		t.Fatal("expected self transfer")
	}
}

func TestSendTransferErrors(t *testing.T) {
	w := newTestWallet(t, &fakeBackend{sendErr: errors.New("insufficient funds")})
	if _, err := w.SendTransfer(context.Background(), "", "0.01"); err == nil {
		t.Fatal("expected broadcast error")
	}
	if _, err := w.SendTransfer(context.Background(), "not-an-address", "0.01"); err == nil {
		t.Fatal("expected invalid address error")
	}
}

func TestBalanceFormatsEther(t *testing.T) {
	wei, _ := new(big.Int).SetString("1234500000000000000", 10)
	w := newTestWallet(t, &fakeBackend{balance: wei})
	got, err := w.Balance(context.Background())
	if err != nil || got != "1.2345" {
		t.Fatalf("unexpected balance %q (%v)", got, err)
	}
}

func TestAmountHelpers(t *testing.T) {
	wei, err := ParseEther("0.0001")
	if err != nil || wei.String() != "100000000000000" {
		t.Fatalf("ParseEther: %v %v", wei, err)
	}
	if FormatEther(wei) != "0.0001" {
		t.Fatalf("FormatEther: %s", FormatEther(wei))
	}
	if _, err := ParseEther("1e5"); err == nil {
		t.Fatal("expected invalid amount")
	}
	if !AtLeast("0.5", "0.0001") || AtLeast("0.00001", "0.0001") || AtLeast("bogus", "0") {
		t.Fatal("unexpected AtLeast result")
	}

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		v, err := RandomAmount("0.001", "0.01", rnd)
		if err != nil {
			t.Fatalf("RandomAmount: %v", err)
		}
		if !AtLeast(v, "0.001") || !AtLeast("0.01", v) {
			t.Fatalf("amount out of range: %s", v)
		}
	}
}

func TestPlaceholderTxHashShape(t *testing.T) {
	a, b := PlaceholderTxHash(), PlaceholderTxHash()
	if len(a) != 66 || !strings.HasPrefix(a, "0x") || a == b {
		t.Fatalf("unexpected placeholders %s %s", a, b)
	}
}

func TestAddressFromKey(t *testing.T) {
	key, _ := crypto.GenerateKey()
	want := crypto.PubkeyToAddress(key.PublicKey).Hex()
	got, err := AddressFromKey("0x" + common.Bytes2Hex(crypto.FromECDSA(key)))
	if err != nil || got != want {
		t.Fatalf("AddressFromKey = %s, %v", got, err)
	}
	if _, err := AddressFromKey("zz"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNewLocalSignerDecryptsKeystore(t *testing.T) {
	dir := t.TempDir()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ks := keystore.NewKeyStore(filepath.Join(dir, "keys"), keystore.LightScryptN, keystore.LightScryptP)
	acct, err := ks.ImportECDSA(key, "hunter2")
	if err != nil {
		t.Fatalf("import key: %v", err)
	}
	passFile := filepath.Join(dir, "pass.txt")
	if err := os.WriteFile(passFile, []byte("hunter2\n"), 0o600); err != nil {
		t.Fatalf("write password: %v", err)
	}

	cfg := LocalSignerConfig{KeystorePath: acct.URL.Path, KeystorePasswordFile: passFile}
	if !cfg.Configured() {
		t.Fatal("expected keystore config to count as a key source")
	}
	signer, err := NewLocalSigner(cfg)
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if signer.Address() != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("unexpected address %s", signer.Address().Hex())
	}

	if err := os.WriteFile(passFile, []byte("wrong"), 0o600); err != nil {
		t.Fatalf("write password: %v", err)
	}
	if _, err := NewLocalSigner(cfg); err == nil || !strings.Contains(err.Error(), "decrypt keystore") {
		t.Fatalf("expected decrypt error, got %v", err)
	}
	if _, err := NewLocalSigner(LocalSignerConfig{KeystorePath: acct.URL.Path}); err == nil {
		t.Fatal("expected missing password file error")
	}
}
