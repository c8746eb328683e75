package wallet

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	clierr "github.com/ggonzalez94/questd/internal/errors"
)

const transferGasLimit = 21000

// Backend is the subset of ethclient.Client the wallet needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EVM submits plain value transfers from a local key. It does not wait for
// receipts: a broadcast transaction is reported by hash.
type EVM struct {
	backend Backend
	signer  Signer
	closer  func()
}

func New(backend Backend, signer Signer) *EVM {
	return &EVM{backend: backend, signer: signer}
}

// Dial connects to rpcURL and binds the wallet to privateKeyHex.
func Dial(ctx context.Context, rpcURL string, key LocalSignerConfig) (*EVM, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, clierr.New(clierr.CodeUsage, "missing rpc url")
	}
	signer, err := NewLocalSigner(key)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load signer", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	w := New(client, signer)
	w.closer = client.Close
	return w, nil
}

func (w *EVM) Close() {
	if w != nil && w.closer != nil {
		w.closer()
	}
}

func (w *EVM) Address() string {
	return w.signer.Address().Hex()
}

// Balance returns the native balance as a decimal ether string.
func (w *EVM) Balance(ctx context.Context) (string, error) {
	wei, err := w.backend.BalanceAt(ctx, w.signer.Address(), nil)
	if err != nil {
		return "0", clierr.Wrap(clierr.CodeUnavailable, "fetch balance", err)
	}
	return FormatEther(wei), nil
}

// SendTransfer broadcasts a value transfer of amount ether to toAddress and
// returns the transaction hash. An empty toAddress sends to self.
func (w *EVM) SendTransfer(ctx context.Context, toAddress, amount string) (string, error) {
	to := w.signer.Address()
	if strings.TrimSpace(toAddress) != "" {
		if !common.IsHexAddress(toAddress) {
			return "", clierr.New(clierr.CodeUsage, "invalid transfer target "+toAddress)
		}
		to = common.HexToAddress(toAddress)
	}
	value, err := ParseEther(amount)
	if err != nil {
		return "", err
	}

	chainID, err := w.backend.ChainID(ctx)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	nonce, err := w.backend.PendingNonceAt(ctx, w.signer.Address())
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	tipCap, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil || tipCap == nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       transferGasLimit,
		To:        &to,
		Value:     value,
	})
	signed, err := w.signer.SignTx(chainID, tx)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return "", clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	return signed.Hash().Hex(), nil
}

// PlaceholderTxHash synthesizes a random 32-byte transaction identifier for
// categories where no real submission is possible.
func PlaceholderTxHash() string {
	var h common.Hash
	_, _ = rand.Read(h[:])
	return h.Hex()
}
