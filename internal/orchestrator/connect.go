package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/ggonzalez94/questd/internal/accounts"
	"github.com/ggonzalez94/questd/internal/httpx"
	"github.com/ggonzalez94/questd/internal/questapi"
	"github.com/ggonzalez94/questd/internal/wallet"
	"go.uber.org/zap"
)

// RemoteConnector opens real sessions: an HTTP client bound to the
// account's proxy and session token, plus an EVM wallet when the account
// carries a private key or keystore and an RPC endpoint is configured.
type RemoteConnector struct {
	BaseURL   string
	WalletURL string
	RPCURL    string
	Timeout   time.Duration
	Log       *zap.Logger
}

func (c RemoteConnector) Connect(ctx context.Context, acc accounts.Account) (*Session, error) {
	client, err := httpx.New(c.Timeout).WithProxy(acc.Proxy)
	if err != nil {
		return nil, err
	}
	client = client.WithBearer(acc.SessionToken)
	sess := &Session{API: questapi.New(client, c.BaseURL, c.WalletURL)}

	key := acc.SignerConfig()
	if !key.Configured() || strings.TrimSpace(c.RPCURL) == "" {
		return sess, nil
	}
	w, err := wallet.Dial(ctx, c.RPCURL, key)
	if err != nil {
		if c.Log != nil {
			c.Log.Warn("wallet unavailable, on-chain actions use placeholder ids",
				zap.Int("account", acc.Index), zap.Error(err))
		}
		return sess, nil
	}
	sess.Wallet = w
	sess.close = w.Close
	return sess, nil
}
