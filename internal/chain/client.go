package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Dial connects to an RPC endpoint and checks it serves the expected chain.
// A zero chainID skips the check.
func Dial(ctx context.Context, rpcURL string, chainID *big.Int) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	if chainID == nil || chainID.Sign() == 0 {
		return client, nil
	}
	got, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, Classify(fmt.Errorf("chain id: %w", err))
	}
	if got.Cmp(chainID) != 0 {
		client.Close()
		return nil, fmt.Errorf("rpc serves chain %s, want %s", got, chainID)
	}
	return client, nil
}
