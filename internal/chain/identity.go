package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"chowfast/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoIdentity is returned when an operation needs a wallet and none is configured.
var ErrNoIdentity = errors.New("no wallet connected")

// Identity is the wallet that signs order transactions.
type Identity interface {
	Address() common.Address
	// TransactOpts returns fresh options bound to ctx. Signer failures are
	// reported as domain.ErrSigningRejected.
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

type keyedIdentity struct {
	from   common.Address
	signer bind.SignerFn
}

// NewKeyedIdentity signs with an in-memory private key.
func NewKeyedIdentity(key *ecdsa.PrivateKey, chainID *big.Int) (Identity, error) {
	if key == nil {
		return nil, ErrNoIdentity
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, err
	}
	return &keyedIdentity{from: opts.From, signer: opts.Signer}, nil
}

// IdentityFromHex parses a hex private key, with or without 0x.
func IdentityFromHex(hexKey string, chainID *big.Int) (Identity, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}
	return NewKeyedIdentity(key, chainID)
}

// IdentityFromKeystore decrypts a JSON keystore file.
func IdentityFromKeystore(r io.Reader, passphrase string, chainID *big.Int) (Identity, error) {
	opts, err := bind.NewTransactorWithChainID(r, passphrase, chainID)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}
	return &keyedIdentity{from: opts.From, signer: opts.Signer}, nil
}

// LoadIdentity picks the wallet from a hex key or a keystore path, in that
// order. It returns a nil Identity and no error when neither is set.
func LoadIdentity(hexKey, keystorePath, passphrase string, chainID *big.Int) (Identity, error) {
	switch {
	case strings.TrimSpace(hexKey) != "":
		return IdentityFromHex(hexKey, chainID)
	case keystorePath != "":
		f, err := os.Open(keystorePath)
		if err != nil {
			return nil, fmt.Errorf("open keystore: %w", err)
		}
		defer f.Close()
		return IdentityFromKeystore(f, passphrase, chainID)
	default:
		return nil, nil
	}
}

func (k *keyedIdentity) Address() common.Address {
	return k.from
}

func (k *keyedIdentity) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	signer := k.signer
	return &bind.TransactOpts{
		From:    k.from,
		Context: ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			signed, err := signer(addr, tx)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrSigningRejected, err)
			}
			return signed, nil
		},
	}, nil
}
