// Package signer provides the embedded-wallet signer.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/walletbridge/ports"
)

// EthSigner signs challenges with an in-process secp256k1 key using the
// personal-sign scheme, standing in for the embedded wallet SDK.
type EthSigner struct {
	key     *ecdsa.PrivateKey
	address string
}

// NewEthSigner wraps an existing private key.
func NewEthSigner(key *ecdsa.PrivateKey) ports.Signer {
	return &EthSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

// Generate creates a signer with a fresh random key.
func Generate() (ports.Signer, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return NewEthSigner(key), nil
}

// Address returns the signer's checksummed address.
func (s *EthSigner) Address() string {
	return s.address
}

// SignMessage signs the EIP-191 prefixed hash of the message and returns the
// hex-encoded 65-byte signature with the legacy recovery id offset.
func (s *EthSigner) SignMessage(ctx context.Context, message []byte) (string, error) {
	hash := accounts.TextHash(message)
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
