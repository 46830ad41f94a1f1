package ports

import "context"

// Signer produces wallet signatures for authentication challenges.
// The embedded wallet SDK and the external-wallet handshake both satisfy it.
type Signer interface {
	// Address returns the wallet address controlled by this signer.
	Address() string

	// SignMessage signs the message and returns the encoded signature.
	SignMessage(ctx context.Context, message []byte) (string, error)
}
